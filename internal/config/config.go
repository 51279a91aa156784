// Package config defines the runtime configuration and its loader.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the root configuration for the courier runtime.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Workspace string          `json:"workspace" yaml:"workspace"`
	DataDir   string          `json:"data_dir" yaml:"data_dir"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	Tools     ToolsConfig     `json:"tools" yaml:"tools"`
	Adapters  AdaptersConfig  `json:"adapters" yaml:"adapters"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
}

// ServerConfig configures the core HTTP listener.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// LLMConfig configures the OpenAI-compatible proxy the agent talks to.
type LLMConfig struct {
	ProxyURL  string        `json:"proxy_url" yaml:"proxy_url"`
	Model     string        `json:"model" yaml:"model"`
	MaxTokens int           `json:"max_tokens" yaml:"max_tokens"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	// MinimalContext marks best-effort backends that cannot accept tool
	// definitions; the loop omits tools and logs when it is set.
	MinimalContext bool `json:"minimal_context" yaml:"minimal_context"`
}

// AgentConfig bounds the reasoning loop.
type AgentConfig struct {
	MaxIterations      int    `json:"max_iterations" yaml:"max_iterations"`
	MaxHistory         int    `json:"max_history" yaml:"max_history"`
	MaxContextMessages int    `json:"max_context_messages" yaml:"max_context_messages"`
	MaxContextChars    int    `json:"max_context_chars" yaml:"max_context_chars"`
	MaxToolOutput      int    `json:"max_tool_output" yaml:"max_tool_output"`
	MaxBlockedCommands int    `json:"max_blocked_commands" yaml:"max_blocked_commands"`
	LazyToolLoading    bool   `json:"lazy_tool_loading" yaml:"lazy_tool_loading"`
	SystemPromptPath   string `json:"system_prompt_path" yaml:"system_prompt_path"`
}

// ToolsConfig configures the dispatcher and persisted tool state.
type ToolsConfig struct {
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	ConfigFile    string        `json:"config_file" yaml:"config_file"`
	MCPConfigFile string        `json:"mcp_config_file" yaml:"mcp_config_file"`
	MCPCacheFile  string        `json:"mcp_cache_file" yaml:"mcp_cache_file"`
	SkillsDir     string        `json:"skills_dir" yaml:"skills_dir"`
	// SearchURL is the web-search endpoint used by the search_web tool
	// (a SearxNG-compatible JSON API).
	SearchURL string `json:"search_url" yaml:"search_url"`
}

// AdaptersConfig points at the chat-frontend callback endpoints and the
// sandboxed command executor.
type AdaptersConfig struct {
	BotURL     string `json:"bot_url" yaml:"bot_url"`
	UserbotURL string `json:"userbot_url" yaml:"userbot_url"`
	SandboxURL string `json:"sandbox_url" yaml:"sandbox_url"`
}

// SchedulerConfig configures the persistent task scheduler.
type SchedulerConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`
	TasksFile    string        `json:"tasks_file" yaml:"tasks_file"`
	// CoreURL is where agent-type tasks are posted. Defaults to the local
	// server address; set it when the scheduler runs out of process.
	CoreURL string `json:"core_url" yaml:"core_url"`
}

// Default returns the configuration defaults applied before file values.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Host: "0.0.0.0", Port: 4000},
		Workspace: "/workspace",
		DataDir:   "/data",
		LLM: LLMConfig{
			Model:     "gpt-4o",
			MaxTokens: 8000,
			Timeout:   120 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations:      15,
			MaxHistory:         10,
			MaxContextMessages: 40,
			MaxToolOutput:      8000,
			MaxBlockedCommands: 3,
			LazyToolLoading:    true,
		},
		Tools: ToolsConfig{
			Timeout: 120 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			TickInterval: 5 * time.Second,
		},
	}
}

// ApplyDefaults fills derived values that depend on other fields.
func (c *Config) ApplyDefaults() {
	if c.Tools.ConfigFile == "" {
		c.Tools.ConfigFile = filepath.Join(c.DataDir, "tools_config.json")
	}
	if c.Tools.MCPConfigFile == "" {
		c.Tools.MCPConfigFile = filepath.Join(c.DataDir, "mcp_servers.json")
	}
	if c.Tools.MCPCacheFile == "" {
		c.Tools.MCPCacheFile = filepath.Join(c.DataDir, "mcp_tools_cache.json")
	}
	if c.Tools.SkillsDir == "" {
		c.Tools.SkillsDir = filepath.Join(c.DataDir, "skills")
	}
	if c.Scheduler.TasksFile == "" {
		c.Scheduler.TasksFile = filepath.Join(c.DataDir, "scheduled_tasks.json")
	}
	if c.Scheduler.CoreURL == "" {
		c.Scheduler.CoreURL = fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port)
	}
	if c.Agent.MaxContextChars == 0 {
		if c.LLM.MinimalContext {
			c.Agent.MaxContextChars = 40000
		} else {
			c.Agent.MaxContextChars = 50000
		}
	}
}

// PermissionsFile returns the path of the permission override artifact.
func (c *Config) PermissionsFile() string {
	return filepath.Join(c.Workspace, "_shared", "tool_permissions.json")
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent max_iterations must be positive")
	}
	if c.Scheduler.TickInterval < time.Second {
		return fmt.Errorf("scheduler tick_interval below 1s")
	}
	return nil
}
