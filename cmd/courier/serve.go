package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/courierai/courier/internal/adapters"
	"github.com/courierai/courier/internal/agent"
	"github.com/courierai/courier/internal/config"
	"github.com/courierai/courier/internal/gateway"
	"github.com/courierai/courier/internal/mcp"
	"github.com/courierai/courier/internal/permissions"
	"github.com/courierai/courier/internal/scheduler"
	"github.com/courierai/courier/internal/sessions"
	"github.com/courierai/courier/internal/tools"
	"github.com/courierai/courier/internal/tools/discovery"
	"github.com/courierai/courier/internal/tools/files"
	memorytool "github.com/courierai/courier/internal/tools/memory"
	"github.com/courierai/courier/internal/tools/messaging"
	"github.com/courierai/courier/internal/tools/schedule"
	"github.com/courierai/courier/internal/tools/shell"
	"github.com/courierai/courier/internal/tools/skills"
	"github.com/courierai/courier/internal/tools/telegram"
	"github.com/courierai/courier/internal/tools/todo"
	"github.com/courierai/courier/internal/tools/web"
	"github.com/courierai/courier/pkg/models"
)

func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("starting courier", "version", version, "commit", commit, "config", configPath)

	for _, dir := range []string{cfg.DataDir, cfg.Workspace, filepath.Dir(cfg.PermissionsFile())} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	perms := permissions.NewEngine(cfg.PermissionsFile(), permissions.WithLogger(logger))
	mcpManager := mcp.NewManager(cfg.Tools.MCPConfigFile, cfg.Tools.MCPCacheFile, mcp.WithLogger(logger))
	adapterClient := adapters.NewClient(cfg.Adapters.BotURL, cfg.Adapters.UserbotURL, adapters.WithLogger(logger))
	skillsMgr := skills.NewManager(cfg.Tools.SkillsDir, skills.WithLogger(logger))

	store := scheduler.NewStore(cfg.Scheduler.TasksFile, scheduler.WithStoreLogger(logger))
	executor := scheduler.NewHTTPExecutor(adapterClient, cfg.Scheduler.CoreURL, scheduler.WithExecutorLogger(logger))
	sched := scheduler.New(store, executor,
		scheduler.WithLogger(logger),
		scheduler.WithTickInterval(cfg.Scheduler.TickInterval))

	registry := tools.NewRegistry(perms, cfg.Tools.ConfigFile,
		tools.WithLogger(logger),
		tools.WithMCP(mcpManager),
		tools.WithSkills(skillsMgr),
		tools.WithTimeout(cfg.Tools.Timeout))
	registerBuiltins(registry, cfg, adapterClient, skillsMgr, store, sched)

	sessionMgr := sessions.NewManager(cfg.Workspace, sessions.WithLogger(logger))
	llm := agent.NewLLM(cfg.LLM, agent.WithLLMLogger(logger))
	prompt := agent.NewPromptBuilder(cfg.Agent.SystemPromptPath, skillsMgr)
	agentSvc := agent.New(cfg, llm, registry, perms, sessionMgr, prompt, agent.WithLogger(logger))

	tasksAPI := scheduler.NewAPI(store, sched, logger)
	server := gateway.New(cfg, agentSvc, sessionMgr, registry, perms, mcpManager,
		gateway.WithLogger(logger),
		gateway.WithTasks(tasksAPI),
		gateway.WithSkills(skillsMgr))

	// Warm the MCP catalogue; failures are per-server and non-fatal.
	refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	mcpManager.RefreshAll(refreshCtx)
	cancel()
	registry.Invalidate()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if cfg.Scheduler.Enabled {
		g.Go(func() error { return sched.Run(ctx) })
	}
	g.Go(func() error { return perms.Watch(ctx) })

	err = g.Wait()
	logger.Info("courier stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerBuiltins wires every builtin tool into the registry. Bot-only
// tools carry the bot source so they stay out of userbot sessions, the
// Telegram client tools the userbot source.
func registerBuiltins(registry *tools.Registry, cfg *config.Config, adapterClient *adapters.Client, skillsMgr *skills.Manager, store *scheduler.Store, sched *scheduler.Scheduler) {
	builtins := []tools.Tool{
		files.NewReadFile(),
		files.NewWriteFile(),
		files.NewEditFile(),
		files.NewDeleteFile(),
		files.NewSearchFiles(),
		files.NewSearchText(),
		files.NewListDirectory(),
		shell.NewRunCommand(shell.WithSandboxURL(cfg.Adapters.SandboxURL)),
		web.NewSearchWeb(cfg.Tools.SearchURL),
		web.NewFetchPage(),
		memorytool.New(),
		todo.New(),
		schedule.New(store, sched),
		discovery.NewSearchTools(registry),
		discovery.NewLoadTools(registry),
		skills.NewInstallSkill(skillsMgr),
		skills.NewListSkills(skillsMgr),
	}
	for _, tool := range builtins {
		registry.Register(tool, models.SourceBuiltin)
	}

	for _, tool := range []tools.Tool{
		messaging.NewSendFile(adapterClient),
		messaging.NewSendDM(adapterClient),
		messaging.NewManageMessage(adapterClient),
		messaging.NewAskUser(adapterClient),
	} {
		registry.Register(tool, models.SourceBot)
	}

	for _, tool := range telegram.All(adapterClient) {
		registry.Register(tool, models.SourceUserbot)
	}
}
