// Package metrics exposes the runtime's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AgentTurns counts completed agent turns by termination state.
	AgentTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_agent_turns_total",
		Help: "Agent turns by termination state.",
	}, []string{"state"})

	// ToolExecutions counts tool dispatches by tool name and outcome.
	ToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_tool_executions_total",
		Help: "Tool executions by tool and outcome.",
	}, []string{"tool", "outcome"})

	// SecurityViolations counts classified security violations.
	SecurityViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_security_violations_total",
		Help: "Tool executions classified as security violations.",
	})

	// SchedulerRuns counts fired scheduler tasks by type and outcome.
	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_scheduler_runs_total",
		Help: "Scheduler task executions by type and outcome.",
	}, []string{"type", "outcome"})

	// LLMRequests counts chat-completion calls by outcome.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_llm_requests_total",
		Help: "LLM proxy requests by outcome.",
	}, []string{"outcome"})
)
