// Package metrics is the process-wide Prometheus registry (SPEC_FULL.md
// §4 domain stack, §11 "Non-goals exclude dashboards, not counters"):
// step counts, retry counts, and sandbox durations, exposed at
// `GET /metrics` (SPEC_FULL.md §6.1) regardless of the Non-goal that
// excludes a dashboard UI for them.
//
// Grounded on BaSui01-agentflow's promauto-registered package-level
// collector pattern: counters/histograms are declared once here and
// incremented inline at their call sites, rather than threaded through
// every constructor as an extra collaborator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StepsTotal counts Step Executor step completions by tool and
	// terminal status (spec.md §4.5).
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "okta_query_engine_steps_total",
		Help: "Plan steps executed, by tool and outcome status.",
	}, []string{"tool", "status"})

	// RetriesTotal counts Retrying Transport (C2) retry attempts by
	// trigger reason (spec.md §4.2).
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "okta_query_engine_transport_retries_total",
		Help: "Outbound LLM/API request retries, by reason.",
	}, []string{"reason"})

	// SandboxDurationSeconds observes generated-script wall-clock
	// execution time (spec.md §5 "sandbox sub-process execution").
	SandboxDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "okta_query_engine_sandbox_duration_seconds",
		Help:    "Wall-clock duration of sandboxed script executions.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// QueriesTotal counts completed queries by final process status
	// (spec.md §4.5 "State machine").
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "okta_query_engine_queries_total",
		Help: "Queries reaching a terminal state, by status.",
	}, []string{"status"})
)
