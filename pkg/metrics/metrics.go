// Package metrics exposes Prometheus collectors for the orchestration core.
// All collectors are registered on the default registry and served from the
// API server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NodeDuration observes wall-clock latency per graph node.
	NodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "voyagent",
		Subsystem: "graph",
		Name:      "node_duration_seconds",
		Help:      "Latency of graph node invocations.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"node"})

	// NodeErrors counts node invocations that produced an error envelope
	// or recovered panic.
	NodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voyagent",
		Subsystem: "graph",
		Name:      "node_errors_total",
		Help:      "Node invocations that failed.",
	}, []string{"node", "kind"})

	// ToolInvocations counts registry calls by tool and outcome.
	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voyagent",
		Subsystem: "tools",
		Name:      "invocations_total",
		Help:      "Tool registry invocations by outcome.",
	}, []string{"tool", "outcome"})

	// ToolDuration observes registry call latency.
	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "voyagent",
		Subsystem: "tools",
		Name:      "invocation_duration_seconds",
		Help:      "Latency of tool registry invocations.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"tool"})

	// FeedbackRetries counts retry decisions by validator.
	FeedbackRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voyagent",
		Subsystem: "feedback",
		Name:      "retries_total",
		Help:      "Feedback validators routing a worker retry.",
	}, []string{"validator"})

	// JoinPolls counts join-barrier poll iterations.
	JoinPolls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "voyagent",
		Subsystem: "graph",
		Name:      "join_polls_total",
		Help:      "Join barrier poll iterations across all requests.",
	})

	// JoinTimeouts counts joins that proceeded with partial results.
	JoinTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "voyagent",
		Subsystem: "graph",
		Name:      "join_timeouts_total",
		Help:      "Joins that exhausted the poll budget and synthesized partial results.",
	})

	// Turns counts completed turns by terminal status.
	Turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voyagent",
		Subsystem: "core",
		Name:      "turns_total",
		Help:      "Completed turns by terminal status.",
	}, []string{"status"})

	// LLMCalls counts model invocations by caller.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voyagent",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "LLM completions by calling node and outcome.",
	}, []string{"caller", "outcome"})
)
