// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exposes Prometheus metrics for the agent.
//
// Thread Safety:
//
//	All metric operations are safe for concurrent use.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the agent emits. Construct once per
// process with NewMetrics and share the instance.
type Metrics struct {
	// RequestsTotal counts pipeline decisions by entry point and outcome
	// (kind label values: silent, pattern, unsafe, ai_response, error).
	RequestsTotal *prometheus.CounterVec

	// LLMCallsTotal counts model invocations by model and status
	// (ok, error).
	LLMCallsTotal *prometheus.CounterVec

	// LLMLatencySeconds observes model invocation latency by model.
	LLMLatencySeconds *prometheus.HistogramVec

	// RateLimitRejections counts calls refused by the sliding-window
	// limiter, by model.
	RateLimitRejections *prometheus.CounterVec

	// CircuitState tracks breaker state by model (0 closed, 1 open).
	CircuitState *prometheus.GaugeVec

	// CompactionRuns counts compaction passes by result
	// (compacted, skipped, estimated_skipped, noop).
	CompactionRuns *prometheus.CounterVec

	// TurnsCompacted counts turns folded into summaries.
	TurnsCompacted prometheus.Counter

	// TokenCounts counts token-count resolutions by mode
	// (exact, estimated).
	TokenCounts *prometheus.CounterVec
}

// NewMetrics registers all collectors against reg. Passing nil registers
// against the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "requests_total",
			Help:      "Pipeline decisions by entry point and response kind.",
		}, []string{"entry", "kind"}),

		LLMCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "llm_calls_total",
			Help:      "Model invocations by model and status.",
		}, []string{"model", "status"}),

		LLMLatencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentd",
			Name:      "llm_latency_seconds",
			Help:      "Model invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"model"}),

		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "rate_limit_rejections_total",
			Help:      "Calls refused by the sliding-window rate limiter.",
		}, []string{"model"}),

		CircuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentd",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per model (0 closed, 1 open).",
		}, []string{"model"}),

		CompactionRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "compaction_runs_total",
			Help:      "Context compaction passes by result.",
		}, []string{"result"}),

		TurnsCompacted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "turns_compacted_total",
			Help:      "Conversation turns folded into rolling summaries.",
		}),

		TokenCounts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "token_counts_total",
			Help:      "Token count resolutions by mode.",
		}, []string{"mode"}),
	}
}
