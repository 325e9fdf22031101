// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience wraps LLM providers with per-model rate limiting,
// circuit breaking, and an ordered fallback chain.
//
// Thread Safety:
//
//	Client and its guards are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/shellsense/agent/llm"
	"github.com/AleutianAI/shellsense/telemetry"
)

// Token count modes reported by CountTokens.
const (
	CountModeExact     = "exact"
	CountModeEstimated = "estimated"
)

// estimateBaseTokens pads local estimates for message framing overhead
// the chars/4 heuristic cannot see.
const estimateBaseTokens = 128

// ModelEntry binds one model name to its provider and guard settings.
type ModelEntry struct {
	// Name identifies the model in logs, metrics, and requests.
	Name string

	// Provider performs the actual calls.
	Provider llm.Provider

	// MaxCalls admitted per Window by the sliding-window limiter.
	MaxCalls int

	// Window is the rate limiter's trailing window.
	Window time.Duration

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit.
	BreakerThreshold int

	// BreakerRecovery is how long the circuit stays open before a probe
	// is allowed.
	BreakerRecovery time.Duration
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Models is the fallback chain, primary first. Generate tries each
	// in order.
	Models []ModelEntry

	// Counter, when set, provides authoritative token counts. Nil means
	// every count is a local estimate.
	Counter llm.TokenCounter

	// CountTimeout bounds each Counter call.
	CountTimeout time.Duration

	// Logger receives call outcomes. Nil uses slog.Default().
	Logger *slog.Logger

	// Metrics receives counters and gauges. Optional.
	Metrics *telemetry.Metrics
}

// Request is one guarded generation.
type Request struct {
	// Messages is the full prompt.
	Messages []llm.Message

	// Options are passed through to the provider.
	Options llm.Options

	// UserID, SessionID, and Node correlate log lines with the pipeline
	// decision that triggered the call.
	UserID    string
	SessionID string
	Node      string

	// Model pins the request to one model instead of walking the chain.
	Model string

	// SkipRateLimit bypasses the sliding window (breaker still applies).
	// Used for internal maintenance calls such as summarization, which
	// must not starve user-facing traffic of its quota.
	SkipRateLimit bool
}

type modelGuard struct {
	entry   ModelEntry
	limiter *RateLimiter
	breaker *CircuitBreaker
}

// Client is the resilient front door to every model the agent talks to.
type Client struct {
	chain   []*modelGuard
	byName  map[string]*modelGuard
	counter llm.TokenCounter

	countTimeout time.Duration
	logger       *slog.Logger
	metrics      *telemetry.Metrics
}

// NewClient wires the fallback chain and its guards.
func NewClient(cfg ClientConfig) (*Client, error) {
	if len(cfg.Models) == 0 {
		return nil, errors.New("resilience: at least one model required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	countTimeout := cfg.CountTimeout
	if countTimeout <= 0 {
		countTimeout = 3 * time.Second
	}

	c := &Client{
		chain:        make([]*modelGuard, 0, len(cfg.Models)),
		byName:       make(map[string]*modelGuard, len(cfg.Models)),
		counter:      cfg.Counter,
		countTimeout: countTimeout,
		logger:       logger,
		metrics:      cfg.Metrics,
	}
	for _, entry := range cfg.Models {
		if entry.Name == "" || entry.Provider == nil {
			return nil, fmt.Errorf("resilience: model entry needs name and provider")
		}
		if _, dup := c.byName[entry.Name]; dup {
			return nil, fmt.Errorf("resilience: duplicate model %q", entry.Name)
		}
		guard := &modelGuard{
			entry:   entry,
			limiter: NewRateLimiter(entry.MaxCalls, entry.Window),
			breaker: NewCircuitBreaker(entry.BreakerThreshold, entry.BreakerRecovery),
		}
		c.chain = append(c.chain, guard)
		c.byName[entry.Name] = guard
	}
	return c, nil
}

// Generate runs one guarded call.
//
// Description:
//
//	With req.Model set, exactly that model is tried. Otherwise the chain
//	is walked primary-first and the first success wins; the error of the
//	last attempt is returned when every model fails. Per model the order
//	is: rate limiter, circuit breaker, provider call. A rejected call
//	never reaches the provider and never counts as a breaker failure.
//	Once any stream chunk has been delivered to req.Options.StreamFunc,
//	a failure aborts the chain instead of falling back: the caller's
//	stream already carries partial content and a retry would replay it.
//
// Outputs:
//
//	*llm.Generation - The successful response.
//	error - *RateLimitedError, ErrCircuitOpen, ErrModelNotConfigured,
//	  or the wrapped provider failure, whichever the last attempt hit.
func (c *Client) Generate(ctx context.Context, req Request) (*llm.Generation, error) {
	if req.Model != "" {
		guard, ok := c.byName[req.Model]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrModelNotConfigured, req.Model)
		}
		gen, _, err := c.generateOn(ctx, guard, req)
		return gen, err
	}

	var lastErr error
	for _, guard := range c.chain {
		gen, streamed, err := c.generateOn(ctx, guard, req)
		if err == nil {
			return gen, nil
		}
		lastErr = err
		if streamed || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) generateOn(ctx context.Context, guard *modelGuard, req Request) (*llm.Generation, bool, error) {
	model := guard.entry.Name
	log := c.logger.With(
		slog.String("model", model),
		slog.String("user_id", req.UserID),
		slog.String("session_id", req.SessionID),
		slog.String("node", req.Node))

	if !req.SkipRateLimit {
		allowed, retryAfter := guard.limiter.Allow()
		if !allowed {
			if c.metrics != nil {
				c.metrics.RateLimitRejections.WithLabelValues(model).Inc()
			}
			log.Warn("llm call rate limited",
				slog.Duration("retry_after", retryAfter))
			return nil, false, &RateLimitedError{RetryAfter: retryAfter}
		}
	}

	if !guard.breaker.Allow() {
		if c.metrics != nil {
			c.metrics.CircuitState.WithLabelValues(model).Set(1)
		}
		log.Warn("llm call refused, circuit open")
		return nil, false, fmt.Errorf("%w: %s", ErrCircuitOpen, model)
	}

	// Track whether any chunk reached the caller's stream. Once it has,
	// a fallback attempt would replay partial content, so the chain must
	// stop on this model's error.
	streamed := false
	opts := req.Options
	if inner := opts.StreamFunc; inner != nil {
		opts.StreamFunc = func(ctx context.Context, chunk []byte) error {
			streamed = true
			return inner(ctx, chunk)
		}
	}

	start := time.Now()
	gen, err := guard.entry.Provider.Invoke(ctx, req.Messages, opts)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.LLMLatencySeconds.WithLabelValues(model).Observe(elapsed.Seconds())
	}

	if err != nil {
		guard.breaker.RecordFailure()
		if c.metrics != nil {
			c.metrics.LLMCallsTotal.WithLabelValues(model, "error").Inc()
			if guard.breaker.Open() {
				c.metrics.CircuitState.WithLabelValues(model).Set(1)
			}
		}
		log.Error("llm call failed",
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return nil, streamed, fmt.Errorf("resilience: %s call failed: %w", model, err)
	}

	guard.breaker.RecordSuccess()
	if c.metrics != nil {
		c.metrics.LLMCallsTotal.WithLabelValues(model, "ok").Inc()
		c.metrics.CircuitState.WithLabelValues(model).Set(0)
	}
	log.Debug("llm call ok",
		slog.Duration("elapsed", elapsed),
		slog.Int("total_tokens", gen.Usage.TotalTokens))
	return gen, streamed, nil
}

// CountTokens resolves a token count for the messages.
//
// Description:
//
//	When a counter is configured it is asked under CountTimeout; any
//	failure or timeout falls back to the local estimate. The mode tells
//	the caller which path produced the number.
//
// Outputs:
//
//	int - Token count, always >= 1.
//	string - CountModeExact or CountModeEstimated.
func (c *Client) CountTokens(ctx context.Context, messages []llm.Message) (int, string) {
	if c.counter != nil {
		countCtx, cancel := context.WithTimeout(ctx, c.countTimeout)
		defer cancel()

		n, err := c.counter.CountTokens(countCtx, messages)
		if err == nil && n > 0 {
			if c.metrics != nil {
				c.metrics.TokenCounts.WithLabelValues(CountModeExact).Inc()
			}
			return n, CountModeExact
		}
		if err != nil {
			c.logger.Warn("token count failed, using estimate",
				slog.String("error", err.Error()))
		}
	}

	if c.metrics != nil {
		c.metrics.TokenCounts.WithLabelValues(CountModeEstimated).Inc()
	}
	return EstimateTokens(messages), CountModeEstimated
}

// Primary returns the name of the first model in the chain.
func (c *Client) Primary() string {
	return c.chain[0].entry.Name
}

// EstimateTokens is the local fallback heuristic: total characters over
// four, plus a fixed base for message framing. Never below one.
func EstimateTokens(messages []llm.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	n := chars/4 + estimateBaseTokens
	if n < 1 {
		n = 1
	}
	return n
}
