// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"sync"
	"time"
)

// CircuitBreaker trips after a run of consecutive failures and heals by
// time: once the recovery window has elapsed since the last failure, the
// next Allow resets the breaker and lets a probe call through.
//
// Two states only (closed, open); there is no distinct half-open state.
// A single success closes the breaker immediately.
//
// Thread Safety: CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	recovery    time.Duration
	failures    int
	open        bool
	lastFailure time.Time
	now         func() time.Time
}

// NewCircuitBreaker creates a breaker tripping after threshold
// consecutive failures and healing after recovery.
func NewCircuitBreaker(threshold int, recovery time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		recovery:  recovery,
		now:       time.Now,
	}
}

// NewCircuitBreakerWithClock injects a clock for tests.
func NewCircuitBreakerWithClock(threshold int, recovery time.Duration, now func() time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(threshold, recovery)
	cb.now = now
	return cb
}

// Allow reports whether a call may proceed. When the breaker is open but
// the recovery window has passed, the breaker resets (failure count to
// zero) and the call proceeds as a probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return true
	}
	if cb.now().Sub(cb.lastFailure) >= cb.recovery {
		cb.open = false
		cb.failures = 0
		return true
	}
	return false
}

// RecordSuccess closes the breaker and clears the failure run.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.open = false
}

// RecordFailure notes one failure; reaching the threshold opens the
// breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()
	if cb.failures >= cb.threshold {
		cb.open = true
	}
}

// Open reports the current state.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}
