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

// RateLimiter is a sliding-window limiter: at most maxCalls admissions per
// trailing window. The admission check and the timestamp record happen
// under one lock, so concurrent callers cannot oversubscribe the window.
//
// A rejected call consumes no capacity.
//
// Thread Safety: RateLimiter is safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter admitting maxCalls per window.
func NewRateLimiter(maxCalls int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}
}

// NewRateLimiterWithClock injects a clock for tests.
func NewRateLimiterWithClock(maxCalls int, window time.Duration, now func() time.Time) *RateLimiter {
	rl := NewRateLimiter(maxCalls, window)
	rl.now = now
	return rl
}

// Allow admits or rejects one call.
//
// Outputs:
//
//	bool - True when the call is admitted; its timestamp is recorded.
//	time.Duration - On rejection, time until the oldest recorded call
//	  leaves the window. Floored at zero. Zero when admitted.
func (rl *RateLimiter) Allow() (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	kept := rl.calls[:0]
	for _, t := range rl.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.calls = kept

	if len(rl.calls) >= rl.maxCalls {
		retryAfter := rl.calls[0].Add(rl.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	rl.calls = append(rl.calls, now)
	return true, 0
}

// InFlight reports how many admissions remain inside the window.
func (rl *RateLimiter) InFlight() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	n := 0
	for _, t := range rl.calls {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
