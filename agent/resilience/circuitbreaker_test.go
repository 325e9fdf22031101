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
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreakerWithClock(3, 30*time.Second, clock.Now)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.Open() {
		t.Fatal("breaker open before threshold")
	}
	cb.RecordFailure()
	if !cb.Open() {
		t.Fatal("breaker should open at the third consecutive failure")
	}
	if cb.Allow() {
		t.Fatal("open breaker must refuse calls")
	}
}

func TestCircuitBreaker_SuccessResetsRun(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreakerWithClock(3, 30*time.Second, clock.Now)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.Open() {
		t.Fatal("non-consecutive failures must not open the breaker")
	}
}

func TestCircuitBreaker_TimeHealedProbe(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreakerWithClock(2, 30*time.Second, clock.Now)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("breaker should be open")
	}

	clock.Advance(29 * time.Second)
	if cb.Allow() {
		t.Fatal("recovery window not elapsed yet")
	}

	clock.Advance(2 * time.Second)
	if !cb.Allow() {
		t.Fatal("probe should be allowed after recovery window")
	}
	// Reset on probe: a single fresh failure must not re-open.
	cb.RecordFailure()
	if cb.Open() {
		t.Fatal("failure count should have reset at probe time")
	}
}

func TestCircuitBreaker_ProbeSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreakerWithClock(2, 10*time.Second, clock.Now)

	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(11 * time.Second)
	if !cb.Allow() {
		t.Fatal("probe expected")
	}
	cb.RecordSuccess()
	if cb.Open() {
		t.Fatal("success must close the breaker")
	}
	if !cb.Allow() {
		t.Fatal("closed breaker must allow calls")
	}
}
