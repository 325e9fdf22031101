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
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by Client. Callers branch on these with
// errors.Is to translate failures into user-facing responses.
var (
	// ErrRateLimited is returned when the sliding window is full.
	ErrRateLimited = errors.New("resilience: rate limited")

	// ErrCircuitOpen is returned when the breaker refuses calls.
	ErrCircuitOpen = errors.New("resilience: circuit open")

	// ErrModelNotConfigured is returned when no provider is registered
	// for the requested model.
	ErrModelNotConfigured = errors.New("resilience: model not configured")
)

// RateLimitedError carries the wait hint alongside ErrRateLimited.
type RateLimitedError struct {
	// RetryAfter is how long until the oldest window entry expires.
	// Never negative.
	RetryAfter time.Duration
}

// Error implements error.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("resilience: rate limited, retry after %s", e.RetryAfter)
}

// Unwrap makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
