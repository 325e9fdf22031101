// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm defines the provider contract for model calls and token
// counting.
//
// Providers are assumed unreliable; resilience (rate limiting, circuit
// breaking, fallbacks) lives in the resilience package, not here.
//
// Thread Safety:
//
//	All implementations must be safe for concurrent use.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prompt message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single Invoke call.
type Options struct {
	// Temperature controls randomness (0.0-1.0).
	Temperature float64

	// MaxTokens limits the response length. Zero means provider default.
	MaxTokens int

	// StreamFunc, when non-nil, receives response chunks as they arrive.
	// The final Generation still carries the full concatenated content.
	StreamFunc func(ctx context.Context, chunk []byte) error
}

// Usage is token accounting extracted from a provider response. Providers
// disagree on field naming; adapters normalize into this struct and leave
// unknown fields at zero.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CachedTokens     int `json:"cached_tokens"`
}

// Generation is a successful provider response.
type Generation struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Provider is the minimal contract a model backend must satisfy.
type Provider interface {
	// Invoke sends messages to the model and returns the generation.
	//
	// Inputs:
	//   ctx - Context for cancellation. No timeout is imposed here.
	//   messages - Full prompt: system, history, and current turn.
	//   opts - Per-call options.
	//
	// Outputs:
	//   *Generation - The response with normalized usage counts.
	//   error - Non-nil on any provider failure.
	Invoke(ctx context.Context, messages []Message, opts Options) (*Generation, error)

	// Name returns the provider name (e.g. "googleai", "openai").
	Name() string
}

// TokenCounter is an optional capability: authoritative token counting
// from the provider side. Callers must guard calls with a timeout and be
// ready to fall back to a local estimate.
type TokenCounter interface {
	// CountTokens returns the provider's count for the given messages.
	CountTokens(ctx context.Context, messages []Message) (int, error)
}
