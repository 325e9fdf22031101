// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the decision pipeline: the guardian stage
// (safety, silence, pattern checks run concurrently) and the planner/chat
// stage (context compaction plus the guarded model call).
//
// Thread Safety:
//
//	Pipeline is safe for concurrent use. Session state is exclusively
//	owned by one in-flight request (load, mutate, save); concurrent
//	requests for the same session resolve last-write-wins at the store.
package agent

import (
	"fmt"
	"strings"
	"time"
)

// Response kinds, in rough priority order of how they are produced.
const (
	// KindUnsafe blocks a tier-1 command outright.
	KindUnsafe = "unsafe"

	// KindConfirm asks the user to confirm a tier-2 command's intent.
	KindConfirm = "confirm"

	// KindPattern is a deterministic canned hint from the pattern engine.
	KindPattern = "pattern"

	// KindSilent means the agent deliberately says nothing.
	KindSilent = "silent"

	// KindAIResponse carries model-generated content.
	KindAIResponse = "ai_response"

	// KindRateLimited is backpressure: try again after RetryAfter.
	KindRateLimited = "rate_limited"

	// KindUnavailable means the circuit breaker is refusing calls.
	KindUnavailable = "unavailable"

	// KindError is an unrecoverable provider failure, sanitized.
	KindError = "error"
)

// TerminalInput is one observed shell command.
type TerminalInput struct {
	UserID    string
	SessionID string
	Command   string
	ExitCode  int
	Output    string
	Cwd       string
}

// ChatInput is one direct chat message to the agent.
type ChatInput struct {
	UserID    string
	SessionID string
	Message   string
}

// BlockInfo describes a safety block attached to an unsafe/confirm
// response.
type BlockInfo struct {
	Tier    int    `json:"tier"`
	Message string `json:"message"`
}

// Response is the single decision produced for a request.
type Response struct {
	// Kind is one of the Kind* constants.
	Kind string `json:"kind"`

	// Content is the user-facing text. Empty for silent responses.
	Content string `json:"content,omitempty"`

	// Sidebar is the text shown in the client's sidebar panel. Mirrors
	// Content on every speaking response.
	Sidebar string `json:"sidebar,omitempty"`

	// Silent is true when the agent chose not to speak; Reason says why.
	Silent bool   `json:"silent,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Alert marks responses the client should surface prominently.
	Alert bool `json:"alert,omitempty"`

	// RequireConfirm asks the client to demand explicit confirmation.
	RequireConfirm bool `json:"require_confirm,omitempty"`

	// Pattern and Confidence are set for pattern-engine hints.
	Pattern    string  `json:"pattern,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Block is set for unsafe/confirm responses.
	Block *BlockInfo `json:"block,omitempty"`

	// ToolsUsed lists the tools consulted while producing the response.
	ToolsUsed []string `json:"tools_used,omitempty"`

	// RetryAfter is set for rate-limited responses.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// DedupKey is the structural identity used to drop duplicate responses
// from one request.
func (r Response) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%t|%s|%s|%s",
		r.Kind, r.Content, r.Sidebar, r.Silent, r.Reason, r.Pattern,
		strings.Join(r.ToolsUsed, ","))
}

// Dedup removes structural duplicates, preserving first-seen order.
func Dedup(responses []Response) []Response {
	if len(responses) < 2 {
		return responses
	}
	seen := make(map[string]struct{}, len(responses))
	out := responses[:0]
	for _, r := range responses {
		key := r.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// SilentResponse builds the canonical silent response for a reason.
func SilentResponse(reason string) Response {
	return Response{Kind: KindSilent, Silent: true, Reason: reason}
}

// sanitizedFailureMessage is what users see for unrecoverable provider
// failures. Raw provider error text never reaches the user.
const sanitizedFailureMessage = "I hit a problem talking to the model. Please try again."

func sanitizeContent(s string) string {
	return strings.TrimSpace(s)
}
