// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the agent over HTTP: terminal and chat entry
// points, session signal updates, reset, health, and metrics.
package server

import "github.com/AleutianAI/shellsense/agent"

// Version is reported by the health endpoint.
const Version = "0.1.0"

// TerminalRequest is one observed shell command.
type TerminalRequest struct {
	UserID    string `json:"user_id" binding:"required,max=128"`
	SessionID string `json:"session_id" binding:"omitempty,max=256"`
	Command   string `json:"command" binding:"required"`
	ExitCode  int    `json:"exit_code"`
	Output    string `json:"output"`
	Cwd       string `json:"cwd"`
}

// ChatRequest is one direct chat message.
type ChatRequest struct {
	UserID    string `json:"user_id" binding:"required,max=128"`
	SessionID string `json:"session_id" binding:"omitempty,max=256"`
	Message   string `json:"message" binding:"required"`
}

// SignalsRequest updates session flags. Nil fields are left unchanged.
type SignalsRequest struct {
	UserID            string `json:"user_id" binding:"required,max=128"`
	SessionID         string `json:"session_id" binding:"omitempty,max=256"`
	InEditorMode      *bool  `json:"in_editor_mode"`
	IsTyping          *bool  `json:"is_typing"`
	JustSelfCorrected *bool  `json:"just_self_corrected"`
}

// ResetRequest clears session state and conversation history.
type ResetRequest struct {
	UserID    string `json:"user_id" binding:"required,max=128"`
	SessionID string `json:"session_id" binding:"omitempty,max=256"`
}

// TerminalResponse wraps the deduped decision list.
type TerminalResponse struct {
	Responses []agent.Response `json:"responses"`
}

// ResetResponse reports reset results, including partial failures.
type ResetResponse struct {
	Status   string   `json:"status"`
	Failures []string `json:"failures,omitempty"`
}

// Failure markers for ResetResponse.
const (
	failSessionDelete    = "session_store_delete_failed"
	failCheckpointDelete = "checkpoint_delete_failed"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
