// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation models a chat thread and its checkpoint store.
//
// A thread is an ordered sequence of turns with stable ids plus a rolling
// summary. The sequence is append-only except for compaction, which removes
// a contiguous oldest prefix (by id) after folding it into the summary.
package conversation

import "github.com/google/uuid"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a thread.
type Turn struct {
	// ID is a stable identifier used for retraction.
	ID string `json:"id"`

	// Role is RoleUser or RoleAssistant.
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// NewTurn creates a turn with a fresh id.
func NewTurn(role, content string) Turn {
	return Turn{ID: uuid.NewString(), Role: role, Content: content}
}

// EnsureID assigns an id when the turn does not have one yet. Retraction
// requires every checkpointed turn to carry an id.
func EnsureID(t Turn) Turn {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return t
}

// Thread is the in-memory view of a conversation.
type Thread struct {
	Turns   []Turn `json:"turns"`
	Summary string `json:"summary"`
}

// CheckpointStore persists conversation threads between requests.
//
// The decision pipeline requires only RetractByID; DeleteThread serves
// session reset and LoadThread/Append/SaveSummary serve the request cycle.
type CheckpointStore interface {
	// LoadThread fetches a thread. Absence yields an empty thread.
	LoadThread(threadID string) (*Thread, error)

	// Append adds turns to the end of a thread.
	Append(threadID string, turns ...Turn) error

	// RetractByID removes the turns with the given ids. Unknown ids are
	// ignored; relative order of survivors is preserved.
	RetractByID(threadID string, ids ...string) error

	// SaveSummary replaces the thread's rolling summary.
	SaveSummary(threadID, summary string) error

	// DeleteThread removes the thread entirely. Returns true when the
	// store no longer holds the thread afterward.
	DeleteThread(threadID string) bool

	// Close releases store resources.
	Close() error
}
