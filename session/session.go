// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds per-user terminal session signals and their store.
//
// A State is exclusively owned by one in-flight request (load, mutate,
// save); concurrent requests for the same session are not synchronized
// here, last-write-wins at the storage boundary is accepted.
package session

import "time"

// State carries the signals the silence rules consult.
type State struct {
	// UserID is the opaque, pre-validated identity this session belongs to.
	UserID string `json:"user_id"`

	// InEditorMode is true while the user is inside vim/nano/etc.
	InEditorMode bool `json:"in_editor_mode"`

	// JustSelfCorrected is true when the user already fixed their own
	// mistake; cleared after the next silence decision consumes it.
	JustSelfCorrected bool `json:"just_self_corrected"`

	// IsTyping is true while the user is actively typing.
	IsTyping bool `json:"is_typing"`

	// LastProactiveMsg is when the assistant last spoke unprompted.
	// Zero value means never.
	LastProactiveMsg time.Time `json:"last_proactive_msg"`
}

// New returns a fresh default state for a user.
func New(userID string) *State {
	return &State{UserID: userID}
}

// Store persists session state between requests.
//
// Implementations must tolerate absence: Load returns (nil, false, nil)
// for an unknown session so callers can fall back to a fresh default.
type Store interface {
	// Load fetches the state for (userID, sessionID).
	//
	// Outputs:
	//   *State - The stored state, or nil when absent.
	//   bool - True when a state was found.
	//   error - Non-nil only for storage failures.
	Load(userID, sessionID string) (*State, bool, error)

	// Save persists the state under sessionID.
	Save(state *State, sessionID string) error

	// Delete removes the state. Returns true when the store no longer
	// holds an entry afterward (including when none existed).
	Delete(userID, sessionID string) bool

	// Close releases store resources.
	Close() error
}
