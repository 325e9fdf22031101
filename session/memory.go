// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import "sync"

// MemoryStore is an in-process Store for tests and single-node setups.
//
// Thread Safety: MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func storeKey(userID, sessionID string) string {
	return userID + "/" + sessionID
}

// Load implements Store.
func (s *MemoryStore) Load(userID, sessionID string) (*State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[storeKey(userID, sessionID)]
	if !ok {
		return nil, false, nil
	}
	copied := state
	return &copied, true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(state *State, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[storeKey(state.UserID, sessionID)] = *state
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(userID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, storeKey(userID, sessionID))
	return true
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
