// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import "sync"

// MemoryStore is an in-process CheckpointStore for tests and single-node
// setups.
//
// Thread Safety: MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*Thread
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*Thread)}
}

// LoadThread implements CheckpointStore.
func (s *MemoryStore) LoadThread(threadID string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return &Thread{}, nil
	}
	copied := Thread{
		Turns:   append([]Turn(nil), thread.Turns...),
		Summary: thread.Summary,
	}
	return &copied, nil
}

// Append implements CheckpointStore.
func (s *MemoryStore) Append(threadID string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread := s.threads[threadID]
	if thread == nil {
		thread = &Thread{}
		s.threads[threadID] = thread
	}
	for _, t := range turns {
		thread.Turns = append(thread.Turns, EnsureID(t))
	}
	return nil
}

// RetractByID implements CheckpointStore.
func (s *MemoryStore) RetractByID(threadID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread := s.threads[threadID]
	if thread == nil || len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := thread.Turns[:0]
	for _, t := range thread.Turns {
		if _, gone := drop[t.ID]; !gone {
			kept = append(kept, t)
		}
	}
	thread.Turns = kept
	return nil
}

// SaveSummary implements CheckpointStore.
func (s *MemoryStore) SaveSummary(threadID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread := s.threads[threadID]
	if thread == nil {
		thread = &Thread{}
		s.threads[threadID] = thread
	}
	thread.Summary = summary
	return nil
}

// DeleteThread implements CheckpointStore.
func (s *MemoryStore) DeleteThread(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, threadID)
	return true
}

// Close implements CheckpointStore.
func (s *MemoryStore) Close() error {
	return nil
}
