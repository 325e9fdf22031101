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

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore persists threads in an embedded BadgerDB, one record per
// thread.
//
// Thread Safety: BadgerStore is safe for concurrent use. A single mutex
// serializes read-modify-write cycles so concurrent appends to the same
// thread cannot drop turns.
type BadgerStore struct {
	mu     sync.Mutex
	db     *badger.DB
	logger *slog.Logger
}

// BadgerStoreConfig configures a BadgerStore.
type BadgerStoreConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps all data in RAM (tests, ephemeral deploys).
	InMemory bool

	// Logger receives store-level warnings. Nil uses slog.Default().
	Logger *slog.Logger
}

// NewBadgerStore opens (or creates) the backing database.
func NewBadgerStore(cfg BadgerStoreConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("conversation: badger path required for persistent store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("conversation: open badger: %w", err)
	}

	return &BadgerStore{db: db, logger: logger}, nil
}

func threadKey(threadID string) []byte {
	return []byte("thread/" + threadID)
}

func (s *BadgerStore) load(threadID string) (*Thread, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(threadKey(threadID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &Thread{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load thread: %w", err)
	}

	var thread Thread
	if err := json.Unmarshal(raw, &thread); err != nil {
		s.logger.Warn("conversation thread corrupt, resetting",
			slog.String("thread_id", threadID),
			slog.String("error", err.Error()))
		return &Thread{}, nil
	}
	return &thread, nil
}

func (s *BadgerStore) save(threadID string, thread *Thread) error {
	raw, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("conversation: marshal thread: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(threadKey(threadID), raw)
	})
	if err != nil {
		return fmt.Errorf("conversation: save thread: %w", err)
	}
	return nil
}

// LoadThread implements CheckpointStore.
func (s *BadgerStore) LoadThread(threadID string) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(threadID)
}

// Append implements CheckpointStore.
func (s *BadgerStore) Append(threadID string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, err := s.load(threadID)
	if err != nil {
		return err
	}
	for _, t := range turns {
		thread.Turns = append(thread.Turns, EnsureID(t))
	}
	return s.save(threadID, thread)
}

// RetractByID implements CheckpointStore.
func (s *BadgerStore) RetractByID(threadID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	thread, err := s.load(threadID)
	if err != nil {
		return err
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
	return s.save(threadID, thread)
}

// SaveSummary implements CheckpointStore.
func (s *BadgerStore) SaveSummary(threadID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, err := s.load(threadID)
	if err != nil {
		return err
	}
	thread.Summary = summary
	return s.save(threadID, thread)
}

// DeleteThread implements CheckpointStore.
func (s *BadgerStore) DeleteThread(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(threadKey(threadID))
	})
	if err != nil {
		s.logger.Error("conversation thread delete failed",
			slog.String("thread_id", threadID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// Close implements CheckpointStore.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
