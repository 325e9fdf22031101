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

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore persists session state in an embedded BadgerDB.
//
// Entries carry a TTL so abandoned sessions age out without a sweeper.
//
// Thread Safety: BadgerStore is safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// BadgerStoreConfig configures a BadgerStore.
type BadgerStoreConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps all data in RAM (tests, ephemeral deploys).
	InMemory bool

	// TTL is how long an untouched session survives. Zero disables expiry.
	TTL time.Duration

	// Logger receives store-level warnings. Nil uses slog.Default().
	Logger *slog.Logger
}

// NewBadgerStore opens (or creates) the backing database.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is set.
//
// Outputs:
//
//	*BadgerStore - Ready to use store.
//	error - Non-nil if the database cannot be opened.
func NewBadgerStore(cfg BadgerStoreConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("session: badger path required for persistent store")
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
		return nil, fmt.Errorf("session: open badger: %w", err)
	}

	return &BadgerStore{db: db, ttl: cfg.TTL, logger: logger}, nil
}

func (s *BadgerStore) key(userID, sessionID string) []byte {
	return []byte("session/" + userID + "/" + sessionID)
}

// Load implements Store. Absence and decode failures both surface as a
// fresh-default signal; only storage-level faults return an error.
func (s *BadgerStore) Load(userID, sessionID string) (*State, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(userID, sessionID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session: load: %w", err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Warn("session state corrupt, resetting",
			slog.String("user_id", userID),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return nil, false, nil
	}
	return &state, true, nil
}

// Save implements Store.
func (s *BadgerStore) Save(state *State, sessionID string) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(s.key(state.UserID, sessionID), raw)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(userID, sessionID string) bool {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(userID, sessionID))
	})
	if err != nil {
		s.logger.Error("session delete failed",
			slog.String("user_id", userID),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
