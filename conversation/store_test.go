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
	"testing"

	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]CheckpointStore {
	t.Helper()

	badgerStore, err := NewBadgerStore(BadgerStoreConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })

	return map[string]CheckpointStore{
		"memory": NewMemoryStore(),
		"badger": badgerStore,
	}
}

func TestCheckpointStore_AppendAndLoad(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append("th-1",
				NewTurn(RoleUser, "Command: ls"),
				NewTurn(RoleAssistant, "Try ls -la."),
			))

			thread, err := store.LoadThread("th-1")
			require.NoError(t, err)
			require.Len(t, thread.Turns, 2)
			require.Equal(t, RoleUser, thread.Turns[0].Role)
			require.Equal(t, RoleAssistant, thread.Turns[1].Role)
			for _, turn := range thread.Turns {
				require.NotEmpty(t, turn.ID, "appended turns must carry ids")
			}
		})
	}
}

func TestCheckpointStore_RetractByID(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			a := NewTurn(RoleUser, "one")
			b := NewTurn(RoleAssistant, "two")
			c := NewTurn(RoleUser, "three")
			require.NoError(t, store.Append("th-2", a, b, c))

			require.NoError(t, store.RetractByID("th-2", a.ID, b.ID, "not-a-real-id"))

			thread, err := store.LoadThread("th-2")
			require.NoError(t, err)
			require.Len(t, thread.Turns, 1)
			require.Equal(t, c.ID, thread.Turns[0].ID)
		})
	}
}

func TestCheckpointStore_Summary(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SaveSummary("th-3", "- user: asked about ls"))

			thread, err := store.LoadThread("th-3")
			require.NoError(t, err)
			require.Equal(t, "- user: asked about ls", thread.Summary)
		})
	}
}

func TestCheckpointStore_DeleteThread(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append("th-4", NewTurn(RoleUser, "hello")))
			require.True(t, store.DeleteThread("th-4"))

			thread, err := store.LoadThread("th-4")
			require.NoError(t, err)
			require.Empty(t, thread.Turns)
			require.Empty(t, thread.Summary)
		})
	}
}

func TestCheckpointStore_AbsentThreadIsEmpty(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			thread, err := store.LoadThread("never-seen")
			require.NoError(t, err)
			require.NotNil(t, thread)
			require.Empty(t, thread.Turns)
		})
	}
}
