// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/sol-farm/realms-bot/database/history"
	"github.com/sol-farm/realms-bot/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, opts ...history.StoreOptionFunc) *history.Store {
	t.Helper()
	store, err := history.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestRecordAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []history.Entry{
		{ProposalKey: "a", Kind: event.NotificationEnteredVoting, State: "Voting", Delivered: true, CreatedAt: base},
		{ProposalKey: "b", Kind: event.NotificationEnteredVoting, State: "Voting", Delivered: false, Error: "boom", CreatedAt: base.Add(time.Minute)},
		{ProposalKey: "a", Kind: event.NotificationReminder, State: "Voting", Delivered: true, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		require.NoError(t, store.Record(ctx, &entries[i]))
		assert.NotZero(t, entries[i].ID)
	}

	all, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, event.NotificationReminder, all[0].Kind)
	assert.Equal(t, "b", all[1].ProposalKey)
	assert.Equal(t, "boom", all[1].Error)
	assert.False(t, all[1].Delivered)

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	forA, err := store.ListForProposal(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, forA, 2)
	assert.Equal(t, event.NotificationReminder, forA[0].Kind)
	assert.Equal(t, event.NotificationEnteredVoting, forA[1].Kind)
}

func TestRecordSetsCreatedAt(t *testing.T) {
	store := setupTestStore(t)
	entry := &history.Entry{ProposalKey: "a", Kind: event.NotificationStartup}
	require.NoError(t, store.Record(context.Background(), entry))
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestSeparateMemoryStores(t *testing.T) {
	first := setupTestStore(t)
	second := setupTestStore(t)
	require.NoError(t, first.Record(context.Background(), &history.Entry{ProposalKey: "a"}))
	got, err := second.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPrune(t *testing.T) {
	store := setupTestStore(t, history.WithRetention(0))
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Record(ctx, &history.Entry{ProposalKey: "old", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.Record(ctx, &history.Entry{ProposalKey: "new", CreatedAt: now}))
	count, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	got, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ProposalKey)
}

func TestPersistentStore(t *testing.T) {
	dir := t.TempDir()
	store, err := history.New(history.WithDataDir(dir))
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), &history.Entry{ProposalKey: "a"}))
	require.NoError(t, store.Close())

	store, err = history.New(history.WithDataDir(dir))
	require.NoError(t, err)
	defer store.Close()
	got, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
