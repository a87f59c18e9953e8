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

package realmsbot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sol-farm/realms-bot/database"
	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/internal/test/testutil"
	"github.com/sol-farm/realms-bot/notify"
	"github.com/sol-farm/realms-bot/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type staticSource struct {
	mu        sync.Mutex
	proposals map[governance.Pubkey]governance.Proposal
}

func newStaticSource(proposals ...governance.Proposal) *staticSource {
	s := &staticSource{
		proposals: make(map[governance.Pubkey]governance.Proposal),
	}
	for _, p := range proposals {
		s.proposals[p.Key] = p
	}
	return s
}

func (s *staticSource) Fetch(ctx context.Context) (*solana.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := &solana.Snapshot{
		FetchedAt: time.Now(),
		Proposals: make(map[governance.Pubkey]governance.Proposal),
	}
	for k, v := range s.proposals {
		ret.Proposals[k] = v
	}
	return ret, nil
}

func (s *staticSource) VoteTally(
	ctx context.Context,
	proposal governance.Proposal,
) (solana.Tally, error) {
	return solana.Tally{Approve: 10, Deny: 2, Voters: 3}, nil
}

type chanSink struct {
	ch     chan notify.Message
	closed bool
	mu     sync.Mutex
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan notify.Message, 16)}
}

func (s *chanSink) Send(ctx context.Context, channelId string, msg notify.Message) error {
	select {
	case s.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chanSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *chanSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func votingProposal(seed byte) governance.Proposal {
	votingAt := time.Now().Add(-time.Hour)
	return governance.Proposal{
		Key:                testutil.Key(seed),
		Kind:               governance.AccountTypeProposalV2,
		Governance:         testutil.Key(4),
		GoverningTokenMint: testutil.Key(2),
		State:              governance.ProposalStateVoting,
		Name:               "Fund the treasury",
		DescriptionLink:    "https://example.com/proposal",
		VotingAt:           &votingAt,
	}
}

func testBotConfig(opts ...ConfigOptionFunc) Config {
	council := testutil.Key(3)
	baseOpts := []ConfigOptionFunc{
		WithRealm(
			governance.MustParsePubkey(governance.DefaultProgramId),
			testutil.Key(1),
			testutil.Key(2),
			&council,
			testutil.Key(4),
		),
		WithPollInterval(20 * time.Millisecond),
		WithReminderInterval(20 * time.Millisecond),
		WithShutdownTimeout(5 * time.Second),
	}
	return NewConfig(append(baseOpts, opts...)...)
}

func TestNewValidation(t *testing.T) {
	_, err := New(NewConfig())
	require.Error(t, err)
	// A snapshot source stands in for the RPC URL
	bot, err := New(testBotConfig(WithSnapshotSource(newStaticSource())))
	require.NoError(t, err)
	assert.Equal(t, logChannelId, bot.config.channelId)
	require.NoError(t, bot.Stop())
}

func TestBotRunStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	p := votingProposal(10)
	sink := newChanSink()
	bot, err := New(
		testBotConfig(
			WithLogger(testutil.NewLogger(t, testing.Verbose())),
			WithSnapshotSource(newStaticSource(p)),
			WithSink(sink),
			WithChannels("proposals", "status"),
			WithAnnounceStartup(true),
			WithHistory(true, 0),
		),
	)
	require.NoError(t, err)
	runErr := make(chan error, 1)
	go func() {
		runErr <- bot.Run(context.Background())
	}()

	msg := testutil.RequireReceive(t, sink.ch, 5*time.Second, "startup message")
	assert.Equal(t, notify.KindStartup, msg.Kind)
	// Tracing is off by default, the scheduler falls back to the global provider
	assert.Nil(t, bot.tracerProvider)
	msg = testutil.RequireReceive(t, sink.ch, 5*time.Second, "voting message")
	assert.Equal(t, notify.KindEnteredVoting, msg.Kind)
	assert.Equal(t, p.Key.String(), msg.ProposalKey)

	testutil.WaitForCondition(
		t,
		func() bool {
			entries, err := bot.historyStore.List(context.Background(), 10)
			return err == nil && len(entries) >= 2
		},
		5*time.Second,
		"history entries",
	)

	require.NoError(t, bot.Stop())
	require.NoError(t, testutil.RequireReceive(t, runErr, 5*time.Second, "run return"))
	assert.True(t, sink.isClosed())
	// Stop is idempotent
	require.NoError(t, bot.Stop())
	// A stopped bot cannot be restarted
	require.ErrorIs(t, bot.Run(context.Background()), ErrBotStopped)
}

func TestBotRestartDoesNotRenotify(t *testing.T) {
	dataDir := t.TempDir()
	p := votingProposal(11)
	for i := range 2 {
		sink := newChanSink()
		bot, err := New(
			testBotConfig(
				WithDatabasePath(dataDir),
				WithSnapshotSource(newStaticSource(p)),
				WithSink(sink),
			),
		)
		require.NoError(t, err)
		go func() {
			_ = bot.Run(context.Background())
		}()
		if i == 0 {
			msg := testutil.RequireReceive(t, sink.ch, 5*time.Second, "voting message")
			assert.Equal(t, notify.KindEnteredVoting, msg.Kind)
		} else {
			testutil.RequireNoReceive(t, sink.ch, 200*time.Millisecond, "restart")
		}
		require.NoError(t, bot.Stop())
	}
}

func TestBotRealmMismatch(t *testing.T) {
	dataDir := t.TempDir()
	bot, err := New(
		testBotConfig(
			WithDatabasePath(dataDir),
			WithSnapshotSource(newStaticSource()),
		),
	)
	require.NoError(t, err)
	_, err = bot.Seed(context.Background())
	require.NoError(t, err)
	require.NoError(t, bot.Stop())

	council := testutil.Key(3)
	bot, err = New(
		testBotConfig(
			WithDatabasePath(dataDir),
			WithSnapshotSource(newStaticSource()),
			WithRealm(
				governance.MustParsePubkey(governance.DefaultProgramId),
				testutil.Key(9),
				testutil.Key(2),
				&council,
				testutil.Key(4),
			),
		),
	)
	require.NoError(t, err)
	_, err = bot.Seed(context.Background())
	require.ErrorIs(t, err, database.ErrRealmConfigMismatch)
	require.NoError(t, bot.Stop())
}

func TestBotSeed(t *testing.T) {
	dataDir := t.TempDir()
	voting := votingProposal(12)
	draft := votingProposal(13)
	draft.State = governance.ProposalStateDraft
	draft.VotingAt = nil
	source := newStaticSource(voting, draft)

	bot, err := New(
		testBotConfig(WithDatabasePath(dataDir), WithSnapshotSource(source)),
	)
	require.NoError(t, err)
	result, err := bot.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Proposals)
	assert.Equal(t, 1, result.Voting)
	require.NoError(t, bot.Stop())

	// Seeded proposals are not announced again
	sink := newChanSink()
	bot, err = New(
		testBotConfig(
			WithDatabasePath(dataDir),
			WithSnapshotSource(source),
			WithSink(sink),
		),
	)
	require.NoError(t, err)
	go func() {
		_ = bot.Run(context.Background())
	}()
	testutil.RequireNoReceive(t, sink.ch, 200*time.Millisecond, "seeded proposals")
	require.NoError(t, bot.Stop())
}
