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

package monitor_test

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sol-farm/realms-bot/database"
	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/internal/test/testutil"
	"github.com/sol-farm/realms-bot/monitor"
	"github.com/sol-farm/realms-bot/notify"
	"github.com/sol-farm/realms-bot/solana"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

	errFakeTransport = errors.New("fake transport failure")
	errFakeStorage   = errors.New("fake storage failure")
)

const (
	testChannel       = "1234"
	testMaxVotingTime = 3 * 24 * 60 * 60
)

func testKey(b byte) governance.Pubkey {
	var ret governance.Pubkey
	ret[0] = 0xa0
	ret[31] = b
	return ret
}

var testGovernanceKey = testKey(0xff)

func testProposal(
	b byte,
	state governance.ProposalState,
	votingAt *time.Time,
) governance.Proposal {
	return governance.Proposal{
		Key:                testKey(b),
		Kind:               governance.AccountTypeProposalV2,
		Governance:         testGovernanceKey,
		GoverningTokenMint: testKey(0xfe),
		State:              state,
		Name:               "proposal",
		DescriptionLink:    "https://example.com",
		VotingAt:           votingAt,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// fakeSource serves a fixed snapshot
type fakeSource struct {
	mu        sync.Mutex
	proposals map[governance.Pubkey]governance.Proposal
	decodeErr map[governance.Pubkey]error
	fetchErr  error
	tally     solana.Tally
	tallyErr  error
	fetches   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		proposals: make(map[governance.Pubkey]governance.Proposal),
		decodeErr: make(map[governance.Pubkey]error),
	}
}

func (f *fakeSource) set(proposals ...governance.Proposal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range proposals {
		f.proposals[p.Key] = p
	}
}

func (f *fakeSource) remove(key governance.Pubkey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.proposals, key)
}

func (f *fakeSource) failFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeSource) Fetch(ctx context.Context) (*solana.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &solana.Snapshot{
		FetchedAt: t0,
		Governance: &governance.Governance{
			Key:            testGovernanceKey,
			Kind:           governance.AccountTypeMintGovernanceV2,
			ProposalsCount: uint32(len(f.proposals)), //nolint:gosec
			MaxVotingTime:  testMaxVotingTime,
		},
		Proposals:    maps.Clone(f.proposals),
		DecodeErrors: maps.Clone(f.decodeErr),
	}, nil
}

func (f *fakeSource) VoteTally(
	_ context.Context,
	_ governance.Proposal,
) (solana.Tally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tally, f.tallyErr
}

type sentMessage struct {
	channelId string
	msg       notify.Message
}

// fakeSink records messages and fails on demand
type fakeSink struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
	ch   chan notify.Message
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		ch: make(chan notify.Message, 100),
	}
}

func (f *fakeSink) Send(ctx context.Context, channelId string, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{channelId: channelId, msg: msg})
	select {
	case f.ch <- msg:
	default:
	}
	return nil
}

func (f *fakeSink) Close() error {
	return nil
}

func (f *fakeSink) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSink) messages() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := make([]notify.Message, 0, len(f.sent))
	for _, s := range f.sent {
		ret = append(ret, s.msg)
	}
	return ret
}

func (f *fakeSink) kinds() []string {
	var ret []string
	for _, msg := range f.messages() {
		ret = append(ret, msg.Kind)
	}
	return ret
}

func (f *fakeSink) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// memStore is an in-memory Store with failure injection
type memStore struct {
	mu          sync.Mutex
	proposals   map[governance.Pubkey]database.ProposalRecord
	governances map[governance.Pubkey]database.GovernanceRecord
	updateErr   error
	writes      int
}

func newMemStore() *memStore {
	return &memStore{
		proposals:   make(map[governance.Pubkey]database.ProposalRecord),
		governances: make(map[governance.Pubkey]database.GovernanceRecord),
	}
}

func (m *memStore) ProposalsByKey(
	keys []governance.Pubkey,
) (map[governance.Pubkey]database.ProposalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make(map[governance.Pubkey]database.ProposalRecord)
	for _, key := range keys {
		if rec, ok := m.proposals[key]; ok {
			ret[key] = rec.Clone()
		}
	}
	return ret, nil
}

func (m *memStore) ScanActive() ([]database.ProposalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []database.ProposalRecord
	for _, rec := range m.proposals {
		if rec.IsActive() {
			ret = append(ret, rec.Clone())
		}
	}
	database.SortProposals(ret)
	return ret, nil
}

func (m *memStore) UpdateProposal(
	key governance.Pubkey,
	fn func(rec *database.ProposalRecord) (*database.ProposalRecord, error),
) (*database.ProposalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	var cur *database.ProposalRecord
	if rec, ok := m.proposals[key]; ok {
		tmpRec := rec.Clone()
		cur = &tmpRec
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return cur, nil
	}
	m.proposals[key] = next.Clone()
	m.writes++
	return next, nil
}

func (m *memStore) GetGovernance(
	key governance.Pubkey,
) (*database.GovernanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.governances[key]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &rec, nil
}

func (m *memStore) PutGovernance(rec database.GovernanceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.governances[rec.Key]; ok && cur.Equal(&rec) {
		return false, nil
	}
	m.governances[rec.Key] = rec
	return true, nil
}

func (m *memStore) failUpdates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
}

func (m *memStore) get(t *testing.T, key governance.Pubkey) database.ProposalRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.proposals[key]
	require.True(t, ok, "no record for %s", key)
	return rec.Clone()
}

func (m *memStore) keys() []governance.Pubkey {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := slices.Collect(maps.Keys(m.proposals))
	slices.SortFunc(ret, func(a, b governance.Pubkey) int {
		return a.Compare(b)
	})
	return ret
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type testHarness struct {
	clock     *testutil.Clock
	source    *fakeSource
	sink      *fakeSink
	store     monitor.Store
	scheduler *monitor.Scheduler
}

func newTestHarness(
	t *testing.T,
	store monitor.Store,
	modify ...func(*monitor.SchedulerConfig),
) *testHarness {
	t.Helper()
	h := &testHarness{
		clock:  testutil.NewClock(t0),
		source: newFakeSource(),
		sink:   newFakeSink(),
		store:  store,
	}
	cfg := monitor.SchedulerConfig{
		Store:                 store,
		Source:                h.source,
		Sink:                  h.sink,
		ChannelId:             testChannel,
		UIBaseUrl:             "https://realms.today/dao/TEST",
		NotificationFrequency: 6 * time.Hour,
		SendTimeout:           time.Second,
		Now:                   h.clock.Now,
	}
	for _, fn := range modify {
		fn(&cfg)
	}
	scheduler, err := monitor.NewScheduler(cfg)
	require.NoError(t, err)
	h.scheduler = scheduler
	return h
}

func (h *testHarness) cycle(t *testing.T) *monitor.CycleResult {
	t.Helper()
	snapshot, err := h.source.Fetch(context.Background())
	require.NoError(t, err)
	result, err := h.scheduler.ProcessSnapshot(context.Background(), snapshot)
	require.NoError(t, err)
	return result
}

func (h *testHarness) sweep(t *testing.T, at time.Time) *monitor.SweepResult {
	t.Helper()
	h.clock.Set(at)
	result, err := h.scheduler.ReminderSweep(context.Background(), at)
	require.NoError(t, err)
	return result
}
