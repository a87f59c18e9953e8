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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sol-farm/realms-bot/event"
	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/monitor"
	"github.com/sol-farm/realms-bot/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestLoop(
	t *testing.T,
	h *testHarness,
	eventBus *event.EventBus,
) *monitor.Loop {
	t.Helper()
	loop, err := monitor.NewLoop(monitor.LoopConfig{
		Scheduler:        h.scheduler,
		EventBus:         eventBus,
		PollInterval:     20 * time.Millisecond,
		ReminderInterval: 20 * time.Millisecond,
		CycleTimeout:     time.Second,
		Now:              h.clock.Now,
	})
	require.NoError(t, err)
	return loop
}

func TestNewLoopValidation(t *testing.T) {
	_, err := monitor.NewLoop(monitor.LoopConfig{})
	require.Error(t, err)
}

func TestRunCycleFetchFailure(t *testing.T) {
	store := newMemStore()
	h := newTestHarness(t, store)
	h.source.set(testProposal(1, governance.ProposalStateVoting, timePtr(t0)))
	h.source.failFetch(errFakeTransport)
	loop := newTestLoop(t, h, nil)

	result, err := loop.RunCycle(context.Background())
	require.ErrorIs(t, err, errFakeTransport)
	assert.Nil(t, result)
	assert.Zero(t, store.writeCount())
	assert.Empty(t, h.sink.messages())

	// The next cycle picks up where the failed one left off
	h.source.failFetch(nil)
	result, err = loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)
}

func TestRunCycleEvents(t *testing.T) {
	eventBus := event.NewEventBus(nil, nil)
	defer eventBus.Stop()
	_, cycleCh := eventBus.Subscribe(event.CycleEventType)
	_, sweepCh := eventBus.Subscribe(event.ReminderSweepEventType)
	h := newTestHarness(t, newMemStore())
	h.source.set(testProposal(1, governance.ProposalStateVoting, timePtr(t0)))
	loop := newTestLoop(t, h, eventBus)

	_, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	select {
	case evt := <-cycleCh:
		data := evt.Data.(event.CycleEvent)
		assert.Equal(t, 1, data.Proposals)
		assert.Equal(t, 1, data.Delivered)
		assert.NoError(t, data.Error)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for cycle event")
	}

	h.clock.Set(t0.Add(6 * time.Hour))
	result, err := loop.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	select {
	case evt := <-sweepCh:
		data := evt.Data.(event.ReminderSweepEvent)
		assert.Equal(t, 1, data.Active)
		assert.Equal(t, 1, data.Sent)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for reminder sweep event")
	}
}

func TestLoopMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	h := newTestHarness(
		t,
		newMemStore(),
		func(cfg *monitor.SchedulerConfig) {
			cfg.PromRegistry = registry
		},
	)
	loop := newTestLoop(t, h, nil)
	_, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = loop.RunReminders(context.Background())
	require.NoError(t, err)
	families, err := registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, name := range []string{
		"realms_bot_monitor_cycles_total",
		"realms_bot_monitor_cycle_duration_seconds",
		"realms_bot_monitor_reminder_sweeps_total",
		"realms_bot_monitor_last_cycle_timestamp_seconds",
	} {
		assert.True(t, names[name], "missing metric %s", name)
	}
}

func TestLoopStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newTestHarness(t, newMemStore())
	h.source.set(testProposal(1, governance.ProposalStateVoting, timePtr(t0)))
	loop := newTestLoop(t, h, nil)

	require.NoError(t, loop.Start(context.Background()))
	require.ErrorIs(t, loop.Start(context.Background()), monitor.ErrLoopRunning)

	// The first poll runs immediately
	select {
	case msg := <-h.sink.ch:
		assert.Equal(t, notify.KindEnteredVoting, msg.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for first poll")
	}
	require.Eventually(
		t,
		func() bool {
			h.source.mu.Lock()
			defer h.source.mu.Unlock()
			return h.source.fetches >= 3
		},
		5*time.Second,
		10*time.Millisecond,
	)

	require.NoError(t, loop.Stop())
	require.NoError(t, loop.Stop())
	// Repeated polls never re-announce the same state
	assert.Len(t, h.sink.messages(), 1)
}
