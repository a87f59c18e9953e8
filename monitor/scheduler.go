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

package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sol-farm/realms-bot/database"
	"github.com/sol-farm/realms-bot/event"
	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/notify"
	"github.com/sol-farm/realms-bot/solana"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sol-farm/realms-bot/monitor"

// Transition handling labels
const (
	handlingNotify = "notify"
	handlingSilent = "silent"
)

type SchedulerConfig struct {
	Store        Store
	Source       SnapshotSource
	Sink         notify.Sink
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// Tracer provider for cycle and delivery spans, defaults to the global one
	TracerProvider trace.TracerProvider
	// Channel for transitions and reminders
	ChannelId string
	// Channel for the startup announcement, defaults to ChannelId
	StatusChannelId       string
	UIBaseUrl             string
	NotificationFrequency time.Duration
	SendTimeout           time.Duration
	NotifyStateChanges    bool
	// Clock override for tests
	Now func() time.Time
}

// Scheduler turns diffs into notifications and store updates. It holds no
// state of its own between calls, everything lives in the store
type Scheduler struct {
	config   SchedulerConfig
	logger   *slog.Logger
	composer *notify.Composer
	metrics  *monitorMetrics
	tracer   trace.Tracer
	now      func() time.Time
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("scheduler requires a store")
	}
	if cfg.Sink == nil {
		return nil, errors.New("scheduler requires a notification sink")
	}
	if cfg.ChannelId == "" {
		return nil, errors.New("scheduler requires a channel id")
	}
	if cfg.NotificationFrequency <= 0 {
		cfg.NotificationFrequency = DefaultNotificationFrequency
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.StatusChannelId == "" {
		cfg.StatusChannelId = cfg.ChannelId
	}
	s := &Scheduler{
		config: cfg,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.composer = notify.NewComposer(
		cfg.UIBaseUrl,
		notify.WithComposerClock(s.now),
	)
	tracerProvider := cfg.TracerProvider
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	s.tracer = tracerProvider.Tracer(tracerName)
	if cfg.PromRegistry != nil {
		s.metrics = newMonitorMetrics(cfg.PromRegistry)
	}
	return s, nil
}

// ProcessSnapshot diffs the snapshot against the store and handles every
// resulting transition. Failures for one proposal do not stop the others. An
// error is returned only when the stored state could not be read
func (s *Scheduler) ProcessSnapshot(
	ctx context.Context,
	snapshot *solana.Snapshot,
) (*CycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "monitor.process_snapshot")
	defer span.End()
	now := s.now()
	ret := &CycleResult{
		Proposals:    len(snapshot.Proposals),
		DecodeErrors: len(snapshot.DecodeErrors),
	}
	var govRec *database.GovernanceRecord
	if snapshot.Governance != nil {
		tmpRec := database.NewGovernanceRecord(snapshot.Governance, now)
		govRec = &tmpRec
		written, err := s.config.Store.PutGovernance(tmpRec)
		if err != nil {
			ret.StoreErrors++
			s.logger.Warn(
				fmt.Sprintf("failed to store governance %s", tmpRec.Key),
				"component", "monitor",
				"error", err,
			)
		} else if written {
			s.logger.Debug(
				fmt.Sprintf(
					"governance %s updated: %d proposals, max voting time %s",
					tmpRec.Key,
					tmpRec.ProposalsCount,
					tmpRec.MaxVotingDuration(),
				),
				"component", "monitor",
			)
		}
	}
	for key, decodeErr := range snapshot.DecodeErrors {
		s.logger.Warn(
			fmt.Sprintf("skipping undecodable proposal account %s", key),
			"component", "monitor",
			"error", decodeErr,
		)
	}
	stored, err := s.loadStored(snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load stored proposals")
		return nil, err
	}
	diff := Diff(snapshot.Proposals, stored)
	ret.Transitions = len(diff.Transitions)
	ret.Updated = len(diff.Updated)
	ret.Missing = len(diff.Missing)
	span.SetAttributes(
		attribute.Int("proposals", ret.Proposals),
		attribute.Int("transitions", ret.Transitions),
		attribute.Int("updated", ret.Updated),
		attribute.Int("missing", ret.Missing),
	)
	for _, rec := range diff.Missing {
		// Absence can be a fetch gap, so it never counts as leaving Voting
		s.logger.Info(
			fmt.Sprintf(
				"voting proposal %s is missing from the snapshot, keeping it tracked",
				rec.Key,
			),
			"component", "monitor",
		)
	}
	for _, transition := range diff.Transitions {
		if ctx.Err() != nil {
			return ret, ctx.Err()
		}
		s.handleTransition(ctx, transition, govRec, now, ret)
	}
	for _, refresh := range diff.Updated {
		if ctx.Err() != nil {
			return ret, ctx.Err()
		}
		if err := s.refresh(refresh, now); err != nil {
			ret.StoreErrors++
			s.storeError(refresh.Proposal.Key, err)
		}
	}
	if s.metrics != nil {
		s.metrics.decodeErrors.Add(float64(ret.DecodeErrors))
		s.metrics.proposalsSeen.Set(float64(ret.Proposals))
	}
	return ret, nil
}

// loadStored returns the stored records for every snapshot key plus every
// active record, so that disappearances can be detected
func (s *Scheduler) loadStored(
	snapshot *solana.Snapshot,
) (map[governance.Pubkey]database.ProposalRecord, error) {
	stored, err := s.config.Store.ProposalsByKey(snapshot.SortedKeys())
	if err != nil {
		return nil, fmt.Errorf("load stored proposals: %w", err)
	}
	active, err := s.config.Store.ScanActive()
	if err != nil {
		return nil, fmt.Errorf("scan active proposals: %w", err)
	}
	for _, rec := range active {
		if _, ok := stored[rec.Key]; !ok {
			stored[rec.Key] = rec
		}
	}
	return stored, nil
}

func (s *Scheduler) transitionKind(t Transition) string {
	switch {
	case t.EntersVoting():
		return notify.KindEnteredVoting
	case t.LeavesVoting():
		return notify.KindLeftVoting
	case t.Previous != nil && s.config.NotifyStateChanges:
		return notify.KindStateChanged
	}
	// First observation outside Voting, or a change between non-voting states
	return ""
}

func (s *Scheduler) handleTransition(
	ctx context.Context,
	t Transition,
	govRec *database.GovernanceRecord,
	now time.Time,
	result *CycleResult,
) {
	kind := s.transitionKind(t)
	if kind == "" {
		result.Silent++
		s.countTransition(handlingSilent)
		s.logger.Debug(
			fmt.Sprintf(
				"proposal %s is now %s, no notification needed",
				t.Key,
				t.State(),
			),
			"component", "monitor",
		)
	} else {
		s.countTransition(handlingNotify)
		msg := s.composeTransition(kind, t, govRec)
		err := s.send(ctx, s.config.ChannelId, msg, t.Previous, t.State())
		if err != nil {
			result.Failed++
			s.logger.Error(
				fmt.Sprintf(
					"failed to deliver %s notification for proposal %s, will retry next cycle",
					kind,
					t.Key,
				),
				"component", "monitor",
				"error", err,
			)
			// The record is left untouched so that the next cycle derives
			// the same transition again
			return
		}
		result.Delivered++
		s.logger.Info(
			fmt.Sprintf(
				"delivered %s notification for proposal %s (%s)",
				kind,
				t.Key,
				t.State(),
			),
			"component", "monitor",
		)
	}
	_, err := s.config.Store.UpdateProposal(
		t.Key,
		func(cur *database.ProposalRecord) (*database.ProposalRecord, error) {
			next := applyProposal(cur, t.Proposal, now)
			tmpState := t.State()
			next.LastNotifiedState = &tmpState
			if t.EntersVoting() {
				next.LastReminderAt = nil
			}
			return next, nil
		},
	)
	if err != nil {
		result.StoreErrors++
		s.storeError(t.Key, err)
	}
}

func (s *Scheduler) composeTransition(
	kind string,
	t Transition,
	govRec *database.GovernanceRecord,
) notify.Message {
	info := proposalInfo(t.Proposal, govRec)
	info.PreviousState = t.Previous
	switch kind {
	case notify.KindEnteredVoting:
		return s.composer.EnteredVoting(info)
	case notify.KindLeftVoting:
		return s.composer.LeftVoting(info)
	default:
		return s.composer.StateChanged(info)
	}
}

// refresh rewrites the display data of an acknowledged record. It backs off
// when the record changed state since the diff was computed
func (s *Scheduler) refresh(r Refresh, now time.Time) error {
	_, err := s.config.Store.UpdateProposal(
		r.Proposal.Key,
		func(cur *database.ProposalRecord) (*database.ProposalRecord, error) {
			if cur == nil ||
				cur.LastNotifiedState == nil ||
				*cur.LastNotifiedState != r.Proposal.State {
				return nil, nil
			}
			return applyProposal(cur, r.Proposal, now), nil
		},
	)
	return err
}

func (s *Scheduler) storeError(key governance.Pubkey, err error) {
	if s.metrics != nil {
		s.metrics.storeErrors.Inc()
	}
	s.logger.Error(
		fmt.Sprintf(
			"failed to persist proposal %s, it will be processed again next cycle",
			key,
		),
		"component", "monitor",
		"error", err,
	)
}

func (s *Scheduler) countTransition(handling string) {
	if s.metrics != nil {
		s.metrics.transitions.WithLabelValues(handling).Inc()
	}
}

// send delivers msg with the configured timeout and reports the attempt on the
// event bus
func (s *Scheduler) send(
	ctx context.Context,
	channelId string,
	msg notify.Message,
	previous *governance.ProposalState,
	state governance.ProposalState,
) error {
	ctx, span := s.tracer.Start(
		ctx,
		"monitor.send",
		trace.WithAttributes(
			attribute.String("kind", msg.Kind),
			attribute.String("proposal", msg.ProposalKey),
		),
	)
	defer span.End()
	sendCtx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	defer cancel()
	err := s.config.Sink.Send(sendCtx, channelId, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
	}
	if s.metrics != nil {
		s.metrics.notifications.WithLabelValues(msg.Kind, resultLabel(err)).Inc()
	}
	if s.config.EventBus != nil {
		evt := event.NotificationEvent{
			ProposalKey: msg.ProposalKey,
			Kind:        msg.Kind,
			ChannelId:   channelId,
			Delivered:   err == nil,
		}
		if previous != nil {
			evt.PreviousState = previous.String()
		}
		if msg.ProposalKey != "" {
			evt.State = state.String()
		}
		if err != nil {
			evt.Error = err.Error()
		}
		s.config.EventBus.Publish(
			event.NotificationEventType,
			event.NewEvent(event.NotificationEventType, evt),
		)
	}
	return err
}

// Announce sends the startup message to the status channel
func (s *Scheduler) Announce(
	ctx context.Context,
	realmName string,
	governanceKey governance.Pubkey,
) error {
	msg := s.composer.Startup(realmName, governanceKey)
	return s.send(ctx, s.config.StatusChannelId, msg, nil, 0)
}

// applyProposal returns a copy of cur updated with the chain data of p.
// Notification bookkeeping is carried over, except that reminder state is
// dropped once the proposal is no longer voting
func applyProposal(
	cur *database.ProposalRecord,
	p governance.Proposal,
	now time.Time,
) *database.ProposalRecord {
	var next database.ProposalRecord
	wasVoting := false
	if cur != nil {
		next = cur.Clone()
		wasVoting = cur.State.IsVoting()
	} else {
		next = database.ProposalRecord{
			Key:         p.Key,
			FirstSeenAt: now,
		}
	}
	next.GovernanceKey = p.Governance
	next.GoverningTokenMint = p.GoverningTokenMint
	next.Name = p.Name
	next.DescriptionLink = p.DescriptionLink
	next.Kind = p.Kind
	next.State = p.State
	switch {
	case p.VotingAt != nil:
		next.VotingStartedAt = *p.VotingAt
	case p.State.IsVoting() && (!wasVoting || next.VotingStartedAt.IsZero()):
		next.VotingStartedAt = now
	}
	if !p.State.IsVoting() {
		next.LastReminderAt = nil
	}
	next.VotingAt = nil
	if p.VotingAt != nil {
		tmpVotingAt := *p.VotingAt
		next.VotingAt = &tmpVotingAt
	}
	next.MaxVotingTime = nil
	if p.MaxVotingTime != nil {
		tmpMaxVotingTime := *p.MaxVotingTime
		next.MaxVotingTime = &tmpMaxVotingTime
	}
	next.UpdatedAt = now
	return &next
}

func proposalInfo(
	p governance.Proposal,
	govRec *database.GovernanceRecord,
) notify.ProposalInfo {
	ret := notify.ProposalInfo{
		Key:             p.Key,
		Name:            p.Name,
		DescriptionLink: p.DescriptionLink,
		State:           p.State,
	}
	if govRec != nil || p.MaxVotingTime != nil {
		var maxVotingTime uint32
		if govRec != nil {
			maxVotingTime = govRec.MaxVotingTime
		}
		if endsAt, ok := p.VoteEndsAt(maxVotingTime); ok {
			ret.VoteEndsAt = &endsAt
		}
	}
	return ret
}
