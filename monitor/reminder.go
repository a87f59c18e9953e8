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
	"time"

	"github.com/sol-farm/realms-bot/database"
	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/notify"
	"go.opentelemetry.io/otel/attribute"
)

// ReminderDue reports whether rec should get a reminder at now. Only records
// whose Voting state was acknowledged qualify, and the cadence is measured
// from the later of the last reminder and the start of voting
func ReminderDue(
	rec *database.ProposalRecord,
	frequency time.Duration,
	now time.Time,
) bool {
	if !rec.IsActive() || !rec.Acknowledged() {
		return false
	}
	since := rec.VotingStartedAt
	if rec.LastReminderAt != nil && rec.LastReminderAt.After(since) {
		since = *rec.LastReminderAt
	}
	return now.Sub(since) >= frequency
}

// ReminderSweep sends a reminder for every voting proposal that is due. It
// runs independently of the poll cycle and only ever touches the reminder
// timestamp of a record
func (s *Scheduler) ReminderSweep(
	ctx context.Context,
	now time.Time,
) (*SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "monitor.reminder_sweep")
	defer span.End()
	active, err := s.config.Store.ScanActive()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scan active proposals: %w", err)
	}
	ret := &SweepResult{
		Active: len(active),
	}
	govCache := make(map[governance.Pubkey]*database.GovernanceRecord)
	for i := range active {
		if ctx.Err() != nil {
			return ret, ctx.Err()
		}
		rec := &active[i]
		if !ReminderDue(rec, s.config.NotificationFrequency, now) {
			continue
		}
		ret.Due++
		govRec := s.lookupGovernance(govCache, rec.GovernanceKey)
		info := recordInfo(rec, govRec)
		if info.VoteEndsAt != nil && !now.Before(*info.VoteEndsAt) {
			// Vote time is over but the proposal has not been finalized yet
			ret.Skipped++
			s.logger.Debug(
				fmt.Sprintf(
					"skipping reminder for proposal %s, voting ended at %s",
					rec.Key,
					info.VoteEndsAt.UTC().Format(time.RFC3339),
				),
				"component", "monitor",
			)
			continue
		}
		if err := s.remind(ctx, rec, info, now); err != nil {
			ret.Failed++
			continue
		}
		ret.Sent++
	}
	span.SetAttributes(
		attribute.Int("active", ret.Active),
		attribute.Int("sent", ret.Sent),
		attribute.Int("failed", ret.Failed),
	)
	return ret, nil
}

func (s *Scheduler) remind(
	ctx context.Context,
	rec *database.ProposalRecord,
	info notify.ProposalInfo,
	now time.Time,
) error {
	msg := s.composer.Reminder(info, s.tally(ctx, rec))
	err := s.send(ctx, s.config.ChannelId, msg, rec.LastNotifiedState, rec.State)
	if err != nil {
		s.logger.Error(
			fmt.Sprintf(
				"failed to deliver reminder for proposal %s, will retry next sweep",
				rec.Key,
			),
			"component", "monitor",
			"error", err,
		)
		return err
	}
	_, err = s.config.Store.UpdateProposal(
		rec.Key,
		func(cur *database.ProposalRecord) (*database.ProposalRecord, error) {
			// The poll cycle may have moved the proposal on in the meantime
			if cur == nil || !cur.IsActive() || !cur.Acknowledged() {
				return nil, nil
			}
			next := cur.Clone()
			tmpNow := now
			next.LastReminderAt = &tmpNow
			next.UpdatedAt = now
			return &next, nil
		},
	)
	if err != nil {
		s.storeError(rec.Key, err)
		return err
	}
	s.logger.Info(
		fmt.Sprintf("delivered reminder for proposal %s", rec.Key),
		"component", "monitor",
	)
	return nil
}

// tally fetches the current vote weight. A failure degrades the reminder
// instead of blocking it
func (s *Scheduler) tally(
	ctx context.Context,
	rec *database.ProposalRecord,
) *notify.Tally {
	if s.config.Source == nil {
		return nil
	}
	tally, err := s.config.Source.VoteTally(
		ctx,
		governance.Proposal{
			Key:                rec.Key,
			Kind:               rec.Kind,
			Governance:         rec.GovernanceKey,
			GoverningTokenMint: rec.GoverningTokenMint,
			State:              rec.State,
		},
	)
	if err != nil {
		s.logger.Warn(
			fmt.Sprintf("vote tally unavailable for proposal %s", rec.Key),
			"component", "monitor",
			"error", err,
		)
		return nil
	}
	return &notify.Tally{
		Approve: tally.Approve,
		Deny:    tally.Deny,
	}
}

func (s *Scheduler) lookupGovernance(
	cache map[governance.Pubkey]*database.GovernanceRecord,
	key governance.Pubkey,
) *database.GovernanceRecord {
	if govRec, ok := cache[key]; ok {
		return govRec
	}
	govRec, err := s.config.Store.GetGovernance(key)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.Warn(
				fmt.Sprintf("failed to load governance %s", key),
				"component", "monitor",
				"error", err,
			)
		}
		govRec = nil
	}
	cache[key] = govRec
	return govRec
}

func recordInfo(
	rec *database.ProposalRecord,
	govRec *database.GovernanceRecord,
) notify.ProposalInfo {
	ret := notify.ProposalInfo{
		Key:             rec.Key,
		Name:            rec.Name,
		DescriptionLink: rec.DescriptionLink,
		State:           rec.State,
	}
	var maxVotingTime uint32
	if govRec != nil {
		maxVotingTime = govRec.MaxVotingTime
	}
	if endsAt, ok := rec.VoteEndsAt(maxVotingTime); ok {
		ret.VoteEndsAt = &endsAt
	}
	return ret
}
