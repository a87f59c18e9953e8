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
)

// SeedResult summarizes a seeding run
type SeedResult struct {
	Proposals int
	Voting    int
	Skipped   int
}

// Seed stores every proposal of the snapshot with its current state marked as
// already notified, so that only later transitions produce notifications
func Seed(
	ctx context.Context,
	source SnapshotSource,
	store Store,
	now time.Time,
) (*SeedResult, error) {
	snapshot, err := source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	if snapshot.Governance != nil {
		_, err := store.PutGovernance(
			database.NewGovernanceRecord(snapshot.Governance, now),
		)
		if err != nil {
			return nil, fmt.Errorf("store governance: %w", err)
		}
	}
	ret := &SeedResult{
		Skipped: len(snapshot.DecodeErrors),
	}
	var errs []error
	for _, key := range snapshot.SortedKeys() {
		if err := ctx.Err(); err != nil {
			return ret, err
		}
		proposal := snapshot.Proposals[key]
		_, err := store.UpdateProposal(
			key,
			func(cur *database.ProposalRecord) (*database.ProposalRecord, error) {
				next := applyProposal(cur, proposal, now)
				tmpState := proposal.State
				next.LastNotifiedState = &tmpState
				return next, nil
			},
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("proposal %s: %w", key, err))
			continue
		}
		ret.Proposals++
		if proposal.State.IsVoting() {
			ret.Voting++
		}
	}
	return ret, errors.Join(errs...)
}
