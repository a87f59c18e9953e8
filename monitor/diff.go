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
	"slices"

	"github.com/sol-farm/realms-bot/database"
	"github.com/sol-farm/realms-bot/governance"
)

// Transition is an observed proposal state that has not been acknowledged yet
type Transition struct {
	Key governance.Pubkey
	// Last acknowledged state, nil for first observation or when the first
	// notification was never delivered
	Previous *governance.ProposalState
	Proposal governance.Proposal
	// Stored record, nil when the proposal is not tracked yet
	Stored *database.ProposalRecord
}

// State returns the observed state
func (t Transition) State() governance.ProposalState {
	return t.Proposal.State
}

// EntersVoting reports whether the transition crosses into Voting
func (t Transition) EntersVoting() bool {
	if !t.Proposal.State.IsVoting() {
		return false
	}
	return t.Previous == nil || !t.Previous.IsVoting()
}

// LeavesVoting reports whether the transition crosses out of an acknowledged
// Voting state
func (t Transition) LeavesVoting() bool {
	return t.Previous != nil &&
		t.Previous.IsVoting() &&
		!t.Proposal.State.IsVoting()
}

// Refresh is an acknowledged proposal whose stored copy is stale
type Refresh struct {
	Proposal governance.Proposal
	Stored   database.ProposalRecord
}

// DiffResult is the outcome of comparing one snapshot against the store
type DiffResult struct {
	Transitions []Transition
	Updated     []Refresh
	// Active records absent from the snapshot
	Missing []database.ProposalRecord
}

// Empty reports whether the snapshot matches the store
func (d DiffResult) Empty() bool {
	return len(d.Transitions) == 0 && len(d.Updated) == 0
}

// Diff compares a snapshot with the stored records. Transitions are derived
// from the last acknowledged state rather than the stored state, so a
// notification that failed to deliver is derived again on the next cycle.
// Every slice of the result is ordered by key
func Diff(
	snapshot map[governance.Pubkey]governance.Proposal,
	stored map[governance.Pubkey]database.ProposalRecord,
) DiffResult {
	var ret DiffResult
	for key, proposal := range snapshot {
		rec, ok := stored[key]
		if !ok {
			ret.Transitions = append(
				ret.Transitions,
				Transition{
					Key:      key,
					Proposal: proposal,
				},
			)
			continue
		}
		if rec.LastNotifiedState == nil ||
			*rec.LastNotifiedState != proposal.State {
			tmpRec := rec.Clone()
			ret.Transitions = append(
				ret.Transitions,
				Transition{
					Key:      key,
					Previous: tmpRec.LastNotifiedState,
					Proposal: proposal,
					Stored:   &tmpRec,
				},
			)
			continue
		}
		if recordStale(&rec, &proposal) {
			ret.Updated = append(
				ret.Updated,
				Refresh{
					Proposal: proposal,
					Stored:   rec.Clone(),
				},
			)
		}
	}
	for key, rec := range stored {
		if !rec.IsActive() {
			continue
		}
		if _, ok := snapshot[key]; ok {
			continue
		}
		ret.Missing = append(ret.Missing, rec.Clone())
	}
	slices.SortFunc(ret.Transitions, func(a, b Transition) int {
		return a.Key.Compare(b.Key)
	})
	slices.SortFunc(ret.Updated, func(a, b Refresh) int {
		return a.Proposal.Key.Compare(b.Proposal.Key)
	})
	database.SortProposals(ret.Missing)
	return ret
}

// recordStale reports whether the stored copy differs from the chain in any
// field the monitor keeps
func recordStale(rec *database.ProposalRecord, proposal *governance.Proposal) bool {
	if rec.State != proposal.State ||
		rec.Name != proposal.Name ||
		rec.DescriptionLink != proposal.DescriptionLink ||
		rec.GovernanceKey != proposal.Governance ||
		rec.GoverningTokenMint != proposal.GoverningTokenMint ||
		rec.Kind != proposal.Kind {
		return true
	}
	if proposal.VotingAt != nil &&
		!rec.VotingStartedAt.Equal(*proposal.VotingAt) {
		return true
	}
	return false
}
