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
	"testing"
	"time"

	"github.com/sol-farm/realms-bot/database"
	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acknowledgedRecord(p governance.Proposal) database.ProposalRecord {
	state := p.State
	rec := database.ProposalRecord{
		Key:                p.Key,
		GovernanceKey:      p.Governance,
		GoverningTokenMint: p.GoverningTokenMint,
		State:              p.State,
		LastNotifiedState:  &state,
		Name:               p.Name,
		DescriptionLink:    p.DescriptionLink,
		Kind:               p.Kind,
		FirstSeenAt:        t0,
		UpdatedAt:          t0,
	}
	if p.VotingAt != nil {
		rec.VotingStartedAt = *p.VotingAt
	}
	return rec
}

func TestDiffFirstObservation(t *testing.T) {
	snapshot := map[governance.Pubkey]governance.Proposal{
		testKey(2): testProposal(2, governance.ProposalStateVoting, timePtr(t0)),
		testKey(1): testProposal(1, governance.ProposalStateSucceeded, nil),
	}
	result := monitor.Diff(snapshot, nil)
	require.Len(t, result.Transitions, 2)
	assert.Empty(t, result.Updated)
	assert.Empty(t, result.Missing)
	// Ordered by key
	assert.Equal(t, testKey(1), result.Transitions[0].Key)
	assert.Equal(t, testKey(2), result.Transitions[1].Key)
	for _, transition := range result.Transitions {
		assert.Nil(t, transition.Previous)
		assert.Nil(t, transition.Stored)
	}
	assert.False(t, result.Transitions[0].EntersVoting())
	assert.False(t, result.Transitions[0].LeavesVoting())
	assert.True(t, result.Transitions[1].EntersVoting())
}

func TestDiffAcknowledgedIsEmpty(t *testing.T) {
	p := testProposal(1, governance.ProposalStateVoting, timePtr(t0))
	stored := map[governance.Pubkey]database.ProposalRecord{
		p.Key: acknowledgedRecord(p),
	}
	result := monitor.Diff(
		map[governance.Pubkey]governance.Proposal{p.Key: p},
		stored,
	)
	assert.True(t, result.Empty())
	assert.Empty(t, result.Missing)
}

func TestDiffStateChange(t *testing.T) {
	voting := testProposal(1, governance.ProposalStateVoting, timePtr(t0))
	stored := map[governance.Pubkey]database.ProposalRecord{
		voting.Key: acknowledgedRecord(voting),
	}
	succeeded := voting
	succeeded.State = governance.ProposalStateSucceeded
	result := monitor.Diff(
		map[governance.Pubkey]governance.Proposal{succeeded.Key: succeeded},
		stored,
	)
	require.Len(t, result.Transitions, 1)
	transition := result.Transitions[0]
	require.NotNil(t, transition.Previous)
	assert.Equal(t, governance.ProposalStateVoting, *transition.Previous)
	assert.Equal(t, governance.ProposalStateSucceeded, transition.State())
	assert.True(t, transition.LeavesVoting())
	assert.False(t, transition.EntersVoting())
	require.NotNil(t, transition.Stored)
	assert.Equal(t, governance.ProposalStateVoting, transition.Stored.State)
}

func TestDiffPendingNotification(t *testing.T) {
	// The state was written but the notification never went out
	p := testProposal(1, governance.ProposalStateSucceeded, timePtr(t0))
	rec := acknowledgedRecord(p)
	previous := governance.ProposalStateVoting
	rec.LastNotifiedState = &previous
	result := monitor.Diff(
		map[governance.Pubkey]governance.Proposal{p.Key: p},
		map[governance.Pubkey]database.ProposalRecord{p.Key: rec},
	)
	require.Len(t, result.Transitions, 1)
	assert.True(t, result.Transitions[0].LeavesVoting())

	// Never acknowledged at all
	rec.LastNotifiedState = nil
	p.State = governance.ProposalStateVoting
	rec.State = governance.ProposalStateVoting
	result = monitor.Diff(
		map[governance.Pubkey]governance.Proposal{p.Key: p},
		map[governance.Pubkey]database.ProposalRecord{p.Key: rec},
	)
	require.Len(t, result.Transitions, 1)
	assert.Nil(t, result.Transitions[0].Previous)
	assert.NotNil(t, result.Transitions[0].Stored)
	assert.True(t, result.Transitions[0].EntersVoting())
}

func TestDiffMetadataRefresh(t *testing.T) {
	p := testProposal(1, governance.ProposalStateVoting, timePtr(t0))
	stored := map[governance.Pubkey]database.ProposalRecord{
		p.Key: acknowledgedRecord(p),
	}
	renamed := p
	renamed.Name = "renamed"
	result := monitor.Diff(
		map[governance.Pubkey]governance.Proposal{p.Key: renamed},
		stored,
	)
	assert.Empty(t, result.Transitions)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, "renamed", result.Updated[0].Proposal.Name)
	assert.Equal(t, "proposal", result.Updated[0].Stored.Name)

	moved := p
	moved.VotingAt = timePtr(t0.Add(time.Hour))
	result = monitor.Diff(
		map[governance.Pubkey]governance.Proposal{p.Key: moved},
		stored,
	)
	assert.Len(t, result.Updated, 1)
}

func TestDiffMissing(t *testing.T) {
	voting := testProposal(1, governance.ProposalStateVoting, timePtr(t0))
	resolved := testProposal(2, governance.ProposalStateDefeated, timePtr(t0))
	stored := map[governance.Pubkey]database.ProposalRecord{
		voting.Key:   acknowledgedRecord(voting),
		resolved.Key: acknowledgedRecord(resolved),
	}
	result := monitor.Diff(map[governance.Pubkey]governance.Proposal{}, stored)
	assert.Empty(t, result.Transitions)
	assert.Empty(t, result.Updated)
	// Only actively tracked records are reported
	require.Len(t, result.Missing, 1)
	assert.Equal(t, voting.Key, result.Missing[0].Key)
}

func TestDiffDoesNotAliasInputs(t *testing.T) {
	p := testProposal(1, governance.ProposalStateSucceeded, nil)
	rec := acknowledgedRecord(testProposal(1, governance.ProposalStateVoting, nil))
	stored := map[governance.Pubkey]database.ProposalRecord{p.Key: rec}
	result := monitor.Diff(map[governance.Pubkey]governance.Proposal{p.Key: p}, stored)
	require.Len(t, result.Transitions, 1)
	*result.Transitions[0].Previous = governance.ProposalStateDraft
	assert.Equal(t, governance.ProposalStateVoting, *stored[p.Key].LastNotifiedState)
}
