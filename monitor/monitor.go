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

// Package monitor reconciles on-chain proposal state with the local store and
// decides which notifications to send.
package monitor

import (
	"context"
	"time"

	"github.com/sol-farm/realms-bot/database"
	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/solana"
)

const (
	DefaultPollInterval          = 60 * time.Second
	DefaultReminderInterval      = 5 * time.Minute
	DefaultNotificationFrequency = 6 * time.Hour
	DefaultCycleTimeout          = 2 * time.Minute
	DefaultSendTimeout           = 15 * time.Second
)

// SnapshotSource reads proposal state from the chain
type SnapshotSource interface {
	Fetch(ctx context.Context) (*solana.Snapshot, error)
	VoteTally(ctx context.Context, proposal governance.Proposal) (solana.Tally, error)
}

// Store is the subset of the database used by the monitor
type Store interface {
	ProposalsByKey(
		keys []governance.Pubkey,
	) (map[governance.Pubkey]database.ProposalRecord, error)
	ScanActive() ([]database.ProposalRecord, error)
	UpdateProposal(
		key governance.Pubkey,
		fn func(rec *database.ProposalRecord) (*database.ProposalRecord, error),
	) (*database.ProposalRecord, error)
	GetGovernance(key governance.Pubkey) (*database.GovernanceRecord, error)
	PutGovernance(rec database.GovernanceRecord) (bool, error)
}

// CycleResult summarizes one fetch-diff-notify cycle
type CycleResult struct {
	Proposals    int
	DecodeErrors int
	Transitions  int
	Updated      int
	Missing      int
	Delivered    int
	Failed       int
	Silent       int
	StoreErrors  int
}

// SweepResult summarizes one reminder sweep
type SweepResult struct {
	Active  int
	Due     int
	Sent    int
	Failed  int
	Skipped int
}
