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

package database

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/sol-farm/realms-bot/governance"
)

// Key prefixes
const (
	proposalKeyPrefix    = "proposal/"
	governanceKeyPrefix  = "governance/"
	realmKeyPrefix       = "realm/"
	votingIndexKeyPrefix = "idx/voting/"
	realmConfigKey       = "meta/realm_config"
)

// ProposalRecord is the locally tracked view of a proposal account
type ProposalRecord struct {
	Key                governance.Pubkey         `cbor:"1,keyasint"`
	GovernanceKey      governance.Pubkey         `cbor:"2,keyasint"`
	GoverningTokenMint governance.Pubkey         `cbor:"3,keyasint"`
	State              governance.ProposalState  `cbor:"4,keyasint"`
	VotingStartedAt    time.Time                 `cbor:"5,keyasint"`
	LastNotifiedState  *governance.ProposalState `cbor:"6,keyasint"`
	LastReminderAt     *time.Time                `cbor:"7,keyasint"`
	Name               string                    `cbor:"8,keyasint"`
	DescriptionLink    string                    `cbor:"9,keyasint"`
	Kind               governance.AccountType    `cbor:"10,keyasint"`
	FirstSeenAt        time.Time                 `cbor:"11,keyasint"`
	UpdatedAt          time.Time                 `cbor:"12,keyasint"`

	// Voting start and per-proposal voting window as reported by the chain
	VotingAt      *time.Time `cbor:"13,keyasint"`
	MaxVotingTime *uint32    `cbor:"14,keyasint"`
}

// IsActive reports whether the record is actively tracked for reminders
func (r *ProposalRecord) IsActive() bool {
	return r.State.IsVoting()
}

// Acknowledged reports whether the last notified state matches the current state
func (r *ProposalRecord) Acknowledged() bool {
	return r.LastNotifiedState != nil && *r.LastNotifiedState == r.State
}

// Clone returns a deep copy of the record
func (r ProposalRecord) Clone() ProposalRecord {
	if r.LastNotifiedState != nil {
		tmp := *r.LastNotifiedState
		r.LastNotifiedState = &tmp
	}
	if r.LastReminderAt != nil {
		tmp := *r.LastReminderAt
		r.LastReminderAt = &tmp
	}
	if r.VotingAt != nil {
		tmp := *r.VotingAt
		r.VotingAt = &tmp
	}
	if r.MaxVotingTime != nil {
		tmp := *r.MaxVotingTime
		r.MaxVotingTime = &tmp
	}
	return r
}

// VoteEndsAt returns when voting closes, based on the chain voting start. The
// per-proposal voting window takes precedence over governanceMaxVotingTime
func (r *ProposalRecord) VoteEndsAt(governanceMaxVotingTime uint32) (time.Time, bool) {
	if r.VotingAt == nil {
		return time.Time{}, false
	}
	maxVotingTime := governanceMaxVotingTime
	if r.MaxVotingTime != nil {
		maxVotingTime = *r.MaxVotingTime
	}
	if maxVotingTime == 0 {
		return time.Time{}, false
	}
	return r.VotingAt.Add(time.Duration(maxVotingTime) * time.Second), true
}

func (r *ProposalRecord) validate() error {
	if r.Key.IsZero() {
		return fmt.Errorf("%w: proposal key is empty", ErrInvalidRecord)
	}
	if !r.State.Valid() {
		return fmt.Errorf("%w: proposal state %d", ErrInvalidRecord, r.State)
	}
	if r.LastReminderAt != nil && !r.State.IsVoting() {
		return fmt.Errorf(
			"%w: reminder time set on %s proposal",
			ErrInvalidRecord,
			r.State,
		)
	}
	return nil
}

// normalize converts all timestamps to UTC so that round trips compare equal
func (r *ProposalRecord) normalize() {
	r.VotingStartedAt = utc(r.VotingStartedAt)
	r.FirstSeenAt = utc(r.FirstSeenAt)
	r.UpdatedAt = utc(r.UpdatedAt)
	if r.LastReminderAt != nil {
		tmp := utc(*r.LastReminderAt)
		r.LastReminderAt = &tmp
	}
	if r.VotingAt != nil {
		tmp := utc(*r.VotingAt)
		r.VotingAt = &tmp
	}
}

// GovernanceRecord caches the governance account parameters
type GovernanceRecord struct {
	Key             governance.Pubkey      `cbor:"1,keyasint"`
	Realm           governance.Pubkey      `cbor:"2,keyasint"`
	GovernedAccount governance.Pubkey      `cbor:"3,keyasint"`
	ProposalsCount  uint32                 `cbor:"4,keyasint"`
	MaxVotingTime   uint32                 `cbor:"5,keyasint"`
	Kind            governance.AccountType `cbor:"6,keyasint"`
	UpdatedAt       time.Time              `cbor:"7,keyasint"`
}

// NewGovernanceRecord projects a decoded governance account
func NewGovernanceRecord(
	g *governance.Governance,
	updatedAt time.Time,
) GovernanceRecord {
	return GovernanceRecord{
		Key:             g.Key,
		Realm:           g.Realm,
		GovernedAccount: g.GovernedAccount,
		ProposalsCount:  g.ProposalsCount,
		MaxVotingTime:   g.MaxVotingTime,
		Kind:            g.Kind,
		UpdatedAt:       updatedAt,
	}
}

// MaxVotingDuration returns the voting window configured on the governance
func (g *GovernanceRecord) MaxVotingDuration() time.Duration {
	return time.Duration(g.MaxVotingTime) * time.Second
}

// Equal compares the on-chain fields, ignoring bookkeeping timestamps
func (g *GovernanceRecord) Equal(other *GovernanceRecord) bool {
	if g == nil || other == nil {
		return g == other
	}
	return g.Key == other.Key &&
		g.Realm == other.Realm &&
		g.GovernedAccount == other.GovernedAccount &&
		g.ProposalsCount == other.ProposalsCount &&
		g.MaxVotingTime == other.MaxVotingTime &&
		g.Kind == other.Kind
}

// RealmRecord holds realm identity data recorded when seeding
type RealmRecord struct {
	Key           governance.Pubkey  `cbor:"1,keyasint"`
	Name          string             `cbor:"2,keyasint"`
	CommunityMint governance.Pubkey  `cbor:"3,keyasint"`
	CouncilMint   *governance.Pubkey `cbor:"4,keyasint"`
	UpdatedAt     time.Time          `cbor:"5,keyasint"`
}

// RealmConfig holds the identifiers the store was created for
type RealmConfig struct {
	ProgramId     governance.Pubkey `cbor:"1,keyasint"`
	RealmKey      governance.Pubkey `cbor:"2,keyasint"`
	CouncilMint   governance.Pubkey `cbor:"3,keyasint"`
	CommunityMint governance.Pubkey `cbor:"4,keyasint"`
	GovernanceKey governance.Pubkey `cbor:"5,keyasint"`
	SeededAt      time.Time         `cbor:"6,keyasint"`
}

// Matches compares the identifiers, ignoring the seed time
func (c *RealmConfig) Matches(other *RealmConfig) bool {
	return c.ProgramId == other.ProgramId &&
		c.RealmKey == other.RealmKey &&
		c.CouncilMint == other.CouncilMint &&
		c.CommunityMint == other.CommunityMint &&
		c.GovernanceKey == other.GovernanceKey
}

var cborEncMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func encodeRecord(v any) ([]byte, error) {
	data, err := cborEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrStorage, err)
	}
	return data, nil
}

func decodeRecord(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrStorage, err)
	}
	return nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}

func proposalKey(key governance.Pubkey) []byte {
	return append([]byte(proposalKeyPrefix), key[:]...)
}

func votingIndexKey(key governance.Pubkey) []byte {
	return append([]byte(votingIndexKeyPrefix), key[:]...)
}

func governanceKey(key governance.Pubkey) []byte {
	return append([]byte(governanceKeyPrefix), key[:]...)
}

func realmKey(key governance.Pubkey) []byte {
	return append([]byte(realmKeyPrefix), key[:]...)
}
