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

package governance

import (
	"fmt"
	"time"
)

// Proposal is the layout-independent projection of a proposal account. Every
// proposal account kind decodes into this shape, which is all the monitor
// looks at
type Proposal struct {
	Key                  Pubkey
	Kind                 AccountType
	Governance           Pubkey
	GoverningTokenMint   Pubkey
	TokenOwnerRecord     Pubkey
	State                ProposalState
	Name                 string
	DescriptionLink      string
	DraftAt              time.Time
	SigningOffAt         *time.Time
	VotingAt             *time.Time
	VotingCompletedAt    *time.Time
	ExecutingAt          *time.Time
	ClosedAt             *time.Time
	YesVotes             uint64
	NoVotes              uint64
	MaxVoteWeight        *uint64
	MaxVotingTime        *uint32
	SignatoriesCount     uint8
	SignatoriesSignedOff uint8
}

// VoteEndsAt returns when voting closes. A per-proposal max voting time takes
// precedence over the governance config value
func (p *Proposal) VoteEndsAt(governanceMaxVotingTime uint32) (time.Time, bool) {
	if p.VotingAt == nil {
		return time.Time{}, false
	}
	maxVotingTime := governanceMaxVotingTime
	if p.MaxVotingTime != nil {
		maxVotingTime = *p.MaxVotingTime
	}
	return p.VotingAt.Add(time.Duration(maxVotingTime) * time.Second), true
}

// HasVoteTimeEnded reports whether the voting window has passed, regardless of
// whether the vote was finalized on chain
func (p *Proposal) HasVoteTimeEnded(governanceMaxVotingTime uint32, now time.Time) bool {
	endsAt, ok := p.VoteEndsAt(governanceMaxVotingTime)
	if !ok {
		return false
	}
	return now.After(endsAt)
}

// DecodeProposal decodes any supported proposal account layout
func DecodeProposal(key Pubkey, data []byte) (*Proposal, error) {
	accountType, err := AccountTypeOf(data)
	if err != nil {
		return nil, err
	}
	var ret *Proposal
	switch accountType {
	case AccountTypeProposalV1:
		ret, err = decodeProposalV1(data)
	case AccountTypeProposalV2:
		ret, err = decodeProposalV2(data)
	default:
		return nil, fmt.Errorf(
			"%w: %s is not a proposal",
			ErrWrongAccountType,
			accountType,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", accountType, key, err)
	}
	if !ret.State.Valid() {
		return nil, fmt.Errorf(
			"decode %s %s: %w: proposal state %d",
			accountType,
			key,
			ErrInvalidEnumVariant,
			ret.State,
		)
	}
	ret.Key = key
	ret.Kind = accountType
	return ret, nil
}

func decodeProposalV1(data []byte) (*Proposal, error) {
	r := newReader(data)
	ret := &Proposal{}
	r.u8() // account type
	ret.Governance = r.pubkey()
	ret.GoverningTokenMint = r.pubkey()
	ret.State = ProposalState(r.u8())
	ret.TokenOwnerRecord = r.pubkey()
	ret.SignatoriesCount = r.u8()
	ret.SignatoriesSignedOff = r.u8()
	ret.YesVotes = r.u64()
	ret.NoVotes = r.u64()
	// instructions executed/count/next index
	r.skip(6)
	ret.DraftAt = time.Unix(r.i64(), 0).UTC()
	ret.SigningOffAt = r.optionTime()
	ret.VotingAt = r.optionTime()
	r.optionU64() // voting_at_slot
	ret.VotingCompletedAt = r.optionTime()
	ret.ExecutingAt = r.optionTime()
	ret.ClosedAt = r.optionTime()
	r.u8() // execution flags
	ret.MaxVoteWeight = r.optionU64()
	if r.option() {
		// vote threshold percentage
		r.skip(2)
	}
	ret.Name = r.string()
	ret.DescriptionLink = r.string()
	if r.err != nil {
		return nil, r.err
	}
	return ret, nil
}

func decodeProposalV2(data []byte) (*Proposal, error) {
	r := newReader(data)
	ret := &Proposal{}
	r.u8() // account type
	ret.Governance = r.pubkey()
	ret.GoverningTokenMint = r.pubkey()
	ret.State = ProposalState(r.u8())
	ret.TokenOwnerRecord = r.pubkey()
	ret.SignatoriesCount = r.u8()
	ret.SignatoriesSignedOff = r.u8()
	switch voteType := r.u8(); voteType {
	case 0:
		// single choice
	case 1:
		// multi choice: choice type, min/max voter options, max winning options
		r.skip(4)
	default:
		if r.err == nil {
			return nil, fmt.Errorf("%w: vote type %d", ErrInvalidEnumVariant, voteType)
		}
	}
	optionCount := r.length()
	for i := 0; i < optionCount && r.err == nil; i++ {
		r.string() // label
		ret.YesVotes += r.u64()
		// vote result, transactions executed/count/next index
		r.skip(7)
	}
	if deny := r.optionU64(); deny != nil {
		ret.NoVotes = *deny
	}
	r.u8()         // reserved
	r.optionU64()  // abstain vote weight
	r.optionTime() // start voting at
	ret.DraftAt = time.Unix(r.i64(), 0).UTC()
	ret.SigningOffAt = r.optionTime()
	ret.VotingAt = r.optionTime()
	r.optionU64() // voting_at_slot
	ret.VotingCompletedAt = r.optionTime()
	ret.ExecutingAt = r.optionTime()
	ret.ClosedAt = r.optionTime()
	r.u8() // execution flags
	ret.MaxVoteWeight = r.optionU64()
	ret.MaxVotingTime = r.optionU32()
	if r.option() {
		// vote threshold, the disabled variant carries no value
		if r.u8() != 2 {
			r.skip(1)
		}
	}
	r.skip(64) // reserved
	ret.Name = r.string()
	ret.DescriptionLink = r.string()
	// trailing veto vote weight is absent on older program versions
	if r.err != nil {
		return nil, r.err
	}
	return ret, nil
}
