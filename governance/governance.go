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
	"math"
	"time"
)

// Governance is the projection of any governance account layout
type Governance struct {
	Key                     Pubkey
	Kind                    AccountType
	Realm                   Pubkey
	GovernedAccount         Pubkey
	ProposalsCount          uint32
	VoteThresholdPercentage uint8
	MaxVotingTime           uint32
}

// MaxVotingDuration returns the configured voting window
func (g *Governance) MaxVotingDuration() time.Duration {
	return time.Duration(g.MaxVotingTime) * time.Second
}

// DecodeGovernance decodes any supported governance account layout. Only the
// leading config fields shared by every layout are read
func DecodeGovernance(key Pubkey, data []byte) (*Governance, error) {
	accountType, err := AccountTypeOf(data)
	if err != nil {
		return nil, err
	}
	if !accountType.IsGovernance() {
		return nil, fmt.Errorf(
			"%w: %s is not a governance",
			ErrWrongAccountType,
			accountType,
		)
	}
	r := newReader(data)
	ret := &Governance{
		Key:  key,
		Kind: accountType,
	}
	r.u8() // account type
	ret.Realm = r.pubkey()
	ret.GovernedAccount = r.pubkey()
	ret.ProposalsCount = r.u32()
	// vote threshold: variant tag followed by the percentage
	r.u8()
	ret.VoteThresholdPercentage = r.u8()
	r.u64() // min community weight to create proposal
	r.u32() // min transaction hold up time
	ret.MaxVotingTime = r.u32()
	if r.err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", accountType, key, r.err)
	}
	return ret, nil
}

// Realm is the projection of a realm account
type Realm struct {
	Key           Pubkey
	Kind          AccountType
	CommunityMint Pubkey
	CouncilMint   *Pubkey
	Authority     *Pubkey
	Name          string
}

func DecodeRealm(key Pubkey, data []byte) (*Realm, error) {
	accountType, err := AccountTypeOf(data)
	if err != nil {
		return nil, err
	}
	if !accountType.IsRealm() {
		return nil, fmt.Errorf(
			"%w: %s is not a realm",
			ErrWrongAccountType,
			accountType,
		)
	}
	r := newReader(data)
	ret := &Realm{
		Key:  key,
		Kind: accountType,
	}
	r.u8() // account type
	ret.CommunityMint = r.pubkey()
	// config: voter weight addin flags and reserved space
	r.skip(8)
	r.u64() // min community weight to create governance
	// community mint max vote weight source
	r.u8()
	r.u64()
	ret.CouncilMint = r.optionPubkey()
	// reserved space and voting proposal count
	r.skip(8)
	ret.Authority = r.optionPubkey()
	ret.Name = r.string()
	if r.err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", accountType, key, r.err)
	}
	return ret, nil
}

// VoteKind is the direction of a cast vote
type VoteKind uint8

const (
	VoteApprove VoteKind = 0
	VoteDeny    VoteKind = 1
	VoteAbstain VoteKind = 2
	VoteVeto    VoteKind = 3
)

func (v VoteKind) String() string {
	switch v {
	case VoteApprove:
		return "Approve"
	case VoteDeny:
		return "Deny"
	case VoteAbstain:
		return "Abstain"
	case VoteVeto:
		return "Veto"
	default:
		return fmt.Sprintf("VoteKind(%d)", uint8(v))
	}
}

// VoteRecord is a single voter's ballot on a proposal
type VoteRecord struct {
	Key                 Pubkey
	Kind                AccountType
	Proposal            Pubkey
	GoverningTokenOwner Pubkey
	IsRelinquished      bool
	VoterWeight         uint64
	Vote                VoteKind
}

func DecodeVoteRecord(key Pubkey, data []byte) (*VoteRecord, error) {
	accountType, err := AccountTypeOf(data)
	if err != nil {
		return nil, err
	}
	r := newReader(data)
	ret := &VoteRecord{
		Key:  key,
		Kind: accountType,
	}
	r.u8() // account type
	ret.Proposal = r.pubkey()
	ret.GoverningTokenOwner = r.pubkey()
	ret.IsRelinquished = r.bool()
	switch accountType {
	case AccountTypeVoteRecordV1:
		// legacy weight enum: Yes(u64) or No(u64)
		switch tag := r.u8(); tag {
		case 0:
			ret.Vote = VoteApprove
		case 1:
			ret.Vote = VoteDeny
		default:
			if r.err == nil {
				r.err = fmt.Errorf("%w: vote weight %d", ErrInvalidEnumVariant, tag)
			}
		}
		ret.VoterWeight = r.u64()
	case AccountTypeVoteRecordV2:
		ret.VoterWeight = r.u64()
		tag := VoteKind(r.u8())
		switch tag {
		case VoteApprove:
			// ranked choices are not needed for tallies
			r.skip(r.length() * 2)
		case VoteDeny, VoteAbstain, VoteVeto:
		default:
			if r.err == nil {
				r.err = fmt.Errorf("%w: vote %d", ErrInvalidEnumVariant, tag)
			}
		}
		ret.Vote = tag
	default:
		return nil, fmt.Errorf(
			"%w: %s is not a vote record",
			ErrWrongAccountType,
			accountType,
		)
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", accountType, key, r.err)
	}
	return ret, nil
}

// Mint is the subset of an SPL token mint needed to display amounts
type Mint struct {
	Key           Pubkey
	Supply        uint64
	Decimals      uint8
	IsInitialized bool
}

const mintAccountSize = 82

func DecodeMint(key Pubkey, data []byte) (*Mint, error) {
	if len(data) != mintAccountSize {
		return nil, fmt.Errorf(
			"%w: mint %s has %d bytes, expected %d",
			ErrDecode,
			key,
			len(data),
			mintAccountSize,
		)
	}
	r := newReader(data)
	r.skip(36) // mint authority
	ret := &Mint{Key: key}
	ret.Supply = r.u64()
	ret.Decimals = r.u8()
	ret.IsInitialized = r.bool()
	if r.err != nil {
		return nil, fmt.Errorf("decode mint %s: %w", key, r.err)
	}
	if !ret.IsInitialized {
		return nil, fmt.Errorf("mint %s: %w", key, ErrUninitializedAccount)
	}
	return ret, nil
}

// UIAmount scales a raw token amount by the mint decimals
func (m *Mint) UIAmount(amount uint64) float64 {
	if amount == 0 {
		return 0
	}
	return float64(amount) / math.Pow10(int(m.Decimals))
}
