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

package testutil

import (
	"encoding/binary"
	"time"

	"github.com/sol-farm/realms-bot/governance"
)

// Key returns a deterministic non-zero public key for tests
func Key(seed byte) governance.Pubkey {
	var ret governance.Pubkey
	for i := range ret {
		ret[i] = seed ^ byte(i*7+1)
	}
	return ret
}

// accountWriter produces the little-endian layout read by the governance
// decoders
type accountWriter struct {
	buf []byte
}

func (w *accountWriter) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *accountWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *accountWriter) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *accountWriter) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *accountWriter) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *accountWriter) pubkey(v governance.Pubkey) {
	w.buf = append(w.buf, v[:]...)
}

func (w *accountWriter) string(v string) {
	w.u32(uint32(len(v))) //nolint:gosec // test data
	w.buf = append(w.buf, v...)
}

func (w *accountWriter) zeros(n int) {
	w.buf = append(w.buf, make([]byte, n)...)
}

func (w *accountWriter) optionU64(v *uint64) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.u64(*v)
}

func (w *accountWriter) optionU32(v *uint32) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.u32(*v)
}

func (w *accountWriter) optionTime(v *time.Time) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.u64(uint64(v.Unix())) //nolint:gosec // test data
}

func (w *accountWriter) optionPubkey(v *governance.Pubkey) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.pubkey(*v)
}

// ProposalV2Data encodes p with the current proposal layout
func ProposalV2Data(p governance.Proposal) []byte {
	w := &accountWriter{}
	w.u8(uint8(governance.AccountTypeProposalV2))
	w.pubkey(p.Governance)
	w.pubkey(p.GoverningTokenMint)
	w.u8(uint8(p.State))
	w.pubkey(p.TokenOwnerRecord)
	w.u8(p.SignatoriesCount)
	w.u8(p.SignatoriesSignedOff)
	// single choice vote with one option
	w.u8(0)
	w.u32(1)
	w.string("Approve")
	w.u64(p.YesVotes)
	w.u8(0)
	w.u16(0)
	w.u16(0)
	w.u16(0)
	deny := p.NoVotes
	w.optionU64(&deny)
	// reserved, abstain weight, start voting at
	w.u8(0)
	w.optionU64(nil)
	w.optionTime(nil)
	w.u64(uint64(p.DraftAt.Unix())) //nolint:gosec // test data
	w.optionTime(p.SigningOffAt)
	w.optionTime(p.VotingAt)
	w.optionU64(nil) // voting at slot
	w.optionTime(p.VotingCompletedAt)
	w.optionTime(p.ExecutingAt)
	w.optionTime(p.ClosedAt)
	w.u8(0) // execution flags
	w.optionU64(p.MaxVoteWeight)
	w.optionU32(p.MaxVotingTime)
	// yes vote threshold of 60%
	w.u8(1)
	w.u8(0)
	w.u8(60)
	w.zeros(64)
	w.string(p.Name)
	w.string(p.DescriptionLink)
	return w.buf
}

// ProposalV1Data encodes p with the legacy proposal layout
func ProposalV1Data(p governance.Proposal) []byte {
	w := &accountWriter{}
	w.u8(uint8(governance.AccountTypeProposalV1))
	w.pubkey(p.Governance)
	w.pubkey(p.GoverningTokenMint)
	w.u8(uint8(p.State))
	w.pubkey(p.TokenOwnerRecord)
	w.u8(p.SignatoriesCount)
	w.u8(p.SignatoriesSignedOff)
	w.u64(p.YesVotes)
	w.u64(p.NoVotes)
	w.zeros(6)
	w.u64(uint64(p.DraftAt.Unix())) //nolint:gosec // test data
	w.optionTime(p.SigningOffAt)
	w.optionTime(p.VotingAt)
	w.optionU64(nil)
	w.optionTime(p.VotingCompletedAt)
	w.optionTime(p.ExecutingAt)
	w.optionTime(p.ClosedAt)
	w.u8(0)
	w.optionU64(p.MaxVoteWeight)
	w.u8(0) // no vote threshold
	w.string(p.Name)
	w.string(p.DescriptionLink)
	return w.buf
}

// GovernanceData encodes a mint governance account
func GovernanceData(g governance.Governance) []byte {
	w := &accountWriter{}
	kind := g.Kind
	if kind == 0 {
		kind = governance.AccountTypeMintGovernanceV2
	}
	w.u8(uint8(kind))
	w.pubkey(g.Realm)
	w.pubkey(g.GovernedAccount)
	w.u32(g.ProposalsCount)
	w.u8(0)
	w.u8(g.VoteThresholdPercentage)
	w.u64(1)
	w.u32(0)
	w.u32(g.MaxVotingTime)
	// remaining config fields the decoder does not read
	w.zeros(16)
	return w.buf
}

// RealmData encodes a realm account
func RealmData(r governance.Realm) []byte {
	w := &accountWriter{}
	w.u8(uint8(governance.AccountTypeRealmV2))
	w.pubkey(r.CommunityMint)
	w.zeros(8)
	w.u64(1)
	w.u8(0)
	w.u64(10_000_000_000)
	w.optionPubkey(r.CouncilMint)
	w.zeros(8)
	w.optionPubkey(r.Authority)
	w.string(r.Name)
	return w.buf
}

// VoteRecordV2Data encodes a vote record
func VoteRecordV2Data(v governance.VoteRecord) []byte {
	w := &accountWriter{}
	w.u8(uint8(governance.AccountTypeVoteRecordV2))
	w.pubkey(v.Proposal)
	w.pubkey(v.GoverningTokenOwner)
	w.bool(v.IsRelinquished)
	w.u64(v.VoterWeight)
	w.u8(uint8(v.Vote))
	if v.Vote == governance.VoteApprove {
		// one ranked choice: rank 0, weight 100%
		w.u32(1)
		w.u8(0)
		w.u8(100)
	}
	return w.buf
}

// VoteRecordV1Data encodes a legacy vote record
func VoteRecordV1Data(v governance.VoteRecord) []byte {
	w := &accountWriter{}
	w.u8(uint8(governance.AccountTypeVoteRecordV1))
	w.pubkey(v.Proposal)
	w.pubkey(v.GoverningTokenOwner)
	w.bool(v.IsRelinquished)
	if v.Vote == governance.VoteDeny {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u64(v.VoterWeight)
	return w.buf
}

// MintData encodes an SPL token mint
func MintData(supply uint64, decimals uint8) []byte {
	w := &accountWriter{}
	// no mint authority
	w.u32(0)
	w.zeros(32)
	w.u64(supply)
	w.u8(decimals)
	w.bool(true)
	// no freeze authority
	w.u32(0)
	w.zeros(32)
	return w.buf
}
