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

package governance_test

import (
	"testing"
	"time"

	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/internal/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePubkey(t *testing.T) {
	key, err := governance.ParsePubkey(governance.DefaultProgramId)
	require.NoError(t, err)
	assert.Equal(t, governance.DefaultProgramId, key.String())
	assert.False(t, key.IsZero())

	_, err = governance.ParsePubkey("not-base58-0OIl")
	require.ErrorIs(t, err, governance.ErrInvalidPubkey)
	// Valid base58 with the wrong length
	_, err = governance.ParsePubkey("3mJr7AoUXx2Wqd")
	require.ErrorIs(t, err, governance.ErrInvalidPubkey)
	_, err = governance.PubkeyFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, governance.ErrInvalidPubkey)
	assert.Panics(t, func() {
		governance.MustParsePubkey("bogus!")
	})
}

func TestPubkeyText(t *testing.T) {
	key := testutil.Key(5)
	text, err := key.MarshalText()
	require.NoError(t, err)
	var decoded governance.Pubkey
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, key, decoded)
	assert.Equal(t, 0, key.Compare(decoded))
	assert.Equal(t, key[:], key.Bytes())
	assert.True(t, governance.Pubkey{}.IsZero())
}

func TestFindProgramAddress(t *testing.T) {
	programId := governance.MustParsePubkey(governance.DefaultProgramId)
	realm := testutil.Key(1)
	mint := testutil.Key(2)
	addr, bump, err := governance.FindProgramAddress(
		[][]byte{[]byte("mint-governance"), realm[:], mint[:]},
		programId,
	)
	require.NoError(t, err)
	// The bump reproduces the same address
	again, err := governance.CreateProgramAddress(
		[][]byte{[]byte("mint-governance"), realm[:], mint[:], {bump}},
		programId,
	)
	require.NoError(t, err)
	assert.Equal(t, addr, again)

	derived, err := governance.MintGovernanceAddress(programId, realm, mint)
	require.NoError(t, err)
	assert.Equal(t, addr, derived)

	// Every higher bump lands on the curve
	for b := int(bump) + 1; b <= 255; b++ {
		_, err := governance.CreateProgramAddress(
			[][]byte{[]byte("mint-governance"), realm[:], mint[:], {byte(b)}},
			programId,
		)
		require.ErrorIs(t, err, governance.ErrInvalidSeeds)
	}

	token, err := governance.TokenGovernanceAddress(programId, realm, mint)
	require.NoError(t, err)
	account, err := governance.AccountGovernanceAddress(programId, realm, mint)
	require.NoError(t, err)
	assert.NotEqual(t, addr, token)
	assert.NotEqual(t, token, account)
}

func TestCreateProgramAddressSeedLimits(t *testing.T) {
	programId := governance.MustParsePubkey(governance.DefaultProgramId)
	_, err := governance.CreateProgramAddress(
		[][]byte{make([]byte, 33)},
		programId,
	)
	require.ErrorIs(t, err, governance.ErrMaxSeedLengthExceeded)
	seeds := make([][]byte, 17)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	_, err = governance.CreateProgramAddress(seeds, programId)
	require.ErrorIs(t, err, governance.ErrMaxSeedLengthExceeded)
}

func TestProposalAddressIndex(t *testing.T) {
	programId := governance.MustParsePubkey(governance.DefaultProgramId)
	first, err := governance.ProposalAddress(programId, testutil.Key(1), testutil.Key(2), 0)
	require.NoError(t, err)
	second, err := governance.ProposalAddress(programId, testutil.Key(1), testutil.Key(2), 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func testProposal() governance.Proposal {
	votingAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signingOffAt := votingAt.Add(-time.Minute)
	maxVoteWeight := uint64(1_000_000)
	return governance.Proposal{
		Governance:           testutil.Key(2),
		GoverningTokenMint:   testutil.Key(3),
		TokenOwnerRecord:     testutil.Key(4),
		State:                governance.ProposalStateVoting,
		Name:                 "Fund the thing",
		DescriptionLink:      "https://example.com/fund",
		DraftAt:              votingAt.Add(-time.Hour),
		SigningOffAt:         &signingOffAt,
		VotingAt:             &votingAt,
		YesVotes:             500,
		NoVotes:              20,
		MaxVoteWeight:        &maxVoteWeight,
		SignatoriesCount:     1,
		SignatoriesSignedOff: 1,
	}
}

func TestDecodeProposalV2(t *testing.T) {
	p := testProposal()
	maxVotingTime := uint32(3600)
	p.MaxVotingTime = &maxVotingTime
	key := testutil.Key(10)
	got, err := governance.DecodeProposal(key, testutil.ProposalV2Data(p))
	require.NoError(t, err)
	assert.Equal(t, key, got.Key)
	assert.Equal(t, governance.AccountTypeProposalV2, got.Kind)
	assert.Equal(t, p.Governance, got.Governance)
	assert.Equal(t, p.GoverningTokenMint, got.GoverningTokenMint)
	assert.Equal(t, p.TokenOwnerRecord, got.TokenOwnerRecord)
	assert.Equal(t, governance.ProposalStateVoting, got.State)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.DescriptionLink, got.DescriptionLink)
	assert.True(t, p.DraftAt.Equal(got.DraftAt))
	require.NotNil(t, got.VotingAt)
	assert.True(t, p.VotingAt.Equal(*got.VotingAt))
	require.NotNil(t, got.SigningOffAt)
	assert.Nil(t, got.ClosedAt)
	assert.Equal(t, uint64(500), got.YesVotes)
	assert.Equal(t, uint64(20), got.NoVotes)
	require.NotNil(t, got.MaxVotingTime)
	assert.Equal(t, uint32(3600), *got.MaxVotingTime)

	// Per-proposal max voting time wins over the governance value
	endsAt, ok := got.VoteEndsAt(86400)
	require.True(t, ok)
	assert.Equal(t, p.VotingAt.Add(time.Hour), endsAt)
	assert.False(t, got.HasVoteTimeEnded(86400, p.VotingAt.Add(30*time.Minute)))
	assert.True(t, got.HasVoteTimeEnded(86400, p.VotingAt.Add(2*time.Hour)))
}

func TestDecodeProposalV1(t *testing.T) {
	p := testProposal()
	p.State = governance.ProposalStateDefeated
	got, err := governance.DecodeProposal(testutil.Key(10), testutil.ProposalV1Data(p))
	require.NoError(t, err)
	assert.Equal(t, governance.AccountTypeProposalV1, got.Kind)
	assert.Equal(t, governance.ProposalStateDefeated, got.State)
	assert.Equal(t, p.Name, got.Name)
	assert.Nil(t, got.MaxVotingTime)
	endsAt, ok := got.VoteEndsAt(86400)
	require.True(t, ok)
	assert.Equal(t, p.VotingAt.Add(24*time.Hour), endsAt)
}

func TestDecodeProposalErrors(t *testing.T) {
	key := testutil.Key(10)
	_, err := governance.DecodeProposal(key, nil)
	require.ErrorIs(t, err, governance.ErrUninitializedAccount)

	gov := testutil.GovernanceData(governance.Governance{Realm: testutil.Key(1)})
	_, err = governance.DecodeProposal(key, gov)
	require.ErrorIs(t, err, governance.ErrWrongAccountType)

	data := testutil.ProposalV2Data(testProposal())
	_, err = governance.DecodeProposal(key, data[:len(data)-5])
	require.ErrorIs(t, err, governance.ErrUnexpectedEOF)
	require.ErrorIs(t, err, governance.ErrDecode)

	// Unknown state byte, located after type, governance, and mint
	bad := append([]byte(nil), data...)
	bad[65] = 42
	_, err = governance.DecodeProposal(key, bad)
	require.ErrorIs(t, err, governance.ErrInvalidEnumVariant)

	// Invalid UTF-8 in the description
	bad = append([]byte(nil), data...)
	bad[len(bad)-1] = 0xff
	_, err = governance.DecodeProposal(key, bad)
	require.ErrorIs(t, err, governance.ErrDecode)
}

func TestDecodeGovernance(t *testing.T) {
	data := testutil.GovernanceData(governance.Governance{
		Realm:                   testutil.Key(1),
		GovernedAccount:         testutil.Key(3),
		ProposalsCount:          12,
		VoteThresholdPercentage: 60,
		MaxVotingTime:           259200,
	})
	got, err := governance.DecodeGovernance(testutil.Key(2), data)
	require.NoError(t, err)
	assert.Equal(t, governance.AccountTypeMintGovernanceV2, got.Kind)
	assert.Equal(t, testutil.Key(1), got.Realm)
	assert.Equal(t, testutil.Key(3), got.GovernedAccount)
	assert.Equal(t, uint32(12), got.ProposalsCount)
	assert.Equal(t, uint8(60), got.VoteThresholdPercentage)
	assert.Equal(t, 72*time.Hour, got.MaxVotingDuration())

	_, err = governance.DecodeGovernance(testutil.Key(2), testutil.ProposalV2Data(testProposal()))
	require.ErrorIs(t, err, governance.ErrWrongAccountType)
}

func TestDecodeRealm(t *testing.T) {
	council := testutil.Key(6)
	data := testutil.RealmData(governance.Realm{
		CommunityMint: testutil.Key(5),
		CouncilMint:   &council,
		Name:          "Sol Farm",
	})
	got, err := governance.DecodeRealm(testutil.Key(1), data)
	require.NoError(t, err)
	assert.Equal(t, "Sol Farm", got.Name)
	assert.Equal(t, testutil.Key(5), got.CommunityMint)
	require.NotNil(t, got.CouncilMint)
	assert.Equal(t, council, *got.CouncilMint)
	assert.Nil(t, got.Authority)
}

func TestDecodeVoteRecords(t *testing.T) {
	v := governance.VoteRecord{
		Proposal:            testutil.Key(10),
		GoverningTokenOwner: testutil.Key(11),
		VoterWeight:         42,
		Vote:                governance.VoteApprove,
	}
	got, err := governance.DecodeVoteRecord(testutil.Key(12), testutil.VoteRecordV2Data(v))
	require.NoError(t, err)
	assert.Equal(t, governance.VoteApprove, got.Vote)
	assert.Equal(t, uint64(42), got.VoterWeight)
	assert.Equal(t, testutil.Key(10), got.Proposal)

	v.Vote = governance.VoteDeny
	v.IsRelinquished = true
	got, err = governance.DecodeVoteRecord(testutil.Key(12), testutil.VoteRecordV1Data(v))
	require.NoError(t, err)
	assert.Equal(t, governance.AccountTypeVoteRecordV1, got.Kind)
	assert.Equal(t, governance.VoteDeny, got.Vote)
	assert.True(t, got.IsRelinquished)
	assert.Equal(t, "Deny", got.Vote.String())
}

func TestDecodeMint(t *testing.T) {
	mint, err := governance.DecodeMint(testutil.Key(3), testutil.MintData(5_000_000, 6))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), mint.Decimals)
	assert.Equal(t, uint64(5_000_000), mint.Supply)
	assert.InDelta(t, 1.25, mint.UIAmount(1_250_000), 1e-9)
	assert.Zero(t, mint.UIAmount(0))

	_, err = governance.DecodeMint(testutil.Key(3), []byte{1, 2, 3})
	require.ErrorIs(t, err, governance.ErrDecode)
}

func TestProposalState(t *testing.T) {
	assert.Equal(t, "Voting", governance.ProposalStateVoting.String())
	assert.True(t, governance.ProposalStateVoting.IsVoting())
	assert.False(t, governance.ProposalStateSucceeded.IsVoting())
	assert.False(t, governance.ProposalState(10).Valid())
	assert.Equal(t, "ProposalState(10)", governance.ProposalState(10).String())
	state, err := governance.ParseProposalState("executingwitherrors")
	require.NoError(t, err)
	assert.Equal(t, governance.ProposalStateExecutingWithErrors, state)
	_, err = governance.ParseProposalState("nope")
	require.Error(t, err)
}

func TestAccountTypes(t *testing.T) {
	assert.True(t, governance.AccountTypeProposalV1.IsProposal())
	assert.True(t, governance.AccountTypeMintGovernanceV2.IsGovernance())
	assert.True(t, governance.AccountTypeRealmV2.IsRealm())
	assert.True(t, governance.AccountTypeVoteRecordV1.IsVoteRecord())
	assert.False(t, governance.AccountTypeRealmV1.IsProposal())
	assert.Equal(t, "MintGovernanceV2", governance.AccountTypeMintGovernanceV2.String())
	assert.Equal(t, "AccountType(99)", governance.AccountType(99).String())
}
