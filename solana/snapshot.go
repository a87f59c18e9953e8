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

package solana

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sol-farm/realms-bot/governance"
)

// Snapshot is the set of proposals observed for the monitored governance in
// one fetch
type Snapshot struct {
	FetchedAt  time.Time
	Governance *governance.Governance
	Proposals  map[governance.Pubkey]governance.Proposal
	// Accounts that were returned but could not be decoded
	DecodeErrors map[governance.Pubkey]error
}

// Tally is the aggregated vote weight on a proposal
type Tally struct {
	Approve  float64
	Deny     float64
	Voters   int
	Decimals uint8
}

type mintCache struct {
	mints map[governance.Pubkey]*governance.Mint
	mu    sync.Mutex
}

// GetGovernance fetches and decodes the monitored governance account
func (c *Client) GetGovernance(ctx context.Context) (*governance.Governance, error) {
	account, err := c.GetAccount(ctx, c.governance)
	if err != nil {
		return nil, err
	}
	ret, err := governance.DecodeGovernance(account.Key, account.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return ret, nil
}

// GetRealm fetches and decodes the monitored realm account
func (c *Client) GetRealm(ctx context.Context) (*governance.Realm, error) {
	account, err := c.GetAccount(ctx, c.realm)
	if err != nil {
		return nil, err
	}
	ret, err := governance.DecodeRealm(account.Key, account.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return ret, nil
}

// GetMint fetches a token mint. Mints are cached for the lifetime of the client
func (c *Client) GetMint(
	ctx context.Context,
	key governance.Pubkey,
) (*governance.Mint, error) {
	c.mintCache.mu.Lock()
	cached, ok := c.mintCache.mints[key]
	c.mintCache.mu.Unlock()
	if ok {
		return cached, nil
	}
	account, err := c.GetAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	mint, err := governance.DecodeMint(key, account.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	c.mintCache.mu.Lock()
	if c.mintCache.mints == nil {
		c.mintCache.mints = make(map[governance.Pubkey]*governance.Mint)
	}
	c.mintCache.mints[key] = mint
	c.mintCache.mu.Unlock()
	return mint, nil
}

// Fetch returns the current proposals of the monitored governance. Accounts
// that fail to decode are reported in the snapshot and otherwise skipped
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	gov, err := c.GetGovernance(ctx)
	if err != nil {
		return nil, err
	}
	var accounts []*Account
	switch c.fetchMode {
	case FetchModeIndex:
		accounts, err = c.fetchByIndex(ctx, gov)
	default:
		accounts, err = c.GetProgramAccounts(
			ctx,
			c.programId,
			// Every proposal layout stores the governance right after the
			// account type
			memcmpPubkey(1, c.governance),
		)
	}
	if err != nil {
		return nil, err
	}
	ret := &Snapshot{
		FetchedAt:    time.Now().UTC(),
		Governance:   gov,
		Proposals:    make(map[governance.Pubkey]governance.Proposal, len(accounts)),
		DecodeErrors: make(map[governance.Pubkey]error),
	}
	for _, account := range accounts {
		accountType, err := governance.AccountTypeOf(account.Data)
		if err != nil {
			ret.DecodeErrors[account.Key] = err
			continue
		}
		// Other account kinds share the governance filter
		if !accountType.IsProposal() {
			continue
		}
		proposal, err := governance.DecodeProposal(account.Key, account.Data)
		if err != nil {
			ret.DecodeErrors[account.Key] = err
			continue
		}
		if proposal.Governance != c.governance {
			continue
		}
		ret.Proposals[account.Key] = *proposal
	}
	if len(ret.DecodeErrors) > 0 {
		c.logger.Warn(
			fmt.Sprintf("skipped %d undecodable accounts", len(ret.DecodeErrors)),
			"component", "solana",
		)
	}
	return ret, nil
}

// ProposalAddresses derives the address of every proposal created so far
// under the governance for each governing token mint of the realm
func (c *Client) ProposalAddresses(
	gov *governance.Governance,
) ([]governance.Pubkey, error) {
	mints := []governance.Pubkey{c.communityMint}
	if c.councilMint != nil && !c.councilMint.IsZero() {
		mints = append(mints, *c.councilMint)
	}
	ret := make([]governance.Pubkey, 0, int(gov.ProposalsCount)*len(mints))
	for _, mint := range mints {
		for i := range gov.ProposalsCount {
			addr, err := governance.ProposalAddress(
				c.programId,
				gov.Key,
				mint,
				i,
			)
			if err != nil {
				return nil, err
			}
			ret = append(ret, addr)
		}
	}
	return ret, nil
}

func (c *Client) fetchByIndex(
	ctx context.Context,
	gov *governance.Governance,
) ([]*Account, error) {
	keys, err := c.ProposalAddresses(gov)
	if err != nil {
		return nil, err
	}
	found, err := c.GetMultipleAccounts(ctx, keys)
	if err != nil {
		return nil, err
	}
	ret := make([]*Account, 0, len(found))
	for _, key := range keys {
		if account, ok := found[key]; ok {
			ret = append(ret, account)
		}
	}
	return ret, nil
}

// VoteTally sums the approve and deny weight of the vote records cast on a
// proposal. Relinquished votes are excluded
func (c *Client) VoteTally(
	ctx context.Context,
	proposal governance.Proposal,
) (Tally, error) {
	var ret Tally
	mint, err := c.GetMint(ctx, proposal.GoverningTokenMint)
	if err != nil {
		return ret, err
	}
	ret.Decimals = mint.Decimals
	accounts, err := c.GetProgramAccounts(
		ctx,
		c.programId,
		// Vote records store the proposal right after the account type
		memcmpPubkey(1, proposal.Key),
	)
	if err != nil {
		return ret, err
	}
	var approve, deny uint64
	var decodeErrs []error
	for _, account := range accounts {
		accountType, err := governance.AccountTypeOf(account.Data)
		if err != nil || !accountType.IsVoteRecord() {
			continue
		}
		record, err := governance.DecodeVoteRecord(account.Key, account.Data)
		if err != nil {
			decodeErrs = append(decodeErrs, err)
			continue
		}
		if record.IsRelinquished {
			continue
		}
		switch record.Vote {
		case governance.VoteApprove:
			approve += record.VoterWeight
		case governance.VoteDeny:
			deny += record.VoterWeight
		default:
			continue
		}
		ret.Voters++
	}
	if len(decodeErrs) > 0 {
		c.logger.Debug(
			fmt.Sprintf(
				"skipped %d undecodable vote records for %s",
				len(decodeErrs),
				proposal.Key,
			),
			"component", "solana",
			"error", errors.Join(decodeErrs...),
		)
	}
	ret.Approve = mint.UIAmount(approve)
	ret.Deny = mint.UIAmount(deny)
	return ret, nil
}

// SortedKeys returns the proposal keys of the snapshot in key order
func (s *Snapshot) SortedKeys() []governance.Pubkey {
	ret := make([]governance.Pubkey, 0, len(s.Proposals))
	for key := range s.Proposals {
		ret = append(ret, key)
	}
	slices.SortFunc(ret, func(a, b governance.Pubkey) int {
		return a.Compare(b)
	})
	return ret
}
