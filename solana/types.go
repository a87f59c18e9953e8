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
	"encoding/base64"
	"fmt"

	"github.com/sol-farm/realms-bot/governance"
)

// Commitment levels accepted by the RPC
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

// rpcAccount is an account as returned with base64 encoding
type rpcAccount struct {
	Data       []string `json:"data"`
	Owner      string   `json:"owner"`
	Lamports   uint64   `json:"lamports"`
	Executable bool     `json:"executable"`
}

func (a *rpcAccount) decodeData() ([]byte, error) {
	if len(a.Data) != 2 || a.Data[1] != "base64" {
		return nil, fmt.Errorf("%w: unexpected account data encoding", ErrDecode)
	}
	ret, err := base64.StdEncoding.DecodeString(a.Data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return ret, nil
}

type accountInfoResult struct {
	Value   *rpcAccount `json:"value"`
	Context rpcContext  `json:"context"`
}

type multipleAccountsResult struct {
	Value   []*rpcAccount `json:"value"`
	Context rpcContext    `json:"context"`
}

type programAccount struct {
	Account rpcAccount `json:"account"`
	Pubkey  string     `json:"pubkey"`
}

type accountConfig struct {
	Encoding   string `json:"encoding"`
	Commitment string `json:"commitment,omitempty"`
}

type memcmpFilter struct {
	Bytes  string `json:"bytes"`
	Offset int    `json:"offset"`
}

type programAccountsFilter struct {
	Memcmp *memcmpFilter `json:"memcmp,omitempty"`
}

type programAccountsConfig struct {
	Encoding   string                  `json:"encoding"`
	Commitment string                  `json:"commitment,omitempty"`
	Filters    []programAccountsFilter `json:"filters,omitempty"`
}

func memcmpPubkey(offset int, key governance.Pubkey) programAccountsFilter {
	return programAccountsFilter{
		Memcmp: &memcmpFilter{
			Offset: offset,
			Bytes:  key.String(),
		},
	}
}

// Account is a fetched account with its raw data
type Account struct {
	Key   governance.Pubkey
	Owner governance.Pubkey
	Data  []byte
}
