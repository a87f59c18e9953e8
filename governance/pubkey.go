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
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const PubkeySize = 32

var ErrInvalidPubkey = errors.New("invalid public key")

// Pubkey is a 32-byte on-chain account address
type Pubkey [PubkeySize]byte

// ParsePubkey decodes a base58 encoded account address
func ParsePubkey(s string) (Pubkey, error) {
	var ret Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return ret, fmt.Errorf("%w: %q: %w", ErrInvalidPubkey, s, err)
	}
	if len(raw) != PubkeySize {
		return ret, fmt.Errorf(
			"%w: %q decodes to %d bytes",
			ErrInvalidPubkey,
			s,
			len(raw),
		)
	}
	copy(ret[:], raw)
	return ret, nil
}

// MustParsePubkey is like ParsePubkey but panics on error. It is meant for
// well-known constants
func MustParsePubkey(s string) Pubkey {
	ret, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return ret
}

func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var ret Pubkey
	if len(b) != PubkeySize {
		return ret, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidPubkey,
			PubkeySize,
			len(b),
		)
	}
	copy(ret[:], b)
	return ret, nil
}

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) Bytes() []byte {
	return p[:]
}

func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// Compare orders keys by their raw bytes
func (p Pubkey) Compare(other Pubkey) int {
	return bytes.Compare(p[:], other[:])
}

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(data []byte) error {
	tmp, err := ParsePubkey(string(data))
	if err != nil {
		return err
	}
	*p = tmp
	return nil
}
