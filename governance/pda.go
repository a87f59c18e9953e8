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
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	// DefaultProgramId is the SPL governance program deployment used by the
	// public realms UI
	DefaultProgramId = "GovER5Lthms3bLBqWub97yVrMmEogzX7xNjdXpPPCVZw"

	// TokenProgramId is the SPL token program
	TokenProgramId = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	maxSeeds       = 16
	maxSeedLength  = 32
	pdaMarker      = "ProgramDerivedAddress"
	authoritySeed  = "governance"
	mintGovSeed    = "mint-governance"
	tokenGovSeed   = "token-governance"
	accountGovSeed = "account-governance"
)

var (
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrInvalidSeeds          = errors.New("provided seeds do not result in a valid address")
	ErrNoViableBump          = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress derives a program address from the seeds and the
// program id. The result must not lie on the ed25519 curve
func CreateProgramAddress(seeds [][]byte, programId Pubkey) (Pubkey, error) {
	var ret Pubkey
	if len(seeds) > maxSeeds {
		return ret, ErrMaxSeedLengthExceeded
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return ret, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(programId[:])
	h.Write([]byte(pdaMarker))
	copy(ret[:], h.Sum(nil))
	if isOnCurve(ret[:]) {
		return Pubkey{}, ErrInvalidSeeds
	}
	return ret, nil
}

// FindProgramAddress searches for the highest bump seed that yields a valid
// program address
func FindProgramAddress(seeds [][]byte, programId Pubkey) (Pubkey, uint8, error) {
	bumpSeed := []byte{0}
	withBump := make([][]byte, 0, len(seeds)+1)
	withBump = append(withBump, seeds...)
	withBump = append(withBump, bumpSeed)
	for bump := 255; bump >= 0; bump-- {
		bumpSeed[0] = uint8(bump) //nolint:gosec // bounded by loop
		addr, err := CreateProgramAddress(withBump, programId)
		if err == nil {
			return addr, uint8(bump), nil //nolint:gosec // bounded by loop
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// MintGovernanceAddress returns the mint governance account for the given
// realm and governed mint
func MintGovernanceAddress(programId, realm, governedMint Pubkey) (Pubkey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{[]byte(mintGovSeed), realm[:], governedMint[:]},
		programId,
	)
	if err != nil {
		return Pubkey{}, fmt.Errorf("mint governance address: %w", err)
	}
	return addr, nil
}

// TokenGovernanceAddress returns the token governance account for the given
// realm and governed token account
func TokenGovernanceAddress(programId, realm, governedToken Pubkey) (Pubkey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{[]byte(tokenGovSeed), realm[:], governedToken[:]},
		programId,
	)
	if err != nil {
		return Pubkey{}, fmt.Errorf("token governance address: %w", err)
	}
	return addr, nil
}

// AccountGovernanceAddress returns the generic account governance for the
// given realm and governed account
func AccountGovernanceAddress(programId, realm, governedAccount Pubkey) (Pubkey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{[]byte(accountGovSeed), realm[:], governedAccount[:]},
		programId,
	)
	if err != nil {
		return Pubkey{}, fmt.Errorf("account governance address: %w", err)
	}
	return addr, nil
}

// ProposalAddress returns the address of the proposal with the given index
// under a governance account
func ProposalAddress(
	programId, governance, governingTokenMint Pubkey,
	index uint32,
) (Pubkey, error) {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	addr, _, err := FindProgramAddress(
		[][]byte{
			[]byte(authoritySeed),
			governance[:],
			governingTokenMint[:],
			idx[:],
		},
		programId,
	)
	if err != nil {
		return Pubkey{}, fmt.Errorf("proposal address %d: %w", index, err)
	}
	return addr, nil
}
