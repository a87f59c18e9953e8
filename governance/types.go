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
	"strings"
)

// AccountType is the leading discriminator byte of every governance program
// account
type AccountType uint8

const (
	AccountTypeUninitialized         AccountType = 0
	AccountTypeRealmV1               AccountType = 1
	AccountTypeTokenOwnerRecordV1    AccountType = 2
	AccountTypeAccountGovernanceV1   AccountType = 3
	AccountTypeProgramGovernanceV1   AccountType = 4
	AccountTypeProposalV1            AccountType = 5
	AccountTypeSignatoryRecordV1     AccountType = 6
	AccountTypeVoteRecordV1          AccountType = 7
	AccountTypeProposalInstructionV1 AccountType = 8
	AccountTypeMintGovernanceV1      AccountType = 9
	AccountTypeTokenGovernanceV1     AccountType = 10
	AccountTypeRealmConfig           AccountType = 11
	AccountTypeVoteRecordV2          AccountType = 12
	AccountTypeProposalTransactionV2 AccountType = 13
	AccountTypeProposalV2            AccountType = 14
	AccountTypeProgramMetadata       AccountType = 15
	AccountTypeRealmV2               AccountType = 16
	AccountTypeTokenOwnerRecordV2    AccountType = 17
	AccountTypeGovernanceV2          AccountType = 18
	AccountTypeProgramGovernanceV2   AccountType = 19
	AccountTypeMintGovernanceV2      AccountType = 20
	AccountTypeTokenGovernanceV2     AccountType = 21
	AccountTypeSignatoryRecordV2     AccountType = 22
	AccountTypeProposalDeposit       AccountType = 23
	AccountTypeRequiredSignatory     AccountType = 24
	accountTypeCount                             = 25
)

var accountTypeNames = [accountTypeCount]string{
	"Uninitialized",
	"RealmV1",
	"TokenOwnerRecordV1",
	"AccountGovernanceV1",
	"ProgramGovernanceV1",
	"ProposalV1",
	"SignatoryRecordV1",
	"VoteRecordV1",
	"ProposalInstructionV1",
	"MintGovernanceV1",
	"TokenGovernanceV1",
	"RealmConfig",
	"VoteRecordV2",
	"ProposalTransactionV2",
	"ProposalV2",
	"ProgramMetadata",
	"RealmV2",
	"TokenOwnerRecordV2",
	"GovernanceV2",
	"ProgramGovernanceV2",
	"MintGovernanceV2",
	"TokenGovernanceV2",
	"SignatoryRecordV2",
	"ProposalDeposit",
	"RequiredSignatory",
}

func (t AccountType) String() string {
	if int(t) < len(accountTypeNames) {
		return accountTypeNames[t]
	}
	return fmt.Sprintf("AccountType(%d)", uint8(t))
}

// IsProposal returns true for every proposal account layout
func (t AccountType) IsProposal() bool {
	switch t {
	case AccountTypeProposalV1, AccountTypeProposalV2:
		return true
	default:
		return false
	}
}

// IsGovernance returns true for every governance account layout
func (t AccountType) IsGovernance() bool {
	switch t {
	case AccountTypeAccountGovernanceV1,
		AccountTypeProgramGovernanceV1,
		AccountTypeMintGovernanceV1,
		AccountTypeTokenGovernanceV1,
		AccountTypeGovernanceV2,
		AccountTypeProgramGovernanceV2,
		AccountTypeMintGovernanceV2,
		AccountTypeTokenGovernanceV2:
		return true
	default:
		return false
	}
}

func (t AccountType) IsRealm() bool {
	return t == AccountTypeRealmV1 || t == AccountTypeRealmV2
}

func (t AccountType) IsVoteRecord() bool {
	return t == AccountTypeVoteRecordV1 || t == AccountTypeVoteRecordV2
}

// ProposalState mirrors the on-chain proposal lifecycle
type ProposalState uint8

const (
	ProposalStateDraft               ProposalState = 0
	ProposalStateSigningOff          ProposalState = 1
	ProposalStateVoting              ProposalState = 2
	ProposalStateSucceeded           ProposalState = 3
	ProposalStateExecuting           ProposalState = 4
	ProposalStateCompleted           ProposalState = 5
	ProposalStateCancelled           ProposalState = 6
	ProposalStateDefeated            ProposalState = 7
	ProposalStateExecutingWithErrors ProposalState = 8
	ProposalStateVetoed              ProposalState = 9
	proposalStateCount                             = 10
)

var proposalStateNames = [proposalStateCount]string{
	"Draft",
	"SigningOff",
	"Voting",
	"Succeeded",
	"Executing",
	"Completed",
	"Cancelled",
	"Defeated",
	"ExecutingWithErrors",
	"Vetoed",
}

func (s ProposalState) String() string {
	if s.Valid() {
		return proposalStateNames[s]
	}
	return fmt.Sprintf("ProposalState(%d)", uint8(s))
}

func (s ProposalState) Valid() bool {
	return int(s) < len(proposalStateNames)
}

// IsVoting returns true when the proposal accepts votes. This is the only
// state tracked for notifications
func (s ProposalState) IsVoting() bool {
	return s == ProposalStateVoting
}

// ParseProposalState accepts the state name, case-insensitive
func ParseProposalState(name string) (ProposalState, error) {
	for i, n := range proposalStateNames {
		if strings.EqualFold(n, name) {
			return ProposalState(i), nil //nolint:gosec // bounded by table size
		}
	}
	return 0, fmt.Errorf("unknown proposal state: %q", name)
}
