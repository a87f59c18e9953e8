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

package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sol-farm/realms-bot/event"
	"github.com/sol-farm/realms-bot/governance"
)

const (
	MaxDescriptionLength = 512

	NoDescription    = "no description provided"
	TallyUnavailable = "unavailable"
)

// Message kinds
const (
	KindEnteredVoting = event.NotificationEnteredVoting
	KindLeftVoting    = event.NotificationLeftVoting
	KindReminder      = event.NotificationReminder
	KindStateChanged  = event.NotificationStateChanged
	KindStartup       = event.NotificationStartup
)

// Embed colors
const (
	ColorVoting   = 0x2ecc71
	ColorResolved = 0x95a5a6
	ColorReminder = 0x3498db
	ColorInfo     = 0xf1c40f
)

// ProposalInfo is the proposal data rendered into a message
type ProposalInfo struct {
	Key             governance.Pubkey
	Name            string
	DescriptionLink string
	State           governance.ProposalState
	PreviousState   *governance.ProposalState
	VoteEndsAt      *time.Time
}

// Tally is the vote weight rendered into a reminder
type Tally struct {
	Approve float64
	Deny    float64
}

// Composer renders proposal events into messages
type Composer struct {
	uiBaseUrl string
	now       func() time.Time
}

type ComposerOptionFunc func(*Composer)

// WithComposerClock replaces the clock used for timestamps and time left
func WithComposerClock(now func() time.Time) ComposerOptionFunc {
	return func(c *Composer) {
		if now != nil {
			c.now = now
		}
	}
}

// NewComposer returns a composer that links proposals below uiBaseUrl
func NewComposer(uiBaseUrl string, opts ...ComposerOptionFunc) *Composer {
	c := &Composer{
		uiBaseUrl: strings.TrimRight(uiBaseUrl, "/"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProposalURL returns the web UI link for a proposal
func (c *Composer) ProposalURL(key governance.Pubkey) string {
	return fmt.Sprintf("%s/proposal/%s", c.uiBaseUrl, key)
}

func (c *Composer) proposalFields(p ProposalInfo) []Field {
	return []Field{
		{
			Name:  "proposal",
			Value: fmt.Sprintf("[%s](%s)", p.Key, c.ProposalURL(p.Key)),
		},
		{Name: "name", Value: p.Name},
		{Name: "description", Value: Description(p.DescriptionLink)},
	}
}

// EnteredVoting announces a proposal that started accepting votes
func (c *Composer) EnteredVoting(p ProposalInfo) Message {
	fields := c.proposalFields(p)
	if p.VoteEndsAt != nil {
		fields = append(
			fields,
			Field{
				Name:  "voting ends",
				Value: p.VoteEndsAt.UTC().Format(time.RFC1123),
			},
		)
	}
	return Message{
		Kind:        KindEnteredVoting,
		ProposalKey: p.Key.String(),
		Title:       "New Proposal Detected",
		Description: "a new proposal is accepting votes",
		URL:         c.ProposalURL(p.Key),
		Fields:      fields,
		Color:       ColorVoting,
		Timestamp:   c.now().UTC(),
	}
}

// LeftVoting announces a proposal that stopped accepting votes
func (c *Composer) LeftVoting(p ProposalInfo) Message {
	fields := c.proposalFields(p)
	fields = append(fields, Field{Name: "state", Value: p.State.String()})
	return Message{
		Kind:        KindLeftVoting,
		ProposalKey: p.Key.String(),
		Title:       "Proposal Voting Ended",
		Description: "proposal is no longer accepting votes",
		URL:         c.ProposalURL(p.Key),
		Fields:      fields,
		Color:       ColorResolved,
		Timestamp:   c.now().UTC(),
	}
}

// StateChanged reports a transition between two non-voting states
func (c *Composer) StateChanged(p ProposalInfo) Message {
	previous := "untracked"
	if p.PreviousState != nil {
		previous = p.PreviousState.String()
	}
	fields := c.proposalFields(p)
	fields = append(
		fields,
		Field{Name: "previous state", Value: previous, Inline: true},
		Field{Name: "state", Value: p.State.String(), Inline: true},
	)
	return Message{
		Kind:        KindStateChanged,
		ProposalKey: p.Key.String(),
		Title:       "Proposal State Changed",
		Description: fmt.Sprintf("%s -> %s", previous, p.State),
		URL:         c.ProposalURL(p.Key),
		Fields:      fields,
		Color:       ColorInfo,
		Timestamp:   c.now().UTC(),
	}
}

// Reminder renders the periodic voting stats for a proposal. A nil tally is
// rendered as unavailable
func (c *Composer) Reminder(p ProposalInfo, tally *Tally) Message {
	approve := TallyUnavailable
	deny := TallyUnavailable
	if tally != nil {
		approve = formatAmount(tally.Approve)
		deny = formatAmount(tally.Deny)
	}
	now := c.now()
	fields := c.proposalFields(p)
	fields = append(
		fields,
		Field{Name: "approval vote count", Value: approve},
		Field{Name: "deny vote count", Value: deny},
		Field{Name: "time left", Value: TimeLeft(p.VoteEndsAt, now)},
	)
	return Message{
		Kind:        KindReminder,
		ProposalKey: p.Key.String(),
		Title:       "Proposal Voting Stats",
		Description: "stats for proposals accepting votes",
		URL:         c.ProposalURL(p.Key),
		Fields:      fields,
		Color:       ColorReminder,
		Timestamp:   now.UTC(),
	}
}

// Startup announces that the monitor is running
func (c *Composer) Startup(realmName string, governanceKey governance.Pubkey) Message {
	fields := []Field{}
	if realmName != "" {
		fields = append(fields, Field{Name: "realm", Value: realmName})
	}
	fields = append(
		fields,
		Field{Name: "governance", Value: governanceKey.String()},
	)
	return Message{
		Kind:        KindStartup,
		Title:       "Realms Bot Started",
		Description: "listening for new proposals",
		Fields:      fields,
		Color:       ColorInfo,
		Timestamp:   c.now().UTC(),
	}
}

// Description returns the description truncated to MaxDescriptionLength
// characters, or a placeholder when empty
func Description(description string) string {
	if strings.TrimSpace(description) == "" {
		return NoDescription
	}
	if utf8.RuneCountInString(description) <= MaxDescriptionLength {
		return description
	}
	runes := []rune(description)
	return string(runes[:MaxDescriptionLength])
}

// TimeLeft renders the whole hours until endsAt
func TimeLeft(endsAt *time.Time, now time.Time) string {
	if endsAt == nil {
		return "unknown"
	}
	remaining := endsAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("%d hours", int64(remaining/time.Hour))
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
