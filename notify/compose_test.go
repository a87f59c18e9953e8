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
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sol-farm/realms-bot/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func testComposer() *Composer {
	return NewComposer(
		"https://realms.today/dao/TEST/",
		WithComposerClock(func() time.Time { return testNow }),
	)
}

func testInfo() ProposalInfo {
	var key governance.Pubkey
	key[0] = 7
	endsAt := testNow.Add(50*time.Hour + 30*time.Minute)
	return ProposalInfo{
		Key:             key,
		Name:            "Fund the treasury",
		DescriptionLink: "https://example.com/proposal",
		State:           governance.ProposalStateVoting,
		VoteEndsAt:      &endsAt,
	}
}

func TestEnteredVotingMessage(t *testing.T) {
	c := testComposer()
	info := testInfo()
	msg := c.EnteredVoting(info)
	assert.Equal(t, KindEnteredVoting, msg.Kind)
	assert.Equal(t, "New Proposal Detected", msg.Title)
	assert.Equal(t, info.Key.String(), msg.ProposalKey)
	assert.Equal(t, testNow, msg.Timestamp)
	expectedURL := "https://realms.today/dao/TEST/proposal/" + info.Key.String()
	assert.Equal(t, expectedURL, msg.URL)
	link, ok := msg.Field("proposal")
	require.True(t, ok)
	assert.Equal(t, "["+info.Key.String()+"]("+expectedURL+")", link)
	name, _ := msg.Field("name")
	assert.Equal(t, "Fund the treasury", name)
	description, _ := msg.Field("description")
	assert.Equal(t, "https://example.com/proposal", description)
	_, ok = msg.Field("voting ends")
	assert.True(t, ok)
}

func TestLeftVotingMessage(t *testing.T) {
	info := testInfo()
	info.State = governance.ProposalStateSucceeded
	msg := testComposer().LeftVoting(info)
	assert.Equal(t, KindLeftVoting, msg.Kind)
	state, ok := msg.Field("state")
	require.True(t, ok)
	assert.Equal(t, governance.ProposalStateSucceeded.String(), state)
}

func TestStateChangedMessage(t *testing.T) {
	info := testInfo()
	previous := governance.ProposalStateSucceeded
	info.PreviousState = &previous
	info.State = governance.ProposalStateExecuting
	msg := testComposer().StateChanged(info)
	assert.Equal(t, KindStateChanged, msg.Kind)
	value, _ := msg.Field("previous state")
	assert.Equal(t, previous.String(), value)
	info.PreviousState = nil
	msg = testComposer().StateChanged(info)
	value, _ = msg.Field("previous state")
	assert.Equal(t, "untracked", value)
}

func TestReminderMessage(t *testing.T) {
	c := testComposer()
	msg := c.Reminder(testInfo(), &Tally{Approve: 3.5, Deny: 1})
	assert.Equal(t, KindReminder, msg.Kind)
	assert.Equal(t, "Proposal Voting Stats", msg.Title)
	assert.Equal(t, "stats for proposals accepting votes", msg.Description)
	approve, _ := msg.Field("approval vote count")
	assert.Equal(t, "3.5", approve)
	deny, _ := msg.Field("deny vote count")
	assert.Equal(t, "1", deny)
	timeLeft, _ := msg.Field("time left")
	assert.Equal(t, "50 hours", timeLeft)

	msg = c.Reminder(testInfo(), nil)
	approve, _ = msg.Field("approval vote count")
	assert.Equal(t, TallyUnavailable, approve)
	deny, _ = msg.Field("deny vote count")
	assert.Equal(t, TallyUnavailable, deny)
}

func TestStartupMessage(t *testing.T) {
	var key governance.Pubkey
	key[31] = 1
	msg := testComposer().Startup("Test DAO", key)
	assert.Equal(t, KindStartup, msg.Kind)
	assert.Equal(t, "listening for new proposals", msg.Description)
	assert.Empty(t, msg.ProposalKey)
	realm, _ := msg.Field("realm")
	assert.Equal(t, "Test DAO", realm)
	governanceKey, _ := msg.Field("governance")
	assert.Equal(t, key.String(), governanceKey)
}

func TestDescription(t *testing.T) {
	assert.Equal(t, NoDescription, Description(""))
	assert.Equal(t, NoDescription, Description("   "))
	assert.Equal(t, "short", Description("short"))
	long := strings.Repeat("é", MaxDescriptionLength+10)
	truncated := Description(long)
	assert.Equal(t, MaxDescriptionLength, utf8.RuneCountInString(truncated))
	assert.True(t, utf8.ValidString(truncated))
}

func TestTimeLeft(t *testing.T) {
	assert.Equal(t, "unknown", TimeLeft(nil, testNow))
	past := testNow.Add(-time.Hour)
	assert.Equal(t, "0 hours", TimeLeft(&past, testNow))
	future := testNow.Add(90 * time.Minute)
	assert.Equal(t, "1 hours", TimeLeft(&future, testNow))
}
