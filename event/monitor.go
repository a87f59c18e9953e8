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

package event

import "time"

const (
	// NotificationEventType is published for every notification delivery attempt
	NotificationEventType = EventType("monitor.notification")
	// CycleEventType is published when a poll cycle finishes
	CycleEventType = EventType("monitor.cycle")
	// ReminderSweepEventType is published when a reminder sweep finishes
	ReminderSweepEventType = EventType("monitor.reminder_sweep")
)

// Notification kinds
const (
	NotificationEnteredVoting = "entered_voting"
	NotificationLeftVoting    = "left_voting"
	NotificationReminder      = "reminder"
	NotificationStateChanged  = "state_changed"
	NotificationStartup       = "startup"
)

// NotificationEvent describes one attempt to deliver a message
type NotificationEvent struct {
	ProposalKey   string
	Kind          string
	PreviousState string
	State         string
	ChannelId     string
	Delivered     bool
	Error         string
}

// CycleEvent summarizes one fetch-diff-notify cycle
type CycleEvent struct {
	Duration    time.Duration
	Error       error
	Proposals   int
	Transitions int
	Updated     int
	Missing     int
	Delivered   int
	Failed      int
}

// ReminderSweepEvent summarizes one reminder sweep
type ReminderSweepEvent struct {
	Duration time.Duration
	Error    error
	Active   int
	Sent     int
	Failed   int
}
