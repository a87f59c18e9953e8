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

package history

import "time"

// Entry is one notification delivery attempt
type Entry struct {
	ID            uint   `gorm:"primarykey"`
	ProposalKey   string `gorm:"index;size:44"`
	Kind          string `gorm:"index;size:32"`
	PreviousState string `gorm:"size:32"`
	State         string `gorm:"size:32"`
	ChannelId     string `gorm:"size:64"`
	Delivered     bool
	Error         string
	CreatedAt     time.Time `gorm:"index"`
}

func (Entry) TableName() string {
	return "notification_history"
}
