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

import (
	"context"
	"time"

	"github.com/sol-farm/realms-bot/event"
)

const recordTimeout = 5 * time.Second

// Recorder writes notification events from the event bus into the store
type Recorder struct {
	store    *Store
	eventBus *event.EventBus
	subId    event.EventSubscriberId
}

// NewRecorder subscribes to notification events on eventBus
func NewRecorder(store *Store, eventBus *event.EventBus) *Recorder {
	r := &Recorder{
		store:    store,
		eventBus: eventBus,
	}
	r.subId = eventBus.SubscribeFunc(
		event.NotificationEventType,
		r.handleEvent,
	)
	return r
}

func (r *Recorder) handleEvent(evt event.Event) {
	data, ok := evt.Data.(event.NotificationEvent)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	entry := &Entry{
		ProposalKey:   data.ProposalKey,
		Kind:          data.Kind,
		PreviousState: data.PreviousState,
		State:         data.State,
		ChannelId:     data.ChannelId,
		Delivered:     data.Delivered,
		Error:         data.Error,
		CreatedAt:     evt.Timestamp.UTC(),
	}
	if err := r.store.Record(ctx, entry); err != nil {
		r.store.logger.Error(
			"failed to record notification",
			"component", "history",
			"proposal", data.ProposalKey,
			"error", err,
		)
	}
}

// Stop unsubscribes from the event bus
func (r *Recorder) Stop() {
	r.eventBus.Unsubscribe(event.NotificationEventType, r.subId)
}
