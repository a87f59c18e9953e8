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

// Package notify delivers proposal notifications to a chat channel or a
// message broker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is returned when the destination asked us to back off
	ErrRateLimited = errors.New("notification rate limited")
	// ErrTransport is returned for timeouts, connection failures and
	// server-side errors. These are worth retrying on the next cycle
	ErrTransport = errors.New("notification transport error")
	// ErrPermanent is returned when the destination rejected the message
	ErrPermanent = errors.New("notification rejected")
)

// RateLimitError carries the back-off hint returned by the destination
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := "notification rate limited"
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("%s, retry after %s", msg, e.RetryAfter)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *RateLimitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRateLimited}
	}
	return []error{ErrRateLimited, e.Err}
}

// Field is a single name/value pair rendered below the message description
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Message is a destination-independent notification
type Message struct {
	Kind        string    `json:"kind"`
	ProposalKey string    `json:"proposalKey,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	Content     string    `json:"content,omitempty"`
	Fields      []Field   `json:"fields,omitempty"`
	Color       int       `json:"color,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Field returns the value of the named field, if present
func (m Message) Field(name string) (string, bool) {
	for _, field := range m.Fields {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// Sink delivers messages to a channel. Implementations must honor ctx
// cancellation and classify failures with ErrRateLimited, ErrTransport or
// ErrPermanent
type Sink interface {
	Send(ctx context.Context, channelId string, msg Message) error
	Close() error
}

// IsRetryable reports whether a failed send may succeed on a later attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrPermanent)
}
