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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultNatsSubject = "realms-bot.notifications"

	// Message headers set on every published notification
	HeaderChannel  = "Realms-Bot-Channel"
	HeaderKind     = "Realms-Bot-Kind"
	HeaderProposal = "Realms-Bot-Proposal"
)

type natsPublisher interface {
	PublishMsg(
		ctx context.Context,
		msg *nats.Msg,
		opts ...jetstream.PublishOpt,
	) (*jetstream.PubAck, error)
}

// NatsSink publishes messages as JSON to a JetStream subject. The message kind
// is appended to the subject, so consumers can filter on
// <subject>.entered_voting and friends
type NatsSink struct {
	conn    *nats.Conn
	js      natsPublisher
	subject string
	stream  string
	logger  *slog.Logger
}

type NatsOptionFunc func(*NatsSink)

// WithNatsLogger specifies the logger object to use for logging messages
func WithNatsLogger(logger *slog.Logger) NatsOptionFunc {
	return func(n *NatsSink) {
		n.logger = logger
	}
}

// WithNatsSubject specifies the subject prefix messages are published under
func WithNatsSubject(subject string) NatsOptionFunc {
	return func(n *NatsSink) {
		if subject != "" {
			n.subject = strings.TrimSuffix(subject, ".")
		}
	}
}

// WithNatsStream creates or updates a stream capturing the subject on connect
func WithNatsStream(stream string) NatsOptionFunc {
	return func(n *NatsSink) {
		n.stream = stream
	}
}

// NewNatsSink connects to the NATS server at url
func NewNatsSink(
	ctx context.Context,
	url string,
	opts ...NatsOptionFunc,
) (*NatsSink, error) {
	n := newNatsSink(nil, opts...)
	conn, err := nats.Connect(
		url,
		nats.Name("realms-bot"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.logger.Warn(
					"disconnected from NATS: "+err.Error(),
					"component", "notify",
				)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			n.logger.Info(
				"reconnected to NATS at "+conn.ConnectedUrl(),
				"component", "notify",
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	n.conn = conn
	n.js = js
	if n.stream != "" {
		_, err := js.CreateOrUpdateStream(
			ctx,
			jetstream.StreamConfig{
				Name:        n.stream,
				Description: "realms-bot proposal notifications",
				Subjects:    []string{n.subject + ".>"},
			},
		)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create stream %s: %w", n.stream, err)
		}
	}
	n.logger.Info(
		fmt.Sprintf("publishing notifications to NATS subject %s.*", n.subject),
		"component", "notify",
		"url", url,
	)
	return n, nil
}

func newNatsSink(js natsPublisher, opts ...NatsOptionFunc) *NatsSink {
	n := &NatsSink{
		js:      js,
		subject: DefaultNatsSubject,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return n
}

// Subject returns the subject a message of the given kind is published to
func (n *NatsSink) Subject(kind string) string {
	if kind == "" {
		return n.subject
	}
	return n.subject + "." + kind
}

// Send publishes msg and waits for the stream acknowledgement
func (n *NatsSink) Send(
	ctx context.Context,
	channelId string,
	msg Message,
) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal message: %w", ErrPermanent, err)
	}
	natsMsg := nats.NewMsg(n.Subject(msg.Kind))
	natsMsg.Data = data
	natsMsg.Header.Set(HeaderChannel, channelId)
	natsMsg.Header.Set(HeaderKind, msg.Kind)
	if msg.ProposalKey != "" {
		natsMsg.Header.Set(HeaderProposal, msg.ProposalKey)
	}
	var pubOpts []jetstream.PublishOpt
	if id := messageId(channelId, msg); id != "" {
		pubOpts = append(pubOpts, jetstream.WithMsgID(id))
	}
	ack, err := n.js.PublishMsg(ctx, natsMsg, pubOpts...)
	if err != nil {
		return classifyNatsError(err)
	}
	n.logger.Debug(
		fmt.Sprintf(
			"published %s message to stream %s (seq %d)",
			msg.Kind,
			ack.Stream,
			ack.Sequence,
		),
		"component", "notify",
	)
	return nil
}

// Close drains and closes the NATS connection
func (n *NatsSink) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

// messageId lets the stream drop a redelivery of the same notification within
// its duplicate window
func messageId(channelId string, msg Message) string {
	if msg.ProposalKey == "" || msg.Timestamp.IsZero() {
		return ""
	}
	return fmt.Sprintf(
		"%s:%s:%s:%d",
		channelId,
		msg.Kind,
		msg.ProposalKey,
		msg.Timestamp.Unix(),
	)
}

func classifyNatsError(err error) error {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code >= http.StatusBadRequest &&
			apiErr.Code < http.StatusInternalServerError &&
			apiErr.Code != http.StatusRequestTimeout {
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if errors.Is(err, nats.ErrBadSubject) ||
		errors.Is(err, nats.ErrMaxPayload) {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
