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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordSink posts messages as embeds through the Discord REST API. It never
// opens a gateway connection
type DiscordSink struct {
	session *discordgo.Session
	logger  *slog.Logger
}

type DiscordOptionFunc func(*DiscordSink)

// WithDiscordLogger specifies the logger object to use for logging messages
func WithDiscordLogger(logger *slog.Logger) DiscordOptionFunc {
	return func(d *DiscordSink) {
		d.logger = logger
	}
}

// WithDiscordHTTPClient replaces the HTTP client used for REST calls
func WithDiscordHTTPClient(client *http.Client) DiscordOptionFunc {
	return func(d *DiscordSink) {
		d.session.Client = client
	}
}

// WithDiscordTimeout bounds each REST call made by the default HTTP client
func WithDiscordTimeout(timeout time.Duration) DiscordOptionFunc {
	return func(d *DiscordSink) {
		if timeout > 0 {
			d.session.Client.Timeout = timeout
		}
	}
}

// NewDiscordSink returns a sink authenticated with the given bot token
func NewDiscordSink(
	botToken string,
	opts ...DiscordOptionFunc,
) (*DiscordSink, error) {
	if botToken == "" {
		return nil, errors.New("discord bot token is required")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	// Rate limits and retries are handled by the caller on the next cycle
	session.ShouldRetryOnRateLimit = false
	session.MaxRestRetries = 0
	session.UserAgent = "realms-bot"
	d := &DiscordSink{
		session: session,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return d, nil
}

// Send posts msg to the channel
func (d *DiscordSink) Send(
	ctx context.Context,
	channelId string,
	msg Message,
) error {
	if channelId == "" {
		return fmt.Errorf("%w: no channel id", ErrPermanent)
	}
	sent, err := d.session.ChannelMessageSendComplex(
		channelId,
		discordMessage(msg),
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return classifyDiscordError(err)
	}
	d.logger.Debug(
		fmt.Sprintf(
			"sent %s message %s to channel %s",
			msg.Kind,
			sent.ID,
			channelId,
		),
		"component", "notify",
	)
	return nil
}

// Close is a no-op, REST-only sessions hold no connections of their own
func (d *DiscordSink) Close() error {
	return nil
}

func discordMessage(msg Message) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       msg.Title,
		Description: msg.Description,
		URL:         msg.URL,
		Color:       msg.Color,
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, field := range msg.Fields {
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{
				Name:   field.Name,
				Value:  field.Value,
				Inline: field.Inline,
			},
		)
	}
	return &discordgo.MessageSend{
		Content: msg.Content,
		Embeds:  []*discordgo.MessageEmbed{embed},
	}
}

func classifyDiscordError(err error) error {
	var rateLimitErr *discordgo.RateLimitError
	if errors.As(err, &rateLimitErr) {
		ret := &RateLimitError{Err: err}
		if rateLimitErr.RateLimit != nil &&
			rateLimitErr.TooManyRequests != nil {
			ret.RetryAfter = rateLimitErr.TooManyRequests.RetryAfter
		}
		return ret
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		status := restErr.Response.StatusCode
		switch {
		case status == http.StatusTooManyRequests:
			return &RateLimitError{Err: err}
		case status == http.StatusRequestTimeout:
			return fmt.Errorf("%w: %w", ErrTransport, err)
		case status >= 400 && status < 500:
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
