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

package realmsbot

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/monitor"
	"github.com/sol-farm/realms-bot/notify"
	"github.com/sol-farm/realms-bot/solana"
)

// Notifier types
const (
	NotifierDiscord = "discord"
	NotifierNats    = "nats"
	NotifierLog     = "log"
)

type Config struct {
	promRegistry          prometheus.Registerer
	logger                *slog.Logger
	source                monitor.SnapshotSource
	sink                  notify.Sink
	councilMint           *governance.Pubkey
	dataDir               string
	rpcUrl                string
	commitment            string
	fetchMode             solana.FetchMode
	notifierType          string
	channelId             string
	statusChannelId       string
	uiBaseUrl             string
	discordBotToken       string
	natsUrl               string
	natsSubject           string
	natsStream            string
	rpcRateLimit          float64
	notifierRateLimit     float64
	rpcRateBurst          int
	notifierRateBurst     int
	requestTimeout        time.Duration
	pollInterval          time.Duration
	reminderInterval      time.Duration
	notificationFrequency time.Duration
	cycleTimeout          time.Duration
	sendTimeout           time.Duration
	historyRetention      time.Duration
	shutdownTimeout       time.Duration
	programId             governance.Pubkey
	realm                 governance.Pubkey
	communityMint         governance.Pubkey
	governance            governance.Pubkey
	notifyStateChanges    bool
	announceStartup       bool
	history               bool
	tracing               bool
	tracingStdout         bool
}

func (c *Config) validate() error {
	if c.source == nil && c.rpcUrl == "" {
		return errors.New("no RPC URL specified")
	}
	if c.realm.IsZero() {
		return errors.New("no realm specified")
	}
	if c.governance.IsZero() {
		return errors.New("no governance specified")
	}
	if c.sink != nil {
		return nil
	}
	switch c.notifierType {
	case NotifierDiscord:
		if c.discordBotToken == "" {
			return errors.New("discord notifier requires a bot token")
		}
	case NotifierNats:
		if c.natsUrl == "" {
			return errors.New("nats notifier requires a server URL")
		}
	case NotifierLog:
		return nil
	default:
		return fmt.Errorf("unknown notifier type: %s", c.notifierType)
	}
	if c.channelId == "" {
		return errors.New("no notification channel specified")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the bot config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new bot config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:                slog.New(slog.NewJSONHandler(io.Discard, nil)),
		programId:             governance.MustParsePubkey(governance.DefaultProgramId),
		fetchMode:             solana.FetchModeScan,
		commitment:            solana.DefaultCommitment,
		requestTimeout:        solana.DefaultRequestTimeout,
		notifierType:          NotifierLog,
		pollInterval:          monitor.DefaultPollInterval,
		reminderInterval:      monitor.DefaultReminderInterval,
		notificationFrequency: monitor.DefaultNotificationFrequency,
		cycleTimeout:          monitor.DefaultCycleTimeout,
		sendTimeout:           monitor.DefaultSendTimeout,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithRpcUrl specifies the Solana JSON-RPC endpoint
func WithRpcUrl(rpcUrl string) ConfigOptionFunc {
	return func(c *Config) {
		c.rpcUrl = rpcUrl
	}
}

// WithRpcRateLimit bounds the request rate against the RPC endpoint
func WithRpcRateLimit(perSecond float64, burst int) ConfigOptionFunc {
	return func(c *Config) {
		c.rpcRateLimit = perSecond
		c.rpcRateBurst = burst
	}
}

// WithRequestTimeout specifies the timeout for a single RPC request
func WithRequestTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.requestTimeout = timeout
	}
}

// WithCommitment specifies the commitment level for RPC reads
func WithCommitment(commitment string) ConfigOptionFunc {
	return func(c *Config) {
		c.commitment = commitment
	}
}

// WithFetchMode selects how proposal accounts are discovered
func WithFetchMode(mode solana.FetchMode) ConfigOptionFunc {
	return func(c *Config) {
		c.fetchMode = mode
	}
}

// WithRealm specifies the monitored realm. The council mint is optional
func WithRealm(
	programId governance.Pubkey,
	realm governance.Pubkey,
	communityMint governance.Pubkey,
	councilMint *governance.Pubkey,
	governanceKey governance.Pubkey,
) ConfigOptionFunc {
	return func(c *Config) {
		c.programId = programId
		c.realm = realm
		c.communityMint = communityMint
		c.councilMint = councilMint
		c.governance = governanceKey
	}
}

// WithSnapshotSource replaces the RPC client as the source of proposal
// snapshots. This is mostly useful for tests
func WithSnapshotSource(source monitor.SnapshotSource) ConfigOptionFunc {
	return func(c *Config) {
		c.source = source
	}
}

// WithPollInterval specifies how often the proposal snapshot is fetched
func WithPollInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

// WithReminderInterval specifies how often due reminders are looked for
func WithReminderInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.reminderInterval = interval
	}
}

// WithNotificationFrequency specifies the minimum time between reminders for
// one voting proposal
func WithNotificationFrequency(frequency time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.notificationFrequency = frequency
	}
}

// WithCycleTimeout bounds a single poll cycle or reminder sweep
func WithCycleTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.cycleTimeout = timeout
	}
}

// WithNotifyStateChanges enables messages for changes between non-voting states
func WithNotifyStateChanges(notify bool) ConfigOptionFunc {
	return func(c *Config) {
		c.notifyStateChanges = notify
	}
}

// WithDiscordNotifier delivers notifications as Discord channel messages
func WithDiscordNotifier(botToken string) ConfigOptionFunc {
	return func(c *Config) {
		c.notifierType = NotifierDiscord
		c.discordBotToken = botToken
	}
}

// WithNatsNotifier publishes notifications to a NATS JetStream subject. An
// empty stream name expects the stream to exist already
func WithNatsNotifier(url string, subject string, stream string) ConfigOptionFunc {
	return func(c *Config) {
		c.notifierType = NotifierNats
		c.natsUrl = url
		c.natsSubject = subject
		c.natsStream = stream
	}
}

// WithLogNotifier writes notifications to the logger only
func WithLogNotifier() ConfigOptionFunc {
	return func(c *Config) {
		c.notifierType = NotifierLog
	}
}

// WithSink specifies a notification sink directly, overriding the notifier type
func WithSink(sink notify.Sink) ConfigOptionFunc {
	return func(c *Config) {
		c.sink = sink
	}
}

// WithChannels specifies the channel for proposal notifications and the
// channel for the startup message
func WithChannels(channelId string, statusChannelId string) ConfigOptionFunc {
	return func(c *Config) {
		c.channelId = channelId
		c.statusChannelId = statusChannelId
	}
}

// WithUIBaseUrl specifies the base URL used to link proposals
func WithUIBaseUrl(uiBaseUrl string) ConfigOptionFunc {
	return func(c *Config) {
		c.uiBaseUrl = uiBaseUrl
	}
}

// WithSendTimeout bounds a single notification delivery
func WithSendTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.sendTimeout = timeout
	}
}

// WithNotifierRateLimit bounds the outgoing message rate
func WithNotifierRateLimit(perSecond float64, burst int) ConfigOptionFunc {
	return func(c *Config) {
		c.notifierRateLimit = perSecond
		c.notifierRateBurst = burst
	}
}

// WithAnnounceStartup enables the startup message to the status channel
func WithAnnounceStartup(announce bool) ConfigOptionFunc {
	return func(c *Config) {
		c.announceStartup = announce
	}
}

// WithHistory enables the notification history log. A zero retention keeps
// every entry
func WithHistory(enabled bool, retention time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.history = enabled
		c.historyRetention = retention
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) OTLP collector at localhost:4318
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
