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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sol-farm/realms-bot/database"
	"github.com/sol-farm/realms-bot/database/history"
	"github.com/sol-farm/realms-bot/event"
	"github.com/sol-farm/realms-bot/monitor"
	"github.com/sol-farm/realms-bot/notify"
	"github.com/sol-farm/realms-bot/solana"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Channel id used with the log notifier when none is configured
const logChannelId = "log"

var ErrBotStopped = errors.New("bot has been stopped")

type Bot struct {
	eventBus       *event.EventBus
	db             *database.Database
	historyStore   *history.Store
	recorder       *history.Recorder
	client         *solana.Client
	source         monitor.SnapshotSource
	sink           notify.Sink
	scheduler      *monitor.Scheduler
	loop           *monitor.Loop
	tracerProvider *sdktrace.TracerProvider
	shutdownFuncs  []func(context.Context) error
	config         Config
	done           chan struct{}
	mu             sync.Mutex
	shutdownOnce   sync.Once
}

func New(cfg Config) (*Bot, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.notifierType == NotifierLog && cfg.channelId == "" {
		cfg.channelId = logChannelId
	}
	b := &Bot{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		done:     make(chan struct{}),
	}
	return b, nil
}

// EventBus returns the bot's event bus
func (b *Bot) EventBus() *event.EventBus {
	return b.eventBus
}

// Run opens the store, connects the notifier and starts the poll loop. It
// blocks until Stop is called
func (b *Bot) Run(ctx context.Context) error {
	if err := b.start(ctx); err != nil {
		return err
	}
	// Wait for shutdown signal
	<-b.done
	return nil
}

func (b *Bot) start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.done:
		return ErrBotStopped
	default:
	}
	// Configure tracing
	if b.config.tracing {
		if err := b.setupTracing(ctx); err != nil {
			return err
		}
	}
	if err := b.open(ctx); err != nil {
		return err
	}
	realmName := b.recordRealm(ctx)
	// Configure notifier
	sink, err := b.newSink(ctx)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}
	b.sink = sink
	// Configure notification history
	if b.config.history {
		historyStore, err := history.New(
			history.WithDataDir(b.config.dataDir),
			history.WithLogger(b.config.logger),
			history.WithRetention(b.config.historyRetention),
		)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		b.historyStore = historyStore
		b.recorder = history.NewRecorder(historyStore, b.eventBus)
	}
	// Configure scheduler and poll loop
	var tracerProvider trace.TracerProvider
	if b.tracerProvider != nil {
		tracerProvider = b.tracerProvider
	}
	scheduler, err := monitor.NewScheduler(
		monitor.SchedulerConfig{
			Store:                 b.db,
			Source:                b.source,
			Sink:                  b.sink,
			EventBus:              b.eventBus,
			Logger:                b.config.logger,
			PromRegistry:          b.config.promRegistry,
			TracerProvider:        tracerProvider,
			ChannelId:             b.config.channelId,
			StatusChannelId:       b.config.statusChannelId,
			UIBaseUrl:             b.config.uiBaseUrl,
			NotificationFrequency: b.config.notificationFrequency,
			SendTimeout:           b.config.sendTimeout,
			NotifyStateChanges:    b.config.notifyStateChanges,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	b.scheduler = scheduler
	loop, err := monitor.NewLoop(
		monitor.LoopConfig{
			Scheduler:        b.scheduler,
			EventBus:         b.eventBus,
			Logger:           b.config.logger,
			PollInterval:     b.config.pollInterval,
			ReminderInterval: b.config.reminderInterval,
			CycleTimeout:     b.config.cycleTimeout,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create poll loop: %w", err)
	}
	b.loop = loop
	if b.config.announceStartup {
		b.announce(ctx, realmName)
	}
	if err := b.loop.Start(ctx); err != nil {
		return fmt.Errorf("failed to start poll loop: %w", err)
	}
	b.config.logger.Info(
		fmt.Sprintf(
			"monitoring governance %s of realm %s",
			b.config.governance,
			b.config.realm,
		),
		"component", "bot",
	)
	return nil
}

// Seed stores every current proposal as already notified, so that a fresh
// deployment only reports later transitions
func (b *Bot) Seed(ctx context.Context) (*monitor.SeedResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.open(ctx); err != nil {
		return nil, err
	}
	b.recordRealm(ctx)
	return monitor.Seed(ctx, b.source, b.db, time.Now())
}

// open loads the database, checks the realm identifiers against the ones it
// was created for and sets up the snapshot source
func (b *Bot) open(ctx context.Context) error {
	if b.db == nil {
		db, err := database.New(
			database.WithDataDir(b.config.dataDir),
			database.WithLogger(b.config.logger),
			database.WithPromRegistry(b.config.promRegistry),
		)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		b.db = db
	}
	realmCfg := database.RealmConfig{
		ProgramId:     b.config.programId,
		RealmKey:      b.config.realm,
		CommunityMint: b.config.communityMint,
		GovernanceKey: b.config.governance,
	}
	if b.config.councilMint != nil {
		realmCfg.CouncilMint = *b.config.councilMint
	}
	stored, err := b.db.SeedRealmConfig(realmCfg)
	if err != nil {
		return fmt.Errorf("failed to check realm config: %w", err)
	}
	b.config.logger.Debug(
		fmt.Sprintf(
			"realm config seeded at %s",
			stored.SeededAt.Format(time.RFC3339),
		),
		"component", "bot",
	)
	if b.source != nil {
		return nil
	}
	if b.config.source != nil {
		b.source = b.config.source
		return nil
	}
	client, err := solana.NewClient(
		ctx,
		b.config.rpcUrl,
		solana.WithLogger(b.config.logger),
		solana.WithProgramId(b.config.programId),
		solana.WithRealm(
			b.config.realm,
			b.config.communityMint,
			b.config.councilMint,
		),
		solana.WithGovernance(b.config.governance),
		solana.WithFetchMode(b.config.fetchMode),
		solana.WithCommitment(b.config.commitment),
		solana.WithRequestTimeout(b.config.requestTimeout),
		solana.WithRateLimit(b.config.rpcRateLimit, b.config.rpcRateBurst),
	)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	b.client = client
	b.source = client
	return nil
}

// recordRealm stores the realm account and returns its display name. Failures
// are not fatal, the realm key is used as name instead
func (b *Bot) recordRealm(ctx context.Context) string {
	if b.client == nil {
		return b.config.realm.String()
	}
	realm, err := b.client.GetRealm(ctx)
	if err != nil {
		b.config.logger.Warn(
			fmt.Sprintf("failed to fetch realm %s", b.config.realm),
			"component", "bot",
			"error", err,
		)
		return b.config.realm.String()
	}
	err = b.db.PutRealm(
		database.RealmRecord{
			Key:           realm.Key,
			Name:          realm.Name,
			CommunityMint: realm.CommunityMint,
			CouncilMint:   realm.CouncilMint,
			UpdatedAt:     time.Now(),
		},
	)
	if err != nil {
		b.config.logger.Warn(
			fmt.Sprintf("failed to store realm %s", realm.Key),
			"component", "bot",
			"error", err,
		)
	}
	return realm.Name
}

func (b *Bot) newSink(ctx context.Context) (notify.Sink, error) {
	var sink notify.Sink
	switch {
	case b.config.sink != nil:
		sink = b.config.sink
	case b.config.notifierType == NotifierDiscord:
		discordSink, err := notify.NewDiscordSink(
			b.config.discordBotToken,
			notify.WithDiscordLogger(b.config.logger),
			notify.WithDiscordTimeout(b.config.sendTimeout),
		)
		if err != nil {
			return nil, err
		}
		sink = discordSink
	case b.config.notifierType == NotifierNats:
		natsSink, err := notify.NewNatsSink(
			ctx,
			b.config.natsUrl,
			notify.WithNatsLogger(b.config.logger),
			notify.WithNatsSubject(b.config.natsSubject),
			notify.WithNatsStream(b.config.natsStream),
		)
		if err != nil {
			return nil, err
		}
		sink = natsSink
	default:
		sink = notify.NewLogSink(b.config.logger)
	}
	return notify.NewRateLimitedSink(
		sink,
		b.config.notifierRateLimit,
		b.config.notifierRateBurst,
	), nil
}

func (b *Bot) announce(ctx context.Context, realmName string) {
	if b.config.statusChannelId == "" {
		return
	}
	if err := b.scheduler.Announce(ctx, realmName, b.config.governance); err != nil {
		b.config.logger.Warn(
			"failed to send startup message",
			"component", "bot",
			"error", err,
		)
	}
}

func (b *Bot) Stop() error {
	var err error
	b.shutdownOnce.Do(func() {
		err = b.shutdown()
	})
	return err
}

func (b *Bot) shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if b.config.shutdownTimeout > 0 {
		shutdownTimeout = b.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	b.config.logger.Debug("starting graceful shutdown", "component", "bot")

	// Phase 1: Stop accepting new work
	if b.loop != nil {
		if stopErr := b.loop.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("poll loop shutdown: %w", stopErr))
		}
	}

	// Phase 2: Close outbound connections
	if b.sink != nil {
		if closeErr := b.sink.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("notifier close: %w", closeErr))
		}
	}
	if b.client != nil {
		b.client.Close()
	}

	// Phase 3: Flush history and close database
	if b.eventBus != nil {
		b.eventBus.Stop()
	}
	if b.recorder != nil {
		b.recorder.Stop()
	}
	if b.historyStore != nil {
		if closeErr := b.historyStore.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("history close: %w", closeErr))
		}
	}
	if b.db != nil {
		if closeErr := b.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	for _, fn := range b.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	b.shutdownFuncs = nil

	b.config.logger.Debug("graceful shutdown complete", "component", "bot")
	close(b.done)
	return err
}
