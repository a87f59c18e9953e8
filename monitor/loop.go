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

package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sol-farm/realms-bot/event"
)

var ErrLoopRunning = errors.New("poll loop already running")

type LoopConfig struct {
	Scheduler        *Scheduler
	Source           SnapshotSource
	EventBus         *event.EventBus
	Logger           *slog.Logger
	PollInterval     time.Duration
	ReminderInterval time.Duration
	// Upper bound for a single cycle or sweep, including every network call
	CycleTimeout time.Duration
	// Clock override for tests
	Now func() time.Time
}

// Loop drives the fetch-diff-notify cycle and the reminder sweep as two
// independent periodic jobs. Each job is a singleton: a run that is still
// going when the next tick fires causes that tick to be skipped
type Loop struct {
	config  LoopConfig
	logger  *slog.Logger
	now     func() time.Time
	cron    gocron.Scheduler
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("poll loop requires a scheduler")
	}
	if cfg.Source == nil {
		cfg.Source = cfg.Scheduler.config.Source
	}
	if cfg.Source == nil {
		return nil, errors.New("poll loop requires a snapshot source")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = DefaultReminderInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	l := &Loop{
		config: cfg,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l, nil
}

// Start schedules both jobs. The first run of each happens right away
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrLoopRunning
	}
	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(l.logger.With("component", "monitor")),
		gocron.WithStopTimeout(l.config.CycleTimeout+5*time.Second),
	)
	if err != nil {
		return fmt.Errorf("create job scheduler: %w", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.ctx = loopCtx
	l.cancel = cancel
	jobs := []struct {
		name     string
		interval time.Duration
		task     func()
	}{
		{name: "poll", interval: l.config.PollInterval, task: l.pollJob},
		{name: "reminders", interval: l.config.ReminderInterval, task: l.reminderJob},
	}
	for _, job := range jobs {
		_, err := cron.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(job.task),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			_ = cron.Shutdown()
			return fmt.Errorf("schedule %s job: %w", job.name, err)
		}
	}
	cron.Start()
	l.cron = cron
	l.running = true
	l.logger.Info(
		fmt.Sprintf(
			"polling every %s, reminder sweep every %s, reminders every %s",
			l.config.PollInterval,
			l.config.ReminderInterval,
			l.config.Scheduler.config.NotificationFrequency,
		),
		"component", "monitor",
	)
	return nil
}

// Stop cancels in-flight runs and waits for them to return
func (l *Loop) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return nil
	}
	l.running = false
	l.cancel()
	if err := l.cron.Shutdown(); err != nil {
		return fmt.Errorf("stop job scheduler: %w", err)
	}
	l.logger.Info("poll loop stopped", "component", "monitor")
	return nil
}

func (l *Loop) pollJob() {
	// Errors are logged and reported by RunCycle
	_, _ = l.RunCycle(l.ctx)
}

func (l *Loop) reminderJob() {
	_, _ = l.RunReminders(l.ctx)
}

// RunCycle fetches a snapshot and processes it. A fetch failure aborts the
// cycle without touching the store
func (l *Loop) RunCycle(ctx context.Context) (*CycleResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.CycleTimeout)
	defer cancel()
	start := l.now()
	result, err := l.runCycle(ctx)
	duration := l.now().Sub(start)
	metrics := l.config.Scheduler.metrics
	if metrics != nil {
		metrics.cycles.WithLabelValues(resultLabel(err)).Inc()
		metrics.cycleDuration.Observe(duration.Seconds())
		if err == nil {
			metrics.lastCycleEnded.Set(float64(l.now().Unix()))
		}
	}
	evt := event.CycleEvent{
		Duration: duration,
		Error:    err,
	}
	if result != nil {
		evt.Proposals = result.Proposals
		evt.Transitions = result.Transitions
		evt.Updated = result.Updated
		evt.Missing = result.Missing
		evt.Delivered = result.Delivered
		evt.Failed = result.Failed
	}
	if l.config.EventBus != nil {
		l.config.EventBus.PublishAsync(
			event.CycleEventType,
			event.NewEvent(event.CycleEventType, evt),
		)
	}
	if err != nil {
		l.logger.Error(
			"poll cycle failed, retrying next interval",
			"component", "monitor",
			"error", err,
		)
		return result, err
	}
	logFn := l.logger.Debug
	if result.Transitions > 0 || result.Failed > 0 || result.StoreErrors > 0 {
		logFn = l.logger.Info
	}
	logFn(
		fmt.Sprintf(
			"poll cycle finished in %s: %d proposals, %d transitions (%d delivered, %d failed, %d silent), %d refreshed",
			duration,
			result.Proposals,
			result.Transitions,
			result.Delivered,
			result.Failed,
			result.Silent,
			result.Updated,
		),
		"component", "monitor",
	)
	return result, nil
}

func (l *Loop) runCycle(ctx context.Context) (*CycleResult, error) {
	snapshot, err := l.config.Source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	return l.config.Scheduler.ProcessSnapshot(ctx, snapshot)
}

// RunReminders runs one reminder sweep
func (l *Loop) RunReminders(ctx context.Context) (*SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.CycleTimeout)
	defer cancel()
	start := l.now()
	result, err := l.config.Scheduler.ReminderSweep(ctx, start)
	duration := l.now().Sub(start)
	metrics := l.config.Scheduler.metrics
	if metrics != nil {
		metrics.sweeps.WithLabelValues(resultLabel(err)).Inc()
		metrics.sweepDuration.Observe(duration.Seconds())
	}
	evt := event.ReminderSweepEvent{
		Duration: duration,
		Error:    err,
	}
	if result != nil {
		evt.Active = result.Active
		evt.Sent = result.Sent
		evt.Failed = result.Failed
	}
	if l.config.EventBus != nil {
		l.config.EventBus.PublishAsync(
			event.ReminderSweepEventType,
			event.NewEvent(event.ReminderSweepEventType, evt),
		)
	}
	if err != nil {
		l.logger.Error(
			"reminder sweep failed, retrying next interval",
			"component", "monitor",
			"error", err,
		)
		return result, err
	}
	if result.Due > 0 {
		l.logger.Info(
			fmt.Sprintf(
				"reminder sweep finished: %d active, %d due, %d sent, %d failed, %d skipped",
				result.Active,
				result.Due,
				result.Sent,
				result.Failed,
				result.Skipped,
			),
			"component", "monitor",
		)
	}
	return result, nil
}
