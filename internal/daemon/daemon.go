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

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	realmsbot "github.com/sol-farm/realms-bot"
	"github.com/sol-farm/realms-bot/internal/config"
	"github.com/sol-farm/realms-bot/solana"
)

// BotOptions translates the file/env config into bot options
func BotOptions(
	cfg *config.Config,
	logger *slog.Logger,
) ([]realmsbot.ConfigOptionFunc, error) {
	keys, err := cfg.Realm.Keys()
	if err != nil {
		return nil, err
	}
	fetchMode, err := solana.ParseFetchMode(cfg.Poll.FetchMode)
	if err != nil {
		return nil, err
	}
	opts := []realmsbot.ConfigOptionFunc{
		realmsbot.WithLogger(logger),
		realmsbot.WithDatabasePath(cfg.DatabasePath),
		realmsbot.WithRpcUrl(cfg.RpcUrl),
		realmsbot.WithRpcRateLimit(cfg.Solana.RateLimit, cfg.Solana.RateBurst),
		realmsbot.WithRequestTimeout(
			time.Duration(cfg.Solana.RequestTimeout) * time.Second,
		),
		realmsbot.WithCommitment(cfg.Solana.Commitment),
		realmsbot.WithFetchMode(fetchMode),
		realmsbot.WithRealm(
			keys.ProgramId,
			keys.Realm,
			keys.CommunityMint,
			keys.CouncilMint,
			keys.Governance,
		),
		realmsbot.WithPollInterval(cfg.Poll.IntervalDuration()),
		realmsbot.WithReminderInterval(cfg.Poll.ReminderIntervalDuration()),
		realmsbot.WithNotificationFrequency(
			cfg.Poll.NotificationFrequencyDuration(),
		),
		realmsbot.WithCycleTimeout(cfg.Poll.CycleTimeoutDuration()),
		realmsbot.WithNotifyStateChanges(cfg.Poll.NotifyStateChanges),
		realmsbot.WithChannels(
			cfg.Notifier.ChannelId,
			cfg.Notifier.StatusChannelId,
		),
		realmsbot.WithUIBaseUrl(cfg.Notifier.UIBaseUrl),
		realmsbot.WithSendTimeout(
			time.Duration(cfg.Notifier.SendTimeout) * time.Second,
		),
		realmsbot.WithNotifierRateLimit(
			cfg.Notifier.RateLimit,
			cfg.Notifier.RateBurst,
		),
		realmsbot.WithAnnounceStartup(cfg.Notifier.AnnounceStartup),
		realmsbot.WithHistory(cfg.History.Enabled, cfg.History.Retention()),
		realmsbot.WithTracing(cfg.Tracing.Enabled),
		realmsbot.WithTracingStdout(cfg.Tracing.Stdout),
		realmsbot.WithShutdownTimeout(cfg.ShutdownTimeoutDuration()),
	}
	switch cfg.Notifier.Type {
	case config.NotifierDiscord:
		opts = append(
			opts,
			realmsbot.WithDiscordNotifier(cfg.Notifier.Discord.BotToken),
		)
	case config.NotifierNats:
		opts = append(
			opts,
			realmsbot.WithNatsNotifier(
				cfg.Notifier.Nats.Url,
				cfg.Notifier.Nats.Subject,
				cfg.Notifier.Nats.Stream,
			),
		)
	case config.NotifierLog:
		opts = append(opts, realmsbot.WithLogNotifier())
	default:
		return nil, fmt.Errorf(
			"%w: unknown notifier type: %s",
			config.ErrInvalidConfig,
			cfg.Notifier.Type,
		)
	}
	return opts, nil
}

// New builds a bot from the file/env config. Extra options are applied last
func New(
	cfg *config.Config,
	logger *slog.Logger,
	extraOpts ...realmsbot.ConfigOptionFunc,
) (*realmsbot.Bot, error) {
	opts, err := BotOptions(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extraOpts...)
	return realmsbot.New(realmsbot.NewConfig(opts...))
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(
		fmt.Sprintf(
			"config: rpc=%s realm=%s governance=%s notifier=%s",
			cfg.RpcUrl,
			cfg.Realm.RealmKey,
			cfg.Realm.GovernanceKey,
			cfg.Notifier.Type,
		),
		"component", "daemon",
	)
	shutdownTimeout := cfg.ShutdownTimeoutDuration()
	b, err := New(
		cfg,
		logger,
		// Enable metrics with default prometheus registry
		realmsbot.WithPrometheusRegistry(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component", "daemon",
		)
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "daemon",
				)
				os.Exit(1)
			}
		}()
	}
	shutdownMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer signalCtxStop()

	// Run bot in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- b.Run(signalCtx)
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		shutdownMetrics()
		if err := b.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		if err == nil {
			logger.Info("bot stopped")
			shutdownMetrics()
			return b.Stop()
		}
		logger.Error("bot error", "error", err)
		signalCtxStop()
		if stopErr := b.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}
		shutdownMetrics()
		return err
	}
}
