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
	"testing"
	"time"

	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/monitor"
	"github.com/sol-farm/realms-bot/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NotNil(t, cfg.logger)
	assert.Equal(t, governance.MustParsePubkey(governance.DefaultProgramId), cfg.programId)
	assert.Equal(t, solana.FetchModeScan, cfg.fetchMode)
	assert.Equal(t, NotifierLog, cfg.notifierType)
	assert.Equal(t, monitor.DefaultPollInterval, cfg.pollInterval)
	assert.Equal(t, monitor.DefaultNotificationFrequency, cfg.notificationFrequency)
	assert.Empty(t, cfg.dataDir)
}

func TestConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithRpcUrl("http://127.0.0.1:8899"),
		WithRpcRateLimit(5, 2),
		WithFetchMode(solana.FetchModeIndex),
		WithNotificationFrequency(12*time.Hour),
		WithNatsNotifier("nats://127.0.0.1:4222", "dao.alerts", "DAO"),
		WithChannels("alerts", "status"),
		WithHistory(true, 24*time.Hour),
	)
	assert.Equal(t, "http://127.0.0.1:8899", cfg.rpcUrl)
	assert.InDelta(t, 5.0, cfg.rpcRateLimit, 0)
	assert.Equal(t, 2, cfg.rpcRateBurst)
	assert.Equal(t, solana.FetchModeIndex, cfg.fetchMode)
	assert.Equal(t, 12*time.Hour, cfg.notificationFrequency)
	assert.Equal(t, NotifierNats, cfg.notifierType)
	assert.Equal(t, "dao.alerts", cfg.natsSubject)
	assert.Equal(t, "DAO", cfg.natsStream)
	assert.Equal(t, "alerts", cfg.channelId)
	assert.Equal(t, "status", cfg.statusChannelId)
	assert.True(t, cfg.history)
	assert.Equal(t, 24*time.Hour, cfg.historyRetention)

	// Later options win
	WithDiscordNotifier("token")(&cfg)
	assert.Equal(t, NotifierDiscord, cfg.notifierType)
	assert.Equal(t, "token", cfg.discordBotToken)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return testBotConfig(
			WithRpcUrl("http://127.0.0.1:8899"),
			WithDiscordNotifier("token"),
			WithChannels("alerts", ""),
		)
	}
	cfg := valid()
	require.NoError(t, cfg.validate())

	testDefs := []struct {
		name   string
		modify ConfigOptionFunc
	}{
		{name: "no rpc url", modify: WithRpcUrl("")},
		{name: "no channel", modify: WithChannels("", "")},
		{name: "no bot token", modify: WithDiscordNotifier("")},
		{name: "nats without url", modify: WithNatsNotifier("", "", "")},
		{
			name: "no realm",
			modify: func(c *Config) {
				c.realm = governance.Pubkey{}
			},
		},
		{
			name: "no governance",
			modify: func(c *Config) {
				c.governance = governance.Pubkey{}
			},
		},
		{
			name: "unknown notifier",
			modify: func(c *Config) {
				c.notifierType = "email"
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			cfg := valid()
			testDef.modify(&cfg)
			require.Error(t, cfg.validate())
		})
	}

	// A sink override needs neither notifier settings nor a channel
	cfg = valid()
	WithDiscordNotifier("")(&cfg)
	WithChannels("", "")(&cfg)
	WithSink(newChanSink())(&cfg)
	require.NoError(t, cfg.validate())

	// The log notifier needs no channel
	cfg = valid()
	WithLogNotifier()(&cfg)
	WithChannels("", "")(&cfg)
	require.NoError(t, cfg.validate())

	// A snapshot source replaces the RPC URL
	cfg = valid()
	WithRpcUrl("")(&cfg)
	WithSnapshotSource(newStaticSource(votingProposal(1)))(&cfg)
	require.NoError(t, cfg.validate())
}
