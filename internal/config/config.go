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

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sol-farm/realms-bot/governance"
	"github.com/sol-farm/realms-bot/solana"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "realms-bot.config"

const (
	DefaultConfigFile      = "realms-bot.yaml"
	DefaultShutdownTimeout = "30s"
	EnvPrefix              = "realms_bot"
)

const (
	NotifierDiscord = "discord"
	NotifierNats    = "nats"
	NotifierLog     = "log"
)

var ErrInvalidConfig = errors.New("invalid config")

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	RpcUrl          string         `yaml:"rpcUrl"          json:"rpcUrl"          split_words:"true"`
	DatabasePath    string         `yaml:"databasePath"    json:"databasePath"    split_words:"true"`
	LogFile         string         `yaml:"logFile"         json:"logFile"         split_words:"true"`
	BindAddr        string         `yaml:"bindAddr"        json:"bindAddr"        split_words:"true"`
	ShutdownTimeout string         `yaml:"shutdownTimeout" json:"shutdownTimeout" split_words:"true"`
	MetricsPort     uint           `yaml:"metricsPort"     json:"metricsPort"     split_words:"true"`
	Debug           bool           `yaml:"debug"           json:"debug"`
	Realm           RealmConfig    `yaml:"realm"           json:"realm"`
	Poll            PollConfig     `yaml:"poll"            json:"poll"`
	Solana          SolanaConfig   `yaml:"solana"          json:"solana"`
	Notifier        NotifierConfig `yaml:"notifier"        json:"notifier"`
	History         HistoryConfig  `yaml:"history"         json:"history"`
	Tracing         TracingConfig  `yaml:"tracing"         json:"tracing"`
}

// RealmConfig identifies the monitored realm. Only mint based governance is
// supported
type RealmConfig struct {
	ProgramId        string `yaml:"programId"        json:"programId"        split_words:"true"`
	RealmKey         string `yaml:"realmKey"         json:"realmKey"         split_words:"true"`
	CouncilMintKey   string `yaml:"councilMintKey"   json:"councilMintKey"   split_words:"true"`
	CommunityMintKey string `yaml:"communityMintKey" json:"communityMintKey" split_words:"true"`
	GovernanceKey    string `yaml:"governanceKey"    json:"governanceKey"    split_words:"true"`
}

type PollConfig struct {
	// Seconds between snapshot fetches
	Interval uint `yaml:"interval" json:"interval"`
	// Seconds between reminder sweeps
	ReminderInterval uint `yaml:"reminderInterval" json:"reminderInterval" split_words:"true"`
	// Hours between reminders for one proposal
	NotificationFrequency uint   `yaml:"notificationFrequency" json:"notificationFrequency" split_words:"true"`
	CycleTimeout          uint   `yaml:"cycleTimeout"          json:"cycleTimeout"          split_words:"true"`
	FetchMode             string `yaml:"fetchMode"             json:"fetchMode"             split_words:"true"`
	NotifyStateChanges    bool   `yaml:"notifyStateChanges"    json:"notifyStateChanges"    split_words:"true"`
}

type SolanaConfig struct {
	// Seconds
	RequestTimeout uint    `yaml:"requestTimeout" json:"requestTimeout" split_words:"true"`
	Commitment     string  `yaml:"commitment"     json:"commitment"`
	RateLimit      float64 `yaml:"rateLimit"      json:"rateLimit"      split_words:"true"`
	RateBurst      int     `yaml:"rateBurst"      json:"rateBurst"      split_words:"true"`
}

type NotifierConfig struct {
	Type            string        `yaml:"type"            json:"type"`
	ChannelId       string        `yaml:"channelId"       json:"channelId"       split_words:"true"`
	StatusChannelId string        `yaml:"statusChannelId" json:"statusChannelId" split_words:"true"`
	UIBaseUrl       string        `yaml:"uiBaseUrl"       json:"uiBaseUrl"       envconfig:"UI_BASE_URL"`
	SendTimeout     uint          `yaml:"sendTimeout"     json:"sendTimeout"     split_words:"true"`
	RateLimit       float64       `yaml:"rateLimit"       json:"rateLimit"       split_words:"true"`
	RateBurst       int           `yaml:"rateBurst"       json:"rateBurst"       split_words:"true"`
	AnnounceStartup bool          `yaml:"announceStartup" json:"announceStartup" split_words:"true"`
	Discord         DiscordConfig `yaml:"discord"         json:"discord"`
	Nats            NatsConfig    `yaml:"nats"            json:"nats"`
}

type DiscordConfig struct {
	BotToken string `yaml:"botToken" json:"botToken" split_words:"true"`
}

type NatsConfig struct {
	Url     string `yaml:"url"     json:"url"`
	Subject string `yaml:"subject" json:"subject"`
	// JetStream stream to create or update for the subject, empty to use an
	// existing one
	Stream string `yaml:"stream" json:"stream"`
}

type HistoryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Days to keep delivery history, 0 keeps everything
	RetentionDays uint `yaml:"retentionDays" json:"retentionDays" split_words:"true"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Write spans to stdout instead of the OTLP exporter
	Stdout bool `yaml:"stdout" json:"stdout"`
}

// NewDefault returns a config with every default applied and the realm left
// blank
func NewDefault() *Config {
	return &Config{
		RpcUrl:          "https://api.mainnet-beta.solana.com",
		DatabasePath:    ".realms-bot",
		BindAddr:        "0.0.0.0",
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsPort:     12799,
		Realm: RealmConfig{
			ProgramId: governance.DefaultProgramId,
		},
		Poll: PollConfig{
			Interval:              60,
			ReminderInterval:      300,
			NotificationFrequency: 6,
			CycleTimeout:          120,
			FetchMode:             string(solana.FetchModeScan),
		},
		Solana: SolanaConfig{
			RequestTimeout: 30,
			Commitment:     solana.DefaultCommitment,
			RateLimit:      10,
			RateBurst:      5,
		},
		Notifier: NotifierConfig{
			Type:            NotifierDiscord,
			UIBaseUrl:       "https://realms.today/dao",
			SendTimeout:     15,
			RateLimit:       1,
			RateBurst:       5,
			AnnounceStartup: true,
			Nats: NatsConfig{
				Url:     "nats://127.0.0.1:4222",
				Subject: "realms-bot.notifications",
			},
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
	}
}

// LoadConfig reads the YAML (or JSON) config file, then applies environment
// overrides. Variables from a .env file in the working directory or next to
// the config file are loaded first. When configFile is empty the default
// locations are searched and defaults are used if none exists
func LoadConfig(configFile string) (*Config, error) {
	cfg := NewDefault()
	if configFile == "" {
		configFile = findConfigFile()
	}
	envFiles := []string{".env"}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// JSON is a subset of YAML, so exported configs load the same way
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		envFiles = append(envFiles, filepath.Join(filepath.Dir(configFile), ".env"))
	}
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		// Variables already set in the environment take precedence
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	candidates := []string{DefaultConfigFile}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(
			candidates,
			filepath.Join(homeDir, ".realms-bot", DefaultConfigFile),
		)
	}
	candidates = append(
		candidates,
		filepath.Join("/etc/realms-bot", DefaultConfigFile),
	)
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Save writes the config to path as YAML, or as indented JSON when asJSON is
// set. The file is only readable by its owner since it holds credentials
func (c *Config) Save(path string, asJSON bool) error {
	var data []byte
	var err error
	if asJSON {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Fix derives the governance key from the realm and council mint. It reports
// whether the key changed
func (c *Config) Fix() (bool, error) {
	if c.Realm.RealmKey == "" || c.Realm.CouncilMintKey == "" {
		return false, nil
	}
	programId, err := parseKey("realm.programId", c.Realm.ProgramId)
	if err != nil {
		return false, err
	}
	realmKey, err := parseKey("realm.realmKey", c.Realm.RealmKey)
	if err != nil {
		return false, err
	}
	councilMint, err := parseKey("realm.councilMintKey", c.Realm.CouncilMintKey)
	if err != nil {
		return false, err
	}
	governanceKey, err := governance.MintGovernanceAddress(
		programId,
		realmKey,
		councilMint,
	)
	if err != nil {
		return false, fmt.Errorf("failed to derive governance key: %w", err)
	}
	if c.Realm.GovernanceKey == governanceKey.String() {
		return false, nil
	}
	c.Realm.GovernanceKey = governanceKey.String()
	return true, nil
}

// RealmKeys holds the parsed realm identifiers
type RealmKeys struct {
	ProgramId     governance.Pubkey
	Realm         governance.Pubkey
	CommunityMint governance.Pubkey
	CouncilMint   *governance.Pubkey
	Governance    governance.Pubkey
}

// Keys parses the realm identifiers
func (r *RealmConfig) Keys() (*RealmKeys, error) {
	var ret RealmKeys
	var err error
	if ret.ProgramId, err = parseKey("realm.programId", r.ProgramId); err != nil {
		return nil, err
	}
	if ret.Realm, err = parseKey("realm.realmKey", r.RealmKey); err != nil {
		return nil, err
	}
	ret.CommunityMint, err = parseKey("realm.communityMintKey", r.CommunityMintKey)
	if err != nil {
		return nil, err
	}
	if r.CouncilMintKey != "" {
		councilMint, err := parseKey("realm.councilMintKey", r.CouncilMintKey)
		if err != nil {
			return nil, err
		}
		ret.CouncilMint = &councilMint
	}
	if r.GovernanceKey == "" {
		return nil, fmt.Errorf(
			"%w: realm.governanceKey is empty, run 'config fix' to derive it",
			ErrInvalidConfig,
		)
	}
	if ret.Governance, err = parseKey("realm.governanceKey", r.GovernanceKey); err != nil {
		return nil, err
	}
	return &ret, nil
}

// Validate checks that the config is usable for running the bot
func (c *Config) Validate() error {
	var errs []error
	if c.RpcUrl == "" {
		errs = append(errs, fmt.Errorf("%w: rpcUrl is empty", ErrInvalidConfig))
	}
	if _, err := c.Realm.Keys(); err != nil {
		errs = append(errs, err)
	}
	if c.Poll.Interval == 0 {
		errs = append(errs, fmt.Errorf("%w: poll.interval must be positive", ErrInvalidConfig))
	}
	if c.Poll.ReminderInterval == 0 {
		errs = append(
			errs,
			fmt.Errorf("%w: poll.reminderInterval must be positive", ErrInvalidConfig),
		)
	}
	if c.Poll.NotificationFrequency == 0 {
		errs = append(
			errs,
			fmt.Errorf("%w: poll.notificationFrequency must be positive", ErrInvalidConfig),
		)
	}
	if _, err := solana.ParseFetchMode(c.Poll.FetchMode); err != nil {
		errs = append(errs, fmt.Errorf("%w: poll.fetchMode: %w", ErrInvalidConfig, err))
	}
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("%w: shutdownTimeout: %w", ErrInvalidConfig, err))
	}
	switch c.Notifier.Type {
	case NotifierDiscord:
		if c.Notifier.Discord.BotToken == "" {
			errs = append(
				errs,
				fmt.Errorf("%w: notifier.discord.botToken is empty", ErrInvalidConfig),
			)
		}
		if c.Notifier.ChannelId == "" {
			errs = append(
				errs,
				fmt.Errorf("%w: notifier.channelId is empty", ErrInvalidConfig),
			)
		}
	case NotifierNats:
		if c.Notifier.Nats.Url == "" {
			errs = append(errs, fmt.Errorf("%w: notifier.nats.url is empty", ErrInvalidConfig))
		}
		if c.Notifier.ChannelId == "" {
			errs = append(
				errs,
				fmt.Errorf("%w: notifier.channelId is empty", ErrInvalidConfig),
			)
		}
	case NotifierLog:
	default:
		errs = append(
			errs,
			fmt.Errorf(
				"%w: unknown notifier.type %q (must be 'discord', 'nats' or 'log')",
				ErrInvalidConfig,
				c.Notifier.Type,
			),
		)
	}
	return errors.Join(errs...)
}

func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultShutdownTimeout)
	}
	return d
}

func (p *PollConfig) IntervalDuration() time.Duration {
	return time.Duration(p.Interval) * time.Second
}

func (p *PollConfig) ReminderIntervalDuration() time.Duration {
	return time.Duration(p.ReminderInterval) * time.Second
}

func (p *PollConfig) NotificationFrequencyDuration() time.Duration {
	return time.Duration(p.NotificationFrequency) * time.Hour
}

func (p *PollConfig) CycleTimeoutDuration() time.Duration {
	return time.Duration(p.CycleTimeout) * time.Second
}

func (h *HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

func parseKey(name string, value string) (governance.Pubkey, error) {
	key, err := governance.ParsePubkey(value)
	if err != nil {
		return governance.Pubkey{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	return key, nil
}
