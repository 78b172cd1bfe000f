// Package config defines the top-level configuration for the settlement
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mystquest/settler/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SETTLER_* environment
// variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Worker   WorkerConfig   `toml:"worker"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// FeeSplitEntry is one ordered sub-pool share of the platform fee. Percent is
// a decimal fraction string ("0.15" = 15%); order matters because the last
// entry absorbs integer rounding.
type FeeSplitEntry struct {
	Name    string `toml:"name"`
	Percent string `toml:"percent"`
}

// EngineConfig holds the settlement parameters. Amount-like values are
// decimal strings so they survive TOML without floating-point drift.
type EngineConfig struct {
	// FeeRate is the platform fee charged on the losing pool, in [0, 1).
	FeeRate string `toml:"fee_rate"`
	// FeeSplit divides the platform fee across sub-pools in order.
	FeeSplit []FeeSplitEntry `toml:"fee_split"`
	// TreasuryPool receives rounding dust and unclaimed pools. Defaults to
	// the last fee_split entry.
	TreasuryPool string `toml:"treasury_pool"`
	// NoWinnersPolicy is "treasury" or "refund".
	NoWinnersPolicy string `toml:"no_winners_policy"`
	// ExchangeRateUSD is the display-only USD value of 1 MYST. Pool math
	// never converts through it.
	ExchangeRateUSD string `toml:"exchange_rate_usd"`
	// MinWithdrawal and WithdrawalFee are MYST amounts consumed by the
	// withdrawal subsystem; the engine only validates and carries them.
	MinWithdrawal string `toml:"min_withdrawal"`
	WithdrawalFee string `toml:"withdrawal_fee"`
}

// DatabaseConfig holds PostgreSQL / Supabase connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
}

// S3Config holds S3-compatible object storage parameters for the settlement
// report archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel parameters.
type NotifyConfig struct {
	Enabled        bool     `toml:"enabled"`
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"`
}

// WorkerConfig holds resolver worker parameters.
type WorkerConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	BatchSize           int `toml:"batch_size"`
	LockTTLSeconds      int `toml:"lock_ttl_seconds"`
}

// Defaults returns the built-in default configuration. The default fee split
// mirrors production: leaderboard 15, referral 10, wheel 5, treasury 70, with
// treasury last so it absorbs rounding.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			FeeRate: "0.10",
			FeeSplit: []FeeSplitEntry{
				{Name: "leaderboard", Percent: "0.15"},
				{Name: "referral", Percent: "0.10"},
				{Name: "wheel", Percent: "0.05"},
				{Name: "treasury", Percent: "0.70"},
			},
			TreasuryPool:    "treasury",
			NoWinnersPolicy: "treasury",
			ExchangeRateUSD: "0.01",
			MinWithdrawal:   "100",
			WithdrawalFee:   "5",
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			CacheTTLMinutes: 5,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "settler-reports",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "market_cancelled", "invariant_violation"},
		},
		Worker: WorkerConfig{
			PollIntervalSeconds: 15,
			BatchSize:           20,
			LockTTLSeconds:      30,
		},
		Mode:     "worker",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"worker": true,
	"audit":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// SettlementParams converts the engine section into domain parameters,
// parsing the decimal strings. The result still needs engine.NewParams for
// full validation.
func (c *Config) SettlementParams() (domain.SettlementParams, error) {
	rate, err := decimal.NewFromString(c.Engine.FeeRate)
	if err != nil {
		return domain.SettlementParams{}, fmt.Errorf("config: parse fee_rate %q: %w", c.Engine.FeeRate, err)
	}

	split := make([]domain.SubPoolShare, 0, len(c.Engine.FeeSplit))
	for _, e := range c.Engine.FeeSplit {
		p, err := decimal.NewFromString(e.Percent)
		if err != nil {
			return domain.SettlementParams{}, fmt.Errorf("config: parse fee_split %q percent %q: %w", e.Name, e.Percent, err)
		}
		split = append(split, domain.SubPoolShare{Name: e.Name, Percent: p})
	}

	return domain.SettlementParams{
		FeeRate:      rate,
		Split:        split,
		TreasuryPool: c.Engine.TreasuryPool,
		NoWinners:    domain.NoWinnersPolicy(c.Engine.NoWinnersPolicy),
	}, nil
}

// ExchangeRate parses the display-only MYST to USD rate.
func (c *Config) ExchangeRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Engine.ExchangeRateUSD)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("config: parse exchange_rate_usd %q: %w", c.Engine.ExchangeRateUSD, err)
	}
	return rate, nil
}

// Validate checks the configuration for errors and returns a combined error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: worker, audit)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine: parse the decimal fields and bounds-check them. The fee
	// split itself is fully validated by engine.NewParams at wire time;
	// here we fail fast on the obvious misconfigurations.
	if rate, err := decimal.NewFromString(c.Engine.FeeRate); err != nil {
		errs = append(errs, fmt.Sprintf("engine: fee_rate %q is not a decimal", c.Engine.FeeRate))
	} else if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("engine: fee_rate %s must be in [0, 1)", rate))
	}

	if len(c.Engine.FeeSplit) == 0 {
		errs = append(errs, "engine: fee_split must have at least one entry")
	}
	sum := decimal.Zero
	splitOK := true
	for _, e := range c.Engine.FeeSplit {
		if e.Name == "" {
			errs = append(errs, "engine: fee_split entries must be named")
			splitOK = false
			continue
		}
		p, err := decimal.NewFromString(e.Percent)
		if err != nil {
			errs = append(errs, fmt.Sprintf("engine: fee_split %q percent %q is not a decimal", e.Name, e.Percent))
			splitOK = false
			continue
		}
		sum = sum.Add(p)
	}
	if splitOK && len(c.Engine.FeeSplit) > 0 && !sum.Equal(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("engine: fee_split percents sum to %s, want 1", sum))
	}

	switch c.Engine.NoWinnersPolicy {
	case "", "treasury", "refund":
	default:
		errs = append(errs, fmt.Sprintf("engine: no_winners_policy %q (valid: treasury, refund)", c.Engine.NoWinnersPolicy))
	}

	for _, field := range []struct{ name, val string }{
		{"exchange_rate_usd", c.Engine.ExchangeRateUSD},
		{"min_withdrawal", c.Engine.MinWithdrawal},
		{"withdrawal_fee", c.Engine.WithdrawalFee},
	} {
		if d, err := decimal.NewFromString(field.val); err != nil {
			errs = append(errs, fmt.Sprintf("engine: %s %q is not a decimal", field.name, field.val))
		} else if d.IsNegative() {
			errs = append(errs, fmt.Sprintf("engine: %s must not be negative", field.name))
		}
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when s3 is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when s3 is enabled")
		}
	}

	// Notify
	if c.Notify.Enabled {
		hasTelegram := c.Notify.TelegramToken != "" && c.Notify.TelegramChatID != ""
		hasDiscord := c.Notify.DiscordWebhook != ""
		if !hasTelegram && !hasDiscord {
			errs = append(errs, "notify: at least one channel (telegram or discord) must be configured when notify is enabled")
		}
	}

	// Worker
	if c.Worker.PollIntervalSeconds < 1 {
		errs = append(errs, "worker: poll_interval_seconds must be >= 1")
	}
	if c.Worker.BatchSize < 1 {
		errs = append(errs, "worker: batch_size must be >= 1")
	}
	if c.Worker.LockTTLSeconds < 1 {
		errs = append(errs, "worker: lock_ttl_seconds must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
