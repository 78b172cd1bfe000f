package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SETTLER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SETTLER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.FeeRate, "SETTLER_ENGINE_FEE_RATE")
	setStr(&cfg.Engine.TreasuryPool, "SETTLER_ENGINE_TREASURY_POOL")
	setStr(&cfg.Engine.NoWinnersPolicy, "SETTLER_ENGINE_NO_WINNERS_POLICY")
	setStr(&cfg.Engine.ExchangeRateUSD, "SETTLER_ENGINE_EXCHANGE_RATE_USD")
	setStr(&cfg.Engine.MinWithdrawal, "SETTLER_ENGINE_MIN_WITHDRAWAL")
	setStr(&cfg.Engine.WithdrawalFee, "SETTLER_ENGINE_WITHDRAWAL_FEE")

	// ── Database ──
	setStr(&cfg.Database.DSN, "SETTLER_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "SETTLER_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "SETTLER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SETTLER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SETTLER_DATABASE_NAME")
	setStr(&cfg.Database.User, "SETTLER_DATABASE_USER")
	setStr(&cfg.Database.Password, "SETTLER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SETTLER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "SETTLER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SETTLER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SETTLER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SETTLER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SETTLER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SETTLER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SETTLER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SETTLER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SETTLER_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLMinutes, "SETTLER_REDIS_CACHE_TTL_MINUTES")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SETTLER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SETTLER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SETTLER_S3_REGION")
	setStr(&cfg.S3.Bucket, "SETTLER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SETTLER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SETTLER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SETTLER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SETTLER_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setBool(&cfg.Notify.Enabled, "SETTLER_NOTIFY_ENABLED")
	setStr(&cfg.Notify.TelegramToken, "SETTLER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SETTLER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "SETTLER_NOTIFY_DISCORD_WEBHOOK")
	setStringSlice(&cfg.Notify.Events, "SETTLER_NOTIFY_EVENTS")

	// ── Worker ──
	setInt(&cfg.Worker.PollIntervalSeconds, "SETTLER_WORKER_POLL_INTERVAL_SECONDS")
	setInt(&cfg.Worker.BatchSize, "SETTLER_WORKER_BATCH_SIZE")
	setInt(&cfg.Worker.LockTTLSeconds, "SETTLER_WORKER_LOCK_TTL_SECONDS")

	// ── Top level ──
	setStr(&cfg.Mode, "SETTLER_MODE")
	setStr(&cfg.LogLevel, "SETTLER_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
