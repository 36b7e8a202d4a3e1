package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CATMARKET_* environment variable overrides, and
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

// applyEnvOverrides reads well-known CATMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "CATMARKET_DATABASE_DSN")
	setStr(&cfg.Database.Host, "CATMARKET_DATABASE_HOST")
	setInt(&cfg.Database.Port, "CATMARKET_DATABASE_PORT")
	setStr(&cfg.Database.Database, "CATMARKET_DATABASE_NAME")
	setStr(&cfg.Database.User, "CATMARKET_DATABASE_USER")
	setStr(&cfg.Database.Password, "CATMARKET_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "CATMARKET_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "CATMARKET_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "CATMARKET_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "CATMARKET_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CATMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CATMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CATMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CATMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CATMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CATMARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CATMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CATMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "CATMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CATMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CATMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CATMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CATMARKET_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CATMARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CATMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CATMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CATMARKET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CATMARKET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CATMARKET_SERVER_RATE_WINDOW")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CATMARKET_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.SweepInterval, "CATMARKET_ARCHIVE_SWEEP_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "CATMARKET_ARCHIVE_RETENTION_DAYS")

	// ── Notifications ──
	setDuration(&cfg.Notifications.RedeliveryInterval, "CATMARKET_NOTIFICATIONS_REDELIVERY_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CATMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CATMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CATMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CATMARKET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CATMARKET_MODE")
	setStr(&cfg.LogLevel, "CATMARKET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
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
