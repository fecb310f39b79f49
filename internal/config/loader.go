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
// built-in defaults, applies FLASHBET_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FLASHBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.TickInterval, "FLASHBET_ENGINE_TICK_INTERVAL")
	setDuration(&cfg.Engine.DriftTolerance, "FLASHBET_ENGINE_DRIFT_TOLERANCE")
	setDuration(&cfg.Engine.StaleTimeout, "FLASHBET_ENGINE_STALE_TIMEOUT")
	setInt(&cfg.Engine.GameOverMinute, "FLASHBET_ENGINE_GAME_OVER_MINUTE")
	setInt(&cfg.Engine.CutoffMinute, "FLASHBET_ENGINE_CUTOFF_MINUTE")
	setStr(&cfg.Engine.MarketMode, "FLASHBET_ENGINE_MARKET_MODE")
	setStr(&cfg.Engine.InitialBalance, "FLASHBET_ENGINE_INITIAL_BALANCE")
	setInt(&cfg.Engine.Workers, "FLASHBET_ENGINE_WORKERS")
	setInt(&cfg.Engine.ResolvedHistory, "FLASHBET_ENGINE_RESOLVED_HISTORY")

	// ── Bets ──
	setInt(&cfg.Bets.RateLimit, "FLASHBET_BETS_RATE_LIMIT")
	setDuration(&cfg.Bets.RateWindow, "FLASHBET_BETS_RATE_WINDOW")
	setStr(&cfg.Bets.BigWinPayout, "FLASHBET_BETS_BIG_WIN_PAYOUT")
	setInt(&cfg.Bets.HistoryLimit, "FLASHBET_BETS_HISTORY_LIMIT")
	setBool(&cfg.Bets.PersistSettled, "FLASHBET_BETS_PERSIST_SETTLED")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "FLASHBET_FEED_ENABLED")
	setStr(&cfg.Feed.FootballDataURL, "FLASHBET_FEED_FOOTBALL_DATA_URL")
	setStr(&cfg.Feed.Token, "FLASHBET_FEED_TOKEN")
	setStr(&cfg.Feed.Token, "FOOTBALL_DATA_TOKEN") // compatibility alias
	setStringSlice(&cfg.Feed.Competitions, "FLASHBET_FEED_COMPETITIONS")
	setDuration(&cfg.Feed.ListInterval, "FLASHBET_FEED_LIST_INTERVAL")
	setDuration(&cfg.Feed.MatchInterval, "FLASHBET_FEED_MATCH_INTERVAL")
	setInt(&cfg.Feed.LookaheadDays, "FLASHBET_FEED_LOOKAHEAD_DAYS")
	setBool(&cfg.Feed.DebugMatch, "FLASHBET_FEED_DEBUG_MATCH")
	setInt64(&cfg.Feed.DebugFixtureID, "FLASHBET_FEED_DEBUG_FIXTURE_ID")
	setFloat64(&cfg.Feed.DebugSpeed, "FLASHBET_FEED_DEBUG_SPEED")
	setDuration(&cfg.Feed.EventInterval, "FLASHBET_FEED_EVENT_INTERVAL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FLASHBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FLASHBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FLASHBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FLASHBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FLASHBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FLASHBET_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.MatchCacheTTL, "FLASHBET_REDIS_MATCH_CACHE_TTL")
	setInt(&cfg.Redis.StreamMaxLen, "FLASHBET_REDIS_STREAM_MAX_LEN")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FLASHBET_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "FLASHBET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FLASHBET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FLASHBET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FLASHBET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FLASHBET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FLASHBET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FLASHBET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FLASHBET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FLASHBET_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FLASHBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FLASHBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "FLASHBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FLASHBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FLASHBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FLASHBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FLASHBET_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "FLASHBET_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "FLASHBET_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "FLASHBET_ARCHIVE_RETENTION_DAYS")
	setInt(&cfg.Archive.BatchSize, "FLASHBET_ARCHIVE_BATCH_SIZE")
	setStr(&cfg.Archive.Prefix, "FLASHBET_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FLASHBET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FLASHBET_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias
	setStringSlice(&cfg.Server.CORSOrigins, "FLASHBET_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "FLASHBET_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FLASHBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FLASHBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FLASHBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FLASHBET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FLASHBET_MODE")
	setStr(&cfg.LogLevel, "FLASHBET_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
