// Package config defines the top-level configuration for the flash betting
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FLASHBET_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Bets     BetsConfig     `toml:"bets"`
	Feed     FeedConfig     `toml:"feed"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig tunes the tick scheduler, match clock and market books.
type EngineConfig struct {
	TickInterval    duration `toml:"tick_interval"`
	DriftTolerance  duration `toml:"drift_tolerance"`
	StaleTimeout    duration `toml:"stale_timeout"`
	GameOverMinute  int      `toml:"game_over_minute"`
	CutoffMinute    int      `toml:"cutoff_minute"`
	MarketMode      string   `toml:"market_mode"`
	InitialBalance  string   `toml:"initial_balance"`
	Workers         int      `toml:"workers"`
	ResolvedHistory int      `toml:"resolved_history"`
}

// Balance parses InitialBalance. Validate guarantees it parses.
func (e EngineConfig) Balance() decimal.Decimal {
	d, err := decimal.NewFromString(e.InitialBalance)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// BetsConfig holds bet placement limits enforced outside the ledger.
type BetsConfig struct {
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     duration `toml:"rate_window"`
	BigWinPayout   string   `toml:"big_win_payout"`
	HistoryLimit   int      `toml:"history_limit"`
	PersistSettled bool     `toml:"persist_settled"`
}

// BigWin parses BigWinPayout. Validate guarantees it parses.
func (b BetsConfig) BigWin() decimal.Decimal {
	d, err := decimal.NewFromString(b.BigWinPayout)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FeedConfig selects and tunes the match data sources.
type FeedConfig struct {
	Enabled         bool     `toml:"enabled"`
	FootballDataURL string   `toml:"football_data_url"`
	Token           string   `toml:"token"`
	Competitions    []string `toml:"competitions"`
	ListInterval    duration `toml:"list_interval"`
	MatchInterval   duration `toml:"match_interval"`
	LookaheadDays   int      `toml:"lookahead_days"`
	DebugMatch      bool     `toml:"debug_match"`
	DebugFixtureID  int64    `toml:"debug_fixture_id"`
	DebugSpeed      float64  `toml:"debug_speed"`
	EventInterval   duration `toml:"event_interval"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	MatchCacheTTL duration `toml:"match_cache_ttl"`
	StreamMaxLen  int      `toml:"stream_max_len"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules the cold-storage export of settled bets.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
	BatchSize     int      `toml:"batch_size"`
	Prefix        string   `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			TickInterval:    duration{time.Second},
			DriftTolerance:  duration{5 * time.Second},
			StaleTimeout:    duration{90 * time.Second},
			GameOverMinute:  120,
			CutoffMinute:    90,
			MarketMode:      "flash",
			InitialBalance:  "1000",
			Workers:         8,
			ResolvedHistory: 20,
		},
		Bets: BetsConfig{
			RateLimit:      10,
			RateWindow:     duration{10 * time.Second},
			BigWinPayout:   "500",
			HistoryLimit:   100,
			PersistSettled: true,
		},
		Feed: FeedConfig{
			Enabled:         true,
			FootballDataURL: "https://api.football-data.org/v4",
			Competitions:    []string{"PL", "SA", "BL1", "CL", "PD", "FL1"},
			ListInterval:    duration{30 * time.Second},
			MatchInterval:   duration{15 * time.Second},
			LookaheadDays:   5,
			DebugMatch:      false,
			DebugFixtureID:  999999,
			DebugSpeed:      1,
			EventInterval:   duration{5 * time.Second},
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			DB:            0,
			PoolSize:      20,
			MaxRetries:    3,
			TLSEnabled:    false,
			MatchCacheTTL: duration{6 * time.Hour},
			StreamMaxLen:  10000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "flashbet",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "flashbet-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       true,
			Interval:      duration{time.Hour},
			RetentionDays: 30,
			BatchSize:     5000,
			Prefix:        "settled_bets",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"feed_stale", "big_win", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":     true,
	"server":   true,
	"headless": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validMarketModes = map[string]bool{
	"flash":  true,
	"legacy": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, server, headless)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.TickInterval.Duration <= 0 {
		errs = append(errs, "engine: tick_interval must be > 0")
	}
	if c.Engine.DriftTolerance.Duration < time.Second {
		errs = append(errs, "engine: drift_tolerance must be >= 1s")
	}
	if !validMarketModes[c.Engine.MarketMode] {
		errs = append(errs, fmt.Sprintf("engine: unknown market_mode %q (valid: flash, legacy)", c.Engine.MarketMode))
	}
	if c.Engine.CutoffMinute < 1 || c.Engine.CutoffMinute > 90 {
		errs = append(errs, fmt.Sprintf("engine: cutoff_minute must be 1-90, got %d", c.Engine.CutoffMinute))
	}
	if c.Engine.GameOverMinute <= 90 {
		errs = append(errs, "engine: game_over_minute must be > 90")
	}
	if d, err := decimal.NewFromString(c.Engine.InitialBalance); err != nil || d.IsNegative() {
		errs = append(errs, fmt.Sprintf("engine: initial_balance %q must be a non-negative decimal", c.Engine.InitialBalance))
	}
	if c.Engine.Workers < 1 {
		errs = append(errs, "engine: workers must be >= 1")
	}

	// Bets
	if c.Bets.RateLimit < 0 {
		errs = append(errs, "bets: rate_limit must be >= 0")
	}
	if c.Bets.RateLimit > 0 && c.Bets.RateWindow.Duration <= 0 {
		errs = append(errs, "bets: rate_window must be > 0 when rate_limit is set")
	}
	if _, err := decimal.NewFromString(c.Bets.BigWinPayout); err != nil {
		errs = append(errs, fmt.Sprintf("bets: big_win_payout %q is not a decimal", c.Bets.BigWinPayout))
	}

	// Feed
	if c.Feed.Enabled && !c.Feed.DebugMatch && c.Feed.Token == "" {
		errs = append(errs, "feed: token is required unless debug_match is set")
	}
	if c.Feed.DebugMatch && c.Feed.DebugSpeed <= 0 {
		errs = append(errs, "feed: debug_speed must be > 0")
	}
	if c.Feed.Enabled && c.Feed.ListInterval.Duration <= 0 {
		errs = append(errs, "feed: list_interval must be > 0")
	}

	// Postgres
	if needsPostgres(c.Mode) {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 and archive
	if needsS3(c.Mode) && c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// needsPostgres returns true for modes that persist audit and bet history.
func needsPostgres(mode string) bool {
	switch strings.ToLower(mode) {
	case "full", "headless":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that archive to object storage.
func needsS3(mode string) bool {
	return strings.ToLower(mode) == "full"
}

// NeedsPostgres reports whether the configured mode needs a database.
func (c *Config) NeedsPostgres() bool { return needsPostgres(c.Mode) }

// NeedsS3 reports whether the configured mode archives to object storage.
func (c *Config) NeedsS3() bool { return needsS3(c.Mode) && c.Archive.Enabled }
