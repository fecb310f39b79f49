package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidateWithToken(t *testing.T) {
	cfg := Defaults()
	cfg.Feed.Token = "tok"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Engine.MarketMode = "parlay"
	cfg.Engine.InitialBalance = "lots"
	cfg.Feed.Token = ""
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"unknown mode", "market_mode", "initial_balance", "feed: token", "redis: addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestDebugMatchNeedsNoToken(t *testing.T) {
	cfg := Defaults()
	cfg.Feed.DebugMatch = true
	cfg.Mode = "server"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if cfg.NeedsPostgres() {
		t.Error("server mode should not need postgres")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flashbet.toml")
	content := `
mode = "headless"

[engine]
tick_interval = "500ms"
market_mode = "legacy"
initial_balance = "250.50"

[feed]
competitions = ["PL"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FLASHBET_FEED_TOKEN", "secret-token")
	t.Setenv("FLASHBET_ENGINE_CUTOFF_MINUTE", "80")
	t.Setenv("FLASHBET_FEED_COMPETITIONS", "PL, SA ,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "headless" {
		t.Errorf("Mode = %q, want %q", cfg.Mode, "headless")
	}
	if cfg.Engine.TickInterval.Duration != 500*time.Millisecond {
		t.Errorf("TickInterval = %v, want 500ms", cfg.Engine.TickInterval.Duration)
	}
	if cfg.Engine.MarketMode != "legacy" {
		t.Errorf("MarketMode = %q, want %q", cfg.Engine.MarketMode, "legacy")
	}
	if got := cfg.Engine.Balance().String(); got != "250.5" {
		t.Errorf("Balance() = %q, want %q", got, "250.5")
	}
	if cfg.Engine.CutoffMinute != 80 {
		t.Errorf("CutoffMinute = %d, want 80", cfg.Engine.CutoffMinute)
	}
	if cfg.Feed.Token != "secret-token" {
		t.Errorf("Token = %q, want %q", cfg.Feed.Token, "secret-token")
	}
	if len(cfg.Feed.Competitions) != 2 || cfg.Feed.Competitions[1] != "SA" {
		t.Errorf("Competitions = %v, want [PL SA]", cfg.Feed.Competitions)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want default", cfg.Redis.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load() = nil error for missing file")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Feed.Token = "tok"
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "sk"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"feed.token":        out.Feed.Token,
		"postgres.password": out.Postgres.Password,
		"s3.secret_key":     out.S3.SecretKey,
		"notify.discord":    out.Notify.DiscordWebhookURL,
	} {
		if got != "***" {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}
	if out.Redis.Password != "" {
		t.Errorf("empty secret should stay empty, got %q", out.Redis.Password)
	}
	if cfg.Feed.Token != "tok" {
		t.Error("RedactedConfig mutated the original")
	}
	out.Feed.Competitions[0] = "XX"
	if cfg.Feed.Competitions[0] == "XX" {
		t.Error("RedactedConfig shares the competitions slice")
	}
}
