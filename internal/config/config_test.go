package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "worker"

[database]
host = "db.internal"
port = 5433

[archive]
sweep_interval = "15m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "worker" {
		t.Fatalf("Mode = %q, want worker", cfg.Mode)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 5433 {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Archive.SweepInterval.Duration != 15*time.Minute {
		t.Fatalf("sweep_interval = %v, want 15m", cfg.Archive.SweepInterval.Duration)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.Port != 8000 {
		t.Fatalf("server port = %d, want default 8000", cfg.Server.Port)
	}
	if cfg.Database.Database != "catmarket" {
		t.Fatalf("database name = %q, want default catmarket", cfg.Database.Database)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[database]
password = "from-file"
`)

	t.Setenv("CATMARKET_DATABASE_PASSWORD", "from-env")
	t.Setenv("CATMARKET_SERVER_PORT", "9090")
	t.Setenv("CATMARKET_SERVER_RATE_WINDOW", "5s")
	t.Setenv("CATMARKET_NOTIFY_EVENTS", "error, tender_accepted")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Password != "from-env" {
		t.Fatalf("password = %q, env override lost", cfg.Database.Password)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.RateWindow.Duration != 5*time.Second {
		t.Fatalf("rate window = %v, want 5s", cfg.Server.RateWindow.Duration)
	}
	if len(cfg.Notify.Events) != 2 || cfg.Notify.Events[0] != "error" {
		t.Fatalf("events = %v", cfg.Notify.Events)
	}
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Archive.RetentionDays = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "redis: addr", "retention_days"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateTelegramPairing(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "token-only"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "telegram") {
		t.Fatalf("got %v, want telegram pairing error", err)
	}

	cfg.Notify.TelegramChatID = "12345"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("paired telegram config rejected: %v", err)
	}
}

func TestValidateSkipsS3WhenArchiveDisabled(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = false
	cfg.S3 = S3Config{}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled archive must not require s3: %v", err)
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "pg-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Notify.TelegramToken = "tg-secret"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"database password": red.Database.Password,
		"server api key":    red.Server.APIKey,
		"s3 secret key":     red.S3.SecretKey,
		"telegram token":    red.Notify.TelegramToken,
	} {
		if strings.Contains(got, "secret") {
			t.Fatalf("%s leaked: %q", name, got)
		}
	}
	// The original is untouched.
	if cfg.Database.Password != "pg-secret" {
		t.Fatal("Redacted mutated the source config")
	}
}
