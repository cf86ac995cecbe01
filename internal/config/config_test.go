package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("driver = %q, want file", cfg.Storage.Driver)
	}
	if cfg.Storage.Path != "./data" {
		t.Fatalf("path = %q", cfg.Storage.Path)
	}
	if cfg.DefaultTimezone != "Asia/Ho_Chi_Minh" {
		t.Fatalf("default_timezone = %q", cfg.DefaultTimezone)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	if cfg.Sweep.Listen != ":8080" {
		t.Fatalf("sweep listen = %q", cfg.Sweep.Listen)
	}
	if cfg.PollTimeout() != 10*time.Second {
		t.Fatalf("poll timeout = %v", cfg.PollTimeout())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "storge:\n  driver: file\n")
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestLoadRejectsBadDriver(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: cassandra\n")
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, "default_timezone: Atlantis/Sunken\n")
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("DEFAULT_TZ", "Europe/London")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("MONGODB_DB", "gretchen_test")

	path := writeConfig(t, "log:\n  level: info\n")
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.DefaultTimezone != "Europe/London" {
		t.Fatalf("default_timezone = %q", cfg.DefaultTimezone)
	}
	// MONGODB_URI implies the mongo driver when none is configured.
	if cfg.Storage.Driver != "mongo" {
		t.Fatalf("driver = %q, want mongo", cfg.Storage.Driver)
	}
	if cfg.Storage.MongoDB != "gretchen_test" {
		t.Fatalf("mongo_db = %q", cfg.Storage.MongoDB)
	}
}

func TestExplicitDriverWinsOverMongoEnv(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	path := writeConfig(t, "storage:\n  driver: file\n  path: ./d\n")
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("driver = %q, want file", cfg.Storage.Driver)
	}
}

func TestDurationFields(t *testing.T) {
	path := writeConfig(t, "telegram:\n  poll_timeout: 30s\nstorage:\n  busy_timeout: 2s\n")
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollTimeout() != 30*time.Second {
		t.Fatalf("poll timeout = %v", cfg.PollTimeout())
	}
	if cfg.SQLiteBusyTimeout() != 2*time.Second {
		t.Fatalf("busy timeout = %v", cfg.SQLiteBusyTimeout())
	}

	bad := writeConfig(t, "telegram:\n  poll_timeout: quick\n")
	if _, err := Load(context.Background(), bad); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
