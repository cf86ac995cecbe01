// Package config loads the service configuration: a strict YAML file for
// service shape, environment variables (optionally via .env) for secrets and
// deployment overrides, and an fsnotify watcher for runtime re-application
// of safe settings.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	yaml "go.yaml.in/yaml/v3"
)

// Env carries the environment overrides. Names match the original
// deployment's .env contract.
type Env struct {
	TelegramToken   string `env:"TELEGRAM_TOKEN"`
	DefaultTimezone string `env:"DEFAULT_TZ"`
	MongoURI        string `env:"MONGODB_URI"`
	MongoDB         string `env:"MONGODB_DB"`
}

// LoadEnv reads .env into the process environment. A missing file is fine;
// any other read error is not.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load parses the YAML file at path (strict: unknown keys are errors),
// applies defaults and env overrides, and validates the result.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}

	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	cfg.applyEnv(env)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads and strictly decodes the YAML file, without defaults,
// env overrides, or validation.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(env Env) {
	if env.TelegramToken != "" {
		c.Telegram.Token = env.TelegramToken
	}
	if env.DefaultTimezone != "" {
		c.DefaultTimezone = env.DefaultTimezone
	}
	if env.MongoURI != "" {
		c.Storage.MongoURI = env.MongoURI
		if c.Storage.Driver == "" {
			c.Storage.Driver = "mongo"
		}
	}
	if env.MongoDB != "" {
		c.Storage.MongoDB = env.MongoDB
	}
}

func (c *Config) applyDefaults() {
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "Asia/Ho_Chi_Minh"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data"
	}
	if c.Sweep.Listen == "" {
		c.Sweep.Listen = ":8080"
	}
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "file", "sqlite", "sqlite3", "mongo", "mongodb":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("default_timezone: %w", err)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}

// PollTimeout returns the telegram long-poll timeout, defaulting to 10s.
func (c *Config) PollTimeout() time.Duration {
	d, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// SQLiteBusyTimeout returns the sqlite busy timeout, defaulting to 5s.
func (c *Config) SQLiteBusyTimeout() time.Duration {
	d, err := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return 5 * time.Second
	}
	return d
}
