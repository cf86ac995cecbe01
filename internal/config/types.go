package config

// Config is the service configuration, loaded from a YAML file with env
// overrides applied on top (see Env and Load). Secrets never live in the file.
type Config struct {
	// DefaultTimezone applies to destinations with no stored preference.
	DefaultTimezone string `yaml:"default_timezone"`

	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Telegram TelegramConfig `yaml:"telegram"`
	Sweep    SweepConfig    `yaml:"sweep"`
}

type LogConfig struct {
	Level   string        `yaml:"level"`
	Console bool          `yaml:"console"`
	File    LogFileConfig `yaml:"file"`
}

type LogFileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig selects the reminder store backend.
//
// Example:
//
//	storage:
//	  driver: file
//	  path: ./data
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`
	BusyTimeout string `yaml:"busy_timeout"` // Go duration string (sqlite)
}

type TelegramConfig struct {
	// Token is normally supplied via TELEGRAM_TOKEN, not the file.
	Token       string `yaml:"token"`
	PollTimeout string `yaml:"poll_timeout"` // Go duration string
}

// SweepConfig controls the stateless sweep server.
type SweepConfig struct {
	Listen string `yaml:"listen"`
	// Every is an optional cron spec (e.g. "@every 30s") that makes the
	// sweep server trigger itself; empty means external triggers only.
	Every string `yaml:"every"`
}
