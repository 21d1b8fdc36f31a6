package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// EnvPrefix is stripped from environment variables; a double underscore
// separates nesting levels (REMINDERS_DATABASE__PATH -> database.path).
const EnvPrefix = "REMINDERS_"

type Config struct {
	Database      DatabaseConfig      `koanf:"database"`
	Preferences   PreferencesConfig   `koanf:"preferences"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Worker        WorkerConfig        `koanf:"worker"`
	Log           LogConfig           `koanf:"log"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite or postgres
	Path   string `koanf:"path"`   // SQLite file
	URL    string `koanf:"url"`    // Postgres connection string
}

type PreferencesConfig struct {
	File string `koanf:"file"`
}

type NotificationsConfig struct {
	Enabled  bool           `koanf:"enabled"`
	Resync   string         `koanf:"resync"` // cron spec for re-deriving schedules
	Telegram TelegramConfig `koanf:"telegram"`
}

type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
	ChatID   string `koanf:"chat_id"`
}

// Configured reports whether Telegram delivery can be used.
func (t TelegramConfig) Configured() bool {
	return t.BotToken != "" && t.ChatID != ""
}

type WorkerConfig struct {
	Concurrency int `koanf:"concurrency"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // console or json
}

func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)

		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Fall back to the plain Telegram variables used by the bot tooling
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && k.String("notifications.telegram.bot_token") == "" {
		k.Set("notifications.telegram.bot_token", token)
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" && k.String("notifications.telegram.chat_id") == "" {
		k.Set("notifications.telegram.chat_id", chatID)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Preferences.File = expandPath(cfg.Preferences.File)

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver: %s (supported: %s, %s)",
			c.Database.Driver, DriverSQLite, DriverPostgres)
	}

	if c.Preferences.File == "" {
		return fmt.Errorf("preferences.file is required")
	}

	if c.Notifications.Enabled && c.Notifications.Resync != "" {
		if _, err := cron.ParseStandard(c.Notifications.Resync); err != nil {
			return fmt.Errorf("invalid notifications.resync %q: %w", c.Notifications.Resync, err)
		}
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format: %s (supported: console, json)", c.Log.Format)
	}

	return nil
}

func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	return path
}
