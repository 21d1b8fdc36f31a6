package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"database": map[string]interface{}{
			"driver": DriverSQLite,
			"path":   "~/.reminders/reminders.db",
			"url":    "",
		},
		"preferences": map[string]interface{}{
			"file": "~/.reminders/preferences.toml",
		},
		"notifications": map[string]interface{}{
			"enabled": true,
			"resync":  "@every 15m",
			"telegram": map[string]interface{}{
				"bot_token": "",
				"chat_id":   "",
			},
		},
		"worker": map[string]interface{}{
			"concurrency": 4,
		},
		"log": map[string]interface{}{
			"level":  "info",
			"format": "console",
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return "~/.reminders/config.yaml"
}
