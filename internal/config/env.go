package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env files from the working directory and the user
// config directories. Variables already present in the process win.
func LoadEnvFiles() error {
	envPaths := []string{
		"./.env",
	}

	if home, err := os.UserHomeDir(); err == nil {
		envPaths = append(envPaths,
			filepath.Join(home, ".glucotrack", ".env"),
			filepath.Join(home, ".config", "glucotrack", ".env"),
		)
	}

	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := loadEnvFile(path); err != nil {
				return err
			}
		}
	}

	return nil
}

func loadEnvFile(path string) error {
	// godotenv.Load never overrides existing variables
	return godotenv.Load(path)
}

// envAliases lists the unprefixed names commonly used for the same secret
var envAliases = map[string][]string{
	"GLUCOTRACK_CHANNELS_TELEGRAM_BOT_TOKEN": {"TELEGRAM_BOT_TOKEN"},
	"GLUCOTRACK_CHANNELS_TELEGRAM_CHAT_ID":   {"TELEGRAM_CHAT_ID"},
	"GLUCOTRACK_CHANNELS_DISCORD_TOKEN":      {"DISCORD_BOT_TOKEN", "DISCORD_TOKEN"},
	"GLUCOTRACK_CHANNELS_NATS_URL":           {"NATS_URL"},
	"GLUCOTRACK_PREDICTION_BASE_URL":         {"PREDICTION_API_URL"},
	"GLUCOTRACK_SECURITY_JWT_SECRET":         {"GLUCOTRACK_JWT_SECRET", "JWT_SECRET"},
}

// ResolveEnvWithAliases returns the canonical variable, or the first alias
// that is set
func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	if aliases, ok := envAliases[canonicalKey]; ok {
		for _, alias := range aliases {
			if val := os.Getenv(alias); val != "" {
				return val
			}
		}
	}

	return ""
}
