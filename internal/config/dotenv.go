package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenv loads environment variables from .env files.
//
// It never overrides already-exported variables. An explicit path (or a
// comma-separated list, also accepted via ENV_FILE) must exist; otherwise a
// ./.env file is loaded when present and silently skipped when not.
func LoadDotenv(explicit string) error {
	if strings.TrimSpace(explicit) == "" {
		explicit = os.Getenv("ENV_FILE")
	}

	if v := strings.TrimSpace(explicit); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := godotenv.Load(parts...); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", v, err)
		}
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	return nil
}
