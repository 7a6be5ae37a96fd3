package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// FromEnv overlays PULSE_* environment variables onto cfg.
func FromEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("config: read env: %w", err)
	}
	applyLegacyEnv(cfg)
	return nil
}

// applyLegacyEnv honours the unprefixed REDIS_URL used by existing
// deployments when PULSE_REDIS_URL is not set.
func applyLegacyEnv(cfg *Config) {
	if cfg.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			cfg.RedisURL = v
		}
	}
}

// EnvUsage returns a description of every supported environment variable.
func EnvUsage() string {
	var cfg Config
	var buf bytes.Buffer
	header := "Environment variables:"
	cleanenv.FUsage(&buf, &cfg, &header)()
	return buf.String()
}
