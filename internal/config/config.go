package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr" env:"PULSE_HTTP_ADDR" env-description:"HTTP listen address"`
	GRPCAddr string `json:"grpcAddr" yaml:"grpcAddr" env:"PULSE_GRPC_ADDR" env-description:"gRPC health listen address (empty disables)"`
	DataDir  string `json:"dataDir" yaml:"dataDir" env:"PULSE_DATA_DIR" env-description:"Local store directory"`

	// RedisURL selects the distributed broker and rate limiter. Empty means
	// local-only (degraded) mode.
	RedisURL string `json:"redisUrl" yaml:"redisUrl" env:"PULSE_REDIS_URL" env-description:"Redis connection string for distributed events"`
	// DatabaseURL switches membership lookups to PostgreSQL.
	DatabaseURL string `json:"databaseUrl" yaml:"databaseUrl" env:"PULSE_DATABASE_URL" env-description:"PostgreSQL connection string for memberships"`

	Log             LogConfig    `json:"log" yaml:"log" env-prefix:"PULSE_LOG_"`
	Stream          StreamConfig `json:"stream" yaml:"stream" env-prefix:"PULSE_STREAM_"`
	ConnectionLimit LimitConfig  `json:"connectionLimit" yaml:"connectionLimit" env-prefix:"PULSE_CONN_LIMIT_"`
	MutationLimit   LimitConfig  `json:"mutationLimit" yaml:"mutationLimit" env-prefix:"PULSE_MUTATION_LIMIT_"`
	Cache           CacheConfig  `json:"cache" yaml:"cache" env-prefix:"PULSE_CACHE_"`
}

// LogConfig selects logger level and format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"LEVEL" env-description:"debug|info|warn|error"`
	Format string `json:"format" yaml:"format" env:"FORMAT" env-description:"text|json"`
}

// StreamConfig tunes live stream sessions.
type StreamConfig struct {
	HeartbeatMs    int64 `json:"heartbeatMs" yaml:"heartbeatMs" env:"HEARTBEAT_MS" env-description:"Interval between ping frames"`
	BufferSize     int   `json:"bufferSize" yaml:"bufferSize" env:"BUFFER_SIZE" env-description:"Queued events per session before drops"`
	MaxFilterBytes int   `json:"maxFilterBytes" yaml:"maxFilterBytes" env:"MAX_FILTER_BYTES" env-description:"Upper bound on filter expression length"`
}

// LimitConfig is a fixed-window admission policy for one call site.
type LimitConfig struct {
	WindowMs int64  `json:"windowMs" yaml:"windowMs" env:"WINDOW_MS" env-description:"Window length in ms"`
	Max      int64  `json:"max" yaml:"max" env:"MAX" env-description:"Slots per key per window"`
	Prefix   string `json:"prefix" yaml:"prefix" env:"PREFIX" env-description:"Counter key prefix"`
}

// CacheConfig holds the revalidate windows for the dashboard read cache.
type CacheConfig struct {
	ProjectsTTLMs int64 `json:"projectsTtlMs" yaml:"projectsTtlMs" env:"PROJECTS_TTL_MS"`
	ClientsTTLMs  int64 `json:"clientsTtlMs" yaml:"clientsTtlMs" env:"CLIENTS_TTL_MS"`
	FilesTTLMs    int64 `json:"filesTtlMs" yaml:"filesTtlMs" env:"FILES_TTL_MS"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		Log:      LogConfig{Level: "info", Format: "text"},
		Stream: StreamConfig{
			HeartbeatMs:    20_000,
			BufferSize:     64,
			MaxFilterBytes: 2048,
		},
		ConnectionLimit: LimitConfig{WindowMs: 60_000, Max: 10, Prefix: "realtime:connections"},
		MutationLimit:   LimitConfig{WindowMs: 60_000, Max: 120, Prefix: "realtime:mutations"},
		Cache: CacheConfig{
			ProjectsTTLMs: 60_000,
			ClientsTTLMs:  120_000,
			FilesTTLMs:    30_000,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// Default(), then applies the environment overlay. If path is empty it
// starts from Default() with the environment applied. Both paths validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if err := FromEnv(&cfg); err != nil {
			return Config{}, err
		}
		return cfg, cfg.Validate()
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return Config{}, fmt.Errorf("config: unsupported file type %q; use .json or .yaml", filepath.Ext(path))
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	applyLegacyEnv(&cfg)
	return cfg, cfg.Validate()
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("config: httpAddr is required")
	}
	for name, l := range map[string]LimitConfig{"connectionLimit": c.ConnectionLimit, "mutationLimit": c.MutationLimit} {
		if l.WindowMs <= 0 || l.Max <= 0 {
			return fmt.Errorf("config: %s needs positive windowMs and max", name)
		}
		if l.Prefix == "" {
			return fmt.Errorf("config: %s.prefix is required", name)
		}
	}
	if c.Stream.HeartbeatMs <= 0 {
		return fmt.Errorf("config: stream.heartbeatMs must be positive")
	}
	return nil
}
