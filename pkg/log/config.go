package log

import (
	"fmt"
	"strings"
)

// Config is a declarative logger configuration.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	// Output is one of "console" (default) or "null".
	Output string `json:"output" yaml:"output"`
	// Redact lists field keys whose values are never written.
	Redact []string `json:"redact" yaml:"redact"`
}

// ParseLevel converts a textual level into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(lvl), WithRedactedKeys(cfg.Redact...)}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}
	switch strings.ToLower(cfg.Output) {
	case "", "console":
		opts = append(opts, WithOutput(NewConsoleOutput()))
	case "null":
		opts = append(opts, WithOutput(NullOutput{}))
	default:
		return nil, fmt.Errorf("log: unknown output %q", cfg.Output)
	}
	return NewLogger(opts...), nil
}

// NewNop returns a logger that discards all entries. Handy in tests.
func NewNop() Logger {
	return NewLogger(WithLevel(FatalLevel), WithOutput(NullOutput{}))
}
