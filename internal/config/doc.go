// Package config provides loading and environment overlay for the Pulse
// server configuration. It exposes a Default() baseline, file loading
// (JSON or YAML) and a PULSE_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if path != "" {
//	    if cfg, err = config.Load(path); err != nil { /* handle */ }
//	}
//	if err := config.FromEnv(&cfg); err != nil { /* handle */ }
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger})
package config
