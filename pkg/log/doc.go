// Package log provides Pulse's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by log/slog via
// a bridge handler that feeds our formatter/outputs pipeline, so every
// component writes the same line shape regardless of who constructed the
// logger.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("broker"), log.Domain("realtime"))
//	l.Warn("publish failed", log.Org("org-1"), log.Err(err))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (text or JSON,
// console or null output, redacted keys).
//
// # Interop
//
// ToStdLogger and RedirectStdLog adapt the facade for libraries that expect
// a *log.Logger.
package log
