// Package config provides configuration management for wardroster services.
package config

import "time"

// Config holds the scheduler service configuration.
type Config struct {
	// DatabaseURL selects the backing store: sqlite://path or postgres://...
	DatabaseURL string

	// LogLevel is a zap level string: debug, info, warn, error.
	LogLevel string

	// LogFormat selects the log encoder: json or console.
	LogFormat string

	// SolveTimeLimit is the default per-job solver budget when a request
	// does not set its own.
	SolveTimeLimit time.Duration

	// SolverWorkers is the default solver parallelism per job.
	SolverWorkers int

	// EventBuffer is the per-run event channel capacity. Events beyond a
	// full buffer are dropped, never blocked on.
	EventBuffer int
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		DatabaseURL:    "sqlite://wardroster.db",
		LogLevel:       "info",
		LogFormat:      "json",
		SolveTimeLimit: 60 * time.Second,
		SolverWorkers:  4,
		EventBuffer:    256,
	}
}
