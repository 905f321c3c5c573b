package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from an optional file using viper.
// Precedence: environment > config file > defaults. Environment variables
// use the WR_ prefix with underscores, e.g. WR_DATABASE_URL.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("database_url", def.DatabaseURL)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("solve_time_limit", def.SolveTimeLimit.String())
	v.SetDefault("solver_workers", def.SolverWorkers)
	v.SetDefault("event_buffer", def.EventBuffer)

	v.SetEnvPrefix("WR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:    v.GetString("database_url"),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		SolveTimeLimit: v.GetDuration("solve_time_limit"),
		SolverWorkers:  v.GetInt("solver_workers"),
		EventBuffer:    v.GetInt("event_buffer"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig checks the loaded values before any service starts.
func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url must be set")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", cfg.LogFormat)
	}
	if cfg.SolveTimeLimit <= 0 {
		return fmt.Errorf("solve_time_limit must be positive, got %v", cfg.SolveTimeLimit)
	}
	if cfg.SolverWorkers <= 0 {
		return fmt.Errorf("solver_workers must be positive, got %d", cfg.SolverWorkers)
	}
	if cfg.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive, got %d", cfg.EventBuffer)
	}
	return nil
}
