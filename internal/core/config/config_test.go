package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := Default()
	if cfg.DatabaseURL != def.DatabaseURL {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, def.DatabaseURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.SolveTimeLimit != def.SolveTimeLimit {
		t.Errorf("SolveTimeLimit = %v, want %v", cfg.SolveTimeLimit, def.SolveTimeLimit)
	}
	if cfg.SolverWorkers != def.SolverWorkers {
		t.Errorf("SolverWorkers = %d, want %d", cfg.SolverWorkers, def.SolverWorkers)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wardroster.yaml")
	body := `database_url: "postgres://scheduler:secret@db:5432/wardroster"
log_level: "debug"
log_format: "console"
solve_time_limit: "90s"
solver_workers: 8
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://scheduler:secret@db:5432/wardroster" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "console" {
		t.Errorf("LogFormat = %q, want console", cfg.LogFormat)
	}
	if cfg.SolveTimeLimit != 90*time.Second {
		t.Errorf("SolveTimeLimit = %v, want 90s", cfg.SolveTimeLimit)
	}
	if cfg.SolverWorkers != 8 {
		t.Errorf("SolverWorkers = %d, want 8", cfg.SolverWorkers)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("WR_LOG_LEVEL", "warn")
	t.Setenv("WR_SOLVER_WORKERS", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn from WR_LOG_LEVEL", cfg.LogLevel)
	}
	if cfg.SolverWorkers != 2 {
		t.Errorf("SolverWorkers = %d, want 2 from WR_SOLVER_WORKERS", cfg.SolverWorkers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("Load() with missing file = nil error, want error")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := Default

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database url", func(c *Config) { c.DatabaseURL = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"zero time limit", func(c *Config) { c.SolveTimeLimit = 0 }},
		{"negative workers", func(c *Config) { c.SolverWorkers = -1 }},
		{"zero event buffer", func(c *Config) { c.EventBuffer = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Errorf("validateConfig() = nil, want error")
			}
		})
	}

	if err := validateConfig(valid()); err != nil {
		t.Errorf("validateConfig(defaults) = %v, want nil", err)
	}
}
