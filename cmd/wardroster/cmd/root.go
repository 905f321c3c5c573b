package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wardroster/wardroster/internal/core/config"
	"github.com/wardroster/wardroster/internal/core/db"
	"github.com/wardroster/wardroster/internal/core/logging"
	"github.com/wardroster/wardroster/internal/store"
)

const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "wardroster",
	Short: "wardroster nurse scheduling rule engine",
	Long:  `wardroster compiles scheduling rules, composes rule bundles, and runs roster optimization jobs.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log encoder (json, console)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig merges the config file with flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, nil
}

// openStore opens the database and builds the store and logger shared by
// every subcommand that touches persistence.
func openStore() (*config.Config, *sqlx.DB, *store.Store, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	st, err := store.New(database, log)
	if err != nil {
		database.Close()
		return nil, nil, nil, nil, err
	}
	return cfg, database, st, log, nil
}
