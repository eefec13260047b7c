package main

import (
	"context"
	"fmt"

	"github.com/hybrid-bistoon/anbar/internal/config"
	"github.com/hybrid-bistoon/anbar/internal/database"
	"github.com/hybrid-bistoon/anbar/internal/logging"
	"github.com/hybrid-bistoon/anbar/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "anbarctl",
	Short: "Warehouse administration tool",
	Long: `anbarctl manages the warehouse catalog and accounts from the shell:
bulk catalog imports, barcode generation, user creation and schema migration.
It reads the same environment (.env) as the API server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(barcodeCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(migrateCmd)
}

// env is what every subcommand needs
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	store repository.Store
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("Database close error", zap.Error(err))
	}
	_ = e.log.Sync()
}

// open loads config, builds the logger and connects the store. The schema is
// migrated so commands work against a fresh database.
func open(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log, err := logging.New(cfg.NodeEnv, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	store, err := database.OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return &env{cfg: cfg, log: log, store: store}, nil
}
