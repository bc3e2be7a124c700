package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/filipbart/farms-manager-invoices/internal/dedup"
	"github.com/filipbart/farms-manager-invoices/internal/engine"
	"github.com/filipbart/farms-manager-invoices/internal/storage"
)

// initStorage opens the configured SQLite database and applies migrations.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "farms-manager-invoices", "invoices.db")
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// dedupConfig reads the fuzzy-match parameters from configuration.
func dedupConfig() dedup.Config {
	return dedup.Config{
		AmountTolerance: viper.GetFloat64("dedup.amount_tolerance"),
		DateWindowDays:  viper.GetInt("dedup.date_window_days"),
	}
}

// initEngine wires storage, detector and pipeline together.
func initEngine(store *storage.SQLiteStorage) (*engine.Engine, error) {
	detector, err := dedup.New(store, dedupConfig())
	if err != nil {
		return nil, err
	}
	return engine.New(store, detector), nil
}
