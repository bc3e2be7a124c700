// Package testutil provides shared test helpers for the invoice engine.
package testutil

import (
	"context"
	"testing"

	"github.com/filipbart/farms-manager-invoices/internal/storage"
)

// SetupTestDB creates a migrated in-memory SQLite storage and registers its
// cleanup with the test.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
