package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"voxmeter/internal/app/repository"
	"voxmeter/internal/app/repository/migrate"
	"voxmeter/internal/app/repository/sqlite"
)

// SetupTestSQLite opens a migrated SQLite store in t's temp dir. The store
// is closed when the test completes.
func SetupTestSQLite(t *testing.T) *repository.SQLStore {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "voxmeter_test.db"))
	if err != nil {
		t.Fatalf("Failed to create SQLite test database: %v", err)
	}
	if err := migrate.Apply(context.Background(), store.DB(), store.DriverName()); err != nil {
		store.Close()
		t.Fatalf("Failed to create test tables: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return store
}
