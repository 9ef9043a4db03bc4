// Package dbtest opens throwaway migrated sqlite stores for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db"
	"github.com/angelmondragon/fieldsync/pkg/migrate"
)

// Path returns a fresh sqlite file path inside the test's temp dir.
func Path(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "fieldsync.db")
}

// Open opens (and migrates) the sqlite file at path. The client is closed
// when the test ends.
func Open(t testing.TB, path string) *db.Client {
	t.Helper()
	ctx := context.Background()

	client, err := db.New(ctx, config.DBConfig{Driver: config.DriverSQLite, DSN: path}, nil)
	if err != nil {
		t.Fatalf("open sqlite %s: %v", path, err)
	}
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.SQL()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	migrate.SetLogger(nil)
	if err := migrate.Up(ctx, sqlDB, client.Driver()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return client
}

// New opens a migrated sqlite store in a temp dir.
func New(t testing.TB) *db.Client {
	t.Helper()
	return Open(t, Path(t))
}
