// Package dbtest opens migrated SQLite databases for repository tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"authcore/internal/db"
	"authcore/internal/db/migrate"
)

// OpenSQLite returns a migrated SQLite database in a temp dir. It is closed when the test ends.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authcore.db")
	if err := migrate.SQLite(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}
