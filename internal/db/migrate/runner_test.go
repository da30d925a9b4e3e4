package migrate

import (
	"path/filepath"
	"strings"
	"testing"

	"authcore/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", "up")
	if err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Errorf("error message = %q, should mention DATABASE_URL", err.Error())
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "invalid", "UP", "Up", "both"} {
		t.Run(direction, func(t *testing.T) {
			err := Run("sqlite://"+filepath.Join(t.TempDir(), "x.db"), direction)
			if err == nil {
				t.Fatalf("Run with direction %q should return error", direction)
			}
			if !strings.Contains(err.Error(), "direction") {
				t.Errorf("error %q should mention direction", err.Error())
			}
		})
	}
}

func TestRun_UnknownScheme(t *testing.T) {
	if err := Run("nosuchdb://localhost/test", "up"); err == nil {
		t.Error("Run with unknown scheme should return error")
	}
}

func TestSQLite_UpIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authcore.db")
	if err := SQLite(path); err != nil {
		t.Fatalf("SQLite first run: %v", err)
	}
	if err := SQLite(path); err != nil {
		t.Fatalf("SQLite second run should be a no-op, got %v", err)
	}

	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer sqlDB.Close()
	for _, table := range []string{"users", "otp_codes", "refresh_tokens", "password_reset_tokens", "audit_logs"} {
		var name string
		err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestRun_DownRemovesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authcore.db")
	if err := SQLite(path); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := Run(db.SQLiteURL(path), "down"); err != nil {
		t.Fatalf("down: %v", err)
	}
	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer sqlDB.Close()
	var n int
	if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'users'`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 0 {
		t.Error("users table should be dropped after down")
	}
}
