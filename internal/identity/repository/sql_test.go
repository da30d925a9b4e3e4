package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"authcore/internal/db"
	"authcore/internal/db/dbtest"
)

func seedReset(t *testing.T, sqlDB *sql.DB, now time.Time) {
	t.Helper()
	ms := now.UnixMilli()
	stmts := []struct {
		q    string
		args []interface{}
	}{
		{`INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES ('u1', 'u1@example.com', 'old', 0, 0)`, nil},
		{`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES ('r1', 'u1', 'rh1', ?, ?)`, []interface{}{ms + 60000, ms}},
		{`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES ('r2', 'u1', 'rh2', ?, ?)`, []interface{}{ms + 60000, ms}},
		{`INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at) VALUES ('p1', 'u1', 'live', ?, ?)`, []interface{}{ms + 60000, ms}},
		{`INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at) VALUES ('p2', 'u1', 'stale', ?, ?)`, []interface{}{ms - 1, ms}},
	}
	for _, s := range stmts {
		if _, err := sqlDB.Exec(s.q, s.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func passwordHash(t *testing.T, sqlDB *sql.DB) string {
	t.Helper()
	var h string
	if err := sqlDB.QueryRow(`SELECT password_hash FROM users WHERE id = 'u1'`).Scan(&h); err != nil {
		t.Fatal(err)
	}
	return h
}

func TestSQLPasswordResets_ResetPassword(t *testing.T) {
	sqlDB := dbtest.OpenSQLite(t)
	now := time.Now().UTC()
	seedReset(t, sqlDB, now)
	r := NewSQLPasswordResets(sqlDB, db.SQLite)
	ctx := context.Background()

	userID, revoked, err := r.ResetPassword(ctx, "live", "new", now)
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if userID != "u1" || revoked != 2 {
		t.Errorf("got (%q, %d), want (u1, 2)", userID, revoked)
	}
	if h := passwordHash(t, sqlDB); h != "new" {
		t.Errorf("password_hash = %q, want new", h)
	}
	var live int
	if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM refresh_tokens WHERE revoked = FALSE`).Scan(&live); err != nil {
		t.Fatal(err)
	}
	if live != 0 {
		t.Errorf("%d refresh tokens still live", live)
	}

	if userID, _, err := r.ResetPassword(ctx, "live", "newer", now); err != nil || userID != "" {
		t.Errorf("spent token: (%q, %v), want empty user", userID, err)
	}
	if userID, _, err := r.ResetPassword(ctx, "stale", "newer", now); err != nil || userID != "" {
		t.Errorf("expired token: (%q, %v), want empty user", userID, err)
	}
	if userID, _, err := r.ResetPassword(ctx, "unknown", "newer", now); err != nil || userID != "" {
		t.Errorf("unknown token: (%q, %v), want empty user", userID, err)
	}
	if h := passwordHash(t, sqlDB); h != "new" {
		t.Errorf("password_hash = %q after dead tokens, want new", h)
	}
}

func TestSQLPasswordResets_RollsBackOnFailure(t *testing.T) {
	sqlDB := dbtest.OpenSQLite(t)
	now := time.Now().UTC()
	seedReset(t, sqlDB, now)
	if _, err := sqlDB.Exec(`CREATE TRIGGER refuse_revoke BEFORE UPDATE ON refresh_tokens
		BEGIN SELECT RAISE(ABORT, 'revoke refused'); END`); err != nil {
		t.Fatal(err)
	}
	r := NewSQLPasswordResets(sqlDB, db.SQLite)

	if _, _, err := r.ResetPassword(context.Background(), "live", "new", now); err == nil {
		t.Fatal("ResetPassword should fail when revocation fails")
	}
	if h := passwordHash(t, sqlDB); h != "old" {
		t.Errorf("password_hash = %q, want old", h)
	}
	var used bool
	if err := sqlDB.QueryRow(`SELECT used FROM password_reset_tokens WHERE id = 'p1'`).Scan(&used); err != nil {
		t.Fatal(err)
	}
	if used {
		t.Error("reset token spent by a failed transaction")
	}
}
