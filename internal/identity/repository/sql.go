// Package repository holds identity writes that span the users and ledger tables.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/db"
)

// ErrUserNotFound is returned when the reset token's user no longer exists.
var ErrUserNotFound = errors.New("reset token user not found")

// SQLPasswordResets applies password resets in one transaction on the database
// that holds both users and the token ledger.
type SQLPasswordResets struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLPasswordResets returns a reset store on sqlDB.
func NewSQLPasswordResets(sqlDB *sql.DB, dialect db.Dialect) *SQLPasswordResets {
	return &SQLPasswordResets{db: sqlDB, dialect: dialect}
}

// ResetPassword spends the live reset token with tokenHash, stores passwordHash for its
// user and revokes every refresh token of that user. Nothing is written unless all three
// succeed. Returns an empty userID when the token is not live.
func (r *SQLPasswordResets) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	nowMs := now.UnixMilli()
	var userID string
	err = tx.QueryRowContext(ctx, r.dialect.Rebind(`UPDATE password_reset_tokens SET used = TRUE, used_at = ?
		WHERE token_hash = ? AND used = FALSE AND expires_at > ?
		RETURNING user_id`), nowMs, tokenHash, nowMs).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}

	res, err := tx.ExecContext(ctx, r.dialect.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash, nowMs, userID)
	if err != nil {
		return "", 0, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", 0, err
	} else if n == 0 {
		return "", 0, ErrUserNotFound
	}

	res, err = tx.ExecContext(ctx, r.dialect.Rebind(`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = ?
		WHERE user_id = ? AND revoked = FALSE`), nowMs, userID)
	if err != nil {
		return "", 0, err
	}
	revoked, err := res.RowsAffected()
	if err != nil {
		return "", 0, err
	}
	if err := tx.Commit(); err != nil {
		return "", 0, err
	}
	return userID, revoked, nil
}
