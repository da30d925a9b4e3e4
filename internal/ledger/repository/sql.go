package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/db"
	"authcore/internal/ledger/domain"
)

// SQLRepository is the token ledger on Postgres or SQLite. Times are stored as unix milliseconds.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a ledger repository that uses sqlDB for persistence.
func NewSQLRepository(sqlDB *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: sqlDB, dialect: dialect}
}

func (r *SQLRepository) q(query string) string {
	return r.dialect.Rebind(query)
}

// CreateOTP inserts an unused OTP code.
func (r *SQLRepository) CreateOTP(ctx context.Context, c *domain.OTPCode) error {
	_, err := r.db.ExecContext(ctx, r.q(`INSERT INTO otp_codes (id, user_id, code_hash, purpose, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, FALSE, ?)`),
		c.ID, c.UserID, c.CodeHash, string(c.Purpose), c.ExpiresAt.UnixMilli(), c.CreatedAt.UnixMilli())
	return err
}

// ConsumeOTP is a single conditional UPDATE; the outer used = FALSE re-check makes
// a concurrent second consumer update zero rows.
func (r *SQLRepository) ConsumeOTP(ctx context.Context, userID, codeHash string, now time.Time) (*domain.OTPCode, error) {
	nowMs := now.UnixMilli()
	row := r.db.QueryRowContext(ctx, r.q(`UPDATE otp_codes SET used = TRUE, used_at = ?
		WHERE id = (
			SELECT id FROM otp_codes
			WHERE user_id = ? AND code_hash = ? AND used = FALSE AND expires_at > ?
			ORDER BY created_at DESC
			LIMIT 1
		) AND used = FALSE
		RETURNING id, user_id, code_hash, purpose, expires_at, created_at`),
		nowMs, userID, codeHash, nowMs)
	var (
		c                    domain.OTPCode
		purpose              string
		expiresAt, createdAt int64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.CodeHash, &purpose, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	usedAt := time.UnixMilli(nowMs).UTC()
	c.Purpose = domain.Purpose(purpose)
	c.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.Used = true
	c.UsedAt = &usedAt
	return &c, nil
}

// CreateRefreshToken inserts an unrevoked refresh token entry.
func (r *SQLRepository) CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, r.q(`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, FALSE, ?)`),
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt.UnixMilli(), t.CreatedAt.UnixMilli())
	return err
}

// GetRefreshToken returns the refresh token entry for id, or nil if not found.
func (r *SQLRepository) GetRefreshToken(ctx context.Context, id string) (*domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT id, user_id, token_hash, expires_at, revoked, revoked_at, created_at
		FROM refresh_tokens WHERE id = ?`), id)
	return scanRefreshToken(row)
}

// RevokeRefreshToken revokes the live token with tokenHash.
func (r *SQLRepository) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	nowMs := now.UnixMilli()
	row := r.db.QueryRowContext(ctx, r.q(`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = ?
		WHERE token_hash = ? AND revoked = FALSE AND expires_at > ?
		RETURNING id, user_id, token_hash, expires_at, revoked, revoked_at, created_at`),
		nowMs, tokenHash, nowMs)
	return scanRefreshToken(row)
}

// RevokeAllRefreshTokens revokes every unrevoked refresh token of userID.
func (r *SQLRepository) RevokeAllRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = ?
		WHERE user_id = ? AND revoked = FALSE`), now.UnixMilli(), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateResetToken inserts an unused password reset token.
func (r *SQLRepository) CreateResetToken(ctx context.Context, t *domain.ResetToken) error {
	_, err := r.db.ExecContext(ctx, r.q(`INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, FALSE, ?)`),
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt.UnixMilli(), t.CreatedAt.UnixMilli())
	return err
}

// GetResetToken returns the live reset token with tokenHash, or nil.
func (r *SQLRepository) GetResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT id, user_id, token_hash, expires_at, created_at
		FROM password_reset_tokens WHERE token_hash = ? AND used = FALSE AND expires_at > ?`),
		tokenHash, now.UnixMilli())
	var (
		t                    domain.ResetToken
		expiresAt, createdAt int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &t, nil
}

// ConsumeResetToken marks the reset token with tokenHash used if it is still live.
func (r *SQLRepository) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	nowMs := now.UnixMilli()
	row := r.db.QueryRowContext(ctx, r.q(`UPDATE password_reset_tokens SET used = TRUE, used_at = ?
		WHERE token_hash = ? AND used = FALSE AND expires_at > ?
		RETURNING id, user_id, token_hash, expires_at, created_at`),
		nowMs, tokenHash, nowMs)
	var (
		t                    domain.ResetToken
		expiresAt, createdAt int64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	usedAt := time.UnixMilli(nowMs).UTC()
	t.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.Used = true
	t.UsedAt = &usedAt
	return &t, nil
}

// ReleaseResetToken clears the used mark of t while it is unexpired.
func (r *SQLRepository) ReleaseResetToken(ctx context.Context, t *domain.ResetToken, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.q(`UPDATE password_reset_tokens SET used = FALSE, used_at = NULL
		WHERE id = ? AND expires_at > ?`), t.ID, now.UnixMilli())
	return err
}

// DeleteExpired purges expired rows from all ledger tables.
func (r *SQLRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"otp_codes", "refresh_tokens", "password_reset_tokens"} {
		res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM `+table+` WHERE expires_at <= ?`), now.UnixMilli())
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func scanRefreshToken(row *sql.Row) (*domain.RefreshToken, error) {
	var (
		t                    domain.RefreshToken
		expiresAt, createdAt int64
		revokedAt            sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &t.Revoked, &revokedAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	if revokedAt.Valid {
		ts := time.UnixMilli(revokedAt.Int64).UTC()
		t.RevokedAt = &ts
	}
	return &t, nil
}
