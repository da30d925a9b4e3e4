package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore/internal/db"
	"authcore/internal/user/domain"
)

const userColumns = `id, name, email, phone, password_hash, is_2fa_enabled, created_at, updated_at`

// SQLRepository is a user repository backed by Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a user repository that uses sqlDB for persistence.
func NewSQLRepository(sqlDB *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: sqlDB, dialect: dialect}
}

// GetByID returns the user for id, or nil if not found.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email, or nil if not found.
// The caller normalizes email; the store compares exactly.
func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	return scanUser(row)
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *SQLRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash, u.Is2FAEnabled, u.CreatedAt.UnixMilli(), u.UpdatedAt.UnixMilli())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// UpdatePasswordHash replaces the password hash of user id.
func (r *SQLRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash, now.UnixMilli(), id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SetTwoFactorEnabled sets the 2FA flag of user id.
func (r *SQLRepository) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`UPDATE users SET is_2fa_enabled = ?, updated_at = ? WHERE id = ?`),
		enabled, now.UnixMilli(), id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// Ping checks the database connection.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u                  domain.User
		createdAt, updated int64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Is2FAEnabled, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	u.UpdatedAt = time.UnixMilli(updated).UTC()
	return &u, nil
}
