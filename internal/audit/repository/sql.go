package repository

import (
	"context"
	"database/sql"
	"time"

	"authcore/internal/audit/domain"
	"authcore/internal/db"
)

// SQLRepository stores audit logs in Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns an audit log repository that uses sqlDB for persistence.
func NewSQLRepository(sqlDB *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: sqlDB, dialect: dialect}
}

// Create persists the audit log. The audit log must have ID set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.Action, a.Resource, a.IP, a.Metadata, a.CreatedAt.UnixMilli())
	return err
}

// ListByUser returns up to limit entries for userID, newest first.
func (r *SQLRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT id, user_id, action, resource, ip, metadata, created_at
		FROM audit_logs WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a         domain.AuditLog
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}
