package repository

import (
	"context"
	"errors"
	"time"

	"authcore/internal/user/domain"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository defines persistence for users. Read methods return (nil, nil) when
// the user does not exist; errors are reserved for storage failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create inserts u. Email uniqueness is enforced by the store and reported as ErrDuplicateEmail.
	Create(ctx context.Context, u *domain.User) error
	// UpdatePasswordHash replaces the stored hash. Returns false if the user does not exist.
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, now time.Time) (bool, error)
	// SetTwoFactorEnabled sets the 2FA flag. Idempotent. Returns false if the user does not exist.
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool, now time.Time) (bool, error)
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}
