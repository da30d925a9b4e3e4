package repository

import (
	"context"
	"time"

	"authcore/internal/ledger/domain"
)

// Repository persists OTP codes, refresh tokens and reset tokens. Consume and
// revoke operations are conditional updates executed atomically by the store:
// of any number of concurrent callers presenting the same secret, at most one
// gets the record back. Read and consume methods return (nil, nil) on a miss.
type Repository interface {
	CreateOTP(ctx context.Context, c *domain.OTPCode) error
	// ConsumeOTP marks the newest unused, unexpired OTP of userID with codeHash as used and returns it.
	ConsumeOTP(ctx context.Context, userID, codeHash string, now time.Time) (*domain.OTPCode, error)

	CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*domain.RefreshToken, error)
	// RevokeRefreshToken revokes the live token with tokenHash and returns it; nil when
	// the token is unknown, expired or already revoked.
	RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error)
	// RevokeAllRefreshTokens revokes every unrevoked refresh token of userID in one update.
	RevokeAllRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error)

	CreateResetToken(ctx context.Context, t *domain.ResetToken) error
	// GetResetToken returns the unused, unexpired reset token with tokenHash without spending it.
	GetResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error)
	// ConsumeResetToken marks the unused, unexpired reset token with tokenHash as used and returns it.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error)
	// ReleaseResetToken makes a consumed, unexpired reset token usable again.
	ReleaseResetToken(ctx context.Context, t *domain.ResetToken, now time.Time) error

	// DeleteExpired removes records whose expiry is at or before now. Returns the number removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
