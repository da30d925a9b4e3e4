// Package domain holds the expiring, single-use records of the token ledger.
// Secrets are never stored; every record carries the SHA-256 hash only.
package domain

import "time"

// Purpose records why an OTP was issued. It is kept for audit; matching ignores it.
type Purpose string

const (
	PurposeLogin     Purpose = "login"
	PurposeEnable2FA Purpose = "enable_2fa"
)

// OTPCode is a one-time passcode challenge.
type OTPCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Purpose   Purpose
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// RefreshToken is the ledger entry backing an issued refresh JWT. ID equals the JWT jti.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Live reports whether the refresh token is unrevoked and unexpired at now.
func (t *RefreshToken) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// ResetToken is a single-use password reset token.
type ResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}
