package domain

import "time"

// LoginStatus is where a login attempt ended up after the password check.
type LoginStatus string

const (
	// LoginAuthenticated means tokens were issued.
	LoginAuthenticated LoginStatus = "authenticated"
	// LoginOTPPending means an OTP was issued and must be verified before tokens are.
	LoginOTPPending LoginStatus = "otp_pending"
)

// Tokens is an issued access/refresh pair.
type Tokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is the outcome of a successful password check. Tokens is nil when Status is LoginOTPPending.
type LoginResult struct {
	Status LoginStatus
	UserID string
	Tokens *Tokens
}

// AuthResult holds the outcome of Register (UserID only), VerifyOTP, or Refresh (tokens + user).
type AuthResult struct {
	UserID string
	Tokens *Tokens
}
