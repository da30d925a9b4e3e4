package engine

import "context"

// MFAInput is the login context handed to the MFA policy.
type MFAInput struct {
	UserID           string
	TwoFactorEnabled bool
	HasPhone         bool
}

// Evaluator decides whether a password login must be completed with an OTP.
type Evaluator interface {
	// RequireOTP returns true when the login must go through the OTP step.
	// Implementations return true alongside any error.
	RequireOTP(ctx context.Context, in MFAInput) (bool, error)
}
