package mfa

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	otpDigits = 6
	// ResetTokenBytes is the number of random bytes in a password reset token.
	ResetTokenBytes = 32
)

var otpSpace = big.NewInt(1_000_000)

// GenerateOTP returns a 6-digit numeric OTP string (e.g. "042137"), uniformly
// distributed over 000000–999999. Uses crypto/rand.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// ValidOTPFormat reports whether code has the shape of a generated OTP.
func ValidOTPFormat(code string) bool {
	if len(code) != otpDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// GenerateResetToken returns a hex-encoded password reset token of ResetTokenBytes random bytes.
func GenerateResetToken() (string, error) {
	b := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
