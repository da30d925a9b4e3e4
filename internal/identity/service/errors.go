package service

import (
	"errors"

	userrepo "authcore/internal/user/repository"
)

// Sentinel errors for the auth service; the HTTP handler maps them to kinds and status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidOTP             = errors.New("invalid otp")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrNotFound               = errors.New("user not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrTooManyAttempts        = errors.New("too many attempts")
)

// ErrorKind is the stable, caller-visible classification of a service error.
type ErrorKind string

const (
	KindDuplicateEmail        ErrorKind = "DuplicateEmail"
	KindInvalidCredentials    ErrorKind = "InvalidCredentials"
	KindInvalidOTP            ErrorKind = "InvalidOtp"
	KindInvalidOrExpiredToken ErrorKind = "InvalidOrExpiredToken"
	KindInvalidRefreshToken   ErrorKind = "InvalidRefreshToken"
	KindNotFound              ErrorKind = "NotFound"
	KindInvalidInput          ErrorKind = "InvalidInput"
	KindTooManyAttempts       ErrorKind = "TooManyAttempts"
	KindUnauthorized          ErrorKind = "Unauthorized"
	KindForbidden             ErrorKind = "Forbidden"
	KindInternal              ErrorKind = "Internal"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrEmailAlreadyRegistered, KindDuplicateEmail},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrInvalidOTP, KindInvalidOTP},
	{ErrInvalidOrExpiredToken, KindInvalidOrExpiredToken},
	{ErrInvalidRefreshToken, KindInvalidRefreshToken},
	{ErrNotFound, KindNotFound},
	{ErrInvalidInput, KindInvalidInput},
	{ErrTooManyAttempts, KindTooManyAttempts},
}

// Kind classifies err. Anything that is not a service sentinel is Internal.
func Kind(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func isDuplicateEmail(err error) bool {
	return errors.Is(err, userrepo.ErrDuplicateEmail)
}
