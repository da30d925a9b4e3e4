package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"authcore/internal/audit"
	identityrepo "authcore/internal/identity/repository"
	ledgerdomain "authcore/internal/ledger/domain"
	"authcore/internal/mfa"
	"authcore/internal/notify"
	"authcore/internal/ratelimit"
	"authcore/internal/security"
)

// ForgotPassword sends a reset link when email belongs to a user. It has no result so that
// callers cannot tell registered emails apart; failures are only logged.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ForgotPassword")
	defer span.End()

	email = normalizeEmail(email)
	if email == "" {
		return
	}
	// The per-address budget is keyed by client too, so requests from one client
	// cannot use up the budget of the address owner.
	subject := email
	if ip := s.callerIP(ctx); ip != "" {
		if !s.attempt(ctx, ratelimit.ForgotIPRule, ip) {
			log.Printf("auth: forgot password throttled for client %s", ip)
			return
		}
		subject = email + "|" + ip
	}
	if !s.attempt(ctx, ratelimit.ForgotRule, subject) {
		log.Printf("auth: forgot password throttled for %s", notify.MaskRecipient(email))
		return
	}
	if err := s.sendResetLink(ctx, email); err != nil {
		log.Printf("auth: forgot password: %v", err)
	}
}

func (s *AuthService) callerIP(ctx context.Context) string {
	if s.clientIP == nil {
		return ""
	}
	return s.clientIP(ctx)
}

func (s *AuthService) sendResetLink(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}
	if user == nil {
		return nil
	}
	token, err := mfa.GenerateResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	now := s.clock()
	rec := &ledgerdomain.ResetToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: security.HashToken(token),
		ExpiresAt: now.Add(s.opts.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.ledger.CreateResetToken(ctx, rec); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	link := notify.ResetLink(s.opts.FrontendURL, token)
	s.send(notify.ResetEmail(user.Email, link, s.opts.ResetTokenTTL))
	s.record(ctx, user.ID, audit.ActionPasswordForgot, nil)
	return nil
}

// ResetPassword stores the new password hash of the reset token's user, revokes every
// refresh token of that user and spends the token. It either does all three or leaves the
// token usable and the password unchanged. An unknown, used or expired token is
// ErrInvalidOrExpiredToken.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ResetPassword")
	defer func() { endSpan(span, err) }()

	if err := validatePassword(newPassword); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return fmt.Errorf("reset password: hash: %w", err)
	}
	now := s.clock()
	tokenHash := security.HashToken(token)

	var out resetOutcome
	if s.resets != nil {
		out, err = s.resetInTx(ctx, tokenHash, hashed, now)
	} else {
		out, err = s.resetStepwise(ctx, tokenHash, hashed, now)
	}
	if err != nil {
		return err
	}
	s.record(ctx, out.userID, audit.ActionPasswordReset, map[string]string{"revoked_tokens": fmt.Sprint(out.revoked)})
	return nil
}

type resetOutcome struct {
	userID  string
	revoked int64
}

func retryBackOff() backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	return backoff.WithBackOff(b)
}

// resetInTx retries the whole transaction; a failed attempt has rolled back.
func (s *AuthService) resetInTx(ctx context.Context, tokenHash, hashed string, now time.Time) (resetOutcome, error) {
	out, err := backoff.Retry(ctx, func() (resetOutcome, error) {
		userID, revoked, err := s.resets.ResetPassword(ctx, tokenHash, hashed, now)
		if errors.Is(err, identityrepo.ErrUserNotFound) {
			return resetOutcome{}, backoff.Permanent(err)
		}
		if err != nil {
			return resetOutcome{}, err
		}
		return resetOutcome{userID: userID, revoked: revoked}, nil
	},
		retryBackOff(),
		backoff.WithMaxElapsedTime(s.opts.RevokeRetryMax),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("auth: password reset transaction failed, retrying in %s: %v", next, err)
		}),
	)
	if err != nil {
		return resetOutcome{}, fmt.Errorf("reset password: %w", err)
	}
	if out.userID == "" {
		return resetOutcome{}, ErrInvalidOrExpiredToken
	}
	return out, nil
}

// resetStepwise orders separate writes so that every failure leaves the token usable:
// sessions are revoked first, the token is spent next and put back if the password
// write fails.
func (s *AuthService) resetStepwise(ctx context.Context, tokenHash, hashed string, now time.Time) (resetOutcome, error) {
	rec, err := s.ledger.GetResetToken(ctx, tokenHash, now)
	if err != nil {
		return resetOutcome{}, fmt.Errorf("reset password: load token: %w", err)
	}
	if rec == nil {
		return resetOutcome{}, ErrInvalidOrExpiredToken
	}
	revoked, err := backoff.Retry(ctx, func() (int64, error) {
		return s.ledger.RevokeAllRefreshTokens(ctx, rec.UserID, now)
	},
		retryBackOff(),
		backoff.WithMaxElapsedTime(s.opts.RevokeRetryMax),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("auth: revoke refresh tokens for user %s failed, retrying in %s: %v", rec.UserID, next, err)
		}),
	)
	if err != nil {
		return resetOutcome{}, fmt.Errorf("reset password: revoke refresh tokens: %w", err)
	}

	taken, err := s.ledger.ConsumeResetToken(ctx, tokenHash, now)
	if err != nil {
		return resetOutcome{}, fmt.Errorf("reset password: consume token: %w", err)
	}
	if taken == nil {
		return resetOutcome{}, ErrInvalidOrExpiredToken
	}
	ok, err := s.users.UpdatePasswordHash(ctx, taken.UserID, hashed, now)
	if err != nil || !ok {
		if rerr := s.ledger.ReleaseResetToken(ctx, taken, now); rerr != nil {
			log.Printf("auth: release reset token %s: %v", taken.ID, rerr)
		}
		if err != nil {
			return resetOutcome{}, fmt.Errorf("reset password: update user: %w", err)
		}
		return resetOutcome{}, fmt.Errorf("reset password: user %s of reset token %s is gone", taken.UserID, taken.ID)
	}

	// Catches sessions opened with the old password between the revoke and the update.
	if n, err := s.ledger.RevokeAllRefreshTokens(ctx, taken.UserID, now); err != nil {
		log.Printf("auth: revoke refresh tokens for user %s after reset: %v", taken.UserID, err)
	} else {
		revoked += n
	}
	return resetOutcome{userID: taken.UserID, revoked: revoked}, nil
}
