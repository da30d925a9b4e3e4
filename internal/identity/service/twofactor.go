package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"authcore/internal/audit"
	ledgerdomain "authcore/internal/ledger/domain"
	"authcore/internal/mfa"
	"authcore/internal/notify"
	"authcore/internal/ratelimit"
	"authcore/internal/security"
	userdomain "authcore/internal/user/domain"
)

var otpSubjects = map[ledgerdomain.Purpose]string{
	ledgerdomain.PurposeLogin:     "Your OTP Code",
	ledgerdomain.PurposeEnable2FA: "Enable 2FA OTP",
}

// RequestEnable2FA sends an enrollment OTP to userID. The 2FA flag is unchanged until ConfirmEnable2FA.
func (s *AuthService) RequestEnable2FA(ctx context.Context, userID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.RequestEnable2FA")
	defer func() { endSpan(span, err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("enable 2fa: load user: %w", err)
	}
	if user == nil {
		return ErrNotFound
	}
	return s.issueOTP(ctx, user, ledgerdomain.PurposeEnable2FA)
}

// ConfirmEnable2FA consumes an OTP of userID and turns 2FA on. Confirming twice is harmless.
func (s *AuthService) ConfirmEnable2FA(ctx context.Context, userID, code string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ConfirmEnable2FA")
	defer func() { endSpan(span, err) }()

	if err := s.consumeOTP(ctx, userID, code); err != nil {
		return err
	}
	ok, err := s.users.SetTwoFactorEnabled(ctx, userID, true, s.clock())
	if err != nil {
		return fmt.Errorf("enable 2fa: update user: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	s.record(ctx, userID, audit.ActionOTPVerified, map[string]string{"purpose": string(ledgerdomain.PurposeEnable2FA)})
	s.record(ctx, userID, audit.ActionTwoFactorEnabled, nil)
	return nil
}

// issueOTP persists a fresh code for user and queues its delivery. Delivery is never awaited.
func (s *AuthService) issueOTP(ctx context.Context, user *userdomain.User, purpose ledgerdomain.Purpose) error {
	code, err := mfa.GenerateOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	now := s.clock()
	rec := &ledgerdomain.OTPCode{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		CodeHash:  security.HashToken(code),
		Purpose:   purpose,
		ExpiresAt: now.Add(s.opts.OTPTTL),
		CreatedAt: now,
	}
	if err := s.ledger.CreateOTP(ctx, rec); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	if s.devOTP != nil {
		s.devOTP.Put(ctx, user.ID, code, rec.ExpiresAt)
	}
	msg := s.otpMessage(user, code, purpose)
	s.send(msg)
	s.record(ctx, user.ID, audit.ActionOTPSent, map[string]string{"purpose": string(purpose), "channel": string(msg.Channel)})
	return nil
}

func (s *AuthService) otpMessage(user *userdomain.User, code string, purpose ledgerdomain.Purpose) notify.Message {
	if s.opts.OTPChannel == notify.ChannelSMS && user.Phone != "" {
		return notify.OTPSMS(user.Phone, code, s.opts.OTPTTL)
	}
	return notify.OTPEmail(user.Email, otpSubjects[purpose], code, s.opts.OTPTTL)
}

// consumeOTP takes one live OTP of userID matching code. Any miss is ErrInvalidOTP.
func (s *AuthService) consumeOTP(ctx context.Context, userID, code string) error {
	if userID == "" {
		return ErrInvalidOTP
	}
	if !s.attempt(ctx, ratelimit.OTPRule, userID) {
		return ErrTooManyAttempts
	}
	if !mfa.ValidOTPFormat(code) {
		s.otpFailed(ctx, userID)
		return ErrInvalidOTP
	}
	rec, err := s.ledger.ConsumeOTP(ctx, userID, security.HashToken(code), s.clock())
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if rec == nil {
		s.otpFailed(ctx, userID)
		return ErrInvalidOTP
	}
	s.reset(ctx, ratelimit.OTPRule, userID)
	if s.devOTP != nil {
		s.devOTP.Delete(ctx, userID)
	}
	return nil
}

func (s *AuthService) otpFailed(ctx context.Context, userID string) {
	s.record(ctx, userID, audit.ActionOTPFailure, nil)
}

func (s *AuthService) send(msg notify.Message) {
	if s.notifier == nil {
		log.Printf("auth: no notifier configured; dropping %s message to %s", msg.Channel, notify.MaskRecipient(msg.Recipient))
		return
	}
	if err := s.notifier.Enqueue(msg); err != nil {
		log.Printf("auth: enqueue %s message to %s: %v", msg.Channel, notify.MaskRecipient(msg.Recipient), err)
	}
}
