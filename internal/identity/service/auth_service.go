package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"authcore/internal/audit"
	auditdomain "authcore/internal/audit/domain"
	"authcore/internal/devotp"
	identitydomain "authcore/internal/identity/domain"
	ledgerdomain "authcore/internal/ledger/domain"
	"authcore/internal/notify"
	"authcore/internal/policy/engine"
	"authcore/internal/ratelimit"
	"authcore/internal/security"
	"authcore/internal/telemetry"
	teldomain "authcore/internal/telemetry/domain"
	userdomain "authcore/internal/user/domain"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72

	eventSource   = "auth"
	auditResource = "auth"
)

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, now time.Time) (bool, error)
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool, now time.Time) (bool, error)
}

// LedgerRepo is the minimal token ledger needed by the auth service.
type LedgerRepo interface {
	CreateOTP(ctx context.Context, c *ledgerdomain.OTPCode) error
	ConsumeOTP(ctx context.Context, userID, codeHash string, now time.Time) (*ledgerdomain.OTPCode, error)
	CreateRefreshToken(ctx context.Context, t *ledgerdomain.RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*ledgerdomain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*ledgerdomain.RefreshToken, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error)
	CreateResetToken(ctx context.Context, t *ledgerdomain.ResetToken) error
	GetResetToken(ctx context.Context, tokenHash string, now time.Time) (*ledgerdomain.ResetToken, error)
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*ledgerdomain.ResetToken, error)
	ReleaseResetToken(ctx context.Context, t *ledgerdomain.ResetToken, now time.Time) error
}

// ActivityRepo lists a user's audit trail.
type ActivityRepo interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*auditdomain.AuditLog, error)
}

// Notifier queues an out-of-band message. Enqueue must not block on delivery.
type Notifier interface {
	Enqueue(msg notify.Message) error
}

// AttemptLimiter counts attempts per subject. Reserve is called before an attempt is
// evaluated, so concurrent attempts cannot overrun the budget. *ratelimit.Limiter implements it.
type AttemptLimiter interface {
	Reserve(ctx context.Context, rule ratelimit.Rule, subject string) (bool, error)
	Reset(ctx context.Context, rule ratelimit.Rule, subject string) error
}

// PasswordResetStore applies a password reset as one transaction: consume the live reset
// token, store the new hash and revoke every refresh token of the user. It returns an
// empty userID when the token is unknown, used or expired.
type PasswordResetStore interface {
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (userID string, revoked int64, err error)
}

// Deps holds the collaborators of AuthService. Users, Ledger, Hasher and Tokens are required.
type Deps struct {
	Users  UserRepo
	Ledger LedgerRepo
	Hasher *security.Hasher
	Tokens *security.TokenIssuer
	// Notifier delivers OTPs and reset links. If nil, messages are dropped with a log line.
	Notifier Notifier
	// Policy decides whether a login needs an OTP. If nil, the user's 2FA flag decides.
	Policy engine.Evaluator
	// Limiter throttles login and OTP guessing. If nil, attempts are not limited.
	Limiter AttemptLimiter
	// Audit records auth events. If nil, nothing is audited.
	Audit audit.AuditLogger
	// Activity backs ListActivity. If nil, ListActivity returns an empty list.
	Activity ActivityRepo
	// Telemetry receives auth events asynchronously. If nil, no events are emitted.
	Telemetry telemetry.EventEmitter
	// DevOTP keeps the latest plaintext OTP per user. Set only in dev OTP mode.
	DevOTP devotp.Store
	// Resets runs ResetPassword in a single transaction when users and ledger share a
	// database. If nil, the reset runs as ordered ledger and user writes.
	Resets PasswordResetStore
	// ClientIP returns the caller's address from ctx. Used to key per-client throttles.
	ClientIP func(ctx context.Context) string
}

// Options tunes AuthService. Zero values select the defaults.
type Options struct {
	OTPTTL        time.Duration
	ResetTokenTTL time.Duration
	// OTPChannel is the preferred OTP medium. SMS falls back to email for users without a phone.
	OTPChannel  notify.Channel
	FrontendURL string
	// RevokeRetryMax bounds the retries of the bulk refresh-token revocation after a password reset.
	RevokeRetryMax time.Duration
}

func (o Options) withDefaults() Options {
	if o.OTPTTL <= 0 {
		o.OTPTTL = 5 * time.Minute
	}
	if o.ResetTokenTTL <= 0 {
		o.ResetTokenTTL = time.Hour
	}
	if o.OTPChannel == "" {
		o.OTPChannel = notify.ChannelEmail
	}
	if o.FrontendURL == "" {
		o.FrontendURL = "http://localhost:3000"
	}
	if o.RevokeRetryMax <= 0 {
		o.RevokeRetryMax = 5 * time.Second
	}
	return o
}

// AuthService implements register, password login with an optional OTP step,
// token refresh and logout, 2FA enrollment and password reset.
type AuthService struct {
	users     UserRepo
	ledger    LedgerRepo
	hasher    *security.Hasher
	tokens    *security.TokenIssuer
	notifier  Notifier
	policy    engine.Evaluator
	limiter   AttemptLimiter
	audit     audit.AuditLogger
	activity  ActivityRepo
	telemetry telemetry.EventEmitter
	devOTP    devotp.Store
	resets    PasswordResetStore
	clientIP  func(ctx context.Context) string
	opts      Options

	// dummyHash is compared against on unknown emails so both login paths pay for bcrypt.
	dummyHash string
	now       func() time.Time
	tracer    trace.Tracer
	events    metric.Int64Counter
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(deps Deps, opts Options) (*AuthService, error) {
	if deps.Users == nil || deps.Ledger == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("auth service: users, ledger, hasher and tokens are required")
	}
	dummy, err := deps.Hasher.Hash([]byte(uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("auth service: dummy hash: %w", err)
	}
	events, err := otel.Meter("authcore/identity").Int64Counter("authcore.auth.events",
		metric.WithDescription("Auth events by type"))
	if err != nil {
		return nil, fmt.Errorf("auth service: counter: %w", err)
	}
	return &AuthService{
		users:     deps.Users,
		ledger:    deps.Ledger,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		notifier:  deps.Notifier,
		policy:    deps.Policy,
		limiter:   deps.Limiter,
		audit:     deps.Audit,
		activity:  deps.Activity,
		telemetry: deps.Telemetry,
		devOTP:    deps.DevOTP,
		resets:    deps.Resets,
		clientIP:  deps.ClientIP,
		opts:      opts.withDefaults(),
		dummyHash: dummy,
		now:       time.Now,
		tracer:    otel.Tracer("authcore/identity"),
		events:    events,
	}, nil
}

// SetClock overrides the service clock. For tests.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AuthService) clock() time.Time {
	return s.now().UTC()
}

// Register creates a user with 2FA enabled. Returns AuthResult with UserID only; no tokens are issued.
func (s *AuthService) Register(ctx context.Context, name, email, phone, password string) (res *identitydomain.AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Register")
	defer func() { endSpan(span, err) }()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("register: lookup email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}
	now := s.clock()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		Phone:        strings.TrimSpace(phone),
		PasswordHash: hashed,
		Is2FAEnabled: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		if isDuplicateEmail(err) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, fmt.Errorf("register: create user: %w", err)
	}
	s.record(ctx, user.ID, audit.ActionRegister, nil)
	return &identitydomain.AuthResult{UserID: user.ID}, nil
}

// Login checks email and password. When the MFA policy requires it, an OTP is issued and
// the result is LoginOTPPending; otherwise tokens are issued.
func (s *AuthService) Login(ctx context.Context, email, password string) (res *identitydomain.LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer func() { endSpan(span, err) }()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if !s.attempt(ctx, ratelimit.LoginRule, email) {
		s.record(ctx, "", audit.ActionLoginFailure, map[string]string{"reason": "throttled"})
		return nil, ErrTooManyAttempts
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("login: lookup email: %w", err)
	}
	if user == nil {
		s.hasher.Verify(s.dummyHash, []byte(password))
		s.record(ctx, "", audit.ActionLoginFailure, map[string]string{"reason": "invalid_credentials"})
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(user.PasswordHash, []byte(password)) {
		s.record(ctx, user.ID, audit.ActionLoginFailure, map[string]string{"reason": "invalid_credentials"})
		return nil, ErrInvalidCredentials
	}
	s.reset(ctx, ratelimit.LoginRule, email)

	if !s.requireOTP(ctx, user) {
		tokens, err := s.issueTokens(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		s.record(ctx, user.ID, audit.ActionLoginSuccess, nil)
		return &identitydomain.LoginResult{Status: identitydomain.LoginAuthenticated, UserID: user.ID, Tokens: tokens}, nil
	}
	if err := s.issueOTP(ctx, user, ledgerdomain.PurposeLogin); err != nil {
		return nil, err
	}
	return &identitydomain.LoginResult{Status: identitydomain.LoginOTPPending, UserID: user.ID}, nil
}

// VerifyOTP consumes a live OTP of userID and issues tokens. A wrong, used, or expired code is ErrInvalidOTP.
func (s *AuthService) VerifyOTP(ctx context.Context, userID, code string) (res *identitydomain.AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.VerifyOTP")
	defer func() { endSpan(span, err) }()

	userID = strings.TrimSpace(userID)
	if err := s.consumeOTP(ctx, userID, code); err != nil {
		return nil, err
	}
	tokens, err := s.issueTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, userID, audit.ActionOTPVerified, map[string]string{"purpose": string(ledgerdomain.PurposeLogin)})
	s.record(ctx, userID, audit.ActionLoginSuccess, map[string]string{"method": "otp"})
	return &identitydomain.AuthResult{UserID: userID, Tokens: tokens}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new pair is issued.
// Presenting an already revoked token revokes every refresh token of the user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (res *identitydomain.AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Refresh")
	defer func() { endSpan(span, err) }()

	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	userID, jti, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	now := s.clock()
	entry, err := s.ledger.GetRefreshToken(ctx, jti)
	if err != nil {
		return nil, fmt.Errorf("refresh: load token: %w", err)
	}
	if entry == nil || entry.UserID != userID || !security.TokenHashEqual(refreshToken, entry.TokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	if entry.Revoked {
		n, err := s.ledger.RevokeAllRefreshTokens(ctx, userID, now)
		if err != nil {
			log.Printf("auth: revoke after refresh token reuse for user %s: %v", userID, err)
		} else if n > 0 {
			log.Printf("auth: refresh token reuse for user %s; revoked %d tokens", userID, n)
		}
		return nil, ErrInvalidRefreshToken
	}
	revoked, err := s.ledger.RevokeRefreshToken(ctx, entry.TokenHash, now)
	if err != nil {
		return nil, fmt.Errorf("refresh: revoke token: %w", err)
	}
	if revoked == nil {
		return nil, ErrInvalidRefreshToken
	}
	tokens, err := s.issueTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, userID, audit.ActionTokenRefreshed, nil)
	return &identitydomain.AuthResult{UserID: userID, Tokens: tokens}, nil
}

// Logout revokes the given refresh token. Invalid or unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer func() { endSpan(span, err) }()

	if refreshToken == "" {
		return nil
	}
	userID, _, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	revoked, err := s.ledger.RevokeRefreshToken(ctx, security.HashToken(refreshToken), s.clock())
	if err != nil {
		return fmt.Errorf("logout: revoke token: %w", err)
	}
	if revoked != nil {
		s.record(ctx, userID, audit.ActionLogout, nil)
	}
	return nil
}

// GetProfile returns the public profile of userID.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (_ *userdomain.Profile, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.GetProfile")
	defer func() { endSpan(span, err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("profile: load user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	p := user.Profile()
	return &p, nil
}

// ListActivity returns the most recent audit entries of userID, newest first.
func (s *AuthService) ListActivity(ctx context.Context, userID string, limit int) (_ []*auditdomain.AuditLog, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ListActivity")
	defer func() { endSpan(span, err) }()

	if s.activity == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	logs, err := s.activity.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("activity: list: %w", err)
	}
	return logs, nil
}

func (s *AuthService) issueTokens(ctx context.Context, userID string) (*identitydomain.Tokens, error) {
	access, accessExp, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, jti, refreshExp, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	entry := &ledgerdomain.RefreshToken{
		ID:        jti,
		UserID:    userID,
		TokenHash: security.HashToken(refresh),
		ExpiresAt: refreshExp,
		CreatedAt: s.clock(),
	}
	if err := s.ledger.CreateRefreshToken(ctx, entry); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &identitydomain.Tokens{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// requireOTP asks the MFA policy. Policy errors fail closed.
func (s *AuthService) requireOTP(ctx context.Context, user *userdomain.User) bool {
	if s.policy == nil {
		return user.Is2FAEnabled
	}
	required, err := s.policy.RequireOTP(ctx, engine.MFAInput{
		UserID:           user.ID,
		TwoFactorEnabled: user.Is2FAEnabled,
		HasPhone:         user.Phone != "",
	})
	if err != nil {
		log.Printf("auth: mfa policy for user %s: %v", user.ID, err)
		return true
	}
	return required
}

// attempt reserves one try of rule for subject and reports whether it may proceed.
// Limiter errors let the attempt through.
func (s *AuthService) attempt(ctx context.Context, rule ratelimit.Rule, subject string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Reserve(ctx, rule, subject)
	if err != nil {
		log.Printf("auth: limiter %s: %v", rule.Name, err)
		return true
	}
	return ok
}

func (s *AuthService) reset(ctx context.Context, rule ratelimit.Rule, subject string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(ctx, rule, subject); err != nil {
		log.Printf("auth: limiter %s: %v", rule.Name, err)
	}
}

// record writes the audit row, emits the telemetry event and bumps the event counter. Never fails.
func (s *AuthService) record(ctx context.Context, userID, action string, meta map[string]string) {
	s.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event", action)))
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, action, auditResource, metadataJSON(meta))
	}
	telemetry.EmitAsync(s.telemetry, ctx, teldomain.NewEvent(userID, action, eventSource, meta))
}

func metadataJSON(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(b)
}

// endSpan marks internal failures on span. Expected outcomes such as a wrong password are not span errors.
func endSpan(span trace.Span, err error) {
	if err != nil && Kind(err) == KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal")
	} else if err != nil {
		span.SetAttributes(attribute.String("auth.error_kind", string(Kind(err))))
	}
	span.End()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLen)
	}
	return nil
}
