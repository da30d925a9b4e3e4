package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"authcore/internal/audit"
	auditrepo "authcore/internal/audit/repository"
	"authcore/internal/db"
	"authcore/internal/db/dbtest"
	"authcore/internal/identity/service"
	identityrepo "authcore/internal/identity/repository"
	ledgerrepo "authcore/internal/ledger/repository"
	"authcore/internal/notify"
	"authcore/internal/security"
	"authcore/internal/server/middleware"
	"authcore/internal/server/respond"
	userrepo "authcore/internal/user/repository"
)

var resetTokenPattern = regexp.MustCompile(`reset-password\?token=([0-9a-fA-F]+)`)

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Enqueue(msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(t *testing.T) notify.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no message enqueued")
	return o.msgs[len(o.msgs)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

type testServer struct {
	router http.Handler
	outbox *outbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sqlDB := dbtest.OpenSQLite(t)
	tokens, err := security.NewTestTokenIssuer()
	require.NoError(t, err)
	ob := &outbox{}
	audits := auditrepo.NewSQLRepository(sqlDB, db.SQLite)
	svc, err := service.NewAuthService(service.Deps{
		Users:    userrepo.NewSQLRepository(sqlDB, db.SQLite),
		Ledger:   ledgerrepo.NewSQLRepository(sqlDB, db.SQLite),
		Audit:    audit.NewLogger(audits, middleware.ClientIPFromContext),
		Activity: audits,
		Resets:   identityrepo.NewSQLPasswordResets(sqlDB, db.SQLite),
		ClientIP: middleware.ClientIPFromContext,
		Hasher:   security.NewHasher(bcrypt.MinCost),
		Tokens:   tokens,
		Notifier: ob,
	}, service.Options{FrontendURL: "http://app.test"})
	require.NoError(t, err)
	return &testServer{router: mount(NewAuthHandler(svc), tokens), outbox: ob}
}

func mount(h *AuthHandler, tokens middleware.AccessVerifier) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/verify-otp", h.VerifyOTP)
	r.Post("/api/auth/forgot-password", h.ForgotPassword)
	r.Post("/api/auth/reset-password", h.ResetPassword)
	r.Post("/api/auth/refresh", h.Refresh)
	r.Post("/api/auth/logout", h.Logout)
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.RequireBearer(tokens))
		pr.Post("/api/auth/enable-2fa", h.Enable2FA)
		pr.Post("/api/auth/verify-2fa-setup", h.Verify2FASetup)
		pr.Get("/api/user/profile", h.Profile)
		pr.Get("/api/user/activity", h.Activity)
	})
	return r
}

func (s *testServer) do(t *testing.T, method, path, bearer, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func jsonBody(t *testing.T, v interface{}) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return buf.String()
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) respond.ErrorDetail {
	t.Helper()
	var body respond.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

// registerAndLogin registers ana@example.com, completes the OTP step and returns the token body.
func (s *testServer) registerAndLogin(t *testing.T) map[string]interface{} {
	t.Helper()
	rec, reg := s.do(t, http.MethodPost, "/api/auth/register", "", jsonBody(t, map[string]string{
		"name": "Ana", "email": "ana@example.com", "phone": "+15550100", "password": "password123",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	userID := reg["userId"].(string)

	rec, login := s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, login["requires2fa"])
	assert.Equal(t, userID, login["userId"])
	assert.NotContains(t, login, "accessToken")

	code := s.outbox.last(t).OTP
	rec, tokens := s.do(t, http.MethodPost, "/api/auth/verify-otp", "", jsonBody(t, map[string]string{"userId": userID, "otp": code}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return tokens
}

func TestAuthHandler_TwoFactorFlow(t *testing.T) {
	s := newTestServer(t)
	tokens := s.registerAndLogin(t)
	assert.Equal(t, true, tokens["success"])
	access := tokens["accessToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, tokens["refreshToken"])

	rec, profile := s.do(t, http.MethodGet, "/api/user/profile", access, "")
	require.Equal(t, http.StatusOK, rec.Code)
	user := profile["user"].(map[string]interface{})
	assert.Equal(t, "ana@example.com", user["email"])
	assert.Equal(t, true, user["is2faEnabled"])
	assert.NotContains(t, user, "passwordHash")
}

func TestAuthHandler_ReplayedOTP(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t)
	used := s.outbox.last(t).OTP

	_, login := s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"password123"}`)
	userID := login["userId"].(string)
	if s.outbox.last(t).OTP == used {
		t.Skip("fresh code collided with the consumed one")
	}
	rec, _ := s.do(t, http.MethodPost, "/api/auth/verify-otp", "", jsonBody(t, map[string]string{"userId": userID, "otp": used}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "InvalidOtp", errorKind(t, rec).Kind)
}

func TestAuthHandler_Errors(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		kind   string
	}{
		{"duplicate email", "/api/auth/register", `{"name":"A","email":"ANA@example.com","password":"password123"}`, http.StatusConflict, "DuplicateEmail"},
		{"short password", "/api/auth/register", `{"name":"B","email":"b@example.com","password":"short"}`, http.StatusBadRequest, "InvalidInput"},
		{"bad email", "/api/auth/register", `{"name":"B","email":"nope","password":"password123"}`, http.StatusBadRequest, "InvalidInput"},
		{"unknown field", "/api/auth/login", `{"email":"ana@example.com","password":"x","extra":1}`, http.StatusBadRequest, "InvalidInput"},
		{"empty body", "/api/auth/login", ``, http.StatusBadRequest, "InvalidInput"},
		{"wrong password", "/api/auth/login", `{"email":"ana@example.com","password":"wrongpass1"}`, http.StatusUnauthorized, "InvalidCredentials"},
		{"unknown email", "/api/auth/login", `{"email":"ghost@example.com","password":"password123"}`, http.StatusUnauthorized, "InvalidCredentials"},
		{"bad otp", "/api/auth/verify-otp", `{"userId":"nobody","otp":"123456"}`, http.StatusUnauthorized, "InvalidOtp"},
		{"bad reset token", "/api/auth/reset-password", `{"token":"deadbeef","password":"password456"}`, http.StatusBadRequest, "InvalidOrExpiredToken"},
		{"bad refresh token", "/api/auth/refresh", `{"refreshToken":"garbage"}`, http.StatusUnauthorized, "InvalidRefreshToken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := s.do(t, http.MethodPost, tc.path, "", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.kind, errorKind(t, rec).Kind)
		})
	}
}

func TestAuthHandler_WrongPasswordAndUnknownEmailMatch(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t)
	a, _ := s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"wrongpass1"}`)
	b, _ := s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ghost@example.com","password":"wrongpass1"}`)
	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Body.String(), b.Body.String())
}

func TestAuthHandler_BearerRequired(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/api/user/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", errorKind(t, rec).Message)

	rec, _ = s.do(t, http.MethodGet, "/api/user/profile", "not-a-jwt", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid token", errorKind(t, rec).Message)

	// A refresh token is not an access token.
	tokens := s.registerAndLogin(t)
	rec, _ = s.do(t, http.MethodGet, "/api/user/profile", tokens["refreshToken"].(string), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthHandler_ForgotPasswordIsUniform(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t)
	before := s.outbox.count()

	known, _ := s.do(t, http.MethodPost, "/api/auth/forgot-password", "", `{"email":"ana@example.com"}`)
	unknown, _ := s.do(t, http.MethodPost, "/api/auth/forgot-password", "", `{"email":"ghost@example.com"}`)
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Contains(t, known.Body.String(), forgotPasswordMessage)
	assert.Equal(t, before+1, s.outbox.count(), "only the registered address gets mail")
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	s := newTestServer(t)
	first := s.registerAndLogin(t)

	s.do(t, http.MethodPost, "/api/auth/forgot-password", "", `{"email":"ana@example.com"}`)
	m := resetTokenPattern.FindStringSubmatch(s.outbox.last(t).Body)
	require.Len(t, m, 2)
	token := m[1]

	rec, out := s.do(t, http.MethodPost, "/api/auth/reset-password", "", jsonBody(t, map[string]string{"token": token, "password": "newpassword1"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Password reset successful", out["message"])

	rec, _ = s.do(t, http.MethodPost, "/api/auth/reset-password", "", jsonBody(t, map[string]string{"token": token, "password": "newpassword2"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reset token is single use")

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", jsonBody(t, map[string]string{"refreshToken": first["refreshToken"].(string)}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "reset revokes refresh tokens")

	rec, _ = s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"newpassword1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthHandler_RefreshAndLogout(t *testing.T) {
	s := newTestServer(t)
	first := s.registerAndLogin(t)
	refresh := first["refreshToken"].(string)

	rec, second := s.do(t, http.MethodPost, "/api/auth/refresh", "", jsonBody(t, map[string]string{"refreshToken": refresh}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := second["refreshToken"].(string)
	assert.NotEqual(t, refresh, rotated)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/logout", "", jsonBody(t, map[string]string{"refreshToken": rotated}))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", jsonBody(t, map[string]string{"refreshToken": rotated}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandler_EnableTwoFactor(t *testing.T) {
	s := newTestServer(t)
	tokens := s.registerAndLogin(t)
	access := tokens["accessToken"].(string)

	rec, out := s.do(t, http.MethodPost, "/api/auth/enable-2fa", access, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "OTP sent", out["message"])
	code := s.outbox.last(t).OTP

	rec, _ = s.do(t, http.MethodPost, "/api/auth/verify-2fa-setup", access, `{"otp":"abc"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, out = s.do(t, http.MethodPost, "/api/auth/verify-2fa-setup", access, jsonBody(t, map[string]string{"otp": code}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["success"])

	rec, out = s.do(t, http.MethodGet, "/api/user/activity?limit=5", access, "")
	require.Equal(t, http.StatusOK, rec.Code)
	activity := out["activity"].([]interface{})
	assert.NotEmpty(t, activity)
	assert.LessOrEqual(t, len(activity), 5)
}

func TestAuthHandler_NilService(t *testing.T) {
	tokens, err := security.NewTestTokenIssuer()
	require.NoError(t, err)
	r := mount(NewAuthHandler(nil), tokens)

	for _, path := range []string{"/api/auth/register", "/api/auth/login", "/api/auth/forgot-password"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, path)
	}
}
