// Package handler exposes the auth service over HTTP/JSON.
package handler

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	identitydomain "authcore/internal/identity/domain"
	"authcore/internal/identity/service"
	"authcore/internal/server/middleware"
	"authcore/internal/server/respond"
)

const forgotPasswordMessage = "If email exists, reset link sent"

// AuthHandler serves the /api/auth and /api/user routes. Bearer routes expect
// middleware.RequireBearer to have set the user id.
type AuthHandler struct {
	svc *service.AuthService
}

// NewAuthHandler returns an AuthHandler. If svc is nil, every route answers 501.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	UserID string `json:"userId"`
	OTP    string `json:"otp"`
}

type otpRequest struct {
	OTP string `json:"otp"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokensResponse struct {
	Success          bool      `json:"success"`
	UserID           string    `json:"userId,omitempty"`
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type ackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type profileResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Is2FAEnabled bool   `json:"is2faEnabled"`
}

type activityEntry struct {
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"createdAt"`
}

func tokensBody(userID string, t *identitydomain.Tokens) tokensResponse {
	return tokensResponse{
		Success:          true,
		UserID:           userID,
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshExpiresAt: t.RefreshExpiresAt,
	}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Phone, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]interface{}{"success": true, "userId": res.UserID})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Status == identitydomain.LoginOTPPending {
		respond.JSON(w, http.StatusOK, map[string]interface{}{"requires2fa": true, "userId": res.UserID})
		return
	}
	respond.JSON(w, http.StatusOK, tokensBody(res.UserID, res.Tokens))
}

// VerifyOTP handles POST /api/auth/verify-otp.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyOTP(r.Context(), req.UserID, req.OTP)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, tokensBody(res.UserID, res.Tokens))
}

// Enable2FA handles POST /api/auth/enable-2fa (bearer).
func (h *AuthHandler) Enable2FA(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		notImplemented(w)
		return
	}
	userID, _ := middleware.GetUserID(r.Context())
	if err := h.svc.RequestEnable2FA(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, ackResponse{Success: true, Message: "OTP sent"})
}

// Verify2FASetup handles POST /api/auth/verify-2fa-setup (bearer).
func (h *AuthHandler) Verify2FASetup(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID, _ := middleware.GetUserID(r.Context())
	if err := h.svc.ConfirmEnable2FA(r.Context(), userID, req.OTP); err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, ackResponse{Success: true})
}

// Profile handles GET /api/user/profile (bearer).
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		notImplemented(w)
		return
	}
	userID, _ := middleware.GetUserID(r.Context())
	p, err := h.svc.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user": profileResponse{
			ID:           p.ID,
			Name:         p.Name,
			Email:        p.Email,
			Phone:        p.Phone,
			Is2FAEnabled: p.Is2FAEnabled,
		},
	})
}

// Activity handles GET /api/user/activity?limit=N (bearer).
func (h *AuthHandler) Activity(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		notImplemented(w)
		return
	}
	userID, _ := middleware.GetUserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.svc.ListActivity(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]activityEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, activityEntry{Action: l.Action, Resource: l.Resource, IP: l.IP, CreatedAt: l.CreatedAt})
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"success": true, "activity": out})
}

// ForgotPassword handles POST /api/auth/forgot-password. The answer never depends on the email.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.svc.ForgotPassword(r.Context(), req.Email)
	respond.JSON(w, http.StatusOK, ackResponse{Success: true, Message: forgotPasswordMessage})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, ackResponse{Success: true, Message: "Password reset successful"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, tokensBody(res.UserID, res.Tokens))
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, ackResponse{Success: true})
}

// decode checks the service is wired and reads the JSON body. It writes the
// response and returns false when the request cannot proceed.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if h.svc == nil {
		notImplemented(w)
		return false
	}
	if err := respond.DecodeJSON(w, r, dst); err != nil {
		respond.Error(w, http.StatusBadRequest, string(service.KindInvalidInput), err.Error())
		return false
	}
	return true
}

func notImplemented(w http.ResponseWriter) {
	respond.Error(w, http.StatusNotImplemented, "NotImplemented", "auth service is not configured")
}

var kindStatus = map[service.ErrorKind]struct {
	status  int
	message string
}{
	service.KindDuplicateEmail:        {http.StatusConflict, "Email already exists"},
	service.KindInvalidCredentials:    {http.StatusUnauthorized, "Invalid credentials"},
	service.KindInvalidOTP:            {http.StatusUnauthorized, "Invalid OTP"},
	service.KindInvalidOrExpiredToken: {http.StatusBadRequest, "Invalid or expired token"},
	service.KindInvalidRefreshToken:   {http.StatusUnauthorized, "Invalid or expired refresh token"},
	service.KindNotFound:              {http.StatusNotFound, "User not found"},
	service.KindInvalidInput:          {http.StatusBadRequest, "Invalid input"},
	service.KindTooManyAttempts:       {http.StatusTooManyRequests, "Too many attempts, try again later"},
	service.KindInternal:              {http.StatusInternalServerError, "Server error"},
}

// writeServiceError maps a service error to its kind and status. Only InvalidInput
// echoes the validation message; internal errors are logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.Kind(err)
	m := kindStatus[kind]
	msg := m.message
	switch kind {
	case service.KindInvalidInput:
		msg = strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
	case service.KindInternal:
		log.Printf("auth: %s %s: %v", r.Method, r.URL.Path, err)
	}
	respond.Error(w, m.status, string(kind), msg)
}
