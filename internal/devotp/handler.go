package devotp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"authcore/internal/server/respond"
)

// Handler serves GET /dev/otp/{userId}. Register it only in development.
type Handler struct {
	store Store
}

// NewHandler returns a Handler reading from store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type otpResponse struct {
	OTP  string `json:"otp"`
	Note string `json:"note"`
}

// ServeHTTP returns the latest live OTP for the user, or 404.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		respond.Error(w, http.StatusBadRequest, "InvalidInput", "userId is required")
		return
	}
	otp, ok := h.store.Get(r.Context(), userID)
	if !ok {
		respond.Error(w, http.StatusNotFound, "NotFound", "no otp for user")
		return
	}
	respond.JSON(w, http.StatusOK, otpResponse{OTP: otp, Note: "DEV MODE ONLY"})
}
