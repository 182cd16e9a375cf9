package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/accounts/internal/apperr"
	"github.com/dukerupert/accounts/internal/auth"
	"github.com/dukerupert/accounts/internal/middleware"
	"github.com/dukerupert/accounts/internal/validate"
)

type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*auth.Result, error)
	Revoke(ctx context.Context, token string) error
}

type AuthHandler struct {
	responder
	auth Authenticator
}

func NewAuthHandler(a Authenticator, clock clockwork.Clock, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		responder: responder{logger: logger.With("component", "auth_handler"), clock: clock},
		auth:      a,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, apperr.AuthenticationFailed())
		return
	}
	if !validate.IsEmail(req.Email) {
		h.writeError(w, r, apperr.AuthenticationFailed())
		return
	}

	res, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Logout revokes the bearer token if one is sent. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if tok := middleware.BearerToken(r); tok != "" {
		if err := h.auth.Revoke(r.Context(), tok); err != nil {
			h.logger.WarnContext(r.Context(), "revoke token on logout", "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}
