package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/accounts/internal/account"
)

type PasswordResetter interface {
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in account.ResetInput) error
}

type PasswordHandler struct {
	responder
	accounts PasswordResetter
}

func NewPasswordHandler(accounts PasswordResetter, clock clockwork.Clock, logger *slog.Logger) *PasswordHandler {
	return &PasswordHandler{
		responder: responder{logger: logger.With("component", "password_handler"), clock: clock},
		accounts:  accounts,
	}
}

func (h *PasswordHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, "Check your e-mail for resetting your password")
}

func (h *PasswordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req account.ResetInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, "Password updated")
}
