package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/accounts/internal/account"
	"github.com/dukerupert/accounts/internal/apperr"
	"github.com/dukerupert/accounts/internal/auth"
	"github.com/dukerupert/accounts/internal/model"
)

type AccountService interface {
	Register(ctx context.Context, in account.RegisterInput) error
	Activate(ctx context.Context, activationToken string) error
	List(ctx context.Context, callerID int64, page, size int) (*model.UserPage, error)
	Get(ctx context.Context, id int64) (*model.UserView, error)
	Update(ctx context.Context, id int64, in account.UpdateInput) (*model.UserView, error)
	Delete(ctx context.Context, id int64) error
}

type UserHandler struct {
	responder
	accounts AccountService
}

func NewUserHandler(accounts AccountService, clock clockwork.Clock, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		responder: responder{logger: logger.With("component", "user_handler"), clock: clock},
		accounts:  accounts,
	}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.accounts.Register(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, "User created")
}

func (h *UserHandler) Activate(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Activate(r.Context(), r.PathValue("token")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, "Account is activated")
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	users, err := h.accounts.List(r.Context(), auth.UserID(r.Context()), page, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.writeError(w, r, apperr.NotFound(apperr.MsgUserNotFound))
		return
	}
	u, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil || !auth.IsUser(r.Context(), id) {
		h.writeError(w, r, apperr.Forbidden(apperr.MsgUnauthorizedUpdate))
		return
	}

	var req account.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	u, err := h.accounts.Update(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil || !auth.IsUser(r.Context(), id) {
		h.writeError(w, r, apperr.Forbidden(apperr.MsgUnauthorizedDelete))
		return
	}
	if err := h.accounts.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
