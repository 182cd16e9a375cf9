// Package account implements the user lifecycle: registration with e-mail
// activation, listing, profile updates, deletion and password reset.
package account

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/accounts/internal/apperr"
	"github.com/dukerupert/accounts/internal/auth"
	"github.com/dukerupert/accounts/internal/model"
	"github.com/dukerupert/accounts/internal/store"
	"github.com/dukerupert/accounts/internal/token"
	"github.com/dukerupert/accounts/internal/validate"
)

type UserStore interface {
	Create(ctx context.Context, p store.CreateUserParams) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByPasswordResetToken(ctx context.Context, resetToken string) (*model.User, error)
	Activate(ctx context.Context, activationToken string) (bool, error)
	DeleteUnactivated(ctx context.Context, id int64, activationToken string) error
	ListActive(ctx context.Context, excludeID int64, page, size int) ([]model.User, int, error)
	UpdateProfile(ctx context.Context, id int64, username string, image *string) (*model.User, error)
	Delete(ctx context.Context, id int64) error
	SetPasswordResetToken(ctx context.Context, id int64, resetToken string) error
	ClearPasswordResetToken(ctx context.Context, id int64, resetToken string) error
	ResetPassword(ctx context.Context, resetToken, passwordHash string) (int64, bool, error)
}

type Mailer interface {
	SendAccountActivation(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
}

type ImageStore interface {
	Save(ctx context.Context, data []byte) (string, error)
	Delete(ctx context.Context, handle string) error
}

type Service struct {
	users    UserStore
	mailer   Mailer
	images   ImageStore
	hasher   auth.Hasher
	newToken token.Func
	logger   *slog.Logger
}

type Option func(*Service)

func WithHasher(h auth.Hasher) Option { return func(s *Service) { s.hasher = h } }

func WithTokenFunc(fn token.Func) Option { return func(s *Service) { s.newToken = fn } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(users UserStore, mailer Mailer, images ImageStore, opts ...Option) *Service {
	s := &Service{
		users:    users,
		mailer:   mailer,
		images:   images,
		hasher:   auth.BcryptHasher{},
		newToken: token.New,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "account")
	return s
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an inactive user and mails its activation token. If the
// mail cannot be sent the user is removed again.
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	errs := validate.Errors{}
	errs.Add("username", validate.Username(in.Username))
	errs.Add("email", validate.Email(in.Email))
	errs.Add("password", validate.Password(in.Password))

	if _, ok := errs["email"]; !ok {
		existing, err := s.users.GetByEmail(ctx, in.Email)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
		if existing != nil {
			errs.Add("email", validate.MsgEmailInUse)
		}
	}
	if _, ok := errs["username"]; !ok {
		existing, err := s.users.GetByUsername(ctx, in.Username)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
		if existing != nil {
			errs.Add("username", validate.MsgUsernameInUse)
		}
	}
	if len(errs) > 0 {
		return apperr.Validation(errs)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	activation, err := s.newToken()
	if err != nil {
		return fmt.Errorf("activation token: %w", err)
	}

	u, err := s.users.Create(ctx, store.CreateUserParams{
		Username:        in.Username,
		Email:           in.Email,
		PasswordHash:    hash,
		ActivationToken: activation,
	})
	if errors.Is(err, store.ErrDuplicate) {
		// lost a race with a concurrent registration
		return apperr.Validation(validate.Errors{"email": validate.MsgEmailInUse})
	}
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if err := s.mailer.SendAccountActivation(ctx, u.Email, activation); err != nil {
		s.logger.Error("send activation email", "user_id", u.ID, "error", err)
		if derr := s.users.DeleteUnactivated(context.WithoutCancel(ctx), u.ID, activation); derr != nil {
			s.logger.Error("remove unactivated user", "user_id", u.ID, "error", derr)
		}
		return apperr.EmailDelivery(err)
	}

	s.logger.Info("user registered", "user_id", u.ID)
	return nil
}

// Activate redeems an activation token.
func (s *Service) Activate(ctx context.Context, activationToken string) error {
	ok, err := s.users.Activate(ctx, activationToken)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if !ok {
		return apperr.InvalidToken(apperr.MsgInvalidActivation)
	}
	return nil
}

// List returns one page of active users, leaving out the caller (callerID 0
// for anonymous requests).
func (s *Service) List(ctx context.Context, callerID int64, page, size int) (*model.UserPage, error) {
	users, total, err := s.users.ListActive(ctx, callerID, page, size)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	content := make([]model.UserView, 0, len(users))
	for i := range users {
		content = append(content, users[i].View())
	}
	return &model.UserPage{
		Content:    content,
		Page:       page,
		Size:       size,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// Get returns an active user. Inactive users are reported as not found.
func (s *Service) Get(ctx context.Context, id int64) (*model.UserView, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil || u.Inactive {
		return nil, apperr.NotFound(apperr.MsgUserNotFound)
	}
	v := u.View()
	return &v, nil
}

type UpdateInput struct {
	Username string  `json:"username"`
	Image    *string `json:"image"`
}

// Update changes the username and, when an image is given, replaces the
// stored profile image. The caller must already be authorized for id.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*model.UserView, error) {
	errs := validate.Errors{}
	errs.Add("username", validate.Username(in.Username))

	var image []byte
	if in.Image != nil && *in.Image != "" {
		data, err := decodeImage(*in.Image)
		if err != nil {
			errs.Add("image", validate.MsgImageEncoding)
		} else {
			_, msg := validate.Image(data)
			errs.Add("image", msg)
			image = data
		}
	}
	if len(errs) > 0 {
		return nil, apperr.Validation(errs)
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if u == nil {
		return nil, apperr.NotFound(apperr.MsgUserNotFound)
	}

	handle := u.Image
	if image != nil {
		h, err := s.images.Save(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("save image: %w", err)
		}
		handle = &h
	}

	updated, err := s.users.UpdateProfile(ctx, id, in.Username, handle)
	if err != nil {
		if image != nil {
			s.deleteImage(ctx, *handle)
		}
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Validation(validate.Errors{"username": validate.MsgUsernameInUse})
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	if image != nil && u.Image != nil {
		s.deleteImage(ctx, *u.Image)
	}

	v := updated.View()
	return &v, nil
}

// Delete removes the user and its sessions, then its profile image.
func (s *Service) Delete(ctx context.Context, id int64) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if u == nil {
		return nil
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if u.Image != nil {
		s.deleteImage(ctx, *u.Image)
	}
	s.logger.Info("user deleted", "user_id", id)
	return nil
}

// RequestPasswordReset stores a fresh reset token for the account and mails
// it. If the mail cannot be sent the token is withdrawn.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if !validate.IsEmail(email) {
		return apperr.Validation(validate.Errors{"email": validate.MsgEmailInvalid})
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("password reset: %w", err)
	}
	if u == nil {
		return apperr.NotFound(apperr.MsgResetEmailNotFound)
	}

	resetToken, err := s.newToken()
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	if err := s.users.SetPasswordResetToken(ctx, u.ID, resetToken); err != nil {
		return fmt.Errorf("password reset: %w", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, u.Email, resetToken); err != nil {
		s.logger.Error("send password reset email", "user_id", u.ID, "error", err)
		if cerr := s.users.ClearPasswordResetToken(context.WithoutCancel(ctx), u.ID, resetToken); cerr != nil {
			s.logger.Error("clear password reset token", "user_id", u.ID, "error", cerr)
		}
		return apperr.EmailDelivery(err)
	}
	return nil
}

type ResetInput struct {
	Password           string `json:"password"`
	PasswordResetToken string `json:"passwordResetToken"`
}

// ResetPassword redeems a reset token. The account is activated and every
// session of the user is revoked along with the password change.
func (s *Service) ResetPassword(ctx context.Context, in ResetInput) error {
	if in.PasswordResetToken == "" {
		return apperr.Forbidden(apperr.MsgUnauthorizedReset)
	}
	u, err := s.users.GetByPasswordResetToken(ctx, in.PasswordResetToken)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if u == nil {
		return apperr.Forbidden(apperr.MsgUnauthorizedReset)
	}

	if msg := validate.Password(in.Password); msg != "" {
		return apperr.Validation(validate.Errors{"password": msg})
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	userID, ok, err := s.users.ResetPassword(ctx, in.PasswordResetToken, hash)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if !ok {
		return apperr.Forbidden(apperr.MsgUnauthorizedReset)
	}

	s.logger.Info("password reset", "user_id", userID)
	return nil
}

func (s *Service) deleteImage(ctx context.Context, handle string) {
	if err := s.images.Delete(context.WithoutCancel(ctx), handle); err != nil {
		s.logger.Warn("delete image", "image", handle, "error", err)
	}
}

// decodeImage accepts standard base64, with or without a data URL prefix.
func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(s)
}
