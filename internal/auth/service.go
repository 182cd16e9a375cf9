package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/accounts/internal/apperr"
	"github.com/dukerupert/accounts/internal/metrics"
	"github.com/dukerupert/accounts/internal/model"
)

// DefaultTTL is how long a session token stays valid after its last use.
const DefaultTTL = 7 * 24 * time.Hour

// ErrInvalidOrExpiredToken is returned by Verify for unknown, revoked or idle tokens.
var ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

type SessionStore interface {
	Create(ctx context.Context, userID int64) (*model.Session, error)
	GetByToken(ctx context.Context, token string) (*model.Session, error)
	Touch(ctx context.Context, token string) (time.Time, bool, error)
	Delete(ctx context.Context, token string) error
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)
	DeleteIdle(ctx context.Context, ttl time.Duration) (int64, error)
}

type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// Result is what a successful login returns to the client.
type Result struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Service authenticates credentials and issues, verifies and revokes
// opaque session tokens.
type Service struct {
	users    UserFinder
	sessions SessionStore
	hasher   Hasher
	clock    clockwork.Clock
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithHasher(h Hasher) Option { return func(s *Service) { s.hasher = h } }

// WithClock must be given the same clock as the session store.
func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }

func WithTTL(ttl time.Duration) Option { return func(s *Service) { s.ttl = ttl } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(users UserFinder, sessions SessionStore, opts ...Option) *Service {
	s := &Service{
		users:    users,
		sessions: sessions,
		hasher:   BcryptHasher{},
		clock:    clockwork.NewRealClock(),
		ttl:      DefaultTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.logger = s.logger.With("component", "auth")
	return s
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Authenticate checks credentials and issues a new session token. Unknown
// email and wrong password fail identically; an inactive account is only
// reported once the password matched.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Result, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if u == nil || !s.hasher.Matches(u.PasswordHash, password) {
		s.metrics.AuthAttemptsTotal.WithLabelValues("failed").Inc()
		return nil, apperr.AuthenticationFailed()
	}
	if u.Inactive {
		s.metrics.AuthAttemptsTotal.WithLabelValues("inactive").Inc()
		return nil, apperr.AccountInactive()
	}

	tok, err := s.Issue(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	return &Result{ID: u.ID, Username: u.Username, Token: tok}, nil
}

// Issue mints a new session token for the user.
func (s *Service) Issue(ctx context.Context, userID int64) (string, error) {
	sess, err := s.sessions.Create(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	s.metrics.SessionsIssuedTotal.Inc()
	return sess.Token, nil
}

// Verify resolves a bearer token to an identity and slides its expiry
// forward. Tokens idle for TTL or longer are rejected.
func (s *Service) Verify(ctx context.Context, token string) (Identity, error) {
	sess, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		s.metrics.SessionVerificationsTotal.WithLabelValues("error").Inc()
		return Identity{}, fmt.Errorf("verify session: %w", err)
	}
	if sess == nil || s.clock.Since(sess.LastUsedAt) >= s.ttl {
		s.metrics.SessionVerificationsTotal.WithLabelValues("invalid").Inc()
		return Identity{}, ErrInvalidOrExpiredToken
	}

	_, ok, err := s.sessions.Touch(ctx, token)
	if err != nil {
		s.metrics.SessionVerificationsTotal.WithLabelValues("error").Inc()
		return Identity{}, fmt.Errorf("verify session: %w", err)
	}
	if !ok {
		// revoked between read and bump
		s.metrics.SessionVerificationsTotal.WithLabelValues("invalid").Inc()
		return Identity{}, ErrInvalidOrExpiredToken
	}

	s.metrics.SessionVerificationsTotal.WithLabelValues("valid").Inc()
	return Identity{UserID: sess.UserID}, nil
}

// Revoke deletes a single token. Unknown tokens are ignored.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll deletes every token of the user.
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	n, err := s.sessions.DeleteByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.logger.Info("revoked sessions", "user_id", userID, "count", n)
	return nil
}
