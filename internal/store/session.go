package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/accounts/internal/database"
	"github.com/dukerupert/accounts/internal/model"
	"github.com/dukerupert/accounts/internal/token"
)

type SessionStore struct {
	db       *sql.DB
	clock    clockwork.Clock
	newToken token.Func
}

type SessionOption func(*SessionStore)

// WithTokenFunc replaces the random token source.
func WithTokenFunc(fn token.Func) SessionOption {
	return func(s *SessionStore) {
		s.newToken = fn
	}
}

func NewSessionStore(db *sql.DB, clock clockwork.Clock, opts ...SessionOption) *SessionStore {
	s := &SessionStore{db: db, clock: clock, newToken: token.New}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var s model.Session
	var lastUsed int64
	err := scanner.Scan(&s.Token, &s.UserID, &lastUsed)
	if err != nil {
		return nil, err
	}
	s.LastUsedAt = time.UnixMilli(lastUsed).UTC()
	return &s, nil
}

const sessionCols = `token, user_id, last_used_at`

// Create mints a new session token for the user with last_used_at = now.
// A token collision fails with ErrDuplicate; callers may retry.
func (s *SessionStore) Create(ctx context.Context, userID int64) (*model.Session, error) {
	tok, err := s.newToken()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, last_used_at) VALUES (?, ?, ?)`,
		tok, userID, now.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert session: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &model.Session{Token: tok, UserID: userID, LastUsedAt: time.UnixMilli(now.UnixMilli()).UTC()}, nil
}

// GetByToken returns the session row for the token, expired or not, or nil if absent.
func (s *SessionStore) GetByToken(ctx context.Context, tok string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE token = ?`, tok)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by token: %w", err)
	}
	return sess, nil
}

// Touch sets last_used_at to now and returns the stored timestamp. The
// stored value always moves forward, by at least a millisecond when two
// touches land within the same one. It reports false if the token no
// longer exists.
func (s *SessionStore) Touch(ctx context.Context, tok string) (time.Time, bool, error) {
	var stored int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE sessions SET last_used_at = MAX(?, last_used_at + 1)
		 WHERE token = ? RETURNING last_used_at`,
		s.clock.Now().UnixMilli(), tok,
	).Scan(&stored)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("touch session: %w", err)
	}
	return time.UnixMilli(stored).UTC(), true, nil
}

// Delete removes a single token. Deleting an absent token is not an error.
func (s *SessionStore) Delete(ctx context.Context, tok string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, tok)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByUserID removes every session owned by the user.
func (s *SessionStore) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	return deleteSessionsByUserID(ctx, s.db, userID)
}

// DeleteIdle removes sessions whose last use is at least ttl in the past.
func (s *SessionStore) DeleteIdle(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-ttl).UnixMilli()
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_used_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func deleteSessionsByUserID(ctx context.Context, q database.DBTX, userID int64) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions by user: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
