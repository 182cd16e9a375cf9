package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/accounts/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, us *UserStore, username, email, activation string) int64 {
	t.Helper()
	u, err := us.Create(context.Background(), CreateUserParams{
		Username:        username,
		Email:           email,
		PasswordHash:    "hash",
		ActivationToken: activation,
	})
	require.NoError(t, err)
	return u.ID
}

func TestUserCreate(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	u, err := us.Create(context.Background(), CreateUserParams{
		Username:        "user1",
		Email:           "user1@mail.com",
		PasswordHash:    "hash",
		ActivationToken: "act-1",
	})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "user1", u.Username)
	assert.True(t, u.Inactive)
	require.NotNil(t, u.ActivationToken)
	assert.Equal(t, "act-1", *u.ActivationToken)
	assert.Nil(t, u.Image)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	createUser(t, us, "user1", "user1@mail.com", "act-1")

	_, err := us.Create(context.Background(), CreateUserParams{
		Username: "user2", Email: "user1@mail.com", PasswordHash: "hash", ActivationToken: "act-2",
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserGetNotFound(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	u, err := us.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = us.GetByEmail(ctx, "nobody@mail.com")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = us.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUserActivate(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()
	id := createUser(t, us, "user1", "user1@mail.com", "act-1")

	ok, err := us.Activate(ctx, "act-1")
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := us.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, u.Inactive)
	assert.Nil(t, u.ActivationToken)

	ok, err = us.Activate(ctx, "act-1")
	require.NoError(t, err)
	assert.False(t, ok, "token is single use")
}

func TestUserDeleteUnactivated(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()
	id := createUser(t, us, "user1", "user1@mail.com", "act-1")

	require.NoError(t, us.DeleteUnactivated(ctx, id, "other"))
	u, err := us.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u, "mismatched token must not delete")

	require.NoError(t, us.DeleteUnactivated(ctx, id, "act-1"))
	u, err = us.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUserListActive(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	var ids []int64
	for i, name := range []string{"user1", "user2", "user3", "user4"} {
		id := createUser(t, us, name, name+"@mail.com", "act-"+name)
		if i < 3 {
			_, err := us.Activate(ctx, "act-"+name)
			require.NoError(t, err)
		}
		ids = append(ids, id)
	}

	users, total, err := us.ListActive(ctx, 0, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, users, 2)
	assert.Equal(t, ids[0], users[0].ID)

	users, total, err = us.ListActive(ctx, 0, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, users, 1)
	assert.Equal(t, ids[2], users[0].ID)

	users, total, err = us.ListActive(ctx, ids[1], 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, u := range users {
		assert.NotEqual(t, ids[1], u.ID)
	}
}

func TestUserUpdateProfile(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()
	id := createUser(t, us, "user1", "user1@mail.com", "act-1")

	img := "abc.png"
	u, err := us.UpdateProfile(ctx, id, "user1-updated", &img)
	require.NoError(t, err)
	assert.Equal(t, "user1-updated", u.Username)
	require.NotNil(t, u.Image)
	assert.Equal(t, "abc.png", *u.Image)

	u, err = us.UpdateProfile(ctx, id, "user1-updated", nil)
	require.NoError(t, err)
	assert.Nil(t, u.Image)
}

func TestUserDeleteRemovesSessions(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ss := NewSessionStore(db, clockwork.NewFakeClock())
	ctx := context.Background()
	id := createUser(t, us, "user1", "user1@mail.com", "act-1")

	sess, err := ss.Create(ctx, id)
	require.NoError(t, err)

	require.NoError(t, us.Delete(ctx, id))

	u, err := us.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, u)

	got, err := ss.GetByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserPasswordResetTokenLifecycle(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()
	id := createUser(t, us, "user1", "user1@mail.com", "act-1")

	require.NoError(t, us.SetPasswordResetToken(ctx, id, "reset-1"))
	require.NoError(t, us.SetPasswordResetToken(ctx, id, "reset-2"))

	// Clearing a stale token leaves the newer one in place.
	require.NoError(t, us.ClearPasswordResetToken(ctx, id, "reset-1"))
	u, err := us.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u.PasswordResetToken)
	assert.Equal(t, "reset-2", *u.PasswordResetToken)

	byToken, err := us.GetByPasswordResetToken(ctx, "reset-2")
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, id, byToken.ID)

	require.NoError(t, us.ClearPasswordResetToken(ctx, id, "reset-2"))
	u, err = us.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, u.PasswordResetToken)

	byToken, err = us.GetByPasswordResetToken(ctx, "reset-2")
	require.NoError(t, err)
	assert.Nil(t, byToken)
}

func TestUserResetPassword(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ss := NewSessionStore(db, clockwork.NewFakeClock())
	ctx := context.Background()
	id := createUser(t, us, "user1", "user1@mail.com", "act-1")
	require.NoError(t, us.SetPasswordResetToken(ctx, id, "reset-1"))

	for range 2 {
		_, err := ss.Create(ctx, id)
		require.NoError(t, err)
	}

	gotID, ok, err := us.ResetPassword(ctx, "reset-1", "new-hash")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, gotID)

	u, err := us.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", u.PasswordHash)
	assert.Nil(t, u.PasswordResetToken)
	assert.Nil(t, u.ActivationToken)
	assert.False(t, u.Inactive)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, id).Scan(&n))
	assert.Zero(t, n)

	_, ok, err = us.ResetPassword(ctx, "reset-1", "other-hash")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserResetPasswordRollsBackOnSessionFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET password_hash .* RETURNING id`).
		WithArgs("new-hash", "reset-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \?`).
		WithArgs(7).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	us := NewUserStore(db)
	_, ok, err := us.ResetPassword(context.Background(), "reset-1", "new-hash")
	require.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserResetPasswordWithConcurrentTouches(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	us := NewUserStore(db)
	ss := NewSessionStore(db, clockwork.NewRealClock())
	ctx := context.Background()
	id := createUser(t, us, "user1", "user1@mail.com", "act-1")
	other := createUser(t, us, "user2", "user2@mail.com", "act-2")

	var tokens []string
	for range 8 {
		sess, err := ss.Create(ctx, other)
		require.NoError(t, err)
		tokens = append(tokens, sess.Token)
	}

	touchCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(touchCtx)
	for _, tok := range tokens {
		g.Go(func() error {
			for gctx.Err() == nil {
				if _, _, err := ss.Touch(ctx, tok); err != nil {
					return err
				}
				time.Sleep(100 * time.Microsecond)
			}
			return nil
		})
	}

	for i := range 100 {
		resetToken := fmt.Sprintf("reset-%d", i)
		require.NoError(t, us.SetPasswordResetToken(ctx, id, resetToken))
		_, ok, err := us.ResetPassword(ctx, resetToken, "hash")
		require.NoError(t, err, "reset %d", i)
		require.True(t, ok)
	}

	stop()
	assert.NoError(t, g.Wait())
}

func TestUserDeleteRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \?`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM users WHERE id = \?`).
		WithArgs(3).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	us := NewUserStore(db)
	require.Error(t, us.Delete(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}
