package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/accounts/internal/database"
	"github.com/dukerupert/accounts/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var activation, reset, image sql.NullString
	err := scanner.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Inactive,
		&activation, &reset, &image, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ActivationToken = nullableString(activation)
	u.PasswordResetToken = nullableString(reset)
	u.Image = nullableString(image)
	return &u, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

const userCols = `id, username, email, password_hash, inactive, activation_token, password_reset_token, image, created_at, updated_at`

type CreateUserParams struct {
	Username        string
	Email           string
	PasswordHash    string
	ActivationToken string
}

// Create inserts an inactive user holding the given activation token.
func (s *UserStore) Create(ctx context.Context, p CreateUserParams) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, inactive, activation_token) VALUES (?, ?, ?, 1, ?)`,
		p.Username, p.Email, p.PasswordHash, p.ActivationToken,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByPasswordResetToken(ctx context.Context, resetToken string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE password_reset_token = ?`, resetToken)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by reset token: %w", err)
	}
	return u, nil
}

// Activate flips the user holding the activation token to active and clears
// the token. It reports false if no user holds the token.
func (s *UserStore) Activate(ctx context.Context, activationToken string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET inactive = 0, activation_token = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE activation_token = ?`,
		activationToken,
	)
	if err != nil {
		return false, fmt.Errorf("activate user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteUnactivated removes a user only while it still holds the given
// activation token. Used to undo a registration whose e-mail failed.
func (s *UserStore) DeleteUnactivated(ctx context.Context, id int64, activationToken string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = ? AND inactive = 1 AND activation_token = ?`,
		id, activationToken,
	)
	if err != nil {
		return fmt.Errorf("delete unactivated user: %w", err)
	}
	return nil
}

// ListActive returns one page of active users ordered by id, skipping
// excludeID (0 excludes nobody), together with the total number of matches.
func (s *UserStore) ListActive(ctx context.Context, excludeID int64, page, size int) ([]model.User, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE inactive = 0 AND id != ?`, excludeID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE inactive = 0 AND id != ? ORDER BY id LIMIT ? OFFSET ?`,
		excludeID, size, page*size,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}

// UpdateProfile sets the username and image of a user.
func (s *UserStore) UpdateProfile(ctx context.Context, id int64, username string, image *string) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, image = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		username, image, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("update user: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes the user and every session it owns in one transaction.
func (s *UserStore) Delete(ctx context.Context, id int64) error {
	return database.WithTx(ctx, s.db, func(tx database.DBTX) error {
		if _, err := deleteSessionsByUserID(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func (s *UserStore) SetPasswordResetToken(ctx context.Context, id int64, resetToken string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_reset_token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		resetToken, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("set password reset token: %w", ErrDuplicate)
		}
		return fmt.Errorf("set password reset token: %w", err)
	}
	return nil
}

// ClearPasswordResetToken clears the reset token only if it still equals
// resetToken, so a newer request is never undone.
func (s *UserStore) ClearPasswordResetToken(ctx context.Context, id int64, resetToken string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_reset_token = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND password_reset_token = ?`,
		id, resetToken,
	)
	if err != nil {
		return fmt.Errorf("clear password reset token: %w", err)
	}
	return nil
}

// ResetPassword consumes a password reset token: it stores the new hash,
// clears the reset and activation tokens, activates the account and revokes
// every session of the user, all in one transaction. It returns the user id
// and false if no user holds the token.
func (s *UserStore) ResetPassword(ctx context.Context, resetToken, passwordHash string) (int64, bool, error) {
	var userID int64
	var found bool
	err := database.WithTx(ctx, s.db, func(tx database.DBTX) error {
		// Writing first keeps the transaction from upgrading a read lock,
		// which SQLite refuses once another connection has committed.
		err := tx.QueryRowContext(ctx,
			`UPDATE users SET password_hash = ?, password_reset_token = NULL, activation_token = NULL,
			 inactive = 0, updated_at = CURRENT_TIMESTAMP
			 WHERE password_reset_token = ? RETURNING id`,
			passwordHash, resetToken,
		).Scan(&userID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		found = true

		_, err = deleteSessionsByUserID(ctx, tx, userID)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return userID, found, nil
}
