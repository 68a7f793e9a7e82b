package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"telegram-rp-bot/internal/model"
)

// UserRepository handles user data persistence.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `user_id, timezone, last_xp_reset, active_character_id, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.UserID,
		&user.Timezone,
		&user.LastXPReset,
		&user.ActiveCharacterID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// Ensure retrieves a user by platform ID, creating one on first
// interaction. New users start in UTC with today recorded as their
// last reset so the first message does not trigger a reset.
func (r *UserRepository) Ensure(ctx context.Context, userID int64) (*model.User, error) {
	const query = `
		INSERT INTO users (user_id, timezone, last_xp_reset, created_at, updated_at)
		VALUES ($1, 'UTC', CURRENT_DATE, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET updated_at = users.updated_at
		RETURNING ` + userColumns

	return scanUser(r.db.QueryRow(ctx, query, userID))
}

// GetByID retrieves a user by platform ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return scanUser(r.db.QueryRow(ctx, query, userID))
}

// GetForUpdate reads a user row under a row lock. Must run inside a
// transaction; it serializes the daily-reset check against concurrent
// events for the same user.
func (r *UserRepository) GetForUpdate(ctx context.Context, userID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1 FOR UPDATE`
	return scanUser(r.db.QueryRow(ctx, query, userID))
}

// SetTimezone updates a user's IANA timezone.
func (r *UserRepository) SetTimezone(ctx context.Context, userID int64, tz string) error {
	const query = `UPDATE users SET timezone = $2, updated_at = NOW() WHERE user_id = $1`

	result, err := r.db.Exec(ctx, query, userID, tz)
	if err != nil {
		return fmt.Errorf("failed to set timezone: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetLastReset records the local date of the user's latest daily reset.
func (r *UserRepository) SetLastReset(ctx context.Context, userID int64, day time.Time) error {
	const query = `UPDATE users SET last_xp_reset = $2, updated_at = NOW() WHERE user_id = $1`

	result, err := r.db.Exec(ctx, query, userID, day)
	if err != nil {
		return fmt.Errorf("failed to set last reset: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetActiveCharacter points the user's active-character reference at
// the given character. Pass nil to clear it.
func (r *UserRepository) SetActiveCharacter(ctx context.Context, userID int64, characterID *int64) error {
	const query = `UPDATE users SET active_character_id = $2, updated_at = NOW() WHERE user_id = $1`

	result, err := r.db.Exec(ctx, query, userID, characterID)
	if err != nil {
		return fmt.Errorf("failed to set active character: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetActiveCharacterIfUnset makes the character active only when the
// user has no active character yet. Used when a user's first character
// is created.
func (r *UserRepository) SetActiveCharacterIfUnset(ctx context.Context, userID, characterID int64) error {
	const query = `
		UPDATE users SET active_character_id = $2, updated_at = NOW()
		WHERE user_id = $1 AND active_character_id IS NULL
	`

	if _, err := r.db.Exec(ctx, query, userID, characterID); err != nil {
		return fmt.Errorf("failed to set active character: %w", err)
	}
	return nil
}

// Delete hard-deletes a user. Characters and their grant records go
// with it via FK cascade; this is the purge path and has no soft
// variant.
func (r *UserRepository) Delete(ctx context.Context, userID int64) error {
	const query = `DELETE FROM users WHERE user_id = $1`

	result, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Exists checks if a user with the given platform ID exists.
func (r *UserRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
