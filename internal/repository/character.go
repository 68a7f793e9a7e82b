package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"telegram-rp-bot/internal/model"
)

// CharacterRepository handles character data persistence.
type CharacterRepository struct {
	db DBTX
}

// NewCharacterRepository creates a new CharacterRepository instance.
func NewCharacterRepository(db DBTX) *CharacterRepository {
	return &CharacterRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *CharacterRepository) WithTx(tx pgx.Tx) *CharacterRepository {
	return &CharacterRepository{db: tx}
}

const characterColumns = `id, user_id, name, xp, daily_xp, char_buffer, daily_forage, retired, image_url, sheet_url, created_at, updated_at`

func scanCharacter(row pgx.Row) (*model.Character, error) {
	var c model.Character
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.XP,
		&c.DailyXP,
		&c.Buffer,
		&c.DailyForage,
		&c.Retired,
		&c.ImageURL,
		&c.SheetURL,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCharacterNotFound
		}
		return nil, fmt.Errorf("failed to scan character: %w", err)
	}
	return &c, nil
}

func scanCharacters(rows pgx.Rows) ([]*model.Character, error) {
	defer rows.Close()

	var chars []*model.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		chars = append(chars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating characters: %w", err)
	}
	return chars, nil
}

// isUniqueViolation detects the partial unique index on
// (user_id, lower(name)) WHERE NOT retired.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a character with all counters at zero.
// Returns ErrDuplicateName when the owner already has a non-retired
// character with that name (case-insensitive).
func (r *CharacterRepository) Create(ctx context.Context, userID int64, name string, imageURL, sheetURL *string) (*model.Character, error) {
	const query = `
		INSERT INTO characters (user_id, name, xp, daily_xp, char_buffer, daily_forage, retired, image_url, sheet_url, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, FALSE, $3, $4, NOW(), NOW())
		RETURNING ` + characterColumns

	c, err := scanCharacter(r.db.QueryRow(ctx, query, userID, name, imageURL, sheetURL))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	return c, nil
}

// GetByID retrieves a character regardless of retired state.
func (r *CharacterRepository) GetByID(ctx context.Context, id int64) (*model.Character, error) {
	const query = `SELECT ` + characterColumns + ` FROM characters WHERE id = $1`
	return scanCharacter(r.db.QueryRow(ctx, query, id))
}

// GetForUpdate reads a character row under a row lock. Must run inside
// a transaction.
func (r *CharacterRepository) GetForUpdate(ctx context.Context, id int64) (*model.Character, error) {
	const query = `SELECT ` + characterColumns + ` FROM characters WHERE id = $1 FOR UPDATE`
	return scanCharacter(r.db.QueryRow(ctx, query, id))
}

// GetByName finds an owner's non-retired character by name,
// case-insensitively.
func (r *CharacterRepository) GetByName(ctx context.Context, userID int64, name string) (*model.Character, error) {
	const query = `
		SELECT ` + characterColumns + `
		FROM characters
		WHERE user_id = $1 AND lower(name) = lower($2) AND NOT retired
	`
	return scanCharacter(r.db.QueryRow(ctx, query, userID, name))
}

// GetActive resolves a user's active character through the weak
// reference on the user row. A retired character never resolves.
func (r *CharacterRepository) GetActive(ctx context.Context, userID int64) (*model.Character, error) {
	const query = `
		SELECT c.id, c.user_id, c.name, c.xp, c.daily_xp, c.char_buffer, c.daily_forage, c.retired, c.image_url, c.sheet_url, c.created_at, c.updated_at
		FROM characters c
		JOIN users u ON u.active_character_id = c.id
		WHERE u.user_id = $1 AND NOT c.retired
	`
	return scanCharacter(r.db.QueryRow(ctx, query, userID))
}

// List returns an owner's characters in creation order. Retired
// characters are included only when requested.
func (r *CharacterRepository) List(ctx context.Context, userID int64, includeRetired bool) ([]*model.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE user_id = $1`
	if !includeRetired {
		query += ` AND NOT retired`
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return scanCharacters(rows)
}

// FindByNameAnyUser locates a non-retired character by name across all
// users, for admin grants and quest rosters.
func (r *CharacterRepository) FindByNameAnyUser(ctx context.Context, name string) (*model.Character, error) {
	const query = `
		SELECT ` + characterColumns + `
		FROM characters
		WHERE lower(name) = lower($1) AND NOT retired
		ORDER BY id
		LIMIT 1
	`
	return scanCharacter(r.db.QueryRow(ctx, query, name))
}

// ActiveNameExists reports whether the owner already has a non-retired
// character with the name, optionally excluding one character ID (for
// rename).
func (r *CharacterRepository) ActiveNameExists(ctx context.Context, userID int64, name string, excludeID int64) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM characters
			WHERE user_id = $1 AND lower(name) = lower($2) AND NOT retired AND id <> $3
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, name, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check character name: %w", err)
	}
	return exists, nil
}

// Rename changes a character's name.
func (r *CharacterRepository) Rename(ctx context.Context, id int64, newName string) error {
	const query = `UPDATE characters SET name = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, newName)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to rename character: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}

// SetRetired flips the soft-delete flag.
func (r *CharacterRepository) SetRetired(ctx context.Context, id int64, retired bool) error {
	const query = `UPDATE characters SET retired = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, retired)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to set retired flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}

// ApplyAccrual credits passive XP: lifetime and daily XP both grow by
// the credited amount and the buffer is replaced with its new value.
func (r *CharacterRepository) ApplyAccrual(ctx context.Context, id int64, credited, newBuffer int64) error {
	const query = `
		UPDATE characters
		SET xp = xp + $2, daily_xp = daily_xp + $2, char_buffer = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, credited, newBuffer)
	if err != nil {
		return fmt.Errorf("failed to apply accrual: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}

// AddXP applies a signed delta to lifetime XP only. Callers are
// responsible for clamping so the result stays non-negative.
func (r *CharacterRepository) AddXP(ctx context.Context, id int64, delta int64) (int64, error) {
	const query = `
		UPDATE characters
		SET xp = xp + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING xp
	`

	var newXP int64
	err := r.db.QueryRow(ctx, query, id, delta).Scan(&newXP)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCharacterNotFound
		}
		return 0, fmt.Errorf("failed to add xp: %w", err)
	}
	return newXP, nil
}

// AddForageXP credits a hunt or forage award: lifetime XP and the
// daily forage counter both grow by the amount.
func (r *CharacterRepository) AddForageXP(ctx context.Context, id int64, amount int64) error {
	const query = `
		UPDATE characters
		SET xp = xp + $2, daily_forage = daily_forage + $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("failed to add forage xp: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}

// FindAllByName returns every non-retired character with the name
// across all users, in ID order. Used to resolve forage outcomes,
// where only the character name is known.
func (r *CharacterRepository) FindAllByName(ctx context.Context, name string) ([]*model.Character, error) {
	const query = `
		SELECT ` + characterColumns + `
		FROM characters
		WHERE lower(name) = lower($1) AND NOT retired
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find characters by name: %w", err)
	}
	return scanCharacters(rows)
}

// ResetDaily zeroes the daily counters and buffer for every character
// the user owns. Invoked by the daily reset automaton.
func (r *CharacterRepository) ResetDaily(ctx context.Context, userID int64) error {
	const query = `
		UPDATE characters
		SET daily_xp = 0, char_buffer = 0, daily_forage = 0, updated_at = NOW()
		WHERE user_id = $1
	`

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to reset daily counters: %w", err)
	}
	return nil
}
