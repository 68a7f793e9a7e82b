package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"telegram-rp-bot/internal/model"
)

// GrantRepository handles the immutable XP grant audit log.
type GrantRepository struct {
	db DBTX
}

// NewGrantRepository creates a new GrantRepository instance.
func NewGrantRepository(db DBTX) *GrantRepository {
	return &GrantRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *GrantRepository) WithTx(tx pgx.Tx) *GrantRepository {
	return &GrantRepository{db: tx}
}

// Create appends a grant record. Amount is the originally requested
// delta, even when the lifetime-XP floor clamped what was applied.
func (r *GrantRepository) Create(ctx context.Context, characterID, grantorID, amount int64, memo *string) (*model.GrantRecord, error) {
	const query = `
		INSERT INTO grants (character_id, grantor_id, amount, memo, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, character_id, grantor_id, amount, memo, created_at
	`

	var g model.GrantRecord
	err := r.db.QueryRow(ctx, query, characterID, grantorID, amount, memo).Scan(
		&g.ID,
		&g.CharacterID,
		&g.GrantorID,
		&g.Amount,
		&g.Memo,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant record: %w", err)
	}
	return &g, nil
}

// ListByCharacter returns a character's grant history, newest first.
func (r *GrantRepository) ListByCharacter(ctx context.Context, characterID int64, limit int) ([]*model.GrantRecord, error) {
	const query = `
		SELECT id, character_id, grantor_id, amount, memo, created_at
		FROM grants
		WHERE character_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, characterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []*model.GrantRecord
	for rows.Next() {
		var g model.GrantRecord
		err := rows.Scan(&g.ID, &g.CharacterID, &g.GrantorID, &g.Amount, &g.Memo, &g.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grants: %w", err)
	}
	return grants, nil
}

// CountByCharacter returns the number of grant records for a character.
func (r *GrantRepository) CountByCharacter(ctx context.Context, characterID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM grants WHERE character_id = $1`

	var count int64
	if err := r.db.QueryRow(ctx, query, characterID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count grants: %w", err)
	}
	return count, nil
}
