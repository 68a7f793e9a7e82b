package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"telegram-rp-bot/internal/model"
)

// QuestRepository handles quest tracking persistence: quests and their
// participants, DMs, and monster rosters.
type QuestRepository struct {
	db DBTX
}

// NewQuestRepository creates a new QuestRepository instance.
func NewQuestRepository(db DBTX) *QuestRepository {
	return &QuestRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *QuestRepository) WithTx(tx pgx.Tx) *QuestRepository {
	return &QuestRepository{db: tx}
}

const questColumns = `id, guild_id, name, quest_type, level_bracket, status, start_date, end_date`

func scanQuest(row pgx.Row) (*model.Quest, error) {
	var q model.Quest
	err := row.Scan(
		&q.ID,
		&q.GuildID,
		&q.Name,
		&q.QuestType,
		&q.LevelBracket,
		&q.Status,
		&q.StartDate,
		&q.EndDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestNotFound
		}
		return nil, fmt.Errorf("failed to scan quest: %w", err)
	}
	return &q, nil
}

// Create inserts an active quest and its primary DM record.
// Returns ErrDuplicateName when an active quest with the same name
// already exists in the guild.
func (r *QuestRepository) Create(ctx context.Context, guildID int64, name, questType, bracket string, startDate time.Time, primaryDM int64) (*model.Quest, error) {
	const query = `
		INSERT INTO quests (guild_id, name, quest_type, level_bracket, status, start_date)
		VALUES ($1, $2, $3, $4, 'active', $5)
		RETURNING ` + questColumns

	q, err := scanQuest(r.db.QueryRow(ctx, query, guildID, name, questType, bracket, startDate))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}

	if err := r.AddDM(ctx, q.ID, primaryDM, true); err != nil {
		return nil, err
	}
	return q, nil
}

// GetByID retrieves a quest regardless of status.
func (r *QuestRepository) GetByID(ctx context.Context, id int64) (*model.Quest, error) {
	const query = `SELECT ` + questColumns + ` FROM quests WHERE id = $1`
	return scanQuest(r.db.QueryRow(ctx, query, id))
}

// GetForUpdate reads a quest row under a row lock. Must run inside a
// transaction; it serializes completion against concurrent attempts.
func (r *QuestRepository) GetForUpdate(ctx context.Context, id int64) (*model.Quest, error) {
	const query = `SELECT ` + questColumns + ` FROM quests WHERE id = $1 FOR UPDATE`
	return scanQuest(r.db.QueryRow(ctx, query, id))
}

// GetActiveByName finds an active quest by name within a guild.
func (r *QuestRepository) GetActiveByName(ctx context.Context, guildID int64, name string) (*model.Quest, error) {
	const query = `
		SELECT ` + questColumns + `
		FROM quests
		WHERE guild_id = $1 AND lower(name) = lower($2) AND status = 'active'
	`
	return scanQuest(r.db.QueryRow(ctx, query, guildID, name))
}

// GetCompletedByName finds a completed quest by name within a guild.
func (r *QuestRepository) GetCompletedByName(ctx context.Context, guildID int64, name string) (*model.Quest, error) {
	const query = `
		SELECT ` + questColumns + `
		FROM quests
		WHERE guild_id = $1 AND lower(name) = lower($2) AND status = 'completed'
		ORDER BY end_date DESC
		LIMIT 1
	`
	return scanQuest(r.db.QueryRow(ctx, query, guildID, name))
}

// ListByStatus returns a guild's quests with the given status, oldest
// first.
func (r *QuestRepository) ListByStatus(ctx context.Context, guildID int64, status string) ([]*model.Quest, error) {
	const query = `
		SELECT ` + questColumns + `
		FROM quests
		WHERE guild_id = $1 AND status = $2
		ORDER BY start_date, id
	`

	rows, err := r.db.Query(ctx, query, guildID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	var quests []*model.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		quests = append(quests, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quests: %w", err)
	}
	return quests, nil
}

// Complete flips an active quest to completed. Returns false without
// modifying anything when the quest was not active, which makes the
// status transition itself the idempotence guard for reward
// distribution.
func (r *QuestRepository) Complete(ctx context.Context, id int64, endDate time.Time) (bool, error) {
	const query = `
		UPDATE quests
		SET status = 'completed', end_date = $2
		WHERE id = $1 AND status = 'active'
	`

	result, err := r.db.Exec(ctx, query, id, endDate)
	if err != nil {
		return false, fmt.Errorf("failed to complete quest: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Delete removes an active quest and, via cascade, its participants,
// DMs, and monsters. Completed quests are locked and not deletable.
func (r *QuestRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM quests WHERE id = $1 AND status = 'active'`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete quest: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrQuestNotFound
	}
	return nil
}

// AddParticipant enrolls a character with its starting level and XP
// frozen at join time. A character may join a quest at most once.
func (r *QuestRepository) AddParticipant(ctx context.Context, questID, characterID int64, startingLevel int, startingXP int64) error {
	const query = `
		INSERT INTO quest_participants (quest_id, character_id, starting_level, starting_xp, joined_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	if _, err := r.db.Exec(ctx, query, questID, characterID, startingLevel, startingXP); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyJoined
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// RemoveParticipant drops a character from a quest. Returns false if
// the character was not enrolled.
func (r *QuestRepository) RemoveParticipant(ctx context.Context, questID, characterID int64) (bool, error) {
	const query = `DELETE FROM quest_participants WHERE quest_id = $1 AND character_id = $2`

	result, err := r.db.Exec(ctx, query, questID, characterID)
	if err != nil {
		return false, fmt.Errorf("failed to remove participant: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListParticipants returns a quest's roster in join order, which is
// also the remainder-distribution order for rewards.
func (r *QuestRepository) ListParticipants(ctx context.Context, questID int64) ([]*model.QuestParticipant, error) {
	const query = `
		SELECT p.quest_id, p.character_id, c.name, c.user_id, p.starting_level, p.starting_xp, p.joined_at
		FROM quest_participants p
		JOIN characters c ON c.id = p.character_id
		WHERE p.quest_id = $1
		ORDER BY p.joined_at, p.character_id
	`

	rows, err := r.db.Query(ctx, query, questID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*model.QuestParticipant
	for rows.Next() {
		var p model.QuestParticipant
		err := rows.Scan(&p.QuestID, &p.CharacterID, &p.CharacterName, &p.OwnerID, &p.StartingLevel, &p.StartingXP, &p.JoinedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}
	return participants, nil
}

// AddDM records a user as DM of a quest. At most one record per user
// per quest.
func (r *QuestRepository) AddDM(ctx context.Context, questID, userID int64, isPrimary bool) error {
	const query = `
		INSERT INTO quest_dms (quest_id, user_id, is_primary)
		VALUES ($1, $2, $3)
	`

	if _, err := r.db.Exec(ctx, query, questID, userID, isPrimary); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyJoined
		}
		return fmt.Errorf("failed to add quest dm: %w", err)
	}
	return nil
}

// ListDMs returns a quest's DMs, primary first.
func (r *QuestRepository) ListDMs(ctx context.Context, questID int64) ([]*model.QuestDM, error) {
	const query = `
		SELECT quest_id, user_id, is_primary
		FROM quest_dms
		WHERE quest_id = $1
		ORDER BY is_primary DESC, user_id
	`

	rows, err := r.db.Query(ctx, query, questID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quest dms: %w", err)
	}
	defer rows.Close()

	var dms []*model.QuestDM
	for rows.Next() {
		var dm model.QuestDM
		if err := rows.Scan(&dm.QuestID, &dm.UserID, &dm.IsPrimary); err != nil {
			return nil, fmt.Errorf("failed to scan quest dm: %w", err)
		}
		dms = append(dms, &dm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quest dms: %w", err)
	}
	return dms, nil
}

// AddMonster appends an encounter line to a quest.
func (r *QuestRepository) AddMonster(ctx context.Context, questID int64, cr string, monsterName *string, count int) error {
	const query = `
		INSERT INTO quest_monsters (quest_id, cr, monster_name, count)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.Exec(ctx, query, questID, cr, monsterName, count); err != nil {
		return fmt.Errorf("failed to add monster: %w", err)
	}
	return nil
}

// ListMonsters returns a quest's monster roster in insertion order.
func (r *QuestRepository) ListMonsters(ctx context.Context, questID int64) ([]*model.QuestMonster, error) {
	const query = `
		SELECT id, quest_id, cr, monster_name, count
		FROM quest_monsters
		WHERE quest_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, questID)
	if err != nil {
		return nil, fmt.Errorf("failed to list monsters: %w", err)
	}
	defer rows.Close()

	var monsters []*model.QuestMonster
	for rows.Next() {
		var m model.QuestMonster
		if err := rows.Scan(&m.ID, &m.QuestID, &m.CR, &m.MonsterName, &m.Count); err != nil {
			return nil, fmt.Errorf("failed to scan monster: %w", err)
		}
		monsters = append(monsters, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monsters: %w", err)
	}
	return monsters, nil
}
