package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"telegram-rp-bot/internal/model"
)

// ConfigRepository handles per-guild configuration records.
type ConfigRepository struct {
	db DBTX
}

// NewConfigRepository creates a new ConfigRepository instance.
func NewConfigRepository(db DBTX) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *ConfigRepository) WithTx(tx pgx.Tx) *ConfigRepository {
	return &ConfigRepository{db: tx}
}

const configColumns = `guild_id, rp_channels, char_per_rp, daily_rp_cap, forage_channels, forage_base_xp, forage_bonus_xp, daily_forage_cap, create_roles, request_channel, updated_at`

func scanConfig(row pgx.Row) (*model.GuildConfig, error) {
	var c model.GuildConfig
	err := row.Scan(
		&c.GuildID,
		&c.RPChannels,
		&c.CharPerRP,
		&c.DailyRPCap,
		&c.ForageChannels,
		&c.ForageBaseXP,
		&c.ForageBonusXP,
		&c.DailyForageCap,
		&c.CreateRoles,
		&c.RequestChannel,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("guild config: %w", err)
		}
		return nil, fmt.Errorf("failed to scan guild config: %w", err)
	}
	return &c, nil
}

// ConfigDefaults seeds a guild's row on first sight.
type ConfigDefaults struct {
	CharPerRP      int64
	DailyRPCap     int64
	ForageBaseXP   int64
	ForageBonusXP  int64
	DailyForageCap int64
}

// GetOrCreate fetches a guild's configuration, inserting a row with
// the supplied defaults on first sight of the guild.
func (r *ConfigRepository) GetOrCreate(ctx context.Context, guildID int64, defaults ConfigDefaults) (*model.GuildConfig, error) {
	const query = `
		INSERT INTO config (guild_id, rp_channels, char_per_rp, daily_rp_cap, forage_channels, forage_base_xp, forage_bonus_xp, daily_forage_cap, create_roles, updated_at)
		VALUES ($1, '{}', $2, $3, '{}', $4, $5, $6, '{}', NOW())
		ON CONFLICT (guild_id) DO UPDATE SET updated_at = config.updated_at
		RETURNING ` + configColumns

	return scanConfig(r.db.QueryRow(ctx, query, guildID,
		defaults.CharPerRP, defaults.DailyRPCap,
		defaults.ForageBaseXP, defaults.ForageBonusXP, defaults.DailyForageCap))
}

// Get fetches a guild's configuration without creating it.
func (r *ConfigRepository) Get(ctx context.Context, guildID int64) (*model.GuildConfig, error) {
	const query = `SELECT ` + configColumns + ` FROM config WHERE guild_id = $1`
	return scanConfig(r.db.QueryRow(ctx, query, guildID))
}

// AddRPChannel marks a channel as RP-tracked. Adding a channel twice
// is a no-op.
func (r *ConfigRepository) AddRPChannel(ctx context.Context, guildID, channelID int64) error {
	const query = `
		UPDATE config
		SET rp_channels = array_append(rp_channels, $2), updated_at = NOW()
		WHERE guild_id = $1 AND NOT ($2 = ANY(rp_channels))
	`

	if _, err := r.db.Exec(ctx, query, guildID, channelID); err != nil {
		return fmt.Errorf("failed to add rp channel: %w", err)
	}
	return nil
}

// RemoveRPChannel stops tracking a channel for RP XP.
func (r *ConfigRepository) RemoveRPChannel(ctx context.Context, guildID, channelID int64) error {
	const query = `
		UPDATE config
		SET rp_channels = array_remove(rp_channels, $2), updated_at = NOW()
		WHERE guild_id = $1
	`

	if _, err := r.db.Exec(ctx, query, guildID, channelID); err != nil {
		return fmt.Errorf("failed to remove rp channel: %w", err)
	}
	return nil
}

// SetRates updates the characters-per-XP ratio and the daily cap.
func (r *ConfigRepository) SetRates(ctx context.Context, guildID, charPerRP, dailyCap int64) error {
	const query = `
		UPDATE config
		SET char_per_rp = $2, daily_rp_cap = $3, updated_at = NOW()
		WHERE guild_id = $1
	`

	if _, err := r.db.Exec(ctx, query, guildID, charPerRP, dailyCap); err != nil {
		return fmt.Errorf("failed to set rates: %w", err)
	}
	return nil
}

// AddForageChannel marks a channel's hunt and forage outcomes as
// XP-earning. Adding a channel twice is a no-op.
func (r *ConfigRepository) AddForageChannel(ctx context.Context, guildID, channelID int64) error {
	const query = `
		UPDATE config
		SET forage_channels = array_append(forage_channels, $2), updated_at = NOW()
		WHERE guild_id = $1 AND NOT ($2 = ANY(forage_channels))
	`

	if _, err := r.db.Exec(ctx, query, guildID, channelID); err != nil {
		return fmt.Errorf("failed to add forage channel: %w", err)
	}
	return nil
}

// RemoveForageChannel stops tracking a channel for forage XP.
func (r *ConfigRepository) RemoveForageChannel(ctx context.Context, guildID, channelID int64) error {
	const query = `
		UPDATE config
		SET forage_channels = array_remove(forage_channels, $2), updated_at = NOW()
		WHERE guild_id = $1
	`

	if _, err := r.db.Exec(ctx, query, guildID, channelID); err != nil {
		return fmt.Errorf("failed to remove forage channel: %w", err)
	}
	return nil
}

// SetForageRates updates the per-attempt XP, the success bonus and the
// daily forage cap.
func (r *ConfigRepository) SetForageRates(ctx context.Context, guildID, baseXP, bonusXP, dailyCap int64) error {
	const query = `
		UPDATE config
		SET forage_base_xp = $2, forage_bonus_xp = $3, daily_forage_cap = $4, updated_at = NOW()
		WHERE guild_id = $1
	`

	if _, err := r.db.Exec(ctx, query, guildID, baseXP, bonusXP, dailyCap); err != nil {
		return fmt.Errorf("failed to set forage rates: %w", err)
	}
	return nil
}

// SetDailyCap updates just the daily XP cap.
func (r *ConfigRepository) SetDailyCap(ctx context.Context, guildID, dailyCap int64) error {
	const query = `UPDATE config SET daily_rp_cap = $2, updated_at = NOW() WHERE guild_id = $1`

	if _, err := r.db.Exec(ctx, query, guildID, dailyCap); err != nil {
		return fmt.Errorf("failed to set daily cap: %w", err)
	}
	return nil
}

// SetCreateRoles replaces the set of roles allowed to create
// characters. An empty set allows everyone.
func (r *ConfigRepository) SetCreateRoles(ctx context.Context, guildID int64, roleIDs []int64) error {
	const query = `UPDATE config SET create_roles = $2, updated_at = NOW() WHERE guild_id = $1`

	if _, err := r.db.Exec(ctx, query, guildID, roleIDs); err != nil {
		return fmt.Errorf("failed to set create roles: %w", err)
	}
	return nil
}

// SetRequestChannel updates the channel XP requests are posted to.
func (r *ConfigRepository) SetRequestChannel(ctx context.Context, guildID int64, channelID *int64) error {
	const query = `UPDATE config SET request_channel = $2, updated_at = NOW() WHERE guild_id = $1`

	if _, err := r.db.Exec(ctx, query, guildID, channelID); err != nil {
		return fmt.Errorf("failed to set request channel: %w", err)
	}
	return nil
}
