// Package model defines the data models for the RP XP tracker.
package model

import "time"

// User represents a chat-platform account. One row per platform user.
// The active character is a weak reference resolved through the
// character repository at read time; it carries no FK constraint so a
// retired or deleted character simply fails to resolve.
type User struct {
	UserID            int64      `db:"user_id"`
	Timezone          string     `db:"timezone"`
	LastXPReset       *time.Time `db:"last_xp_reset"`
	ActiveCharacterID *int64     `db:"active_character_id"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// Character is a player character owned by exactly one user.
// XP is lifetime XP and never goes negative. DailyXP, Buffer and
// DailyForage are the per-day counters zeroed by the daily reset.
type Character struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Name        string    `db:"name"`
	XP          int64     `db:"xp"`
	DailyXP     int64     `db:"daily_xp"`
	Buffer      int64     `db:"char_buffer"`
	DailyForage int64     `db:"daily_forage"`
	Retired     bool      `db:"retired"`
	ImageURL    *string   `db:"image_url"`
	SheetURL    *string   `db:"sheet_url"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// GrantRecord is an immutable audit entry for a manual XP change.
// Amount is the originally requested delta; the applied delta may be
// smaller when the clamp at zero lifetime XP kicks in.
type GrantRecord struct {
	ID          int64     `db:"id"`
	CharacterID int64     `db:"character_id"`
	GrantorID   int64     `db:"grantor_id"`
	Amount      int64     `db:"amount"`
	Memo        *string   `db:"memo"`
	CreatedAt   time.Time `db:"created_at"`
}

// RoleChatAdmin is the synthetic role ID assigned to chat
// administrators. Telegram has no guild role system, so it is the one
// role create_roles restrictions can name.
const RoleChatAdmin int64 = 1

// GuildConfig holds per-server accrual settings. Read on every accrual
// decision, mutated only by admin operations.
type GuildConfig struct {
	GuildID        int64     `db:"guild_id"`
	RPChannels     []int64   `db:"rp_channels"`
	CharPerRP      int64     `db:"char_per_rp"`
	DailyRPCap     int64     `db:"daily_rp_cap"`
	ForageChannels []int64   `db:"forage_channels"`
	ForageBaseXP   int64     `db:"forage_base_xp"`
	ForageBonusXP  int64     `db:"forage_bonus_xp"`
	DailyForageCap int64     `db:"daily_forage_cap"`
	CreateRoles    []int64   `db:"create_roles"`
	RequestChannel *int64    `db:"request_channel"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// IsRPChannel reports whether the channel is tracked for passive XP.
func (c *GuildConfig) IsRPChannel(channelID int64) bool {
	for _, id := range c.RPChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// IsForageChannel reports whether hunt and forage outcomes posted in
// this channel earn bonus XP.
func (c *GuildConfig) IsForageChannel(channelID int64) bool {
	for _, id := range c.ForageChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// Quest statuses. Completion is terminal: a completed quest is locked
// and its rewards are never re-distributed.
const (
	QuestStatusActive    = "active"
	QuestStatusCompleted = "completed"
)

// Quest is a tracked mission within a guild.
type Quest struct {
	ID           int64      `db:"id"`
	GuildID      int64      `db:"guild_id"`
	Name         string     `db:"name"`
	QuestType    string     `db:"quest_type"`
	LevelBracket string     `db:"level_bracket"`
	Status       string     `db:"status"`
	StartDate    time.Time  `db:"start_date"`
	EndDate      *time.Time `db:"end_date"`
}

// QuestParticipant links a character to a quest with a snapshot of its
// level and XP frozen at join time. The snapshot gates bracket
// eligibility; rewards are applied to current character state.
type QuestParticipant struct {
	QuestID       int64     `db:"quest_id"`
	CharacterID   int64     `db:"character_id"`
	CharacterName string    `db:"character_name"`
	OwnerID       int64     `db:"owner_id"`
	StartingLevel int       `db:"starting_level"`
	StartingXP    int64     `db:"starting_xp"`
	JoinedAt      time.Time `db:"joined_at"`
}

// QuestDM records a user running a quest. At most one row per user per
// quest; exactly one should be primary.
type QuestDM struct {
	QuestID   int64 `db:"quest_id"`
	UserID    int64 `db:"user_id"`
	IsPrimary bool  `db:"is_primary"`
}

// QuestMonster is one encounter line: a challenge rating and how many
// monsters of that rating were defeated.
type QuestMonster struct {
	ID          int64   `db:"id"`
	QuestID     int64   `db:"quest_id"`
	CR          string  `db:"cr"`
	MonsterName *string `db:"monster_name"`
	Count       int     `db:"count"`
}

// QuestAward is one participant's share of a completed quest's XP.
type QuestAward struct {
	CharacterID   int64
	CharacterName string
	OwnerID       int64
	Amount        int64
}
