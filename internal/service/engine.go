package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telegram-rp-bot/internal/model"
	"telegram-rp-bot/internal/pkg/lock"
	"telegram-rp-bot/internal/repository"
	"telegram-rp-bot/internal/xp"
)

// ActivityEvent is one observed chat message in a guild channel.
type ActivityEvent struct {
	GuildID       int64
	UserID        int64
	ChannelID     int64
	MessageLength int64
	Timestamp     time.Time
}

// ActivityResult reports what a single message accrual did.
type ActivityResult struct {
	CreditedXP int64
	Capped     bool
	// NewLevel is set when the credit pushed the active character
	// over a level boundary.
	NewLevel *int
	// Character is the active character after the accrual, nil when
	// the event was ignored (non-RP channel or no active character).
	Character *model.Character
}

// EngineService converts raw chat activity into XP. Each event is
// handled in one transaction under the owner's lock: the daily reset
// automaton runs first, then the accrual calculator, then the write.
type EngineService struct {
	pool        *pgxpool.Pool
	users       *repository.UserRepository
	characters  *repository.CharacterRepository
	configs     *repository.ConfigRepository
	locks       *lock.UserLock
	lockTimeout time.Duration
	defaults    repository.ConfigDefaults
}

// NewEngineService creates a new EngineService instance.
func NewEngineService(
	pool *pgxpool.Pool,
	users *repository.UserRepository,
	characters *repository.CharacterRepository,
	configs *repository.ConfigRepository,
	locks *lock.UserLock,
	lockTimeout time.Duration,
	defaults repository.ConfigDefaults,
) *EngineService {
	return &EngineService{
		pool:        pool,
		users:       users,
		characters:  characters,
		configs:     configs,
		locks:       locks,
		lockTimeout: lockTimeout,
		defaults:    defaults,
	}
}

// localDay returns the calendar date of t in the named IANA timezone,
// truncated to midnight UTC so dates compare by day. An unknown
// timezone falls back to UTC rather than failing the accrual.
func localDay(t time.Time, tz string) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// needsReset reports whether the user's daily counters are stale for
// the day containing now. A user with no recorded reset is always
// stale.
func needsReset(u *model.User, now time.Time) bool {
	if u.LastXPReset == nil {
		return true
	}
	last := u.LastXPReset.UTC().Truncate(24 * time.Hour)
	return last.Before(localDay(now, u.Timezone))
}

// RecordActivity is the engine's single entry point for chat traffic.
// Messages outside the guild's RP channels are ignored. For tracked
// messages it lazily rolls the owner's daily window, runs the
// conversion against the active character, and persists the result
// atomically.
func (s *EngineService) RecordActivity(ctx context.Context, ev ActivityEvent) (*ActivityResult, error) {
	if ev.MessageLength <= 0 {
		return &ActivityResult{}, nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	result := &ActivityResult{}
	err := s.locks.With(ctx, ev.UserID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			users := s.users.WithTx(tx)
			chars := s.characters.WithTx(tx)
			configs := s.configs.WithTx(tx)

			cfg, err := configs.GetOrCreate(ctx, ev.GuildID, s.defaults)
			if err != nil {
				return err
			}
			if !cfg.IsRPChannel(ev.ChannelID) {
				return nil
			}

			if _, err := users.Ensure(ctx, ev.UserID); err != nil {
				return err
			}
			u, err := users.GetForUpdate(ctx, ev.UserID)
			if err != nil {
				return err
			}

			if needsReset(u, ev.Timestamp) {
				if err := chars.ResetDaily(ctx, ev.UserID); err != nil {
					return err
				}
				if err := users.SetLastReset(ctx, ev.UserID, localDay(ev.Timestamp, u.Timezone)); err != nil {
					return err
				}
			}

			c, err := chars.GetActive(ctx, ev.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrCharacterNotFound) {
					return nil
				}
				return err
			}
			out := xp.Accrue(xp.AccrualInput{
				Length:  ev.MessageLength,
				Buffer:  c.Buffer,
				Ratio:   cfg.CharPerRP,
				DailyXP: c.DailyXP,
				Cap:     cfg.DailyRPCap,
			})

			before := xp.LevelForXP(c.XP)
			if err := chars.ApplyAccrual(ctx, c.ID, out.Credited, out.NewBuffer); err != nil {
				return err
			}
			c.XP += out.Credited
			c.DailyXP += out.Credited
			c.Buffer = out.NewBuffer

			result.CreditedXP = out.Credited
			result.Capped = out.Capped
			result.Character = c
			if after := xp.LevelForXP(c.XP); after > before {
				result.NewLevel = &after
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapLock(err)
	}

	if result.NewLevel != nil {
		log.Info().
			Int64("user_id", ev.UserID).
			Int64("character_id", result.Character.ID).
			Int("level", *result.NewLevel).
			Msg("Character leveled up")
	}
	return result, nil
}

// DailyStatusResult reports how much of the day's caps the active
// character has used.
type DailyStatusResult struct {
	DailyXP     int64
	DailyCap    int64
	DailyForage int64
	ForageCap   int64
}

// DailyStatus reports the active character's daily counter usage.
// Viewing the status is a reset trigger: stale counters are zeroed and
// the reset date persisted before the read, so a later accrual in the
// same day cannot roll the window a second time.
func (s *EngineService) DailyStatus(ctx context.Context, guildID, userID int64) (*DailyStatusResult, error) {
	cfg, err := s.configs.GetOrCreate(ctx, guildID, s.defaults)
	if err != nil {
		return nil, err
	}

	result := &DailyStatusResult{DailyCap: cfg.DailyRPCap, ForageCap: cfg.DailyForageCap}
	err = s.locks.With(ctx, userID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			users := s.users.WithTx(tx)
			chars := s.characters.WithTx(tx)

			u, err := users.GetForUpdate(ctx, userID)
			if err != nil {
				return notFound(err)
			}
			now := time.Now()
			if needsReset(u, now) {
				if err := chars.ResetDaily(ctx, userID); err != nil {
					return err
				}
				if err := users.SetLastReset(ctx, userID, localDay(now, u.Timezone)); err != nil {
					return err
				}
			}

			c, err := chars.GetActive(ctx, userID)
			if err != nil {
				if errors.Is(err, repository.ErrCharacterNotFound) {
					return nil
				}
				return err
			}
			result.DailyXP = c.DailyXP
			result.DailyForage = c.DailyForage
			return nil
		})
	})
	if err != nil {
		return nil, wrapLock(err)
	}
	return result, nil
}

// ForageEvent is one hunt or forage outcome message posted in a guild
// channel.
type ForageEvent struct {
	GuildID   int64
	SenderID  int64
	ChannelID int64
	Text      string
	Timestamp time.Time
}

// ForageResult reports what a single forage outcome awarded.
type ForageResult struct {
	AwardedXP int64
	Capped    bool
	// NewLevel is set when the award pushed the character over a level
	// boundary.
	NewLevel *int
	// Character is the awarded character, nil when the event was
	// ignored (untracked channel, no outcome text, or no match).
	Character *model.Character
}

// RecordForage credits XP for a hunt or forage outcome. The character
// is resolved by the name in the outcome text: a match owned by the
// message sender wins, otherwise a unique match across all users;
// anything ambiguous is skipped rather than guessed at. Awards respect
// a per-day forage cap separate from the passive RP cap, zeroed by the
// same daily reset.
func (s *EngineService) RecordForage(ctx context.Context, ev ForageEvent) (*ForageResult, error) {
	outcome, ok := xp.ParseForage(ev.Text)
	if !ok {
		return &ForageResult{}, nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	cfg, err := s.configs.GetOrCreate(ctx, ev.GuildID, s.defaults)
	if err != nil {
		return nil, err
	}
	if !cfg.IsForageChannel(ev.ChannelID) {
		return &ForageResult{}, nil
	}

	candidates, err := s.characters.FindAllByName(ctx, outcome.CharacterName)
	if err != nil {
		return nil, err
	}
	var target *model.Character
	for _, c := range candidates {
		if c.UserID == ev.SenderID {
			target = c
			break
		}
	}
	if target == nil {
		if len(candidates) != 1 {
			if len(candidates) > 1 {
				log.Debug().
					Str("character", outcome.CharacterName).
					Int("matches", len(candidates)).
					Msg("Ambiguous forage outcome skipped")
			}
			return &ForageResult{}, nil
		}
		target = candidates[0]
	}

	result := &ForageResult{}
	err = s.locks.With(ctx, target.UserID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			users := s.users.WithTx(tx)
			chars := s.characters.WithTx(tx)

			if _, err := users.Ensure(ctx, target.UserID); err != nil {
				return err
			}
			u, err := users.GetForUpdate(ctx, target.UserID)
			if err != nil {
				return err
			}
			if needsReset(u, ev.Timestamp) {
				if err := chars.ResetDaily(ctx, target.UserID); err != nil {
					return err
				}
				if err := users.SetLastReset(ctx, target.UserID, localDay(ev.Timestamp, u.Timezone)); err != nil {
					return err
				}
			}

			c, err := chars.GetForUpdate(ctx, target.ID)
			if err != nil {
				return err
			}
			if c.Retired {
				return nil
			}
			award := xp.ForageAward(outcome.Success, cfg.ForageBaseXP, cfg.ForageBonusXP, c.DailyForage, cfg.DailyForageCap)

			before := xp.LevelForXP(c.XP)
			if award > 0 {
				if err := chars.AddForageXP(ctx, c.ID, award); err != nil {
					return err
				}
				c.XP += award
				c.DailyForage += award
			}

			result.AwardedXP = award
			result.Capped = c.DailyForage >= cfg.DailyForageCap
			result.Character = c
			if after := xp.LevelForXP(c.XP); after > before {
				result.NewLevel = &after
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapLock(err)
	}

	if result.AwardedXP > 0 {
		log.Info().
			Int64("character_id", result.Character.ID).
			Str("activity", outcome.Activity).
			Bool("success", outcome.Success).
			Int64("awarded", result.AwardedXP).
			Msg("Forage XP awarded")
	}
	return result, nil
}
