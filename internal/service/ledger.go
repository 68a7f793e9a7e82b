package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telegram-rp-bot/internal/model"
	"telegram-rp-bot/internal/pkg/lock"
	"telegram-rp-bot/internal/repository"
)

// LedgerService is the authoritative entry point for character
// lifecycle and XP mutations. Every mutating operation runs as one
// transaction and is serialized per owner through the user lock, so
// concurrent admin actions and message bursts cannot corrupt counters.
type LedgerService struct {
	pool        *pgxpool.Pool
	users       *repository.UserRepository
	characters  *repository.CharacterRepository
	grants      *repository.GrantRepository
	configs     *repository.ConfigRepository
	locks       *lock.UserLock
	lockTimeout time.Duration
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(
	pool *pgxpool.Pool,
	users *repository.UserRepository,
	characters *repository.CharacterRepository,
	grants *repository.GrantRepository,
	configs *repository.ConfigRepository,
	locks *lock.UserLock,
	lockTimeout time.Duration,
) *LedgerService {
	return &LedgerService{
		pool:        pool,
		users:       users,
		characters:  characters,
		grants:      grants,
		configs:     configs,
		locks:       locks,
		lockTimeout: lockTimeout,
	}
}

// wrapLock converts a lock timeout into the retryable transient kind.
func wrapLock(err error) error {
	if errors.Is(err, lock.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

func hasAnyRole(have, allowed []int64) bool {
	for _, a := range allowed {
		for _, h := range have {
			if a == h {
				return true
			}
		}
	}
	return false
}

// EnsureUser creates the user on first interaction.
func (s *LedgerService) EnsureUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.Ensure(ctx, userID)
}

// SetTimezone validates and stores a user's IANA timezone.
func (s *LedgerService) SetTimezone(ctx context.Context, userID int64, tz string) error {
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidState, tz)
	}
	if _, err := s.users.Ensure(ctx, userID); err != nil {
		return err
	}
	return s.users.SetTimezone(ctx, userID, tz)
}

// CreateCharacter creates a character for the owner. The first
// character an owner creates becomes their active character.
// ownerRoles are the owner's role IDs as reported by the chat
// platform; when the guild restricts creation to certain roles, an
// owner holding none of them gets ErrNotPermitted.
func (s *LedgerService) CreateCharacter(ctx context.Context, guildID, ownerID int64, name string, imageURL, sheetURL *string, ownerRoles []int64) (*model.Character, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty character name", ErrInvalidState)
	}

	var created *model.Character
	err := s.locks.With(ctx, ownerID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			users := s.users.WithTx(tx)
			chars := s.characters.WithTx(tx)
			configs := s.configs.WithTx(tx)

			if _, err := users.Ensure(ctx, ownerID); err != nil {
				return err
			}
			if _, err := users.GetForUpdate(ctx, ownerID); err != nil {
				return err
			}

			cfg, err := configs.Get(ctx, guildID)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			if err == nil && len(cfg.CreateRoles) > 0 && !hasAnyRole(ownerRoles, cfg.CreateRoles) {
				return fmt.Errorf("%w: character creation restricted by role", ErrNotPermitted)
			}

			exists, err := chars.ActiveNameExists(ctx, ownerID, name, 0)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: character %q", ErrDuplicateName, name)
			}

			created, err = chars.Create(ctx, ownerID, name, imageURL, sheetURL)
			if err != nil {
				if errors.Is(err, repository.ErrDuplicateName) {
					return fmt.Errorf("%w: character %q", ErrDuplicateName, name)
				}
				return err
			}

			return users.SetActiveCharacterIfUnset(ctx, ownerID, created.ID)
		})
	})
	if err != nil {
		return nil, wrapLock(err)
	}

	log.Info().
		Int64("user_id", ownerID).
		Int64("character_id", created.ID).
		Str("name", created.Name).
		Msg("Character created")
	return created, nil
}

// RenameCharacter changes a non-retired character's name, keeping the
// per-owner uniqueness rule.
func (s *LedgerService) RenameCharacter(ctx context.Context, ownerID, characterID int64, newName string) (*model.Character, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, fmt.Errorf("%w: empty character name", ErrInvalidState)
	}

	var renamed *model.Character
	err := s.locks.With(ctx, ownerID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			chars := s.characters.WithTx(tx)

			c, err := chars.GetForUpdate(ctx, characterID)
			if err != nil {
				return notFound(err)
			}
			if c.UserID != ownerID {
				return fmt.Errorf("%w: character %d", ErrNotOwned, characterID)
			}
			if c.Retired {
				return fmt.Errorf("%w: character %q is retired", ErrNotFound, c.Name)
			}

			exists, err := chars.ActiveNameExists(ctx, ownerID, newName, characterID)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: character %q", ErrDuplicateName, newName)
			}

			if err := chars.Rename(ctx, characterID, newName); err != nil {
				return err
			}
			c.Name = newName
			renamed = c
			return nil
		})
	})
	if err != nil {
		return nil, wrapLock(err)
	}
	return renamed, nil
}

// RetireCharacter soft-deletes a character. XP and grant history stay
// intact and the owner's active-character reference is cleared if it
// pointed here. Retiring an already-retired character is a no-op.
func (s *LedgerService) RetireCharacter(ctx context.Context, ownerID, characterID int64) error {
	err := s.locks.With(ctx, ownerID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			users := s.users.WithTx(tx)
			chars := s.characters.WithTx(tx)

			c, err := chars.GetForUpdate(ctx, characterID)
			if err != nil {
				return notFound(err)
			}
			if c.UserID != ownerID {
				return fmt.Errorf("%w: character %d", ErrNotOwned, characterID)
			}
			if c.Retired {
				return nil
			}

			if err := chars.SetRetired(ctx, characterID, true); err != nil {
				return err
			}

			owner, err := users.GetForUpdate(ctx, ownerID)
			if err != nil {
				return err
			}
			if owner.ActiveCharacterID != nil && *owner.ActiveCharacterID == characterID {
				return users.SetActiveCharacter(ctx, ownerID, nil)
			}
			return nil
		})
	})
	if err != nil {
		return wrapLock(err)
	}

	log.Info().Int64("user_id", ownerID).Int64("character_id", characterID).Msg("Character retired")
	return nil
}

// RestoreCharacter reverses a retirement. Fails with ErrDuplicateName
// when an active character with the same name exists; the caller must
// rename on restore to disambiguate.
func (s *LedgerService) RestoreCharacter(ctx context.Context, ownerID, characterID int64) (*model.Character, error) {
	var restored *model.Character
	err := s.locks.With(ctx, ownerID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			chars := s.characters.WithTx(tx)

			c, err := chars.GetForUpdate(ctx, characterID)
			if err != nil {
				return notFound(err)
			}
			if c.UserID != ownerID {
				return fmt.Errorf("%w: character %d", ErrNotOwned, characterID)
			}
			if !c.Retired {
				restored = c
				return nil
			}

			exists, err := chars.ActiveNameExists(ctx, ownerID, c.Name, characterID)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: active character %q exists, rename on restore", ErrDuplicateName, c.Name)
			}

			if err := chars.SetRetired(ctx, characterID, false); err != nil {
				return err
			}
			c.Retired = false
			restored = c
			return nil
		})
	})
	if err != nil {
		return nil, wrapLock(err)
	}
	return restored, nil
}

// GrantXP applies a signed manual XP delta to a character's lifetime
// XP, bypassing ratio, buffer, and cap. Lifetime XP is clamped at
// zero: the grant record keeps the requested amount while the returned
// applied value reflects what actually landed.
func (s *LedgerService) GrantXP(ctx context.Context, characterID, grantorID, amount int64, memo *string) (*model.GrantRecord, int64, error) {
	target, err := s.characters.GetByID(ctx, characterID)
	if err != nil {
		return nil, 0, notFound(err)
	}

	var record *model.GrantRecord
	var applied int64
	err = s.locks.With(ctx, target.UserID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			chars := s.characters.WithTx(tx)
			grants := s.grants.WithTx(tx)

			c, err := chars.GetForUpdate(ctx, characterID)
			if err != nil {
				return notFound(err)
			}

			applied = amount
			if c.XP+applied < 0 {
				applied = -c.XP
			}
			if _, err := chars.AddXP(ctx, characterID, applied); err != nil {
				return err
			}

			record, err = grants.Create(ctx, characterID, grantorID, amount, memo)
			return err
		})
	})
	if err != nil {
		return nil, 0, wrapLock(err)
	}

	log.Info().
		Int64("character_id", characterID).
		Int64("grantor_id", grantorID).
		Int64("requested", amount).
		Int64("applied", applied).
		Msg("XP granted")
	return record, applied, nil
}

// SetActiveCharacter points the owner's active-character reference at
// one of their non-retired characters.
func (s *LedgerService) SetActiveCharacter(ctx context.Context, ownerID, characterID int64) error {
	err := s.locks.With(ctx, ownerID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			users := s.users.WithTx(tx)
			chars := s.characters.WithTx(tx)

			c, err := chars.GetByID(ctx, characterID)
			if err != nil {
				return notFound(err)
			}
			if c.UserID != ownerID {
				return fmt.Errorf("%w: character %d", ErrNotOwned, characterID)
			}
			if c.Retired {
				return fmt.Errorf("%w: character %q is retired", ErrNotFound, c.Name)
			}

			id := characterID
			return users.SetActiveCharacter(ctx, ownerID, &id)
		})
	})
	return wrapLock(err)
}

// PurgeUser irreversibly deletes a user and all owned characters and
// grant records in one transaction. This is the erasure path; there is
// no soft variant and no undo.
func (s *LedgerService) PurgeUser(ctx context.Context, userID int64) error {
	err := s.locks.With(ctx, userID, s.lockTimeout, func() error {
		return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			users := s.users.WithTx(tx)
			if err := users.Delete(ctx, userID); err != nil {
				return notFound(err)
			}
			return nil
		})
	})
	if err != nil {
		return wrapLock(err)
	}

	log.Warn().Int64("user_id", userID).Msg("User purged")
	return nil
}

// GetCharacter fetches a character by ID.
func (s *LedgerService) GetCharacter(ctx context.Context, characterID int64) (*model.Character, error) {
	c, err := s.characters.GetByID(ctx, characterID)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// FindCharacter locates an owner's non-retired character by name.
func (s *LedgerService) FindCharacter(ctx context.Context, ownerID int64, name string) (*model.Character, error) {
	c, err := s.characters.GetByName(ctx, ownerID, name)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// FindCharacterAnyUser locates a non-retired character by name across
// all users, for admin operations and quest rosters.
func (s *LedgerService) FindCharacterAnyUser(ctx context.Context, name string) (*model.Character, error) {
	c, err := s.characters.FindByNameAnyUser(ctx, name)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListCharacters returns an owner's characters.
func (s *LedgerService) ListCharacters(ctx context.Context, ownerID int64, includeRetired bool) ([]*model.Character, error) {
	return s.characters.List(ctx, ownerID, includeRetired)
}

// ActiveCharacter resolves an owner's active character, or ErrNotFound
// when none is set.
func (s *LedgerService) ActiveCharacter(ctx context.Context, ownerID int64) (*model.Character, error) {
	c, err := s.characters.GetActive(ctx, ownerID)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// GrantHistory returns a character's grant audit log, newest first.
func (s *LedgerService) GrantHistory(ctx context.Context, characterID int64, limit int) ([]*model.GrantRecord, error) {
	return s.grants.ListByCharacter(ctx, characterID, limit)
}

// notFound maps repository missing-row sentinels onto the service
// error kind while passing other errors through.
func notFound(err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrCharacterNotFound),
		errors.Is(err, repository.ErrQuestNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return err
	}
}
