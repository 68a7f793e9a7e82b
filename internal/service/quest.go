package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telegram-rp-bot/internal/model"
	"telegram-rp-bot/internal/quest"
	"telegram-rp-bot/internal/repository"
	"telegram-rp-bot/internal/xp"
)

// QuestService manages quest lifecycle: creation, roster, encounter
// log, and the one-shot reward distribution on completion.
type QuestService struct {
	pool       *pgxpool.Pool
	quests     *repository.QuestRepository
	characters *repository.CharacterRepository
	grants     *repository.GrantRepository
	users      *repository.UserRepository
}

// NewQuestService creates a new QuestService instance.
func NewQuestService(
	pool *pgxpool.Pool,
	quests *repository.QuestRepository,
	characters *repository.CharacterRepository,
	grants *repository.GrantRepository,
	users *repository.UserRepository,
) *QuestService {
	return &QuestService{
		pool:       pool,
		quests:     quests,
		characters: characters,
		grants:     grants,
		users:      users,
	}
}

// QuestInfo bundles a quest with its roster, DMs, and encounter log.
type QuestInfo struct {
	Quest        *model.Quest
	Participants []*model.QuestParticipant
	DMs          []*model.QuestDM
	Monsters     []*model.QuestMonster
}

// StartQuest opens a new active quest. Active quest names are unique
// per guild; the level bracket must parse as "min-max".
func (s *QuestService) StartQuest(ctx context.Context, guildID int64, name, questType, bracket string, startDate time.Time, primaryDM int64) (*model.Quest, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty quest name", ErrInvalidState)
	}
	if _, err := quest.ParseBracket(bracket); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if startDate.IsZero() {
		startDate = time.Now()
	}

	var created *model.Quest
	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		quests := s.quests.WithTx(tx)

		if _, err := users.Ensure(ctx, primaryDM); err != nil {
			return err
		}
		q, err := quests.Create(ctx, guildID, name, questType, bracket, startDate, primaryDM)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateName) {
				return fmt.Errorf("%w: active quest %q", ErrDuplicateName, name)
			}
			return err
		}
		created = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("quest_id", created.ID).
		Str("name", created.Name).
		Str("bracket", created.LevelBracket).
		Msg("Quest started")
	return created, nil
}

// JoinQuest adds the caller's character to an active quest, snapshotting
// its level and XP. Self-joins are gated by the quest's level bracket;
// DM-forced adds skip the gate so out-of-band rulings stay possible.
func (s *QuestService) JoinQuest(ctx context.Context, questID, characterID int64, enforceBracket bool) error {
	return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		quests := s.quests.WithTx(tx)
		chars := s.characters.WithTx(tx)

		q, err := quests.GetForUpdate(ctx, questID)
		if err != nil {
			return notFound(err)
		}
		if q.Status != model.QuestStatusActive {
			return fmt.Errorf("%w: quest %q is completed", ErrInvalidState, q.Name)
		}

		c, err := chars.GetByID(ctx, characterID)
		if err != nil {
			return notFound(err)
		}
		if c.Retired {
			return fmt.Errorf("%w: character %q is retired", ErrInvalidState, c.Name)
		}

		level := xp.LevelForXP(c.XP)
		if enforceBracket && !quest.LevelInBracket(level, q.LevelBracket) {
			return fmt.Errorf("%w: level %d outside bracket %s", ErrNotPermitted, level, q.LevelBracket)
		}

		if err := quests.AddParticipant(ctx, questID, characterID, level, c.XP); err != nil {
			if errors.Is(err, repository.ErrAlreadyJoined) {
				return fmt.Errorf("%w: character %q already on quest", ErrInvalidState, c.Name)
			}
			return err
		}
		return nil
	})
}

// LeaveQuest removes a character from an active quest's roster.
func (s *QuestService) LeaveQuest(ctx context.Context, questID, characterID int64) error {
	return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		quests := s.quests.WithTx(tx)

		q, err := quests.GetForUpdate(ctx, questID)
		if err != nil {
			return notFound(err)
		}
		if q.Status != model.QuestStatusActive {
			return fmt.Errorf("%w: quest %q is completed", ErrInvalidState, q.Name)
		}

		removed, err := quests.RemoveParticipant(ctx, questID, characterID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: character not on quest", ErrNotFound)
		}
		return nil
	})
}

// AddDM registers an additional user as a DM on an active quest.
func (s *QuestService) AddDM(ctx context.Context, questID, userID int64) error {
	return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		users := s.users.WithTx(tx)
		quests := s.quests.WithTx(tx)

		q, err := quests.GetForUpdate(ctx, questID)
		if err != nil {
			return notFound(err)
		}
		if q.Status != model.QuestStatusActive {
			return fmt.Errorf("%w: quest %q is completed", ErrInvalidState, q.Name)
		}
		if _, err := users.Ensure(ctx, userID); err != nil {
			return err
		}
		if err := quests.AddDM(ctx, questID, userID, false); err != nil {
			if errors.Is(err, repository.ErrAlreadyJoined) {
				return fmt.Errorf("%w: already a DM on this quest", ErrInvalidState)
			}
			return err
		}
		return nil
	})
}

// AddMonster records a defeated encounter line on an active quest.
func (s *QuestService) AddMonster(ctx context.Context, questID int64, cr string, monsterName *string, count int) error {
	if !quest.ValidCR(cr) {
		return fmt.Errorf("%w: unknown challenge rating %q", ErrInvalidState, cr)
	}
	if count < 1 {
		return fmt.Errorf("%w: monster count must be at least 1", ErrInvalidState)
	}
	return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		quests := s.quests.WithTx(tx)

		q, err := quests.GetForUpdate(ctx, questID)
		if err != nil {
			return notFound(err)
		}
		if q.Status != model.QuestStatusActive {
			return fmt.Errorf("%w: quest %q is completed", ErrInvalidState, q.Name)
		}
		return quests.AddMonster(ctx, questID, cr, monsterName, count)
	})
}

// CompleteQuest marks an active quest completed and pays out its
// encounter XP in one transaction. The pool is the sum over all
// recorded monsters, split evenly among bracket-eligible participants
// with the remainder going to the earliest joiners. Eligibility uses
// the level frozen at join time, so leveling mid-quest never voids a
// share. Completing an already-completed quest is rejected; the payout
// happens at most once.
func (s *QuestService) CompleteQuest(ctx context.Context, questID, completedBy int64, endDate time.Time) ([]*model.QuestAward, error) {
	if endDate.IsZero() {
		endDate = time.Now()
	}

	var awards []*model.QuestAward
	err := repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		quests := s.quests.WithTx(tx)
		chars := s.characters.WithTx(tx)
		grants := s.grants.WithTx(tx)

		q, err := quests.GetForUpdate(ctx, questID)
		if err != nil {
			return notFound(err)
		}
		if endDate.Before(q.StartDate) {
			endDate = q.StartDate
		}

		done, err := quests.Complete(ctx, questID, endDate)
		if err != nil {
			return err
		}
		if !done {
			return fmt.Errorf("%w: quest %q already completed", ErrInvalidState, q.Name)
		}

		monsters, err := quests.ListMonsters(ctx, questID)
		if err != nil {
			return err
		}
		total := quest.EncounterXP(monsters)

		participants, err := quests.ListParticipants(ctx, questID)
		if err != nil {
			return err
		}
		var eligible []*model.QuestParticipant
		for _, p := range participants {
			if quest.LevelInBracket(p.StartingLevel, q.LevelBracket) {
				eligible = append(eligible, p)
			}
		}
		if total <= 0 || len(eligible) == 0 {
			return nil
		}

		shares := quest.SplitEvenly(total, len(eligible))

		// Lock character rows in a fixed order so concurrent
		// completions touching overlapping rosters cannot deadlock.
		locked := make([]*model.QuestParticipant, len(eligible))
		copy(locked, eligible)
		sort.Slice(locked, func(i, j int) bool { return locked[i].CharacterID < locked[j].CharacterID })
		for _, p := range locked {
			if _, err := chars.GetForUpdate(ctx, p.CharacterID); err != nil {
				return notFound(err)
			}
		}

		memo := fmt.Sprintf("Quest reward: %s", q.Name)
		for i, p := range eligible {
			if _, err := chars.AddXP(ctx, p.CharacterID, shares[i]); err != nil {
				return err
			}
			if _, err := grants.Create(ctx, p.CharacterID, completedBy, shares[i], &memo); err != nil {
				return err
			}
			awards = append(awards, &model.QuestAward{
				CharacterID:   p.CharacterID,
				CharacterName: p.CharacterName,
				OwnerID:       p.OwnerID,
				Amount:        shares[i],
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("quest_id", questID).
		Int("awards", len(awards)).
		Msg("Quest completed")
	return awards, nil
}

// DeleteQuest removes an active quest and its roster without paying
// anything out. Completed quests are immutable history and cannot be
// deleted.
func (s *QuestService) DeleteQuest(ctx context.Context, questID int64) error {
	return repository.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		quests := s.quests.WithTx(tx)

		q, err := quests.GetForUpdate(ctx, questID)
		if err != nil {
			return notFound(err)
		}
		if q.Status != model.QuestStatusActive {
			return fmt.Errorf("%w: quest %q is completed", ErrInvalidState, q.Name)
		}
		return quests.Delete(ctx, questID)
	})
}

// FindActiveQuest resolves an active quest by name within a guild.
func (s *QuestService) FindActiveQuest(ctx context.Context, guildID int64, name string) (*model.Quest, error) {
	q, err := s.quests.GetActiveByName(ctx, guildID, name)
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

// FindCompletedQuest resolves a completed quest by name within a
// guild, for read-only history lookups.
func (s *QuestService) FindCompletedQuest(ctx context.Context, guildID int64, name string) (*model.Quest, error) {
	q, err := s.quests.GetCompletedByName(ctx, guildID, name)
	if err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

// ListQuests returns a guild's quests with the given status.
func (s *QuestService) ListQuests(ctx context.Context, guildID int64, status string) ([]*model.Quest, error) {
	return s.quests.ListByStatus(ctx, guildID, status)
}

// QuestDetails fetches a quest together with roster, DMs, and the
// encounter log.
func (s *QuestService) QuestDetails(ctx context.Context, questID int64) (*QuestInfo, error) {
	q, err := s.quests.GetByID(ctx, questID)
	if err != nil {
		return nil, notFound(err)
	}
	participants, err := s.quests.ListParticipants(ctx, questID)
	if err != nil {
		return nil, err
	}
	dms, err := s.quests.ListDMs(ctx, questID)
	if err != nil {
		return nil, err
	}
	monsters, err := s.quests.ListMonsters(ctx, questID)
	if err != nil {
		return nil, err
	}
	return &QuestInfo{Quest: q, Participants: participants, DMs: dms, Monsters: monsters}, nil
}
