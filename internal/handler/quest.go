package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"telegram-rp-bot/internal/quest"
	"telegram-rp-bot/internal/service"
)

// QuestHandler handles the quest lifecycle: creation, roster
// management, the encounter log, and completion payouts.
type QuestHandler struct {
	quests *service.QuestService
	ledger *service.LedgerService
}

// NewQuestHandler creates a new QuestHandler.
func NewQuestHandler(quests *service.QuestService, ledger *service.LedgerService) *QuestHandler {
	return &QuestHandler{quests: quests, ledger: ledger}
}

func (h *QuestHandler) findActive(ctx context.Context, c tele.Context, name string) (int64, error) {
	q, err := h.quests.FindActiveQuest(ctx, c.Chat().ID, name)
	if err != nil {
		return 0, err
	}
	return q.ID, nil
}

// HandleQuestStart handles /quest_start <name> | <bracket> [| type].
func (h *QuestHandler) HandleQuestStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	parts := strings.SplitN(strings.Join(c.Args(), " "), "|", 3)
	if len(parts) < 2 {
		return c.Reply("Usage: /quest_start <name> | <level bracket> [| type]\nExample: /quest_start Goblin Warrens | 1-4 | oneshot")
	}
	name := strings.TrimSpace(parts[0])
	bracket := strings.TrimSpace(parts[1])
	questType := "oneshot"
	if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
		questType = strings.TrimSpace(parts[2])
	}

	q, err := h.quests.StartQuest(ctx, c.Chat().ID, name, questType, bracket, time.Now(), sender.ID)
	if err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("⚔️ Quest %q is open for levels %s. Join with /quest_join %s.", q.Name, q.LevelBracket, q.Name))
}

// HandleQuestJoin handles /quest_join <quest> [| character]. Without a
// character argument the sender's active character joins. The quest's
// level bracket is enforced against the character's current level,
// which becomes the frozen snapshot.
func (h *QuestHandler) HandleQuestJoin(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	questName, charName := splitPipe(c.Args())
	if questName == "" {
		return c.Reply("Usage: /quest_join <quest> [| character]")
	}

	questID, err := h.findActive(ctx, c, questName)
	if err != nil {
		return replyServiceError(c, err)
	}

	char, err := h.ledger.ActiveCharacter(ctx, sender.ID)
	if charName != "" {
		char, err = h.ledger.FindCharacter(ctx, sender.ID, charName)
	}
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Reply("❌ No character to join with. Create one with /newchar first.")
		}
		return replyServiceError(c, err)
	}

	if err := h.quests.JoinQuest(ctx, questID, char.ID, true); err != nil {
		if errors.Is(err, service.ErrNotPermitted) {
			return c.Reply(fmt.Sprintf("❌ %s is outside this quest's level bracket.", char.Name))
		}
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("⚔️ %s joined %q.", char.Name, questName))
}

// HandleQuestLeave handles /quest_leave <quest> [| character].
func (h *QuestHandler) HandleQuestLeave(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	questName, charName := splitPipe(c.Args())
	if questName == "" {
		return c.Reply("Usage: /quest_leave <quest> [| character]")
	}

	questID, err := h.findActive(ctx, c, questName)
	if err != nil {
		return replyServiceError(c, err)
	}

	char, err := h.ledger.ActiveCharacter(ctx, sender.ID)
	if charName != "" {
		char, err = h.ledger.FindCharacter(ctx, sender.ID, charName)
	}
	if err != nil {
		return replyServiceError(c, err)
	}

	if err := h.quests.LeaveQuest(ctx, questID, char.ID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("🚪 %s left %q.", char.Name, questName))
}

// HandleQuestMonster handles /quest_monster <quest> | <cr> <count> [name].
func (h *QuestHandler) HandleQuestMonster(c tele.Context) error {
	ctx := context.Background()

	questName, rest := splitPipe(c.Args())
	fields := strings.Fields(rest)
	if questName == "" || len(fields) < 2 {
		return c.Reply("Usage: /quest_monster <quest> | <CR> <count> [name]\nExample: /quest_monster Goblin Warrens | 1/4 6 Goblin")
	}

	cr := fields[0]
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return c.Reply("❌ Count must be a number.")
	}
	var monsterName *string
	if len(fields) > 2 {
		n := strings.Join(fields[2:], " ")
		monsterName = &n
	}

	questID, err := h.findActive(ctx, c, questName)
	if err != nil {
		return replyServiceError(c, err)
	}
	if err := h.quests.AddMonster(ctx, questID, cr, monsterName, count); err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			return c.Reply(fmt.Sprintf("❌ %s", strings.TrimPrefix(err.Error(), "invalid state for operation: ")))
		}
		return replyServiceError(c, err)
	}

	each, _ := quest.XPForCR(cr)
	return c.Reply(fmt.Sprintf("🐉 Recorded %d× CR %s (+%d XP to the pool).", count, cr, each*int64(count)))
}

// HandleQuestDM handles /quest_dm <quest> | <user id>, registering a
// co-DM.
func (h *QuestHandler) HandleQuestDM(c tele.Context) error {
	ctx := context.Background()

	questName, idStr := splitPipe(c.Args())
	if questName == "" || idStr == "" {
		return c.Reply("Usage: /quest_dm <quest> | <user id>")
	}
	userID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return c.Reply("❌ User ID must be numeric.")
	}

	questID, err := h.findActive(ctx, c, questName)
	if err != nil {
		return replyServiceError(c, err)
	}
	if err := h.quests.AddDM(ctx, questID, userID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply("🎲 Co-DM registered.")
}

// HandleQuestComplete handles /quest_complete <quest>: pays out the
// encounter pool and closes the quest for good.
func (h *QuestHandler) HandleQuestComplete(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	questName := strings.TrimSpace(strings.Join(c.Args(), " "))
	if questName == "" {
		return c.Reply("Usage: /quest_complete <quest>")
	}

	questID, err := h.findActive(ctx, c, questName)
	if err != nil {
		return replyServiceError(c, err)
	}

	awards, err := h.quests.CompleteQuest(ctx, questID, sender.ID, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			return c.Reply(fmt.Sprintf("❌ %q has already been completed.", questName))
		}
		return replyServiceError(c, err)
	}

	if len(awards) == 0 {
		return c.Reply(fmt.Sprintf("🏁 %q is complete. No XP to distribute.", questName))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🏁 %q is complete! Rewards:\n", questName)
	for _, a := range awards {
		fmt.Fprintf(&sb, "• %s: +%d XP\n", a.CharacterName, a.Amount)
	}
	return c.Reply(sb.String())
}

// HandleQuestDelete handles /quest_delete <quest>, discarding an
// active quest without rewards.
func (h *QuestHandler) HandleQuestDelete(c tele.Context) error {
	ctx := context.Background()

	questName := strings.TrimSpace(strings.Join(c.Args(), " "))
	if questName == "" {
		return c.Reply("Usage: /quest_delete <quest>")
	}

	questID, err := h.findActive(ctx, c, questName)
	if err != nil {
		return replyServiceError(c, err)
	}
	if err := h.quests.DeleteQuest(ctx, questID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("🗑️ Quest %q discarded. Nothing was paid out.", questName))
}

// HandleQuestInfo handles /quest_info <quest>.
func (h *QuestHandler) HandleQuestInfo(c tele.Context) error {
	ctx := context.Background()

	questName := strings.TrimSpace(strings.Join(c.Args(), " "))
	if questName == "" {
		return c.Reply("Usage: /quest_info <quest>")
	}

	q, err := h.quests.FindActiveQuest(ctx, c.Chat().ID, questName)
	if errors.Is(err, service.ErrNotFound) {
		// Completed quests stay visible as history.
		q, err = h.quests.FindCompletedQuest(ctx, c.Chat().ID, questName)
	}
	if err != nil {
		return replyServiceError(c, err)
	}
	info, err := h.quests.QuestDetails(ctx, q.ID)
	if err != nil {
		return replyServiceError(c, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "⚔️ %s (%s, levels %s)\n", info.Quest.Name, info.Quest.QuestType, info.Quest.LevelBracket)
	fmt.Fprintf(&sb, "Started %s\n", info.Quest.StartDate.Format("2006-01-02"))
	if info.Quest.EndDate != nil {
		fmt.Fprintf(&sb, "Completed %s\n", info.Quest.EndDate.Format("2006-01-02"))
	}

	if len(info.Participants) == 0 {
		sb.WriteString("No participants yet.\n")
	} else {
		sb.WriteString("Party:\n")
		for _, p := range info.Participants {
			fmt.Fprintf(&sb, "• %s (joined at level %d)\n", p.CharacterName, p.StartingLevel)
		}
	}

	if pool := quest.EncounterXP(info.Monsters); pool > 0 {
		fmt.Fprintf(&sb, "Encounter pool so far: %d XP\n", pool)
	}
	return c.Reply(sb.String())
}

// HandleQuests handles /quests, listing a guild's active quests.
func (h *QuestHandler) HandleQuests(c tele.Context) error {
	ctx := context.Background()

	list, err := h.quests.ListQuests(ctx, c.Chat().ID, "active")
	if err != nil {
		return replyServiceError(c, err)
	}
	if len(list) == 0 {
		return c.Reply("No active quests. Start one with /quest_start.")
	}

	var sb strings.Builder
	sb.WriteString("Active quests:\n")
	for _, q := range list {
		fmt.Fprintf(&sb, "• %s — levels %s\n", q.Name, q.LevelBracket)
	}
	return c.Reply(sb.String())
}
