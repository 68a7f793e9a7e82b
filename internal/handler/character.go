// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-rp-bot/internal/model"
	"telegram-rp-bot/internal/repository"
	"telegram-rp-bot/internal/service"
	"telegram-rp-bot/internal/xp"
)

// CharacterHandler handles character lifecycle and status commands.
type CharacterHandler struct {
	ledger   *service.LedgerService
	engine   *service.EngineService
	configs  *repository.ConfigRepository
	defaults repository.ConfigDefaults
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(ledger *service.LedgerService, engine *service.EngineService, configs *repository.ConfigRepository, defaults repository.ConfigDefaults) *CharacterHandler {
	return &CharacterHandler{ledger: ledger, engine: engine, configs: configs, defaults: defaults}
}

// splitPipe splits "left | right" command arguments on the first pipe.
func splitPipe(args []string) (string, string) {
	joined := strings.Join(args, " ")
	parts := strings.SplitN(joined, "|", 2)
	if len(parts) < 2 {
		return strings.TrimSpace(parts[0]), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func senderRoles(c tele.Context) []int64 {
	// Telegram has no role system; chat admins map to a synthetic
	// role so role-restricted creation still has a gate.
	member, err := c.Bot().ChatMemberOf(c.Chat(), c.Sender())
	if err != nil {
		return nil
	}
	if member.Role == tele.Administrator || member.Role == tele.Creator {
		return []int64{model.RoleChatAdmin}
	}
	return nil
}

// replyServiceError converts service error kinds into user-facing text.
func replyServiceError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrDuplicateName):
		return c.Reply("❌ That name is already in use.")
	case errors.Is(err, service.ErrNotFound):
		return c.Reply("❌ Not found.")
	case errors.Is(err, service.ErrNotOwned):
		return c.Reply("❌ That character belongs to someone else.")
	case errors.Is(err, service.ErrNotPermitted):
		return c.Reply("❌ You are not allowed to do that.")
	case errors.Is(err, service.ErrInvalidState):
		return c.Reply(fmt.Sprintf("❌ %s", strings.TrimPrefix(err.Error(), "invalid state for operation: ")))
	case errors.Is(err, service.ErrTransient):
		return c.Reply("⏳ Busy right now, please try again in a moment.")
	default:
		return c.Reply("❌ Something went wrong, please try again later.")
	}
}

// HandleNewChar handles /newchar <name>.
func (h *CharacterHandler) HandleNewChar(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name := strings.TrimSpace(strings.Join(c.Args(), " "))
	if name == "" {
		return c.Reply("Usage: /newchar <name>")
	}

	char, err := h.ledger.CreateCharacter(ctx, c.Chat().ID, sender.ID, name, nil, nil, senderRoles(c))
	if err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("🎭 Character %q created. Use /switch %s to make them active.", char.Name, char.Name))
}

// HandleRename handles /rename <old> | <new>.
func (h *CharacterHandler) HandleRename(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	oldName, newName := splitPipe(c.Args())
	if oldName == "" || newName == "" {
		return c.Reply("Usage: /rename <old name> | <new name>")
	}

	char, err := h.ledger.FindCharacter(ctx, sender.ID, oldName)
	if err != nil {
		return replyServiceError(c, err)
	}
	renamed, err := h.ledger.RenameCharacter(ctx, sender.ID, char.ID, newName)
	if err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("✏️ %q is now %q.", oldName, renamed.Name))
}

// HandleRetire handles /retire <name>.
func (h *CharacterHandler) HandleRetire(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name := strings.TrimSpace(strings.Join(c.Args(), " "))
	if name == "" {
		return c.Reply("Usage: /retire <name>")
	}

	char, err := h.ledger.FindCharacter(ctx, sender.ID, name)
	if err != nil {
		return replyServiceError(c, err)
	}
	if err := h.ledger.RetireCharacter(ctx, sender.ID, char.ID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("🪦 %q has retired. Their XP and history are kept; use /restore to bring them back.", char.Name))
}

// HandleRestore handles /restore <name>.
func (h *CharacterHandler) HandleRestore(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name := strings.TrimSpace(strings.Join(c.Args(), " "))
	if name == "" {
		return c.Reply("Usage: /restore <name>")
	}

	// Retired characters are invisible to the live-name lookup, so
	// scan the full list.
	list, err := h.ledger.ListCharacters(ctx, sender.ID, true)
	if err != nil {
		return replyServiceError(c, err)
	}
	var target *model.Character
	for _, ch := range list {
		if ch.Retired && strings.EqualFold(ch.Name, name) {
			target = ch
			break
		}
	}
	if target == nil {
		return c.Reply(fmt.Sprintf("❌ No retired character named %q.", name))
	}

	restored, err := h.ledger.RestoreCharacter(ctx, sender.ID, target.ID)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateName) {
			return c.Reply(fmt.Sprintf("❌ You already have an active character named %q. Rename them first.", name))
		}
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("✨ %q is back in play.", restored.Name))
}

// HandleSwitch handles /switch <name>.
func (h *CharacterHandler) HandleSwitch(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name := strings.TrimSpace(strings.Join(c.Args(), " "))
	if name == "" {
		return c.Reply("Usage: /switch <name>")
	}

	char, err := h.ledger.FindCharacter(ctx, sender.ID, name)
	if err != nil {
		return replyServiceError(c, err)
	}
	if err := h.ledger.SetActiveCharacter(ctx, sender.ID, char.ID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("🎭 %q is now your active character.", char.Name))
}

// HandleChars handles /chars, listing the sender's characters.
func (h *CharacterHandler) HandleChars(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	list, err := h.ledger.ListCharacters(ctx, sender.ID, true)
	if err != nil {
		return replyServiceError(c, err)
	}
	if len(list) == 0 {
		return c.Reply("You have no characters yet. Create one with /newchar <name>.")
	}

	active, _ := h.ledger.ActiveCharacter(ctx, sender.ID)

	var sb strings.Builder
	sb.WriteString("Your characters:\n")
	for _, ch := range list {
		level := xp.LevelForXP(ch.XP)
		switch {
		case ch.Retired:
			fmt.Fprintf(&sb, "🪦 %s — level %d (retired)\n", ch.Name, level)
		case active != nil && active.ID == ch.ID:
			fmt.Fprintf(&sb, "⭐ %s — level %d, %d XP (active)\n", ch.Name, level, ch.XP)
		default:
			fmt.Fprintf(&sb, "• %s — level %d, %d XP\n", ch.Name, level, ch.XP)
		}
	}
	return c.Reply(sb.String())
}

// HandleXP handles /xp, showing the active character's progress.
func (h *CharacterHandler) HandleXP(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	char, err := h.ledger.ActiveCharacter(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Reply("You have no active character. Create one with /newchar or pick one with /switch.")
		}
		return replyServiceError(c, err)
	}

	level, progress, required := xp.Progress(char.XP)
	status, err := h.engine.DailyStatus(ctx, c.Chat().ID, sender.ID)
	if err != nil {
		return replyServiceError(c, err)
	}

	msg := fmt.Sprintf("🎭 %s — level %d\nTotal XP: %d\n", char.Name, level, char.XP)
	if level < xp.MaxLevel {
		msg += fmt.Sprintf("To level %d: %d/%d\n", level+1, progress, required)
	} else {
		msg += "Maximum level reached.\n"
	}
	msg += fmt.Sprintf("Today: %d/%d RP XP, %d/%d forage XP", status.DailyXP, status.DailyCap, status.DailyForage, status.ForageCap)
	return c.Reply(msg)
}

// HandleTimezone handles /timezone <IANA zone>.
func (h *CharacterHandler) HandleTimezone(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /timezone <zone>\nExample: /timezone Europe/Berlin")
	}

	if err := h.ledger.SetTimezone(ctx, sender.ID, args[0]); err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			return c.Reply(fmt.Sprintf("❌ Unknown timezone %q. Use an IANA name like America/New_York.", args[0]))
		}
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("🕐 Timezone set to %s. Your daily XP window now follows it.", args[0]))
}

// HandleRequestXP handles /requestxp <amount> | <character> [| reason].
// The request is posted to the guild's configured request channel for
// an admin to act on with /grant.
func (h *CharacterHandler) HandleRequestXP(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	parts := strings.SplitN(strings.Join(c.Args(), " "), "|", 3)
	if len(parts) < 2 {
		return c.Reply("Usage: /requestxp <amount> | <character> [| reason]\nExample: /requestxp 100 | Aria | downtime crafting")
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || amount < 1 {
		return c.Reply("❌ Amount must be a positive integer.")
	}
	name := strings.TrimSpace(parts[1])
	reason := ""
	if len(parts) == 3 {
		reason = strings.TrimSpace(parts[2])
	}

	char, err := h.ledger.FindCharacter(ctx, sender.ID, name)
	if err != nil {
		return replyServiceError(c, err)
	}

	cfg, err := h.configs.GetOrCreate(ctx, c.Chat().ID, h.defaults)
	if err != nil {
		return replyServiceError(c, err)
	}
	if cfg.RequestChannel == nil {
		return c.Reply("❌ No request channel is set up. Ask an admin to run /requests_here.")
	}

	text := fmt.Sprintf("📨 XP request from %s\nCharacter: %s\nAmount: %d", senderName(sender), char.Name, amount)
	if reason != "" {
		text += "\nReason: " + reason
	}
	approve := fmt.Sprintf("/grant %d | %s", amount, char.Name)
	if reason != "" {
		approve += " | " + reason
	}
	text += "\n\nApprove with: " + approve

	if _, err := c.Bot().Send(tele.ChatID(*cfg.RequestChannel), text); err != nil {
		return c.Reply("❌ Could not deliver the request, please try again later.")
	}
	return c.Reply(fmt.Sprintf("📨 Request for %d XP on %q sent to the admins.", amount, char.Name))
}

func senderName(u *tele.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HandleGrantLog handles /grantlog <name>, showing a character's
// manual-grant history.
func (h *CharacterHandler) HandleGrantLog(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name := strings.TrimSpace(strings.Join(c.Args(), " "))
	if name == "" {
		return c.Reply("Usage: /grantlog <name>")
	}

	char, err := h.ledger.FindCharacter(ctx, sender.ID, name)
	if err != nil {
		return replyServiceError(c, err)
	}
	records, err := h.ledger.GrantHistory(ctx, char.ID, 15)
	if err != nil {
		return replyServiceError(c, err)
	}
	if len(records) == 0 {
		return c.Reply(fmt.Sprintf("%q has no recorded grants.", char.Name))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Grant history for %s:\n", char.Name)
	for _, g := range records {
		line := fmt.Sprintf("%s: %+d", g.CreatedAt.Format("2006-01-02"), g.Amount)
		if g.Memo != nil && *g.Memo != "" {
			line += " — " + *g.Memo
		}
		sb.WriteString(line + "\n")
	}
	return c.Reply(sb.String())
}
