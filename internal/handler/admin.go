package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-rp-bot/internal/model"
	"telegram-rp-bot/internal/repository"
	"telegram-rp-bot/internal/service"
)

// AdminHandler handles moderator commands: manual grants, accrual
// configuration, and account purges. Registration behind the admin
// middleware is what gates access; the handlers assume the caller is
// trusted.
type AdminHandler struct {
	ledger   *service.LedgerService
	configs  *repository.ConfigRepository
	defaults repository.ConfigDefaults
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger *service.LedgerService, configs *repository.ConfigRepository, defaults repository.ConfigDefaults) *AdminHandler {
	return &AdminHandler{
		ledger:   ledger,
		configs:  configs,
		defaults: defaults,
	}
}

// HandleGrant handles /grant <amount> | <character> [| memo].
// The amount may be negative; lifetime XP never drops below zero.
func (h *AdminHandler) HandleGrant(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	parts := strings.SplitN(strings.Join(c.Args(), " "), "|", 3)
	if len(parts) < 2 {
		return c.Reply("Usage: /grant <amount> | <character> [| memo]\nExample: /grant 250 | Aria | session reward")
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return c.Reply("❌ Amount must be an integer, e.g. 250 or -50.")
	}
	name := strings.TrimSpace(parts[1])
	var memo *string
	if len(parts) == 3 {
		m := strings.TrimSpace(parts[2])
		if m != "" {
			memo = &m
		}
	}

	char, err := h.ledger.FindCharacterAnyUser(ctx, name)
	if err != nil {
		return replyServiceError(c, err)
	}

	_, applied, err := h.ledger.GrantXP(ctx, char.ID, sender.ID, amount, memo)
	if err != nil {
		return replyServiceError(c, err)
	}

	if applied != amount {
		return c.Reply(fmt.Sprintf("⚖️ Granted %+d to %s (requested %+d, clamped at 0 XP).", applied, char.Name, amount))
	}
	return c.Reply(fmt.Sprintf("⚖️ Granted %+d XP to %s.", applied, char.Name))
}

// HandleRPOn handles /rp_on, marking the current chat as RP-tracked.
func (h *AdminHandler) HandleRPOn(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	if _, err := h.configs.GetOrCreate(ctx, chatID, h.defaults); err != nil {
		return replyServiceError(c, err)
	}
	if err := h.configs.AddRPChannel(ctx, chatID, chatID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply("📖 This chat now earns RP XP.")
}

// HandleRPOff handles /rp_off, removing the current chat from tracking.
func (h *AdminHandler) HandleRPOff(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	if err := h.configs.RemoveRPChannel(ctx, chatID, chatID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply("📕 This chat no longer earns RP XP.")
}

// HandleSetRate handles /setrate <chars per XP>.
func (h *AdminHandler) HandleSetRate(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /setrate <characters per XP point>")
	}
	rate, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || rate < 1 {
		return c.Reply("❌ Rate must be a positive integer.")
	}

	cfg, err := h.configs.GetOrCreate(ctx, chatID, h.defaults)
	if err != nil {
		return replyServiceError(c, err)
	}
	if err := h.configs.SetRates(ctx, chatID, rate, cfg.DailyRPCap); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("⚙️ Accrual rate set: 1 XP per %d characters typed.", rate))
}

// HandleSetCap handles /setcap <daily XP cap>.
func (h *AdminHandler) HandleSetCap(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /setcap <daily XP cap>")
	}
	cap, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || cap < 1 {
		return c.Reply("❌ Cap must be a positive integer.")
	}

	if _, err := h.configs.GetOrCreate(ctx, chatID, h.defaults); err != nil {
		return replyServiceError(c, err)
	}
	if err := h.configs.SetDailyCap(ctx, chatID, cap); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("⚙️ Daily RP XP cap set to %d.", cap))
}

// HandleRestrictCreate handles /restrict_create <on|off>. When on,
// only chat administrators may create characters.
func (h *AdminHandler) HandleRestrictCreate(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	args := c.Args()
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return c.Reply("Usage: /restrict_create <on|off>")
	}

	if _, err := h.configs.GetOrCreate(ctx, chatID, h.defaults); err != nil {
		return replyServiceError(c, err)
	}

	var roles []int64
	if args[0] == "on" {
		roles = []int64{model.RoleChatAdmin}
	}
	if err := h.configs.SetCreateRoles(ctx, chatID, roles); err != nil {
		return replyServiceError(c, err)
	}

	if args[0] == "on" {
		return c.Reply("🔒 Character creation is now limited to chat administrators.")
	}
	return c.Reply("🔓 Anyone may create characters again.")
}

// HandleForageOn handles /forage_on, marking the current chat's hunt
// and forage outcomes as XP-earning.
func (h *AdminHandler) HandleForageOn(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	if _, err := h.configs.GetOrCreate(ctx, chatID, h.defaults); err != nil {
		return replyServiceError(c, err)
	}
	if err := h.configs.AddForageChannel(ctx, chatID, chatID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply("🏹 Hunt and forage outcomes in this chat now earn XP.")
}

// HandleForageOff handles /forage_off, removing the current chat from
// forage tracking.
func (h *AdminHandler) HandleForageOff(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	if err := h.configs.RemoveForageChannel(ctx, chatID, chatID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply("🏹 Hunt and forage outcomes in this chat no longer earn XP.")
}

// HandleSetForage handles /setforage <attempt XP> <success bonus> <daily cap>.
func (h *AdminHandler) HandleSetForage(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	args := c.Args()
	if len(args) != 3 {
		return c.Reply("Usage: /setforage <attempt XP> <success bonus> <daily cap>\nExample: /setforage 1 5 5")
	}
	base, err1 := strconv.ParseInt(args[0], 10, 64)
	bonus, err2 := strconv.ParseInt(args[1], 10, 64)
	cap, err3 := strconv.ParseInt(args[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || base < 0 || bonus < 0 || cap < 1 {
		return c.Reply("❌ Attempt XP and bonus must be non-negative, the cap a positive integer.")
	}

	if _, err := h.configs.GetOrCreate(ctx, chatID, h.defaults); err != nil {
		return replyServiceError(c, err)
	}
	if err := h.configs.SetForageRates(ctx, chatID, base, bonus, cap); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("⚙️ Forage XP set: %d per attempt, +%d on success, %d per day.", base, bonus, cap))
}

// HandleRequestsHere handles /requests_here, routing player XP
// requests to the current chat so admins can act on them with /grant.
func (h *AdminHandler) HandleRequestsHere(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID

	if _, err := h.configs.GetOrCreate(ctx, chatID, h.defaults); err != nil {
		return replyServiceError(c, err)
	}
	if err := h.configs.SetRequestChannel(ctx, chatID, &chatID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply("📨 XP requests will be posted in this chat.")
}

// HandlePurge handles /purge <user_id>, irreversibly deleting a user
// and everything they own.
func (h *AdminHandler) HandlePurge(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /purge <user id>\n⚠️ Deletes the user, all their characters, and all grant history. No undo.")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ User ID must be numeric.")
	}

	if err := h.ledger.PurgeUser(ctx, userID); err != nil {
		return replyServiceError(c, err)
	}
	return c.Reply(fmt.Sprintf("🗑️ User %d and all their data have been erased.", userID))
}
