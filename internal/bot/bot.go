// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-rp-bot/internal/config"
	"telegram-rp-bot/internal/handler"
	"telegram-rp-bot/internal/pkg/retry"
	"telegram-rp-bot/internal/service"
	"telegram-rp-bot/internal/xp"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	engine *service.EngineService

	characterHandler *handler.CharacterHandler
	adminHandler     *handler.AdminHandler
	questHandler     *handler.QuestHandler
}

// Dependencies holds everything the bot's handlers need.
type Dependencies struct {
	Config           *config.Config
	Engine           *service.EngineService
	CharacterHandler *handler.CharacterHandler
	AdminHandler     *handler.AdminHandler
	QuestHandler     *handler.QuestHandler
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:              teleBot,
		cfg:              deps.Config,
		engine:           deps.Engine,
		characterHandler: deps.CharacterHandler,
		adminHandler:     deps.AdminHandler,
		questHandler:     deps.QuestHandler,
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and message handlers.
func (b *Bot) registerHandlers() {
	// Character lifecycle and status
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/newchar", b.characterHandler.HandleNewChar)
	b.bot.Handle("/rename", b.characterHandler.HandleRename)
	b.bot.Handle("/retire", b.characterHandler.HandleRetire)
	b.bot.Handle("/restore", b.characterHandler.HandleRestore)
	b.bot.Handle("/switch", b.characterHandler.HandleSwitch)
	b.bot.Handle("/chars", b.characterHandler.HandleChars)
	b.bot.Handle("/xp", b.characterHandler.HandleXP)
	b.bot.Handle("/timezone", b.characterHandler.HandleTimezone)
	b.bot.Handle("/grantlog", b.characterHandler.HandleGrantLog)
	b.bot.Handle("/requestxp", b.characterHandler.HandleRequestXP)

	// Quests
	b.bot.Handle("/quests", b.questHandler.HandleQuests)
	b.bot.Handle("/quest_info", b.questHandler.HandleQuestInfo)
	b.bot.Handle("/quest_join", b.questHandler.HandleQuestJoin)
	b.bot.Handle("/quest_leave", b.questHandler.HandleQuestLeave)

	// Quest management and configuration, moderators only
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/grant", b.adminHandler.HandleGrant)
	adminGroup.Handle("/rp_on", b.adminHandler.HandleRPOn)
	adminGroup.Handle("/rp_off", b.adminHandler.HandleRPOff)
	adminGroup.Handle("/setrate", b.adminHandler.HandleSetRate)
	adminGroup.Handle("/setcap", b.adminHandler.HandleSetCap)
	adminGroup.Handle("/restrict_create", b.adminHandler.HandleRestrictCreate)
	adminGroup.Handle("/forage_on", b.adminHandler.HandleForageOn)
	adminGroup.Handle("/forage_off", b.adminHandler.HandleForageOff)
	adminGroup.Handle("/setforage", b.adminHandler.HandleSetForage)
	adminGroup.Handle("/requests_here", b.adminHandler.HandleRequestsHere)
	adminGroup.Handle("/purge", b.adminHandler.HandlePurge)
	adminGroup.Handle("/quest_start", b.questHandler.HandleQuestStart)
	adminGroup.Handle("/quest_dm", b.questHandler.HandleQuestDM)
	adminGroup.Handle("/quest_monster", b.questHandler.HandleQuestMonster)
	adminGroup.Handle("/quest_complete", b.questHandler.HandleQuestComplete)
	adminGroup.Handle("/quest_delete", b.questHandler.HandleQuestDelete)

	// Plain text drives passive XP accrual.
	b.bot.Handle(tele.OnText, b.handleText)
}

// handleStart greets the user and seeds their account.
func (b *Bot) handleStart(c tele.Context) error {
	return c.Reply(
		"🎲 Welcome to the RP XP tracker!\n\n" +
			"/newchar <name> — create a character\n" +
			"/xp — your active character's progress\n" +
			"/chars — list your characters\n" +
			"/switch <name> — change active character\n" +
			"/timezone <zone> — set your daily reset timezone\n" +
			"/requestxp <amount> | <name> — ask the admins for XP\n" +
			"/quests — active quests\n\n" +
			"Write in an RP-enabled chat and your active character earns XP.",
	)
}

// transientOnly limits retries to lock-contention failures; anything
// else fails immediately.
func transientOnly(err error) bool {
	return errors.Is(err, service.ErrTransient)
}

// handleText feeds every plain message through the XP engine. Hunt and
// forage outcome messages go to the forage engine, anything else to
// passive accrual. Messages in untracked chats are no-ops inside the
// engine; errors are logged, never surfaced, so chat traffic stays
// undisturbed.
func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	chat := c.Chat()
	msg := c.Message()
	if sender == nil || chat == nil || msg == nil || sender.IsBot {
		return nil
	}
	ctx := context.Background()

	if _, ok := xp.ParseForage(msg.Text); ok {
		var result *service.ForageResult
		err := retry.Do(ctx, retry.DefaultPolicy, transientOnly, func() error {
			var err error
			result, err = b.engine.RecordForage(ctx, service.ForageEvent{
				GuildID:   chat.ID,
				SenderID:  sender.ID,
				ChannelID: chat.ID,
				Text:      msg.Text,
				Timestamp: msg.Time(),
			})
			return err
		})
		if err != nil {
			log.Error().Err(err).
				Int64("chat_id", chat.ID).
				Msg("Failed to record forage outcome")
			return nil
		}
		if result.NewLevel != nil && result.Character != nil {
			return c.Reply(fmt.Sprintf("🎉 %s reached level %d!", result.Character.Name, *result.NewLevel))
		}
		return nil
	}

	var result *service.ActivityResult
	err := retry.Do(ctx, retry.DefaultPolicy, transientOnly, func() error {
		var err error
		result, err = b.engine.RecordActivity(ctx, service.ActivityEvent{
			GuildID:       chat.ID,
			UserID:        sender.ID,
			ChannelID:     chat.ID,
			MessageLength: int64(len([]rune(msg.Text))),
			Timestamp:     msg.Time(),
		})
		return err
	})
	if err != nil {
		log.Error().Err(err).
			Int64("user_id", sender.ID).
			Int64("chat_id", chat.ID).
			Msg("Failed to record activity")
		return nil
	}

	if result.NewLevel != nil && result.Character != nil {
		return c.Reply(fmt.Sprintf("🎉 %s reached level %d!", result.Character.Name, *result.NewLevel))
	}
	return nil
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop gracefully stops the bot.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
