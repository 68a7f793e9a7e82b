// Package bot provides middleware for the Telegram bot.
package bot

import (
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-rp-bot/internal/config"
)

// AdminMiddleware restricts a handler group to configured admins and
// chat administrators.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if cfg.IsAdmin(sender.ID) {
				return next(c)
			}

			if chat := c.Chat(); chat != nil && chat.Type != tele.ChatPrivate {
				member, err := c.Bot().ChatMemberOf(chat, sender)
				if err == nil && (member.Role == tele.Administrator || member.Role == tele.Creator) {
					return next(c)
				}
			}

			log.Warn().
				Int64("user_id", sender.ID).
				Str("command", c.Text()).
				Msg("Non-admin attempted admin command")
			return c.Reply("❌ That command needs moderator permissions.")
		}
	}
}

// LoggingMiddleware logs every update the bot receives.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received message")

			return next(c)
		}
	}
}

// RecoveryMiddleware recovers from panics in handlers so one bad
// update cannot take the bot down.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					_ = c.Reply("❌ Internal error, please try again later.")
				}
			}()
			return next(c)
		}
	}
}
