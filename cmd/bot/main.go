// Package main is the entry point for the RP XP tracking bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-rp-bot/internal/bot"
	"telegram-rp-bot/internal/config"
	"telegram-rp-bot/internal/handler"
	"telegram-rp-bot/internal/pkg/db"
	"telegram-rp-bot/internal/pkg/lock"
	"telegram-rp-bot/internal/repository"
	"telegram-rp-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	characterRepo := repository.NewCharacterRepository(dbPool.Pool)
	grantRepo := repository.NewGrantRepository(dbPool.Pool)
	configRepo := repository.NewConfigRepository(dbPool.Pool)
	questRepo := repository.NewQuestRepository(dbPool.Pool)

	// Initialize user lock
	userLock := lock.NewUserLock()

	// Initialize services
	ledgerService := service.NewLedgerService(
		dbPool.Pool,
		userRepo,
		characterRepo,
		grantRepo,
		configRepo,
		userLock,
		cfg.Engine.LockTimeout,
	)

	configDefaults := repository.ConfigDefaults{
		CharPerRP:      cfg.Guild.DefaultCharPerRP,
		DailyRPCap:     cfg.Guild.DefaultDailyRPCap,
		ForageBaseXP:   cfg.Guild.DefaultForageBaseXP,
		ForageBonusXP:  cfg.Guild.DefaultForageBonusXP,
		DailyForageCap: cfg.Guild.DefaultDailyForageCap,
	}

	engineService := service.NewEngineService(
		dbPool.Pool,
		userRepo,
		characterRepo,
		configRepo,
		userLock,
		cfg.Engine.LockTimeout,
		configDefaults,
	)

	questService := service.NewQuestService(
		dbPool.Pool,
		questRepo,
		characterRepo,
		grantRepo,
		userRepo,
	)

	// Initialize handlers
	characterHandler := handler.NewCharacterHandler(ledgerService, engineService, configRepo, configDefaults)
	adminHandler := handler.NewAdminHandler(ledgerService, configRepo, configDefaults)
	questHandler := handler.NewQuestHandler(questService, ledgerService)

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:           cfg,
		Engine:           engineService,
		CharacterHandler: characterHandler,
		AdminHandler:     adminHandler,
		QuestHandler:     questHandler,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: users
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			last_xp_reset DATE,
			active_character_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: characters. Name uniqueness applies per owner
	// across non-retired characters only, so a retired name can be
	// reused.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS characters (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			xp BIGINT NOT NULL DEFAULT 0,
			daily_xp BIGINT NOT NULL DEFAULT 0,
			char_buffer BIGINT NOT NULL DEFAULT 0,
			daily_forage BIGINT NOT NULL DEFAULT 0,
			retired BOOLEAN NOT NULL DEFAULT FALSE,
			image_url TEXT,
			sheet_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS characters_user_name_active
			ON characters (user_id, lower(name)) WHERE NOT retired;
		CREATE INDEX IF NOT EXISTS idx_characters_user ON characters(user_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: characters table created")

	// Migration 3: grants audit log
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS grants (
			id BIGSERIAL PRIMARY KEY,
			character_id BIGINT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
			grantor_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			memo TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_grants_character_time ON grants(character_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: grants table created")

	// Migration 4: per-guild accrual configuration
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS config (
			guild_id BIGINT PRIMARY KEY,
			rp_channels BIGINT[] NOT NULL DEFAULT '{}',
			char_per_rp BIGINT NOT NULL,
			daily_rp_cap BIGINT NOT NULL,
			forage_channels BIGINT[] NOT NULL DEFAULT '{}',
			forage_base_xp BIGINT NOT NULL DEFAULT 1,
			forage_bonus_xp BIGINT NOT NULL DEFAULT 5,
			daily_forage_cap BIGINT NOT NULL DEFAULT 5,
			create_roles BIGINT[] NOT NULL DEFAULT '{}',
			request_channel BIGINT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: config table created")

	// Migration 5: quests and their satellite tables
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS quests (
			id BIGSERIAL PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			quest_type TEXT NOT NULL,
			level_bracket TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS quests_guild_name_active
			ON quests (guild_id, lower(name)) WHERE status = 'active';

		CREATE TABLE IF NOT EXISTS quest_participants (
			quest_id BIGINT NOT NULL REFERENCES quests(id) ON DELETE CASCADE,
			character_id BIGINT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
			starting_level INT NOT NULL,
			starting_xp BIGINT NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (quest_id, character_id)
		);

		CREATE TABLE IF NOT EXISTS quest_dms (
			quest_id BIGINT NOT NULL REFERENCES quests(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			is_primary BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (quest_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS quest_monsters (
			id BIGSERIAL PRIMARY KEY,
			quest_id BIGINT NOT NULL REFERENCES quests(id) ON DELETE CASCADE,
			cr TEXT NOT NULL,
			monster_name TEXT,
			count INT NOT NULL
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: quest tables created")

	log.Info().Msg("All migrations completed")
	return nil
}
