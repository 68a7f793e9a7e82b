// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Guild    GuildConfig    `mapstructure:"guild"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// BotConfig holds chat-platform bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// GuildConfig identifies the chat server the bot tracks and seeds the
// defaults written when a guild's config row is first created.
type GuildConfig struct {
	ID                    int64 `mapstructure:"id"`
	DefaultCharPerRP      int64 `mapstructure:"default_char_per_rp"`
	DefaultDailyRPCap     int64 `mapstructure:"default_daily_rp_cap"`
	DefaultForageBaseXP   int64 `mapstructure:"default_forage_base_xp"`
	DefaultForageBonusXP  int64 `mapstructure:"default_forage_bonus_xp"`
	DefaultDailyForageCap int64 `mapstructure:"default_daily_forage_cap"`
}

// EngineConfig holds XP engine tuning.
type EngineConfig struct {
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables override file values, e.g.
	// BOT_TOKEN, DATABASE_HOST, GUILD_ID.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "xpbot")
	v.SetDefault("database.name", "xpbot")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("guild.default_char_per_rp", 240)
	v.SetDefault("guild.default_daily_rp_cap", 10)
	v.SetDefault("guild.default_forage_base_xp", 1)
	v.SetDefault("guild.default_forage_bonus_xp", 5)
	v.SetDefault("guild.default_daily_forage_cap", 5)

	v.SetDefault("engine.lock_timeout", "5s")
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
