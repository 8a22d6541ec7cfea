// Package config loads the runtime configuration of the matching server from
// the environment (optionally seeded from a .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                   int      `env:"PORT" envDefault:"3000"`
	LogLevel               string   `env:"LOG_LEVEL" envDefault:"info"`
	Language               string   `env:"CHAT_LANGUAGE" envDefault:"en"`
	AllowedOrigins         []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	DatabaseDSN            string   `env:"DATABASE_DSN"`
	RedisURL               string   `env:"REDIS_URL"`
	TelegramBotToken       string   `env:"TELEGRAM_BOT_TOKEN"`
	SendBufferSize         int      `env:"SEND_BUFFER_SIZE" envDefault:"256"`
	JournalBufferSize      int      `env:"JOURNAL_BUFFER_SIZE" envDefault:"1024"`
	ShutdownTimeoutSeconds int      `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"10"`
	MaxMessageLength       int      `env:"MAX_MESSAGE_LENGTH" envDefault:"1000"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) ArchiveEnabled() bool {
	return c.DatabaseDSN != ""
}

func (c *Config) StatsEnabled() bool {
	return c.RedisURL != ""
}

func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", c.SendBufferSize)
	}
	if c.JournalBufferSize <= 0 {
		return fmt.Errorf("JOURNAL_BUFFER_SIZE must be positive, got %d", c.JournalBufferSize)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	return nil
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
