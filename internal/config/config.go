// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string

	// Destination chats for background notifications.
	NewsChatID    int64
	KillsChatID   int64
	ConfessChatID int64

	AdminUserID int64

	// Killmail pipeline settings.
	RegionIDs    []int64
	MinKillValue float64

	// Newest items delivered when a source's ledger is empty.
	BootstrapLimit int

	NewsIntervalMinutes int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		TelegramBotToken:    token,
		DatabasePath:        envOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		MinKillValue:        50_000_000,
		BootstrapLimit:      5,
		NewsIntervalMinutes: 10,
	}

	var err error
	if cfg.NewsChatID, err = requiredInt64("NEWS_CHAT_ID"); err != nil {
		return nil, err
	}
	if cfg.KillsChatID, err = requiredInt64("KILLS_CHAT_ID"); err != nil {
		return nil, err
	}
	if cfg.ConfessChatID, err = requiredInt64("CONFESS_CHAT_ID"); err != nil {
		return nil, err
	}
	if cfg.AdminUserID, err = requiredInt64("ADMIN_USER_ID"); err != nil {
		return nil, err
	}

	if raw := os.Getenv("REGION_IDS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid region ID %q in REGION_IDS: %w", s, err)
			}
			cfg.RegionIDs = append(cfg.RegionIDs, id)
		}
	}

	if raw := os.Getenv("MIN_KILL_VALUE"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid MIN_KILL_VALUE %q", raw)
		}
		cfg.MinKillValue = v
	}

	if raw := os.Getenv("BOOTSTRAP_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid BOOTSTRAP_LIMIT %q", raw)
		}
		cfg.BootstrapLimit = n
	}

	if raw := os.Getenv("NEWS_INTERVAL_MINUTES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1440 {
			return nil, fmt.Errorf("NEWS_INTERVAL_MINUTES must be between 1 and 1440")
		}
		cfg.NewsIntervalMinutes = n
	}

	return cfg, nil
}

// IsAdmin reports whether a user may run restricted commands.
func (c *Config) IsAdmin(userID int64) bool {
	return userID == c.AdminUserID
}

func requiredInt64(key string) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
