// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider selection for source feeds.
const (
	ProviderTelegram = "telegram"
	ProviderRSS      = "rss"
)

// RSSFeed is one channelID=url mapping from the RSS_FEEDS variable.
type RSSFeed struct {
	ChannelID int64
	URL       string
}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AdminIDs         []int64

	Provider string
	RSSFeeds []RSSFeed

	MaxPostLength   int
	MaxEventAge     time.Duration
	DeliveryRetries int
	BacklogInterval time.Duration
	BacklogLimit    int
	FilterCacheTTL  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		TelegramBotToken: token,
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/relay.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		Provider:         envOrDefault("PROVIDER", ProviderTelegram),
		MaxPostLength:    4096,
		MaxEventAge:      24 * time.Hour,
		DeliveryRetries:  3,
		BacklogInterval:  10 * time.Minute,
		BacklogLimit:     50,
		FilterCacheTTL:   time.Minute,
	}

	if cfg.Provider != ProviderTelegram && cfg.Provider != ProviderRSS {
		return nil, fmt.Errorf("invalid PROVIDER %q, use: telegram, rss", cfg.Provider)
	}

	var err error
	if cfg.AdminIDs, err = parseIDList(os.Getenv("ADMIN_IDS")); err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}
	if cfg.RSSFeeds, err = parseRSSFeeds(os.Getenv("RSS_FEEDS")); err != nil {
		return nil, fmt.Errorf("invalid RSS_FEEDS: %w", err)
	}
	if cfg.Provider == ProviderRSS && len(cfg.RSSFeeds) == 0 {
		return nil, fmt.Errorf("PROVIDER=rss requires RSS_FEEDS")
	}

	if raw := os.Getenv("MAX_POST_LENGTH"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid MAX_POST_LENGTH %q", raw)
		}
		cfg.MaxPostLength = n
	}
	if raw := os.Getenv("DELIVERY_RETRIES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid DELIVERY_RETRIES %q", raw)
		}
		cfg.DeliveryRetries = n
	}
	if raw := os.Getenv("BACKLOG_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid BACKLOG_LIMIT %q", raw)
		}
		cfg.BacklogLimit = n
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"MAX_EVENT_AGE", &cfg.MaxEventAge},
		{"BACKLOG_INTERVAL", &cfg.BacklogInterval},
		{"FILTER_CACHE_TTL", &cfg.FilterCacheTTL},
	} {
		if raw := os.Getenv(d.key); raw != "" {
			v, err := time.ParseDuration(raw)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("invalid %s %q", d.key, raw)
			}
			*d.dst = v
		}
	}

	return cfg, nil
}

// IsAdmin checks whether a user ID is in the operator allow list.
// Returns true if the list is empty (all users permitted).
func (c *Config) IsAdmin(userID int64) bool {
	if len(c.AdminIDs) == 0 {
		return true
	}
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIDList(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad ID %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseRSSFeeds parses "channelID=url,channelID=url" pairs.
func parseRSSFeeds(raw string) ([]RSSFeed, error) {
	if raw == "" {
		return nil, nil
	}
	var feeds []RSSFeed
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad feed mapping %q, want channelID=url", pair)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad channel ID in %q: %w", pair, err)
		}
		feeds = append(feeds, RSSFeed{ChannelID: id, URL: strings.TrimSpace(parts[1])})
	}
	return feeds, nil
}
