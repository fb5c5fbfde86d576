package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// clearEnv blanks every variable Load reads so ambient values cannot leak
// into a test case.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "ADMIN_IDS",
		"PROVIDER", "RSS_FEEDS", "MAX_POST_LENGTH", "DELIVERY_RETRIES",
		"BACKLOG_LIMIT", "MAX_EVENT_AGE", "BACKLOG_INTERVAL", "FILTER_CACHE_TTL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := &Config{
		TelegramBotToken: "test-token",
		DatabasePath:     "./data/relay.db",
		LogLevel:         "info",
		Provider:         ProviderTelegram,
		MaxPostLength:    4096,
		MaxEventAge:      24 * time.Hour,
		DeliveryRetries:  3,
		BacklogInterval:  10 * time.Minute,
		BacklogLimit:     50,
		FilterCacheTTL:   time.Minute,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")
	t.Setenv("DATABASE_PATH", "/var/lib/relay/relay.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ADMIN_IDS", "100, 200,300")
	t.Setenv("PROVIDER", "rss")
	t.Setenv("RSS_FEEDS", "-500=https://a.example.com/feed, -501=https://b.example.com/feed")
	t.Setenv("MAX_POST_LENGTH", "2000")
	t.Setenv("DELIVERY_RETRIES", "5")
	t.Setenv("BACKLOG_LIMIT", "25")
	t.Setenv("MAX_EVENT_AGE", "6h")
	t.Setenv("BACKLOG_INTERVAL", "1m")
	t.Setenv("FILTER_CACHE_TTL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := &Config{
		TelegramBotToken: "test-token",
		DatabasePath:     "/var/lib/relay/relay.db",
		LogLevel:         "debug",
		AdminIDs:         []int64{100, 200, 300},
		Provider:         ProviderRSS,
		RSSFeeds: []RSSFeed{
			{ChannelID: -500, URL: "https://a.example.com/feed"},
			{ChannelID: -501, URL: "https://b.example.com/feed"},
		},
		MaxPostLength:   2000,
		MaxEventAge:     6 * time.Hour,
		DeliveryRetries: 5,
		BacklogInterval: time.Minute,
		BacklogLimit:    25,
		FilterCacheTTL:  30 * time.Second,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing token",
			env:  map[string]string{},
		},
		{
			name: "bad admin id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "t",
				"ADMIN_IDS":          "100,abc",
			},
		},
		{
			name: "unknown provider",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "t",
				"PROVIDER":           "carrier-pigeon",
			},
		},
		{
			name: "rss provider without feeds",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "t",
				"PROVIDER":           "rss",
			},
		},
		{
			name: "bad feed mapping",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "t",
				"RSS_FEEDS":          "no-equals-sign",
			},
		},
		{
			name: "zero max post length",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "t",
				"MAX_POST_LENGTH":    "0",
			},
		},
		{
			name: "negative event age",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "t",
				"MAX_EVENT_AGE":      "-1h",
			},
		},
		{
			name: "unparsable backlog interval",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "t",
				"BACKLOG_INTERVAL":   "soon",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name   string
		admins []int64
		userID int64
		want   bool
	}{
		{name: "empty list allows everyone", userID: 42, want: true},
		{name: "listed user", admins: []int64{1, 2}, userID: 2, want: true},
		{name: "unlisted user", admins: []int64{1, 2}, userID: 3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AdminIDs: tt.admins}
			if got := cfg.IsAdmin(tt.userID); got != tt.want {
				t.Errorf("IsAdmin(%d) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}
