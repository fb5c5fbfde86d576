package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"relay_bot/internal/bot"
	"relay_bot/internal/config"
	"relay_bot/internal/filter"
	"relay_bot/internal/provider"
	"relay_bot/internal/publisher"
	"relay_bot/internal/relay"
	"relay_bot/internal/render"
	"relay_bot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("create bot api", "error", err)
		os.Exit(1)
	}

	filters := filter.NewCache(store, cfg.FilterCacheTTL, log)
	renderer := render.New(cfg.MaxPostLength)
	pub := publisher.New(store, publisher.NewTelegramTransport(api), renderer, cfg.DeliveryRetries, log)

	var prov provider.Provider
	var posts bot.PostSink
	switch cfg.Provider {
	case config.ProviderRSS:
		rss := provider.NewRSS(http.DefaultClient, cfg.BacklogInterval, log)
		for _, f := range cfg.RSSFeeds {
			rss.Register(f.ChannelID, f.URL)
		}
		prov = rss
	default:
		tg := provider.NewTelegram(log)
		prov = tg
		posts = tg
	}

	rel := relay.New(store, pub, filters, prov, relay.Options{
		MaxEventAge:     cfg.MaxEventAge,
		RetryLimit:      cfg.DeliveryRetries,
		BacklogInterval: cfg.BacklogInterval,
		BacklogLimit:    cfg.BacklogLimit,
		ShutdownGrace:   10 * time.Second,
	}, log)

	b := bot.New(api, store, cfg, filters, posts, rel, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting relay bot", "provider", cfg.Provider)

	go func() {
		if err := rel.Run(ctx); err != nil {
			log.Error("relay stopped", "error", err)
		}
	}()

	b.Run(ctx)

	log.Info("relay bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
