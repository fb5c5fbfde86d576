// Package bot implements the operator command surface over Telegram.
package bot

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relay_bot/internal/config"
	"relay_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// PostSink receives channel posts observed by the update loop. The Telegram
// source provider implements it.
type PostSink interface {
	HandleChannelPost(post *tgbotapi.Message)
}

// SourceControl adds and removes individual feed subscriptions on the
// running relay.
type SourceControl interface {
	AddSource(ctx context.Context, channelID int64) error
	RemoveSource(channelID int64)
}

// FilterInvalidator drops the cached filter chain after a rule mutation.
type FilterInvalidator interface {
	Invalidate()
}

// Bot handles operator commands and feeds channel posts into the relay.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	cfg     *config.Config
	filters FilterInvalidator
	posts   PostSink
	relay   SourceControl
	log     *slog.Logger
}

// New creates a Bot. posts may be nil when the Telegram provider is not in
// use; relay may be nil in tests.
func New(api telegramAPI, store storage.Storage, cfg *config.Config, filters FilterInvalidator, posts PostSink, relay SourceControl, log *slog.Logger) *Bot {
	return &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		filters: filters,
		posts:   posts,
		relay:   relay,
		log:     log,
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
// Channel posts are routed to the post sink; commands are dispatched to the
// handlers.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.ChannelPost != nil {
				if b.posts != nil {
					b.posts.HandleChannelPost(update.ChannelPost)
				}
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsAdmin(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "sources":
		b.handleSources(ctx, chatID)
	case "add_source":
		b.handleAddSource(ctx, chatID, args)
	case "rm_source":
		b.handleRmSource(ctx, chatID, args)
	case "pause_source":
		b.handleSetSourceActive(ctx, chatID, args, false)
	case "resume_source":
		b.handleSetSourceActive(ctx, chatID, args, true)
	case "targets":
		b.handleTargets(ctx, chatID)
	case "add_target":
		b.handleAddTarget(ctx, chatID, args)
	case "rm_target":
		b.handleRmTarget(ctx, chatID, args)
	case "filters":
		b.handleFilters(ctx, chatID)
	case "include":
		b.handleAddFilter(ctx, chatID, args, "include")
	case "exclude":
		b.handleAddFilter(ctx, chatID, args, "exclude")
	case "pattern":
		b.handleAddFilter(ctx, chatID, args, "pattern")
	case "togglefilter":
		b.handleToggleFilter(ctx, chatID, args)
	case "rmfilter":
		b.handleRmFilter(ctx, chatID, args)
	case "stats":
		b.handleStats(ctx, chatID)
	case "errors":
		b.handleErrors(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
