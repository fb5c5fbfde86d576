package bot

import (
	"context"
	"errors"
	"fmt"

	"relay_bot/internal/filter"
	"relay_bot/internal/model"
	"relay_bot/internal/storage"
)

const recentErrorLimit = 10

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Channel Relay Bot!

Relay posts from monitored channels to your target channels,
with filtering and duplicate suppression.

Quick start:
1. /add_source <channel_id> [@username] <title> — monitor a channel
2. /add_target <channel_id> <title> — add a delivery target
3. /exclude <word> — blacklist a word

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Source channels:
/sources — list monitored channels
/add_source <channel_id> [@username] <title> — start monitoring
/rm_source <channel_id> — stop monitoring (kept for history)
/pause_source <channel_id> — pause relaying
/resume_source <channel_id> — resume relaying

Target channels:
/targets — list delivery targets
/add_target <channel_id> <title> — add a target
/rm_target <channel_id> — deactivate a target

Filters (a post must pass all active rules):
/filters — list rules
/include [-c] <word> — post must contain word
/exclude [-c] <word> — post must not contain word
/pattern [-c] <regex> — post must match regex
/togglefilter <id> — enable/disable a rule
/rmfilter <id> — delete a rule

-c makes the rule case-sensitive.

Statistics:
/stats — delivery counts
/errors — recent delivery errors`)
}

func (b *Bot) handleSources(ctx context.Context, chatID int64) {
	sources, err := b.store.ListSourceChannels(ctx, false)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSourceList(sources))
}

func (b *Bot) handleAddSource(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseChannelArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /add_source <channel_id> [@username] <title>")
		return
	}

	ch := &model.SourceChannel{
		ChannelID: parsed.ChannelID,
		Username:  parsed.Username,
		Title:     parsed.Title,
		IsActive:  true,
	}
	if err := b.store.CreateSourceChannel(ctx, ch); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save source channel: %v", err))
		return
	}

	if b.relay != nil {
		if err := b.relay.AddSource(ctx, ch.ChannelID); err != nil {
			b.reply(chatID, fmt.Sprintf("Saved, but subscription failed: %v", err))
			return
		}
	}
	b.reply(chatID, fmt.Sprintf("Now monitoring %d \"%s\".", ch.ChannelID, ch.Title))
}

func (b *Bot) handleRmSource(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rm_source <channel_id>")
		return
	}

	if err := b.store.SetSourceChannelActive(ctx, id, false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Source channel %d not found.", id))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if b.relay != nil {
		b.relay.RemoveSource(id)
	}
	b.reply(chatID, fmt.Sprintf("Source channel %d removed from monitoring.", id))
}

func (b *Bot) handleSetSourceActive(ctx context.Context, chatID int64, args string, active bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /pause_source <channel_id> or /resume_source <channel_id>")
		return
	}

	if err := b.store.SetSourceChannelActive(ctx, id, active); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Source channel %d not found.", id))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	if b.relay != nil {
		if active {
			if err := b.relay.AddSource(ctx, id); err != nil {
				b.reply(chatID, fmt.Sprintf("Resumed, but subscription failed: %v", err))
				return
			}
		} else {
			b.relay.RemoveSource(id)
		}
	}

	verb := "resumed"
	if !active {
		verb = "paused"
	}
	b.reply(chatID, fmt.Sprintf("Source channel %d %s.", id, verb))
}

func (b *Bot) handleTargets(ctx context.Context, chatID int64) {
	targets, err := b.store.ListTargetChannels(ctx, false)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatTargetList(targets))
}

func (b *Bot) handleAddTarget(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseChannelArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /add_target <channel_id> <title>")
		return
	}

	ch := &model.TargetChannel{
		ChannelID: parsed.ChannelID,
		Title:     parsed.Title,
		IsActive:  true,
	}
	if err := b.store.CreateTargetChannel(ctx, ch); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save target channel: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Target %d \"%s\" added.", ch.ChannelID, ch.Title))
}

func (b *Bot) handleRmTarget(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rm_target <channel_id>")
		return
	}

	// Deactivated, not deleted: delivery history must survive.
	if err := b.store.SetTargetChannelActive(ctx, id, false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Target channel %d not found.", id))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Target channel %d deactivated.", id))
}

func (b *Bot) handleFilters(ctx context.Context, chatID int64) {
	filters, err := b.store.ListFilters(ctx, false)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatFilterList(filters))
}

func (b *Bot) handleAddFilter(ctx context.Context, chatID int64, args string, kind string) {
	parsed, err := ParseFilterCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	fk := model.FilterKind(kind)
	if fk == model.FilterPattern {
		if err := filter.ValidatePattern(parsed.Value); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid pattern: %v", err))
			return
		}
	}

	f := &model.FilterRule{
		Kind:          fk,
		Value:         parsed.Value,
		CaseSensitive: parsed.CaseSensitive,
		IsActive:      true,
	}
	if err := b.store.CreateFilter(ctx, f); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.filters.Invalidate()

	flags := ""
	if f.CaseSensitive {
		flags = ", case-sensitive"
	}
	b.reply(chatID, fmt.Sprintf("Filter F%d added: %s %q%s", f.ID, kind, f.Value, flags))
}

func (b *Bot) handleToggleFilter(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /togglefilter <id>")
		return
	}

	f, err := b.store.GetFilter(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Filter F%d not found.", id))
		return
	}

	if err := b.store.SetFilterActive(ctx, id, !f.IsActive); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.filters.Invalidate()

	state := "enabled"
	if f.IsActive {
		state = "disabled"
	}
	b.reply(chatID, fmt.Sprintf("Filter F%d %s.", id, state))
}

func (b *Bot) handleRmFilter(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmfilter <id>")
		return
	}

	if _, err := b.store.GetFilter(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Filter F%d not found.", id))
		return
	}
	if err := b.store.DeleteFilter(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.filters.Invalidate()
	b.reply(chatID, fmt.Sprintf("Filter F%d removed.", id))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	total, err := b.store.CountDeliveries(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	daily, err := b.store.DailyDeliveryCounts(ctx, 7)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	byTarget, err := b.store.DeliveryCountsByTarget(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStats(total, daily, byTarget))
}

func (b *Bot) handleErrors(ctx context.Context, chatID int64) {
	errs, err := b.store.RecentErrors(ctx, recentErrorLimit)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatErrors(errs))
}
