// Package provider adapts external content sources to the relay's event model.
package provider

import (
	"context"
	"errors"

	"relay_bot/internal/model"
)

// ErrHistoryUnavailable is returned by ListSince when the underlying source
// cannot serve historical items (the Bot API has no channel history access).
// The backlog scanner treats such feeds as push-only.
var ErrHistoryUnavailable = errors.New("history unavailable for this source")

// ErrUnknownChannel is returned when a channel has not been registered with
// the provider.
var ErrUnknownChannel = errors.New("unknown channel")

// Provider delivers content events for monitored source channels.
//
// Subscribe registers interest in a single channel and returns a channel of
// its future events; subscriptions are incremental, so adding or removing
// one feed never disturbs the others. The returned channel is closed when
// ctx is cancelled or Unsubscribe is called.
//
// ListSince returns up to limit events with message IDs greater than
// afterMessageID, ordered by ascending message ID.
type Provider interface {
	Subscribe(ctx context.Context, channelID int64) (<-chan model.ContentEvent, error)
	Unsubscribe(channelID int64)
	ListSince(ctx context.Context, channelID, afterMessageID int64, limit int) ([]model.ContentEvent, error)
}
