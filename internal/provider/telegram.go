package provider

import (
	"context"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relay_bot/internal/model"
)

// subscriberBuffer bounds how many undelivered events a slow consumer may
// accumulate before new posts are dropped for that subscriber.
const subscriberBuffer = 64

// Telegram is a push-only Provider fed by the bot's long-poll loop. The
// command surface hands every incoming channel post to HandleChannelPost,
// which demultiplexes it to the per-channel subscriber, if any.
type Telegram struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[int64]chan model.ContentEvent
}

// NewTelegram creates an empty Telegram provider.
func NewTelegram(log *slog.Logger) *Telegram {
	return &Telegram{
		log:  log,
		subs: make(map[int64]chan model.ContentEvent),
	}
}

// Subscribe registers a per-channel event stream. Only one subscriber per
// channel is supported; a second Subscribe replaces the first.
func (t *Telegram) Subscribe(ctx context.Context, channelID int64) (<-chan model.ContentEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.subs[channelID]; ok {
		close(old)
	}
	ch := make(chan model.ContentEvent, subscriberBuffer)
	t.subs[channelID] = ch

	context.AfterFunc(ctx, func() { t.Unsubscribe(channelID) })
	return ch, nil
}

// Unsubscribe removes a single channel's subscription without disturbing
// the others.
func (t *Telegram) Unsubscribe(channelID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ch, ok := t.subs[channelID]; ok {
		close(ch)
		delete(t.subs, channelID)
	}
}

// ListSince is not supported: the Bot API exposes no channel history.
func (t *Telegram) ListSince(_ context.Context, _, _ int64, _ int) ([]model.ContentEvent, error) {
	return nil, ErrHistoryUnavailable
}

// HandleChannelPost converts an incoming channel post to a ContentEvent and
// routes it to the channel's subscriber. Posts for unsubscribed channels
// are ignored; posts for a full subscriber buffer are dropped with a log
// entry rather than blocking the update loop.
func (t *Telegram) HandleChannelPost(post *tgbotapi.Message) {
	if post == nil || post.Chat == nil {
		return
	}

	event := EventFromMessage(post)

	// The send stays under the lock: Unsubscribe closes the channel under
	// the same lock, so it can never close between lookup and send.
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.subs[post.Chat.ID]
	if !ok {
		return
	}
	select {
	case sub <- event:
	default:
		t.log.Warn("subscriber buffer full, dropping post",
			"channel_id", post.Chat.ID, "message_id", post.MessageID)
	}
}

// EventFromMessage maps a Telegram message to a ContentEvent, producing the
// tagged media variant exactly once at the adapter boundary.
func EventFromMessage(msg *tgbotapi.Message) model.ContentEvent {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	return model.ContentEvent{
		SourceChannelID: msg.Chat.ID,
		MessageID:       int64(msg.MessageID),
		Text:            text,
		Media:           mediaRefs(msg),
		CreatedAt:       msg.Time(),
	}
}

func mediaRefs(msg *tgbotapi.Message) []model.MediaRef {
	var refs []model.MediaRef
	switch {
	case len(msg.Photo) > 0:
		// The last photo size is the highest resolution.
		refs = append(refs, model.MediaRef{Kind: model.MediaPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID})
	case msg.Video != nil:
		refs = append(refs, model.MediaRef{Kind: model.MediaVideo, FileID: msg.Video.FileID})
	case msg.Document != nil:
		refs = append(refs, model.MediaRef{Kind: model.MediaDocument, FileID: msg.Document.FileID})
	case msg.Audio != nil:
		refs = append(refs, model.MediaRef{Kind: model.MediaAudio, FileID: msg.Audio.FileID})
	case msg.Voice != nil:
		refs = append(refs, model.MediaRef{Kind: model.MediaOther, FileID: msg.Voice.FileID})
	}
	return refs
}
