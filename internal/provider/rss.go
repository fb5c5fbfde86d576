package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"relay_bot/internal/model"
)

const maxFeedBody = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RSS is a poll-based Provider over RSS/Atom feeds. Item IDs are the items'
// publication Unix timestamps, which are monotonic per feed and stable
// across fetches, so they serve as the per-feed sequence number.
type RSS struct {
	client       HTTPClient
	log          *slog.Logger
	pollInterval time.Duration

	mu    sync.Mutex
	urls  map[int64]string
	stops map[int64]context.CancelFunc
}

// NewRSS creates an RSS provider polling with the given interval.
func NewRSS(client HTTPClient, pollInterval time.Duration, log *slog.Logger) *RSS {
	return &RSS{
		client:       client,
		log:          log,
		pollInterval: pollInterval,
		urls:         make(map[int64]string),
		stops:        make(map[int64]context.CancelFunc),
	}
}

// Register maps a synthetic channel ID to a feed URL. Must be called before
// Subscribe or ListSince for that channel.
func (r *RSS) Register(channelID int64, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls[channelID] = url
}

// Subscribe starts a poll loop for one feed and returns its event stream.
// Each feed polls independently; cancelling one does not affect the others.
func (r *RSS) Subscribe(ctx context.Context, channelID int64) (<-chan model.ContentEvent, error) {
	r.mu.Lock()
	url, ok := r.urls[channelID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownChannel
	}
	if stop, ok := r.stops[channelID]; ok {
		stop()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	r.stops[channelID] = cancel
	r.mu.Unlock()

	out := make(chan model.ContentEvent, subscriberBuffer)
	go r.poll(pollCtx, channelID, url, out)
	return out, nil
}

// Unsubscribe stops a single feed's poll loop.
func (r *RSS) Unsubscribe(channelID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stop, ok := r.stops[channelID]; ok {
		stop()
		delete(r.stops, channelID)
	}
}

// ListSince fetches the feed and returns events newer than afterMessageID,
// ascending, at most limit of them.
func (r *RSS) ListSince(ctx context.Context, channelID, afterMessageID int64, limit int) ([]model.ContentEvent, error) {
	r.mu.Lock()
	url, ok := r.urls[channelID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUnknownChannel
	}

	feed, err := r.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var events []model.ContentEvent
	for _, item := range feed.Items {
		ev, ok := eventFromItem(channelID, item)
		if !ok || ev.MessageID <= afterMessageID {
			continue
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].MessageID < events[j].MessageID })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *RSS) poll(ctx context.Context, channelID int64, url string, out chan<- model.ContentEvent) {
	defer close(out)

	var lastSeen int64
	primed := false

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		events, err := r.ListSince(ctx, channelID, lastSeen, 0)
		if err != nil {
			// Stay unprimed until one fetch succeeds, or a recovering feed
			// would replay its whole history as live events.
			r.log.Error("poll feed", "channel_id", channelID, "url", url, "error", err)
		} else {
			// The first successful poll only establishes the resume point.
			for _, ev := range events {
				if primed {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
				if ev.MessageID > lastSeen {
					lastSeen = ev.MessageID
				}
			}
			primed = true
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *RSS) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ChannelRelayBot/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func eventFromItem(channelID int64, item *gofeed.Item) (model.ContentEvent, bool) {
	// Items without a publication date have no usable sequence position.
	if item.PublishedParsed == nil {
		return model.ContentEvent{}, false
	}
	published := item.PublishedParsed.UTC()

	text := item.Title
	if item.Description != "" {
		text += "\n\n" + item.Description
	}
	if item.Link != "" {
		text += "\n\n" + item.Link
	}

	return model.ContentEvent{
		SourceChannelID: channelID,
		MessageID:       published.Unix(),
		Text:            text,
		CreatedAt:       published,
	}, true
}
