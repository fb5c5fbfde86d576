// Package relay wires the filter chain, dedup ledger, and fan-out publisher
// into the per-event pipeline and owns feed ingestion.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"relay_bot/internal/filter"
	"relay_bot/internal/model"
	"relay_bot/internal/provider"
	"relay_bot/internal/publisher"
	"relay_bot/internal/storage"
)

// Report summarizes how one event moved through the pipeline.
type Report struct {
	Dropped  bool // stale, never filtered
	Filtered bool // rejected by the filter chain
	Outcomes map[int64]model.DeliveryOutcome
}

// Options configures a Relay.
type Options struct {
	MaxEventAge     time.Duration // staleness threshold, default 24h
	RetryLimit      int           // per-target rate-limit retries, default 3
	BacklogInterval time.Duration // backlog scan period, default 10m
	BacklogLimit    int           // items per backlog scan, default 50
	ShutdownGrace   time.Duration // wait for in-flight fan-outs, default 10s
}

func (o *Options) defaults() {
	if o.MaxEventAge <= 0 {
		o.MaxEventAge = 24 * time.Hour
	}
	if o.RetryLimit <= 0 {
		o.RetryLimit = 3
	}
	if o.BacklogInterval <= 0 {
		o.BacklogInterval = 10 * time.Minute
	}
	if o.BacklogLimit <= 0 {
		o.BacklogLimit = 50
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 10 * time.Second
	}
}

// Relay is the per-event orchestrator. One worker runs per source feed;
// fan-out to targets runs concurrently within an event.
type Relay struct {
	store    storage.Storage
	pub      *publisher.Publisher
	filters  *filter.Cache
	provider provider.Provider
	log      *slog.Logger
	opts     Options

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Relay.
func New(store storage.Storage, pub *publisher.Publisher, filters *filter.Cache, prov provider.Provider, opts Options, log *slog.Logger) *Relay {
	opts.defaults()
	return &Relay{
		store:    store,
		pub:      pub,
		filters:  filters,
		provider: prov,
		log:      log,
		opts:     opts,
		cancels:  make(map[int64]context.CancelFunc),
	}
}

// Run subscribes every active source channel, starts the periodic backlog
// scanner, and blocks until ctx is cancelled. In-flight fan-outs get a
// bounded grace period on shutdown.
func (r *Relay) Run(ctx context.Context) error {
	sources, err := r.store.ListSourceChannels(ctx, true)
	if err != nil {
		return fmt.Errorf("list source channels: %w", err)
	}
	for _, src := range sources {
		if err := r.AddSource(ctx, src.ChannelID); err != nil {
			r.log.Error("subscribe source", "channel_id", src.ChannelID, "error", err)
		}
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.backlogLoop(ctx)
	}()

	<-ctx.Done()
	return r.drain()
}

// AddSource subscribes a single source channel without disturbing existing
// subscriptions. Safe to call while Run is active.
func (r *Relay) AddSource(ctx context.Context, channelID int64) error {
	feedCtx, cancel := context.WithCancel(ctx)

	events, err := r.provider.Subscribe(feedCtx, channelID)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe channel %d: %w", channelID, err)
	}

	r.mu.Lock()
	if old, ok := r.cancels[channelID]; ok {
		old()
	}
	r.cancels[channelID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.consume(feedCtx, channelID, events)
	}()

	r.log.Info("source subscribed", "channel_id", channelID)
	return nil
}

// RemoveSource tears down one source channel's subscription.
func (r *Relay) RemoveSource(channelID int64) {
	r.mu.Lock()
	cancel, ok := r.cancels[channelID]
	if ok {
		delete(r.cancels, channelID)
	}
	r.mu.Unlock()

	if ok {
		cancel()
		r.provider.Unsubscribe(channelID)
		r.log.Info("source unsubscribed", "channel_id", channelID)
	}
}

func (r *Relay) consume(ctx context.Context, channelID int64, events <-chan model.ContentEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := r.Process(ctx, ev); err != nil {
				r.log.Error("process event", "channel_id", channelID, "message_id", ev.MessageID, "error", err)
			}
		}
	}
}

// Process runs one event through the pipeline: staleness check, filter
// chain, then concurrent fan-out to every active target. The high-water
// mark advances once all targets have been attempted — also for stale and
// filtered events, which are terminal states of a fully processed item.
func (r *Relay) Process(ctx context.Context, event model.ContentEvent) (Report, error) {
	if !event.CreatedAt.IsZero() && time.Since(event.CreatedAt) > r.opts.MaxEventAge {
		r.log.Debug("dropping stale event",
			"channel_id", event.SourceChannelID, "message_id", event.MessageID, "age", time.Since(event.CreatedAt))
		return Report{Dropped: true}, r.advanceMark(ctx, event)
	}

	chain, err := r.filters.Chain(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load filter chain: %w", err)
	}
	if !chain.Evaluate(event.Text) {
		r.log.Debug("event filtered out",
			"channel_id", event.SourceChannelID, "message_id", event.MessageID)
		return Report{Filtered: true}, r.advanceMark(ctx, event)
	}

	source, err := r.store.GetSourceChannel(ctx, event.SourceChannelID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Report{}, fmt.Errorf("load source channel: %w", err)
	}

	targets, err := r.store.ListTargetChannels(ctx, true)
	if err != nil {
		return Report{}, fmt.Errorf("list target channels: %w", err)
	}

	report := Report{Outcomes: make(map[int64]model.DeliveryOutcome, len(targets))}
	if len(targets) == 0 {
		r.log.Warn("no active target channels")
		return report, r.advanceMark(ctx, event)
	}

	var outMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			outcome := r.deliverWithRetry(gctx, event, source, target)
			outMu.Lock()
			report.Outcomes[target.ChannelID] = outcome
			outMu.Unlock()
			// Failures are isolated per target; never propagate them into
			// the group, or one bad target would cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	var failures error
	for targetID, outcome := range report.Outcomes {
		if outcome.Status == model.StatusFailed {
			failures = multierr.Append(failures, fmt.Errorf("target %d: %w", targetID, outcome.Err))
		}
	}
	if failures != nil {
		r.log.Error("fan-out completed with failures",
			"channel_id", event.SourceChannelID, "message_id", event.MessageID, "error", failures)
	}

	return report, r.advanceMark(ctx, event)
}

// deliverWithRetry attempts delivery to a single target, rescheduling after
// the indicated wait when the transport reports a rate limit. Retries are
// bounded; a target still throttled after the last attempt is demoted to a
// terminal per-target failure and written to the error sink.
func (r *Relay) deliverWithRetry(ctx context.Context, event model.ContentEvent, source *model.SourceChannel, target model.TargetChannel) model.DeliveryOutcome {
	outcome := r.pub.Deliver(ctx, event, source, target)

	for attempt := 0; outcome.Status == model.StatusRateLimited && attempt < r.opts.RetryLimit; attempt++ {
		wait := outcome.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		r.log.Warn("rate limited, retrying",
			"target_channel_id", target.ChannelID, "message_id", event.MessageID, "wait", wait, "attempt", attempt+1)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return outcome
		case <-timer.C:
		}
		outcome = r.pub.Deliver(ctx, event, source, target)
	}

	if outcome.Status == model.StatusRateLimited {
		err := fmt.Errorf("rate limit retries exhausted: %w", outcome.Err)
		if sinkErr := r.store.LogError(ctx, &model.RelayError{
			Kind:      "rate_limit_exhausted",
			Message:   err.Error(),
			ChannelID: target.ChannelID,
			MessageID: event.MessageID,
		}); sinkErr != nil {
			r.log.Error("write error sink", "error", sinkErr)
		}
		return model.DeliveryOutcome{Status: model.StatusFailed, Err: err}
	}
	return outcome
}

func (r *Relay) advanceMark(ctx context.Context, event model.ContentEvent) error {
	if err := r.store.UpdateLastScannedID(ctx, event.SourceChannelID, event.MessageID); err != nil {
		return fmt.Errorf("advance high-water mark: %w", err)
	}
	return nil
}

// backlogLoop periodically pulls missed items for every active source,
// resuming from each channel's high-water mark. Push and pull converge on
// the same Process path.
func (r *Relay) backlogLoop(ctx context.Context) {
	ticker := time.NewTicker(r.opts.BacklogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanBacklog(ctx)
		}
	}
}

func (r *Relay) scanBacklog(ctx context.Context) {
	sources, err := r.store.ListSourceChannels(ctx, true)
	if err != nil {
		r.log.Error("list source channels", "error", err)
		return
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		events, err := r.provider.ListSince(ctx, src.ChannelID, src.LastScannedID, r.opts.BacklogLimit)
		if err != nil {
			if errors.Is(err, provider.ErrHistoryUnavailable) {
				continue // push-only feed
			}
			r.log.Error("backlog scan", "channel_id", src.ChannelID, "error", err)
			continue
		}
		for _, ev := range events {
			if _, err := r.Process(ctx, ev); err != nil {
				r.log.Error("process backlog event",
					"channel_id", src.ChannelID, "message_id", ev.MessageID, "error", err)
			}
		}
		if len(events) > 0 {
			r.log.Info("backlog scanned", "channel_id", src.ChannelID, "count", len(events))
		}
	}
}

// drain waits for in-flight workers up to the shutdown grace period.
func (r *Relay) drain() error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(r.opts.ShutdownGrace):
		return fmt.Errorf("shutdown grace period %s elapsed with work in flight", r.opts.ShutdownGrace)
	}
}
