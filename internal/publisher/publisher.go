// Package publisher delivers content events to target channels with
// deduplication and bounded retry.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"relay_bot/internal/model"
	"relay_bot/internal/render"
	"relay_bot/internal/storage"
)

// TransportErrorKind classifies a transport failure.
type TransportErrorKind string

// Transport failure kinds.
const (
	KindRateLimited        TransportErrorKind = "rate_limited"
	KindPermanentRejection TransportErrorKind = "permanent_rejection"
	KindTransientNetwork   TransportErrorKind = "transient_network"
)

// TransportError is a classified failure from the target transport.
// RetryAfter is set only for rate limits.
type TransportError struct {
	Kind       TransportErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport sends a rendered payload to a channel and returns the message
// ID assigned by the target.
type Transport interface {
	Send(ctx context.Context, channelID int64, content render.Rendered) (int64, error)
}

// Ledger is the subset of storage the publisher needs: the dedup ledger
// and the error sink.
type Ledger interface {
	HasDelivered(ctx context.Context, sourceChannelID, messageID, targetChannelID int64) (bool, error)
	RecordDelivery(ctx context.Context, rec *model.DeliveryRecord) error
	LogError(ctx context.Context, e *model.RelayError) error
}

// Publisher performs one delivery attempt per target: dedup check, render,
// send, ledger record.
type Publisher struct {
	ledger      Ledger
	transport   Transport
	renderer    *render.Renderer
	log         *slog.Logger
	maxAttempts uint64
	baseBackoff time.Duration
}

// New creates a Publisher. maxAttempts bounds the internal retries of
// transient network errors on a single Deliver call.
func New(ledger Ledger, transport Transport, renderer *render.Renderer, maxAttempts int, log *slog.Logger) *Publisher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Publisher{
		ledger:      ledger,
		transport:   transport,
		renderer:    renderer,
		log:         log,
		maxAttempts: uint64(maxAttempts),
		baseBackoff: time.Second,
	}
}

// SetBaseBackoff overrides the initial backoff delay (useful for testing).
func (p *Publisher) SetBaseBackoff(d time.Duration) {
	p.baseBackoff = d
}

// Deliver attempts to deliver one event to one target.
//
// The ledger is consulted before rendering so duplicates cost no work and
// no network traffic. The record is written only after the send succeeds;
// a crash between send and record is the accepted at-least-once boundary.
// Rate limits are returned to the caller with their wait duration rather
// than slept on here, so a throttled target cannot stall its siblings.
func (p *Publisher) Deliver(ctx context.Context, event model.ContentEvent, source *model.SourceChannel, target model.TargetChannel) model.DeliveryOutcome {
	delivered, err := p.ledger.HasDelivered(ctx, event.SourceChannelID, event.MessageID, target.ChannelID)
	if err != nil {
		return p.fail(ctx, event, target, fmt.Errorf("ledger check: %w", err))
	}
	if delivered {
		return model.DeliveryOutcome{Status: model.StatusSkippedDuplicate}
	}

	content := p.renderer.Render(event, source)

	publishedID, err := p.send(ctx, target.ChannelID, content)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.Kind == KindRateLimited {
			return model.DeliveryOutcome{
				Status:     model.StatusRateLimited,
				RetryAfter: te.RetryAfter,
				Err:        err,
			}
		}
		return p.fail(ctx, event, target, err)
	}

	rec := &model.DeliveryRecord{
		SourceChannelID:    event.SourceChannelID,
		MessageID:          event.MessageID,
		TargetChannelID:    target.ChannelID,
		PublishedMessageID: publishedID,
	}
	if err := p.ledger.RecordDelivery(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrAlreadyDelivered) {
			// A concurrent attempt won the race; the send still happened,
			// so report success.
			p.log.Debug("delivery already recorded",
				"source_channel_id", event.SourceChannelID,
				"message_id", event.MessageID,
				"target_channel_id", target.ChannelID,
			)
			return model.DeliveryOutcome{Status: model.StatusSent}
		}
		return p.fail(ctx, event, target, fmt.Errorf("record delivery: %w", err))
	}

	return model.DeliveryOutcome{Status: model.StatusSent}
}

// send invokes the transport, retrying transient network errors with
// exponential backoff up to the attempt bound. Rate limits and permanent
// rejections are returned immediately.
func (p *Publisher) send(ctx context.Context, channelID int64, content render.Rendered) (int64, error) {
	var publishedID int64

	backoff := retry.WithMaxRetries(p.maxAttempts-1, retry.NewExponential(p.baseBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := p.transport.Send(ctx, channelID, content)
		if err != nil {
			var te *TransportError
			if errors.As(err, &te) && te.Kind == KindTransientNetwork {
				return retry.RetryableError(err)
			}
			return err
		}
		publishedID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return publishedID, nil
}

func (p *Publisher) fail(ctx context.Context, event model.ContentEvent, target model.TargetChannel, err error) model.DeliveryOutcome {
	p.log.Error("delivery failed",
		"source_channel_id", event.SourceChannelID,
		"message_id", event.MessageID,
		"target_channel_id", target.ChannelID,
		"error", err,
	)
	sinkErr := p.ledger.LogError(ctx, &model.RelayError{
		Kind:      "publish_error",
		Message:   err.Error(),
		ChannelID: target.ChannelID,
		MessageID: event.MessageID,
	})
	if sinkErr != nil {
		p.log.Error("write error sink", "error", sinkErr)
	}
	return model.DeliveryOutcome{Status: model.StatusFailed, Err: err}
}
