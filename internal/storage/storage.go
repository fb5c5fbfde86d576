// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"relay_bot/internal/model"
)

// ErrAlreadyDelivered is returned by RecordDelivery when the composite
// (source channel, message, target channel) key already has a ledger entry.
// Callers treat it as a benign no-op.
var ErrAlreadyDelivered = errors.New("delivery already recorded")

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateSourceChannel(ctx context.Context, ch *model.SourceChannel) error
	GetSourceChannel(ctx context.Context, channelID int64) (*model.SourceChannel, error)
	ListSourceChannels(ctx context.Context, activeOnly bool) ([]model.SourceChannel, error)
	SetSourceChannelActive(ctx context.Context, channelID int64, active bool) error
	UpdateLastScannedID(ctx context.Context, channelID, messageID int64) error

	CreateTargetChannel(ctx context.Context, ch *model.TargetChannel) error
	ListTargetChannels(ctx context.Context, activeOnly bool) ([]model.TargetChannel, error)
	SetTargetChannelActive(ctx context.Context, channelID int64, active bool) error

	CreateFilter(ctx context.Context, f *model.FilterRule) error
	GetFilter(ctx context.Context, id int64) (*model.FilterRule, error)
	ListFilters(ctx context.Context, activeOnly bool) ([]model.FilterRule, error)
	SetFilterActive(ctx context.Context, id int64, active bool) error
	DeleteFilter(ctx context.Context, id int64) error

	HasDelivered(ctx context.Context, sourceChannelID, messageID, targetChannelID int64) (bool, error)
	RecordDelivery(ctx context.Context, rec *model.DeliveryRecord) error

	LogError(ctx context.Context, e *model.RelayError) error
	RecentErrors(ctx context.Context, limit int) ([]model.RelayError, error)

	CountDeliveries(ctx context.Context) (int, error)
	DailyDeliveryCounts(ctx context.Context, days int) ([]model.DailyCount, error)
	DeliveryCountsByTarget(ctx context.Context) ([]model.TargetCount, error)

	Close() error
}
