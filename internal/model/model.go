// Package model defines the domain types used across the application.
package model

import "time"

// SourceChannel is a monitored channel whose posts are relayed.
// LastScannedID is the high-water mark: the largest message ID for which
// fan-out to all active targets has completed.
type SourceChannel struct {
	ID            int64
	ChannelID     int64
	Username      string
	Title         string
	FeedURL       string
	IsActive      bool
	LastScannedID int64
	CreatedAt     time.Time
}

// TargetChannel is a delivery destination. Targets are deactivated, never
// deleted, so delivery history keeps its referential integrity.
type TargetChannel struct {
	ID        int64
	ChannelID int64
	Title     string
	IsActive  bool
	CreatedAt time.Time
}

// FilterKind defines the type of filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude FilterKind = "include"
	FilterExclude FilterKind = "exclude"
	FilterPattern FilterKind = "pattern"
)

// FilterRule is a single rule of the relay filter chain. An event passes
// the chain iff it satisfies every active rule.
type FilterRule struct {
	ID            int64
	Kind          FilterKind
	Value         string
	CaseSensitive bool
	IsActive      bool
	CreatedAt     time.Time
}

// MediaKind tags the variant of a media attachment.
type MediaKind string

// Supported media kinds.
const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaOther    MediaKind = "other"
)

// MediaRef is an opaque handle to a media attachment on the transport side.
type MediaRef struct {
	Kind   MediaKind
	FileID string
}

// ContentEvent is one inbound post from a source channel. Immutable once
// constructed; MessageID is the provider-assigned, per-channel monotonic
// sequence number.
type ContentEvent struct {
	SourceChannelID int64
	MessageID       int64
	Text            string
	Media           []MediaRef
	CreatedAt       time.Time
}

// DeliveryRecord is the dedup ledger entry for one successful delivery.
// The (SourceChannelID, MessageID, TargetChannelID) key is unique and
// append-only.
type DeliveryRecord struct {
	SourceChannelID    int64
	MessageID          int64
	TargetChannelID    int64
	PublishedMessageID int64
	PublishedAt        time.Time
}

// DeliveryStatus classifies the result of one fan-out attempt.
type DeliveryStatus string

// Possible delivery statuses.
const (
	StatusSent             DeliveryStatus = "sent"
	StatusSkippedDuplicate DeliveryStatus = "skipped_duplicate"
	StatusSkippedFiltered  DeliveryStatus = "skipped_filtered"
	StatusRateLimited      DeliveryStatus = "rate_limited"
	StatusFailed           DeliveryStatus = "failed"
)

// DeliveryOutcome is the ephemeral result of attempting delivery to one
// target. It is logged and aggregated but never persisted.
type DeliveryOutcome struct {
	Status     DeliveryStatus
	RetryAfter time.Duration
	Err        error
}

// RelayError is one error-sink entry, kept for operator diagnostics.
type RelayError struct {
	ID        int64
	Kind      string
	Message   string
	ChannelID int64
	MessageID int64
	CreatedAt time.Time
}

// DailyCount is the number of deliveries made on a given day.
type DailyCount struct {
	Day   string
	Count int
}

// TargetCount is the number of deliveries made to a given target.
type TargetCount struct {
	TargetChannelID int64
	Count           int
}
