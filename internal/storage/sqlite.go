package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"relay_bot/internal/model"
	"relay_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps the PRAGMAs in effect and makes the
	// in-memory DSN usable across goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSourceChannel inserts a new source channel and populates its ID and CreatedAt.
func (s *SQLite) CreateSourceChannel(ctx context.Context, ch *model.SourceChannel) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO source_channels (channel_id, username, title, feed_url, is_active, last_scanned_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ch.ChannelID, ch.Username, ch.Title, ch.FeedURL, boolToInt(ch.IsActive), ch.LastScannedID, now,
	)
	if err != nil {
		return fmt.Errorf("insert source channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	ch.ID = id
	ch.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSourceChannel returns a source channel by its Telegram channel ID.
func (s *SQLite) GetSourceChannel(ctx context.Context, channelID int64) (*model.SourceChannel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, username, title, feed_url, is_active, last_scanned_id, created_at
		 FROM source_channels WHERE channel_id = ?`, channelID,
	)
	ch, err := scanSourceChannel(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return ch, err
}

// ListSourceChannels returns all source channels, optionally only active ones.
func (s *SQLite) ListSourceChannels(ctx context.Context, activeOnly bool) ([]model.SourceChannel, error) {
	q := `SELECT id, channel_id, username, title, feed_url, is_active, last_scanned_id, created_at
	      FROM source_channels`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query source channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.SourceChannel
	for rows.Next() {
		ch, err := scanSourceChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// SetSourceChannelActive activates or deactivates a source channel.
func (s *SQLite) SetSourceChannelActive(ctx context.Context, channelID int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE source_channels SET is_active = ? WHERE channel_id = ?`,
		boolToInt(active), channelID,
	)
	if err != nil {
		return fmt.Errorf("update source channel: %w", err)
	}
	return affectedOrNotFound(res)
}

// UpdateLastScannedID advances the high-water mark of a source channel.
// The mark never moves backwards.
func (s *SQLite) UpdateLastScannedID(ctx context.Context, channelID, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE source_channels SET last_scanned_id = ? WHERE channel_id = ? AND last_scanned_id < ?`,
		messageID, channelID, messageID,
	)
	if err != nil {
		return fmt.Errorf("update last scanned id: %w", err)
	}
	return nil
}

// CreateTargetChannel inserts a new target channel and populates its ID and CreatedAt.
func (s *SQLite) CreateTargetChannel(ctx context.Context, ch *model.TargetChannel) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO target_channels (channel_id, title, is_active, created_at) VALUES (?, ?, ?, ?)`,
		ch.ChannelID, ch.Title, boolToInt(ch.IsActive), now,
	)
	if err != nil {
		return fmt.Errorf("insert target channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	ch.ID = id
	ch.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListTargetChannels returns all target channels, optionally only active ones.
func (s *SQLite) ListTargetChannels(ctx context.Context, activeOnly bool) ([]model.TargetChannel, error) {
	q := `SELECT id, channel_id, title, is_active, created_at FROM target_channels`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query target channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.TargetChannel
	for rows.Next() {
		var ch model.TargetChannel
		var isActive int
		var created string
		if err := rows.Scan(&ch.ID, &ch.ChannelID, &ch.Title, &isActive, &created); err != nil {
			return nil, fmt.Errorf("scan target channel: %w", err)
		}
		ch.IsActive = isActive == 1
		ch.CreatedAt, _ = time.Parse(timeLayout, created)
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// SetTargetChannelActive activates or deactivates a target channel.
// Targets are never hard-deleted so the delivery ledger stays consistent.
func (s *SQLite) SetTargetChannelActive(ctx context.Context, channelID int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE target_channels SET is_active = ? WHERE channel_id = ?`,
		boolToInt(active), channelID,
	)
	if err != nil {
		return fmt.Errorf("update target channel: %w", err)
	}
	return affectedOrNotFound(res)
}

// CreateFilter inserts a new filter rule and populates its ID and CreatedAt.
func (s *SQLite) CreateFilter(ctx context.Context, f *model.FilterRule) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO filters (kind, value, case_sensitive, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(f.Kind), f.Value, boolToInt(f.CaseSensitive), boolToInt(f.IsActive), now,
	)
	if err != nil {
		return fmt.Errorf("insert filter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	f.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetFilter returns a single filter rule by its ID.
func (s *SQLite) GetFilter(ctx context.Context, id int64) (*model.FilterRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, value, case_sensitive, is_active, created_at FROM filters WHERE id = ?`, id,
	)
	f, err := scanFilter(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// ListFilters returns all filter rules, optionally only active ones.
func (s *SQLite) ListFilters(ctx context.Context, activeOnly bool) ([]model.FilterRule, error) {
	q := `SELECT id, kind, value, case_sensitive, is_active, created_at FROM filters`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var filters []model.FilterRule
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		filters = append(filters, *f)
	}
	return filters, rows.Err()
}

// SetFilterActive toggles a filter rule on or off.
func (s *SQLite) SetFilterActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE filters SET is_active = ? WHERE id = ?`, boolToInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("update filter: %w", err)
	}
	return affectedOrNotFound(res)
}

// DeleteFilter removes a filter rule by its ID.
func (s *SQLite) DeleteFilter(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM filters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	return nil
}

// HasDelivered reports whether a delivery record exists for the given
// (source channel, message, target channel) triple.
func (s *SQLite) HasDelivered(ctx context.Context, sourceChannelID, messageID, targetChannelID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries
		 WHERE source_channel_id = ? AND message_id = ? AND target_channel_id = ?`,
		sourceChannelID, messageID, targetChannelID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check delivered: %w", err)
	}
	return count > 0, nil
}

// RecordDelivery inserts a delivery record. The insert-if-absent is a single
// statement, so two concurrent attempts for the same triple result in
// exactly one row; the loser gets ErrAlreadyDelivered.
func (s *SQLite) RecordDelivery(ctx context.Context, rec *model.DeliveryRecord) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (source_channel_id, message_id, target_channel_id, published_message_id, published_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (source_channel_id, message_id, target_channel_id) DO NOTHING`,
		rec.SourceChannelID, rec.MessageID, rec.TargetChannelID, rec.PublishedMessageID, now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyDelivered
	}
	rec.PublishedAt = now.Truncate(time.Second)
	return nil
}

// LogError writes an entry to the error sink.
func (s *SQLite) LogError(ctx context.Context, e *model.RelayError) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO relay_errors (kind, message, channel_id, message_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Kind, e.Message, e.ChannelID, e.MessageID, now,
	)
	if err != nil {
		return fmt.Errorf("insert relay error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	e.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// RecentErrors returns the most recent error-sink entries, newest first.
func (s *SQLite) RecentErrors(ctx context.Context, limit int) ([]model.RelayError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, message, channel_id, message_id, created_at
		 FROM relay_errors ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query relay errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var errs []model.RelayError
	for rows.Next() {
		var e model.RelayError
		var created string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Message, &e.ChannelID, &e.MessageID, &created); err != nil {
			return nil, fmt.Errorf("scan relay error: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// CountDeliveries returns the total number of ledger records.
func (s *SQLite) CountDeliveries(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return count, nil
}

// DailyDeliveryCounts returns per-day delivery counts for the last N days.
func (s *SQLite) DailyDeliveryCounts(ctx context.Context, days int) ([]model.DailyCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date(published_at), COUNT(*) FROM deliveries
		 WHERE date(published_at) >= date('now', ?)
		 GROUP BY date(published_at) ORDER BY date(published_at) DESC`,
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []model.DailyCount
	for rows.Next() {
		var c model.DailyCount
		if err := rows.Scan(&c.Day, &c.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// DeliveryCountsByTarget returns per-target delivery totals.
func (s *SQLite) DeliveryCountsByTarget(ctx context.Context) ([]model.TargetCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_channel_id, COUNT(*) FROM deliveries
		 GROUP BY target_channel_id ORDER BY COUNT(*) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query target counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []model.TargetCount
	for rows.Next() {
		var c model.TargetCount
		if err := rows.Scan(&c.TargetChannelID, &c.Count); err != nil {
			return nil, fmt.Errorf("scan target count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSourceChannel(row scannable) (*model.SourceChannel, error) {
	var ch model.SourceChannel
	var isActive int
	var created string
	err := row.Scan(&ch.ID, &ch.ChannelID, &ch.Username, &ch.Title, &ch.FeedURL, &isActive, &ch.LastScannedID, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan source channel: %w", err)
	}
	ch.IsActive = isActive == 1
	ch.CreatedAt, _ = time.Parse(timeLayout, created)
	return &ch, nil
}

func scanFilter(row scannable) (*model.FilterRule, error) {
	var f model.FilterRule
	var kind string
	var caseSensitive, isActive int
	var created string
	err := row.Scan(&f.ID, &kind, &f.Value, &caseSensitive, &isActive, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan filter: %w", err)
	}
	f.Kind = model.FilterKind(kind)
	f.CaseSensitive = caseSensitive == 1
	f.IsActive = isActive == 1
	f.CreatedAt, _ = time.Parse(timeLayout, created)
	return &f, nil
}
