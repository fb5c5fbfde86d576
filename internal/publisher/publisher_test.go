package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"relay_bot/internal/model"
	"relay_bot/internal/render"
	"relay_bot/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// spyTransport records sends and serves errors from a script, one per call.
type spyTransport struct {
	mu     sync.Mutex
	calls  []int64
	script []error
	nextID int64
}

func (s *spyTransport) Send(_ context.Context, channelID int64, _ render.Rendered) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, channelID)
	if len(s.script) > 0 {
		err := s.script[0]
		s.script = s.script[1:]
		if err != nil {
			return 0, err
		}
	}
	s.nextID++
	return s.nextID, nil
}

func (s *spyTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fakeLedger is an in-memory Ledger with the same insert-if-absent
// semantics as the SQLite implementation.
type fakeLedger struct {
	mu        sync.Mutex
	records   map[[3]int64]struct{}
	errors    []model.RelayError
	checkErr  error
	recordErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: map[[3]int64]struct{}{}}
}

func (l *fakeLedger) key(src, msg, tgt int64) [3]int64 { return [3]int64{src, msg, tgt} }

func (l *fakeLedger) HasDelivered(_ context.Context, src, msg, tgt int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.checkErr != nil {
		return false, l.checkErr
	}
	_, ok := l.records[l.key(src, msg, tgt)]
	return ok, nil
}

func (l *fakeLedger) RecordDelivery(_ context.Context, rec *model.DeliveryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	k := l.key(rec.SourceChannelID, rec.MessageID, rec.TargetChannelID)
	if _, ok := l.records[k]; ok {
		return storage.ErrAlreadyDelivered
	}
	l.records[k] = struct{}{}
	return nil
}

func (l *fakeLedger) LogError(_ context.Context, e *model.RelayError) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, *e)
	return nil
}

func (l *fakeLedger) recordCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func testEvent() model.ContentEvent {
	return model.ContentEvent{
		SourceChannelID: -100,
		MessageID:       42,
		Text:            "hello world",
		CreatedAt:       time.Now(),
	}
}

func testSource() *model.SourceChannel {
	return &model.SourceChannel{ChannelID: -100, Username: "src", Title: "Source"}
}

func newTestPublisher(ledger Ledger, transport Transport, attempts int) *Publisher {
	p := New(ledger, transport, render.New(4096), attempts, testLogger())
	p.SetBaseBackoff(time.Millisecond)
	return p
}

func TestDeliverSuccess(t *testing.T) {
	ledger := newFakeLedger()
	transport := &spyTransport{}
	p := newTestPublisher(ledger, transport, 3)

	outcome := p.Deliver(context.Background(), testEvent(), testSource(), model.TargetChannel{ChannelID: -200})

	if outcome.Status != model.StatusSent {
		t.Fatalf("status = %s, want %s", outcome.Status, model.StatusSent)
	}
	if transport.callCount() != 1 {
		t.Errorf("transport calls = %d, want 1", transport.callCount())
	}
	if ledger.recordCount() != 1 {
		t.Errorf("ledger records = %d, want 1", ledger.recordCount())
	}
}

func TestDeliverSkipsDuplicate(t *testing.T) {
	ledger := newFakeLedger()
	transport := &spyTransport{}
	p := newTestPublisher(ledger, transport, 3)

	target := model.TargetChannel{ChannelID: -200}
	first := p.Deliver(context.Background(), testEvent(), testSource(), target)
	if first.Status != model.StatusSent {
		t.Fatalf("first status = %s, want %s", first.Status, model.StatusSent)
	}

	second := p.Deliver(context.Background(), testEvent(), testSource(), target)
	if second.Status != model.StatusSkippedDuplicate {
		t.Errorf("second status = %s, want %s", second.Status, model.StatusSkippedDuplicate)
	}
	if transport.callCount() != 1 {
		t.Errorf("transport calls = %d, want 1 (duplicate must not resend)", transport.callCount())
	}
	if ledger.recordCount() != 1 {
		t.Errorf("ledger records = %d, want 1", ledger.recordCount())
	}
}

func TestDeliverRateLimitedReturnsImmediately(t *testing.T) {
	ledger := newFakeLedger()
	transport := &spyTransport{script: []error{
		&TransportError{Kind: KindRateLimited, RetryAfter: 7 * time.Second, Err: errors.New("429")},
	}}
	p := newTestPublisher(ledger, transport, 3)

	outcome := p.Deliver(context.Background(), testEvent(), testSource(), model.TargetChannel{ChannelID: -200})

	if outcome.Status != model.StatusRateLimited {
		t.Fatalf("status = %s, want %s", outcome.Status, model.StatusRateLimited)
	}
	if outcome.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", outcome.RetryAfter)
	}
	if transport.callCount() != 1 {
		t.Errorf("transport calls = %d, want 1 (no internal rate-limit retry)", transport.callCount())
	}
	if ledger.recordCount() != 0 {
		t.Errorf("ledger records = %d, want 0 (nothing was sent)", ledger.recordCount())
	}
}

func TestDeliverRetriesTransientErrors(t *testing.T) {
	ledger := newFakeLedger()
	transport := &spyTransport{script: []error{
		&TransportError{Kind: KindTransientNetwork, Err: errors.New("connection reset")},
		&TransportError{Kind: KindTransientNetwork, Err: errors.New("connection reset")},
		nil,
	}}
	p := newTestPublisher(ledger, transport, 3)

	outcome := p.Deliver(context.Background(), testEvent(), testSource(), model.TargetChannel{ChannelID: -200})

	if outcome.Status != model.StatusSent {
		t.Fatalf("status = %s, want %s", outcome.Status, model.StatusSent)
	}
	if transport.callCount() != 3 {
		t.Errorf("transport calls = %d, want 3", transport.callCount())
	}
}

func TestDeliverTransientExhaustionFails(t *testing.T) {
	ledger := newFakeLedger()
	transport := &spyTransport{script: []error{
		&TransportError{Kind: KindTransientNetwork, Err: errors.New("timeout")},
		&TransportError{Kind: KindTransientNetwork, Err: errors.New("timeout")},
	}}
	p := newTestPublisher(ledger, transport, 2)

	outcome := p.Deliver(context.Background(), testEvent(), testSource(), model.TargetChannel{ChannelID: -200})

	if outcome.Status != model.StatusFailed {
		t.Fatalf("status = %s, want %s", outcome.Status, model.StatusFailed)
	}
	if transport.callCount() != 2 {
		t.Errorf("transport calls = %d, want 2", transport.callCount())
	}
	if len(ledger.errors) != 1 {
		t.Fatalf("error sink entries = %d, want 1", len(ledger.errors))
	}
	if ledger.errors[0].Kind != "publish_error" {
		t.Errorf("sink kind = %q, want publish_error", ledger.errors[0].Kind)
	}
}

func TestDeliverPermanentRejectionNotRetried(t *testing.T) {
	ledger := newFakeLedger()
	transport := &spyTransport{script: []error{
		&TransportError{Kind: KindPermanentRejection, Err: errors.New("chat not found")},
	}}
	p := newTestPublisher(ledger, transport, 3)

	outcome := p.Deliver(context.Background(), testEvent(), testSource(), model.TargetChannel{ChannelID: -200})

	if outcome.Status != model.StatusFailed {
		t.Fatalf("status = %s, want %s", outcome.Status, model.StatusFailed)
	}
	if transport.callCount() != 1 {
		t.Errorf("transport calls = %d, want 1 (permanent errors are not retried)", transport.callCount())
	}
	if ledger.recordCount() != 0 {
		t.Errorf("ledger records = %d, want 0", ledger.recordCount())
	}
}

func TestDeliverRecordRaceReportsSent(t *testing.T) {
	ledger := newFakeLedger()
	ledger.recordErr = storage.ErrAlreadyDelivered
	transport := &spyTransport{}
	p := newTestPublisher(ledger, transport, 3)

	outcome := p.Deliver(context.Background(), testEvent(), testSource(), model.TargetChannel{ChannelID: -200})

	if outcome.Status != model.StatusSent {
		t.Errorf("status = %s, want %s (losing the record race is still success)", outcome.Status, model.StatusSent)
	}
}

func TestDeliverLedgerCheckFailure(t *testing.T) {
	ledger := newFakeLedger()
	ledger.checkErr = errors.New("db locked")
	transport := &spyTransport{}
	p := newTestPublisher(ledger, transport, 3)

	outcome := p.Deliver(context.Background(), testEvent(), testSource(), model.TargetChannel{ChannelID: -200})

	if outcome.Status != model.StatusFailed {
		t.Fatalf("status = %s, want %s", outcome.Status, model.StatusFailed)
	}
	if transport.callCount() != 0 {
		t.Errorf("transport calls = %d, want 0 (no send on ledger failure)", transport.callCount())
	}
}
