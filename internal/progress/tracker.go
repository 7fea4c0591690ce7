package progress

import (
	"context"
	"sync"

	"hardwire/internal/hardwire"
)

// Tracker turns progress events into persisted download sessions. It is the
// only writer of the download table and is meant to run as a single
// goroutine for the life of the process.
type Tracker struct {
	store  hardwire.DownloadStore
	clock  hardwire.Clock
	logger hardwire.Logger

	mu      sync.Mutex
	ongoing map[string]hardwire.ProgressEvent
}

// NewTracker creates a Tracker that persists through store.
func NewTracker(store hardwire.DownloadStore, clock hardwire.Clock, logger hardwire.Logger) *Tracker {
	if logger == nil {
		logger = hardwire.NewNopLogger()
	}
	return &Tracker{
		store:   store,
		clock:   clock,
		logger:  logger,
		ongoing: make(map[string]hardwire.ProgressEvent),
	}
}

// Run consumes sub until ctx is cancelled or the subscription is closed.
// Lost events are logged and otherwise ignored.
func (t *Tracker) Run(ctx context.Context, sub *Subscription) error {
	t.logger.Info("download tracker started")
	defer t.logger.Info("download tracker stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if n := sub.TakeDropped(); n > 0 {
				t.logger.Warn("download tracker lagged behind", "skipped", n)
			}
			t.Handle(ctx, ev)
		}
	}
}

// Handle applies one event: it opens the session on first sight and marks
// it complete once the event reaches the end of the file. Store errors are
// logged and the event is dropped.
func (t *Tracker) Handle(ctx context.Context, ev hardwire.ProgressEvent) {
	now := t.clock.Now()

	t.mu.Lock()
	_, known := t.ongoing[ev.TransactionID]
	t.mu.Unlock()

	if !known {
		err := t.store.InsertDownload(ctx, &hardwire.DownloadSession{
			TransactionID: ev.TransactionID,
			FilePath:      ev.FilePath,
			IPAddress:     ev.IPAddress,
			Status:        hardwire.DownloadInProgress,
			FileSize:      ev.FileSize,
			StartedAt:     now,
		})
		if err != nil {
			t.logger.Error("recording download start", "transaction_id", ev.TransactionID, "error", err)
			return
		}
	}

	if !ev.Completes() {
		t.mu.Lock()
		t.ongoing[ev.TransactionID] = ev
		t.mu.Unlock()
		return
	}

	completed, err := t.store.CompleteDownload(ctx, ev.TransactionID, now)
	if err != nil {
		t.logger.Error("recording download completion", "transaction_id", ev.TransactionID, "error", err)
		return
	}
	t.mu.Lock()
	delete(t.ongoing, ev.TransactionID)
	t.mu.Unlock()

	if completed {
		t.logger.Info("download complete", "file", ev.FilePath, "ip", ev.IPAddress, "size", ev.FileSize)
	}
}

// Ongoing returns the last event of every session that has not completed yet.
func (t *Tracker) Ongoing() []hardwire.ProgressEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]hardwire.ProgressEvent, 0, len(t.ongoing))
	for _, ev := range t.ongoing {
		out = append(out, ev)
	}
	return out
}
