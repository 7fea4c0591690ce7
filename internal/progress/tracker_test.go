package progress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"hardwire/internal/hardwire"
	"hardwire/internal/testutil"
)

func newTracker(t *testing.T) (*Tracker, hardwire.Database, *testutil.StubClock) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()
	return NewTracker(db, clock, hardwire.NewNopLogger()), db, clock
}

// drain reads size bytes from offset through a Stream and feeds every event to tr.
func drain(t *testing.T, tr *Tracker, data []byte, offset int64, n int, txID string) {
	t.Helper()

	pub := &recordingPublisher{}
	s := NewStream(bytes.NewReader(data[offset:offset+int64(n)]), pub, StreamInfo{
		FilePath:      "/srv/share/file.bin",
		TransactionID: txID,
		IPAddress:     "10.0.0.1",
		FileSize:      int64(len(data)),
		RangeStart:    offset,
	})
	if _, err := io.Copy(io.Discard, s); err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	for _, ev := range pub.events {
		tr.Handle(context.Background(), ev)
	}
}

func TestTracker_FullDownloadCompletes(t *testing.T) {
	ctx := context.Background()
	tr, db, clock := newTracker(t)
	data := bytes.Repeat([]byte("x"), 1000)

	drain(t, tr, data, 0, 600, "tx")
	got, err := db.FindDownload(ctx, "tx")
	if err != nil {
		t.Fatalf("FindDownload() error = %v", err)
	}
	if got.Status != hardwire.DownloadInProgress {
		t.Errorf("Status after partial read = %q, want in_progress", got.Status)
	}
	if len(tr.Ongoing()) != 1 {
		t.Errorf("len(Ongoing()) = %d, want 1", len(tr.Ongoing()))
	}

	clock.Advance(5 * time.Second)
	drain(t, tr, data, 600, 400, "tx")

	got, err = db.FindDownload(ctx, "tx")
	if err != nil {
		t.Fatalf("FindDownload() error = %v", err)
	}
	if got.Status != hardwire.DownloadComplete {
		t.Errorf("Status = %q, want complete", got.Status)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(clock.Now()) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, clock.Now())
	}
	if len(tr.Ongoing()) != 0 {
		t.Errorf("len(Ongoing()) = %d, want 0", len(tr.Ongoing()))
	}
}

func TestTracker_RangeRequestsCoalesce(t *testing.T) {
	ctx := context.Background()
	tr, db, clock := newTracker(t)
	data := bytes.Repeat([]byte("y"), 1000)

	drain(t, tr, data, 0, 500, "tx")
	started := clock.Now()
	clock.Advance(time.Minute)
	drain(t, tr, data, 500, 500, "tx")

	list, err := db.ListDownloads(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListDownloads() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(ListDownloads()) = %d, want 1 session", len(list))
	}
	if !list[0].StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want first request time %v", list[0].StartedAt, started)
	}
	if list[0].Status != hardwire.DownloadComplete {
		t.Errorf("Status = %q, want complete", list[0].Status)
	}
}

func TestTracker_TailRangeCompletes(t *testing.T) {
	ctx := context.Background()
	tr, db, _ := newTracker(t)
	data := bytes.Repeat([]byte("z"), 1000)

	drain(t, tr, data, 900, 100, "tail")

	got, err := db.FindDownload(ctx, "tail")
	if err != nil {
		t.Fatalf("FindDownload() error = %v", err)
	}
	if got.Status != hardwire.DownloadComplete {
		t.Errorf("Status = %q, want complete", got.Status)
	}
}

func TestTracker_LateEventsKeepFinishedAt(t *testing.T) {
	ctx := context.Background()
	tr, db, clock := newTracker(t)
	data := bytes.Repeat([]byte("w"), 100)

	drain(t, tr, data, 0, 100, "tx")
	first, err := db.FindDownload(ctx, "tx")
	if err != nil {
		t.Fatalf("FindDownload() error = %v", err)
	}

	clock.Advance(time.Hour)
	drain(t, tr, data, 50, 50, "tx")

	again, err := db.FindDownload(ctx, "tx")
	if err != nil {
		t.Fatalf("FindDownload() error = %v", err)
	}
	if !again.FinishedAt.Equal(*first.FinishedAt) {
		t.Errorf("FinishedAt moved from %v to %v", first.FinishedAt, again.FinishedAt)
	}
}

func TestTracker_EmptyFileNeverCompletes(t *testing.T) {
	ctx := context.Background()
	tr, db, _ := newTracker(t)

	tr.Handle(ctx, hardwire.ProgressEvent{TransactionID: "empty", FilePath: "/e", ChunkBytes: 1, BytesRead: 1})

	got, err := db.FindDownload(ctx, "empty")
	if err != nil {
		t.Fatalf("FindDownload() error = %v", err)
	}
	if got.Status != hardwire.DownloadInProgress {
		t.Errorf("Status = %q, want in_progress", got.Status)
	}
}

type failingStore struct {
	hardwire.DownloadStore
	inserts int
}

func (f *failingStore) InsertDownload(context.Context, *hardwire.DownloadSession) error {
	f.inserts++
	return errors.New("disk full")
}

func TestTracker_StoreErrorsAreLogged(t *testing.T) {
	store := &failingStore{}
	logger := &testutil.RecordingLogger{}
	tr := NewTracker(store, testutil.FixedClock(), logger)

	tr.Handle(context.Background(), hardwire.ProgressEvent{TransactionID: "tx", FileSize: 10, BytesRead: 5})
	tr.Handle(context.Background(), hardwire.ProgressEvent{TransactionID: "tx", FileSize: 10, BytesRead: 6})

	if store.inserts != 2 {
		t.Errorf("inserts = %d, want a retry on the next event", store.inserts)
	}
	if !logger.Contains("disk full") {
		t.Error("store error was not logged")
	}
	if len(tr.Ongoing()) != 0 {
		t.Errorf("len(Ongoing()) = %d, want 0", len(tr.Ongoing()))
	}
}

func TestTracker_RunConsumesBus(t *testing.T) {
	tr, db, _ := newTracker(t)
	bus := NewBus(16)
	sub, err := bus.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, sub) }()

	s := NewStream(bytes.NewReader(make([]byte, 64)), bus, StreamInfo{
		FilePath: "/srv/share/zero", TransactionID: "bus-tx", IPAddress: "10.0.0.2", FileSize: 64,
	})
	if _, err := io.Copy(io.Discard, s); err != nil {
		t.Fatalf("reading stream: %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		d, err := db.FindDownload(context.Background(), "bus-tx")
		return err == nil && d.Status == hardwire.DownloadComplete
	}, "download completed through the bus")

	bus.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after bus close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after bus close")
	}
}
