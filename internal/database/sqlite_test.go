package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"hardwire/internal/hardwire"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestDB creates a new in-memory database with migrations applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func session(txID string, size int64, started time.Time) *hardwire.DownloadSession {
	return &hardwire.DownloadSession{
		TransactionID: txID,
		FilePath:      "/srv/share/" + txID,
		IPAddress:     "10.0.0.1",
		FileSize:      size,
		StartedAt:     started,
	}
}

func TestSQLiteDatabase_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hardwire.db")

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	if err := db.InsertDownload(context.Background(), session("tx", 10, t0)); err != nil {
		t.Fatalf("InsertDownload() error = %v", err)
	}
	db.Close()

	reopened, err := NewSQLiteDatabase(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	if reopened.Path() != path {
		t.Errorf("Path() = %q, want %q", reopened.Path(), path)
	}
	if _, err := reopened.FindDownload(context.Background(), "tx"); err != nil {
		t.Errorf("FindDownload() after reopen error = %v", err)
	}
}

func TestSQLiteDatabase_InsertDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate insert keeps the first row", func(t *testing.T) {
		db := newTestDB(t)

		if err := db.InsertDownload(ctx, session("tx-1", 1000, t0)); err != nil {
			t.Fatalf("InsertDownload() error = %v", err)
		}
		if err := db.InsertDownload(ctx, session("tx-1", 1000, t0.Add(time.Minute))); err != nil {
			t.Fatalf("second InsertDownload() error = %v", err)
		}

		got, err := db.FindDownload(ctx, "tx-1")
		if err != nil {
			t.Fatalf("FindDownload() error = %v", err)
		}
		if !got.StartedAt.Equal(t0) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, t0)
		}
		if got.Status != hardwire.DownloadInProgress {
			t.Errorf("Status = %q, want %q", got.Status, hardwire.DownloadInProgress)
		}

		list, err := db.ListDownloads(ctx, 10, 0)
		if err != nil {
			t.Fatalf("ListDownloads() error = %v", err)
		}
		if len(list) != 1 {
			t.Errorf("len(ListDownloads()) = %d, want 1", len(list))
		}
	})

	t.Run("missing download", func(t *testing.T) {
		db := newTestDB(t)

		_, err := db.FindDownload(ctx, "nope")
		if !errors.Is(err, hardwire.ErrNotFound) {
			t.Errorf("FindDownload() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteDatabase_CompleteDownload(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.InsertDownload(ctx, session("tx-1", 1000, t0)); err != nil {
		t.Fatalf("InsertDownload() error = %v", err)
	}

	done := t0.Add(30 * time.Second)
	ok, err := db.CompleteDownload(ctx, "tx-1", done)
	if err != nil {
		t.Fatalf("CompleteDownload() error = %v", err)
	}
	if !ok {
		t.Fatal("CompleteDownload() = false, want true")
	}

	ok, err = db.CompleteDownload(ctx, "tx-1", done.Add(time.Hour))
	if err != nil {
		t.Fatalf("second CompleteDownload() error = %v", err)
	}
	if ok {
		t.Error("second CompleteDownload() = true, want false")
	}

	got, err := db.FindDownload(ctx, "tx-1")
	if err != nil {
		t.Fatalf("FindDownload() error = %v", err)
	}
	if got.Status != hardwire.DownloadComplete {
		t.Errorf("Status = %q, want %q", got.Status, hardwire.DownloadComplete)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(done) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, done)
	}

	ok, err = db.CompleteDownload(ctx, "unknown", done)
	if err != nil {
		t.Fatalf("CompleteDownload(unknown) error = %v", err)
	}
	if ok {
		t.Error("CompleteDownload(unknown) = true, want false")
	}
}

func TestSQLiteDatabase_DownloadStats(t *testing.T) {
	ctx := context.Background()

	t.Run("empty table", func(t *testing.T) {
		db := newTestDB(t)

		stats, err := db.DownloadStats(ctx)
		if err != nil {
			t.Fatalf("DownloadStats() error = %v", err)
		}
		if stats.TotalDownloads != 0 || stats.SuccessRate != 0 {
			t.Errorf("DownloadStats() = %+v, want zero values", stats)
		}
		if stats.AverageDownloadTime != nil {
			t.Errorf("AverageDownloadTime = %v, want nil", *stats.AverageDownloadTime)
		}
	})

	t.Run("mixed sessions", func(t *testing.T) {
		db := newTestDB(t)

		for i, id := range []string{"a", "b", "c", "d"} {
			if err := db.InsertDownload(ctx, session(id, 100, t0.Add(time.Duration(i)*time.Hour))); err != nil {
				t.Fatalf("InsertDownload(%s) error = %v", id, err)
			}
		}
		if _, err := db.CompleteDownload(ctx, "a", t0.Add(10*time.Second)); err != nil {
			t.Fatalf("CompleteDownload(a) error = %v", err)
		}
		if _, err := db.CompleteDownload(ctx, "b", t0.Add(time.Hour+30*time.Second)); err != nil {
			t.Fatalf("CompleteDownload(b) error = %v", err)
		}

		stats, err := db.DownloadStats(ctx)
		if err != nil {
			t.Fatalf("DownloadStats() error = %v", err)
		}
		if stats.TotalDownloads != 4 {
			t.Errorf("TotalDownloads = %d, want 4", stats.TotalDownloads)
		}
		if stats.TotalSize != 400 {
			t.Errorf("TotalSize = %d, want 400", stats.TotalSize)
		}
		if stats.CompletedDownloads != 2 {
			t.Errorf("CompletedDownloads = %d, want 2", stats.CompletedDownloads)
		}
		if stats.SuccessRate != 50 {
			t.Errorf("SuccessRate = %v, want 50", stats.SuccessRate)
		}
		if stats.AverageDownloadTime == nil || *stats.AverageDownloadTime != 20 {
			t.Errorf("AverageDownloadTime = %v, want 20", stats.AverageDownloadTime)
		}

		dist, err := db.DownloadStatusDistribution(ctx)
		if err != nil {
			t.Fatalf("DownloadStatusDistribution() error = %v", err)
		}
		if len(dist) != 2 {
			t.Fatalf("len(distribution) = %d, want 2", len(dist))
		}
		for _, c := range dist {
			if c.Count != 2 || c.Percentage != 50 {
				t.Errorf("distribution %s = %d (%v%%), want 2 (50%%)", c.Status, c.Count, c.Percentage)
			}
		}

		recent, err := db.ListDownloads(ctx, 10, 0)
		if err != nil {
			t.Fatalf("ListDownloads() error = %v", err)
		}
		if len(recent) != 4 {
			t.Fatalf("len(ListDownloads()) = %d, want 4", len(recent))
		}
		if recent[0].TransactionID != "b" {
			t.Errorf("first recent download = %q, want %q", recent[0].TransactionID, "b")
		}
		if recent[2].TransactionID != "d" {
			t.Errorf("first unfinished download = %q, want %q", recent[2].TransactionID, "d")
		}

		paged, err := db.ListDownloads(ctx, 2, 3)
		if err != nil {
			t.Fatalf("ListDownloads(offset) error = %v", err)
		}
		if len(paged) != 1 {
			t.Errorf("len(ListDownloads(2, 3)) = %d, want 1", len(paged))
		}
	})
}

func TestSQLiteDatabase_DownloadsByPeriod(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	starts := []time.Time{
		t0,
		t0.Add(time.Hour),
		t0.Add(24 * time.Hour),
	}
	for i, s := range starts {
		if err := db.InsertDownload(ctx, session(string(rune('a'+i)), 10, s)); err != nil {
			t.Fatalf("InsertDownload() error = %v", err)
		}
	}

	tests := []struct {
		period    string
		wantFirst string
		wantLen   int
	}{
		{"day", "2024-01-16", 2},
		{"hour", "2024-01-16 10:00:00", 3},
		{"month", "2024-01", 1},
		{"fortnight", "2024-01-16", 2},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := db.DownloadsByPeriod(ctx, tt.period, 30)
			if err != nil {
				t.Fatalf("DownloadsByPeriod() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if got[0].Date != tt.wantFirst {
				t.Errorf("first bucket = %q, want %q", got[0].Date, tt.wantFirst)
			}
		})
	}

	got, err := db.DownloadsByPeriod(ctx, "month", 30)
	if err != nil {
		t.Fatalf("DownloadsByPeriod(month) error = %v", err)
	}
	if got[0].Count != 3 || got[0].Size != 30 {
		t.Errorf("month bucket = %+v, want count 3 size 30", got[0])
	}
}

func newTask(id string) *hardwire.Task {
	return &hardwire.Task{
		ID:        id,
		CreatedAt: t0,
		Input: hardwire.TaskInput{
			Type: hardwire.TaskCreateArchive,
			Archive: &hardwire.ArchiveJobInput{
				Directory:  "/srv/share/photos",
				Password:   "secret",
				OutputPath: "photos.zip",
			},
		},
	}
}

func TestSQLiteDatabase_TaskLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("pending to completed", func(t *testing.T) {
		db := newTestDB(t)

		if err := db.CreateTask(ctx, newTask("t1")); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}

		got, err := db.GetTask(ctx, "t1")
		if err != nil {
			t.Fatalf("GetTask() error = %v", err)
		}
		if got.Status != hardwire.TaskPending || got.Progress != 0 {
			t.Errorf("new task = %s/%d, want pending/0", got.Status, got.Progress)
		}
		if got.Input.Archive == nil || got.Input.Archive.Directory != "/srv/share/photos" {
			t.Errorf("Input = %+v, want archive input round-tripped", got.Input)
		}

		if err := db.MarkTaskRunning(ctx, "t1", t0.Add(time.Second)); err != nil {
			t.Fatalf("MarkTaskRunning() error = %v", err)
		}
		if err := db.UpdateTaskProgress(ctx, "t1", 40); err != nil {
			t.Fatalf("UpdateTaskProgress(40) error = %v", err)
		}
		if err := db.UpdateTaskProgress(ctx, "t1", 25); err != nil {
			t.Fatalf("UpdateTaskProgress(25) error = %v", err)
		}
		got, _ = db.GetTask(ctx, "t1")
		if got.Progress != 40 {
			t.Errorf("Progress after lower update = %d, want 40", got.Progress)
		}

		out := &hardwire.ArchiveOutput{ArchivePath: "/archives/photos.zip.age", SizeBytes: 123, Entries: 4, Encrypted: true}
		if err := db.CompleteTask(ctx, "t1", out, t0.Add(time.Minute)); err != nil {
			t.Fatalf("CompleteTask() error = %v", err)
		}

		got, err = db.GetTask(ctx, "t1")
		if err != nil {
			t.Fatalf("GetTask() error = %v", err)
		}
		if got.Status != hardwire.TaskCompleted || got.Progress != 100 {
			t.Errorf("completed task = %s/%d, want completed/100", got.Status, got.Progress)
		}
		if got.Output == nil || got.Output.ArchivePath != out.ArchivePath {
			t.Errorf("Output = %+v, want %+v", got.Output, out)
		}
		if got.StartedAt == nil || got.FinishedAt == nil {
			t.Errorf("StartedAt/FinishedAt = %v/%v, want both set", got.StartedAt, got.FinishedAt)
		}
	})

	t.Run("terminal tasks reject transitions", func(t *testing.T) {
		db := newTestDB(t)

		if err := db.CreateTask(ctx, newTask("t1")); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
		if err := db.FailTask(ctx, "t1", "boom", t0); err != nil {
			t.Fatalf("FailTask() error = %v", err)
		}
		if err := db.CompleteTask(ctx, "t1", &hardwire.ArchiveOutput{}, t0); err == nil {
			t.Error("CompleteTask() on failed task expected error")
		}
		if err := db.MarkTaskRunning(ctx, "t1", t0); err == nil {
			t.Error("MarkTaskRunning() on failed task expected error")
		}
		if err := db.UpdateTaskProgress(ctx, "t1", 80); err != nil {
			t.Errorf("UpdateTaskProgress() error = %v", err)
		}

		got, _ := db.GetTask(ctx, "t1")
		if got.Status != hardwire.TaskFailed || got.Error != "boom" || got.Progress != 0 {
			t.Errorf("task = %s/%q/%d, want failed/boom/0", got.Status, got.Error, got.Progress)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		db := newTestDB(t)

		if _, err := db.GetTask(ctx, "missing"); !errors.Is(err, hardwire.ErrNotFound) {
			t.Errorf("GetTask() error = %v, want ErrNotFound", err)
		}
		if err := db.FailTask(ctx, "missing", "x", t0); !errors.Is(err, hardwire.ErrNotFound) {
			t.Errorf("FailTask() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list by status", func(t *testing.T) {
		db := newTestDB(t)

		for _, id := range []string{"t1", "t2", "t3"} {
			if err := db.CreateTask(ctx, newTask(id)); err != nil {
				t.Fatalf("CreateTask(%s) error = %v", id, err)
			}
		}
		if err := db.MarkTaskRunning(ctx, "t2", t0); err != nil {
			t.Fatalf("MarkTaskRunning() error = %v", err)
		}

		pending, err := db.ListTasksByStatus(ctx, hardwire.TaskPending)
		if err != nil {
			t.Fatalf("ListTasksByStatus() error = %v", err)
		}
		if len(pending) != 2 || pending[0].ID != "t1" || pending[1].ID != "t3" {
			t.Errorf("pending tasks = %v, want [t1 t3]", taskIDs(pending))
		}
	})
}

func taskIDs(tasks []*hardwire.Task) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

func TestSQLiteDatabase_Shares(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	link := &hardwire.ShareLink{ID: "abcdefghij", CreatedAt: t0, Expiration: -1}
	files := []*hardwire.SharedFile{
		{Path: "/srv/share/a.txt", SHA256: "aa", FileSize: 5},
		{Path: "/srv/share/b.bin", SHA256: "bb", FileSize: 1024},
	}
	if err := db.CreateShare(ctx, link, files); err != nil {
		t.Fatalf("CreateShare() error = %v", err)
	}
	if files[0].ID == 0 || files[1].ID == 0 {
		t.Fatalf("CreateShare() did not assign ids: %+v", files)
	}

	got, err := db.FindSharedFile(ctx, link.ID, files[1].ID)
	if err != nil {
		t.Fatalf("FindSharedFile() error = %v", err)
	}
	if got.Path != "/srv/share/b.bin" || got.FileSize != 1024 {
		t.Errorf("FindSharedFile() = %+v", got)
	}

	if _, err := db.FindSharedFile(ctx, "otherlink0", files[1].ID); !errors.Is(err, hardwire.ErrNotFound) {
		t.Errorf("FindSharedFile(wrong share) error = %v, want ErrNotFound", err)
	}

	list, err := db.ListSharedFiles(ctx, link.ID)
	if err != nil {
		t.Fatalf("ListSharedFiles() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len(ListSharedFiles()) = %d, want 2", len(list))
	}

	if _, err := db.ListSharedFiles(ctx, "missing"); !errors.Is(err, hardwire.ErrNotFound) {
		t.Errorf("ListSharedFiles(missing) error = %v, want ErrNotFound", err)
	}

	found, err := db.FindShareLink(ctx, link.ID)
	if err != nil {
		t.Fatalf("FindShareLink() error = %v", err)
	}
	if found.Expired(t0.Add(365 * 24 * time.Hour)) {
		t.Error("link with expiration -1 reported expired")
	}
}

func TestSQLiteDatabase_CreateShareRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	link := &hardwire.ShareLink{ID: "dup", CreatedAt: t0, Expiration: -1}
	if err := db.CreateShare(ctx, link, nil); err != nil {
		t.Fatalf("CreateShare() error = %v", err)
	}

	err := db.CreateShare(ctx, link, []*hardwire.SharedFile{{Path: "/x", FileSize: 1}})
	if err == nil {
		t.Fatal("CreateShare() with duplicate id expected error")
	}

	var n int
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		t.Fatalf("count files: %v", err)
	}
	if n != 0 {
		t.Errorf("files after rollback = %d, want 0", n)
	}
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	db := newTestDB(t)
	if err := db.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() error = %v", err)
	}
}
