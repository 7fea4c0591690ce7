package hardwire

import (
	"context"
	"time"
)

// DownloadStore persists download sessions.
type DownloadStore interface {
	// InsertDownload creates a session row. Inserting a transaction id that
	// already exists is a no-op: the first row, and its StartedAt, survive.
	InsertDownload(ctx context.Context, session *DownloadSession) error

	// CompleteDownload marks a session complete. It reports false when the
	// session does not exist or was already complete.
	CompleteDownload(ctx context.Context, transactionID string, finishedAt time.Time) (bool, error)

	// FindDownload returns the session for a transaction id, or ErrNotFound.
	FindDownload(ctx context.Context, transactionID string) (*DownloadSession, error)

	// ListDownloads returns sessions, most recently finished first.
	ListDownloads(ctx context.Context, limit, offset int) ([]*DownloadSession, error)

	// DownloadStats aggregates the whole download table.
	DownloadStats(ctx context.Context) (*DownloadStats, error)

	// DownloadStatusDistribution counts sessions per status.
	DownloadStatusDistribution(ctx context.Context) ([]*StatusCount, error)

	// DownloadsByPeriod buckets sessions by start time. period is one of
	// "hour", "day", "week" or "month"; anything else is treated as "day".
	DownloadsByPeriod(ctx context.Context, period string, limit int) ([]*PeriodCount, error)
}

// TaskStore persists background task records and enforces the task state machine.
type TaskStore interface {
	// CreateTask inserts a pending task with progress 0.
	CreateTask(ctx context.Context, task *Task) error

	// GetTask returns a task by id, or ErrNotFound.
	GetTask(ctx context.Context, id string) (*Task, error)

	// ListTasksByStatus returns tasks in the given status, oldest first.
	ListTasksByStatus(ctx context.Context, status TaskStatus) ([]*Task, error)

	// MarkTaskRunning moves a pending task to running.
	MarkTaskRunning(ctx context.Context, id string, startedAt time.Time) error

	// UpdateTaskProgress raises the progress of a running task. Lower values
	// and updates to tasks that are not running are ignored.
	UpdateTaskProgress(ctx context.Context, id string, progress int) error

	// CompleteTask moves a non-terminal task to completed with progress 100.
	CompleteTask(ctx context.Context, id string, output *ArchiveOutput, finishedAt time.Time) error

	// FailTask moves a non-terminal task to failed with the given message.
	FailTask(ctx context.Context, id string, message string, finishedAt time.Time) error
}

// ShareStore resolves published files by share link.
type ShareStore interface {
	// CreateShare records the files and a new share link grouping them.
	CreateShare(ctx context.Context, link *ShareLink, files []*SharedFile) error

	// FindShareLink returns a share link by id, or ErrNotFound.
	FindShareLink(ctx context.Context, shareID string) (*ShareLink, error)

	// FindSharedFile returns a file that belongs to the given share, or ErrNotFound.
	FindSharedFile(ctx context.Context, shareID string, fileID int64) (*SharedFile, error)

	// ListSharedFiles returns the files of a share, or ErrNotFound for an unknown share.
	ListSharedFiles(ctx context.Context, shareID string) ([]*SharedFile, error)
}

// Database bundles the stores backed by one metadata database.
type Database interface {
	DownloadStore
	TaskStore
	ShareStore

	// CheckMigrations returns an error if the schema is not at the latest version.
	CheckMigrations() error

	// Close closes the database connection.
	Close() error
}
