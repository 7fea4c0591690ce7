package hardwire

import (
	"fmt"
	"time"
)

// DownloadStatus is the lifecycle state of a download session.
type DownloadStatus string

const (
	DownloadInProgress DownloadStatus = "in_progress"
	DownloadComplete   DownloadStatus = "complete"
)

// DownloadSession is one logical download of a shared file by a client.
// All range requests of the same (share, file, client) tuple share a
// TransactionID and therefore a single row.
type DownloadSession struct {
	ID            int64          `json:"id"`
	TransactionID string         `json:"transaction_id"`
	FilePath      string         `json:"file_path"`
	IPAddress     string         `json:"ip_address"`
	Status        DownloadStatus `json:"status"`
	FileSize      int64          `json:"file_size"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
}

// ProgressEvent describes bytes delivered by one read of a download stream.
type ProgressEvent struct {
	FilePath      string `json:"file_path"`
	TransactionID string `json:"transaction_id"`
	IPAddress     string `json:"ip_address"`
	ChunkBytes    int64  `json:"chunk_bytes"`  // bytes returned by this read
	FileSize      int64  `json:"file_size"`    // size of the whole file, not the range
	BytesRead     int64  `json:"read_bytes"`   // cumulative bytes read by this stream
	RangeStart    int64  `json:"start_offset"` // offset the stream started at
}

// ChunkEnd returns the absolute file offset reached by this event.
func (e ProgressEvent) ChunkEnd() int64 {
	return e.RangeStart + e.BytesRead
}

// Completes reports whether this event reaches the end of the file.
func (e ProgressEvent) Completes() bool {
	return e.FileSize > 0 && e.ChunkEnd() >= e.FileSize
}

// IndexEntry is a node of the indexed directory tree. Directories carry
// Children; files carry Size. The tree is rebuilt wholesale on every scan
// and never mutated afterwards.
type IndexEntry struct {
	Name         string       `json:"name"`
	RelativePath string       `json:"full_path"`
	IsDir        bool         `json:"is_dir"`
	Size         *int64       `json:"size,omitempty"`
	ModifiedAt   *time.Time   `json:"modified_at,omitempty"`
	CreatedAt    *time.Time   `json:"created_at,omitempty"`
	Children     []IndexEntry `json:"children,omitempty"`
}

// TaskStatus is the state of a background task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskType identifies the payload variant carried by a TaskInput.
type TaskType string

const TaskCreateArchive TaskType = "create_archive"

// TaskInput is the persisted job input. Type selects which payload is set.
type TaskInput struct {
	Type    TaskType         `json:"type"`
	Archive *ArchiveJobInput `json:"data,omitempty"`
}

// ArchiveJobInput describes an archive to build. Exactly one of Files or
// Directory must be set; this is checked when the job runs, not on submit.
type ArchiveJobInput struct {
	Files      []string `json:"files,omitempty"`
	Directory  string   `json:"directory,omitempty"`
	Password   string   `json:"password,omitempty"`
	OutputPath string   `json:"output_path"`
}

// Validate checks the files/directory union and the output path.
func (in *ArchiveJobInput) Validate() error {
	hasFiles := len(in.Files) > 0
	hasDir := in.Directory != ""
	if hasFiles == hasDir {
		return fmt.Errorf("%w: exactly one of files or directory must be specified", ErrInvalidArchiveInput)
	}
	if in.OutputPath == "" {
		return fmt.Errorf("%w: output_path is required", ErrInvalidArchiveInput)
	}
	return nil
}

// ArchiveOutput is the persisted result of a completed archive job.
type ArchiveOutput struct {
	ArchivePath   string `json:"archive_path"`
	SizeBytes     int64  `json:"size_bytes"`
	Entries       int    `json:"entries"`
	Encrypted     bool   `json:"encrypted"`
	VaultLocation string `json:"vault_location,omitempty"`
}

// Task is a persisted background job record.
type Task struct {
	ID         string         `json:"id"`
	Status     TaskStatus     `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	Progress   int            `json:"progress"`
	Input      TaskInput      `json:"-"`
	Output     *ArchiveOutput `json:"output,omitempty"`
}

// SharedFile is a server-side file that belongs to one or more share links.
type SharedFile struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	SHA256   string `json:"sha256,omitempty"`
	FileSize int64  `json:"file_size"`
}

// ShareLink groups published files under a link-addressable id.
type ShareLink struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Expiration int64     `json:"expiration"` // unix seconds; -1 means never
}

// Expired reports whether the link has an expiration that lies before now.
func (l *ShareLink) Expired(now time.Time) bool {
	return l.Expiration >= 0 && l.Expiration < now.Unix()
}

// DownloadStats summarizes the download table.
type DownloadStats struct {
	TotalDownloads      int64    `json:"total_downloads"`
	TotalSize           int64    `json:"total_size"`
	CompletedDownloads  int64    `json:"completed_downloads"`
	AverageDownloadTime *float64 `json:"average_download_time"` // seconds, nil when nothing finished
	SuccessRate         float64  `json:"success_rate"`          // percent
}

// StatusCount is one bucket of the download status distribution.
type StatusCount struct {
	Status     string  `json:"status"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// PeriodCount aggregates downloads started within one period bucket.
type PeriodCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
	Size  int64  `json:"size"`
}
