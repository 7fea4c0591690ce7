package hardwire

import "errors"

var (
	// ErrNotFound is returned by stores when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrQueueFull is returned when a task cannot be enqueued without blocking.
	// The caller may retry later.
	ErrQueueFull = errors.New("task queue is full")

	// ErrQueueClosed is returned when submitting to a queue that has been shut down.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrInvalidArchiveInput marks an archive job whose input cannot be processed,
	// e.g. it names neither or both of a file list and a directory.
	ErrInvalidArchiveInput = errors.New("invalid archive input")

	// ErrIndexerStopped is returned when a rescan is requested after the indexer loop exited.
	ErrIndexerStopped = errors.New("indexer is not running")

	// ErrShareExpired is returned when a share link exists but its expiration has passed.
	ErrShareExpired = errors.New("share link expired")

	// ErrBusClosed is returned when publishing to a closed event bus.
	ErrBusClosed = errors.New("event bus is closed")
)
