// Package indexer keeps an in-memory snapshot of the shared directory tree.
package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	hwfs "hardwire/internal/fs"
	"hardwire/internal/hardwire"
)

// DefaultInterval is the period between automatic rescans.
const DefaultInterval = 300 * time.Second

type rescanRequest struct {
	done chan struct{}
}

// Indexer rescans a root directory periodically and on demand. Readers see
// the last committed snapshot; a failed scan leaves it in place.
type Indexer struct {
	root     string
	interval time.Duration
	ignore   []string
	logger   hardwire.Logger

	mu        sync.RWMutex
	snap      *Snapshot
	scannedAt time.Time
	lastErr   error

	rescan  chan rescanRequest
	stopped chan struct{}
}

// New creates an Indexer for root. It does nothing until Run is called.
func New(root string, interval time.Duration, ignore []string, logger hardwire.Logger) (*Indexer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving indexer root: %w", err)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = hardwire.NewNopLogger()
	}
	return &Indexer{
		root:     abs,
		interval: interval,
		ignore:   ignore,
		logger:   logger,
		snap:     &Snapshot{Sizes: map[string]int64{}},
		rescan:   make(chan rescanRequest, 16),
		stopped:  make(chan struct{}),
	}, nil
}

// Root returns the absolute directory being indexed.
func (ix *Indexer) Root() string {
	return ix.root
}

// Run scans immediately, then rescans whenever the interval elapses or a
// rescan is requested. It returns when ctx is cancelled. Run must be called
// at most once.
func (ix *Indexer) Run(ctx context.Context) error {
	defer close(ix.stopped)

	ix.logger.Info("file indexer started", "root", ix.root, "interval", ix.interval)
	ix.scan()

	timer := time.NewTimer(ix.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			ix.logger.Info("file indexer stopped")
			return ctx.Err()
		case req := <-ix.rescan:
			ix.logger.Debug("manual rescan requested")
			ix.scan()
			close(req.done)
		case <-timer.C:
			ix.scan()
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(ix.interval)
	}
}

func (ix *Indexer) scan() {
	start := time.Now()

	ignore, err := hwfs.LoadIgnoreMatcher(ix.root, ix.ignore)
	if err == nil {
		var snap *Snapshot
		snap, err = Scan(ix.root, ignore)
		if err == nil {
			ix.mu.Lock()
			ix.snap = snap
			ix.scannedAt = time.Now()
			ix.lastErr = nil
			ix.mu.Unlock()

			ix.logger.Debug("scan complete", "files", len(snap.Sizes), "elapsed", time.Since(start))
			return
		}
	}

	ix.mu.Lock()
	ix.lastErr = err
	ix.mu.Unlock()
	ix.logger.Error("scanning directory", "root", ix.root, "error", err)
}

// TriggerRescan asks the loop for a rescan. The returned channel is closed
// once that scan has finished, whether or not it succeeded.
func (ix *Indexer) TriggerRescan(ctx context.Context) (<-chan struct{}, error) {
	req := rescanRequest{done: make(chan struct{})}
	select {
	case <-ix.stopped:
		return nil, hardwire.ErrIndexerStopped
	default:
	}
	select {
	case ix.rescan <- req:
		return req.done, nil
	case <-ix.stopped:
		return nil, hardwire.ErrIndexerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RescanAndWait requests a rescan and blocks until it has been committed.
func (ix *Indexer) RescanAndWait(ctx context.Context) error {
	done, err := ix.TriggerRescan(ctx)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return ix.LastError()
	case <-ix.stopped:
		return hardwire.ErrIndexerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tree returns the current entry tree. Callers must not modify it.
func (ix *Indexer) Tree() []hardwire.IndexEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap.Tree
}

// CachedSize returns the size recorded for an absolute file path by the
// last successful scan.
func (ix *Indexer) CachedSize(path string) (int64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	size, ok := ix.snap.Sizes[path]
	return size, ok
}

// Status describes the last scan.
type Status struct {
	Root      string    `json:"root"`
	Files     int       `json:"files"`
	ScannedAt time.Time `json:"scanned_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Status reports the state of the last scan.
func (ix *Indexer) Status() Status {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s := Status{Root: ix.root, Files: len(ix.snap.Sizes), ScannedAt: ix.scannedAt}
	if ix.lastErr != nil {
		s.LastError = ix.lastErr.Error()
	}
	return s
}

// LastError returns the error of the last scan, or nil if it succeeded.
func (ix *Indexer) LastError() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.lastErr
}
