// Package tasks runs archive jobs on a single background worker and keeps
// their state in a TaskStore.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hardwire/internal/archive"
	"hardwire/internal/hardwire"
)

const (
	DefaultQueueSize        = 32
	DefaultProgressInterval = 500 * time.Millisecond
)

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	QueueSize        int
	ProgressInterval time.Duration
	ArchiveDir       string // base for relative output paths
}

// Manager accepts archive jobs, persists them and hands their ids to the
// worker loop started by Run.
type Manager struct {
	store      hardwire.TaskStore
	builder    *archive.Builder
	vault      hardwire.Vault // nil disables publication
	archiveDir string
	interval   time.Duration
	logger     hardwire.Logger
	clock      hardwire.Clock
	idgen      hardwire.IDGenerator

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	queue  chan string
}

// NewManager creates a Manager with the provided dependencies.
func NewManager(store hardwire.TaskStore, builder *archive.Builder, vault hardwire.Vault, opts Options, logger hardwire.Logger, clock hardwire.Clock, idgen hardwire.IDGenerator) *Manager {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	return &Manager{
		store:      store,
		builder:    builder,
		vault:      vault,
		archiveDir: opts.ArchiveDir,
		interval:   opts.ProgressInterval,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		queue:      make(chan string, opts.QueueSize),
	}
}

// SubmitArchiveJob records a pending task and enqueues it. The input is
// validated when the job runs; a malformed input yields a failed task.
func (m *Manager) SubmitArchiveJob(ctx context.Context, in hardwire.ArchiveJobInput) (string, error) {
	task := &hardwire.Task{
		ID:        m.idgen.New(),
		CreatedAt: m.clock.Now(),
		Input:     hardwire.TaskInput{Type: hardwire.TaskCreateArchive, Archive: &in},
	}
	if err := m.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("submitting archive job: %w", err)
	}
	if err := m.enqueue(ctx, task.ID); err != nil {
		return task.ID, err
	}
	m.logger.Info("archive job submitted", "task_id", task.ID)
	return task.ID, nil
}

// GetTask returns the current state of a task, or ErrNotFound.
func (m *Manager) GetTask(ctx context.Context, id string) (*hardwire.Task, error) {
	return m.store.GetTask(ctx, id)
}

// Wait polls a task until it reaches a terminal state or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string, poll time.Duration) (*hardwire.Task, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		task, err := m.store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Recover settles tasks left behind by a previous process. Running tasks
// are failed and pending tasks are enqueued again.
func (m *Manager) Recover(ctx context.Context) error {
	running, err := m.store.ListTasksByStatus(ctx, hardwire.TaskRunning)
	if err != nil {
		return fmt.Errorf("recovering tasks: %w", err)
	}
	for _, task := range running {
		if err := m.store.FailTask(ctx, task.ID, "interrupted by restart", m.clock.Now()); err != nil {
			return fmt.Errorf("recovering task %s: %w", task.ID, err)
		}
		m.logger.Warn("task interrupted by restart", "task_id", task.ID)
	}

	pending, err := m.store.ListTasksByStatus(ctx, hardwire.TaskPending)
	if err != nil {
		return fmt.Errorf("recovering tasks: %w", err)
	}
	for _, task := range pending {
		if err := m.enqueue(ctx, task.ID); err != nil {
			m.logger.Warn("could not requeue pending task", "task_id", task.ID, "error", err)
			continue
		}
		m.logger.Info("pending task requeued", "task_id", task.ID)
	}
	return nil
}

// Close stops accepting jobs. Run drains what is already queued and returns.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.queue)
}

// enqueue hands id to the worker without blocking. A task that cannot be
// queued is failed so it never lingers as pending.
func (m *Manager) enqueue(ctx context.Context, id string) error {
	m.mu.RLock()
	err := m.trySend(id)
	m.mu.RUnlock()
	if err == nil {
		return nil
	}

	if failErr := m.store.FailTask(ctx, id, err.Error(), m.clock.Now()); failErr != nil {
		return errors.Join(err, fmt.Errorf("failing task %s: %w", id, failErr))
	}
	return err
}

func (m *Manager) trySend(id string) error {
	if m.closed {
		return hardwire.ErrQueueClosed
	}
	select {
	case m.queue <- id:
		return nil
	default:
		return hardwire.ErrQueueFull
	}
}
