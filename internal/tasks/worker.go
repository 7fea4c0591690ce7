package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hardwire/internal/archive"
	hwfs "hardwire/internal/fs"
	"hardwire/internal/hardwire"
)

// Run consumes queued task ids one at a time until ctx is cancelled or the
// manager is closed and drained.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-m.queue:
			if !ok {
				return nil
			}
			m.process(ctx, id)
		}
	}
}

func (m *Manager) process(ctx context.Context, id string) {
	if err := m.store.MarkTaskRunning(ctx, id, m.clock.Now()); err != nil {
		m.logger.Error("could not start task", "task_id", id, "error", err)
		return
	}
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		m.logger.Error("could not load task", "task_id", id, "error", err)
		if err := m.store.FailTask(ctx, id, fmt.Sprintf("loading task input: %v", err), m.clock.Now()); err != nil {
			m.logger.Error("could not record task failure", "task_id", id, "error", err)
		}
		return
	}

	m.logger.Info("task started", "task_id", id, "type", task.Input.Type)
	start := time.Now()

	output, err := m.execute(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			// Left running; Recover fails it on the next start.
			m.logger.Warn("task interrupted by shutdown", "task_id", id)
			return
		}
		m.logger.Error("task failed", "task_id", id, "error", err)
		if err := m.store.FailTask(ctx, id, err.Error(), m.clock.Now()); err != nil {
			m.logger.Error("could not record task failure", "task_id", id, "error", err)
		}
		return
	}

	if err := m.store.CompleteTask(ctx, id, output, m.clock.Now()); err != nil {
		m.logger.Error("could not record task completion", "task_id", id, "error", err)
		return
	}
	m.logger.Info("task completed", "task_id", id, "archive", output.ArchivePath,
		"size", output.SizeBytes, "duration", time.Since(start))
}

func (m *Manager) execute(ctx context.Context, task *hardwire.Task) (*hardwire.ArchiveOutput, error) {
	switch task.Input.Type {
	case hardwire.TaskCreateArchive:
		if task.Input.Archive == nil {
			return nil, fmt.Errorf("%w: missing archive payload", hardwire.ErrInvalidArchiveInput)
		}
		return m.runArchive(ctx, task.ID, task.Input.Archive)
	default:
		return nil, fmt.Errorf("unknown task type %q", task.Input.Type)
	}
}

func (m *Manager) runArchive(ctx context.Context, id string, in *hardwire.ArchiveJobInput) (*hardwire.ArchiveOutput, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var files []hwfs.File
	var err error
	if in.Directory != "" {
		files, err = hwfs.CollectFiles(in.Directory, nil)
	} else {
		files, err = hwfs.StatFiles(in.Files)
	}
	if err != nil {
		return nil, fmt.Errorf("collecting archive input: %w", err)
	}

	req := archive.Request{
		Files:      files,
		OutputPath: archive.OutputPath(m.archiveDir, in.OutputPath, in.Password != ""),
		Password:   in.Password,
	}
	counter := archive.NewCounter(hwfs.TotalSize(files))

	var (
		res      *archive.Result
		buildErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, buildErr = m.builder.Build(ctx, req, counter)
	}()
	m.report(ctx, id, counter, done)
	if buildErr != nil {
		return nil, fmt.Errorf("building archive: %w", buildErr)
	}

	output := &hardwire.ArchiveOutput{
		ArchivePath: res.Path,
		SizeBytes:   res.Size,
		Entries:     res.Entries,
		Encrypted:   res.Encrypted,
	}
	if m.vault != nil {
		loc, err := m.publish(ctx, id, res)
		if err != nil {
			return nil, err
		}
		output.VaultLocation = loc
	}
	return output, nil
}

// report writes the counter's percentage every interval until done closes.
func (m *Manager) report(ctx context.Context, id string, counter *archive.Counter, done <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p := counter.Percent()
			if p == last {
				continue
			}
			if err := m.store.UpdateTaskProgress(ctx, id, p); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("could not update task progress", "task_id", id, "error", err)
			}
			last = p
		}
	}
}

func (m *Manager) publish(ctx context.Context, id string, res *archive.Result) (string, error) {
	f, err := os.Open(res.Path)
	if err != nil {
		return "", fmt.Errorf("opening archive for upload: %w", err)
	}
	defer f.Close()

	key := id + "/" + filepath.Base(res.Path)
	loc, err := m.vault.PutArchive(ctx, key, f, res.Size)
	if err != nil {
		return "", fmt.Errorf("publishing archive to vault %s: %w", m.vault.Name(), err)
	}
	m.logger.Info("archive published", "task_id", id, "vault", m.vault.Name(), "location", loc)
	return loc, nil
}
