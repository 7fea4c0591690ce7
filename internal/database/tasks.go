package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hardwire/internal/hardwire"
)

const taskColumns = `id, status, input_data, output_data, error, progress, created_at, started_at, finished_at`

func (s *SQLiteDatabase) CreateTask(ctx context.Context, task *hardwire.Task) error {
	input, err := json.Marshal(task.Input)
	if err != nil {
		return fmt.Errorf("encoding task input: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, task_type, status, input_data, progress, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		task.ID, task.Input.Type, hardwire.TaskPending, string(input), task.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("creating task %s: %w", task.ID, err)
	}
	task.Status = hardwire.TaskPending
	task.Progress = 0
	return nil
}

func (s *SQLiteDatabase) GetTask(ctx context.Context, id string) (*hardwire.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hardwire.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return task, nil
}

func (s *SQLiteDatabase) ListTasksByStatus(ctx context.Context, status hardwire.TaskStatus) ([]*hardwire.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at, rowid`, status)
	if err != nil {
		return nil, fmt.Errorf("listing %s tasks: %w", status, err)
	}
	defer rows.Close()

	var result []*hardwire.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("listing %s tasks: %w", status, err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s tasks: %w", status, err)
	}
	return result, nil
}

func (s *SQLiteDatabase) MarkTaskRunning(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'running', started_at = ? WHERE id = ? AND status = 'pending'`,
		startedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("marking task %s running: %w", id, err)
	}
	return s.checkTransition(ctx, res, id, hardwire.TaskRunning)
}

func (s *SQLiteDatabase) UpdateTaskProgress(ctx context.Context, id string, progress int) error {
	progress = min(max(progress, 0), 100)
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET progress = ? WHERE id = ? AND status = 'running' AND progress <= ?`,
		progress, id, progress)
	if err != nil {
		return fmt.Errorf("updating task %s progress: %w", id, err)
	}
	return nil
}

func (s *SQLiteDatabase) CompleteTask(ctx context.Context, id string, output *hardwire.ArchiveOutput, finishedAt time.Time) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("encoding task output: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'completed', progress = 100, output_data = ?, error = NULL, finished_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		string(data), finishedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("completing task %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id, hardwire.TaskCompleted)
}

func (s *SQLiteDatabase) FailTask(ctx context.Context, id string, message string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'failed', error = ?, finished_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		message, finishedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failing task %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id, hardwire.TaskFailed)
}

// checkTransition turns a zero-row state change into ErrNotFound or a
// rejected-transition error.
func (s *SQLiteDatabase) checkTransition(ctx context.Context, res sql.Result, id string, to hardwire.TaskStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("moving task %s to %s: %w", id, to, err)
	}
	if n > 0 {
		return nil
	}
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %s: %w", id, hardwire.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("moving task %s to %s: %w", id, to, err)
	}
	return fmt.Errorf("task %s cannot move from %s to %s", id, current, to)
}

func scanTask(r rowScanner) (*hardwire.Task, error) {
	var (
		t        hardwire.Task
		status   string
		input    string
		output   sql.NullString
		errMsg   sql.NullString
		created  int64
		started  sql.NullInt64
		finished sql.NullInt64
	)
	if err := r.Scan(&t.ID, &status, &input, &output, &errMsg, &t.Progress, &created, &started, &finished); err != nil {
		return nil, err
	}
	t.Status = hardwire.TaskStatus(status)
	t.CreatedAt = unixTime(created)
	t.StartedAt = nullUnix(started)
	t.FinishedAt = nullUnix(finished)
	t.Error = errMsg.String

	if err := json.Unmarshal([]byte(input), &t.Input); err != nil {
		return nil, fmt.Errorf("decoding input of task %s: %w", t.ID, err)
	}
	if output.Valid && output.String != "" {
		var out hardwire.ArchiveOutput
		if err := json.Unmarshal([]byte(output.String), &out); err != nil {
			return nil, fmt.Errorf("decoding output of task %s: %w", t.ID, err)
		}
		t.Output = &out
	}
	return &t, nil
}
