package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hardwire/internal/hardwire"
)

const downloadColumns = `id, transaction_id, file_path, ip_address, status, file_size, started_at, finished_at`

func (s *SQLiteDatabase) InsertDownload(ctx context.Context, d *hardwire.DownloadSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO download (transaction_id, file_path, ip_address, status, file_size, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.TransactionID, d.FilePath, d.IPAddress, hardwire.DownloadInProgress, d.FileSize, d.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting download %s: %w", d.TransactionID, err)
	}
	return nil
}

func (s *SQLiteDatabase) CompleteDownload(ctx context.Context, transactionID string, finishedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE download SET status = ?, finished_at = ?
		 WHERE transaction_id = ? AND status <> ?`,
		hardwire.DownloadComplete, finishedAt.Unix(), transactionID, hardwire.DownloadComplete,
	)
	if err != nil {
		return false, fmt.Errorf("completing download %s: %w", transactionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("completing download %s: %w", transactionID, err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) FindDownload(ctx context.Context, transactionID string) (*hardwire.DownloadSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+downloadColumns+` FROM download WHERE transaction_id = ?`, transactionID)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hardwire.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding download %s: %w", transactionID, err)
	}
	return d, nil
}

func (s *SQLiteDatabase) ListDownloads(ctx context.Context, limit, offset int) ([]*hardwire.DownloadSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+downloadColumns+` FROM download
		 ORDER BY finished_at DESC NULLS LAST, started_at DESC, id DESC
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	defer rows.Close()

	var result []*hardwire.DownloadSession
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("listing downloads: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) DownloadStats(ctx context.Context) (*hardwire.DownloadStats, error) {
	var (
		stats hardwire.DownloadStats
		avg   sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(file_size), 0),
		        COALESCE(SUM(CASE WHEN status = 'complete' THEN 1 ELSE 0 END), 0),
		        AVG(CASE WHEN finished_at IS NOT NULL THEN finished_at - started_at END)
		 FROM download`).Scan(&stats.TotalDownloads, &stats.TotalSize, &stats.CompletedDownloads, &avg)
	if err != nil {
		return nil, fmt.Errorf("computing download stats: %w", err)
	}
	if avg.Valid {
		stats.AverageDownloadTime = &avg.Float64
	}
	if stats.TotalDownloads > 0 {
		stats.SuccessRate = float64(stats.CompletedDownloads) / float64(stats.TotalDownloads) * 100
	}
	return &stats, nil
}

func (s *SQLiteDatabase) DownloadStatusDistribution(ctx context.Context) ([]*hardwire.StatusCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) AS count FROM download GROUP BY status ORDER BY count DESC, status`)
	if err != nil {
		return nil, fmt.Errorf("counting download statuses: %w", err)
	}
	defer rows.Close()

	var (
		result []*hardwire.StatusCount
		total  int64
	)
	for rows.Next() {
		var c hardwire.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("counting download statuses: %w", err)
		}
		total += c.Count
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting download statuses: %w", err)
	}
	for _, c := range result {
		c.Percentage = float64(c.Count) / float64(total) * 100
	}
	return result, nil
}

// periodFormats maps a period name to the strftime bucket format.
var periodFormats = map[string]string{
	"hour":  "%Y-%m-%d %H:00:00",
	"day":   "%Y-%m-%d",
	"week":  "%Y-W%W",
	"month": "%Y-%m",
}

func (s *SQLiteDatabase) DownloadsByPeriod(ctx context.Context, period string, limit int) ([]*hardwire.PeriodCount, error) {
	format, ok := periodFormats[period]
	if !ok {
		format = periodFormats["day"]
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT strftime(?, started_at, 'unixepoch') AS date,
		        COUNT(*),
		        COALESCE(SUM(file_size), 0)
		 FROM download
		 GROUP BY date
		 ORDER BY date DESC
		 LIMIT ?`, format, limit)
	if err != nil {
		return nil, fmt.Errorf("bucketing downloads by %s: %w", period, err)
	}
	defer rows.Close()

	var result []*hardwire.PeriodCount
	for rows.Next() {
		var p hardwire.PeriodCount
		if err := rows.Scan(&p.Date, &p.Count, &p.Size); err != nil {
			return nil, fmt.Errorf("bucketing downloads by %s: %w", period, err)
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bucketing downloads by %s: %w", period, err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDownload(r rowScanner) (*hardwire.DownloadSession, error) {
	var (
		d        hardwire.DownloadSession
		status   string
		started  int64
		finished sql.NullInt64
	)
	if err := r.Scan(&d.ID, &d.TransactionID, &d.FilePath, &d.IPAddress, &status, &d.FileSize, &started, &finished); err != nil {
		return nil, err
	}
	d.Status = hardwire.DownloadStatus(status)
	d.StartedAt = unixTime(started)
	d.FinishedAt = nullUnix(finished)
	return &d, nil
}
