package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hardwire/internal/hardwire"
)

func (s *SQLiteDatabase) CreateShare(ctx context.Context, link *hardwire.ShareLink, files []*hardwire.SharedFile) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO share_links (id, expiration, created_at) VALUES (?, ?, ?)`,
			link.ID, link.Expiration, link.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("inserting share link %s: %w", link.ID, err)
		}

		for _, f := range files {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO files (sha256, path, file_size) VALUES (?, ?, ?)`,
				f.SHA256, f.Path, f.FileSize)
			if err != nil {
				return fmt.Errorf("inserting file %s: %w", f.Path, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("inserting file %s: %w", f.Path, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO share_link_files (share_link_id, file_id) VALUES (?, ?)`,
				link.ID, id); err != nil {
				return fmt.Errorf("linking file %s: %w", f.Path, err)
			}
			f.ID = id
		}
		return nil
	})
}

func (s *SQLiteDatabase) FindShareLink(ctx context.Context, shareID string) (*hardwire.ShareLink, error) {
	var (
		link    hardwire.ShareLink
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, expiration, created_at FROM share_links WHERE id = ?`, shareID,
	).Scan(&link.ID, &link.Expiration, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hardwire.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding share link %s: %w", shareID, err)
	}
	link.CreatedAt = unixTime(created)
	return &link, nil
}

func (s *SQLiteDatabase) FindSharedFile(ctx context.Context, shareID string, fileID int64) (*hardwire.SharedFile, error) {
	var f hardwire.SharedFile
	err := s.db.QueryRowContext(ctx,
		`SELECT files.id, files.path, files.sha256, files.file_size
		 FROM files JOIN share_link_files ON share_link_files.file_id = files.id
		 WHERE share_link_files.share_link_id = ? AND files.id = ?`,
		shareID, fileID,
	).Scan(&f.ID, &f.Path, &f.SHA256, &f.FileSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hardwire.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding file %d of share %s: %w", fileID, shareID, err)
	}
	return &f, nil
}

func (s *SQLiteDatabase) ListSharedFiles(ctx context.Context, shareID string) ([]*hardwire.SharedFile, error) {
	if _, err := s.FindShareLink(ctx, shareID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT files.id, files.path, files.sha256, files.file_size
		 FROM files JOIN share_link_files ON share_link_files.file_id = files.id
		 WHERE share_link_files.share_link_id = ?
		 ORDER BY files.id`, shareID)
	if err != nil {
		return nil, fmt.Errorf("listing files of share %s: %w", shareID, err)
	}
	defer rows.Close()

	var result []*hardwire.SharedFile
	for rows.Next() {
		var f hardwire.SharedFile
		if err := rows.Scan(&f.ID, &f.Path, &f.SHA256, &f.FileSize); err != nil {
			return nil, fmt.Errorf("listing files of share %s: %w", shareID, err)
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing files of share %s: %w", shareID, err)
	}
	return result, nil
}
