// Package share publishes server-side files under share links.
package share

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	hwfs "hardwire/internal/fs"
	"hardwire/internal/hardwire"
)

// NeverExpires marks a link without expiration.
const NeverExpires int64 = -1

// ErrInvalidPath is returned for paths that cannot be published.
var ErrInvalidPath = errors.New("invalid share path")

// Service creates share links and resolves the files behind them.
type Service struct {
	store  hardwire.ShareStore
	root   string // base for relative paths
	clock  hardwire.Clock
	idgen  hardwire.IDGenerator
	logger hardwire.Logger
}

// NewService creates a Service. Relative paths given to Publish are
// resolved under root.
func NewService(store hardwire.ShareStore, root string, clock hardwire.Clock, idgen hardwire.IDGenerator, logger hardwire.Logger) *Service {
	return &Service{store: store, root: root, clock: clock, idgen: idgen, logger: logger}
}

// Publish records paths under a new share link. ttl <= 0 creates a link that
// never expires.
func (s *Service) Publish(ctx context.Context, paths []string, ttl time.Duration) (*hardwire.ShareLink, []*hardwire.SharedFile, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("%w: no files given", ErrInvalidPath)
	}

	files := make([]*hardwire.SharedFile, 0, len(paths))
	for _, raw := range paths {
		path, err := s.resolve(raw)
		if err != nil {
			return nil, nil, err
		}
		st, err := hwfs.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("publishing %s: %w", raw, hardwire.ErrNotFound)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("publishing %s: %w", raw, err)
		}
		if st.IsDir {
			return nil, nil, fmt.Errorf("%w: %s is a directory", ErrInvalidPath, raw)
		}
		sum, err := hwfs.SHA256File(path)
		if err != nil {
			return nil, nil, fmt.Errorf("publishing %s: %w", raw, err)
		}
		files = append(files, &hardwire.SharedFile{Path: path, SHA256: sum, FileSize: st.Size})
	}

	now := s.clock.Now()
	link := &hardwire.ShareLink{ID: s.idgen.New(), CreatedAt: now, Expiration: NeverExpires}
	if ttl > 0 {
		link.Expiration = now.Add(ttl).Unix()
	}
	if err := s.store.CreateShare(ctx, link, files); err != nil {
		return nil, nil, fmt.Errorf("creating share: %w", err)
	}
	s.logger.Info("share created", "share_id", link.ID, "files", len(files))
	return link, files, nil
}

// resolve rejects NUL bytes and ".." components. Relative paths are joined
// onto the service root.
func (s *Service) resolve(raw string) (string, error) {
	if raw == "" || strings.ContainsRune(raw, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	for _, part := range strings.Split(filepath.ToSlash(raw), "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
		}
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw), nil
	}
	if s.root == "" {
		return "", fmt.Errorf("%w: relative path %q without a share root", ErrInvalidPath, raw)
	}
	path, err := hwfs.ResolveUnder(s.root, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return path, nil
}

// Files returns the files of a live share link.
func (s *Service) Files(ctx context.Context, shareID string) ([]*hardwire.SharedFile, error) {
	if err := s.checkLink(ctx, shareID); err != nil {
		return nil, err
	}
	return s.store.ListSharedFiles(ctx, shareID)
}

// File returns one file of a live share link.
func (s *Service) File(ctx context.Context, shareID string, fileID int64) (*hardwire.SharedFile, error) {
	if err := s.checkLink(ctx, shareID); err != nil {
		return nil, err
	}
	return s.store.FindSharedFile(ctx, shareID, fileID)
}

func (s *Service) checkLink(ctx context.Context, shareID string) error {
	link, err := s.store.FindShareLink(ctx, shareID)
	if err != nil {
		return err
	}
	if link.Expired(s.clock.Now()) {
		return fmt.Errorf("share %s: %w", shareID, hardwire.ErrShareExpired)
	}
	return nil
}

// URL returns the public address of a share link.
func URL(publicURL, shareID string) string {
	return strings.TrimRight(publicURL, "/") + "/s/" + shareID
}
