package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"hardwire/internal/hardwire"
)

// FileSystemVault stores archives as files under a root directory:
//
//	<root>/
//	  archives/
//	    <key>      (slash-separated keys become subdirectories)
type FileSystemVault struct {
	name       string
	root       string
	archiveDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	archiveDir := filepath.Join(root, "archives")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &FileSystemVault{
		name:       name,
		root:       root,
		archiveDir: archiveDir,
	}, nil
}

func (v *FileSystemVault) Name() string { return v.name }

// PutArchive copies the archive to <root>/archives/<key> and returns the
// resulting path. The write is atomic.
func (v *FileSystemVault) PutArchive(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	destPath := filepath.Join(v.archiveDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := v.writeFile(ctx, destPath, r, size); err != nil {
		return "", err
	}
	return destPath, nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{v.root, v.archiveDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to the specified path using temp file + rename.
func (v *FileSystemVault) writeFile(ctx context.Context, destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

var _ hardwire.Vault = (*FileSystemVault)(nil)
