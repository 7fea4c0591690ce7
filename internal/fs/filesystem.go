// Package fs holds the filesystem access shared by the indexer, the archive
// builder and the publish path.
package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedType is returned for symlinks, devices, pipes and sockets.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrOutsideRoot is returned when a relative path escapes its root.
var ErrOutsideRoot = errors.New("path escapes root")

// Supported reports whether entries of this mode are served and archived.
// Only regular files and directories are.
func Supported(mode iofs.FileMode) bool {
	return mode.IsRegular() || mode.IsDir()
}

// FileStat is the metadata the indexer records per entry.
type FileStat struct {
	Size      int64
	IsDir     bool
	Mode      iofs.FileMode
	ModTime   time.Time
	BirthTime *time.Time // nil where the platform or filesystem has none
}

// Stat lstats path and rejects unsupported types.
func Stat(path string) (*FileStat, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	return statFromInfo(path, info)
}

func statFromInfo(path string, info iofs.FileInfo) (*FileStat, error) {
	if !Supported(info.Mode()) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, path, info.Mode().Type())
	}
	st := &FileStat{
		IsDir:     info.IsDir(),
		Mode:      info.Mode(),
		ModTime:   info.ModTime(),
		BirthTime: birthTime(path),
	}
	if !st.IsDir {
		st.Size = info.Size()
	}
	return st, nil
}

// ResolveUnder joins a slash-separated relative path onto root and rejects
// results that leave root.
func ResolveUnder(root, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	joined := filepath.Join(root, filepath.FromSlash(rel))
	back, err := filepath.Rel(root, joined)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return joined, nil
}

// File is a regular file found by CollectFiles.
type File struct {
	Path string // absolute or as given
	Name string // slash-separated name to use inside an archive
	Size int64
}

// CollectFiles lists the regular files under dir, skipping ignored and
// unsupported entries. Names are slash-separated and relative to dir.
func CollectFiles(dir string, ignore *IgnoreMatcher) ([]File, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	var files []File
	err = filepath.WalkDir(dir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		files = append(files, File{
			Path: p,
			Name: filepath.ToSlash(rel),
			Size: fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}

// StatFiles resolves an explicit file list. Every entry must be a regular
// file; its archive name is its basename, so two inputs may share a name.
func StatFiles(paths []string) ([]File, error) {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, p)
		}
		files = append(files, File{Path: p, Name: filepath.Base(p), Size: info.Size()})
	}
	return files, nil
}

// TotalSize sums the sizes of files.
func TotalSize(files []File) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

// SHA256File returns the hex SHA-256 of the file at path.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
