package streaming

import (
	"fmt"
	"io"
	"os"
)

// SizeCache answers file size lookups without touching the filesystem.
type SizeCache interface {
	CachedSize(path string) (int64, bool)
}

// FileSize returns the size of the open file at path, preferring cache and
// falling back to a stat of f on a miss. cache may be nil.
func FileSize(cache SizeCache, path string, f *os.File) (int64, error) {
	if cache != nil {
		if size, ok := cache.CachedSize(path); ok {
			return size, nil
		}
	}
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// OpenWindow positions f at the start of w. The returned
// reader yields exactly w.Length() bytes and closes the file on Close.
func OpenWindow(f *os.File, w Window) (io.ReadCloser, error) {
	if _, err := f.Seek(w.Start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to %d: %w", w.Start, err)
	}
	return &limitedFile{Reader: io.LimitReader(f, w.Length()), f: f}, nil
}

type limitedFile struct {
	io.Reader
	f *os.File
}

func (l *limitedFile) Close() error {
	return l.f.Close()
}
