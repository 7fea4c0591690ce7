package streaming

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

type mapCache map[string]int64

func (m mapCache) CachedSize(path string) (int64, bool) {
	size, ok := m[path]
	return size, ok
}

func writeFile(t *testing.T, content string) (string, *os.File) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return path, f
}

func TestFileSize(t *testing.T) {
	path, f := writeFile(t, "0123456789")

	t.Run("cache hit", func(t *testing.T) {
		got, err := FileSize(mapCache{path: 42}, path, f)
		if err != nil {
			t.Fatalf("FileSize() error = %v", err)
		}
		if got != 42 {
			t.Errorf("FileSize() = %d, want cached 42", got)
		}
	})

	t.Run("cache miss falls back to stat", func(t *testing.T) {
		got, err := FileSize(mapCache{}, path, f)
		if err != nil {
			t.Fatalf("FileSize() error = %v", err)
		}
		if got != 10 {
			t.Errorf("FileSize() = %d, want 10", got)
		}
	})

	t.Run("nil cache", func(t *testing.T) {
		got, err := FileSize(nil, path, f)
		if err != nil {
			t.Fatalf("FileSize() error = %v", err)
		}
		if got != 10 {
			t.Errorf("FileSize() = %d, want 10", got)
		}
	})
}

func TestOpenWindow(t *testing.T) {
	_, f := writeFile(t, "0123456789")

	rc, err := OpenWindow(f, Resolve("bytes=3-5", 10))
	if err != nil {
		t.Fatalf("OpenWindow() error = %v", err)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "345" {
		t.Errorf("window = %q, want %q", got, "345")
	}
	if err := rc.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
