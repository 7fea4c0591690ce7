package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteTree creates files under root. Keys are slash-separated relative
// paths; a key ending in "/" creates an empty directory.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			if err := os.MkdirAll(path, 0o755); err != nil {
				t.Fatalf("creating dir %s: %v", rel, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating parent of %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", rel, err)
		}
	}
}

// NewTree creates a temporary directory populated by WriteTree and returns its path.
func NewTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	WriteTree(t, root, files)
	return root
}
