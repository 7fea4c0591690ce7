package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-root file listing extra ignore patterns.
const IgnoreFileName = ".hwignore"

// defaultIgnorePatterns are always applied on top of configured ones.
var defaultIgnorePatterns = []string{IgnoreFileName}

type ignorePattern struct {
	pattern   string
	matchPath bool // match the relative path instead of the basename
	dirOnly   bool // trailing "/" in the raw pattern
}

// IgnoreMatcher decides which entries of a shared tree are hidden.
// Patterns without '/' match the basename only; patterns containing '/'
// match the slash-separated path relative to the root. A trailing '/'
// restricts a pattern to directories.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher builds a matcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		p := ignorePattern{}
		if strings.HasSuffix(raw, "/") {
			p.dirOnly = true
			raw = strings.TrimRight(raw, "/")
		}
		p.pattern = raw
		p.matchPath = strings.Contains(raw, "/")
		patterns = append(patterns, p)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// LoadIgnoreMatcher combines the default patterns, extra, and the patterns
// of root's ignore file if it has one.
func LoadIgnoreMatcher(root string, extra []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	raw := make([]string, 0, len(defaultIgnorePatterns)+len(extra)+len(fromFile))
	raw = append(raw, defaultIgnorePatterns...)
	raw = append(raw, extra...)
	raw = append(raw, fromFile...)
	return NewIgnoreMatcher(raw), nil
}

// Match reports whether the entry at relativePath should be skipped.
func (m *IgnoreMatcher) Match(relativePath string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 || relativePath == "" {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		target := basename
		if p.matchPath {
			target = normalized
		}
		matched, err := filepath.Match(p.pattern, target)
		if err != nil {
			continue // malformed pattern
		}
		if matched {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns its raw lines.
// A missing file yields nil and no error.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
