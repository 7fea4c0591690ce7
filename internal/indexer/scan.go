package indexer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	hwfs "hardwire/internal/fs"
	"hardwire/internal/hardwire"
)

// Snapshot is the result of one scan: the entry tree and a flat map from
// absolute file path to size. Both are built together and never mutated
// once returned.
type Snapshot struct {
	Tree  []hardwire.IndexEntry
	Sizes map[string]int64
}

// Scan walks root recursively. Ignored entries and unsupported file types
// are left out; entries that vanish during the walk are skipped. Any other
// error aborts the scan.
func Scan(root string, ignore *hwfs.IgnoreMatcher) (*Snapshot, error) {
	snap := &Snapshot{Sizes: make(map[string]int64)}
	tree, err := scanDir(root, root, ignore, snap.Sizes)
	if err != nil {
		return nil, err
	}
	snap.Tree = tree
	return snap, nil
}

func scanDir(root, dir string, ignore *hwfs.IgnoreMatcher, sizes map[string]int64) ([]hardwire.IndexEntry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	entries := make([]hardwire.IndexEntry, 0, len(dirents))
	for _, d := range dirents {
		path := filepath.Join(dir, d.Name())
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil, fmt.Errorf("relative path of %s: %w", path, err)
		}
		if ignore.Match(rel, d.IsDir()) {
			continue
		}

		st, err := hwfs.Stat(path)
		if errors.Is(err, hwfs.ErrUnsupportedType) || errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		entry := hardwire.IndexEntry{
			Name:         d.Name(),
			RelativePath: filepath.ToSlash(rel),
			IsDir:        st.IsDir,
			CreatedAt:    st.BirthTime,
		}
		if !st.ModTime.IsZero() {
			mod := st.ModTime
			entry.ModifiedAt = &mod
		}

		if st.IsDir {
			children, err := scanDir(root, path, ignore, sizes)
			if err != nil {
				return nil, err
			}
			entry.Children = children
		} else {
			size := st.Size
			entry.Size = &size
			sizes[path] = size
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CountFiles returns the number of files in a tree.
func CountFiles(entries []hardwire.IndexEntry) int {
	n := 0
	for _, e := range entries {
		if e.IsDir {
			n += CountFiles(e.Children)
		} else {
			n++
		}
	}
	return n
}
