package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"hardwire/internal/hardwire"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It is useful for testing and is safe for concurrent use.
type MemoryVault struct {
	name     string
	archives map[string][]byte // key -> archive bytes
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		archives: make(map[string][]byte),
	}
}

func (m *MemoryVault) Name() string { return m.name }

// PutArchive stores the archive under key, replacing any previous archive.
func (m *MemoryVault) PutArchive(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read archive: %w", err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives[key] = data
	return "memory://" + m.name + "/" + key, nil
}

// GetArchive writes a stored archive to w.
func (m *MemoryVault) GetArchive(key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.archives[key]
	if !ok {
		return fmt.Errorf("archive %s: %w", key, hardwire.ErrNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *MemoryVault) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.archives))
	for k := range m.archives {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

var _ hardwire.Vault = (*MemoryVault)(nil)
