package hardwire

import (
	"context"
	"io"
)

// Vault is a publication backend for finished archives.
// Operations stream through io.Reader so large archives are never buffered whole.
type Vault interface {
	// Name returns the configured vault name.
	Name() string

	// PutArchive stores an archive under key. size is the number of bytes
	// that will be read from r. It returns a backend-specific location.
	PutArchive(ctx context.Context, key string, r io.Reader, size int64) (string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
