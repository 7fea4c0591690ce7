package testutil

import (
	"hardwire/internal/encryption"
	"hardwire/internal/hardwire"
)

// NewTestEncryptor returns the cheap, inspectable encryptor used in tests
// instead of age.
func NewTestEncryptor() hardwire.Encryptor {
	return encryption.NewTestEncryptor()
}
