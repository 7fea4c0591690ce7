package encryption

import (
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"hardwire/internal/config"
	"hardwire/internal/hardwire"
)

// AgeEncryptor implements hardwire.Encryptor using age's scrypt-based
// passphrase encryption. The output is a standard age file, so a password
// protected archive can also be opened with `age -d`.
type AgeEncryptor struct {
	workFactor int
}

var _ hardwire.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor creates a new AgeEncryptor from configuration.
// A zero work factor keeps age's default.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{workFactor: cfg.ScryptWorkFactor}
}

// EncryptWriter returns a writer that age-encrypts into w for the passphrase.
func (e *AgeEncryptor) EncryptWriter(w io.Writer, passphrase string) (io.WriteCloser, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if e.workFactor > 0 {
		recipient.SetWorkFactor(e.workFactor)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	return encWriter, nil
}

// DecryptReader returns a reader over the plaintext of an age file encrypted
// for the passphrase. A wrong passphrase fails here, before any data is read.
func (e *AgeEncryptor) DecryptReader(r io.Reader, passphrase string) (io.Reader, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(r, identity)
	if err != nil {
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	return decReader, nil
}
