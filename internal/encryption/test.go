package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"hardwire/internal/hardwire"
)

// testHeader is prepended to data by TestEncryptor to make encrypted output
// clearly different from plaintext while remaining deterministic and reversible.
var testHeader = []byte("HWENC\x00\x00\x00")

// TestEncryptor is a simple, deterministic encryptor for testing.
// It writes a fixed 8-byte header followed by the passphrase length and the
// passphrase, then the plaintext. Decryption checks both and strips them.
// It provides no secrecy at all.
type TestEncryptor struct{}

var _ hardwire.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) EncryptWriter(w io.Writer, passphrase string) (io.WriteCloser, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	if _, err := w.Write(testHeader); err != nil {
		return nil, fmt.Errorf("writing test header: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%02d%s", len(passphrase), passphrase); err != nil {
		return nil, fmt.Errorf("writing passphrase marker: %w", err)
	}
	return nopWriteCloser{w}, nil
}

func (e *TestEncryptor) DecryptReader(r io.Reader, passphrase string) (io.Reader, error) {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return nil, errors.New("invalid test header")
	}

	marker := make([]byte, 2+len(passphrase))
	if _, err := io.ReadFull(r, marker); err != nil {
		return nil, fmt.Errorf("reading passphrase marker: %w", err)
	}
	if string(marker) != fmt.Sprintf("%02d%s", len(passphrase), passphrase) {
		return nil, errors.New("wrong passphrase")
	}
	return r, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
