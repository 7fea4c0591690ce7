package hardwire

import "io"

// Encryptor wraps streams with passphrase-based encryption. It is used for
// password-protected archives; the passphrase never touches disk.
type Encryptor interface {
	// EncryptWriter returns a writer that encrypts everything written to it
	// into w. The returned writer must be closed to flush the final block.
	EncryptWriter(w io.Writer, passphrase string) (io.WriteCloser, error)

	// DecryptReader returns a reader yielding the plaintext of r.
	DecryptReader(r io.Reader, passphrase string) (io.Reader, error)
}
