// Package archive writes zip archives, optionally wrapped in passphrase
// encryption.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	hwfs "hardwire/internal/fs"
	"hardwire/internal/hardwire"
)

const (
	ZipExt       = ".zip"
	EncryptedExt = ".zip.age"
)

// OutputPath resolves out against baseDir when relative and gives it the
// extension matching the encryption mode.
func OutputPath(baseDir, out string, encrypted bool) string {
	if !filepath.IsAbs(out) && baseDir != "" {
		out = filepath.Join(baseDir, out)
	}
	out = strings.TrimSuffix(out, EncryptedExt)
	out = strings.TrimSuffix(out, ZipExt)
	if encrypted {
		return out + EncryptedExt
	}
	return out + ZipExt
}

// Counter tracks how many input bytes have been compressed. It is shared
// between the builder goroutine and progress reporters.
type Counter struct {
	total int64
	done  atomic.Int64
}

// NewCounter creates a counter for a job of total input bytes.
func NewCounter(total int64) *Counter {
	return &Counter{total: total}
}

func (c *Counter) add(n int64) {
	c.done.Add(n)
}

// Done returns the number of bytes processed so far.
func (c *Counter) Done() int64 {
	return c.done.Load()
}

// Percent returns progress in [0, 99]. 100 is reserved for a finished job.
func (c *Counter) Percent() int {
	if c.total <= 0 {
		return 0
	}
	p := int(c.Done() * 100 / c.total)
	return min(max(p, 0), 99)
}

// Request describes one archive to build.
type Request struct {
	Files      []hwfs.File
	OutputPath string // final path, extension included
	Password   string // empty for a plain zip
}

// Result describes a finished archive.
type Result struct {
	Path      string
	Size      int64
	Entries   int
	Encrypted bool
}

// Builder writes archives.
type Builder struct {
	encryptor hardwire.Encryptor
}

// NewBuilder creates a Builder. encryptor is only used for requests with a
// password and may be nil otherwise.
func NewBuilder(encryptor hardwire.Encryptor) *Builder {
	return &Builder{encryptor: encryptor}
}

// Build writes req to a temporary file next to the output and renames it
// into place on success. On failure the temporary file is removed.
func (b *Builder) Build(ctx context.Context, req Request, counter *Counter) (*Result, error) {
	if req.Password != "" && b.encryptor == nil {
		return nil, errors.New("archive password given but no encryptor configured")
	}
	if err := checkNames(req.Files); err != nil {
		return nil, err
	}
	if counter == nil {
		counter = NewCounter(hwfs.TotalSize(req.Files))
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	tmp := req.OutputPath + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	if err := b.write(ctx, out, req, counter); err != nil {
		out.Close()
		os.Remove(tmp)
		return nil, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("syncing archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmp, req.OutputPath); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("moving archive into place: %w", err)
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	return &Result{
		Path:      req.OutputPath,
		Size:      info.Size(),
		Entries:   len(req.Files),
		Encrypted: req.Password != "",
	}, nil
}

// checkNames rejects requests whose entries would overwrite each other on
// extraction.
func checkNames(files []hwfs.File) error {
	seen := make(map[string]string, len(files))
	for _, f := range files {
		if prev, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: %s and %s would both be stored as %q",
				hardwire.ErrInvalidArchiveInput, prev, f.Path, f.Name)
		}
		seen[f.Name] = f.Path
	}
	return nil
}

func (b *Builder) write(ctx context.Context, dst io.Writer, req Request, counter *Counter) error {
	var sink io.WriteCloser = nopCloser{dst}
	if req.Password != "" {
		enc, err := b.encryptor.EncryptWriter(dst, req.Password)
		if err != nil {
			return fmt.Errorf("starting encryption: %w", err)
		}
		sink = enc
	}

	zw := zip.NewWriter(sink)
	for _, f := range req.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(ctx, zw, f, counter); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing zip: %w", err)
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("finishing encryption: %w", err)
	}
	return nil
}

func addFile(ctx context.Context, zw *zip.Writer, f hwfs.File, counter *Counter) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.Path, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", f.Path, err)
	}
	hdr.Name = f.Name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", f.Name, err)
	}
	if _, err := io.Copy(w, &countingReader{ctx: ctx, r: src, counter: counter}); err != nil {
		return fmt.Errorf("compressing %s: %w", f.Name, err)
	}
	return nil
}

type countingReader struct {
	ctx     context.Context
	r       io.Reader
	counter *Counter
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	c.counter.add(int64(n))
	return n, err
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
