package progress

import (
	"io"

	"hardwire/internal/hardwire"
)

// StreamInfo identifies the download a Stream reports progress for.
type StreamInfo struct {
	FilePath      string
	TransactionID string
	IPAddress     string
	FileSize      int64 // size of the whole file, not the requested range
	RangeStart    int64
}

// Stream counts the bytes read through it and publishes one event per read
// that returned data. Publishing never fails a read.
type Stream struct {
	r    io.Reader
	pub  Publisher
	info StreamInfo
	read int64
}

// NewStream wraps r. Events go to pub, which may be nil to disable reporting.
func NewStream(r io.Reader, pub Publisher, info StreamInfo) *Stream {
	return &Stream{r: r, pub: pub, info: info}
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.read += int64(n)
		if s.pub != nil {
			_ = s.pub.Publish(hardwire.ProgressEvent{
				FilePath:      s.info.FilePath,
				TransactionID: s.info.TransactionID,
				IPAddress:     s.info.IPAddress,
				ChunkBytes:    int64(n),
				FileSize:      s.info.FileSize,
				BytesRead:     s.read,
				RangeStart:    s.info.RangeStart,
			})
		}
	}
	return n, err
}

// BytesRead returns the cumulative number of bytes read so far.
func (s *Stream) BytesRead() int64 {
	return s.read
}

// Close closes the wrapped reader if it is an io.Closer.
func (s *Stream) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ io.ReadCloser = (*Stream)(nil)
