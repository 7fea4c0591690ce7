package progress

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"hardwire/internal/hardwire"
)

type recordingPublisher struct {
	events []hardwire.ProgressEvent
	err    error
}

func (p *recordingPublisher) Publish(ev hardwire.ProgressEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func TestStream_PublishesPerRead(t *testing.T) {
	pub := &recordingPublisher{}
	info := StreamInfo{FilePath: "/srv/a.bin", TransactionID: "tx", IPAddress: "10.0.0.9", FileSize: 1000, RangeStart: 900}
	src := iotest.OneByteReader(strings.NewReader("0123456789"))

	s := NewStream(src, pub, info)
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "0123456789" {
		t.Errorf("data = %q", got)
	}

	if len(pub.events) != 10 {
		t.Fatalf("published %d events, want 10", len(pub.events))
	}
	last := pub.events[9]
	if last.BytesRead != 10 || last.ChunkBytes != 1 {
		t.Errorf("last event = %+v, want BytesRead 10 ChunkBytes 1", last)
	}
	if last.RangeStart != 900 || last.FileSize != 1000 || last.IPAddress != "10.0.0.9" {
		t.Errorf("last event lost stream info: %+v", last)
	}
	if !last.Completes() {
		t.Error("last event of a tail range should complete the file")
	}
	if s.BytesRead() != 10 {
		t.Errorf("BytesRead() = %d, want 10", s.BytesRead())
	}
}

func TestStream_PublishErrorsDoNotFailReads(t *testing.T) {
	pub := &recordingPublisher{err: hardwire.ErrBusClosed}
	s := NewStream(bytes.NewReader([]byte("payload")), pub, StreamInfo{FileSize: 7})

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("data = %q, want %q", got, "payload")
	}
}

func TestStream_ReadErrorPassesThrough(t *testing.T) {
	boom := errors.New("disk gone")
	pub := &recordingPublisher{}
	s := NewStream(iotest.ErrReader(boom), pub, StreamInfo{})

	if _, err := s.Read(make([]byte, 8)); !errors.Is(err, boom) {
		t.Errorf("Read() error = %v, want %v", err, boom)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events for a failed read, want 0", len(pub.events))
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestStream_CloseForwards(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("x")}
	s := NewStream(src, nil, StreamInfo{})

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !src.closed {
		t.Error("Close() not forwarded to wrapped reader")
	}
	if err := NewStream(strings.NewReader("x"), nil, StreamInfo{}).Close(); err != nil {
		t.Errorf("Close() on plain reader error = %v", err)
	}
}

func TestTransactionID(t *testing.T) {
	a := TransactionID("share1", 7, "10.0.0.1")
	if a != TransactionID("share1", 7, "10.0.0.1") {
		t.Error("TransactionID() is not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("len(TransactionID()) = %d, want 64", len(a))
	}
	others := []string{
		TransactionID("share2", 7, "10.0.0.1"),
		TransactionID("share1", 8, "10.0.0.1"),
		TransactionID("share1", 7, "10.0.0.2"),
		TransactionID("share1", 71, "0.0.0.1"),
	}
	for _, o := range others {
		if o == a {
			t.Errorf("TransactionID() collision for distinct inputs: %s", o)
		}
	}
}
