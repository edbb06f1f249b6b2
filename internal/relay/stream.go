package relay

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// ChunkSize is the largest read handed to the engine in one piece.
const ChunkSize = 1024

type chunk struct {
	data []byte
	err  error
}

// Stream is one side of a relay. A single reader goroutine fills a private
// scratch chunk and lends it to the engine; it does not read again until the
// engine releases the chunk. A Stream may outlive a session (standard input
// is shared by every connection a scan makes) or be closed with it.
type Stream struct {
	name   string
	w      io.Writer
	closer io.Closer

	chunks  chan chunk
	release chan struct{}
	done    chan struct{}

	startOnce sync.Once
	r         io.Reader
	stopOnce  sync.Once
}

// NewStream wraps a reader and writer pair. r may be nil for a write-only
// side; c, if non-nil, is closed by Close.
func NewStream(name string, r io.Reader, w io.Writer, c io.Closer) *Stream {
	return &Stream{
		name:    name,
		r:       r,
		w:       w,
		closer:  c,
		chunks:  make(chan chunk),
		release: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// NewConnStream wraps a connection that is both read from and written to.
func NewConnStream(name string, rwc io.ReadWriteCloser) *Stream {
	return NewStream(name, rwc, rwc, rwc)
}

func (s *Stream) String() string { return s.name }

func (s *Stream) readable() bool { return s.r != nil }

func (s *Stream) start() {
	if s.r == nil {
		return
	}
	s.startOnce.Do(func() { go s.pump() })
}

func (s *Stream) pump() {
	buf := make([]byte, ChunkSize)
	for {
		n, err := s.r.Read(buf)
		if n == 0 && err == nil {
			continue
		}
		select {
		case s.chunks <- chunk{data: buf[:n], err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
		select {
		case <-s.release:
		case <-s.done:
			return
		}
	}
}

// write sends p, bounding the call by slice when the writer supports write
// deadlines. A deadline hit is reported as a partial write, not an error.
func (s *Stream) write(p []byte, slice time.Duration) (int, bool, error) {
	dl, ok := s.w.(interface{ SetWriteDeadline(time.Time) error })
	if ok && slice > 0 {
		if err := dl.SetWriteDeadline(time.Now().Add(slice)); err != nil {
			ok = false
		}
	}
	n, err := s.w.Write(p)
	if ok && slice > 0 {
		_ = dl.SetWriteDeadline(time.Time{})
	}
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, true, nil
	}
	return n, false, err
}

// Close stops the reader goroutine and closes the underlying closer.
func (s *Stream) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
