package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrClosed is returned by Poll after the underlying stream ended.
var ErrClosed = errors.New("transport: source closed")

// AvailableReader reads whatever bytes are available right now. It must
// not block: (0, nil) means nothing is waiting.
type AvailableReader interface {
	ReadAvailable(p []byte) (int, error)
}

// LineSource adapts a non-blocking byte reader to a beat source.
type LineSource struct {
	r      AvailableReader
	framer LineFramer
	buf    []byte
}

// NewLineSource wraps r.
func NewLineSource(r AvailableReader) *LineSource {
	return &LineSource{r: r, buf: make([]byte, 512)}
}

// Poll reports one beat if a beat line is buffered or arrives with the
// bytes available now.
func (s *LineSource) Poll() (bool, error) {
	if s.framer.NextBeat() {
		return true, nil
	}
	n, err := s.r.ReadAvailable(s.buf)
	if n > 0 {
		s.framer.Write(s.buf[:n])
	}
	if s.framer.NextBeat() {
		return true, nil
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			if s.framer.Flush() {
				return true, nil
			}
			return false, ErrClosed
		}
		return false, err
	}
	return false, nil
}

// Stats returns the framer counters.
func (s *LineSource) Stats() FramerStats { return s.framer.Stats() }

// ReaderSource reads a blocking io.Reader (stdin, a pipe, a socket) in a
// dedicated goroutine and exposes its beat lines through a non-blocking
// Poll.
type ReaderSource struct {
	beats   chan struct{}
	readErr chan error
	err     error
}

// NewReaderSource starts reading r. The goroutine exits when r returns an
// error (io.EOF included).
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{
		beats:   make(chan struct{}, 64),
		readErr: make(chan error, 1),
	}
	go readBeats(r, s.beats, s.readErr)
	return s
}

// readBeats runs in its own goroutine and blocks on reads.
func readBeats(r io.Reader, beats chan<- struct{}, readErr chan<- error) {
	var framer LineFramer
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			framer.Write(buf[:n])
			for framer.NextBeat() {
				beats <- struct{}{}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && framer.Flush() {
				beats <- struct{}{}
			}
			readErr <- err
			return
		}
	}
}

// Poll implements pacer.Source. Beats already read are delivered before
// a read error is reported.
func (s *ReaderSource) Poll() (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	select {
	case <-s.beats:
		return true, nil
	default:
	}
	select {
	case err := <-s.readErr:
		// Drain beats that raced with the error.
		select {
		case <-s.beats:
			s.readErr <- err
			return true, nil
		default:
		}
		if errors.Is(err, io.EOF) {
			s.err = ErrClosed
		} else {
			s.err = fmt.Errorf("read beats: %w", err)
		}
		return false, s.err
	default:
		return false, nil
	}
}

// ChanSource is a beat source fed by other goroutines (IPC, NATS).
type ChanSource struct {
	beats chan struct{}

	mu      sync.Mutex
	dropped uint64
}

// NewChanSource creates a source that buffers up to size pending beats.
func NewChanSource(size int) *ChanSource {
	if size <= 0 {
		size = 1
	}
	return &ChanSource{beats: make(chan struct{}, size)}
}

// Signal queues one beat without blocking. It returns false if the buffer
// is full and the beat was dropped.
func (s *ChanSource) Signal() bool {
	select {
	case s.beats <- struct{}{}:
		return true
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return false
	}
}

// Dropped returns how many beats Signal discarded.
func (s *ChanSource) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Poll implements pacer.Source.
func (s *ChanSource) Poll() (bool, error) {
	select {
	case <-s.beats:
		return true, nil
	default:
		return false, nil
	}
}

// Poller is the subset of pacer.Source used by Merge.
type Poller interface {
	Poll() (bool, error)
}

// Merged polls several sources in order and reports the first beat.
type Merged []Poller

// Merge combines sources. Nil entries are skipped.
func Merge(sources ...Poller) Merged {
	out := make(Merged, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Poll implements pacer.Source. At most one beat is reported per call.
func (m Merged) Poll() (bool, error) {
	for _, s := range m {
		ok, err := s.Poll()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
