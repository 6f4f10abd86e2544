// Package transport turns byte streams from the sensor into beat signals.
//
// Every source speaks the same line protocol: one message per line, and a
// line whose trimmed content is exactly BEAT is one beat candidate. Any
// other line, including bytes that are not valid UTF-8, is noise and is
// dropped without error.
package transport

import (
	"bytes"
	"unicode/utf8"
)

// BeatToken is the line content that signals one beat.
const BeatToken = "BEAT"

// DefaultMaxLineLength bounds how many bytes the framer buffers while
// waiting for a newline. A longer run without a newline is discarded.
const DefaultMaxLineLength = 4096

// IsBeat reports whether line (without its terminator) is a beat line.
func IsBeat(line []byte) bool {
	if !utf8.Valid(line) {
		return false
	}
	return string(bytes.TrimSpace(line)) == BeatToken
}

// LineFramer accumulates raw bytes and hands out complete lines.
// The zero value is ready to use.
type LineFramer struct {
	buf []byte

	// MaxLineLength overrides DefaultMaxLineLength when > 0.
	MaxLineLength int

	lines   uint64
	noise   uint64
	dropped uint64
}

// Write appends p to the pending buffer. It never fails.
func (f *LineFramer) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	limit := f.MaxLineLength
	if limit <= 0 {
		limit = DefaultMaxLineLength
	}
	// Only the unterminated tail counts against the limit.
	tail := len(f.buf) - (bytes.LastIndexByte(f.buf, '\n') + 1)
	if tail > limit {
		f.buf = f.buf[:len(f.buf)-tail]
		f.dropped++
	}
	return len(p), nil
}

// NextLine pops the oldest complete line, without its "\n" and with any
// trailing "\r" removed.
func (f *LineFramer) NextLine() ([]byte, bool) {
	i := bytes.IndexByte(f.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line := bytes.TrimSuffix(f.buf[:i], []byte{'\r'})
	out := make([]byte, len(line))
	copy(out, line)
	f.buf = f.buf[i+1:]
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	}
	f.lines++
	return out, true
}

// NextBeat consumes buffered lines until it finds a beat line. It returns
// true when one was consumed; lines after it stay buffered for the next
// call, so at most one beat is reported per call.
func (f *LineFramer) NextBeat() bool {
	for {
		line, ok := f.NextLine()
		if !ok {
			return false
		}
		if IsBeat(line) {
			return true
		}
		f.noise++
	}
}

// Flush ends the stream: a buffered tail without "\n" is taken as the
// final line. It reports whether that line was a beat. Call it only after
// NextBeat returned false.
func (f *LineFramer) Flush() bool {
	if len(f.buf) == 0 {
		return false
	}
	line := bytes.TrimSuffix(f.buf, []byte{'\r'})
	beat := IsBeat(line)
	f.buf = f.buf[:0:0]
	f.lines++
	if !beat {
		f.noise++
	}
	return beat
}

// Buffered returns the number of bytes waiting for a newline.
func (f *LineFramer) Buffered() int { return len(f.buf) }

// FramerStats counts what a framer has seen.
type FramerStats struct {
	Lines   uint64 `json:"lines"`
	Noise   uint64 `json:"noise"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns line counters.
func (f *LineFramer) Stats() FramerStats {
	return FramerStats{Lines: f.lines, Noise: f.noise, Dropped: f.dropped}
}
