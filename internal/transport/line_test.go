package transport

import (
	"strings"
	"testing"
)

func TestIsBeat(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"BEAT", true},
		{"  BEAT\t", true},
		{"BEAT\r", true},
		{"beat", false},
		{"BEATS", false},
		{"", false},
		{"\xff\xfeBEAT", false},
	}
	for _, tc := range cases {
		if got := IsBeat([]byte(tc.line)); got != tc.want {
			t.Errorf("IsBeat(%q)=%v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestLineFramer_SplitsAcrossWrites(t *testing.T) {
	var f LineFramer
	f.Write([]byte("BE"))
	if f.NextBeat() {
		t.Fatalf("partial line must not count as a beat")
	}
	f.Write([]byte("AT\r\nnoise\nBEAT\n"))

	if !f.NextBeat() {
		t.Fatalf("expected first beat")
	}
	if !f.NextBeat() {
		t.Fatalf("expected second beat after noise line")
	}
	if f.NextBeat() {
		t.Fatalf("expected no more beats")
	}
	st := f.Stats()
	if st.Lines != 3 || st.Noise != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestLineFramer_NextLineTrimsCR(t *testing.T) {
	var f LineFramer
	f.Write([]byte("hello\r\n"))
	line, ok := f.NextLine()
	if !ok || string(line) != "hello" {
		t.Fatalf("NextLine=%q,%v", line, ok)
	}
	if f.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", f.Buffered())
	}
}

func TestLineFramer_DropsOverlongLine(t *testing.T) {
	f := LineFramer{MaxLineLength: 16}
	f.Write([]byte(strings.Repeat("x", 32)))
	if f.Buffered() != 0 {
		t.Fatalf("expected overlong line to be dropped, %d bytes buffered", f.Buffered())
	}
	if f.Stats().Dropped != 1 {
		t.Fatalf("expected dropped=1, got %d", f.Stats().Dropped)
	}
	f.Write([]byte("BEAT\n"))
	if !f.NextBeat() {
		t.Fatalf("expected framer to recover after drop")
	}
}

func TestLineFramer_OverlongTailAfterCompleteLine(t *testing.T) {
	f := LineFramer{MaxLineLength: 16}
	f.Write([]byte("BEAT\n" + strings.Repeat("x", 20)))

	if f.Stats().Dropped != 1 {
		t.Fatalf("expected overlong tail to be dropped, stats %+v", f.Stats())
	}
	if f.Buffered() != len("BEAT\n") {
		t.Fatalf("expected only the complete line buffered, got %d bytes", f.Buffered())
	}
	if !f.NextBeat() {
		t.Fatalf("expected the complete line to survive the drop")
	}
}

func TestLineFramer_TailWithinLimitKept(t *testing.T) {
	f := LineFramer{MaxLineLength: 16}
	f.Write([]byte(strings.Repeat("n", 30) + "\n" + "BEA"))
	if f.Stats().Dropped != 0 {
		t.Fatalf("completed lines must not count against the limit, stats %+v", f.Stats())
	}
	f.Write([]byte("T\n"))
	if !f.NextBeat() {
		t.Fatalf("expected beat after long noise line")
	}
}

func TestLineFramer_FlushUnterminatedLine(t *testing.T) {
	var f LineFramer
	f.Write([]byte("noise\nBEAT\r"))
	if f.NextBeat() {
		t.Fatalf("unterminated line must wait for a newline")
	}
	if !f.Flush() {
		t.Fatalf("expected flushed tail to be a beat")
	}
	if f.Buffered() != 0 || f.Flush() {
		t.Fatalf("expected flush to empty the buffer")
	}

	f.Write([]byte("BEA"))
	if f.Flush() {
		t.Fatalf("partial token is not a beat")
	}
	if st := f.Stats(); st.Lines != 3 || st.Noise != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
