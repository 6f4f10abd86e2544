package display

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"breathpacer/internal/beat"
)

func countCells(grid [][]cellKind, k cellKind) int {
	n := 0
	for _, row := range grid {
		for _, c := range row {
			if c == k {
				n++
			}
		}
	}
	return n
}

func TestRingGrid_RingAtRadius(t *testing.T) {
	// 41x21: center (20,10), 9.25 cells per unit radius.
	f := beat.Frame{Radius: 0.5, Position: 2, BeatsPerBreath: 6}
	grid := ringGrid(41, 21, f)
	if len(grid) != 21 || len(grid[0]) != 41 {
		t.Fatalf("unexpected grid size %dx%d", len(grid[0]), len(grid))
	}
	if grid[10][20] != cellEmpty {
		t.Fatalf("expected empty center")
	}
	if grid[5][20] != cellRing {
		t.Fatalf("expected ring cell above center at radius 0.5")
	}
	if countCells(grid, cellAccent) != 0 {
		t.Fatalf("expected no accent cells without a beat")
	}
}

func TestRingGrid_AccentOnJustBeat(t *testing.T) {
	f := beat.Frame{Radius: 0.5, Position: 2, BeatsPerBreath: 6, JustBeat: true}
	grid := ringGrid(41, 21, f)
	if countCells(grid, cellRing) != 0 {
		t.Fatalf("expected only accent cells on beat frame")
	}
	if grid[5][20] != cellAccent {
		t.Fatalf("expected accent ring near radius 0.55")
	}
}

func TestRingGrid_MarksDrawnAtTheirRadius(t *testing.T) {
	// Mark (0.5, 3) of 6 maps to radius 1.
	f := beat.Frame{
		Radius:         0.1,
		Position:       4,
		BeatsPerBreath: 6,
		Marks:          []beat.Mark{{Progress: 0.5, Position: 3}},
	}
	grid := ringGrid(41, 21, f)
	if grid[1][20] != cellMark {
		t.Fatalf("expected mark cell at radius 1")
	}
}

func TestRenderGrid_LineCount(t *testing.T) {
	out := renderGrid(ringGrid(20, 7, beat.Frame{Radius: 0.5}))
	if got := strings.Count(out, "\n") + 1; got != 7 {
		t.Fatalf("expected 7 lines, got %d", got)
	}
}

func TestModel_UpdateTracksFramesAndBeats(t *testing.T) {
	m := NewModel("/dev/ttyACM0")
	if !strings.Contains(m.View(), "waiting for /dev/ttyACM0") {
		t.Fatalf("expected waiting view before first frame")
	}

	m.Update(tea.WindowSizeMsg{Width: 40, Height: 12})
	m.Update(frameMsg{frame: beat.Frame{Position: 3, BeatsPerBreath: 6, Progress: 0.4, Radius: 0.8}})
	m.Update(broadcastMsg{b: beat.BeatAccepted{BPM: 61.5, Period: 0.976, DefaultPeriod: true}})
	m.Update(broadcastMsg{b: beat.BeatRejected{}})
	m.Update(broadcastMsg{b: beat.CycleCompleted{Cycles: 4}})

	footer := m.renderFooter()
	for _, want := range []string{"beat 3/6", "bpm 61.5 (default)", "breaths 4", "rejected 1"} {
		if !strings.Contains(footer, want) {
			t.Fatalf("footer %q missing %q", footer, want)
		}
	}
	if got := strings.Count(m.View(), "\n") + 1; got != 12 {
		t.Fatalf("expected view to fill 12 lines, got %d", got)
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := NewModel("stdin")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil || !m.quit {
		t.Fatalf("expected quit command on q")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestTUIDisplay_RenderKeepsLatestFrame(t *testing.T) {
	d := NewTUIDisplay("test")
	for i := 1; i <= 3; i++ {
		if err := d.Render(beat.Frame{At: float64(i)}); err != nil {
			t.Fatalf("Render failed: %v", err)
		}
	}
	f := <-d.frames
	if f.At != 3 {
		t.Fatalf("expected latest frame, got at=%v", f.At)
	}
}

func TestMulti_RendersAllAndJoinsErrors(t *testing.T) {
	sentinel := errors.New("broken")
	var seen int
	ok := rendererFunc(func(beat.Frame) error { seen++; return nil })
	bad := rendererFunc(func(beat.Frame) error { seen++; return sentinel })

	err := Multi{bad, ok}.Render(beat.Frame{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected both renderers called, got %d", seen)
	}
}

type rendererFunc func(beat.Frame) error

func (f rendererFunc) Render(fr beat.Frame) error { return f(fr) }
