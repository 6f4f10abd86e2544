package display

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"breathpacer/internal/beat"
)

// ErrQuit is returned by TUIDisplay.Run when the user closed the UI.
var ErrQuit = errors.New("display: quit by user")

// AccentScale enlarges the progress ring on the frame right after a beat.
const AccentScale = 1.1

type cellKind uint8

const (
	cellEmpty cellKind = iota
	cellRing
	cellAccent
	cellMark
)

const (
	ringHalfWidth = 0.6 // cells
	markHalfWidth = 0.5 // cells
)

var (
	ringStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ADD8E6"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	markStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#B03A3A"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
)

// ringGrid rasterizes a frame onto a w x h character grid centered on the
// middle cell. A radius of 1 reaches just inside the shorter half-extent.
// Cells are about twice as tall as they are wide, so horizontal distances
// count half.
func ringGrid(w, h int, f beat.Frame) [][]cellKind {
	grid := make([][]cellKind, h)
	if w <= 0 || h <= 0 {
		return grid
	}

	scale := math.Min(float64(h)/2, float64(w)/4) - 1
	if scale < 1 {
		scale = 1
	}
	cx := float64(w-1) / 2
	cy := float64(h-1) / 2

	r := f.Radius
	kind := cellRing
	if f.JustBeat {
		r *= AccentScale
		kind = cellAccent
	}
	ringDist := r * scale

	markDists := make([]float64, 0, len(f.Marks))
	for _, m := range f.Marks {
		markDists = append(markDists, f.MarkRadius(m)*scale)
	}

	for y := 0; y < h; y++ {
		row := make([]cellKind, w)
		for x := 0; x < w; x++ {
			dx := (float64(x) - cx) / 2
			dy := float64(y) - cy
			d := math.Hypot(dx, dy)

			if math.Abs(d-ringDist) <= ringHalfWidth {
				row[x] = kind
				continue
			}
			for _, md := range markDists {
				if math.Abs(d-md) <= markHalfWidth {
					row[x] = cellMark
					break
				}
			}
		}
		grid[y] = row
	}
	return grid
}

func renderGrid(grid [][]cellKind) string {
	var b strings.Builder
	for y, row := range grid {
		if y > 0 {
			b.WriteByte('\n')
		}
		// Style runs of equal cells together to keep escape output small.
		for x := 0; x < len(row); {
			k := row[x]
			end := x
			for end < len(row) && row[end] == k {
				end++
			}
			n := end - x
			switch k {
			case cellRing:
				b.WriteString(ringStyle.Render(strings.Repeat("█", n)))
			case cellAccent:
				b.WriteString(accentStyle.Render(strings.Repeat("█", n)))
			case cellMark:
				b.WriteString(markStyle.Render(strings.Repeat("·", n)))
			default:
				b.WriteString(strings.Repeat(" ", n))
			}
			x = end
		}
	}
	return b.String()
}

type frameMsg struct{ frame beat.Frame }

type broadcastMsg struct{ b beat.Broadcast }

// Model is the Bubble Tea model for the breathing ring.
type Model struct {
	label string

	width  int
	height int

	frame    beat.Frame
	hasFrame bool

	last     beat.BeatAccepted
	hasBeat  bool
	rejected uint64
	cycles   uint64

	quit bool
}

// NewModel creates a ring model. label names the beat source in the footer.
func NewModel(label string) *Model {
	return &Model{label: label}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		}
		return m, nil
	case frameMsg:
		m.frame = msg.frame
		m.hasFrame = true
		return m, nil
	case broadcastMsg:
		switch ev := msg.b.(type) {
		case beat.BeatAccepted:
			m.last = ev
			m.hasBeat = true
		case beat.BeatRejected:
			m.rejected++
		case beat.CycleCompleted:
			m.cycles = ev.Cycles
		}
		return m, nil
	default:
		return m, nil
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	w, h := m.width, m.height
	if w == 0 || h == 0 {
		w, h = 60, 24
	}
	if !m.hasFrame {
		return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, idleStyle.Render("waiting for "+m.label+" ..."))
	}

	footer := m.renderFooter()
	bodyHeight := h
	if h >= 3 {
		bodyHeight = h - 1
	}
	body := renderGrid(ringGrid(w, bodyHeight, m.frame))
	if bodyHeight == h {
		return body
	}
	footerLine := lipgloss.Place(w, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) renderFooter() string {
	parts := []string{
		fmt.Sprintf("beat %d/%d", m.frame.Position, m.frame.BeatsPerBreath),
		fmt.Sprintf("progress %.2f", m.frame.Progress),
	}
	if m.hasBeat {
		bpm := fmt.Sprintf("bpm %.1f", m.last.BPM)
		if m.last.DefaultPeriod {
			bpm += " (default)"
		}
		parts = append(parts, bpm, fmt.Sprintf("period %.3fs", m.last.Period))
	}
	parts = append(parts,
		fmt.Sprintf("breaths %d", m.cycles),
		fmt.Sprintf("rejected %d", m.rejected),
		"q quit")
	return footerStyle.Render(strings.Join(parts, "  "))
}

// TUIDisplay drives a Bubble Tea program from the engine loop. Render and
// Notify never block: frames are latest-wins and broadcasts are dropped
// when the UI falls behind.
type TUIDisplay struct {
	program *tea.Program
	frames  chan beat.Frame
	events  chan beat.Broadcast
}

// NewTUIDisplay builds the program. Options are passed to tea.NewProgram.
func NewTUIDisplay(label string, opts ...tea.ProgramOption) *TUIDisplay {
	return &TUIDisplay{
		program: tea.NewProgram(NewModel(label), opts...),
		frames:  make(chan beat.Frame, 1),
		events:  make(chan beat.Broadcast, 32),
	}
}

// Render implements pacer.Display.
func (d *TUIDisplay) Render(f beat.Frame) error {
	select {
	case d.frames <- f:
		return nil
	default:
	}
	// Replace the stale frame.
	select {
	case <-d.frames:
	default:
	}
	select {
	case d.frames <- f:
	default:
	}
	return nil
}

// Notify implements pacer.Notifier.
func (d *TUIDisplay) Notify(b beat.Broadcast) {
	select {
	case d.events <- b:
	default:
	}
}

// Run blocks until the program exits. It returns ErrQuit if the user
// closed the UI, and nil if ctx was canceled.
func (d *TUIDisplay) Run(ctx context.Context) error {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			select {
			case <-pumpCtx.Done():
				d.program.Quit()
				return
			case f := <-d.frames:
				d.program.Send(frameMsg{frame: f})
			case b := <-d.events:
				d.program.Send(broadcastMsg{b: b})
			}
		}
	}()

	final, err := d.program.Run()
	if err != nil {
		return fmt.Errorf("run terminal display: %w", err)
	}
	if m, ok := final.(*Model); ok && m.quit && ctx.Err() == nil {
		return ErrQuit
	}
	return nil
}
