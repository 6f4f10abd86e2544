package beat

import "testing"

func TestDebouncer_RejectsInsideWindow(t *testing.T) {
	d := Debouncer{MinInterval: 0.5}
	if d.Accept(10.3, 10.0) {
		t.Fatalf("expected candidate 0.3s after last beat to be rejected")
	}
	if !d.Accept(10.6, 10.0) {
		t.Fatalf("expected candidate 0.6s after last beat to be accepted")
	}
}

func TestCycle_WrapsAfterNBeats(t *testing.T) {
	const n = 6
	c := NewCycle(n)
	if c.Position() != 1 {
		t.Fatalf("expected initial position 1, got %d", c.Position())
	}

	for i := 1; i < n; i++ {
		if wrapped := c.Advance(float64(i) / n); wrapped {
			t.Fatalf("unexpected wrap on beat %d", i)
		}
		if c.Position() != i+1 {
			t.Fatalf("after beat %d expected position %d, got %d", i, i+1, c.Position())
		}
		if len(c.Marks()) != i {
			t.Fatalf("after beat %d expected %d marks, got %d", i, i, len(c.Marks()))
		}
	}

	if wrapped := c.Advance(1.0); !wrapped {
		t.Fatalf("expected wrap on beat %d", n)
	}
	if c.Position() != 1 {
		t.Fatalf("expected position 1 after wrap, got %d", c.Position())
	}
	marks := c.Marks()
	if len(marks) != 1 {
		t.Fatalf("expected exactly one mark after wrap, got %d: %v", len(marks), marks)
	}
	if marks[0] != (Mark{Progress: 1.0, Position: 1}) {
		t.Fatalf("unexpected wrap mark %+v", marks[0])
	}
}

func TestCycle_MarksAreCopies(t *testing.T) {
	c := NewCycle(3)
	c.Advance(0.2)
	m := c.Marks()
	m[0].Progress = 99
	if c.Marks()[0].Progress != 0.2 {
		t.Fatalf("Marks must return a copy")
	}
}

func TestCycle_SingleBeatBreath(t *testing.T) {
	c := NewCycle(1)
	for i := 0; i < 3; i++ {
		if !c.Advance(1) {
			t.Fatalf("expected every beat to wrap when N=1")
		}
		if c.Position() != 1 || len(c.Marks()) != 1 {
			t.Fatalf("unexpected state: position=%d marks=%d", c.Position(), len(c.Marks()))
		}
	}
}
