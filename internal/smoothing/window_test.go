package smoothing

import (
	"errors"
	"math"
	"testing"

	"github.com/framelab/stabilize-api/internal/motion"
)

func TestNewWindow_InvalidSize(t *testing.T) {
	if _, err := NewWindow(0); err == nil {
		t.Error("expected error for size 0")
	}
	if _, err := NewWindow(-3); err == nil {
		t.Error("expected error for negative size")
	}
}

func TestWindow_StateTransitions(t *testing.T) {
	w, err := NewWindow(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if w.State() != StateWarmup {
		t.Fatalf("expected WARMUP, got %s", w.State())
	}

	// First two pushes stay in WARMUP and emit nothing.
	for i := 0; i < 2; i++ {
		_, ok, err := w.Push(motion.Transform{DX: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatalf("push %d: expected no emission during WARMUP", i)
		}
		if w.State() != StateWarmup {
			t.Fatalf("push %d: expected WARMUP, got %s", i, w.State())
		}
	}

	// The W-th raw transform transitions to STEADY and emits exactly one.
	c, ok, err := w.Push(motion.Transform{DX: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected emission on the W-th push")
	}
	if c.Index != 0 {
		t.Errorf("expected corrective for frame 0, got %d", c.Index)
	}
	if w.State() != StateSteady {
		t.Errorf("expected STEADY, got %s", w.State())
	}

	// Flush drains in two observable steps: the tail is counted in DRAIN,
	// then the emptied window closes.
	w.Flush()
	if w.State() != StateDrain {
		t.Errorf("expected DRAIN after flush, got %s", w.State())
	}
	if w.Dropped() != 3 {
		t.Errorf("expected 3 dropped tail frames, got %d", w.Dropped())
	}
	w.Flush()
	if w.State() != StateDone {
		t.Errorf("expected DONE after second flush, got %s", w.State())
	}
}

func TestWindow_PushAfterFlush(t *testing.T) {
	w, _ := NewWindow(2)
	w.Flush()

	_, _, err := w.Push(motion.Transform{})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

// The emitted count is the contract the whole pipeline depends on: for N
// frames (N-1 raw transforms) and N > W, exactly N-W correctives come out.
func TestSmooth_EmittedCount(t *testing.T) {
	tests := []struct {
		name       string
		frameCount int
		window     int
		want       int
	}{
		{"ninety frames default window", 90, 30, 60},
		{"window one", 10, 1, 9},
		{"barely enough", 31, 30, 1},
		{"exact boundary fails", 30, 30, 0},
		{"too short", 5, 30, 0},
		{"small window", 12, 4, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := make([]motion.Transform, tt.frameCount-1)
			for i := range history {
				history[i] = motion.Transform{DX: float64(i % 3), DY: 0.5}
			}

			out, err := Smooth(history, tt.window)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(out) != tt.want {
				t.Fatalf("expected %d correctives, got %d", tt.want, len(out))
			}

			// Frame order must be preserved and start at frame 0.
			for i, c := range out {
				if c.Index != i {
					t.Fatalf("corrective %d has index %d", i, c.Index)
				}
			}
		})
	}
}

func TestWindow_DroppedTail(t *testing.T) {
	w, _ := NewWindow(30)
	for i := 0; i < 89; i++ {
		_, _, _ = w.Push(motion.Transform{DX: 1})
	}
	w.Flush()

	if w.Dropped() != 30 {
		t.Errorf("expected 30 dropped tail frames, got %d", w.Dropped())
	}
}

// A static camera produces all-zero raw transforms; every corrective must be
// exactly zero so no pixel is ever altered downstream.
func TestSmooth_StaticCamera(t *testing.T) {
	history := make([]motion.Transform, 59)
	out, err := Smooth(history, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 30 {
		t.Fatalf("expected 30 correctives, got %d", len(out))
	}
	for _, c := range out {
		if !c.Transform.IsZero() {
			t.Fatalf("frame %d: expected zero corrective, got %+v", c.Index, c.Transform)
		}
	}
}

// A constant pan is intentional motion: the low-passed path equals the
// actual path, so corrections stay small and constant rather than fighting
// the pan.
func TestSmooth_ConstantPanPreserved(t *testing.T) {
	history := make([]motion.Transform, 49)
	for i := range history {
		history[i] = motion.Transform{DX: 2}
	}

	out, err := Smooth(history, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every corrective equals the window-mean offset of a linear ramp: the
	// same constant for all frames, so relative frame positions (the pan)
	// are untouched.
	want := out[0].Transform.DX
	for _, c := range out {
		if math.Abs(c.Transform.DX-want) > 1e-9 {
			t.Fatalf("frame %d: expected constant correction %f, got %f", c.Index, want, c.Transform.DX)
		}
		if c.Transform.DY != 0 || c.Transform.DTheta != 0 {
			t.Fatalf("frame %d: unexpected off-axis correction %+v", c.Index, c.Transform)
		}
	}
}

// Alternating jitter around a fixed point must be largely cancelled: the
// correction for each frame approaches the negation of its jitter offset.
func TestSmooth_JitterCancelled(t *testing.T) {
	// Trajectory oscillates between +1 and 0: raw transforms +1, -1, +1, ...
	history := make([]motion.Transform, 40)
	for i := range history {
		if i%2 == 0 {
			history[i] = motion.Transform{DX: 1}
		} else {
			history[i] = motion.Transform{DX: -1}
		}
	}

	out, err := Smooth(history, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range out {
		// Trajectory at frame k is 0 for even k, 1 for odd k; the window
		// mean is exactly 0.5. The correction must pull each frame toward
		// 0.5: +0.5 for frames below the path, -0.5 for frames above it.
		want := 0.5
		if c.Index%2 == 1 {
			want = -0.5
		}
		if math.Abs(c.Transform.DX-want) > 1e-9 {
			t.Fatalf("frame %d: expected correction %+.1f, got %f", c.Index, want, c.Transform.DX)
		}
	}
}

func TestWindow_CorrectiveValue(t *testing.T) {
	// W=2, raws: +4, +2, +0. Trajectory: 0, 4, 6, 6.
	// Frame 0 corrective: mean(4, 6) - 0 = 5.
	// Frame 1 corrective: mean(6, 6) - 4 = 2.
	w, _ := NewWindow(2)

	_, ok, _ := w.Push(motion.Transform{DX: 4})
	if ok {
		t.Fatal("unexpected emission during warmup")
	}

	c, ok, _ := w.Push(motion.Transform{DX: 2})
	if !ok {
		t.Fatal("expected emission")
	}
	if c.Index != 0 || math.Abs(c.Transform.DX-5) > 1e-9 {
		t.Errorf("expected corrective 5 for frame 0, got %+v", c)
	}

	c, ok, _ = w.Push(motion.Transform{DX: 0})
	if !ok {
		t.Fatal("expected emission")
	}
	if c.Index != 1 || math.Abs(c.Transform.DX-2) > 1e-9 {
		t.Errorf("expected corrective 2 for frame 1, got %+v", c)
	}
}
