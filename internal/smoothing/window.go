// Package smoothing converts a stream of raw motion transforms into delayed
// corrective transforms using a bounded causal window.
//
// The window is the source of the pipeline's fixed output latency: a
// corrective transform for frame k is only available once W transforms of
// lookahead exist, so the last W frames of a sequence are never emitted.
package smoothing

import (
	"errors"
	"fmt"

	"github.com/framelab/stabilize-api/internal/motion"
)

// State is the explicit phase of the smoothing window.
type State string

const (
	// StateWarmup means fewer than W raw transforms have been collected and
	// no corrective transform can be produced yet.
	StateWarmup State = "WARMUP"
	// StateSteady means each new raw transform yields exactly one corrective
	// transform, lagged W frames behind the input.
	StateSteady State = "STEADY"
	// StateDrain means input is exhausted and the window is flushing.
	StateDrain State = "DRAIN"
	// StateDone means the window is empty and closed.
	StateDone State = "DONE"
)

// ErrClosed is returned when pushing into a window that has been flushed.
var ErrClosed = errors.New("smoothing window already flushed")

// Corrective is the smoothed corrective transform for a specific past frame
// index. It exists only once the window has accumulated enough history.
type Corrective struct {
	// Index is the frame the correction applies to.
	Index int
	// Transform undoes the frame's deviation from the low-passed camera
	// path: jitter cancels while an intentional slow pan is preserved.
	Transform motion.Transform
}

// Window holds the last W raw transforms and the running trajectory.
type Window struct {
	size  int
	state State

	// trajectory[i] is the cumulative motion at frame i; trajectory[0] is
	// the origin. Only the tail needed for pending emissions is retained.
	trajectory []motion.Transform
	// next is the frame index the next corrective will be emitted for.
	next int
	// received counts raw transforms pushed so far.
	received int
	// dropped counts trailing frames discarded at flush for lack of a full
	// window of future context.
	dropped int
}

// NewWindow creates a smoothing window of the given size W.
func NewWindow(size int) (*Window, error) {
	if size < 1 {
		return nil, fmt.Errorf("window size must be at least 1, got %d", size)
	}
	return &Window{
		size:       size,
		state:      StateWarmup,
		trajectory: []motion.Transform{{}},
	}, nil
}

// Size returns W.
func (w *Window) Size() int {
	return w.size
}

// State returns the current phase of the window.
func (w *Window) State() State {
	return w.state
}

// Received returns the number of raw transforms pushed so far.
func (w *Window) Received() int {
	return w.received
}

// Dropped returns the number of trailing frames that could not be smoothed.
// It is zero until the window reaches DRAIN.
func (w *Window) Dropped() int {
	return w.dropped
}

// Push feeds the next raw transform (motion from frame i-1 to i) into the
// window. Once W transforms have been observed, every push emits exactly one
// corrective transform for the frame W steps behind the newest input.
func (w *Window) Push(raw motion.Transform) (Corrective, bool, error) {
	if w.state == StateDrain || w.state == StateDone {
		return Corrective{}, false, ErrClosed
	}

	w.received++
	last := w.trajectory[len(w.trajectory)-1]
	w.trajectory = append(w.trajectory, last.Add(raw))

	if w.state == StateWarmup {
		if w.received < w.size {
			return Corrective{}, false, nil
		}
		// The W-th raw transform completes the first full window.
		w.state = StateSteady
	}

	c := w.emit()
	return c, true, nil
}

// Flush advances the window once no more raw transforms will arrive. The
// first call enters DRAIN and counts the buffered tail; Push emits eagerly,
// so no frame in the tail has a full window of lookahead and the tail is
// dropped per the output-count contract, never emitted. The next call
// empties the buffer and closes the window.
func (w *Window) Flush() {
	switch w.state {
	case StateDone:
	case StateDrain:
		w.trajectory = nil
		w.state = StateDone
	default:
		w.state = StateDrain
		w.dropped = w.received + 1 - w.next
	}
}

// emit produces the corrective transform for the oldest frame with a
// complete window and advances past it.
func (w *Window) emit() Corrective {
	// The corrective for frame k low-pass filters the trajectory over the
	// window of W positions following k. The correction is the (negated)
	// deviation of the frame from that filtered path.
	base := w.trajectory[0]
	var sum motion.Transform
	for _, p := range w.trajectory[1 : w.size+1] {
		sum = sum.Add(p)
	}
	mean := sum.Scale(1 / float64(w.size))

	c := Corrective{
		Index:     w.next,
		Transform: mean.Sub(base),
	}
	w.next++
	// Drop the head position; it is no longer part of any future window.
	w.trajectory = w.trajectory[1:]
	return c
}

// Smooth runs a full raw-transform history through a window of the given
// size and returns all correctives in frame order. For n+1 frames (n raw
// transforms) it returns exactly n+1-W correctives, or none when the history
// is too short to ever reach STEADY.
func Smooth(history []motion.Transform, size int) ([]Corrective, error) {
	w, err := NewWindow(size)
	if err != nil {
		return nil, err
	}

	var out []Corrective
	for _, raw := range history {
		c, ok, err := w.Push(raw)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	// Input exhausted: drain to DONE. The unsmoothed tail is dropped.
	for w.State() != StateDone {
		w.Flush()
	}
	return out, nil
}
