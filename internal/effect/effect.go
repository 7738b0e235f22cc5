// Package effect provides the per-frame effect collaborators consumed by the
// pipeline for non-stabilization effects. An effect is a pure, stateless
// frame-to-frame function with no cross-frame memory, so the orchestrator can
// run any effect through the same demux/mux plumbing.
package effect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/framelab/stabilize-api/internal/frames"
)

// ErrUnknownEffect is returned when no effect is registered for a selector.
var ErrUnknownEffect = errors.New("effect: unknown effect selector")

// Effect transforms a single frame into a new frame. Implementations must
// not mutate the input and must carry no state across calls.
type Effect interface {
	// Name returns the effect selector this collaborator serves.
	Name() string

	// Process derives a new frame from the input, preserving index and
	// timestamp.
	Process(ctx context.Context, frame *frames.Frame) (*frames.Frame, error)
}

// Referencer is implemented by effects that can condition on a per-job
// reference image, such as color grading.
type Referencer interface {
	// WithReference returns a variant of the effect that sends the given
	// base64-encoded reference image with every frame. The receiver is not
	// modified.
	WithReference(b64 string) Effect
}

// Func adapts a plain function to the Effect interface.
type Func struct {
	EffectName string
	Fn         func(ctx context.Context, frame *frames.Frame) (*frames.Frame, error)
}

// Name implements Effect.
func (f Func) Name() string { return f.EffectName }

// Process implements Effect.
func (f Func) Process(ctx context.Context, frame *frames.Frame) (*frames.Frame, error) {
	return f.Fn(ctx, frame)
}

// Registry maps effect selectors to their collaborators.
type Registry struct {
	mu      sync.RWMutex
	effects map[string]Effect
}

// NewRegistry creates an empty effect registry.
func NewRegistry() *Registry {
	return &Registry{effects: make(map[string]Effect)}
}

// Register adds an effect under its selector, replacing any previous entry.
func (r *Registry) Register(e Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects[e.Name()] = e
}

// Get returns the effect for a selector.
func (r *Registry) Get(name string) (Effect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.effects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}
	return e, nil
}

// Names returns the registered selectors in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.effects))
	for name := range r.effects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
