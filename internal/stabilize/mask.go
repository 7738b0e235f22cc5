package stabilize

// Mask is a per-pixel validity buffer with the dimensions of a frame. A set
// bit marks genuine source content; a clear bit marks a pixel exposed by
// geometric correction that needs synthesis. Masks are derived per output
// frame and never shared across frames.
type Mask struct {
	valid []bool
	w, h  int
}

// NewMask creates a mask with every pixel marked valid.
func NewMask(w, h int) *Mask {
	m := &Mask{valid: make([]bool, w*h), w: w, h: h}
	for i := range m.valid {
		m.valid[i] = true
	}
	return m
}

// Width returns the mask width in pixels.
func (m *Mask) Width() int { return m.w }

// Height returns the mask height in pixels.
func (m *Mask) Height() int { return m.h }

// Valid reports whether the pixel at (x, y) is genuine source content.
func (m *Mask) Valid(x, y int) bool {
	return m.valid[y*m.w+x]
}

// Set marks the validity of the pixel at (x, y).
func (m *Mask) Set(x, y int, valid bool) {
	m.valid[y*m.w+x] = valid
}

// ExposedCount returns the number of pixels requiring synthesis.
func (m *Mask) ExposedCount() int {
	n := 0
	for _, v := range m.valid {
		if !v {
			n++
		}
	}
	return n
}

// ExposedFraction returns the share of pixels requiring synthesis.
func (m *Mask) ExposedFraction() float64 {
	if len(m.valid) == 0 {
		return 0
	}
	return float64(m.ExposedCount()) / float64(len(m.valid))
}

// Clone returns an independent copy of the mask.
func (m *Mask) Clone() *Mask {
	c := &Mask{valid: make([]bool, len(m.valid)), w: m.w, h: m.h}
	copy(c.valid, m.valid)
	return c
}
