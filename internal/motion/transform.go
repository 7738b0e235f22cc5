// Package motion computes rigid 2D motion between consecutive video frames
// using keypoint detection, patch matching, and a robust transform fit.
package motion

import "math"

// Transform describes rigid motion (translation plus rotation, no scale)
// between two consecutive frames. Rotation is expressed about the frame
// center, in radians.
type Transform struct {
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
	DTheta float64 `json:"dtheta"`
}

// Add returns the component-wise sum of two transforms. Used for
// accumulating a motion trajectory.
func (t Transform) Add(o Transform) Transform {
	return Transform{DX: t.DX + o.DX, DY: t.DY + o.DY, DTheta: t.DTheta + o.DTheta}
}

// Sub returns the component-wise difference of two transforms.
func (t Transform) Sub(o Transform) Transform {
	return Transform{DX: t.DX - o.DX, DY: t.DY - o.DY, DTheta: t.DTheta - o.DTheta}
}

// Scale returns the transform with each component multiplied by f.
func (t Transform) Scale(f float64) Transform {
	return Transform{DX: t.DX * f, DY: t.DY * f, DTheta: t.DTheta * f}
}

// Magnitude returns a scalar size of the transform, combining translation
// distance with rotation converted to a comparable displacement.
func (t Transform) Magnitude() float64 {
	return math.Hypot(t.DX, t.DY) + math.Abs(t.DTheta)*100
}

// IsZero reports whether the transform is exactly the identity.
func (t Transform) IsZero() bool {
	return t.DX == 0 && t.DY == 0 && t.DTheta == 0
}

// Apply maps a point through the transform. Coordinates are relative to the
// rotation origin (the frame center).
func (t Transform) Apply(x, y float64) (float64, float64) {
	sin, cos := math.Sincos(t.DTheta)
	return cos*x - sin*y + t.DX, sin*x + cos*y + t.DY
}
