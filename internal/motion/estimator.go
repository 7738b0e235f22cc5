package motion

import (
	"image"
	"math"
	"math/rand"
	"sort"

	"github.com/framelab/stabilize-api/internal/frames"
)

// Params controls keypoint detection, matching, and the robust fit.
type Params struct {
	// MaxCorners caps the number of keypoints detected per frame.
	MaxCorners int
	// MinSpacing is the minimum pixel distance between detected corners.
	MinSpacing int
	// PatchRadius is half the side of the square patch used for matching.
	PatchRadius int
	// SearchRadius bounds the displacement searched for each keypoint.
	SearchRadius int
	// MinMatches is the minimum usable matches required to attempt a fit;
	// below it the estimator falls back to a zero transform.
	MinMatches int
	// RansacIters is the number of RANSAC hypotheses sampled.
	RansacIters int
	// InlierDist is the maximum reprojection distance for an inlier, in pixels.
	InlierDist float64
}

// DefaultParams returns parameters tuned for typical handheld footage.
func DefaultParams() Params {
	return Params{
		MaxCorners:   200,
		MinSpacing:   8,
		PatchRadius:  4,
		SearchRadius: 16,
		MinMatches:   8,
		RansacIters:  64,
		InlierDist:   2.0,
	}
}

// Estimator computes one rigid transform per consecutive frame pair.
// The computation is purely causal: transform i depends only on frames
// i-1 and i.
type Estimator struct {
	params Params
	rng    *rand.Rand
}

// NewEstimator creates an Estimator. Zero-valued params are replaced with
// defaults so partially filled configs stay usable.
func NewEstimator(params Params) *Estimator {
	def := DefaultParams()
	if params.MaxCorners <= 0 {
		params.MaxCorners = def.MaxCorners
	}
	if params.MinSpacing <= 0 {
		params.MinSpacing = def.MinSpacing
	}
	if params.PatchRadius <= 0 {
		params.PatchRadius = def.PatchRadius
	}
	if params.SearchRadius <= 0 {
		params.SearchRadius = def.SearchRadius
	}
	if params.MinMatches <= 0 {
		params.MinMatches = def.MinMatches
	}
	if params.RansacIters <= 0 {
		params.RansacIters = def.RansacIters
	}
	if params.InlierDist <= 0 {
		params.InlierDist = def.InlierDist
	}
	return &Estimator{
		params: params,
		// Deterministic seed keeps estimation reproducible across runs of
		// the same input.
		rng: rand.New(rand.NewSource(1)),
	}
}

// point is a keypoint location in pixel coordinates.
type point struct {
	x, y int
}

// match pairs a keypoint in the previous frame with its matched location in
// the current frame, in coordinates relative to the frame center.
type match struct {
	px, py float64
	cx, cy float64
}

// Estimate fits a rigid transform explaining the motion from prev to cur.
// Frames with too few distinctive features or too few agreeing matches yield
// the zero transform rather than an error: a single unhelpful frame must not
// fail the whole job.
func (e *Estimator) Estimate(prev, cur *frames.Frame) Transform {
	if prev == nil || cur == nil || prev.Img.Bounds() != cur.Img.Bounds() {
		return Transform{}
	}

	prevGray := grayscale(prev.Img)
	curGray := grayscale(cur.Img)

	corners := e.detectCorners(prevGray)
	if len(corners) < e.params.MinMatches {
		return Transform{}
	}

	matches := e.matchCorners(prevGray, curGray, corners)
	if len(matches) < e.params.MinMatches {
		return Transform{}
	}

	return e.fitRigid(matches)
}

// gray is a single-channel float image used for detection and matching.
type gray struct {
	pix  []float64
	w, h int
}

func (g *gray) at(x, y int) float64 {
	return g.pix[y*g.w+x]
}

// grayscale converts an RGBA frame to a luma plane (Rec. 601 weights).
func grayscale(img *image.RGBA) *gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	g := &gray{pix: make([]float64, w*h), w: w, h: h}
	for y := 0; y < h; y++ {
		row := img.Pix[(y+b.Min.Y-img.Rect.Min.Y)*img.Stride:]
		for x := 0; x < w; x++ {
			i := (x + b.Min.X - img.Rect.Min.X) * 4
			g.pix[y*w+x] = 0.299*float64(row[i]) + 0.587*float64(row[i+1]) + 0.114*float64(row[i+2])
		}
	}
	return g
}

// detectCorners finds distinctive keypoints using a Harris-style corner
// response with greedy spacing suppression.
func (e *Estimator) detectCorners(g *gray) []point {
	margin := e.params.PatchRadius + e.params.SearchRadius + 1
	if g.w <= 2*margin || g.h <= 2*margin {
		return nil
	}

	type scored struct {
		p point
		r float64
	}

	var candidates []scored
	const harrisK = 0.04
	for y := margin; y < g.h-margin; y++ {
		for x := margin; x < g.w-margin; x++ {
			// Structure tensor over a 3x3 neighborhood of central differences.
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ix := (g.at(x+dx+1, y+dy) - g.at(x+dx-1, y+dy)) / 2
					iy := (g.at(x+dx, y+dy+1) - g.at(x+dx, y+dy-1)) / 2
					sxx += ix * ix
					syy += iy * iy
					sxy += ix * iy
				}
			}
			det := sxx*syy - sxy*sxy
			trace := sxx + syy
			r := det - harrisK*trace*trace
			if r > 1000 {
				candidates = append(candidates, scored{p: point{x, y}, r: r})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].r > candidates[j].r })

	// Greedy non-max suppression by minimum spacing, strongest first.
	minSq := e.params.MinSpacing * e.params.MinSpacing
	var corners []point
	for _, c := range candidates {
		ok := true
		for _, kept := range corners {
			dx, dy := c.p.x-kept.x, c.p.y-kept.y
			if dx*dx+dy*dy < minSq {
				ok = false
				break
			}
		}
		if ok {
			corners = append(corners, c.p)
			if len(corners) >= e.params.MaxCorners {
				break
			}
		}
	}
	return corners
}

// matchCorners finds, for each keypoint, the lowest-SAD patch within the
// search radius of the next frame. Weak or ambiguous responses are dropped.
func (e *Estimator) matchCorners(prev, cur *gray, corners []point) []match {
	r := e.params.PatchRadius
	s := e.params.SearchRadius
	halfW := float64(prev.w) / 2
	halfH := float64(prev.h) / 2

	var matches []match
	for _, c := range corners {
		bestSAD := math.Inf(1)
		secondSAD := math.Inf(1)
		bestDX, bestDY := 0, 0

		for dy := -s; dy <= s; dy++ {
			for dx := -s; dx <= s; dx++ {
				var sad float64
				for py := -r; py <= r; py++ {
					for px := -r; px <= r; px++ {
						sad += math.Abs(prev.at(c.x+px, c.y+py) - cur.at(c.x+dx+px, c.y+dy+py))
					}
				}
				if sad < bestSAD {
					secondSAD = bestSAD
					bestSAD = sad
					bestDX, bestDY = dx, dy
				} else if sad < secondSAD {
					secondSAD = sad
				}
			}
		}

		// Reject ambiguous matches where the runner-up is nearly as good.
		if bestSAD > 0.9*secondSAD {
			continue
		}

		matches = append(matches, match{
			px: float64(c.x) - halfW,
			py: float64(c.y) - halfH,
			cx: float64(c.x+bestDX) - halfW,
			cy: float64(c.y+bestDY) - halfH,
		})
	}
	return matches
}

// fitRigid estimates (dx, dy, dtheta) from matched points with RANSAC to
// reject outliers, then refines over the inlier set with a closed-form
// least-squares rigid fit.
func (e *Estimator) fitRigid(matches []match) Transform {
	if len(matches) < 2 {
		return Transform{}
	}

	bestInliers := 0
	var bestSet []match

	for iter := 0; iter < e.params.RansacIters; iter++ {
		i := e.rng.Intn(len(matches))
		j := e.rng.Intn(len(matches))
		if i == j {
			continue
		}

		t, ok := rigidFromPair(matches[i], matches[j])
		if !ok {
			continue
		}

		var inliers []match
		for _, m := range matches {
			x, y := t.Apply(m.px, m.py)
			if math.Hypot(x-m.cx, y-m.cy) <= e.params.InlierDist {
				inliers = append(inliers, m)
			}
		}
		if len(inliers) > bestInliers {
			bestInliers = len(inliers)
			bestSet = inliers
		}
	}

	if bestInliers < e.params.MinMatches {
		return Transform{}
	}
	return leastSquaresRigid(bestSet)
}

// rigidFromPair builds a rigid transform hypothesis from two correspondences.
func rigidFromPair(a, b match) (Transform, bool) {
	vpx, vpy := b.px-a.px, b.py-a.py
	vcx, vcy := b.cx-a.cx, b.cy-a.cy
	if math.Hypot(vpx, vpy) < 1e-6 {
		return Transform{}, false
	}

	theta := math.Atan2(vcy, vcx) - math.Atan2(vpy, vpx)
	sin, cos := math.Sincos(theta)
	// Translation from the first correspondence after rotation.
	dx := a.cx - (cos*a.px - sin*a.py)
	dy := a.cy - (sin*a.px + cos*a.py)
	return Transform{DX: dx, DY: dy, DTheta: theta}, true
}

// leastSquaresRigid solves the 2D Procrustes problem over all matches.
func leastSquaresRigid(matches []match) Transform {
	n := float64(len(matches))
	var mpx, mpy, mcx, mcy float64
	for _, m := range matches {
		mpx += m.px
		mpy += m.py
		mcx += m.cx
		mcy += m.cy
	}
	mpx /= n
	mpy /= n
	mcx /= n
	mcy /= n

	var sxx, sxy float64
	for _, m := range matches {
		ax, ay := m.px-mpx, m.py-mpy
		bx, by := m.cx-mcx, m.cy-mcy
		sxx += ax*bx + ay*by
		sxy += ax*by - ay*bx
	}

	theta := math.Atan2(sxy, sxx)
	sin, cos := math.Sincos(theta)
	dx := mcx - (cos*mpx - sin*mpy)
	dy := mcy - (sin*mpx + cos*mpy)
	return Transform{DX: dx, DY: dy, DTheta: theta}
}
