// Package stabilize applies corrective transforms to frames, tracks which
// output pixels are genuine source content, and inpaints the borders that
// geometric correction exposes.
package stabilize

import (
	"image"
	"math"

	"github.com/framelab/stabilize-api/internal/frames"
	"github.com/framelab/stabilize-api/internal/motion"
	"github.com/framelab/stabilize-api/internal/smoothing"
)

// Engine performs per-frame geometric correction and border inpainting.
// It is stateless across frames and safe for concurrent use.
type Engine struct{}

// NewEngine creates a stabilization engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Correct applies the corrective transform to the frame, warps the validity
// mask by the identical transform, and inpaints every exposed pixel. The
// returned frame keeps the source frame's index and timestamp; the input
// frame is never mutated.
func (e *Engine) Correct(frame *frames.Frame, c smoothing.Corrective) (*frames.Frame, *Mask) {
	warped, mask := e.warp(frame, c.Transform)
	e.inpaint(warped.Img, mask)
	return warped, mask
}

// warp moves the frame content by the rigid corrective transform, rotating
// about the frame center and composing with the translation. Output pixels
// whose source location falls outside the original bounds are black and
// marked exposed.
//
// The corrective is the displacement the content must make to land on the
// smoothed path, so each output pixel inverse-samples the source at
// R⁻¹·(x − t): a frame that drifted by +d carries a corrective of -d and is
// sampled at +d, pulling its content back where it belongs.
func (e *Engine) warp(frame *frames.Frame, t motion.Transform) (*frames.Frame, *Mask) {
	b := frame.Img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	mask := NewMask(w, h)

	if t.IsZero() {
		// Identity correction: the output is pixel-identical to the source
		// and the mask stays fully valid.
		copy(out.Pix, frame.Img.Pix)
		return &frames.Frame{Index: frame.Index, Timestamp: frame.Timestamp, Img: out}, mask
	}

	cx := float64(w) / 2
	cy := float64(h) / 2
	sin, cos := math.Sincos(-t.DTheta)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Inverse mapping: for each output pixel, sample the source
			// location that the correction moves onto it.
			ox := float64(x) - cx - t.DX
			oy := float64(y) - cy - t.DY
			sx := cos*ox - sin*oy + cx
			sy := sin*ox + cos*oy + cy

			if sx < 0 || sy < 0 || sx > float64(w-1) || sy > float64(h-1) {
				mask.Set(x, y, false)
				continue
			}
			r, g, bl, a := bilinear(frame.Img, sx, sy)
			i := out.PixOffset(x, y)
			out.Pix[i] = r
			out.Pix[i+1] = g
			out.Pix[i+2] = bl
			out.Pix[i+3] = a
		}
	}

	return &frames.Frame{Index: frame.Index, Timestamp: frame.Timestamp, Img: out}, mask
}

// bilinear samples the image at a fractional location.
func bilinear(img *image.RGBA, x, y float64) (uint8, uint8, uint8, uint8) {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1
	maxX := img.Bounds().Dx() - 1
	maxY := img.Bounds().Dy() - 1
	if x1 > maxX {
		x1 = maxX
	}
	if y1 > maxY {
		y1 = maxY
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	var out [4]uint8
	for ch := 0; ch < 4; ch++ {
		p00 := float64(img.Pix[img.PixOffset(x0, y0)+ch])
		p10 := float64(img.Pix[img.PixOffset(x1, y0)+ch])
		p01 := float64(img.Pix[img.PixOffset(x0, y1)+ch])
		p11 := float64(img.Pix[img.PixOffset(x1, y1)+ch])
		top := p00 + (p10-p00)*fx
		bot := p01 + (p11-p01)*fx
		out[ch] = uint8(top + (bot-top)*fy + 0.5)
	}
	return out[0], out[1], out[2], out[3]
}

// inpaint synthesizes content for every exposed pixel by frontier-ordered
// diffusion from the valid region: pixels adjacent to known content are
// filled first with the mean of their known neighbors, then the frontier
// advances inward. Valid pixels are never touched.
func (e *Engine) inpaint(img *image.RGBA, mask *Mask) {
	w, h := mask.Width(), mask.Height()
	if mask.ExposedCount() == 0 {
		return
	}

	// known tracks fill state during the march without altering the mask,
	// which must keep reporting which pixels were synthesized.
	known := make([]bool, w*h)
	var frontier []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if mask.Valid(x, y) {
				known[i] = true
				continue
			}
			if hasKnownNeighbor(mask, x, y) {
				frontier = append(frontier, i)
			}
		}
	}

	neighbors := [8][2]int{
		{-1, -1}, {0, -1}, {1, -1},
		{-1, 0}, {1, 0},
		{-1, 1}, {0, 1}, {1, 1},
	}

	for len(frontier) > 0 {
		var next []int
		// Fill the whole frontier from the state before this wave so the
		// march advances in distance order from the valid region.
		filled := make([]int, 0, len(frontier))
		for _, i := range frontier {
			if known[i] {
				continue
			}
			x, y := i%w, i/w

			var sr, sg, sb, sa, n float64
			for _, d := range neighbors {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h || !known[ny*w+nx] {
					continue
				}
				o := img.PixOffset(nx, ny)
				sr += float64(img.Pix[o])
				sg += float64(img.Pix[o+1])
				sb += float64(img.Pix[o+2])
				sa += float64(img.Pix[o+3])
				n++
			}
			if n == 0 {
				next = append(next, i)
				continue
			}

			o := img.PixOffset(x, y)
			img.Pix[o] = uint8(sr/n + 0.5)
			img.Pix[o+1] = uint8(sg/n + 0.5)
			img.Pix[o+2] = uint8(sb/n + 0.5)
			img.Pix[o+3] = uint8(sa/n + 0.5)
			filled = append(filled, i)

			for _, d := range neighbors {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if !known[ni] {
					next = append(next, ni)
				}
			}
		}

		if len(filled) == 0 && len(next) > 0 {
			// Fully isolated region with no seed anywhere; cannot happen
			// with a border-exposure mask but guards against livelock.
			break
		}
		for _, i := range filled {
			known[i] = true
		}
		frontier = dedupUnknown(next, known)
	}
}

// hasKnownNeighbor reports whether any 8-neighbor of (x, y) is valid.
func hasKnownNeighbor(mask *Mask, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= mask.Width() || ny >= mask.Height() {
				continue
			}
			if mask.Valid(nx, ny) {
				return true
			}
		}
	}
	return false
}

// dedupUnknown removes duplicates and already-filled indices from the next
// frontier wave.
func dedupUnknown(indices []int, known []bool) []int {
	seen := make(map[int]struct{}, len(indices))
	out := indices[:0]
	for _, i := range indices {
		if known[i] {
			continue
		}
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}
