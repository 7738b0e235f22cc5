package stabilize

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/framelab/stabilize-api/internal/frames"
	"github.com/framelab/stabilize-api/internal/motion"
	"github.com/framelab/stabilize-api/internal/smoothing"
)

func solidFrame(w, h int, c color.RGBA) *frames.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return &frames.Frame{Index: 5, Timestamp: 166 * time.Millisecond, Img: img}
}

func twoToneFrame(w, h int) *frames.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}
	return &frames.Frame{Img: img}
}

func TestCorrect_IdentityIsPixelIdentical(t *testing.T) {
	frame := twoToneFrame(32, 24)
	engine := NewEngine()

	out, mask := engine.Correct(frame, smoothing.Corrective{Index: 0})

	if mask.ExposedCount() != 0 {
		t.Errorf("expected fully valid mask, got %d exposed pixels", mask.ExposedCount())
	}
	for i := range frame.Img.Pix {
		if out.Img.Pix[i] != frame.Img.Pix[i] {
			t.Fatalf("pixel byte %d differs under identity correction", i)
		}
	}
}

func TestCorrect_PreservesIndexAndTimestamp(t *testing.T) {
	frame := solidFrame(16, 16, color.RGBA{R: 100, A: 255})
	engine := NewEngine()

	out, _ := engine.Correct(frame, smoothing.Corrective{
		Index:     5,
		Transform: motion.Transform{DX: 2},
	})

	if out.Index != 5 {
		t.Errorf("expected index 5, got %d", out.Index)
	}
	if out.Timestamp != 166*time.Millisecond {
		t.Errorf("expected original timestamp, got %v", out.Timestamp)
	}
}

func TestCorrect_DoesNotMutateInput(t *testing.T) {
	frame := twoToneFrame(32, 24)
	before := make([]uint8, len(frame.Img.Pix))
	copy(before, frame.Img.Pix)

	engine := NewEngine()
	engine.Correct(frame, smoothing.Corrective{Transform: motion.Transform{DX: 4, DTheta: 0.1}})

	for i := range before {
		if frame.Img.Pix[i] != before[i] {
			t.Fatal("input frame was mutated")
		}
	}
}

func TestWarp_TranslationExposesBorder(t *testing.T) {
	frame := solidFrame(40, 20, color.RGBA{G: 128, A: 255})
	engine := NewEngine()

	// A +3px corrective pushes the content right, exposing exactly the 3
	// leftmost output columns.
	_, mask := engine.warp(frame, motion.Transform{DX: 3})

	if got, want := mask.ExposedCount(), 3*20; got != want {
		t.Errorf("expected %d exposed pixels, got %d", want, got)
	}
	for y := 0; y < 20; y++ {
		if mask.Valid(1, y) {
			t.Fatalf("expected column 1 exposed at row %d", y)
		}
		if !mask.Valid(3, y) {
			t.Fatalf("expected column 3 valid at row %d", y)
		}
	}
}

// The fraction of exposed pixels must grow monotonically with the transform
// magnitude.
func TestWarp_ExposedFractionMonotonic(t *testing.T) {
	frame := solidFrame(64, 64, color.RGBA{R: 50, G: 60, B: 70, A: 255})
	engine := NewEngine()

	prev := -1.0
	for _, m := range []float64{0, 1, 2, 4, 8, 16} {
		_, mask := engine.warp(frame, motion.Transform{DX: m, DY: m / 2, DTheta: m / 200})
		frac := mask.ExposedFraction()
		if frac < prev {
			t.Fatalf("exposed fraction decreased at magnitude %f: %f < %f", m, frac, prev)
		}
		prev = frac
	}
}

func TestCorrect_InpaintFillsAllExposedPixels(t *testing.T) {
	frame := solidFrame(32, 32, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	engine := NewEngine()

	out, mask := engine.Correct(frame, smoothing.Corrective{
		Transform: motion.Transform{DX: 5, DY: 3},
	})

	if mask.ExposedCount() == 0 {
		t.Fatal("expected exposed pixels for a non-trivial transform")
	}

	// Uniform source content diffuses to the same color everywhere, so the
	// inpainted result must be uniform too, with no black border remnants.
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			i := out.Img.PixOffset(x, y)
			if out.Img.Pix[i] != 200 || out.Img.Pix[i+1] != 100 || out.Img.Pix[i+2] != 50 {
				t.Fatalf("pixel (%d,%d) not inpainted: %v", x, y, out.Img.Pix[i:i+4])
			}
		}
	}
}

func TestCorrect_InpaintNeverTouchesValidPixels(t *testing.T) {
	frame := twoToneFrame(40, 30)
	engine := NewEngine()

	// Integer translation keeps valid pixels bit-exact copies of their
	// source location, so any deviation there means inpainting leaked.
	out, mask := engine.Correct(frame, smoothing.Corrective{
		Transform: motion.Transform{DX: 4},
	})

	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			if !mask.Valid(x, y) {
				continue
			}
			wantOff := frame.Img.PixOffset(x-4, y)
			gotOff := out.Img.PixOffset(x, y)
			for ch := 0; ch < 4; ch++ {
				if out.Img.Pix[gotOff+ch] != frame.Img.Pix[wantOff+ch] {
					t.Fatalf("valid pixel (%d,%d) was altered", x, y)
				}
			}
		}
	}
}

// brightCentroidX returns the mean x of pixels with a red channel above 200.
func brightCentroidX(t *testing.T, img *image.RGBA) float64 {
	t.Helper()
	b := img.Bounds()
	var sum, n float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.Pix[img.PixOffset(x, y)] > 200 {
				sum += float64(x)
				n++
			}
		}
	}
	if n == 0 {
		t.Fatal("no bright pixels found")
	}
	return sum / n
}

// A one-frame jitter impulse run through the smoothing window and the engine
// must come out with its content pulled back toward the smoothed path, not
// pushed further away.
func TestCorrect_JitterPulledBackToSmoothedPath(t *testing.T) {
	// Trajectory 0,0,0,0,10,0,...: frame 4 jitters +10px then returns.
	deltas := []float64{0, 0, 0, 10, -10, 0, 0, 0, 0}
	history := make([]motion.Transform, len(deltas))
	for i, d := range deltas {
		history[i] = motion.Transform{DX: d}
	}

	correctives, err := smoothing.Smooth(history, 5)
	if err != nil {
		t.Fatalf("Smooth() error = %v", err)
	}
	if len(correctives) != 5 {
		t.Fatalf("expected 5 correctives, got %d", len(correctives))
	}
	// Frames 0..3 see the impulse once in their lookahead window, so the
	// low-passed path leans +2 toward it and they are nudged forward.
	for _, c := range correctives[:4] {
		if math.Abs(c.Transform.DX-2) > 1e-9 {
			t.Fatalf("frame %d: expected corrective +2, got %f", c.Index, c.Transform.DX)
		}
	}
	// Frame 4 sits +10 off a flat lookahead path; its corrective must be -10.
	if got := correctives[4].Transform.DX; math.Abs(got+10) > 1e-9 {
		t.Fatalf("frame 4 corrective DX = %f, want -10", got)
	}

	// Frame 4's content: a bright block whose resting position is x=42..46
	// but which the jitter carried to x=52..56.
	const restX, jitter = 42, 10
	img := image.NewRGBA(image.Rect(0, 0, 96, 32))
	for y := 10; y < 22; y++ {
		for x := restX + jitter; x < restX+jitter+5; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	frame := &frames.Frame{Index: 4, Img: img}

	engine := NewEngine()
	out, _ := engine.Correct(frame, correctives[4])

	want := brightCentroidX(t, img) - jitter
	got := brightCentroidX(t, out.Img)

	if dev := math.Abs(got - want); dev > 1 {
		t.Errorf("corrected centroid = %.1f, want %.1f: residual deviation %.1f px", got, want, dev)
	}
	if math.Abs(got-want) >= jitter {
		t.Errorf("deviation did not shrink: %.1f px in, %.1f px out", float64(jitter), math.Abs(got-want))
	}
}

func TestMask_Basics(t *testing.T) {
	m := NewMask(10, 5)
	if m.ExposedCount() != 0 {
		t.Errorf("new mask should be fully valid, got %d exposed", m.ExposedCount())
	}

	m.Set(3, 2, false)
	m.Set(4, 2, false)
	if m.ExposedCount() != 2 {
		t.Errorf("expected 2 exposed, got %d", m.ExposedCount())
	}
	if m.ExposedFraction() != 2.0/50.0 {
		t.Errorf("unexpected fraction %f", m.ExposedFraction())
	}
	if m.Valid(3, 2) || !m.Valid(0, 0) {
		t.Error("validity flags wrong")
	}

	c := m.Clone()
	c.Set(0, 0, false)
	if !m.Valid(0, 0) {
		t.Error("mutating clone affected original")
	}
}
