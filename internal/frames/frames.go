// Package frames provides the Frame type and the disk-backed FrameStore that
// owns decoded frames for the lifetime of one job.
package frames

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// FramePattern is the file naming pattern used for decoded frames.
// It matches the pattern handed to the codec for extraction and muxing.
const FramePattern = "frame_%06d.png"

// ErrFrameMissing is returned when a frame file does not exist, typically
// because the source was partially corrupt and the decoder skipped it.
var ErrFrameMissing = errors.New("frame file missing")

// Frame is an immutable decoded pixel buffer with its position in the
// sequence. Processing stages derive new frames instead of mutating in place.
type Frame struct {
	// Index is the zero-based sequence position of this frame.
	Index int
	// Timestamp is the presentation time derived from Index and frame rate.
	Timestamp time.Duration
	// Img holds the pixel data.
	Img *image.RGBA
}

// Clone returns a deep copy of the frame's pixel buffer with the same
// index and timestamp.
func (f *Frame) Clone() *Frame {
	dst := image.NewRGBA(f.Img.Bounds())
	copy(dst.Pix, f.Img.Pix)
	return &Frame{Index: f.Index, Timestamp: f.Timestamp, Img: dst}
}

// Store is an ordered, disk-backed sequence of decoded frames. It owns frame
// lifetime during one job: frames live under the job workspace and disappear
// with it.
type Store struct {
	dir       string
	frameRate float64
	count     int
	missing   int
}

// NewStore opens a frame directory produced by the codec. The count is taken
// from the files present so that a partially decoded source is still usable.
func NewStore(dir string, frameRate float64) (*Store, error) {
	if frameRate <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %f", frameRate)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	// Frames are numbered contiguously from 1 by the codec; the count is the
	// highest index present so gaps from skipped frames are still addressable.
	count, present := 0, 0
	for _, entry := range entries {
		var n int
		if _, err := fmt.Sscanf(entry.Name(), FramePattern, &n); err == nil {
			present++
			if n > count {
				count = n
			}
		}
	}

	return &Store{dir: dir, frameRate: frameRate, count: count, missing: count - present}, nil
}

// Dir returns the directory holding the frame files.
func (s *Store) Dir() string {
	return s.dir
}

// Count returns the number of frames in the sequence, including gaps left by
// a partially decoded source.
func (s *Store) Count() int {
	return s.count
}

// Missing returns the number of indices in [0, Count()) whose frame file was
// absent when the store was opened. Loading such an index yields
// ErrFrameMissing.
func (s *Store) Missing() int {
	return s.missing
}

// FrameRate returns the fixed frame rate of the sequence.
func (s *Store) FrameRate() float64 {
	return s.frameRate
}

// Timestamp returns the presentation time of the frame at the given index.
func (s *Store) Timestamp(index int) time.Duration {
	return time.Duration(float64(index) / s.frameRate * float64(time.Second))
}

// Path returns the file path of the frame at the given zero-based index.
func (s *Store) Path(index int) string {
	// Codec output is 1-based (ffmpeg image2 numbering starts at 1).
	return filepath.Join(s.dir, fmt.Sprintf(FramePattern, index+1))
}

// Load reads and decodes the frame at the given zero-based index.
// A missing file surfaces as ErrFrameMissing so callers can record a gap
// instead of aborting the job.
func (s *Store) Load(index int) (*Frame, error) {
	if index < 0 || index >= s.count {
		return nil, fmt.Errorf("frame index %d out of range [0,%d)", index, s.count)
	}

	path := s.Path(index)
	f, err := os.Open(path) // #nosec G304 - path is derived from the job workspace
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("frame %d: %w", index, ErrFrameMissing)
		}
		return nil, fmt.Errorf("open frame %d: %w", index, err)
	}
	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", index, err)
	}

	return &Frame{
		Index:     index,
		Timestamp: s.Timestamp(index),
		Img:       toRGBA(img),
	}, nil
}

// Save encodes a frame into the given directory using the store's naming
// pattern, keeping the frame's own index. Used for processed output
// sequences that are later muxed in ascending index order.
func Save(dir string, frame *Frame) error {
	path := filepath.Join(dir, fmt.Sprintf(FramePattern, frame.Index+1))
	f, err := os.Create(path) // #nosec G304 - path is derived from the job workspace
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}

	if err := png.Encode(f, frame.Img); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("encode frame %d: %w", frame.Index, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close frame file: %w", err)
	}

	return nil
}

// toRGBA converts any decoded image to RGBA without copying when possible.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}
