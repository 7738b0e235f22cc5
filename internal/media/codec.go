// Package media abstracts the external transcoder behind a Codec interface
// so the causal stabilization algorithm stays decoupled from whichever
// concrete decode/encode mechanism runs underneath.
package media

import (
	"context"
	"errors"
	"time"
)

// Static errors for media operations.
var (
	// ErrInvalidFrameRate is returned when a probed or requested frame rate
	// is not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate: must be positive")
	// ErrFFprobeExecution is returned when an ffprobe invocation fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoAudioStream is returned by audio extraction when the source has
	// no audio stream. Callers recover by synthesizing silence.
	ErrNoAudioStream = errors.New("source has no audio stream")
)

// VideoAsset describes a probed source video. It is read-only after creation.
type VideoAsset struct {
	// Path is the source file location.
	Path string
	// FrameRate is the native frame rate in frames per second.
	FrameRate float64
	// FrameCount is the frame total estimated from duration and rate; the
	// authoritative count comes from the extracted frame sequence.
	FrameCount int
	// Duration is the container duration.
	Duration time.Duration
	// HasAudio reports whether an audio stream is present.
	HasAudio bool
}

// Codec decodes a video into a fixed-rate frame sequence plus an audio
// track, and re-encodes a frame sequence plus an audio track into a
// container file. Implementations must be safe for concurrent jobs.
type Codec interface {
	// Probe inspects the source file and returns its asset description.
	Probe(ctx context.Context, path string) (VideoAsset, error)

	// ExtractFrames decodes the source into numbered PNG frames inside dir
	// at the given fixed rate.
	ExtractFrames(ctx context.Context, path, dir string, fps float64) error

	// ExtractAudio writes the source's audio stream to audioPath as AAC.
	// Returns ErrNoAudioStream when the source carries no audio.
	ExtractAudio(ctx context.Context, path, audioPath string) error

	// SynthesizeSilence writes a silent AAC track of the given duration.
	SynthesizeSilence(ctx context.Context, audioPath string, duration time.Duration) error

	// Mux encodes the numbered frame sequence in framesDir together with the
	// audio track into outputPath, trimming to the shorter of the two
	// streams so video and audio never drift.
	Mux(ctx context.Context, framesDir string, fps float64, audioPath, outputPath string) error
}
