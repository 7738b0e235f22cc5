// Package audio provides the audio track abstraction for pipeline jobs:
// either a stream extracted from the source video or silence synthesized to
// match the video duration.
package audio

import (
	"context"
	"time"
)

// Track is an audio stream on disk together with its measured duration.
type Track struct {
	// Path is the location of the encoded audio file.
	Path string
	// Duration is the measured track duration.
	Duration time.Duration
	// Synthesized reports whether the track is generated silence rather
	// than audio extracted from the source.
	Synthesized bool
}

// Prober measures properties of audio files.
type Prober interface {
	// Duration returns the duration of the audio file at path.
	Duration(ctx context.Context, path string) (time.Duration, error)
}
