package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/framelab/stabilize-api/internal/frames"
)

// FFmpegCodec implements Codec using the ffmpeg and ffprobe CLIs.
type FFmpegCodec struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegCodec creates a new FFmpegCodec.
// If ffmpegPath is empty, the binaries are found via PATH.
func NewFFmpegCodec(ffmpegPath string) *FFmpegCodec {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegCodec{ffmpegPath: ffmpegPath, ffprobePath: "ffprobe"}
}

// Compile-time check that FFmpegCodec implements Codec.
var _ Codec = (*FFmpegCodec)(nil)

// Probe inspects the source with ffprobe: frame rate, duration, and audio
// presence. Frame count is estimated from duration and rate.
func (c *FFmpegCodec) Probe(ctx context.Context, path string) (VideoAsset, error) {
	rate, err := c.probeFrameRate(ctx, path)
	if err != nil {
		return VideoAsset{}, err
	}

	duration, err := c.probeDuration(ctx, path)
	if err != nil {
		return VideoAsset{}, err
	}

	hasAudio, err := c.probeHasAudio(ctx, path)
	if err != nil {
		return VideoAsset{}, err
	}

	return VideoAsset{
		Path:       path,
		FrameRate:  rate,
		FrameCount: int(duration.Seconds()*rate + 0.5),
		Duration:   duration,
		HasAudio:   hasAudio,
	}, nil
}

// probeFrameRate reads the first video stream's r_frame_rate.
func (c *FFmpegCodec) probeFrameRate(ctx context.Context, path string) (float64, error) {
	out, err := c.runFFprobe(ctx,
		"-v", "quiet",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, err
	}

	return ParseFrameRate(strings.TrimSpace(out)), nil
}

// ParseFrameRate parses an ffprobe r_frame_rate value, which may be a plain
// number or a fraction such as "30000/1001". Unparseable input yields the
// 30 fps default.
func ParseFrameRate(s string) float64 {
	const defaultRate = 30.0
	if s == "" {
		return defaultRate
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || d == 0 || n/d <= 0 {
			return defaultRate
		}
		return n / d
	}
	rate, err := strconv.ParseFloat(s, 64)
	if err != nil || rate <= 0 {
		return defaultRate
	}
	return rate
}

// probeDuration reads the container duration in seconds.
func (c *FFmpegCodec) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	out, err := c.runFFprobe(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// probeHasAudio checks whether the source carries an audio stream.
func (c *FFmpegCodec) probeHasAudio(ctx context.Context, path string) (bool, error) {
	out, err := c.runFFprobe(ctx,
		"-v", "quiet",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "audio", nil
}

// ExtractFrames decodes the source into numbered PNG frames at a fixed rate.
func (c *FFmpegCodec) ExtractFrames(ctx context.Context, path, dir string, fps float64) error {
	if fps <= 0 {
		return fmt.Errorf("%w: got %f", ErrInvalidFrameRate, fps)
	}

	args := []string{
		"-y",
		"-i", path,
		"-vf", fmt.Sprintf("fps=%g", fps),
		filepath.Join(dir, frames.FramePattern),
	}
	return c.runFFmpeg(ctx, args)
}

// ExtractAudio writes the source's audio stream as AAC. The audio presence
// check runs first so a silent source maps to ErrNoAudioStream rather than
// a decoder failure.
func (c *FFmpegCodec) ExtractAudio(ctx context.Context, path, audioPath string) error {
	hasAudio, err := c.probeHasAudio(ctx, path)
	if err != nil {
		return err
	}
	if !hasAudio {
		return ErrNoAudioStream
	}

	args := []string{
		"-y",
		"-i", path,
		"-vn",
		"-acodec", "aac",
		audioPath,
	}
	return c.runFFmpeg(ctx, args)
}

// SynthesizeSilence writes a silent stereo AAC track of the given duration.
func (c *FFmpegCodec) SynthesizeSilence(ctx context.Context, audioPath string, duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("silence duration must be positive, got %v", duration)
	}

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=48000",
		"-t", fmt.Sprintf("%.3f", duration.Seconds()),
		"-c:a", "aac",
		audioPath,
	}
	return c.runFFmpeg(ctx, args)
}

// Mux encodes the frame sequence together with the audio track. The
// -shortest flag trims the output to min(video duration, audio duration).
func (c *FFmpegCodec) Mux(ctx context.Context, framesDir string, fps float64, audioPath, outputPath string) error {
	if fps <= 0 {
		return fmt.Errorf("%w: got %f", ErrInvalidFrameRate, fps)
	}

	args := []string{
		"-y",
		"-framerate", fmt.Sprintf("%g", fps),
		"-i", filepath.Join(framesDir, frames.FramePattern),
		"-i", audioPath,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	}
	return c.runFFmpeg(ctx, args)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (c *FFmpegCodec) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// runFFprobe executes ffprobe and returns its stdout.
func (c *FFmpegCodec) runFFprobe(ctx context.Context, args ...string) (string, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffprobePath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return stdout.String(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr
// output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
