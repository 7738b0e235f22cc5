// Package pipeline sequences the processing stages of a single job: probe,
// demux, motion estimation, smoothing, correction, mux, and publish. The
// orchestrator owns the per-job workspace and guarantees it is removed on
// every exit path.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/framelab/stabilize-api/internal/audio"
	"github.com/framelab/stabilize-api/internal/effect"
	"github.com/framelab/stabilize-api/internal/errs"
	"github.com/framelab/stabilize-api/internal/frames"
	"github.com/framelab/stabilize-api/internal/media"
	"github.com/framelab/stabilize-api/internal/motion"
	"github.com/framelab/stabilize-api/internal/smoothing"
	"github.com/framelab/stabilize-api/internal/stabilize"
	"github.com/framelab/stabilize-api/internal/storage"
)

// EffectStabilize is the selector for the built-in stabilization pipeline.
// All other selectors resolve through the effect registry.
const EffectStabilize = "stabilize"

// Request describes one processing job.
type Request struct {
	// InputPath is the source video; must be an existing regular file.
	InputPath string
	// Effect selects the processing applied to the frames.
	Effect string
	// ReferenceImagePath optionally points at a reference image for effects
	// that condition on one.
	ReferenceImagePath string
}

// Result describes a finished job.
type Result struct {
	// Link is the download path of the published artifact.
	Link string
	// AbsolutePath is the published artifact's location on disk.
	AbsolutePath string
	// RemoteURL is the S3 URL when remote upload is configured.
	RemoteURL string
	// OutputFrames is the number of frames in the published video.
	OutputFrames int
	// SkippedFrames lists indices of frames dropped because their files
	// could not be read.
	SkippedFrames []int
	// Warnings carries recovered, non-fatal conditions.
	Warnings []string
}

// Options tunes the orchestrator. Zero fields fall back to defaults.
type Options struct {
	// TempDir is where per-job workspaces are created. Defaults to the
	// system temp directory.
	TempDir string
	// Window is the smoothing lag W in frames. Defaults to 30.
	Window int
	// Workers bounds the parallel correction stage. Defaults to 4.
	Workers int
	// MotionParams tunes the motion estimator.
	MotionParams motion.Params
	// AudioProber, when set, measures prepared audio tracks so that a
	// drift against the video duration can be surfaced as a warning.
	AudioProber audio.Prober
}

// Orchestrator runs jobs to completion. Stages within a job are strictly
// sequential; only per-frame correction runs on a bounded worker pool. The
// orchestrator itself is stateless across jobs and safe for concurrent use.
type Orchestrator struct {
	codec     media.Codec
	publisher storage.Publisher
	effects   *effect.Registry
	engine    *stabilize.Engine
	logger    *slog.Logger

	tempDir string
	window  int
	workers int
	params  motion.Params
	prober  audio.Prober
}

// New creates an Orchestrator.
func New(codec media.Codec, publisher storage.Publisher, effects *effect.Registry, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Window <= 0 {
		opts.Window = 30
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	return &Orchestrator{
		codec:     codec,
		publisher: publisher,
		effects:   effects,
		engine:    stabilize.NewEngine(),
		logger:    logger,
		tempDir:   opts.TempDir,
		window:    opts.Window,
		workers:   opts.Workers,
		params:    opts.MotionParams,
		prober:    opts.AudioProber,
	}
}

// Window returns the configured smoothing lag.
func (o *Orchestrator) Window() int {
	return o.window
}

// Run processes one job: demux the input into the workspace, apply the
// selected effect or the stabilization pipeline, mux, and publish. The
// workspace is removed before Run returns, on success, failure, and panic
// alike. A non-nil error always carries an errs.Kind.
func (o *Orchestrator) Run(ctx context.Context, req Request) (result *Result, err error) {
	if err := validateInput(req.InputPath); err != nil {
		return nil, err
	}

	workspace, err := os.MkdirTemp(o.tempDir, "stabilize_job_*")
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "create workspace", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			o.logger.Error("failed to remove workspace",
				slog.String("workspace", workspace),
				slog.String("error", rmErr.Error()),
			)
		}
	}()

	asset, err := o.codec.Probe(ctx, req.InputPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindDecodeFailure, "probe input", err)
	}

	o.logger.Info("input probed",
		slog.String("path", req.InputPath),
		slog.Float64("fps", asset.FrameRate),
		slog.Duration("duration", asset.Duration),
		slog.Bool("has_audio", asset.HasAudio),
	)

	framesDir := filepath.Join(workspace, "frames")
	if err := os.MkdirAll(framesDir, 0750); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "create frames dir", err)
	}
	if err := o.codec.ExtractFrames(ctx, req.InputPath, framesDir, asset.FrameRate); err != nil {
		return nil, errs.Wrap(errs.KindDecodeFailure, "extract frames", err)
	}

	store, err := frames.NewStore(framesDir, asset.FrameRate)
	if err != nil {
		return nil, errs.Wrap(errs.KindDecodeFailure, "open frame store", err)
	}
	if store.Count() == 0 {
		return nil, errs.New(errs.KindDecodeFailure, "no frames decoded from input")
	}

	var warnings []string
	track, audioWarnings, err := o.prepareAudio(ctx, workspace, req.InputPath, asset)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, audioWarnings...)

	outDir := filepath.Join(workspace, "out")
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "create output dir", err)
	}

	var skipped []int
	if req.Effect == EffectStabilize {
		skipped, err = o.runStabilize(ctx, store, outDir)
	} else {
		skipped, err = o.runEffect(ctx, req, store, outDir)
	}
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		warnings = append(warnings, errs.New(errs.KindPartialDecodeGap,
			fmt.Sprintf("%d frame(s) skipped", len(skipped))).Error())
	}

	written, err := compactSequence(outDir, skipped)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "compact output sequence", err)
	}
	if written == 0 {
		return nil, errs.New(errs.KindEncodeFailure, "no output frames produced")
	}

	resultPath := filepath.Join(workspace, "result.mov")
	if err := o.codec.Mux(ctx, outDir, asset.FrameRate, track.Path, resultPath); err != nil {
		return nil, errs.Wrap(errs.KindEncodeFailure, "mux output", err)
	}

	suffix := req.Effect
	if req.Effect == EffectStabilize {
		suffix = "stabilized"
	}
	artifact, err := o.publisher.Publish(ctx, resultPath, req.InputPath, suffix)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "publish artifact", err)
	}

	o.logger.Info("job finished",
		slog.String("link", artifact.Link),
		slog.Int("output_frames", written),
		slog.Int("skipped_frames", len(skipped)),
	)

	return &Result{
		Link:          artifact.Link,
		AbsolutePath:  artifact.AbsolutePath,
		RemoteURL:     artifact.RemoteURL,
		OutputFrames:  written,
		SkippedFrames: skipped,
		Warnings:      warnings,
	}, nil
}

// validateInput checks the request path before any workspace is created.
func validateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.New(errs.KindPathNotFound, fmt.Sprintf("input path %s does not exist", path))
		}
		return errs.Wrap(errs.KindInternal, "stat input path", err)
	}
	if !info.Mode().IsRegular() {
		return errs.New(errs.KindNotARegularFile, fmt.Sprintf("input path %s is not a regular file", path))
	}
	return nil
}

// prepareAudio extracts the source audio or synthesizes silence sized to the
// asset duration. Extraction failures are recovered, never fatal; only a
// failed silence synthesis aborts the job.
func (o *Orchestrator) prepareAudio(ctx context.Context, workspace, inputPath string, asset media.VideoAsset) (audio.Track, []string, error) {
	audioPath := filepath.Join(workspace, "audio.aac")
	var warnings []string

	if asset.HasAudio {
		err := o.codec.ExtractAudio(ctx, inputPath, audioPath)
		if err == nil {
			track := audio.Track{Path: audioPath, Duration: asset.Duration}
			if w := o.checkAudioDrift(ctx, &track, asset.Duration); w != "" {
				warnings = append(warnings, w)
			}
			return track, warnings, nil
		}
		if !errors.Is(err, media.ErrNoAudioStream) {
			warnings = append(warnings, errs.Wrap(errs.KindAudioExtractionFailure,
				"audio extraction failed, using silence", err).Error())
			o.logger.Warn("audio extraction failed, synthesizing silence",
				slog.String("error", err.Error()),
			)
		}
	}

	if err := o.codec.SynthesizeSilence(ctx, audioPath, asset.Duration); err != nil {
		return audio.Track{}, nil, errs.Wrap(errs.KindEncodeFailure, "synthesize silence", err)
	}
	return audio.Track{Path: audioPath, Duration: asset.Duration, Synthesized: true}, warnings, nil
}

// checkAudioDrift measures the prepared track when a prober is configured
// and records its real duration. A drift beyond 250ms against the video is
// surfaced as a warning; -shortest trimming at mux time keeps the streams
// aligned either way.
func (o *Orchestrator) checkAudioDrift(ctx context.Context, track *audio.Track, videoDuration time.Duration) string {
	if o.prober == nil {
		return ""
	}

	measured, err := o.prober.Duration(ctx, track.Path)
	if err != nil {
		o.logger.Warn("audio duration probe failed",
			slog.String("path", track.Path),
			slog.String("error", err.Error()),
		)
		return ""
	}
	track.Duration = measured

	drift := measured - videoDuration
	if drift < 0 {
		drift = -drift
	}
	if drift > 250*time.Millisecond {
		o.logger.Warn("audio drifts from video duration",
			slog.Duration("audio", measured),
			slog.Duration("video", videoDuration),
		)
		return fmt.Sprintf("audio duration %s drifts from video duration %s", measured, videoDuration)
	}
	return ""
}

// runStabilize executes motion estimation, smoothing, and the parallel
// correction stage, writing corrected frames to outDir. It returns the
// indices of frames skipped due to unreadable files.
func (o *Orchestrator) runStabilize(ctx context.Context, store *frames.Store, outDir string) ([]int, error) {
	count := store.Count()
	// Gap frames contribute nothing to the trajectory, so only readable
	// frames count toward the minimum.
	if usable := count - store.Missing(); usable <= o.window {
		return nil, errs.New(errs.KindInsufficientFrames,
			fmt.Sprintf("%d readable frame(s) of %d decoded, need more than the smoothing lag of %d", usable, count, o.window))
	}

	estimator := motion.NewEstimator(o.params)

	var skipped []int
	skippedSet := make(map[int]bool)
	history := make([]motion.Transform, 0, count-1)

	prev, err := store.Load(0)
	if err != nil {
		if !errors.Is(err, frames.ErrFrameMissing) {
			return nil, errs.Wrap(errs.KindDecodeFailure, "load frame 0", err)
		}
		skipped = append(skipped, 0)
		skippedSet[0] = true
	}

	for i := 1; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.KindInternal, "job cancelled", err)
		}

		cur, err := store.Load(i)
		if err != nil {
			if !errors.Is(err, frames.ErrFrameMissing) {
				return nil, errs.Wrap(errs.KindDecodeFailure, fmt.Sprintf("load frame %d", i), err)
			}
			// Unreadable frame: zero motion for this step, keep the last
			// good frame as reference.
			skipped = append(skipped, i)
			skippedSet[i] = true
			history = append(history, motion.Transform{})
			continue
		}

		history = append(history, estimator.Estimate(prev, cur))
		prev = cur
	}

	correctives, err := smoothing.Smooth(history, o.window)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "smooth trajectory", err)
	}

	o.logger.Info("trajectory smoothed",
		slog.Int("frames", count),
		slog.Int("correctives", len(correctives)),
	)

	if err := o.correctFrames(ctx, store, outDir, correctives, skippedSet); err != nil {
		return nil, err
	}
	return skipped, nil
}

// correctFrames runs warp+inpaint for each corrective on a bounded worker
// pool. Results land in index-named files, so order never depends on worker
// scheduling.
func (o *Orchestrator) correctFrames(ctx context.Context, store *frames.Store, outDir string, correctives []smoothing.Corrective, skippedSet map[int]bool) error {
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, c := range correctives {
		if skippedSet[c.Index] {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(c smoothing.Corrective) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			frame, err := store.Load(c.Index)
			if err != nil {
				// Already counted during estimation; nothing to correct.
				if errors.Is(err, frames.ErrFrameMissing) {
					return
				}
				mu.Lock()
				if firstErr == nil {
					firstErr = errs.Wrap(errs.KindDecodeFailure, fmt.Sprintf("load frame %d", c.Index), err)
				}
				mu.Unlock()
				return
			}

			corrected, _ := o.engine.Correct(frame, c)
			if err := frames.Save(outDir, corrected); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = errs.Wrap(errs.KindEncodeFailure, fmt.Sprintf("save frame %d", c.Index), err)
				}
				mu.Unlock()
			}
		}(c)
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.KindInternal, "job cancelled", err)
	}
	return nil
}

// runEffect applies a registered per-frame effect to every frame, reusing the
// same demux/mux plumbing as stabilization.
func (o *Orchestrator) runEffect(ctx context.Context, req Request, store *frames.Store, outDir string) ([]int, error) {
	fx, err := o.effects.Get(req.Effect)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "resolve effect", err)
	}

	if req.ReferenceImagePath != "" {
		ref, ok := fx.(effect.Referencer)
		if !ok {
			return nil, errs.New(errs.KindInternal,
				fmt.Sprintf("effect %s does not accept a reference image", req.Effect))
		}
		data, err := os.ReadFile(req.ReferenceImagePath) // #nosec G304 - validated request input
		if err != nil {
			return nil, errs.Wrap(errs.KindPathNotFound, "read reference image", err)
		}
		fx = ref.WithReference(base64.StdEncoding.EncodeToString(data))
	}

	var skipped []int
	for i := 0; i < store.Count(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.KindInternal, "job cancelled", err)
		}

		frame, err := store.Load(i)
		if err != nil {
			if errors.Is(err, frames.ErrFrameMissing) {
				skipped = append(skipped, i)
				continue
			}
			return nil, errs.Wrap(errs.KindDecodeFailure, fmt.Sprintf("load frame %d", i), err)
		}

		processed, err := fx.Process(ctx, frame)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, fmt.Sprintf("apply %s to frame %d", req.Effect, i), err)
		}
		if err := frames.Save(outDir, processed); err != nil {
			return nil, errs.Wrap(errs.KindEncodeFailure, fmt.Sprintf("save frame %d", i), err)
		}
	}
	return skipped, nil
}

// compactSequence renumbers the frame files in dir into a contiguous
// ascending sequence so the encoder never stops at a gap left by a skipped
// frame. It returns the number of frames present. A gap-free sequence is
// left untouched.
func compactSequence(dir string, skipped []int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read output dir: %w", err)
	}

	var numbers []int
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), frames.FramePattern, &n); err == nil {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)

	if len(skipped) == 0 {
		return len(numbers), nil
	}

	for target, n := range numbers {
		if n == target+1 {
			continue
		}
		from := filepath.Join(dir, fmt.Sprintf(frames.FramePattern, n))
		to := filepath.Join(dir, fmt.Sprintf(frames.FramePattern, target+1))
		if err := os.Rename(from, to); err != nil {
			return 0, fmt.Errorf("renumber frame %d: %w", n, err)
		}
	}
	return len(numbers), nil
}
