package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/soundriff/clipsmith/internal/models"
)

// Progress budget across composition phases. Sub-clip encodes dominate the
// wall clock, the final mux pays the audio re-encode, publishing takes the
// rest up to the 95 ceiling; 100 is set by finalize alone.
const (
	progressSubClips = 75
	progressConcat   = 80
	progressMux      = 95
)

// composeSequential encodes one sub-clip per scene (in parallel, bounded),
// concatenates them losslessly via a concat manifest, and muxes the project
// audio once. Returns the path of the finished file inside the workspace.
func (e *Engine) composeSequential(ctx context.Context, ws *Workspace, scenes []Scene, audioPath string, opts models.RenderOptions, sink *progressSink) (string, error) {
	res := models.ResolutionFor(opts.Format)
	enc := models.EncodePresetFor(opts.Quality)
	watermark := ""
	if opts.Watermark {
		watermark = e.watermarkText
	}

	clipPaths := make([]string, len(scenes))
	var completed int64

	// Sub-clip encodes are independent; run them in parallel with a join
	// barrier before concat. Any failure cancels the rest and fails the job.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelEncodes)

	for i, scene := range scenes {
		i, scene := i, scene // per-iteration copies for pre-1.22 loopvar semantics
		g.Go(func() error {
			out := ws.Path(fmt.Sprintf("clip_%03d.mp4", scene.Index))
			argv := subClipArgs(scene, out, res, enc, watermark)

			if _, err := e.supervisor.Run(gctx, argv, 0, nil); err != nil {
				return fmt.Errorf("scene %d encode failed: %w", scene.Index, err)
			}
			clipPaths[i] = out

			done := atomic.AddInt64(&completed, 1)
			pct := int(done) * progressSubClips / len(scenes)
			sink.Report(pct, fmt.Sprintf("scene %d/%d encoded", done, len(scenes)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	// Lossless concat via the concat demuxer: all sub-clips share codec,
	// resolution and frame rate, so the video streams are copied as-is.
	listPath := ws.Path("concat_list.txt")
	var list strings.Builder
	for _, p := range clipPaths {
		fmt.Fprintf(&list, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write concat manifest: %w", err)
	}

	concatPath := ws.Path("concat.mp4")
	concatArgs := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		concatPath,
	}
	if _, err := e.supervisor.Run(ctx, concatArgs, 0, nil); err != nil {
		return "", fmt.Errorf("concat failed: %w", err)
	}
	sink.Report(progressConcat, "sub-clips concatenated")

	// Single audio mux: video stream copied, audio re-encoded, output
	// trimmed to the shorter stream and finalized for progressive playback.
	outPath := ws.Path("output.mp4")
	muxArgs := []string{
		"-y",
		"-i", concatPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		"-video_track_timescale", "15360",
		outPath,
	}

	totalSec := TotalDuration(scenes, StrategySequential, 0)
	if _, err := e.supervisor.Run(ctx, muxArgs, totalSec, func(pct int, line string) {
		// Map mux progress into its slice of the overall budget.
		overall := progressConcat + pct*(progressMux-progressConcat)/100
		sink.Report(overall, line)
	}); err != nil {
		return "", fmt.Errorf("audio mux failed: %w", err)
	}

	return outPath, nil
}

// subClipArgs builds the encoder invocation for one scene.
func subClipArgs(scene Scene, out string, res models.Resolution, enc models.EncodePreset, watermark string) []string {
	if scene.Video {
		// Pre-animated clip: loop to cover the scene duration, trim, strip
		// its native audio, normalize to the target frame.
		vf := BuildVideoFilter(res, models.RenderFPS, watermark)
		return []string{
			"-y",
			"-stream_loop", "-1",
			"-i", scene.Path,
			"-t", fmt.Sprintf("%.2f", scene.DurationSec),
			"-vf", vf,
			"-an",
			"-c:v", "libx264",
			"-preset", enc.Preset,
			"-crf", fmt.Sprintf("%d", enc.CRF),
			"-pix_fmt", "yuv420p",
			out,
		}
	}

	vf := BuildImageFilter(res, scene.DurationSec, models.RenderFPS, scene.Animate, watermark)
	return []string{
		"-y",
		"-framerate", fmt.Sprintf("%d", models.RenderFPS),
		"-loop", "1",
		"-t", fmt.Sprintf("%.2f", scene.DurationSec),
		"-i", scene.Path,
		"-vf", vf,
		"-r", fmt.Sprintf("%d", models.RenderFPS),
		"-c:v", "libx264",
		"-preset", enc.Preset,
		"-crf", fmt.Sprintf("%d", enc.CRF),
		"-pix_fmt", "yuv420p",
		out,
	}
}

// composeCrossfade builds one filtergraph that cross-dissolves adjacent
// still-image streams and muxes audio in the same pass. A single-scene board
// degenerates to a plain filtered encode.
func (e *Engine) composeCrossfade(ctx context.Context, ws *Workspace, scenes []Scene, audioPath string, opts models.RenderOptions, sink *progressSink) (string, error) {
	res := models.ResolutionFor(opts.Format)
	enc := models.EncodePresetFor(opts.Quality)
	watermark := ""
	if opts.Watermark {
		watermark = e.watermarkText
	}

	c := opts.CrossfadeDuration
	if c <= 0 {
		c = 0.5
	}

	argv := []string{"-y"}
	durations := make([]float64, len(scenes))
	for i, scene := range scenes {
		durations[i] = scene.DurationSec
		argv = append(argv,
			"-framerate", fmt.Sprintf("%d", models.RenderFPS),
			"-loop", "1",
			"-t", fmt.Sprintf("%.2f", scene.DurationSec),
			"-i", scene.Path,
		)
	}
	argv = append(argv, "-i", audioPath)
	audioIndex := len(scenes)

	var fc strings.Builder
	normalize := BuildNormalizeFilter(res, models.RenderFPS)
	for i := range scenes {
		fmt.Fprintf(&fc, "[%d:v]%s,format=yuv420p[v%d];", i, normalize, i)
	}

	last := "[v0]"
	if len(scenes) > 1 {
		offsets := CrossfadeOffsets(durations, c)
		for i := 1; i < len(scenes); i++ {
			out := fmt.Sprintf("[x%d]", i)
			fmt.Fprintf(&fc, "%s[v%d]xfade=transition=fade:duration=%.2f:offset=%.2f%s;", last, i, c, offsets[i-1], out)
			last = out
		}
	}

	// Format/watermark pass applied once on the composed stream.
	fmt.Fprintf(&fc, "%s%s[v]", last, BuildFinalizeFilter(res, watermark))

	outPath := ws.Path("output.mp4")
	argv = append(argv,
		"-filter_complex", fc.String(),
		"-map", "[v]",
		"-map", fmt.Sprintf("%d:a:0", audioIndex),
		"-c:v", "libx264",
		"-preset", enc.Preset,
		"-crf", fmt.Sprintf("%d", enc.CRF),
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%d", models.RenderFPS),
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		"-video_track_timescale", "15360",
		outPath,
	)

	totalSec := TotalDuration(scenes, StrategyCrossfade, c)
	log.Printf("[Engine] crossfade composition: %d scenes, %.1fs expected", len(scenes), totalSec)

	if _, err := e.supervisor.Run(ctx, argv, totalSec, func(pct int, line string) {
		overall := pct * progressMux / 100
		sink.Report(overall, line)
	}); err != nil {
		return "", fmt.Errorf("crossfade encode failed: %w", err)
	}

	return outPath, nil
}
