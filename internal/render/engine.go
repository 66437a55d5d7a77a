package render

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/soundriff/clipsmith/internal/models"
)

// JobStore is the slice of the durable job record the engine mutates. The
// Postgres store implements it for in-process rendering; the remote-worker
// path implements it with HTTP callbacks.
type JobStore interface {
	MarkRenderProcessing(ctx context.Context, userID string, id uuid.UUID) error
	UpdateRenderProgress(ctx context.Context, userID string, id uuid.UUID, progress int, logTailDelta string) error
	FinalizeRender(ctx context.Context, userID string, id uuid.UUID, status models.RenderStatus, outputURL, errorMessage *string, logTailDelta string) error
}

// Options configures an Engine.
type Options struct {
	WorkDir          string
	WatermarkText    string
	RenderTimeout    time.Duration
	DownloadTimeout  time.Duration
	ParallelEncodes  int
	ProgressInterval time.Duration // store-write throttle; defaults to 1s
}

// Engine orchestrates one render job end to end: materialize inputs, pick a
// composition strategy, run the encoder, publish the artifact, finalize the
// record. Every failure path inside Render ends in a terminal job update;
// no error escapes to leave a job stuck in processing.
type Engine struct {
	store            JobStore
	materializer     *Materializer
	supervisor       *Supervisor
	publisher        *Publisher
	workDir          string
	watermarkText    string
	renderTimeout    time.Duration
	parallelEncodes  int
	progressInterval time.Duration
}

func NewEngine(store JobStore, publisher *Publisher, opts Options) *Engine {
	if opts.ParallelEncodes <= 0 {
		opts.ParallelEncodes = 1
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = time.Second
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = 300 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 60 * time.Second
	}
	return &Engine{
		store:            store,
		materializer:     NewMaterializer(opts.DownloadTimeout),
		supervisor:       NewSupervisor(),
		publisher:        publisher,
		workDir:          opts.WorkDir,
		watermarkText:    opts.WatermarkText,
		renderTimeout:    opts.RenderTimeout,
		parallelEncodes:  opts.ParallelEncodes,
		progressInterval: opts.ProgressInterval,
	}
}

// Render runs the full pipeline for one job. The returned error mirrors the
// job's terminal state for the caller's logs; the job record itself is
// always finalized before Render returns.
func (e *Engine) Render(ctx context.Context, job *models.RenderJob) error {
	log.Printf("[Engine] render %s starting (user=%s project=%s)", job.ID, job.UserID, job.ProjectID)

	// Wall-clock ceiling for the whole job; expiry kills any running
	// subprocess via CommandContext and force-fails the job.
	ctx, cancel := context.WithTimeout(ctx, e.renderTimeout)
	defer cancel()

	if err := e.store.MarkRenderProcessing(ctx, job.UserID, job.ID); err != nil {
		return fmt.Errorf("failed to mark render processing: %w", err)
	}

	outputURL, err := e.run(ctx, job)
	if err != nil {
		e.fail(job, err)
		return err
	}

	// Terminal updates use a fresh context: the job context may be expired
	// or cancelled, and a finished render must still be recorded.
	finCtx, finCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer finCancel()

	if err := e.store.FinalizeRender(finCtx, job.UserID, job.ID, models.RenderStatusComplete, &outputURL, nil, "render complete\n"); err != nil {
		return fmt.Errorf("failed to finalize render: %w", err)
	}

	log.Printf("[Engine] render %s complete: %s", job.ID, outputURL)
	return nil
}

// run is the fallible middle of the pipeline; Render converts its error into
// the terminal record.
func (e *Engine) run(ctx context.Context, job *models.RenderJob) (string, error) {
	ws, err := NewWorkspace(e.workDir, job.ID)
	if err != nil {
		return "", err
	}
	defer ws.Cleanup()

	sink := newProgressSink(e.progressInterval, func(pct int, delta string) {
		// Progress writes are best-effort; a transient store error must not
		// kill the encode.
		if err := e.store.UpdateRenderProgress(ctx, job.UserID, job.ID, pct, delta); err != nil {
			log.Printf("[Engine] progress write failed for %s: %v", job.ID, err)
		}
	})

	audioPath, err := e.materializer.MaterializeAudio(ctx, ws, &job.Payload)
	if err != nil {
		return "", err
	}

	scenes, err := e.materializer.MaterializeScenes(ctx, ws, &job.Payload)
	if err != nil {
		return "", err
	}

	strategy := SelectStrategy(scenes, job.Options)
	log.Printf("[Engine] render %s: %d scenes, strategy=%s", job.ID, len(scenes), strategy)

	var outPath string
	if strategy == StrategyCrossfade {
		outPath, err = e.composeCrossfade(ctx, ws, scenes, audioPath, job.Options, sink)
	} else {
		outPath, err = e.composeSequential(ctx, ws, scenes, audioPath, job.Options, sink)
	}
	if err != nil {
		return "", err
	}

	// Verify the container before shipping it; the probe output lands in the
	// job's log tail for later diagnosis.
	if probe, perr := Probe(ctx, outPath); perr != nil {
		log.Printf("[Engine] probe of %s failed: %v", job.ID, perr)
	} else {
		sink.Flush(progressMux, probe)
	}

	outputURL, err := e.publisher.Publish(ctx, outPath, job.ProjectID, job.ID)
	if err != nil {
		return "", fmt.Errorf("publish failed: %w", err)
	}

	return outputURL, nil
}

// fail records a terminal failure. It deliberately ignores the caller's
// (possibly dead) context.
func (e *Engine) fail(job *models.RenderJob, cause error) {
	log.Printf("[Engine] render %s failed: %v", job.ID, cause)

	finCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := truncateError(cause.Error(), 2000)
	if err := e.store.FinalizeRender(finCtx, job.UserID, job.ID, models.RenderStatusFailed, nil, &msg, "render failed: "+msg+"\n"); err != nil {
		log.Printf("[Engine] could not record failure for %s: %v", job.ID, err)
	}
}

// truncateError keeps the trailing slice of a long diagnostic string; the
// end of encoder output is where the actual error lives.
func truncateError(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
