package worker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/soundriff/clipsmith/internal/models"
	"github.com/soundriff/clipsmith/internal/queue"
)

// JobGetter loads the durable job record for a queued handoff.
type JobGetter interface {
	GetRender(ctx context.Context, userID string, id uuid.UUID) (*models.RenderJob, error)
}

// Worker consumes the render queue and pushes each job through the
// dispatcher. The job record is the source of truth; the queue entry only
// carries identity.
type Worker struct {
	jobs       JobGetter
	queue      *queue.Queue
	dispatcher *Dispatcher
}

func New(jobs JobGetter, q *queue.Queue, dispatcher *Dispatcher) *Worker {
	return &Worker{
		jobs:       jobs,
		queue:      q,
		dispatcher: dispatcher,
	}
}

// Start runs concurrency dequeue loops until the context is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing render job: %v", err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			w.handle(ctx, job)
		}
	}
}

func (w *Worker) handle(ctx context.Context, qj *queue.Job) {
	log.Printf("Processing render %s (user: %s)", qj.RenderID, qj.UserID)

	job, err := w.jobs.GetRender(ctx, qj.UserID, qj.RenderID)
	if err != nil {
		log.Printf("Render %s not found, dropping: %v", qj.RenderID, err)
		return
	}

	// Only pending records are claimable. A processing or terminal record
	// means a duplicate or stale queue entry; never start a second encode
	// and never resurrect a finished job.
	if job.Status != models.RenderStatusPending {
		log.Printf("Render %s already %s, skipping", job.ID, job.Status)
		return
	}

	if err := w.dispatcher.Dispatch(ctx, job); err != nil {
		log.Printf("Render %s failed: %v", job.ID, err)
	} else {
		log.Printf("Render %s dispatched successfully", job.ID)
	}
}
