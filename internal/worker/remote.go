package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/soundriff/clipsmith/internal/models"
	"github.com/soundriff/clipsmith/internal/render"
)

const internalSecretHeader = "x-internal-render-secret"

// RemoteRenderer is the worker-side half of the dispatch contract. It pulls
// the full render payload from the orchestrator's payload endpoint, runs the
// engine locally, and reports progress and the final outcome through the
// callback endpoint. The orchestrator's record stays authoritative; this
// process keeps no durable state of its own.
type RemoteRenderer struct {
	secret     string
	engineOpts render.Options
	publisher  *render.Publisher
	client     *http.Client
}

func NewRemoteRenderer(secret string, publisher *render.Publisher, opts render.Options) *RemoteRenderer {
	return &RemoteRenderer{
		secret:     secret,
		engineOpts: opts,
		publisher:  publisher,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Render executes one dispatched job. It fetches the payload, then hands the
// job to an Engine wired to a callback-backed store so every status change
// lands on the orchestrator.
func (r *RemoteRenderer) Render(ctx context.Context, req models.DispatchRequest) error {
	payload, err := r.fetchPayload(ctx, req)
	if err != nil {
		r.reportFetchFailure(req, err)
		return fmt.Errorf("failed to fetch payload for %s: %w", req.RenderID, err)
	}

	job := &models.RenderJob{
		UserID:  payload.UserID,
		ID:      payload.RenderID,
		Status:  models.RenderStatusProcessing,
		Options: payload.Options,
		Payload: payload.Payload,
	}

	store := &callbackStore{
		url:    req.CallbackURL,
		secret: r.secret,
		client: r.client,
	}
	engine := render.NewEngine(store, r.publisher, r.engineOpts)

	log.Printf("[RemoteWorker] starting render %s", job.ID)
	return engine.Render(ctx, job)
}

func (r *RemoteRenderer) fetchPayload(ctx context.Context, req models.DispatchRequest) (*models.PayloadResponse, error) {
	body, err := json.Marshal(models.PayloadRequest{UserID: req.UserID, RenderID: req.RenderID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", req.PayloadURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create payload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(internalSecretHeader, r.secret)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payload fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("payload endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var payload models.PayloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload response: %w", err)
	}
	return &payload, nil
}

// reportFetchFailure tells the orchestrator the job died before the engine
// ever saw it. Best effort; the orchestrator's timeout sweep is the backstop.
func (r *RemoteRenderer) reportFetchFailure(req models.DispatchRequest, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg := fmt.Sprintf("payload fetch failed: %v", cause)
	store := &callbackStore{url: req.CallbackURL, secret: r.secret, client: r.client}
	if err := store.FinalizeRender(ctx, req.UserID, req.RenderID, models.RenderStatusFailed, nil, &msg, msg+"\n"); err != nil {
		log.Printf("[RemoteWorker] could not report fetch failure for %s: %v", req.RenderID, err)
	}
}

// callbackStore implements render.JobStore over the orchestrator's callback
// endpoint. Each mutation becomes one CallbackRequest POST.
type callbackStore struct {
	url    string
	secret string
	client *http.Client
}

func (s *callbackStore) MarkRenderProcessing(ctx context.Context, userID string, id uuid.UUID) error {
	progress := 0
	return s.post(ctx, models.CallbackRequest{
		UserID:   userID,
		RenderID: id,
		Status:   models.RenderStatusProcessing,
		Progress: &progress,
	})
}

func (s *callbackStore) UpdateRenderProgress(ctx context.Context, userID string, id uuid.UUID, progress int, logTailDelta string) error {
	return s.post(ctx, models.CallbackRequest{
		UserID:   userID,
		RenderID: id,
		Status:   models.RenderStatusProcessing,
		Progress: &progress,
		LogTail:  logTailDelta,
	})
}

func (s *callbackStore) FinalizeRender(ctx context.Context, userID string, id uuid.UUID, status models.RenderStatus, outputURL, errorMessage *string, logTailDelta string) error {
	return s.post(ctx, models.CallbackRequest{
		UserID:    userID,
		RenderID:  id,
		Status:    status,
		OutputURL: outputURL,
		Error:     errorMessage,
		LogTail:   logTailDelta,
	})
}

func (s *callbackStore) post(ctx context.Context, cb models.CallbackRequest) error {
	body, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("failed to marshal callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(internalSecretHeader, s.secret)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
