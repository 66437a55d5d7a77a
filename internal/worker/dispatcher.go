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

	"github.com/soundriff/clipsmith/internal/models"
	"github.com/soundriff/clipsmith/internal/render"
)

// Dispatcher decides where a render job's encode runs. With a remote worker
// configured it POSTs a compact payload reference (never the asset bytes)
// and lets the worker pull the full payload itself; otherwise it runs the
// engine in-process.
type Dispatcher struct {
	store         render.JobStore
	engine        *render.Engine
	remoteURL     string
	remoteToken   string
	publicBaseURL string
	client        *http.Client
}

func NewDispatcher(store render.JobStore, engine *render.Engine, remoteURL, remoteToken, publicBaseURL string) *Dispatcher {
	return &Dispatcher{
		store:         store,
		engine:        engine,
		remoteURL:     remoteURL,
		remoteToken:   remoteToken,
		publicBaseURL: publicBaseURL,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Dispatch routes one job. Errors are already reflected in the job record
// when Dispatch returns; the error is for the caller's log line only.
func (d *Dispatcher) Dispatch(ctx context.Context, job *models.RenderJob) error {
	if d.remoteURL == "" {
		return d.engine.Render(ctx, job)
	}
	return d.dispatchRemote(ctx, job)
}

func (d *Dispatcher) dispatchRemote(ctx context.Context, job *models.RenderJob) error {
	req := models.DispatchRequest{
		UserID:      job.UserID,
		RenderID:    job.ID,
		PayloadURL:  d.publicBaseURL + "/internal/render/payload",
		CallbackURL: d.publicBaseURL + "/internal/render/callback",
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", d.remoteURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.remoteToken)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		d.failDispatch(job, fmt.Sprintf("worker unreachable: %v", err))
		return fmt.Errorf("dispatch to worker failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		detail := fmt.Sprintf("worker returned status %d: %s", resp.StatusCode, string(respBody))
		d.failDispatch(job, detail)
		return fmt.Errorf("dispatch rejected: %s", detail)
	}

	// The worker owns the job from here; it reports back through the
	// callback endpoint.
	if err := d.store.MarkRenderProcessing(ctx, job.UserID, job.ID); err != nil {
		log.Printf("[Dispatch] could not mark %s processing: %v", job.ID, err)
	}

	log.Printf("[Dispatch] render %s handed to remote worker", job.ID)
	return nil
}

func (d *Dispatcher) failDispatch(job *models.RenderJob, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := d.store.FinalizeRender(ctx, job.UserID, job.ID, models.RenderStatusFailed, nil, &detail, "dispatch failed: "+detail+"\n"); err != nil {
		log.Printf("[Dispatch] could not record dispatch failure for %s: %v", job.ID, err)
	}
}
