package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/soundriff/clipsmith/internal/models"
	"github.com/soundriff/clipsmith/internal/render"
	"github.com/soundriff/clipsmith/internal/storage"
	"github.com/soundriff/clipsmith/internal/worker"
)

// RenderStore is the job-record surface the handlers need. *db.DB satisfies it.
type RenderStore interface {
	CreateRender(ctx context.Context, job *models.RenderJob) (*models.RenderJob, bool, error)
	GetRender(ctx context.Context, userID string, id uuid.UUID) (*models.RenderJob, error)
	MarkRenderProcessing(ctx context.Context, userID string, id uuid.UUID) error
	UpdateRenderProgress(ctx context.Context, userID string, id uuid.UUID, progress int, logTailDelta string) error
	FinalizeRender(ctx context.Context, userID string, id uuid.UUID, status models.RenderStatus, outputURL, errorMessage *string, logTailDelta string) error
}

// Enqueuer hands accepted jobs to the render queue. *queue.Queue satisfies it.
type Enqueuer interface {
	EnqueueRender(ctx context.Context, userID string, renderID uuid.UUID) error
	Length(ctx context.Context) (int64, error)
}

type Handler struct {
	store     RenderStore
	queue     Enqueuer
	storage   *storage.Client
	publisher *render.Publisher
	remote    *worker.RemoteRenderer
	validate  *validator.Validate
}

func NewHandler(store RenderStore, q Enqueuer, stor *storage.Client, pub *render.Publisher, remote *worker.RemoteRenderer) *Handler {
	return &Handler{
		store:     store,
		queue:     q,
		storage:   stor,
		publisher: pub,
		remote:    remote,
		validate:  validator.New(),
	}
}

// SubmitRender handles POST /v1/renders.
//
// Submissions carrying an idempotency key map to a stable render ID, so a
// retried request returns the existing job instead of starting a second
// encode. The full payload is captured in the job row at submission; the
// queue and the dispatch call carry only the job's identity.
func (h *Handler) SubmitRender(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	if req.AudioURL == "" && req.AudioData == "" && req.AudioPath == "" {
		respondError(w, http.StatusBadRequest, "An audio source is required: audio_url, audio_data, or audio_path")
		return
	}

	// Every storyboard entry must point at a submitted asset; a dangling
	// reference would only fail later, inside the encode.
	assetIDs := make(map[string]bool, len(req.Assets))
	for _, a := range req.Assets {
		assetIDs[a.ID] = true
	}
	for _, item := range req.Storyboard {
		if !assetIDs[item.AssetID] {
			respondError(w, http.StatusBadRequest, "Storyboard references unknown asset: "+item.AssetID)
			return
		}
	}

	opts := req.Options
	if opts.Format == "" {
		opts.Format = models.FormatVertical
	}
	if opts.Quality == "" {
		opts.Quality = models.QualityStandard
	}

	job := &models.RenderJob{
		UserID:    req.UserID,
		ID:        models.DeriveRenderID(req.UserID, req.IdempotencyKey),
		ProjectID: req.ProjectID,
		Options:   opts,
		Payload: models.RenderPayload{
			ProjectID:  req.ProjectID,
			AudioURL:   req.AudioURL,
			AudioData:  req.AudioData,
			AudioPath:  req.AudioPath,
			Storyboard: req.Storyboard,
			Assets:     req.Assets,
		},
	}

	created, isNew, err := h.store.CreateRender(r.Context(), job)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create render")
		return
	}

	// Duplicate submission: report the existing job's state. A still-pending
	// duplicate is re-enqueued so a retry heals a submission whose original
	// enqueue was lost; the worker only claims pending records, so the extra
	// queue entry can never start a second encode.
	if !isNew {
		if created.Status == models.RenderStatusPending {
			if err := h.queue.EnqueueRender(r.Context(), created.UserID, created.ID); err != nil {
				respondError(w, http.StatusInternalServerError, "Failed to enqueue render")
				return
			}
		}
		respondJSON(w, http.StatusOK, models.SubmitRenderResponse{
			RenderID: created.ID,
			Status:   created.Status,
			Progress: created.Progress,
		})
		return
	}

	if err := h.queue.EnqueueRender(r.Context(), created.UserID, created.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue render")
		return
	}

	respondJSON(w, http.StatusAccepted, models.SubmitRenderResponse{
		RenderID: created.ID,
		Status:   created.Status,
		Progress: created.Progress,
	})
}

// GetRenderStatus handles GET /v1/renders/{renderId}.
func (h *Handler) GetRenderStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	renderID, err := uuid.Parse(chi.URLParam(r, "renderId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid render ID")
		return
	}

	job, err := h.store.GetRender(r.Context(), userID, renderID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Render not found")
		return
	}

	respondJSON(w, http.StatusOK, models.RenderStatusResponse{
		RenderID:  job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		OutputURL: job.OutputURL,
		Error:     job.ErrorMessage,
		LogTail:   job.LogTail,
	})
}

// DownloadRender handles GET /v1/renders/{renderId}/download.
//
// A locally published file streams straight from disk (http.ServeFile gives
// range support for video scrubbing). Otherwise the client is redirected to
// the storage URL.
func (h *Handler) DownloadRender(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	renderID, err := uuid.Parse(chi.URLParam(r, "renderId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid render ID")
		return
	}

	job, err := h.store.GetRender(r.Context(), userID, renderID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Render not found")
		return
	}

	if job.Status != models.RenderStatusComplete {
		respondError(w, http.StatusConflict, "Render is not complete (status: "+string(job.Status)+")")
		return
	}

	localPath := h.publisher.LocalPath(job.ID)
	if _, statErr := os.Stat(localPath); statErr == nil {
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeFile(w, r, localPath)
		return
	}

	if h.storage != nil && h.storage.Configured() {
		key := storage.RenderKey(job.ProjectID, job.ID)
		if signed, signErr := h.storage.GetSignedURL(r.Context(), key, 3600); signErr == nil {
			http.Redirect(w, r, signed, http.StatusFound)
			return
		}
		// Signing unavailable on this store; proxy the object through the
		// service instead of failing the download.
		if data, dlErr := h.storage.Download(r.Context(), key); dlErr == nil {
			w.Header().Set("Content-Type", "video/mp4")
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Write(data)
			return
		}
	}

	if job.OutputURL != nil && *job.OutputURL != "" {
		http.Redirect(w, r, *job.OutputURL, http.StatusFound)
		return
	}

	respondError(w, http.StatusNotFound, "Render artifact is no longer available")
}

// RenderPayload handles POST /internal/render/payload. The remote worker
// calls this after a dispatch to pull everything the encode needs.
func (h *Handler) RenderPayload(w http.ResponseWriter, r *http.Request) {
	var req models.PayloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.store.GetRender(r.Context(), req.UserID, req.RenderID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Render not found")
		return
	}

	respondJSON(w, http.StatusOK, models.PayloadResponse{
		UserID:   job.UserID,
		RenderID: job.ID,
		Options:  job.Options,
		Payload:  job.Payload,
	})
}

// RenderCallback handles POST /internal/render/callback: progress and
// terminal reports from the remote worker land on the job record here.
func (h *Handler) RenderCallback(w http.ResponseWriter, r *http.Request) {
	var req models.CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch {
	case req.Status == models.RenderStatusProcessing:
		if req.Progress != nil {
			if err := h.store.UpdateRenderProgress(r.Context(), req.UserID, req.RenderID, *req.Progress, req.LogTail); err != nil {
				respondError(w, http.StatusInternalServerError, "Failed to record progress")
				return
			}
		} else if err := h.store.MarkRenderProcessing(r.Context(), req.UserID, req.RenderID); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to mark render processing")
			return
		}

	case req.Status.Terminal():
		if err := h.store.FinalizeRender(r.Context(), req.UserID, req.RenderID, req.Status, req.OutputURL, req.Error, req.LogTail); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to finalize render")
			return
		}

	default:
		respondError(w, http.StatusBadRequest, "Callback status must be processing, complete, or failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WorkerRender handles POST /internal/worker/render: the worker-role entry
// point. The encode runs in the background; the dispatcher only needs to know
// the job was accepted.
func (h *Handler) WorkerRender(w http.ResponseWriter, r *http.Request) {
	if h.remote == nil {
		respondError(w, http.StatusServiceUnavailable, "Worker role is not enabled on this instance")
		return
	}

	var req models.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	go func() {
		if err := h.remote.Render(context.Background(), req); err != nil {
			log.Printf("[Worker] render %s failed: %v", req.RenderID, err)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// Health check. Reports queue depth when the queue is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if h.queue != nil {
		if n, err := h.queue.Length(r.Context()); err == nil {
			resp["queue_depth"] = n
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
