package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/soundriff/clipsmith/internal/models"
)

// logTailLimit bounds the stored diagnostic tail. Appends keep only the
// most-recent slice so a chatty encoder can't grow the row without bound.
const logTailLimit = 8192

// CreateRender inserts a render job at status pending. If a row with the same
// (user_id, id) already exists (a duplicate submission under the same
// idempotency key) the existing record is returned unchanged and created is
// false. No second job, no second encode.
func (db *DB) CreateRender(ctx context.Context, job *models.RenderJob) (*models.RenderJob, bool, error) {
	query := `
		INSERT INTO renders (
			user_id, id, project_id, status, progress, options, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := db.QueryRowContext(
		ctx, query,
		job.UserID, job.ID, job.ProjectID, models.RenderStatusPending, 0,
		job.Options, job.Payload,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err == sql.ErrNoRows {
		// Conflict path: hand back the existing record.
		existing, err := db.GetRender(ctx, job.UserID, job.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load existing render: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create render: %w", err)
	}

	job.Status = models.RenderStatusPending
	job.Progress = 0
	return job, true, nil
}

func (db *DB) GetRender(ctx context.Context, userID string, id uuid.UUID) (*models.RenderJob, error) {
	query := `
		SELECT
			user_id, id, project_id, status, progress, output_url,
			error_message, log_tail, options, payload, created_at, updated_at
		FROM renders
		WHERE user_id = $1 AND id = $2
	`

	job := &models.RenderJob{}
	err := db.QueryRowContext(ctx, query, userID, id).Scan(
		&job.UserID, &job.ID, &job.ProjectID, &job.Status, &job.Progress,
		&job.OutputURL, &job.ErrorMessage, &job.LogTail,
		&job.Options, &job.Payload, &job.CreatedAt, &job.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("render not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render: %w", err)
	}

	return job, nil
}

// MarkRenderProcessing moves a pending job to processing. Jobs already
// processing or terminal are left alone.
func (db *DB) MarkRenderProcessing(ctx context.Context, userID string, id uuid.UUID) error {
	query := `
		UPDATE renders
		SET status = $1, updated_at = NOW()
		WHERE user_id = $2 AND id = $3 AND status = $4
	`
	_, err := db.ExecContext(ctx, query, models.RenderStatusProcessing, userID, id, models.RenderStatusPending)
	return err
}

// UpdateRenderProgress records encode progress and appends to the diagnostic
// tail. It is a no-op unless the job is processing, and progress never moves
// backwards (GREATEST keeps the reported sequence monotonic even if a caller
// misbehaves).
func (db *DB) UpdateRenderProgress(ctx context.Context, userID string, id uuid.UUID, progress int, logTailDelta string) error {
	query := `
		UPDATE renders
		SET progress = GREATEST(progress, $1),
		    log_tail = right(COALESCE(log_tail, '') || $2, $3),
		    updated_at = NOW()
		WHERE user_id = $4 AND id = $5 AND status = $6
	`
	_, err := db.ExecContext(ctx, query, progress, logTailDelta, logTailLimit, userID, id, models.RenderStatusProcessing)
	return err
}

// FinalizeRender sets a terminal status. Progress is clamped to 100 on
// success. Rows already terminal are untouched, so a late or duplicate
// finalize can never resurrect a job.
func (db *DB) FinalizeRender(ctx context.Context, userID string, id uuid.UUID, status models.RenderStatus, outputURL, errorMessage *string, logTailDelta string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	query := `
		UPDATE renders
		SET status = $1,
		    progress = CASE WHEN $1 = 'complete' THEN 100 ELSE progress END,
		    output_url = COALESCE($2, output_url),
		    error_message = $3,
		    log_tail = right(COALESCE(log_tail, '') || $4, $5),
		    updated_at = NOW()
		WHERE user_id = $6 AND id = $7 AND status IN ($8, $9)
	`
	_, err := db.ExecContext(ctx, query,
		status, outputURL, errorMessage, logTailDelta, logTailLimit,
		userID, id, models.RenderStatusPending, models.RenderStatusProcessing,
	)
	return err
}
