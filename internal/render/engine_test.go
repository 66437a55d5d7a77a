package render

import (
	"context"
	"encoding/base64"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/soundriff/clipsmith/internal/models"
	"github.com/soundriff/clipsmith/internal/storage"
)

type engineFakeStore struct {
	processing int
	progress   []int
	finalized  []models.RenderStatus
	lastError  *string
	outputURL  *string
}

func (s *engineFakeStore) MarkRenderProcessing(ctx context.Context, userID string, id uuid.UUID) error {
	s.processing++
	return nil
}

func (s *engineFakeStore) UpdateRenderProgress(ctx context.Context, userID string, id uuid.UUID, progress int, logTailDelta string) error {
	s.progress = append(s.progress, progress)
	return nil
}

func (s *engineFakeStore) FinalizeRender(ctx context.Context, userID string, id uuid.UUID, status models.RenderStatus, outputURL, errorMessage *string, logTailDelta string) error {
	s.finalized = append(s.finalized, status)
	s.outputURL = outputURL
	s.lastError = errorMessage
	return nil
}

func newTestEngine(t *testing.T, store JobStore) (*Engine, string) {
	t.Helper()
	work := t.TempDir()
	pub := NewPublisher(storage.New("", "", "renders"), t.TempDir(), "http://localhost:8080")
	eng := NewEngine(store, pub, Options{
		WorkDir:       work,
		RenderTimeout: 5 * time.Second,
	})
	return eng, work
}

func TestRenderFailsTerminallyWithoutAudio(t *testing.T) {
	store := &engineFakeStore{}
	eng, work := newTestEngine(t, store)

	img := base64.StdEncoding.EncodeToString([]byte("png"))
	job := &models.RenderJob{
		UserID:    "u1",
		ID:        uuid.New(),
		ProjectID: "p1",
		Payload: models.RenderPayload{
			Storyboard: []models.StoryboardItem{{AssetID: "a", DurationSec: 4}},
			Assets:     []models.AssetRef{{ID: "a", DataURL: "data:image/png;base64," + img}},
		},
	}

	if err := eng.Render(context.Background(), job); err == nil {
		t.Fatal("expected error for payload without audio")
	}

	if store.processing != 1 {
		t.Errorf("marked processing %d times, want 1", store.processing)
	}
	if len(store.finalized) != 1 || store.finalized[0] != models.RenderStatusFailed {
		t.Fatalf("finalized = %v, want one failed", store.finalized)
	}
	if store.lastError == nil || *store.lastError == "" {
		t.Error("failed job carries no error detail")
	}
	if store.outputURL != nil {
		t.Errorf("failed job has an output URL: %v", *store.outputURL)
	}

	// The scratch directory must not survive a failed job
	entries, err := os.ReadDir(work)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace left behind after failure: %v", entries)
	}
}

func TestRenderFailsTerminallyWithoutScenes(t *testing.T) {
	store := &engineFakeStore{}
	eng, work := newTestEngine(t, store)

	job := &models.RenderJob{
		UserID:    "u1",
		ID:        uuid.New(),
		ProjectID: "p1",
		Payload: models.RenderPayload{
			AudioData:  base64.StdEncoding.EncodeToString([]byte("mp3")),
			Storyboard: []models.StoryboardItem{{AssetID: "missing"}},
			Assets:     []models.AssetRef{{ID: "other"}},
		},
	}

	if err := eng.Render(context.Background(), job); err == nil {
		t.Fatal("expected error for storyboard with no resolvable scenes")
	}

	if len(store.finalized) != 1 || store.finalized[0] != models.RenderStatusFailed {
		t.Fatalf("finalized = %v, want one failed", store.finalized)
	}

	entries, err := os.ReadDir(work)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace left behind after failure: %v", entries)
	}
}
