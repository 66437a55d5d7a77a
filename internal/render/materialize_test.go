package render

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/soundriff/clipsmith/internal/models"
)

// tiny valid base64 payload standing in for image bytes
var testImageB64 = base64.StdEncoding.EncodeToString([]byte("not-a-real-png"))

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir(), uuid.New())
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}
	t.Cleanup(ws.Cleanup)
	return ws
}

func TestMaterializeAudioFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	path, err := m.MaterializeAudio(context.Background(), ws, &models.RenderPayload{AudioURL: srv.URL})
	if err != nil {
		t.Fatalf("MaterializeAudio failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Errorf("audio content = %q", data)
	}
}

func TestMaterializeAudioURLFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	_, err := m.MaterializeAudio(context.Background(), ws, &models.RenderPayload{AudioURL: srv.URL})
	if err == nil {
		t.Fatal("expected error for unreachable audio URL")
	}
}

func TestMaterializeAudioInline(t *testing.T) {
	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	payload := &models.RenderPayload{
		AudioData: base64.StdEncoding.EncodeToString([]byte("mp3-bytes")),
	}

	path, err := m.MaterializeAudio(context.Background(), ws, payload)
	if err != nil {
		t.Fatalf("MaterializeAudio failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "mp3-bytes" {
		t.Errorf("decoded audio = %q", data)
	}
}

func TestMaterializeAudioInlineDataURL(t *testing.T) {
	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	payload := &models.RenderPayload{
		AudioData: "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString([]byte("mp3-bytes")),
	}

	path, err := m.MaterializeAudio(context.Background(), ws, payload)
	if err != nil {
		t.Fatalf("MaterializeAudio failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "mp3-bytes" {
		t.Errorf("decoded audio = %q", data)
	}
}

func TestMaterializeAudioMissing(t *testing.T) {
	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	if _, err := m.MaterializeAudio(context.Background(), ws, &models.RenderPayload{}); err == nil {
		t.Fatal("expected error for payload without audio")
	}
}

func TestMaterializeScenes(t *testing.T) {
	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	payload := &models.RenderPayload{
		Storyboard: []models.StoryboardItem{
			{AssetID: "a", DurationSec: 4, Animate: models.AnimateZoomIn},
			{AssetID: "b"}, // no duration, no animation
		},
		Assets: []models.AssetRef{
			{ID: "a", DataURL: "data:image/png;base64," + testImageB64},
			{ID: "b", DataURL: "data:image/jpeg;base64," + testImageB64},
		},
	}

	scenes, err := m.MaterializeScenes(context.Background(), ws, payload)
	if err != nil {
		t.Fatalf("MaterializeScenes failed: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("got %d scenes, want 2", len(scenes))
	}

	if scenes[0].DurationSec != 4 || scenes[0].Animate != models.AnimateZoomIn {
		t.Errorf("scene 0 = %+v", scenes[0])
	}
	if scenes[1].DurationSec != defaultSceneDuration {
		t.Errorf("scene 1 duration = %v, want default %v", scenes[1].DurationSec, defaultSceneDuration)
	}
	if scenes[1].Animate != models.AnimateNone {
		t.Errorf("scene 1 animation = %q, want none", scenes[1].Animate)
	}

	for _, s := range scenes {
		if _, err := os.Stat(s.Path); err != nil {
			t.Errorf("scene %d file missing: %v", s.Index, err)
		}
		if s.Video {
			t.Errorf("scene %d wrongly marked video", s.Index)
		}
	}
}

func TestMaterializeScenesDropsBadEntries(t *testing.T) {
	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	payload := &models.RenderPayload{
		Storyboard: []models.StoryboardItem{
			{AssetID: "good", DurationSec: 3},
			{AssetID: "missing"},
			{AssetID: "garbled"},
		},
		Assets: []models.AssetRef{
			{ID: "good", DataURL: "data:image/png;base64," + testImageB64},
			{ID: "garbled", DataURL: "data:image/png;base64,@@not-base64@@"},
		},
	}

	scenes, err := m.MaterializeScenes(context.Background(), ws, payload)
	if err != nil {
		t.Fatalf("MaterializeScenes failed: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("got %d scenes, want 1 (bad entries dropped)", len(scenes))
	}
	if scenes[0].Index != 0 {
		t.Errorf("surviving scene index = %d", scenes[0].Index)
	}
}

func TestMaterializeScenesAllBadIsFatal(t *testing.T) {
	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	payload := &models.RenderPayload{
		Storyboard: []models.StoryboardItem{{AssetID: "nope"}},
		Assets:     []models.AssetRef{{ID: "other"}},
	}

	if _, err := m.MaterializeScenes(context.Background(), ws, payload); err == nil {
		t.Fatal("expected error when no scene resolves")
	}
}

func TestMaterializeScenesAnimatedClip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("clip-bytes"))
	}))
	defer srv.Close()

	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	payload := &models.RenderPayload{
		Storyboard: []models.StoryboardItem{
			{AssetID: "anim", DurationSec: 6},
		},
		Assets: []models.AssetRef{
			{
				ID:        "anim",
				DataURL:   "data:image/png;base64," + testImageB64,
				Animation: &models.AnimationResult{Status: "completed", VideoURL: srv.URL},
			},
		},
	}

	scenes, err := m.MaterializeScenes(context.Background(), ws, payload)
	if err != nil {
		t.Fatalf("MaterializeScenes failed: %v", err)
	}
	if len(scenes) != 1 || !scenes[0].Video {
		t.Fatalf("scenes = %+v, want one video scene", scenes)
	}

	data, _ := os.ReadFile(scenes[0].Path)
	if string(data) != "clip-bytes" {
		t.Errorf("clip content = %q", data)
	}
}

func TestMaterializeScenesPendingAnimationFallsBack(t *testing.T) {
	ws := testWorkspace(t)
	m := NewMaterializer(5 * time.Second)

	payload := &models.RenderPayload{
		Storyboard: []models.StoryboardItem{{AssetID: "a", DurationSec: 3}},
		Assets: []models.AssetRef{
			{
				ID:        "a",
				DataURL:   "data:image/png;base64," + testImageB64,
				Animation: &models.AnimationResult{Status: "pending", VideoURL: "https://example.com/never.mp4"},
			},
		},
	}

	scenes, err := m.MaterializeScenes(context.Background(), ws, payload)
	if err != nil {
		t.Fatalf("MaterializeScenes failed: %v", err)
	}
	if len(scenes) != 1 || scenes[0].Video {
		t.Fatalf("scenes = %+v, want one still-image scene", scenes)
	}
}

func TestDecodeDataURL(t *testing.T) {
	dest := testWorkspace(t).Path("img.png")

	if err := decodeDataURL("data:image/png;base64,"+testImageB64, dest); err != nil {
		t.Fatalf("decodeDataURL failed: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "not-a-real-png" {
		t.Errorf("decoded = %q", data)
	}

	if err := decodeDataURL("http://example.com/img.png", dest); err == nil {
		t.Error("plain URL should not decode as data URL")
	}
}
