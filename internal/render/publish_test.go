package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/soundriff/clipsmith/internal/storage"
)

func TestPublishLocalFallback(t *testing.T) {
	work := t.TempDir()
	outDir := t.TempDir()
	id := uuid.New()

	src := filepath.Join(work, "output.mp4")
	if err := os.WriteFile(src, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Unconfigured storage forces the local path
	pub := NewPublisher(storage.New("", "", "renders"), outDir, "https://api.example.com")

	url, err := pub.Publish(context.Background(), src, "p1", id)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	want := "https://api.example.com/v1/renders/" + id.String() + "/download"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}

	// The file must be out of the workspace so cleanup can't take it
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source file still in workspace after publish")
	}
	data, err := os.ReadFile(pub.LocalPath(id))
	if err != nil {
		t.Fatalf("published file missing: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Errorf("published content = %q", data)
	}
}

func TestLocalPath(t *testing.T) {
	id := uuid.New()
	pub := NewPublisher(storage.New("", "", "renders"), "/var/renders", "")

	p := pub.LocalPath(id)
	if !strings.HasSuffix(p, id.String()+".mp4") {
		t.Errorf("LocalPath = %q", p)
	}
	if filepath.Dir(p) != "/var/renders" {
		t.Errorf("LocalPath dir = %q", filepath.Dir(p))
	}
}

func TestMoveFileAcrossDirs(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	src := filepath.Join(srcDir, "a.mp4")
	dest := filepath.Join(destDir, "b.mp4")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := moveFile(src, dest); err != nil {
		t.Fatalf("moveFile failed: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "payload" {
		t.Errorf("dest = %q, err = %v", data, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source survived move")
	}
}
