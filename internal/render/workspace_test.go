package render

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestWorkspaceLifecycle(t *testing.T) {
	root := t.TempDir()
	id := uuid.New()

	ws, err := NewWorkspace(root, id)
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	if _, err := os.Stat(ws.Dir); err != nil {
		t.Fatalf("workspace dir missing: %v", err)
	}

	p := ws.Path("clip_000.mp4")
	if filepath.Dir(p) != ws.Dir {
		t.Errorf("Path left the workspace: %s", p)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ws.Cleanup()
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Errorf("workspace survived cleanup: %v", err)
	}
}

func TestNewWorkspaceRemovesLeftover(t *testing.T) {
	root := t.TempDir()
	id := uuid.New()

	stale := filepath.Join(root, workspacePrefix+id.String())
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	leftover := filepath.Join(stale, "partial.mp4")
	if err := os.WriteFile(leftover, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	ws, err := NewWorkspace(root, id)
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Error("leftover file from a previous attempt survived")
	}
	ws.Cleanup()
}

func TestJanitorSweep(t *testing.T) {
	root := t.TempDir()

	// One stale workspace, one fresh, one unrelated directory
	stale := filepath.Join(root, workspacePrefix+uuid.New().String())
	fresh := filepath.Join(root, workspacePrefix+uuid.New().String())
	other := filepath.Join(root, "outputs")
	for _, dir := range []string{stale, fresh, other} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, old, old); err != nil {
		t.Fatal(err)
	}

	removed := NewJanitor(root).Sweep(24 * time.Hour)
	if removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale workspace survived sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh workspace was swept")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("unrelated directory was swept")
	}
}

func TestJanitorSweepMissingRoot(t *testing.T) {
	j := NewJanitor(filepath.Join(t.TempDir(), "does-not-exist"))
	if removed := j.Sweep(time.Hour); removed != 0 {
		t.Errorf("Sweep of missing root removed %d", removed)
	}
}
