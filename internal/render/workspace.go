package render

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const workspacePrefix = "render_"

// Workspace is the per-job scratch directory. It is owned exclusively by the
// job that created it and holds every intermediate artifact: decoded images,
// downloaded clips, sub-clips, the concat manifest and the final output.
type Workspace struct {
	RenderID uuid.UUID
	Dir      string
}

// NewWorkspace creates a fresh scratch directory for a job. A leftover
// directory from a crashed previous attempt is removed first.
func NewWorkspace(root string, renderID uuid.UUID) (*Workspace, error) {
	dir := filepath.Join(root, workspacePrefix+renderID.String())
	os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{RenderID: renderID, Dir: dir}, nil
}

// Path returns the location for a named intermediate file.
func (w *Workspace) Path(filename string) string {
	return filepath.Join(w.Dir, filename)
}

// Cleanup removes the scratch directory and everything under it.
func (w *Workspace) Cleanup() {
	if err := os.RemoveAll(w.Dir); err != nil {
		log.Printf("[Workspace] cleanup of %s failed: %v", w.Dir, err)
	}
}

// Janitor sweeps the shared work root for scratch directories that outlived
// their job, which happens when a crash skips the normal deferred cleanup.
type Janitor struct {
	root string
}

func NewJanitor(root string) *Janitor {
	return &Janitor{root: root}
}

// Sweep removes every render scratch directory whose modification time is
// older than maxAge, regardless of what any job record says. Returns the
// number of directories removed.
func (j *Janitor) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Janitor] cannot read work root %s: %v", j.root, err)
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(j.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[Janitor] failed to remove stale workspace %s: %v", dir, err)
			continue
		}
		log.Printf("[Janitor] removed stale workspace %s (age %s)", dir, time.Since(info.ModTime()).Round(time.Minute))
		removed++
	}
	return removed
}

// Run sweeps on a fixed interval until the context is cancelled.
func (j *Janitor) Run(done <-chan struct{}, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			j.Sweep(maxAge)
		}
	}
}
