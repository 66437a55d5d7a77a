package render

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/soundriff/clipsmith/internal/storage"
)

// Publisher persists a finished render. Primary path is durable object
// storage; when the upload fails the file is kept on local disk and exposed
// through the service's own range-capable download endpoint, trading
// durability for a completed job.
type Publisher struct {
	store     *storage.Client
	outputDir string
	baseURL   string
}

func NewPublisher(store *storage.Client, outputDir, publicBaseURL string) *Publisher {
	return &Publisher{store: store, outputDir: outputDir, baseURL: publicBaseURL}
}

// Publish persists the finished file and returns the URL pollers should be
// handed. It only errors when both the upload and the local fallback fail.
func (p *Publisher) Publish(ctx context.Context, localPath, projectID string, renderID uuid.UUID) (string, error) {
	if p.store.Configured() {
		key := storage.RenderKey(projectID, renderID)
		if err := p.store.UploadFile(ctx, key, localPath, "video/mp4"); err != nil {
			log.Printf("[Publish] upload failed for %s, falling back to local streaming: %v", renderID, err)
		} else {
			return p.store.GetPublicURL(key), nil
		}
	}

	// Local fallback: move the file out of the workspace so janitor cleanup
	// doesn't take it, and serve it from the download endpoint. Its lifetime
	// is bounded to this host's retention window.
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	dest := p.LocalPath(renderID)
	if err := moveFile(localPath, dest); err != nil {
		return "", fmt.Errorf("failed to keep local output: %w", err)
	}

	return fmt.Sprintf("%s/v1/renders/%s/download", p.baseURL, renderID), nil
}

// LocalPath is where a locally-retained output lives; the download handler
// checks it before redirecting to storage.
func (p *Publisher) LocalPath(renderID uuid.UUID) string {
	return filepath.Join(p.outputDir, renderID.String()+".mp4")
}

// moveFile renames when possible and falls back to copy+remove across
// filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
