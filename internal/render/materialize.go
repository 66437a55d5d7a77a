package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/soundriff/clipsmith/internal/models"
)

// Scene is a storyboard entry resolved to an encoder-ready local file.
type Scene struct {
	Index       int
	DurationSec float64
	Animate     models.Animation
	Path        string
	Video       bool
}

const defaultSceneDuration = 5.0

var dataURLRe = regexp.MustCompile(`(?s)^data:(image/[^;]+);base64,(.+)$`)

// Materializer resolves a payload's audio reference and storyboard entries
// into local files under the job's workspace. Network fetches share one
// bounded-timeout downloader.
type Materializer struct {
	client          *http.Client
	downloadTimeout time.Duration
}

func NewMaterializer(downloadTimeout time.Duration) *Materializer {
	return &Materializer{
		client:          &http.Client{},
		downloadTimeout: downloadTimeout,
	}
}

// MaterializeAudio resolves the project audio, trying sources in order:
// direct URL (fatal on failure), inline base64 payload, pre-existing local
// path (dev only). A payload with no resolvable audio aborts the job.
func (m *Materializer) MaterializeAudio(ctx context.Context, ws *Workspace, p *models.RenderPayload) (string, error) {
	dest := ws.Path("audio.bin")

	if p.AudioURL != "" {
		if err := m.downloadFile(ctx, p.AudioURL, dest); err != nil {
			return "", fmt.Errorf("audio download failed: %w", err)
		}
		return dest, nil
	}

	if p.AudioData != "" {
		raw := p.AudioData
		// Accept both bare base64 and full data URLs.
		if idx := strings.Index(raw, ";base64,"); idx >= 0 {
			raw = raw[idx+len(";base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return "", fmt.Errorf("audio payload is not valid base64: %w", err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write audio file: %w", err)
		}
		return dest, nil
	}

	if p.AudioPath != "" {
		if _, err := os.Stat(p.AudioPath); err != nil {
			return "", fmt.Errorf("local audio path %s not readable: %w", p.AudioPath, err)
		}
		return p.AudioPath, nil
	}

	return "", fmt.Errorf("no audio source in payload")
}

// MaterializeScenes resolves each storyboard entry to a local image or video
// file. Entries that cannot resolve are dropped with a warning; zero
// resolvable scenes is fatal.
func (m *Materializer) MaterializeScenes(ctx context.Context, ws *Workspace, p *models.RenderPayload) ([]Scene, error) {
	var scenes []Scene

	for i, item := range p.Storyboard {
		asset := p.AssetByID(item.AssetID)
		if asset == nil {
			log.Printf("[Materialize] scene %d: asset %q not in payload, dropping", i, item.AssetID)
			continue
		}

		dur := item.DurationSec
		if dur <= 0 {
			dur = defaultSceneDuration
		}
		animate := item.Animate
		if animate == "" {
			animate = models.AnimateNone
		}

		// Completed animation result wins over the still image.
		if videoURL := completedVideoURL(asset); videoURL != "" {
			dest := ws.Path(fmt.Sprintf("src_%03d.mp4", i))
			if err := m.downloadFile(ctx, videoURL, dest); err != nil {
				return nil, fmt.Errorf("scene %d: clip download failed: %w", i, err)
			}
			scenes = append(scenes, Scene{Index: i, DurationSec: dur, Animate: animate, Path: dest, Video: true})
			continue
		}

		if asset.DataURL == "" {
			log.Printf("[Materialize] scene %d: asset %q has no content, dropping", i, item.AssetID)
			continue
		}

		dest := ws.Path(fmt.Sprintf("src_%03d.png", i))
		if err := decodeDataURL(asset.DataURL, dest); err != nil {
			log.Printf("[Materialize] scene %d: bad image payload (%v), dropping", i, err)
			continue
		}
		scenes = append(scenes, Scene{Index: i, DurationSec: dur, Animate: animate, Path: dest})
	}

	if len(scenes) == 0 {
		return nil, fmt.Errorf("no resolvable scenes in storyboard")
	}

	return scenes, nil
}

// completedVideoURL returns the animated clip URL when the asset carries a
// finished animation result.
func completedVideoURL(a *models.AssetRef) string {
	if a.Animation == nil || a.Animation.Status != "completed" {
		return ""
	}
	if !strings.HasPrefix(a.Animation.VideoURL, "http") {
		return ""
	}
	return a.Animation.VideoURL
}

// decodeDataURL writes the base64 image payload of a data URL to disk.
func decodeDataURL(dataURL, dest string) error {
	match := dataURLRe.FindStringSubmatch(dataURL)
	if match == nil {
		return fmt.Errorf("malformed data URL")
	}
	data, err := base64.StdEncoding.DecodeString(match[2])
	if err != nil {
		return fmt.Errorf("invalid base64 payload: %w", err)
	}
	return os.WriteFile(dest, data, 0o644)
}

// downloadFile streams a URL to disk, bounded by the configured timeout.
func (m *Materializer) downloadFile(ctx context.Context, url, dest string) error {
	dlCtx, cancel := context.WithTimeout(ctx, m.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}
