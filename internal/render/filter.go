package render

import (
	"fmt"
	"strings"

	"github.com/soundriff/clipsmith/internal/models"
)

// Filter-stage values. Each stage is a small typed value that knows how to
// serialize itself to ffmpeg filter syntax; the chain is assembled from
// values and only turned into a string at the boundary, so the builder stays
// pure and testable without spawning a process.

const (
	// maxZoom bounds the zoom ramp so the crop never eats more than a
	// quarter of the frame.
	maxZoom = 1.25

	// panZoom is the fixed crop factor for pan effects; the 15% margin is
	// what the camera traverses edge to edge.
	panZoom = 1.15

	// fadeDuration is the linear alpha ramp at the head or tail of a clip.
	fadeDuration = 0.5
)

type filterStage interface {
	expr() string
}

// scaleStage scales down preserving aspect ratio; the frame never exceeds
// the target in either dimension.
type scaleStage struct {
	w, h int
}

func (s scaleStage) expr() string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", s.w, s.h)
}

// padStage letterboxes/pillarboxes to the exact target resolution.
type padStage struct {
	w, h int
}

func (p padStage) expr() string {
	return fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,setsar=1", p.w, p.h)
}

type fpsStage struct {
	fps int
}

func (f fpsStage) expr() string {
	return fmt.Sprintf("fps=%d", f.fps)
}

// animationStage is the zoompan/fade transform for one scene. Zoom ramps
// linearly to maxZoom over the scene's frame budget; pans traverse the crop
// margin edge to edge over the same budget; fades ramp alpha over
// fadeDuration at the head or tail.
type animationStage struct {
	kind        models.Animation
	durationSec float64
	fps         int
	w, h        int
}

func (a animationStage) expr() string {
	frames := int(a.durationSec*float64(a.fps) + 0.5)
	if frames < 1 {
		frames = 1
	}
	// Denominator for the per-frame ramp: frame 0 is the start pose, the
	// last frame is the end pose.
	den := frames - 1
	if den < 1 {
		den = 1
	}
	size := fmt.Sprintf("s=%dx%d", a.w, a.h)

	switch a.kind {
	case models.AnimateZoomIn:
		z := fmt.Sprintf("min(1+(%.2f-1)*on/%d,%.2f)", maxZoom, den, maxZoom)
		return fmt.Sprintf("zoompan=z='%s':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=1:%s:fps=%d", z, size, a.fps)
	case models.AnimateZoomOut:
		z := fmt.Sprintf("max(%.2f-(%.2f-1)*on/%d,1.0)", maxZoom, maxZoom, den)
		return fmt.Sprintf("zoompan=z='%s':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=1:%s:fps=%d", z, size, a.fps)
	case models.AnimatePanLeft:
		return fmt.Sprintf("zoompan=z='%.2f':x='(iw-ow)*on/%d':y='(ih-oh)/2':d=1:%s:fps=%d", panZoom, den, size, a.fps)
	case models.AnimatePanRight:
		return fmt.Sprintf("zoompan=z='%.2f':x='(iw-ow)*(1-on/%d)':y='(ih-oh)/2':d=1:%s:fps=%d", panZoom, den, size, a.fps)
	case models.AnimatePanUp:
		return fmt.Sprintf("zoompan=z='%.2f':x='(iw-ow)/2':y='(ih-oh)*(1-on/%d)':d=1:%s:fps=%d", panZoom, den, size, a.fps)
	case models.AnimatePanDown:
		return fmt.Sprintf("zoompan=z='%.2f':x='(iw-ow)/2':y='(ih-oh)*on/%d':d=1:%s:fps=%d", panZoom, den, size, a.fps)
	case models.AnimateFadeIn:
		return fmt.Sprintf("fade=t=in:st=0:d=%.1f", fadeDuration)
	case models.AnimateFadeOut:
		st := a.durationSec - fadeDuration
		if st < 0 {
			st = 0
		}
		return fmt.Sprintf("fade=t=out:st=%.2f:d=%.1f", st, fadeDuration)
	default:
		return ""
	}
}

// watermarkStage overlays text anchored bottom-right, semi-transparent with
// a drop shadow.
type watermarkStage struct {
	text string
}

func (w watermarkStage) expr() string {
	return fmt.Sprintf(
		"drawtext=text='%s':x=w-tw-24:y=h-th-24:fontsize=36:fontcolor=white@0.5:shadowcolor=black@0.4:shadowx=2:shadowy=2",
		escapeFilterText(w.text),
	)
}

// FilterChain is an ordered list of stages for one scene.
type FilterChain struct {
	stages []filterStage
}

func (c FilterChain) String() string {
	parts := make([]string, 0, len(c.stages))
	for _, s := range c.stages {
		if e := s.expr(); e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, ",")
}

// BuildImageFilter produces the full -vf expression for a still-image scene:
// aspect-preserving scale, pad to exact target, frame rate, animation, a
// final re-scale safeguard (zoompan can alter the declared frame size), and
// the optional watermark.
func BuildImageFilter(res models.Resolution, durationSec float64, fps int, animate models.Animation, watermarkText string) string {
	chain := FilterChain{stages: []filterStage{
		scaleStage{res.W, res.H},
		padStage{res.W, res.H},
		fpsStage{fps},
		animationStage{kind: animate, durationSec: durationSec, fps: fps, w: res.W, h: res.H},
		rescaleStage{res.W, res.H},
	}}
	if watermarkText != "" {
		chain.stages = append(chain.stages, watermarkStage{watermarkText})
	}
	return chain.String()
}

// BuildVideoFilter produces the -vf expression for a video-clip scene. Clips
// arrive pre-animated, so only normalization applies.
func BuildVideoFilter(res models.Resolution, fps int, watermarkText string) string {
	chain := FilterChain{stages: []filterStage{
		scaleStage{res.W, res.H},
		padStage{res.W, res.H},
		fpsStage{fps},
	}}
	if watermarkText != "" {
		chain.stages = append(chain.stages, watermarkStage{watermarkText})
	}
	return chain.String()
}

// BuildNormalizeFilter is the scale/pad/fps prefix used per input inside the
// crossfade filtergraph; format/watermark are applied once on the composed
// stream instead.
func BuildNormalizeFilter(res models.Resolution, fps int) string {
	chain := FilterChain{stages: []filterStage{
		scaleStage{res.W, res.H},
		padStage{res.W, res.H},
		fpsStage{fps},
	}}
	return chain.String()
}

// BuildFinalizeFilter is applied once to the composed crossfade stream.
func BuildFinalizeFilter(res models.Resolution, watermarkText string) string {
	chain := FilterChain{stages: []filterStage{
		rescaleStage{res.W, res.H},
	}}
	if watermarkText != "" {
		chain.stages = append(chain.stages, watermarkStage{watermarkText})
	}
	return chain.String()
}

// rescaleStage forces the stream back to the exact target resolution.
type rescaleStage struct {
	w, h int
}

func (r rescaleStage) expr() string {
	return fmt.Sprintf("scale=%d:%d", r.w, r.h)
}

// escapeFilterText escapes characters ffmpeg filter syntax treats specially.
func escapeFilterText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ":", "\\:")
	s = strings.ReplaceAll(s, "'", "'\\''")
	return s
}
