package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums

// RenderStatus is the lifecycle state of a render job. Terminal states
// (complete, failed) are never left once entered.
type RenderStatus string

const (
	RenderStatusPending    RenderStatus = "pending"
	RenderStatusProcessing RenderStatus = "processing"
	RenderStatusComplete   RenderStatus = "complete"
	RenderStatusFailed     RenderStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RenderStatus) Terminal() bool {
	return s == RenderStatusComplete || s == RenderStatusFailed
}

type Format string

const (
	FormatVertical   Format = "vertical"
	FormatHorizontal Format = "horizontal"
	FormatSquare     Format = "square"
)

type Quality string

const (
	QualityBasic    Quality = "basic"
	QualityStandard Quality = "standard"
	QualityPro      Quality = "pro"
)

// Animation is the per-scene motion directive for still images.
type Animation string

const (
	AnimateNone     Animation = "none"
	AnimateZoomIn   Animation = "zoom-in"
	AnimateZoomOut  Animation = "zoom-out"
	AnimatePanLeft  Animation = "pan-left"
	AnimatePanRight Animation = "pan-right"
	AnimatePanUp    Animation = "pan-up"
	AnimatePanDown  Animation = "pan-down"
	AnimateFadeIn   Animation = "fade-in"
	AnimateFadeOut  Animation = "fade-out"
)

// Resolution is the exact output frame size.
type Resolution struct {
	W int
	H int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.W, r.H)
}

// ResolutionFor maps an output format to its frame size.
// Unknown formats fall back to horizontal.
func ResolutionFor(f Format) Resolution {
	switch f {
	case FormatVertical:
		return Resolution{1080, 1920}
	case FormatSquare:
		return Resolution{1080, 1080}
	default:
		return Resolution{1920, 1080}
	}
}

// EncodePreset is the x264 speed/size trade-off for a quality tier.
type EncodePreset struct {
	Preset string
	CRF    int
}

// EncodePresetFor maps a quality tier to x264 settings. Sub-clip encodes
// favor speed; the tier only controls how much that costs in size.
func EncodePresetFor(q Quality) EncodePreset {
	switch q {
	case QualityBasic:
		return EncodePreset{Preset: "ultrafast", CRF: 28}
	case QualityPro:
		return EncodePreset{Preset: "medium", CRF: 20}
	default:
		return EncodePreset{Preset: "veryfast", CRF: 23}
	}
}

// RenderFPS is the fixed output frame rate.
const RenderFPS = 30

// RenderOptions is the per-request render configuration. It is captured at
// submission time and stored alongside the job.
type RenderOptions struct {
	Format            Format  `json:"format"`
	Quality           Quality `json:"quality"`
	Watermark         bool    `json:"watermark"`
	Crossfade         bool    `json:"crossfade"`
	CrossfadeDuration float64 `json:"crossfade_duration,omitempty"` // seconds, default 0.5
}

func (o RenderOptions) Value() (driver.Value, error) {
	return json.Marshal(o)
}

func (o *RenderOptions) Scan(value interface{}) error {
	if value == nil {
		*o = RenderOptions{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("render options: unexpected column type %T", value)
	}
	return json.Unmarshal(bytes, o)
}

// AnimationResult is the outcome of an upstream image-to-video generation.
// Only "completed" results with a resolvable URL make a scene a video scene.
type AnimationResult struct {
	Status   string `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
}

// AssetRef is a content reference for one storyboard entry: either inline
// image bytes (data URL) or an animated clip produced upstream.
type AssetRef struct {
	ID        string           `json:"id"`
	DataURL   string           `json:"data_url,omitempty"`
	Animation *AnimationResult `json:"animation,omitempty"`
}

// StoryboardItem is one ordered scene of the project.
type StoryboardItem struct {
	AssetID     string    `json:"asset_id"`
	DurationSec float64   `json:"duration_sec"`
	Animate     Animation `json:"animate,omitempty"`
}

// RenderPayload is everything the encoder needs to compose the video. It is
// captured at submission so a separate process (or the remote worker) can
// fetch it later without re-transmitting asset bytes through the dispatch call.
type RenderPayload struct {
	ProjectID string `json:"project_id"`

	// Audio source, tried in order: URL fetch, inline base64 payload,
	// pre-existing local path (dev only).
	AudioURL  string `json:"audio_url,omitempty"`
	AudioData string `json:"audio_data,omitempty"`
	AudioPath string `json:"audio_path,omitempty"`

	Storyboard []StoryboardItem `json:"storyboard"`
	Assets     []AssetRef       `json:"assets"`
}

func (p RenderPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *RenderPayload) Scan(value interface{}) error {
	if value == nil {
		*p = RenderPayload{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("render payload: unexpected column type %T", value)
	}
	return json.Unmarshal(bytes, p)
}

// AssetByID returns the asset referenced by a storyboard item, if present.
func (p *RenderPayload) AssetByID(id string) *AssetRef {
	for i := range p.Assets {
		if p.Assets[i].ID == id {
			return &p.Assets[i]
		}
	}
	return nil
}

// RenderJob is the durable record of one render, addressed by (user, render id).
type RenderJob struct {
	UserID       string        `json:"user_id"`
	ID           uuid.UUID     `json:"render_id"`
	ProjectID    string        `json:"project_id"`
	Status       RenderStatus  `json:"status"`
	Progress     int           `json:"progress"`
	OutputURL    *string       `json:"output_url,omitempty"`
	ErrorMessage *string       `json:"error,omitempty"`
	LogTail      string        `json:"log_tail,omitempty"`
	Options      RenderOptions `json:"options"`
	Payload      RenderPayload `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// DeriveRenderID computes a stable render identity from the caller's
// idempotency key so duplicate submissions map to the same job. Without a
// key every submission is a fresh job.
func DeriveRenderID(userID, idempotencyKey string) uuid.UUID {
	if idempotencyKey == "" {
		return uuid.New()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(userID+":"+idempotencyKey))
}

// DTOs

type SubmitRenderRequest struct {
	UserID         string           `json:"user_id" validate:"required"`
	ProjectID      string           `json:"project_id" validate:"required"`
	AudioURL       string           `json:"audio_url,omitempty" validate:"omitempty,url"`
	AudioData      string           `json:"audio_data,omitempty"`
	AudioPath      string           `json:"audio_path,omitempty"`
	Storyboard     []StoryboardItem `json:"storyboard" validate:"required,min=1"`
	Assets         []AssetRef       `json:"assets" validate:"required,min=1"`
	Options        RenderOptions    `json:"options"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

type SubmitRenderResponse struct {
	RenderID uuid.UUID    `json:"render_id"`
	Status   RenderStatus `json:"status"`
	Progress int          `json:"progress"`
}

type RenderStatusResponse struct {
	RenderID  uuid.UUID    `json:"render_id"`
	Status    RenderStatus `json:"status"`
	Progress  int          `json:"progress"`
	OutputURL *string      `json:"output_url,omitempty"`
	Error     *string      `json:"error,omitempty"`
	LogTail   string       `json:"log_tail,omitempty"`
}

// DispatchRequest is the compact payload POSTed to a remote encoding worker.
// The worker fetches the full RenderPayload from PayloadURL itself.
type DispatchRequest struct {
	UserID      string    `json:"user_id" validate:"required"`
	RenderID    uuid.UUID `json:"render_id" validate:"required"`
	PayloadURL  string    `json:"payload_url" validate:"required,url"`
	CallbackURL string    `json:"callback_url" validate:"required,url"`
}

// PayloadRequest identifies the job whose payload the worker wants.
type PayloadRequest struct {
	UserID   string    `json:"user_id"`
	RenderID uuid.UUID `json:"render_id"`
}

// PayloadResponse is what the payload endpoint hands a remote worker: the
// full render payload plus the options needed to pick resolution and codecs.
type PayloadResponse struct {
	UserID   string        `json:"user_id"`
	RenderID uuid.UUID     `json:"render_id"`
	Options  RenderOptions `json:"options"`
	Payload  RenderPayload `json:"payload"`
}

// CallbackRequest reports progress or a terminal outcome from the worker.
type CallbackRequest struct {
	UserID    string       `json:"user_id"`
	RenderID  uuid.UUID    `json:"render_id"`
	Status    RenderStatus `json:"status"`
	Progress  *int         `json:"progress,omitempty"`
	OutputURL *string      `json:"output_url,omitempty"`
	Error     *string      `json:"error,omitempty"`
	LogTail   string       `json:"log_tail,omitempty"`
}
