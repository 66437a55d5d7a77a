package render

import (
	"strings"
	"testing"

	"github.com/soundriff/clipsmith/internal/models"
)

func TestBuildImageFilterZoomIn(t *testing.T) {
	res := models.ResolutionFor(models.FormatVertical)
	filter := BuildImageFilter(res, 5.0, 30, models.AnimateZoomIn, "")

	wantParts := []string{
		"scale=1080:1920:force_original_aspect_ratio=decrease",
		"pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black,setsar=1",
		"fps=30",
		"zoompan=",
		"s=1080x1920",
		"scale=1080:1920",
	}
	for _, part := range wantParts {
		if !strings.Contains(filter, part) {
			t.Errorf("filter missing %q:\n%s", part, filter)
		}
	}

	if strings.Contains(filter, "drawtext") {
		t.Error("no watermark requested but drawtext present")
	}
}

func TestBuildImageFilterWatermark(t *testing.T) {
	res := models.ResolutionFor(models.FormatSquare)
	filter := BuildImageFilter(res, 3.0, 30, models.AnimateNone, "clipsmith")

	if !strings.Contains(filter, "drawtext=text='clipsmith'") {
		t.Errorf("watermark missing:\n%s", filter)
	}
	if !strings.Contains(filter, "fontcolor=white@0.5") {
		t.Errorf("watermark styling missing:\n%s", filter)
	}
}

func TestBuildImageFilterNoAnimation(t *testing.T) {
	res := models.ResolutionFor(models.FormatHorizontal)
	filter := BuildImageFilter(res, 4.0, 30, models.AnimateNone, "")

	if strings.Contains(filter, "zoompan") || strings.Contains(filter, "fade") {
		t.Errorf("static scene should carry no motion stages:\n%s", filter)
	}
	// Empty stages must not leave double commas behind
	if strings.Contains(filter, ",,") {
		t.Errorf("empty stage left a gap:\n%s", filter)
	}
}

func TestBuildImageFilterFadeOut(t *testing.T) {
	res := models.ResolutionFor(models.FormatVertical)
	filter := BuildImageFilter(res, 4.0, 30, models.AnimateFadeOut, "")

	// Fade-out starts fadeDuration before the scene ends
	if !strings.Contains(filter, "fade=t=out:st=3.50:d=0.5") {
		t.Errorf("fade-out timing wrong:\n%s", filter)
	}
}

func TestBuildImageFilterFadeOutShortScene(t *testing.T) {
	res := models.ResolutionFor(models.FormatVertical)
	filter := BuildImageFilter(res, 0.3, 30, models.AnimateFadeOut, "")

	// Scenes shorter than the fade clamp the start to zero
	if !strings.Contains(filter, "fade=t=out:st=0.00") {
		t.Errorf("fade-out start not clamped:\n%s", filter)
	}
}

func TestBuildImageFilterPans(t *testing.T) {
	res := models.ResolutionFor(models.FormatVertical)

	pans := map[models.Animation]string{
		models.AnimatePanLeft:  "x='(iw-ow)*on/",
		models.AnimatePanRight: "x='(iw-ow)*(1-on/",
		models.AnimatePanUp:    "y='(ih-oh)*(1-on/",
		models.AnimatePanDown:  "y='(ih-oh)*on/",
	}

	for anim, want := range pans {
		filter := BuildImageFilter(res, 5.0, 30, anim, "")
		if !strings.Contains(filter, want) {
			t.Errorf("%s: missing %q:\n%s", anim, want, filter)
		}
		if !strings.Contains(filter, "zoompan=z='1.15'") {
			t.Errorf("%s: pan crop factor missing:\n%s", anim, filter)
		}
	}
}

func TestBuildImageFilterIsPure(t *testing.T) {
	res := models.ResolutionFor(models.FormatVertical)
	a := BuildImageFilter(res, 5.0, 30, models.AnimateZoomOut, "wm")
	b := BuildImageFilter(res, 5.0, 30, models.AnimateZoomOut, "wm")
	if a != b {
		t.Errorf("same inputs produced different filters:\n%s\n%s", a, b)
	}
}

func TestBuildVideoFilter(t *testing.T) {
	res := models.ResolutionFor(models.FormatHorizontal)
	filter := BuildVideoFilter(res, 30, "")

	if !strings.Contains(filter, "scale=1920:1080:force_original_aspect_ratio=decrease") {
		t.Errorf("scale missing:\n%s", filter)
	}
	if strings.Contains(filter, "zoompan") {
		t.Errorf("video clips must not get motion stages:\n%s", filter)
	}
}

func TestBuildFinalizeFilter(t *testing.T) {
	res := models.ResolutionFor(models.FormatVertical)

	plain := BuildFinalizeFilter(res, "")
	if plain != "scale=1080:1920" {
		t.Errorf("finalize without watermark = %q", plain)
	}

	marked := BuildFinalizeFilter(res, "brand")
	if !strings.Contains(marked, "drawtext=text='brand'") {
		t.Errorf("finalize watermark missing:\n%s", marked)
	}
}

func TestEscapeFilterText(t *testing.T) {
	got := escapeFilterText(`it's 10:30`)
	if !strings.Contains(got, `\:`) {
		t.Errorf("colon not escaped: %q", got)
	}
	if strings.Contains(got, `it's`) {
		t.Errorf("quote not escaped: %q", got)
	}
}
