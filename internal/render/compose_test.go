package render

import (
	"strings"
	"testing"

	"github.com/soundriff/clipsmith/internal/models"
)

func argvString(argv []string) string {
	return strings.Join(argv, " ")
}

func TestSubClipArgsImage(t *testing.T) {
	scene := Scene{Index: 0, DurationSec: 4, Animate: models.AnimateZoomIn, Path: "/tmp/src_000.png"}
	res := models.ResolutionFor(models.FormatVertical)
	enc := models.EncodePresetFor(models.QualityStandard)

	argv := argvString(subClipArgs(scene, "/tmp/clip_000.mp4", res, enc, ""))

	for _, want := range []string{
		"-loop 1",
		"-t 4.00",
		"-framerate 30",
		"-preset veryfast",
		"-crf 23",
		"-pix_fmt yuv420p",
		"zoompan",
	} {
		if !strings.Contains(argv, want) {
			t.Errorf("image argv missing %q:\n%s", want, argv)
		}
	}

	if strings.Contains(argv, "-stream_loop") {
		t.Errorf("image scene got video flags:\n%s", argv)
	}
}

func TestSubClipArgsVideo(t *testing.T) {
	scene := Scene{Index: 1, DurationSec: 6, Path: "/tmp/src_001.mp4", Video: true}
	res := models.ResolutionFor(models.FormatHorizontal)
	enc := models.EncodePresetFor(models.QualityPro)

	argv := argvString(subClipArgs(scene, "/tmp/clip_001.mp4", res, enc, "wm"))

	for _, want := range []string{
		"-stream_loop -1", // loop short clips to cover the scene
		"-t 6.00",
		"-an", // scene audio is discarded, project audio muxes later
		"-preset medium",
		"-crf 20",
		"drawtext",
	} {
		if !strings.Contains(argv, want) {
			t.Errorf("video argv missing %q:\n%s", want, argv)
		}
	}

	if strings.Contains(argv, "zoompan") {
		t.Errorf("pre-animated clip got a motion filter:\n%s", argv)
	}
}
