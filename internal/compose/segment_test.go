package compose

import (
	"strings"
	"testing"

	"github.com/reelmix/reelmix/internal/config"
	"github.com/reelmix/reelmix/internal/media"
)

func testComposer(t *testing.T) *SegmentComposer {
	t.Helper()
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	return &SegmentComposer{cfg: cfg, tempDir: cfg.TempDir}
}

func TestMuxArgsWithNarration(t *testing.T) {
	c := testComposer(t)
	audio := media.ClipInfo{Path: "/m/voice.mp3", Duration: 7}
	sel := &media.Selection{
		Videos:        []media.ClipInfo{{Path: "/m/a.mp4", Duration: 12}},
		Audio:         &audio,
		TargetSeconds: 7,
	}

	got := strings.Join(c.muxArgs([]string{"-i", "/m/a.mp4"}, sel, "/out/seg.mp4"), " ")

	for _, want := range []string{
		"-i /m/voice.mp3",
		"-map 0:v:0 -map 1:a:0",
		"-c:v copy",
		"-c:a aac -b:a 192k",
		"-t 00:00:07.100",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("args missing %q: %s", want, got)
		}
	}
	if !strings.HasSuffix(got, "/out/seg.mp4") {
		t.Errorf("output path must come last: %s", got)
	}
	if strings.Contains(got, "volume=") {
		t.Errorf("unit voice volume should not add a filter: %s", got)
	}
}

func TestMuxArgsVoiceVolume(t *testing.T) {
	c := testComposer(t)
	c.cfg.VoiceVolume = 0.8
	audio := media.ClipInfo{Path: "/m/voice.mp3", Duration: 7}
	sel := &media.Selection{
		Videos:        []media.ClipInfo{{Path: "/m/a.mp4", Duration: 12}},
		Audio:         &audio,
		TargetSeconds: 7,
	}

	got := strings.Join(c.muxArgs([]string{"-i", "/m/a.mp4"}, sel, "/out/seg.mp4"), " ")
	if !strings.Contains(got, "-af volume=0.80") {
		t.Errorf("voice volume filter missing: %s", got)
	}
}

func TestMuxArgsSilentScene(t *testing.T) {
	c := testComposer(t)
	sel := &media.Selection{
		Videos: []media.ClipInfo{{Path: "/m/a.mp4", Duration: 5}},
	}

	got := strings.Join(c.muxArgs([]string{"-i", "/m/a.mp4"}, sel, "/out/seg.mp4"), " ")
	if !strings.Contains(got, "-c:v copy") {
		t.Errorf("silent scene should stream-copy video: %s", got)
	}
	if !strings.Contains(got, "-c:a aac -b:a 192k") {
		t.Errorf("silent scene must still normalize audio: %s", got)
	}
	if strings.Contains(got, "-t ") {
		t.Errorf("silent scene has no duration cap: %s", got)
	}
	if strings.Contains(got, "-map") {
		t.Errorf("silent scene has nothing to map: %s", got)
	}
}

func TestSegmentPathUnique(t *testing.T) {
	c := testComposer(t)
	a, b := c.SegmentPath(0), c.SegmentPath(0)
	if a == b {
		t.Error("segment paths for the same index must not collide")
	}
	if !strings.Contains(a, "segment_0_") {
		t.Errorf("unexpected segment name %q", a)
	}
}
