package compose

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reelmix/reelmix/internal/config"
)

var testWM = config.Watermark{
	Enabled:  true,
	FontSize: 24,
	Color:    "#FF8800",
	Position: config.PosTopRight,
}

func TestWatermarkText(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 4, 12, 0, time.Local)

	got := WatermarkText(testWM, now, t.TempDir())
	if got != "2026.0828.1504" {
		t.Errorf("got %q", got)
	}

	wm := testWM
	wm.Prefix = "studio"
	got = WatermarkText(wm, now, t.TempDir())
	if got != "studio 2026.0828.1504" {
		t.Errorf("got %q", got)
	}
}

func TestWatermarkTextSameMinuteCounter(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 4, 12, 0, time.Local)
	dir := t.TempDir()

	// Two outputs from the same minute already exist.
	for _, name := range []string{"mix_20260828_150401_1.mp4", "mix_20260828_150409_2.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	// A different minute does not count.
	if err := os.WriteFile(filepath.Join(dir, "mix_20260828_150312_1.mp4"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got := WatermarkText(testWM, now, dir)
	if got != "2026.0828.1504-3" {
		t.Errorf("got %q, want the third same-minute output marked", got)
	}
}

func TestDrawtextFilterPositions(t *testing.T) {
	cases := []struct {
		pos   config.WatermarkPosition
		wantX string
		wantY string
	}{
		{config.PosTopRight, "x=w-tw-10", "y=10"},
		{config.PosTopLeft, "x=10", "y=10"},
		{config.PosBottomRight, "x=w-tw-10", "y=h-th-10"},
		{config.PosBottomLeft, "x=10", "y=h-th-10"},
		{config.PosCenter, "x=(w-tw)/2+0", "y=(h-th)/2+0"},
	}
	for _, c := range cases {
		wm := testWM
		wm.Position = c.pos
		got := DrawtextFilter(wm, "stamp")
		if !strings.Contains(got, c.wantX) || !strings.Contains(got, c.wantY) {
			t.Errorf("%s: filter %q missing %q/%q", c.pos, got, c.wantX, c.wantY)
		}
	}
}

func TestDrawtextFilterOffsets(t *testing.T) {
	wm := testWM
	wm.OffsetX = 5
	wm.OffsetY = 8
	got := DrawtextFilter(wm, "stamp")
	if !strings.Contains(got, "x=w-tw-15") || !strings.Contains(got, "y=18") {
		t.Errorf("offsets not applied: %q", got)
	}
}

func TestDrawtextFilterColorAndEscaping(t *testing.T) {
	got := DrawtextFilter(testWM, "it's 100%: go")
	if !strings.Contains(got, "fontcolor=0xFF8800") {
		t.Errorf("hex color not converted: %q", got)
	}
	if !strings.Contains(got, `it\'s 100\%\: go`) {
		t.Errorf("text not escaped: %q", got)
	}
	if !strings.Contains(got, "fontsize=24") {
		t.Errorf("font size missing: %q", got)
	}

	wm := testWM
	wm.Color = "white"
	if !strings.Contains(DrawtextFilter(wm, "s"), "fontcolor=white") {
		t.Error("named color should pass through")
	}
}
