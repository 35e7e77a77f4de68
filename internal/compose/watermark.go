package compose

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/reelmix/reelmix/internal/config"
)

// WatermarkText renders the overlay text for a run started at now: the
// optional prefix, a YYYY.MMDD.HHMM stamp, and a disambiguating counter
// when earlier outputs in outputDir carry the same minute stamp.
func WatermarkText(wm config.Watermark, now time.Time, outputDir string) string {
	stamp := now.Format("2006.0102.1504")

	text := stamp
	if wm.Prefix != "" {
		text = wm.Prefix + " " + stamp
	}

	if n := sameMinuteCount(outputDir, now); n > 0 {
		text = fmt.Sprintf("%s-%d", text, n+1)
	}
	return text
}

// sameMinuteCount counts existing outputs whose filename carries this
// minute's timestamp, so two videos finished seconds apart stay
// distinguishable.
func sameMinuteCount(outputDir string, now time.Time) int {
	minute := now.Format("20060102_1504")
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.Contains(entry.Name(), minute) {
			count++
		}
	}
	return count
}

// DrawtextFilter builds the drawtext filter string for the overlay.
func DrawtextFilter(wm config.Watermark, text string) string {
	var b strings.Builder
	b.WriteString("drawtext=text='")
	b.WriteString(escapeDrawtext(text))
	b.WriteString("'")

	fmt.Fprintf(&b, ":fontsize=%d", wm.FontSize)
	fmt.Fprintf(&b, ":fontcolor=%s", drawtextColor(wm.Color))

	x, y := positionExpr(wm.Position, wm.OffsetX, wm.OffsetY)
	fmt.Fprintf(&b, ":x=%s:y=%s", x, y)
	return b.String()
}

// positionExpr returns the drawtext x/y expressions for a corner (or
// center) with pixel offsets pushing the text inward.
func positionExpr(pos config.WatermarkPosition, offX, offY int) (x, y string) {
	switch pos {
	case config.PosTopLeft:
		return fmt.Sprintf("%d", 10+offX), fmt.Sprintf("%d", 10+offY)
	case config.PosBottomRight:
		return fmt.Sprintf("w-tw-%d", 10+offX), fmt.Sprintf("h-th-%d", 10+offY)
	case config.PosBottomLeft:
		return fmt.Sprintf("%d", 10+offX), fmt.Sprintf("h-th-%d", 10+offY)
	case config.PosCenter:
		return fmt.Sprintf("(w-tw)/2+%d", offX), fmt.Sprintf("(h-th)/2+%d", offY)
	default: // top_right
		return fmt.Sprintf("w-tw-%d", 10+offX), fmt.Sprintf("%d", 10+offY)
	}
}

// drawtextColor converts "#RRGGBB" to ffmpeg's 0xRRGGBB form; named
// colors pass through.
func drawtextColor(color string) string {
	if strings.HasPrefix(color, "#") {
		return "0x" + strings.TrimPrefix(color, "#")
	}
	if color == "" {
		return "white"
	}
	return color
}

// escapeDrawtext escapes the characters drawtext treats specially inside
// a quoted text value.
func escapeDrawtext(text string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(text)
}
