package ffmpeg

import (
	"bufio"
	"strings"
	"testing"
)

func TestParseStatsLine(t *testing.T) {
	line := "frame= 123 fps= 30 q=28.0 size= 1024kB time=00:00:04.10 bitrate=2045.8kbits/s speed=1.22x"

	p, ok := parseStatsLine(line)
	if !ok {
		t.Fatal("expected a progress line")
	}
	if p.Frame != 123 {
		t.Errorf("Frame = %d, want 123", p.Frame)
	}
	if p.FPS != 30 {
		t.Errorf("FPS = %v, want 30", p.FPS)
	}
	if p.Time != "00:00:04.10" {
		t.Errorf("Time = %q", p.Time)
	}
	if p.Speed != "1.22x" {
		t.Errorf("Speed = %q", p.Speed)
	}
}

func TestParseStatsLinePaddedValues(t *testing.T) {
	// ffmpeg pads frame to width 5, so short encodes arrive with runs of
	// spaces after the equals sign.
	line := "frame=  454 fps= 25 q=28.0 size=    2048kB time=00:00:15.12 bitrate=1109.3kbits/s speed=1.01x"

	p, ok := parseStatsLine(line)
	if !ok {
		t.Fatal("padded stats line not parsed")
	}
	if p.Frame != 454 {
		t.Errorf("Frame = %d, want 454", p.Frame)
	}
	if p.FPS != 25 {
		t.Errorf("FPS = %v, want 25", p.FPS)
	}
	if p.Time != "00:00:15.12" {
		t.Errorf("Time = %q", p.Time)
	}
	if p.Speed != "1.01x" {
		t.Errorf("Speed = %q", p.Speed)
	}

	wide := "frame=    7 fps=0.0 q=-1.0 Lsize=     512kB time=00:00:00.23 bitrate=17901.2kbits/s speed=0.46x"
	p, ok = parseStatsLine(wide)
	if !ok || p.Frame != 7 {
		t.Errorf("single-digit frame not parsed: ok=%v frame=%d", ok, p.Frame)
	}
}

func TestParseStatsLineRejectsOtherOutput(t *testing.T) {
	for _, line := range []string{
		"",
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"Stream mapping:",
		"frame I dropped",
	} {
		if _, ok := parseStatsLine(line); ok {
			t.Errorf("line %q should not parse as progress", line)
		}
	}
}

func TestScanCRorLF(t *testing.T) {
	input := "line one\rline two\nline three"
	sc := bufio.NewScanner(strings.NewReader(input))
	sc.Split(scanCRorLF)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	want := []string{"line one", "line two", "line three"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
