package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testDefaults(t *testing.T) *Settings {
	t.Helper()
	cfg := Default()
	cfg.TempDir = filepath.Join(t.TempDir(), "work")
	return cfg
}

func TestDefaultValidates(t *testing.T) {
	cfg := testDefaults(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if !dirExists(cfg.TempDir) {
		t.Error("Validate should create the temp dir")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(*Settings){
		"bad accel":         func(s *Settings) { s.HardwareAccel = "opencl" },
		"zero bitrate":      func(s *Settings) { s.BitrateKbps = 0 },
		"negative threads":  func(s *Settings) { s.Threads = -1 },
		"negative volume":   func(s *Settings) { s.BGMVolume = -0.1 },
		"no output format":  func(s *Settings) { s.OutputFormat = "" },
		"zero cache ttl":    func(s *Settings) { s.CacheTTL = 0 },
		"interval too low":  func(s *Settings) { s.ProgressInterval = time.Second },
		"interval too high": func(s *Settings) { s.ProgressInterval = time.Minute },
	}
	for name, mutate := range cases {
		cfg := testDefaults(t)
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Encoder != "libx264" || cfg.BitrateKbps != 5000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
encoder: libx265
bitrate: 8000
hardware_accel: none
watermark:
  enabled: true
  prefix: studio
  position: bottom_left
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Encoder != "libx265" {
		t.Errorf("Encoder = %q", cfg.Encoder)
	}
	if cfg.BitrateKbps != 8000 {
		t.Errorf("BitrateKbps = %d", cfg.BitrateKbps)
	}
	if cfg.HardwareAccel != AccelNone {
		t.Errorf("HardwareAccel = %q", cfg.HardwareAccel)
	}
	if !cfg.Watermark.Enabled || cfg.Watermark.Prefix != "studio" || cfg.Watermark.Position != PosBottomLeft {
		t.Errorf("Watermark = %+v", cfg.Watermark)
	}
	// Untouched fields keep their defaults.
	if cfg.VoiceVolume != 1.0 {
		t.Errorf("VoiceVolume = %v", cfg.VoiceVolume)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := testDefaults(t)
	cfg.Encoder = "h264_nvenc"
	cfg.BGMVolume = 0.3
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Encoder != "h264_nvenc" || loaded.BGMVolume != 0.3 {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}

func TestCacheDirUnderTemp(t *testing.T) {
	cfg := testDefaults(t)
	if got := cfg.CacheDir(); got != filepath.Join(cfg.TempDir, "media_cache") {
		t.Errorf("CacheDir = %q", got)
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
