package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reelmix/reelmix/pkg/util"
)

// HardwareAccel selects the GPU encoder family, "auto" probes at startup.
type HardwareAccel string

const (
	AccelAuto HardwareAccel = "auto"
	AccelCUDA HardwareAccel = "cuda"
	AccelQSV  HardwareAccel = "qsv"
	AccelAMF  HardwareAccel = "amf"
	AccelNone HardwareAccel = "none"
)

// WatermarkPosition names a corner (or center) of the frame.
type WatermarkPosition string

const (
	PosTopRight    WatermarkPosition = "top_right"
	PosTopLeft     WatermarkPosition = "top_left"
	PosBottomRight WatermarkPosition = "bottom_right"
	PosBottomLeft  WatermarkPosition = "bottom_left"
	PosCenter      WatermarkPosition = "center"
)

// Watermark configures the optional timestamp overlay on final outputs.
type Watermark struct {
	Enabled  bool              `yaml:"enabled"`
	Prefix   string            `yaml:"prefix"`
	FontSize int               `yaml:"font_size"`
	Color    string            `yaml:"color"` // #RRGGBB
	Position WatermarkPosition `yaml:"position"`
	OffsetX  int               `yaml:"offset_x"`
	OffsetY  int               `yaml:"offset_y"`
}

// Settings holds all engine configuration. Callers construct it with
// Default(), optionally overlay a yaml file, then Validate() before a run.
type Settings struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`  // empty = resolve from PATH
	FFprobePath string `yaml:"ffprobe_path"` // empty = derive from ffmpeg

	HardwareAccel HardwareAccel `yaml:"hardware_accel"`
	Encoder       string        `yaml:"encoder"`
	Resolution    string        `yaml:"resolution"`
	BitrateKbps   int           `yaml:"bitrate"`
	Threads       int           `yaml:"threads"`

	Transition         string  `yaml:"transition"`
	TransitionDuration float64 `yaml:"transition_duration"`

	VoiceVolume float64 `yaml:"voice_volume"`
	BGMVolume   float64 `yaml:"bgm_volume"`

	OutputFormat string `yaml:"output_format"`
	TempDir      string `yaml:"temp_dir"`

	Watermark Watermark `yaml:"watermark"`

	// CacheTTL bounds how long a folder scan cache entry stays valid.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// ProgressInterval is the rebroadcast period of the liveness ticker.
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// Default returns the settings used when the caller supplies nothing.
func Default() *Settings {
	return &Settings{
		HardwareAccel:      AccelAuto,
		Encoder:            "libx264",
		Resolution:         "1080p",
		BitrateKbps:        5000,
		Threads:            4,
		Transition:         "random",
		TransitionDuration: 0.5,
		VoiceVolume:        1.0,
		BGMVolume:          0.5,
		OutputFormat:       "mp4",
		TempDir:            filepath.Join(os.TempDir(), "reelmix"),
		Watermark: Watermark{
			Enabled:  false,
			FontSize: 24,
			Color:    "#FFFFFF",
			Position: PosTopRight,
		},
		CacheTTL:         7 * 24 * time.Hour,
		ProgressInterval: 15 * time.Second,
	}
}

// Load reads configuration from file overlaid on defaults. A missing file
// is not an error.
func Load(path string) (*Settings, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes configuration to file
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks field ranges and guarantees the temp directory exists
// and is writable before any run starts.
func (s *Settings) Validate() error {
	switch s.HardwareAccel {
	case AccelAuto, AccelCUDA, AccelQSV, AccelAMF, AccelNone:
	default:
		return fmt.Errorf("invalid hardware_accel %q", s.HardwareAccel)
	}
	if s.BitrateKbps <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", s.BitrateKbps)
	}
	if s.Threads < 0 {
		return fmt.Errorf("threads cannot be negative, got %d", s.Threads)
	}
	if s.VoiceVolume < 0 || s.BGMVolume < 0 {
		return fmt.Errorf("volumes cannot be negative")
	}
	if s.OutputFormat == "" {
		return fmt.Errorf("output_format is required")
	}
	if s.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if s.ProgressInterval < 5*time.Second || s.ProgressInterval > 15*time.Second {
		return fmt.Errorf("progress_interval must be between 5s and 15s, got %s", s.ProgressInterval)
	}

	if err := util.EnsureDir(s.TempDir); err != nil {
		return fmt.Errorf("create temp_dir %s: %w", s.TempDir, err)
	}
	if !util.IsWritableDir(s.TempDir) {
		return fmt.Errorf("temp_dir %s is not writable", s.TempDir)
	}
	return nil
}

// CacheDir returns the folder-scan cache location under the temp dir.
func (s *Settings) CacheDir() string {
	return filepath.Join(s.TempDir, "media_cache")
}

type ctxKey struct{}

// WithConfig stores settings in the context for command handlers.
func WithConfig(ctx context.Context, s *Settings) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext retrieves settings stored by WithConfig, or defaults when
// none were stored.
func FromContext(ctx context.Context) *Settings {
	if s, ok := ctx.Value(ctxKey{}).(*Settings); ok {
		return s
	}
	return Default()
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".reelmix", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
