package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/reelmix/reelmix/internal/config"
)

// SelectEncoder maps the configured acceleration mode to a concrete
// encoder name. Auto picks the first hardware family the local ffmpeg
// build supports; everything else falls back to the configured software
// encoder.
func (e *Executor) SelectEncoder(accel config.HardwareAccel, software string) string {
	if software == "" {
		software = DefaultVideoCodec
	}

	switch accel {
	case config.AccelCUDA:
		return "h264_nvenc"
	case config.AccelQSV:
		return "h264_qsv"
	case config.AccelAMF:
		return "h264_amf"
	case config.AccelNone:
		return software
	case config.AccelAuto:
		for _, hw := range e.HardwareEncoders() {
			switch hw {
			case "nvenc":
				return "h264_nvenc"
			case "qsv":
				return "h264_qsv"
			case "amf":
				return "h264_amf"
			}
		}
		return software
	default:
		return software
	}
}

// IsHardwareEncoder reports whether the encoder name is a GPU encoder.
func IsHardwareEncoder(encoder string) bool {
	return strings.Contains(encoder, "nvenc") ||
		strings.Contains(encoder, "qsv") ||
		strings.Contains(encoder, "amf")
}

// SoftwareFallback returns the software encoder to retry with when a
// hardware encode fails at runtime.
func SoftwareFallback(encoder string) string {
	if IsHardwareEncoder(encoder) {
		return DefaultVideoCodec
	}
	return encoder
}

// EncoderArgs builds the per-vendor rate-control and quality arguments
// for the final encode. Compatibility mode trades lookahead/AQ features
// for settings older driver stacks accept.
func EncoderArgs(encoder string, bitrateKbps int, compat bool) []string {
	maxrate := int(float64(bitrateKbps) * 2.0)
	bufsize := bitrateKbps * 3

	switch {
	case strings.Contains(encoder, "nvenc"):
		args := []string{
			"-c:v", encoder,
			"-preset", "p2",
			"-tune", "hq",
			"-b:v", fmt.Sprintf("%dk", bitrateKbps),
			"-maxrate", fmt.Sprintf("%dk", maxrate),
			"-bufsize", fmt.Sprintf("%dk", bufsize),
		}
		if !compat {
			args = append(args,
				"-spatial-aq", "1",
				"-temporal-aq", "1",
				"-rc-lookahead", "32",
			)
		}
		return args
	case strings.Contains(encoder, "qsv"):
		args := []string{
			"-c:v", encoder,
			"-preset", "medium",
			"-global_quality", "21",
			"-b:v", fmt.Sprintf("%dk", bitrateKbps),
			"-maxrate", fmt.Sprintf("%dk", maxrate),
		}
		if !compat {
			args = append(args,
				"-look_ahead", "1",
				"-adaptive_i", "1",
				"-adaptive_b", "1",
			)
		}
		return args
	case strings.Contains(encoder, "amf"):
		args := []string{
			"-c:v", encoder,
			"-quality", "quality",
			"-usage", "transcoding",
			"-b:v", fmt.Sprintf("%dk", bitrateKbps),
			"-maxrate", fmt.Sprintf("%dk", maxrate),
		}
		if !compat {
			args = append(args,
				"-header_insertion", "1",
				"-bf", "4",
			)
		}
		return args
	default:
		return []string{
			"-c:v", encoder,
			"-preset", DefaultPreset,
			"-crf", "22",
			"-b:v", fmt.Sprintf("%dk", bitrateKbps),
			"-maxrate", fmt.Sprintf("%dk", maxrate),
			"-bufsize", fmt.Sprintf("%dk", bufsize),
			"-b_strategy", "1",
			"-bf", "3",
			"-refs", "4",
		}
	}
}

// FormatArgs are the container/pixel-format arguments shared by every
// re-encode output.
func FormatArgs() []string {
	return []string{
		"-pix_fmt", DefaultPixFmt,
		"-profile:v", DefaultProfile,
		"-level", DefaultLevel,
		"-movflags", "+faststart",
	}
}
