// Package compose drives the FFmpeg work that turns selected clips into
// scene segments and scene segments into the finished video.
package compose

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelmix/reelmix/internal/config"
	"github.com/reelmix/reelmix/internal/ffmpeg"
	"github.com/reelmix/reelmix/internal/logging"
	"github.com/reelmix/reelmix/internal/media"
	"github.com/reelmix/reelmix/pkg/util"
)

// durationBuffer pads every duration cap so audio is never clipped by a
// rounding error.
const durationBuffer = 0.1

// SegmentComposer produces one temp clip per scene: the selected video(s)
// trimmed and concatenated to the narration length, with the narration
// muxed on. Stream-copy is tried first; a failed run is retried as a full
// re-encode since copy failures usually mean incompatible source codecs.
type SegmentComposer struct {
	logger  zerolog.Logger
	exec    *ffmpeg.Executor
	cfg     *config.Settings
	tempDir string
}

// NewSegmentComposer builds a composer writing its intermediates under
// tempDir.
func NewSegmentComposer(exec *ffmpeg.Executor, cfg *config.Settings, tempDir string) *SegmentComposer {
	return &SegmentComposer{
		logger:  logging.WithComponent("segment"),
		exec:    exec,
		cfg:     cfg,
		tempDir: tempDir,
	}
}

// SegmentPath returns the temp file name for scene segment idx. The UUID
// keeps names collision-free across outputs sharing one temp dir.
func (c *SegmentComposer) SegmentPath(idx int) string {
	return filepath.Join(c.tempDir, fmt.Sprintf("segment_%d_%s.mp4", idx, uuid.NewString()))
}

// Compose writes the scene's segment to outPath. Intermediate trim and
// list files are removed before returning.
func (c *SegmentComposer) Compose(ctx context.Context, scene *media.Scene, sel *media.Selection, outPath string) error {
	if len(sel.Videos) == 0 {
		return fmt.Errorf("scene %s: empty selection", scene.Key)
	}

	var cleanup []string
	defer func() { util.CleanupFiles(cleanup...) }()

	var videoInput []string
	if sel.MultiVideo && len(sel.Videos) > 1 {
		listFile, trimFile, err := c.prepareConcat(ctx, sel)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, listFile)
		if trimFile != "" {
			cleanup = append(cleanup, trimFile)
		}
		videoInput = []string{"-f", "concat", "-safe", "0", "-i", listFile}
	} else {
		videoInput = []string{"-i", sel.Videos[0].Path}
	}

	args := c.muxArgs(videoInput, sel, outPath)
	if _, err := c.exec.Run(ctx, ffmpeg.RunOptions{Args: args}); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	} else {
		c.logger.Warn().Err(err).Str("scene", scene.Key).Msg("stream-copy failed, retrying with re-encode")
	}

	args = c.reencodeArgs(videoInput, sel, outPath)
	if _, err := c.exec.Run(ctx, ffmpeg.RunOptions{Args: args}); err != nil {
		return fmt.Errorf("scene %s: compose failed after re-encode retry: %w", scene.Key, err)
	}
	return nil
}

// prepareConcat writes the concat list for a multi-video selection,
// pre-trimming the last clip via stream copy when only part of it is
// needed. Returns the list file and the trim temp file (empty when the
// last clip is used whole).
func (c *SegmentComposer) prepareConcat(ctx context.Context, sel *media.Selection) (listFile, trimFile string, err error) {
	inputs := make([]string, len(sel.Videos))
	var sumButLast float64
	for i, v := range sel.Videos {
		inputs[i] = v.Path
		if i < len(sel.Videos)-1 {
			sumButLast += v.Duration
		}
	}

	last := sel.Videos[len(sel.Videos)-1]
	needed := sel.TargetSeconds - sumButLast
	if sel.TargetSeconds > 0 && last.Duration > 0 && needed > 0 && needed < last.Duration {
		trimFile = filepath.Join(c.tempDir, fmt.Sprintf("trim_%s.mp4", uuid.NewString()))
		args := []string{
			"-i", last.Path,
			"-t", util.FormatSeconds(needed + durationBuffer),
			"-c", "copy",
			trimFile,
		}
		if _, err := c.exec.Run(ctx, ffmpeg.RunOptions{Args: args}); err != nil {
			// A failed trim is not fatal; concat the whole clip and let
			// the output duration cap handle the excess.
			c.logger.Warn().Err(err).Str("path", last.Path).Msg("pre-trim failed, using full clip")
			util.CleanupFiles(trimFile)
			trimFile = ""
		} else {
			inputs[len(inputs)-1] = trimFile
		}
	}

	listFile, err = ffmpeg.WriteConcatList(c.tempDir, inputs)
	if err != nil {
		if trimFile != "" {
			util.CleanupFiles(trimFile)
		}
		return "", "", fmt.Errorf("write concat list: %w", err)
	}
	return listFile, trimFile, nil
}

// muxArgs builds the stream-copy attempt: concatenated (or single) video
// with the narration mapped on as the sole audio track.
func (c *SegmentComposer) muxArgs(videoInput []string, sel *media.Selection, outPath string) []string {
	args := append([]string{}, videoInput...)

	if sel.Audio != nil {
		args = append(args, "-i", sel.Audio.Path)
		args = append(args, "-map", "0:v:0", "-map", "1:a:0")
		args = append(args, "-c:v", "copy")
		args = append(args, "-c:a", ffmpeg.DefaultAudioCodec, "-b:a", ffmpeg.DefaultAudioRate)
		if c.cfg.VoiceVolume != 1.0 {
			args = append(args, "-af", fmt.Sprintf("volume=%.2f", c.cfg.VoiceVolume))
		}
	} else {
		// Audio still re-encodes to aac so segments from mixed sources
		// stay stream-copy concatenable in the final assembly.
		args = append(args, "-c:v", "copy")
		args = append(args, "-c:a", ffmpeg.DefaultAudioCodec, "-b:a", ffmpeg.DefaultAudioRate)
	}

	if sel.TargetSeconds > 0 {
		args = append(args, "-t", util.FormatSeconds(sel.TargetSeconds+durationBuffer))
	}
	return append(args, outPath)
}

// reencodeArgs is the fallback: same graph, but video re-encoded with the
// configured encoder and the standard format parameters.
func (c *SegmentComposer) reencodeArgs(videoInput []string, sel *media.Selection, outPath string) []string {
	args := append([]string{}, videoInput...)

	if sel.Audio != nil {
		args = append(args, "-i", sel.Audio.Path)
		args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	}

	encoder := c.exec.SelectEncoder(c.cfg.HardwareAccel, c.cfg.Encoder)
	args = append(args, ffmpeg.EncoderArgs(encoder, c.cfg.BitrateKbps, false)...)
	args = append(args, ffmpeg.FormatArgs()...)
	args = append(args, "-c:a", ffmpeg.DefaultAudioCodec, "-b:a", ffmpeg.DefaultAudioRate)
	if sel.Audio != nil && c.cfg.VoiceVolume != 1.0 {
		args = append(args, "-af", fmt.Sprintf("volume=%.2f", c.cfg.VoiceVolume))
	}

	if sel.TargetSeconds > 0 {
		args = append(args, "-t", util.FormatSeconds(sel.TargetSeconds+durationBuffer))
	}
	return append(args, outPath)
}
