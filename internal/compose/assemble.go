package compose

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelmix/reelmix/internal/config"
	"github.com/reelmix/reelmix/internal/ffmpeg"
	"github.com/reelmix/reelmix/internal/logging"
	"github.com/reelmix/reelmix/internal/progress"
	"github.com/reelmix/reelmix/pkg/util"
)

// FinalAssembler joins scene segments into the finished video: concat,
// optional BGM mix, optional watermark re-encode.
type FinalAssembler struct {
	logger  zerolog.Logger
	exec    *ffmpeg.Executor
	cfg     *config.Settings
	tempDir string
	tracker *progress.Tracker

	// expectSeconds is the final output duration, used to turn ffmpeg
	// time= lines into a percentage during the watermark encode.
	expectSeconds float64

	// bandStart/bandWidth map encode progress into the batch's overall
	// percent range so the bar never jumps backwards between outputs.
	bandStart float64
	bandWidth float64
}

// NewFinalAssembler builds an assembler writing intermediates under
// tempDir. tracker may be nil.
func NewFinalAssembler(exec *ffmpeg.Executor, cfg *config.Settings, tempDir string, tracker *progress.Tracker) *FinalAssembler {
	return &FinalAssembler{
		logger:  logging.WithComponent("assemble"),
		exec:    exec,
		cfg:     cfg,
		tempDir: tempDir,
		tracker: tracker,
	}
}

// SetBand confines this assembler's progress reports to [start, start+width]
// of the overall percentage scale.
func (a *FinalAssembler) SetBand(start, width float64) {
	a.bandStart = start
	a.bandWidth = width
}

// Assemble concatenates segments in order, mixes in bgmPath when set, and
// applies the watermark when enabled, writing the finished video to
// outPath. totalAudio caps the output duration (sum of the resolved
// narration durations); pass 0 for no cap.
func (a *FinalAssembler) Assemble(ctx context.Context, segments []string, bgmPath, outPath string, totalAudio float64) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments to assemble")
	}

	a.expectSeconds = totalAudio

	var cleanup []string
	defer func() { util.CleanupFiles(cleanup...) }()

	// Each stage writes outPath directly when it is the last one.
	needMix := bgmPath != ""
	needWatermark := a.cfg.Watermark.Enabled

	concatOut := outPath
	if needMix || needWatermark {
		concatOut = filepath.Join(a.tempDir, fmt.Sprintf("concat_%s.mp4", uuid.NewString()))
		cleanup = append(cleanup, concatOut)
	}
	if err := a.concatSegments(ctx, segments, concatOut, totalAudio); err != nil {
		return err
	}

	current := concatOut
	if needMix {
		mixOut := outPath
		if needWatermark {
			mixOut = filepath.Join(a.tempDir, fmt.Sprintf("bgm_%s.mp4", uuid.NewString()))
			cleanup = append(cleanup, mixOut)
		}
		if err := a.mixBGM(ctx, current, bgmPath, mixOut); err != nil {
			return err
		}
		current = mixOut
	}

	if needWatermark {
		if err := a.applyWatermark(ctx, current, outPath); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A lost overlay is recoverable, a lost output is not.
			a.logger.Warn().Err(err).
				Msg("watermark failed on every encoder, delivering without overlay")
			util.CleanupFiles(outPath)
			if mvErr := util.MoveFile(current, outPath); mvErr != nil {
				return fmt.Errorf("recover unwatermarked output: %w", mvErr)
			}
		}
	}
	return nil
}

// concatSegments joins the segments with the concat demuxer, stream copy
// first, re-encode on failure.
func (a *FinalAssembler) concatSegments(ctx context.Context, segments []string, outPath string, totalAudio float64) error {
	listFile, err := ffmpeg.WriteConcatList(a.tempDir, segments)
	if err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer util.CleanupFiles(listFile)

	base := []string{"-f", "concat", "-safe", "0", "-i", listFile}

	args := append(append([]string{}, base...), "-c", "copy")
	if totalAudio > 0 {
		args = append(args, "-t", util.FormatSeconds(totalAudio+durationBuffer))
	}
	args = append(args, outPath)

	if _, err := a.exec.Run(ctx, ffmpeg.RunOptions{Args: args}); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	} else {
		a.logger.Warn().Err(err).Msg("concat stream-copy failed, retrying with re-encode")
	}

	encoder := a.exec.SelectEncoder(a.cfg.HardwareAccel, a.cfg.Encoder)
	args = append([]string{}, base...)
	args = append(args, ffmpeg.EncoderArgs(encoder, a.cfg.BitrateKbps, false)...)
	args = append(args, ffmpeg.FormatArgs()...)
	args = append(args, "-c:a", ffmpeg.DefaultAudioCodec, "-b:a", ffmpeg.DefaultAudioRate)
	if totalAudio > 0 {
		args = append(args, "-t", util.FormatSeconds(totalAudio+durationBuffer))
	}
	args = append(args, outPath)

	if _, err := a.exec.Run(ctx, ffmpeg.RunOptions{Args: args}); err != nil {
		return fmt.Errorf("concat failed after re-encode retry: %w", err)
	}
	return nil
}

// mixBGM loops the background track under the concatenated audio. The
// segment audio keeps its natural inter-scene silence; the BGM is
// attenuated and mixed on top, video stream copied through.
func (a *FinalAssembler) mixBGM(ctx context.Context, videoPath, bgmPath, outPath string) error {
	filter := fmt.Sprintf(
		"[1:a]volume=%.2f[bgm];[0:a][bgm]amix=inputs=2:duration=longest[aout]",
		a.cfg.BGMVolume,
	)
	args := []string{
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", bgmPath,
		"-filter_complex", filter,
		"-map", "0:v:0",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", ffmpeg.DefaultAudioCodec, "-b:a", ffmpeg.DefaultAudioRate,
		"-shortest",
		outPath,
	}
	if _, err := a.exec.Run(ctx, ffmpeg.RunOptions{Args: args}); err != nil {
		return fmt.Errorf("bgm mix: %w", err)
	}
	return nil
}

// applyWatermark draws the timestamp overlay, which forces a video
// re-encode. The encode ladder runs hardware encoder, hardware in
// compatibility mode, then software.
func (a *FinalAssembler) applyWatermark(ctx context.Context, inPath, outPath string) error {
	text := WatermarkText(a.cfg.Watermark, time.Now(), filepath.Dir(outPath))
	filter := DrawtextFilter(a.cfg.Watermark, text)
	encoder := a.exec.SelectEncoder(a.cfg.HardwareAccel, a.cfg.Encoder)

	type attempt struct {
		encoder string
		compat  bool
	}
	attempts := []attempt{{encoder, false}}
	if ffmpeg.IsHardwareEncoder(encoder) {
		attempts = append(attempts,
			attempt{encoder, true},
			attempt{ffmpeg.SoftwareFallback(encoder), false},
		)
	}

	var lastErr error
	for i, attempt := range attempts {
		if i > 0 {
			a.logger.Warn().
				Err(lastErr).
				Str("encoder", attempt.encoder).
				Bool("compat", attempt.compat).
				Msg("watermark encode failed, retrying")
			util.CleanupFiles(outPath)
		}

		args := a.watermarkArgs(inPath, outPath, filter, attempt.encoder, attempt.compat)
		_, err := a.exec.Run(ctx, ffmpeg.RunOptions{
			Args:            args,
			ProgressHandler: a.encodeProgress,
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return fmt.Errorf("watermark encode: %w", lastErr)
}

func (a *FinalAssembler) watermarkArgs(inPath, outPath, filter, encoder string, compat bool) []string {
	args := []string{"-i", inPath, "-vf", filter}
	args = append(args, ffmpeg.EncoderArgs(encoder, a.cfg.BitrateKbps, compat)...)
	args = append(args,
		"-g", "30",
		"-keyint_min", "15",
		"-sc_threshold", "40",
	)
	args = append(args, ffmpeg.FormatArgs()...)
	args = append(args, "-c:a", "copy")
	return append(args, outPath)
}

// encodeProgress surfaces ffmpeg stats lines during the final encode,
// estimating completion from the time= field against the expected output
// duration. Percent -1 means "unknown".
func (a *FinalAssembler) encodeProgress(p *ffmpeg.Progress) {
	if a.tracker == nil {
		return
	}

	percent := -1.0
	msg := fmt.Sprintf("encoding frame %d", p.Frame)
	if p.Time != "" {
		msg = fmt.Sprintf("encoding %s (frame %d, %.0f fps)", strings.TrimSpace(p.Time), p.Frame, p.FPS)
		if a.expectSeconds > 0 {
			if done, err := util.ParseTimestamp(p.Time); err == nil {
				fraction := done / a.expectSeconds
				if fraction > 1 {
					fraction = 1
				}
				if a.bandWidth > 0 {
					percent = a.bandStart + a.bandWidth*fraction
				} else {
					percent = 100 * fraction
				}
			}
		}
	}
	a.tracker.Report(msg, percent)
}
