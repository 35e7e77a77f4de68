package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrFFmpegNotFound means no usable ffmpeg/ffprobe binary was located at
// startup. This is fatal for the whole run.
var ErrFFmpegNotFound = errors.New("ffmpeg binary not available")

// Executor handles all ffmpeg/ffprobe operations with progress streaming.
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int

	mu         sync.Mutex
	hwEncoders []string
}

// New creates a new executor. Either path may be empty: ffmpeg then
// resolves from PATH, ffprobe from PATH with a fallback derived from the
// ffmpeg location. Verifies the binaries exist — a missing ffmpeg is the
// one startup condition that halts the whole run.
func New(logger zerolog.Logger, ffmpegPath, ffprobePath string, threads int) (*Executor, error) {
	var err error
	if ffmpegPath == "" {
		ffmpegPath, err = exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("%w: ffmpeg not in PATH: %v", ErrFFmpegNotFound, err)
		}
	}

	if ffprobePath == "" {
		ffprobePath, err = exec.LookPath("ffprobe")
		if err != nil {
			// Derive from a custom ffmpeg location before giving up.
			derived := strings.Replace(ffmpegPath, "ffmpeg", "ffprobe", 1)
			if derived == ffmpegPath {
				return nil, fmt.Errorf("%w: ffprobe not in PATH: %v", ErrFFmpegNotFound, err)
			}
			ffprobePath = derived
		}
	}

	e := &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
	}

	if err := e.checkVersion(); err != nil {
		return nil, err
	}
	return e, nil
}

// checkVersion runs `ffmpeg -version` and records the available hardware
// encoders for the auto acceleration mode.
func (e *Executor) checkVersion() error {
	out, err := exec.Command(e.ffmpegPath, "-version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: unusable at %s: %v", ErrFFmpegNotFound, e.ffmpegPath, err)
	}
	if line, _, ok := strings.Cut(string(out), "\n"); ok {
		e.logger.Info().Str("version", strings.TrimSpace(line)).Msg("ffmpeg available")
	}

	encOut, err := exec.Command(e.ffmpegPath, "-encoders").CombinedOutput()
	if err != nil {
		e.logger.Warn().Err(err).Msg("could not list encoders")
		return nil
	}
	var found []string
	for _, hw := range []string{"nvenc", "qsv", "amf"} {
		if strings.Contains(string(encOut), hw) {
			found = append(found, hw)
		}
	}
	e.mu.Lock()
	e.hwEncoders = found
	e.mu.Unlock()
	if len(found) > 0 {
		e.logger.Info().Strs("encoders", found).Msg("hardware encoders detected")
	} else {
		e.logger.Info().Msg("no hardware encoders detected")
	}
	return nil
}

// HardwareEncoders returns the encoder families found at startup.
func (e *Executor) HardwareEncoders() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.hwEncoders...)
}

// Run executes ffmpeg with the given arguments and streams progress.
// Stderr is read incrementally while the subprocess runs so callers see
// frame counts during long encodes, and the full text is returned for
// retry classification on failure.
func (e *Executor) Run(ctx context.Context, opts RunOptions) (string, error) {
	if len(opts.Args) == 0 {
		return "", fmt.Errorf("no arguments provided")
	}

	baseArgs := []string{"-y", "-hide_banner", "-loglevel", "info"}
	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var stderrBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		e.streamOutput(stderr, &stderrBuf, opts.ProgressHandler, opts.LogHandler)
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return stderrBuf.String(), ctx.Err()
		}
		return stderrBuf.String(), fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return stderrBuf.String(), nil
}

// streamOutput parses ffmpeg stderr line by line, capturing the full text
// and emitting progress records as stats lines arrive.
func (e *Executor) streamOutput(r io.Reader, capture *bytes.Buffer, progressHandler ProgressFunc, logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	// Stats lines end in \r, not \n; split on either.
	scanner.Split(scanCRorLF)

	for scanner.Scan() {
		line := scanner.Text()
		capture.WriteString(line)
		capture.WriteByte('\n')

		if logHandler != nil {
			logHandler(line)
		}

		if progressHandler != nil {
			if p, ok := parseStatsLine(line); ok {
				progressHandler(p)
			}
		}
	}
}

// statsPair matches one key=value token in a stats line. ffmpeg pads
// values to a fixed width, so an arbitrary run of spaces can sit between
// the = and the value.
var statsPair = regexp.MustCompile(`(\w+)=\s*(\S+)`)

// parseStatsLine extracts progress from ffmpeg's periodic
// "frame=  454 fps= 25 ... time=00:00:15.12 ... speed=1.01x" stderr line.
func parseStatsLine(line string) (*Progress, bool) {
	if !strings.HasPrefix(strings.TrimSpace(line), "frame=") {
		return nil, false
	}

	p := &Progress{}
	for _, m := range statsPair.FindAllStringSubmatch(line, -1) {
		key, val := m[1], m[2]
		switch key {
		case "frame":
			fmt.Sscanf(val, "%d", &p.Frame)
		case "fps":
			fmt.Sscanf(val, "%f", &p.FPS)
		case "bitrate":
			p.Bitrate = val
		case "time":
			p.Time = val
		case "speed":
			p.Speed = val
		}
	}
	return p, p.Frame > 0
}

// scanCRorLF is a bufio.SplitFunc treating both \r and \n as line ends.
func scanCRorLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
