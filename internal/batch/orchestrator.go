// Package batch owns the run: scan once, then produce each requested
// output video in turn, tracking per-output state and honoring a
// cooperative stop request.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelmix/reelmix/internal/compose"
	"github.com/reelmix/reelmix/internal/config"
	"github.com/reelmix/reelmix/internal/ffmpeg"
	"github.com/reelmix/reelmix/internal/logging"
	"github.com/reelmix/reelmix/internal/media"
	"github.com/reelmix/reelmix/internal/progress"
	"github.com/reelmix/reelmix/internal/scanner"
	"github.com/reelmix/reelmix/internal/selector"
	"github.com/reelmix/reelmix/pkg/util"
)

// minTempSpace is the temp-dir headroom below which a run starts with a
// low-disk warning. Intermediate segments for one output can reach a few
// hundred megabytes.
const minTempSpace = 1 << 30

var (
	// ErrNoUsableScenes means an output (or the whole run) had no scene
	// with material to compose.
	ErrNoUsableScenes = errors.New("no usable scenes")

	// ErrStopped marks outputs drained from the queue after RequestStop.
	ErrStopped = errors.New("stop requested")
)

// State tracks one output video through the pipeline.
type State string

const (
	StatePending        State = "pending"
	StateScanned        State = "scanned"
	StateScenesComposed State = "scenes_composed"
	StateAssembled      State = "assembled"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// OutputStatus is the per-output result surfaced to the caller.
type OutputStatus struct {
	Index  int
	State  State
	Path   string
	Scenes int
	Err    error
}

// Summary is the end-of-run report.
type Summary struct {
	Requested int
	Completed int
	Failed    int
	Elapsed   time.Duration
	Outputs   []OutputStatus
}

// Request describes one batch run.
type Request struct {
	Folders   []media.MaterialFolder
	BGMPath   string
	OutputDir string
	Count     int
	Rescan    bool
	Seed      int64 // 0 seeds from the clock
}

// Orchestrator runs batches sequentially on a single worker. The only
// concurrent activity is the progress rebroadcast ticker.
type Orchestrator struct {
	logger  zerolog.Logger
	cfg     *config.Settings
	exec    *ffmpeg.Executor
	tracker *progress.Tracker

	stopped  atomic.Bool
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	closerMu sync.Mutex
	closers  []io.Closer
}

// New validates the settings, locates ffmpeg, and builds an orchestrator.
// onProgress may be nil.
func New(cfg *config.Settings, onProgress progress.Callback) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	logger := logging.WithComponent("batch")
	exec, err := ffmpeg.New(logger, cfg.FFmpegPath, cfg.FFprobePath, cfg.Threads)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		logger:  logger,
		cfg:     cfg,
		exec:    exec,
		tracker: progress.New(onProgress, cfg.ProgressInterval),
	}, nil
}

// RequestStop sets the cooperative stop flag and cancels any in-flight
// ffmpeg subprocess. Idempotent; already-completed outputs are retained.
func (o *Orchestrator) RequestStop() {
	if o.stopped.Swap(true) {
		return
	}
	o.logger.Info().Msg("stop requested, draining queue")

	o.cancelMu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.cancelMu.Unlock()
}

// StopRequested reports whether a stop has been requested.
func (o *Orchestrator) StopRequested() bool {
	return o.stopped.Load()
}

// RegisterCloser adds a resource to close during ReleaseResources.
func (o *Orchestrator) RegisterCloser(c io.Closer) {
	o.closerMu.Lock()
	o.closers = append(o.closers, c)
	o.closerMu.Unlock()
}

// ReleaseResources closes every registered resource. Safe to call after
// a run, before teardown.
func (o *Orchestrator) ReleaseResources() {
	o.closerMu.Lock()
	closers := o.closers
	o.closers = nil
	o.closerMu.Unlock()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			o.logger.Warn().Err(err).Msg("resource close failed")
		}
	}
}

// Run executes one batch. Materials are scanned once and reused for every
// requested output. The returned Summary always has
// Completed+Failed == Request.Count; Run errors only on fatal conditions
// (no scenes at all, unusable output dir).
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Summary, error) {
	if req.Count < 1 {
		return nil, fmt.Errorf("output count must be at least 1, got %d", req.Count)
	}
	if err := util.EnsureDir(req.OutputDir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	if free := util.FreeSpace(o.cfg.TempDir); free > 0 && free < minTempSpace {
		o.logger.Warn().
			Uint64("free_bytes", free).
			Str("temp_dir", o.cfg.TempDir).
			Msg("temp dir is low on space, composition may fail mid-run")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelMu.Lock()
	o.cancel = cancel
	o.cancelMu.Unlock()

	o.tracker.Start(req.Count)
	defer o.tracker.Stop()

	o.tracker.Report("scanning material folders", 1)
	scn := scanner.New(o.exec, o.cfg)
	scn.Rescan = req.Rescan
	sceneMap, err := scn.Scan(ctx, req.Folders)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	scenes := orderScenes(sceneMap)
	if len(scenes) == 0 {
		return nil, ErrNoUsableScenes
	}
	o.tracker.Report(fmt.Sprintf("found %d scenes", len(scenes)), 5)

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	sel := selector.New(o.exec, rng)

	summary := &Summary{Requested: req.Count}
	runStamp := time.Now()

	for n := 1; n <= req.Count; n++ {
		status := OutputStatus{Index: n, State: StateScanned}

		if o.StopRequested() {
			status.State = StateFailed
			status.Err = ErrStopped
			summary.Failed++
			summary.Outputs = append(summary.Outputs, status)
			continue
		}

		sel.Reset()
		outPath := util.UniqueName(req.OutputDir, fmt.Sprintf(
			"mix_%s_%d", runStamp.Format("20060102_150405"), n), o.cfg.OutputFormat)

		err := o.produceOutput(ctx, scenes, sel, req.BGMPath, outPath, n, req.Count, &status)
		if err != nil {
			o.logger.Error().Err(err).Int("output", n).Msg("output failed")
			status.State = StateFailed
			status.Err = err
			summary.Failed++
		} else {
			status.State = StateDone
			status.Path = outPath
			summary.Completed++
			o.tracker.CompleteUnit()
		}
		summary.Outputs = append(summary.Outputs, status)
	}

	summary.Elapsed = o.tracker.Elapsed()
	o.tracker.Report(fmt.Sprintf(
		"batch finished: %d/%d succeeded", summary.Completed, summary.Requested), 100)
	o.logger.Info().
		Int("completed", summary.Completed).
		Int("requested", summary.Requested).
		Dur("elapsed", summary.Elapsed).
		Msg("batch finished")
	return summary, nil
}

// produceOutput composes every scene, then assembles the final video.
// Per-scene failures are logged and skipped; only zero composed segments
// fails the output.
func (o *Orchestrator) produceOutput(ctx context.Context, scenes []*media.Scene, sel *selector.ClipSelector, bgmPath, outPath string, n, total int, status *OutputStatus) error {
	composer := compose.NewSegmentComposer(o.exec, o.cfg, o.cfg.TempDir)
	assembler := compose.NewFinalAssembler(o.exec, o.cfg, o.cfg.TempDir, o.tracker)

	var segments []string
	defer func() { util.CleanupFiles(segments...) }()

	var totalAudio float64

	// Each output owns the 5-100 band proportionally; scene composition
	// takes the first 70% of the slice, assembly the rest.
	bandStart := 5 + 95*float64(n-1)/float64(total)
	bandWidth := 95 / float64(total)

	for i, scene := range scenes {
		if o.StopRequested() {
			return ErrStopped
		}

		pct := bandStart + bandWidth*0.7*float64(i)/float64(len(scenes))
		o.tracker.Report(fmt.Sprintf("output %d/%d: scene %s", n, total, scene.Key), pct)

		selection, err := sel.SelectForScene(ctx, scene)
		if err != nil {
			return err
		}
		if selection == nil {
			continue
		}

		segPath := composer.SegmentPath(i)
		if err := composer.Compose(ctx, scene, selection, segPath); err != nil {
			if ctx.Err() != nil {
				return ErrStopped
			}
			o.logger.Warn().Err(err).Str("scene", scene.Key).Msg("scene compose failed, skipping")
			continue
		}
		// ffmpeg can exit zero yet leave a truncated or empty segment;
		// a bad one would poison the whole concat.
		if util.FileSize(segPath) == 0 || !o.exec.IsValidVideo(ctx, segPath) {
			o.logger.Warn().Str("scene", scene.Key).Str("segment", segPath).
				Msg("composed segment has no readable video stream, skipping")
			util.CleanupFiles(segPath)
			continue
		}
		segments = append(segments, segPath)
		if selection.Audio != nil {
			totalAudio += selection.Audio.Duration
		}
	}

	if len(segments) == 0 {
		return ErrNoUsableScenes
	}
	status.State = StateScenesComposed
	status.Scenes = len(segments)

	o.tracker.Report(fmt.Sprintf("output %d/%d: assembling %d segments", n, total, len(segments)),
		bandStart+bandWidth*0.7)
	assembler.SetBand(bandStart+bandWidth*0.7, bandWidth*0.3)
	if err := assembler.Assemble(ctx, segments, bgmPath, outPath, totalAudio); err != nil {
		if ctx.Err() != nil {
			return ErrStopped
		}
		return fmt.Errorf("assemble: %w", err)
	}
	status.State = StateAssembled

	o.tracker.Report(fmt.Sprintf("output %d/%d: done", n, total), bandStart+bandWidth)
	return nil
}

// orderScenes flattens the scan result into processing order: explicit
// index first, key as the tiebreaker.
func orderScenes(m map[string]*media.Scene) []*media.Scene {
	scenes := make([]*media.Scene, 0, len(m))
	for _, s := range m {
		scenes = append(scenes, s)
	}
	sort.Slice(scenes, func(i, j int) bool {
		if scenes[i].OrderedIndex != scenes[j].OrderedIndex {
			return scenes[i].OrderedIndex < scenes[j].OrderedIndex
		}
		return scenes[i].Key < scenes[j].Key
	})
	return scenes
}
