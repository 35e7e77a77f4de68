// Package selector picks the clips that fill each scene's narration time.
package selector

import (
	"context"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/reelmix/reelmix/internal/ffmpeg"
	"github.com/reelmix/reelmix/internal/logging"
	"github.com/reelmix/reelmix/internal/media"
)

// probeSampleCap bounds how many unknown-duration clips a single_video
// selection will probe before falling back to reuse.
const probeSampleCap = 50

// ClipSelector chooses videos and narration per scene. It owns the run's
// RNG and the process-wide used-clip set so later scenes prefer fresh
// material. Not safe for concurrent use; the batch worker is the only
// caller.
type ClipSelector struct {
	logger zerolog.Logger
	exec   *ffmpeg.Executor
	rng    *rand.Rand
	used   map[string]bool
}

// New constructs a selector with the given RNG. Pass a seeded rand.Rand so
// runs are reproducible under test.
func New(exec *ffmpeg.Executor, rng *rand.Rand) *ClipSelector {
	return &ClipSelector{
		logger: logging.WithComponent("selector"),
		exec:   exec,
		rng:    rng,
		used:   make(map[string]bool),
	}
}

// Reset clears the used-clip set. Called between output videos so each
// output draws from the full library again.
func (s *ClipSelector) Reset() {
	s.used = make(map[string]bool)
}

// SelectForScene picks the narration and the video(s) covering it. A nil
// Selection with nil error means the scene has nothing usable and should
// be skipped.
func (s *ClipSelector) SelectForScene(ctx context.Context, scene *media.Scene) (*media.Selection, error) {
	if len(scene.Videos) == 0 {
		s.logger.Warn().Str("scene", scene.Key).Msg("no videos available, skipping scene")
		return nil, nil
	}

	audio, target := s.chooseAudio(scene)

	sel := &media.Selection{Audio: audio, TargetSeconds: target}

	if scene.ExtractMode == media.SingleVideo {
		clip, escalate := s.chooseSingle(ctx, scene, target)
		if clip != nil && !escalate {
			s.markUsed(clip.Path)
			sel.Videos = []media.ClipInfo{*clip}
			return sel, nil
		}
		if escalate {
			s.logger.Info().
				Str("scene", scene.Key).
				Float64("target", target).
				Msg("chosen clip too short, escalating to multi-video")
		}
	}

	videos := s.chooseMulti(ctx, scene, target)
	if len(videos) == 0 {
		s.logger.Warn().Str("scene", scene.Key).Msg("no usable videos, skipping scene")
		return nil, nil
	}
	for _, v := range videos {
		s.markUsed(v.Path)
	}
	sel.Videos = videos
	sel.MultiVideo = true
	return sel, nil
}

// chooseAudio picks a narration uniformly at random. Returns a nil clip
// and zero target for a silent scene.
func (s *ClipSelector) chooseAudio(scene *media.Scene) (*media.ClipInfo, float64) {
	candidates := make([]media.ClipInfo, 0, len(scene.Audios))
	for _, a := range scene.Audios {
		if a.Duration > 0 {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		s.logger.Debug().Str("scene", scene.Key).Msg("silent scene, no narration")
		return nil, 0
	}
	chosen := candidates[s.rng.Intn(len(candidates))]
	return &chosen, chosen.Duration
}

// chooseSingle implements single_video selection. The second return is
// true when the best available clip is shorter than half the target and
// the scene should be treated as multi_video instead.
func (s *ClipSelector) chooseSingle(ctx context.Context, scene *media.Scene, target float64) (*media.ClipInfo, bool) {
	// Clips whose already-known duration covers the narration.
	var long []media.ClipInfo
	var unknown []media.ClipInfo
	for i := range scene.Videos {
		c := scene.Videos[i]
		switch {
		case c.Duration >= target && target > 0:
			long = append(long, c)
		case c.Duration == media.DurationUnknown:
			unknown = append(unknown, c)
		}
	}

	// Probe a bounded random sample of the unknowns to discover more.
	if len(long) == 0 && len(unknown) > 0 {
		s.rng.Shuffle(len(unknown), func(i, j int) {
			unknown[i], unknown[j] = unknown[j], unknown[i]
		})
		sample := unknown
		if len(sample) > probeSampleCap {
			sample = sample[:probeSampleCap]
		}
		for i := range sample {
			sample[i].Duration = s.probeDuration(ctx, sample[i].Path)
			if sample[i].Duration >= target && target > 0 {
				long = append(long, sample[i])
			}
		}
	}

	var chosen media.ClipInfo
	switch {
	case len(long) > 0:
		if fresh := s.unusedOf(long); len(fresh) > 0 {
			chosen = fresh[s.rng.Intn(len(fresh))]
		} else {
			chosen = long[s.rng.Intn(len(long))]
		}
	default:
		// Nothing covers the target; fall back to any unused clip, then
		// to outright reuse.
		pool := s.unusedOf(scene.Videos)
		if len(pool) == 0 {
			pool = scene.Videos
		}
		chosen = pool[s.rng.Intn(len(pool))]
		if chosen.Duration == media.DurationUnknown {
			chosen.Duration = s.probeDuration(ctx, chosen.Path)
		}
	}

	if target > 0 && chosen.Duration > 0 && chosen.Duration < target/2 {
		return nil, true
	}
	return &chosen, false
}

// chooseMulti greedily accumulates shuffled clips until their summed
// duration covers the target, probing metadata on demand. Unused clips go
// first; used ones fill in only when fresh material runs out.
func (s *ClipSelector) chooseMulti(ctx context.Context, scene *media.Scene, target float64) []media.ClipInfo {
	fresh := s.unusedOf(scene.Videos)
	stale := s.usedOf(scene.Videos)
	s.rng.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
	s.rng.Shuffle(len(stale), func(i, j int) { stale[i], stale[j] = stale[j], stale[i] })
	pool := append(fresh, stale...)

	var picked []media.ClipInfo
	var sum float64
	for _, c := range pool {
		if c.Duration == media.DurationUnknown {
			c.Duration = s.probeDuration(ctx, c.Path)
		}
		if c.Duration <= 0 {
			continue
		}
		picked = append(picked, c)
		sum += c.Duration
		if target <= 0 || sum >= target {
			break
		}
	}

	if target > 0 && sum < target {
		s.logger.Warn().
			Str("scene", scene.Key).
			Float64("target", target).
			Float64("available", sum).
			Msg("total material shorter than narration")
	}
	return picked
}

// probeDuration resolves a clip duration, header fast path first since it
// needs no subprocess, ffprobe after. -1 when both fail.
func (s *ClipSelector) probeDuration(ctx context.Context, path string) float64 {
	if d := media.FastDuration(path); d > 0 {
		return d
	}
	if s.exec != nil {
		if info, err := s.exec.Probe(ctx, path); err == nil && info.Duration > 0 {
			return info.Duration
		}
	}
	return media.DurationUnknown
}

func (s *ClipSelector) markUsed(path string) { s.used[path] = true }

func (s *ClipSelector) unusedOf(clips []media.ClipInfo) []media.ClipInfo {
	var out []media.ClipInfo
	for _, c := range clips {
		if !s.used[c.Path] {
			out = append(out, c)
		}
	}
	return out
}

func (s *ClipSelector) usedOf(clips []media.ClipInfo) []media.ClipInfo {
	var out []media.ClipInfo
	for _, c := range clips {
		if s.used[c.Path] {
			out = append(out, c)
		}
	}
	return out
}
