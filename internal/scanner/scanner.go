// Package scanner walks material folders and builds the per-scene clip
// inventories the selector draws from. Results are cached on disk per
// folder so repeated runs over large libraries skip the filesystem walk.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/reelmix/reelmix/internal/config"
	"github.com/reelmix/reelmix/internal/ffmpeg"
	"github.com/reelmix/reelmix/internal/logging"
	"github.com/reelmix/reelmix/internal/media"
	"github.com/reelmix/reelmix/internal/shortcut"
	"github.com/reelmix/reelmix/pkg/util"
)

// Folder name tokens recognized as video / narration sub-locations when no
// exactly-named subfolder exists. Includes the CJK names common in source
// material libraries.
var (
	videoTokens = []string{"video", "clip", "素材", "视频"}
	voiceTokens = []string{"voice", "audio", "narration", "配音", "音频", "语音"}
)

// Scanner builds Scene inventories from material folders.
type Scanner struct {
	logger zerolog.Logger
	exec   *ffmpeg.Executor
	cache  *metaCache

	// Rescan bypasses the cache for this walk. Fresh results are still
	// written back.
	Rescan bool
}

// New constructs a Scanner using the configured cache directory and TTL.
// exec may be nil, in which case audio durations come from the mvhd fast
// path only.
func New(exec *ffmpeg.Executor, cfg *config.Settings) *Scanner {
	logger := logging.WithComponent("scanner")
	return &Scanner{
		logger: logger,
		exec:   exec,
		cache:  newMetaCache(cfg.CacheDir(), cfg.CacheTTL, logger),
	}
}

// Scan walks every material folder and returns the discovered scenes keyed
// by scene key. Unreadable folders are logged and skipped; an empty result
// is returned as-is, never as an error.
func (s *Scanner) Scan(ctx context.Context, folders []media.MaterialFolder) (map[string]*media.Scene, error) {
	scenes := make(map[string]*media.Scene)

	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !util.DirExists(folder.Path) {
			s.logger.Warn().Str("path", folder.Path).Msg("material folder missing, skipping")
			continue
		}

		found, err := s.scanFolder(ctx, folder)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", folder.Path).Msg("folder scan failed, skipping")
			continue
		}
		if len(found) == 0 {
			s.logger.Warn().Str("path", folder.Path).Msg("folder yielded no scenes")
			continue
		}
		for _, sc := range found {
			scenes[sc.Key] = sc
		}
	}

	s.logger.Info().Int("scenes", len(scenes)).Int("folders", len(folders)).Msg("scan complete")
	return scenes, nil
}

// scanFolder turns one material folder into its ordered scenes.
func (s *Scanner) scanFolder(ctx context.Context, folder media.MaterialFolder) ([]*media.Scene, error) {
	if folder.ExtractMode == media.MultiVideo {
		sc, err := s.buildScene(ctx, folder, folder.Path, folder.DisplayName, 0)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			return nil, nil
		}
		return []*media.Scene{sc}, nil
	}

	subdirs, err := s.sceneDirs(folder.Path)
	if err != nil {
		return nil, err
	}

	// A subfolder is a scene only when it holds its own video/voice
	// sub-locations. This keeps the canonical root/{video,voice} layout
	// as one paired scene instead of splitting the clip pool from its
	// narration.
	qualified := subdirs[:0]
	for _, dir := range subdirs {
		if s.findSubLocation(dir, videoTokens) != "" || s.findSubLocation(dir, voiceTokens) != "" {
			qualified = append(qualified, dir)
		}
	}
	subdirs = qualified

	// No qualifying subfolders: the folder itself is a single scene.
	if len(subdirs) == 0 {
		sc, err := s.buildScene(ctx, folder, folder.Path, folder.DisplayName, 0)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			return nil, nil
		}
		return []*media.Scene{sc}, nil
	}

	var scenes []*media.Scene
	for i, dir := range subdirs {
		sc, err := s.buildScene(ctx, folder, dir, filepath.Base(dir), i)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", dir).Msg("subfolder scan failed, skipping")
			continue
		}
		if sc != nil {
			scenes = append(scenes, sc)
		}
	}
	return scenes, nil
}

// sceneDirs enumerates the immediate subfolders of a single_video material
// folder, resolving .lnk shortcuts to directories, ordered by an explicit
// numeric name prefix when present and by name otherwise.
func (s *Scanner) sceneDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		full := filepath.Join(root, entry.Name())
		switch {
		case entry.IsDir():
			dirs = append(dirs, full)
		case strings.EqualFold(filepath.Ext(entry.Name()), ".lnk"):
			if target, ok := shortcut.Resolve(full); ok && util.DirExists(target) {
				dirs = append(dirs, target)
			}
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		ni, iok := namePrefixIndex(filepath.Base(dirs[i]))
		nj, jok := namePrefixIndex(filepath.Base(dirs[j]))
		if iok && jok && ni != nj {
			return ni < nj
		}
		return filepath.Base(dirs[i]) < filepath.Base(dirs[j])
	})
	return dirs, nil
}

// buildScene assembles one scene from sceneDir, reading the cache when the
// entry is still fresh. Returns nil when the scene has no material at all.
func (s *Scanner) buildScene(ctx context.Context, folder media.MaterialFolder, sceneDir, name string, index int) (*media.Scene, error) {
	var videos, audios []media.ClipInfo

	if !s.Rescan {
		if entry, ok := s.cache.load(sceneDir); ok {
			s.logger.Debug().Str("path", sceneDir).Msg("using cached inventory")
			videos, audios = entry.Videos, entry.Audios
		}
	}

	if videos == nil && audios == nil {
		var err error
		videos, audios, err = s.walkScene(ctx, sceneDir)
		if err != nil {
			return nil, err
		}
		s.cache.store(sceneDir, videos, audios)
	}

	if len(videos) == 0 && len(audios) == 0 {
		return nil, nil
	}

	sc := &media.Scene{
		Key:          fmt.Sprintf("%02d_%s", index, name),
		OrderedIndex: index,
		Path:         sceneDir,
		DisplayName:  name,
		ParentFolder: folder.Path,
		ExtractMode:  folder.ExtractMode,
		Videos:       videos,
		Audios:       audios,
	}
	s.logger.Debug().
		Str("scene", sc.Key).
		Int("videos", len(videos)).
		Int("audios", len(audios)).
		Msg("scene built")
	return sc, nil
}

// walkScene enumerates a scene directory's video and narration inventories.
// Video durations stay unknown (probed lazily at selection time); audio
// durations are resolved now because they drive all downstream accounting.
func (s *Scanner) walkScene(ctx context.Context, sceneDir string) (videos, audios []media.ClipInfo, err error) {
	videoDir := s.findSubLocation(sceneDir, videoTokens)
	voiceDir := s.findSubLocation(sceneDir, voiceTokens)

	if videoDir == "" {
		videoDir = sceneDir
	}

	videos, err = listClips(videoDir, media.VideoExtensions)
	if err != nil {
		return nil, nil, err
	}

	if voiceDir != "" {
		audios, err = listClips(voiceDir, media.AudioExtensions)
		if err != nil {
			return nil, nil, err
		}
	} else {
		// Narration may sit loose in the scene folder itself.
		audios, _ = listClips(sceneDir, media.AudioExtensions)
	}

	for i := range audios {
		audios[i].Duration = s.audioDuration(ctx, audios[i].Path)
	}
	return videos, audios, nil
}

// findSubLocation locates a scene's sub-location by exact name, shortcut,
// or fuzzy token containment, in that order. Returns "" when nothing
// qualifies.
func (s *Scanner) findSubLocation(sceneDir string, tokens []string) string {
	for _, token := range tokens {
		direct := filepath.Join(sceneDir, token)
		if util.DirExists(direct) {
			return direct
		}
		if target, ok := shortcut.Resolve(direct + ".lnk"); ok && util.DirExists(target) {
			return target
		}
	}

	entries, err := os.ReadDir(sceneDir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		name := strings.ToLower(entry.Name())
		for _, token := range tokens {
			if !strings.Contains(name, token) {
				continue
			}
			full := filepath.Join(sceneDir, entry.Name())
			if entry.IsDir() {
				return full
			}
			if strings.HasSuffix(name, ".lnk") {
				if target, ok := shortcut.Resolve(full); ok && util.DirExists(target) {
					return target
				}
			}
		}
	}
	return ""
}

// audioDuration resolves a narration duration, preferring ffprobe and
// falling back to the header fast path. -1 when neither works.
func (s *Scanner) audioDuration(ctx context.Context, path string) float64 {
	if s.exec != nil {
		if info, err := s.exec.Probe(ctx, path); err == nil && info.Duration > 0 {
			return info.Duration
		}
	}
	if d := media.FastDuration(path); d > 0 {
		return d
	}
	s.logger.Warn().Str("path", path).Msg("cannot determine narration duration")
	return media.DurationUnknown
}

// listClips enumerates the files in dir matching the extension allow-list,
// sorted by name. Metadata is left unknown.
func listClips(dir string, extensions []string) ([]media.ClipInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var clips []media.ClipInfo
	for _, entry := range entries {
		if entry.IsDir() || !util.HasExtension(entry.Name(), extensions) {
			continue
		}
		// Short-form paths keep non-ASCII names safe on ffmpeg command
		// lines; a no-op outside Windows.
		path := shortcut.ShortPath(filepath.Join(dir, entry.Name()))
		clips = append(clips, media.NewClip(path))
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].Path < clips[j].Path })
	return clips, nil
}

// namePrefixIndex extracts a leading decimal index from a folder name,
// e.g. "03_intro" -> 3.
func namePrefixIndex(name string) (int, bool) {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(name[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}
