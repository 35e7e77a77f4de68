package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelmix/reelmix/internal/config"
	"github.com/reelmix/reelmix/internal/media"
)

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	return cfg
}

func touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// sceneTree builds a single_video material folder with two ordered scene
// subfolders, each holding video and voice sub-locations.
func sceneTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	touch(t,
		filepath.Join(root, "01_intro", "video", "a.mp4"),
		filepath.Join(root, "01_intro", "video", "b.MOV"),
		filepath.Join(root, "01_intro", "voice", "narration.mp3"),
		filepath.Join(root, "02_outro", "clips video", "c.mkv"),
		filepath.Join(root, "02_outro", "voice over", "end.wav"),
		filepath.Join(root, "02_outro", "notes.txt"),
	)
	return root
}

func TestScanSingleVideoSubfolders(t *testing.T) {
	root := sceneTree(t)
	s := New(nil, testSettings(t))

	scenes, err := s.Scan(context.Background(), []media.MaterialFolder{
		{Path: root, DisplayName: "demo", ExtractMode: media.SingleVideo},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("got %d scenes, want 2", len(scenes))
	}

	intro, ok := scenes["00_01_intro"]
	if !ok {
		t.Fatalf("missing intro scene, keys: %v", sceneKeys(scenes))
	}
	if len(intro.Videos) != 2 {
		t.Errorf("intro videos = %d, want 2", len(intro.Videos))
	}
	if len(intro.Audios) != 1 {
		t.Errorf("intro audios = %d, want 1", len(intro.Audios))
	}
	if intro.ExtractMode != media.SingleVideo {
		t.Errorf("extract mode = %s", intro.ExtractMode)
	}
	for _, v := range intro.Videos {
		if v.Duration != media.DurationUnknown {
			t.Errorf("video duration should stay unknown, got %v", v.Duration)
		}
	}

	// Fuzzy token matching locates "clips video" / "voice over".
	outro, ok := scenes["01_02_outro"]
	if !ok {
		t.Fatalf("missing outro scene, keys: %v", sceneKeys(scenes))
	}
	if len(outro.Videos) != 1 || len(outro.Audios) != 1 {
		t.Errorf("outro inventory = %d videos, %d audios", len(outro.Videos), len(outro.Audios))
	}
	if outro.OrderedIndex <= intro.OrderedIndex {
		t.Error("outro should order after intro")
	}
}

func TestScanMultiVideoFolderIsOneScene(t *testing.T) {
	root := t.TempDir()
	touch(t,
		filepath.Join(root, "a.mp4"),
		filepath.Join(root, "b.webm"),
		filepath.Join(root, "skip.txt"),
		filepath.Join(root, "voice.mp3"),
	)

	s := New(nil, testSettings(t))
	scenes, err := s.Scan(context.Background(), []media.MaterialFolder{
		{Path: root, DisplayName: "pool", ExtractMode: media.MultiVideo},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("got %d scenes, want 1", len(scenes))
	}
	for _, sc := range scenes {
		if len(sc.Videos) != 2 {
			t.Errorf("videos = %d, want 2", len(sc.Videos))
		}
		if len(sc.Audios) != 1 {
			t.Errorf("audios = %d, want 1", len(sc.Audios))
		}
		if sc.ExtractMode != media.MultiVideo {
			t.Errorf("extract mode = %s", sc.ExtractMode)
		}
	}
}

func TestScanPairedVideoVoiceLayout(t *testing.T) {
	// The canonical layout keeps the clip pool and the narration in
	// sibling subfolders of the material folder. Neither subfolder holds
	// sub-locations of its own, so the folder itself must become one
	// paired scene rather than splitting into a clips-only scene and a
	// narration-only scene.
	root := t.TempDir()
	touch(t,
		filepath.Join(root, "video", "a.mp4"),
		filepath.Join(root, "video", "b.mp4"),
		filepath.Join(root, "voice", "narration.mp3"),
	)

	s := New(nil, testSettings(t))
	scenes, err := s.Scan(context.Background(), []media.MaterialFolder{
		{Path: root, DisplayName: "paired", ExtractMode: media.SingleVideo},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("got scenes %v, want one paired scene", sceneKeys(scenes))
	}
	for _, sc := range scenes {
		if len(sc.Videos) != 2 {
			t.Errorf("videos = %d, want 2", len(sc.Videos))
		}
		if len(sc.Audios) != 1 {
			t.Errorf("audios = %d, want the narration paired in", len(sc.Audios))
		}
	}
}

func TestScanFlatSingleVideoFolder(t *testing.T) {
	// No subfolders at all: the folder itself becomes the scene.
	root := t.TempDir()
	touch(t, filepath.Join(root, "only.mp4"))

	s := New(nil, testSettings(t))
	scenes, err := s.Scan(context.Background(), []media.MaterialFolder{
		{Path: root, DisplayName: "flat", ExtractMode: media.SingleVideo},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("got %d scenes, want 1", len(scenes))
	}
}

func TestScanMissingFolderSkipped(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mp4"))

	s := New(nil, testSettings(t))
	scenes, err := s.Scan(context.Background(), []media.MaterialFolder{
		{Path: filepath.Join(root, "nope"), DisplayName: "gone", ExtractMode: media.MultiVideo},
		{Path: root, DisplayName: "ok", ExtractMode: media.MultiVideo},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("got %d scenes, want 1", len(scenes))
	}
}

func TestScanCacheShortCircuit(t *testing.T) {
	root := t.TempDir()
	clip := filepath.Join(root, "a.mp4")
	touch(t, clip)

	cfg := testSettings(t)
	s := New(nil, cfg)
	folders := []media.MaterialFolder{{Path: root, DisplayName: "p", ExtractMode: media.MultiVideo}}

	first, err := s.Scan(context.Background(), folders)
	if err != nil {
		t.Fatal(err)
	}

	// Remove the file; a cached rescan must not notice.
	if err := os.Remove(clip); err != nil {
		t.Fatal(err)
	}

	second, err := s.Scan(context.Background(), folders)
	if err != nil {
		t.Fatal(err)
	}
	for key, sc := range first {
		got, ok := second[key]
		if !ok {
			t.Fatalf("scene %s missing from cached scan", key)
		}
		if len(got.Videos) != len(sc.Videos) {
			t.Errorf("cached scan diverged for %s", key)
		}
	}

	// An explicit rescan walks the filesystem again and sees the change.
	s.Rescan = true
	third, err := s.Scan(context.Background(), folders)
	if err != nil {
		t.Fatal(err)
	}
	if len(third) != 0 {
		t.Errorf("rescan should find no scenes, got %d", len(third))
	}
}

func TestScanCacheExpiry(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mp4"))

	cfg := testSettings(t)
	cfg.CacheTTL = time.Nanosecond
	s := New(nil, cfg)
	folders := []media.MaterialFolder{{Path: root, DisplayName: "p", ExtractMode: media.MultiVideo}}

	if _, err := s.Scan(context.Background(), folders); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(root, "b.mp4"))
	time.Sleep(10 * time.Millisecond)

	scenes, err := s.Scan(context.Background(), folders)
	if err != nil {
		t.Fatal(err)
	}
	for _, sc := range scenes {
		if len(sc.Videos) != 2 {
			t.Errorf("expired cache should rescan, got %d videos", len(sc.Videos))
		}
	}
}

func sceneKeys(m map[string]*media.Scene) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
