package scanner

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelmix/reelmix/internal/media"
	"github.com/reelmix/reelmix/pkg/util"
)

// cacheEntry is the on-disk record for one scanned folder.
type cacheEntry struct {
	FolderPath string           `json:"folder_path"`
	Timestamp  int64            `json:"timestamp"`
	Videos     []media.ClipInfo `json:"videos"`
	Audios     []media.ClipInfo `json:"audios"`
}

// metaCache persists folder inventories as JSON files named by an MD5 hash
// of the normalized folder path. Entries expire after the configured TTL.
type metaCache struct {
	dir    string
	ttl    time.Duration
	logger zerolog.Logger
}

func newMetaCache(dir string, ttl time.Duration, logger zerolog.Logger) *metaCache {
	return &metaCache{dir: dir, ttl: ttl, logger: logger}
}

// entryPath derives the cache file location for a folder. The path is
// cleaned and lowercased with forward slashes so the same folder always
// hashes to the same key regardless of how the caller spelled it.
func (c *metaCache) entryPath(folder string) string {
	normalized := strings.ToLower(filepath.ToSlash(filepath.Clean(folder)))
	sum := md5.Sum([]byte(normalized))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

// load returns the cached inventory for folder if present and not expired.
func (c *metaCache) load(folder string) (*cacheEntry, bool) {
	path := c.entryPath(folder)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("discarding corrupt cache entry")
		os.Remove(path)
		return nil, false
	}

	age := time.Since(time.Unix(entry.Timestamp, 0))
	if age > c.ttl {
		c.logger.Debug().Str("folder", folder).Dur("age", age).Msg("cache entry expired")
		return nil, false
	}

	return &entry, true
}

// store writes a fresh inventory for folder, replacing any existing entry.
func (c *metaCache) store(folder string, videos, audios []media.ClipInfo) {
	if err := util.EnsureDir(c.dir); err != nil {
		c.logger.Warn().Err(err).Str("dir", c.dir).Msg("cannot create cache dir")
		return
	}

	entry := cacheEntry{
		FolderPath: folder,
		Timestamp:  time.Now().Unix(),
		Videos:     videos,
		Audios:     audios,
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("folder", folder).Msg("cannot encode cache entry")
		return
	}
	if err := os.WriteFile(c.entryPath(folder), data, 0644); err != nil {
		c.logger.Warn().Err(err).Str("folder", folder).Msg("cannot write cache entry")
	}
}
