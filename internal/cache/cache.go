// Package cache persists everything learned from the metadata service. The
// cache only ever grows: entries are inserted if absent and never replaced.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"github.com/Digital-Shane/episode-matcher/internal/prodcode"
	"github.com/Digital-Shane/episode-matcher/internal/provider"
	"github.com/gofrs/flock"
	csmap "github.com/mhmtszr/concurrent-swiss-map"
)

const documentVersion = 1

// CacheIOError reports a failed read or write of the cache file. It is never
// fatal: the in-memory cache stays usable.
type CacheIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

type episodeKey struct {
	series int64
	code   prodcode.Code
}

type seasonKey struct {
	series  int64
	season  int
	episode int
}

// Cache is the persistent metadata store.
type Cache struct {
	path   string
	logger *slog.Logger

	// mu serializes insert-if-absent and flushes
	mu sync.Mutex
	// writes counts completed flushes
	writes   int
	series   *csmap.CsMap[int64, string]
	episodes *csmap.CsMap[episodeKey, provider.EpisodeRecord]
	seasons  *csmap.CsMap[seasonKey, provider.EpisodeRecord]
}

// document is the on-disk shape. Keys are strings so the file stays
// readable: series id, then production code or SxxExx.
type document struct {
	Version  int                                                 `json:"version"`
	Series   map[string]string                                   `json:"series"`
	Episodes map[string]map[prodcode.Code]provider.EpisodeRecord `json:"episodes"`
	Seasons  map[string]map[string]provider.EpisodeRecord        `json:"seasons"`
}

// New returns an empty cache bound to path. An empty path disables
// persistence.
func New(path string, logger *slog.Logger) *Cache {
	return &Cache{
		path:     path,
		logger:   logging.NewComponentLogger(logger, "cache"),
		series:   csmap.Create[int64, string](),
		episodes: csmap.Create[episodeKey, provider.EpisodeRecord](),
		seasons:  csmap.Create[seasonKey, provider.EpisodeRecord](),
	}
}

// Load reads the cache at path. A missing or unreadable file yields an empty
// cache and a warning; it never fails.
func Load(path string, logger *slog.Logger) *Cache {
	c := New(path, logger)
	if path == "" {
		return c
	}

	doc, err := readDocument(path)
	if err != nil {
		c.logger.Warn("failed to load metadata cache, starting empty",
			slog.String("path", path),
			slog.Any("error", err))
		return c
	}
	c.merge(doc)

	c.logger.Debug("loaded metadata cache",
		slog.String("path", path),
		slog.Int("series", c.series.Count()),
		slog.Int("episodes", c.episodes.Count()))
	return c
}

// Path returns the backing file, empty when persistence is disabled.
func (c *Cache) Path() string { return c.path }

// Series returns the cached display name of a series.
func (c *Cache) Series(seriesID int64) (string, bool) {
	return c.series.Load(seriesID)
}

// Episode returns the cached record for a production code.
func (c *Cache) Episode(seriesID int64, code prodcode.Code) (provider.EpisodeRecord, bool) {
	return c.episodes.Load(episodeKey{seriesID, code})
}

// SeasonEpisode returns the cached record at a season/episode position.
func (c *Cache) SeasonEpisode(seriesID int64, season, episode int) (provider.EpisodeRecord, bool) {
	return c.seasons.Load(seasonKey{seriesID, season, episode})
}

// PutSeries records a series name if none is known yet.
func (c *Cache) PutSeries(seriesID int64, name string) (bool, error) {
	return put(c, c.series, seriesID, name)
}

// PutEpisode records a code's episode if the code is not known yet.
func (c *Cache) PutEpisode(seriesID int64, code prodcode.Code, rec provider.EpisodeRecord) (bool, error) {
	if code == "" {
		return false, errors.New("production code cannot be empty")
	}
	return put(c, c.episodes, episodeKey{seriesID, code}, rec)
}

// PutSeasonEpisode records an episode under its own season/episode position.
func (c *Cache) PutSeasonEpisode(seriesID int64, rec provider.EpisodeRecord) (bool, error) {
	return put(c, c.seasons, seasonKey{seriesID, rec.Season, rec.Episode}, rec)
}

// PutEpisodes records a batch of listed episodes under both their code and
// their position, then writes the file once. It returns the number of new
// entries.
func (c *Cache) PutEpisodes(seriesID int64, episodes []provider.CodedEpisode) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, ep := range episodes {
		if ep.Code != "" && insertLocked(c, c.episodes, episodeKey{seriesID, ep.Code}, ep.Record) {
			added++
		}
		if insertLocked(c, c.seasons, seasonKey{seriesID, ep.Record.Season, ep.Record.Episode}, ep.Record) {
			added++
		}
	}
	if added == 0 {
		return 0, nil
	}
	return added, c.flushLocked()
}

// put inserts value under key unless the key exists, then flushes. An
// existing value is kept even if it differs.
func put[K comparable, V comparable](c *Cache, m *csmap.CsMap[K, V], key K, value V) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !insertLocked(c, m, key, value) {
		return false, nil
	}
	return true, c.flushLocked()
}

func insertLocked[K comparable, V comparable](c *Cache, m *csmap.CsMap[K, V], key K, value V) bool {
	if existing, ok := m.Load(key); ok {
		if existing != value {
			c.logger.Debug("ignoring conflicting cache write",
				slog.Any("key", key),
				slog.Any("kept", existing),
				slog.Any("offered", value))
		}
		return false
	}
	m.SetIfAbsent(key, value)
	return true
}

// Flush writes the cache to disk.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Cache) flushLocked() error {
	if c.path == "" {
		return nil
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &CacheIOError{Op: "flush", Path: c.path, Err: err}
	}

	lock := flock.New(c.path + ".lock")
	if err := lock.Lock(); err != nil {
		return &CacheIOError{Op: "lock", Path: c.path, Err: err}
	}
	defer lock.Unlock()

	// another process may have appended since we loaded
	if doc, err := readDocument(c.path); err == nil {
		c.merge(doc)
	}

	data, err := json.MarshalIndent(c.snapshot(), "", "  ")
	if err != nil {
		return &CacheIOError{Op: "encode", Path: c.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return &CacheIOError{Op: "flush", Path: c.path, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &CacheIOError{Op: "flush", Path: c.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &CacheIOError{Op: "flush", Path: c.path, Err: err}
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return &CacheIOError{Op: "flush", Path: c.path, Err: err}
	}
	c.writes++
	return nil
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &document{}, nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return &document{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}
	return &doc, nil
}

// merge adds entries from doc that are not already present.
func (c *Cache) merge(doc *document) {
	for rawID, name := range doc.Series {
		if id, err := strconv.ParseInt(rawID, 10, 64); err == nil && name != "" {
			c.series.SetIfAbsent(id, name)
		}
	}
	for rawID, codes := range doc.Episodes {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			continue
		}
		for code, rec := range codes {
			if code != "" {
				c.episodes.SetIfAbsent(episodeKey{id, code}, rec)
			}
		}
	}
	for rawID, positions := range doc.Seasons {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			continue
		}
		for _, rec := range positions {
			c.seasons.SetIfAbsent(seasonKey{id, rec.Season, rec.Episode}, rec)
		}
	}
}

func (c *Cache) snapshot() document {
	doc := document{
		Version:  documentVersion,
		Series:   make(map[string]string, c.series.Count()),
		Episodes: make(map[string]map[prodcode.Code]provider.EpisodeRecord),
		Seasons:  make(map[string]map[string]provider.EpisodeRecord),
	}

	c.series.Range(func(id int64, name string) bool {
		doc.Series[strconv.FormatInt(id, 10)] = name
		return false
	})
	c.episodes.Range(func(k episodeKey, rec provider.EpisodeRecord) bool {
		id := strconv.FormatInt(k.series, 10)
		if doc.Episodes[id] == nil {
			doc.Episodes[id] = make(map[prodcode.Code]provider.EpisodeRecord)
		}
		doc.Episodes[id][k.code] = rec
		return false
	})
	c.seasons.Range(func(k seasonKey, rec provider.EpisodeRecord) bool {
		id := strconv.FormatInt(k.series, 10)
		if doc.Seasons[id] == nil {
			doc.Seasons[id] = make(map[string]provider.EpisodeRecord)
		}
		doc.Seasons[id][rec.SeasonEpisode()] = rec
		return false
	})
	return doc
}
