package lookupcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tonearm/internal/logging"
)

// Entry is a cached value with its lifetime.
type Entry[V any] struct {
	Key       string    `json:"key"`
	Value     V         `json:"value"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer valid at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats summarizes cache contents and effectiveness since creation.
type Stats struct {
	Entries int    `json:"entries"`
	Expired int    `json:"expired"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Path    string `json:"path,omitempty"`
}

// Option customizes a Cache.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock replaces the wall clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// Cache provides thread-safe TTL caching with optional JSON persistence.
//
// A persisted cache treats the file as the source of truth: when another
// process replaces or removes it (tonearm cache clear while the daemon is
// down), the next access reloads it instead of writing the stale in-memory
// entries back.
type Cache[V any] struct {
	path    string
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]Entry[V]
	// disk is the file as last read or written by this instance.
	disk   os.FileInfo
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache whose entries live for ttl. If path is empty the cache
// is memory-only; otherwise existing entries are loaded and every mutation is
// persisted.
func New[V any](path string, ttl time.Duration, logger *slog.Logger, opts ...Option) *Cache[V] {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "lookupcache")

	cfg := settings{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Cache[V]{
		path:    strings.TrimSpace(path),
		ttl:     ttl,
		now:     cfg.now,
		logger:  logger,
		entries: make(map[string]Entry[V]),
	}

	if c.path == "" {
		return c
	}

	c.mu.Lock()
	c.refreshLocked()
	c.mu.Unlock()
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Lookup returns the unexpired value cached under key.
func (c *Cache[V]) Lookup(key string) (V, bool) {
	var zero V
	key = strings.TrimSpace(key)
	if key == "" {
		return zero, false
	}

	c.mu.Lock()
	c.refreshLocked()
	entry, found := c.entries[key]
	c.mu.Unlock()

	if !found || entry.Expired(c.now()) {
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return entry.Value, true
}

// Store caches value under key for the configured TTL.
func (c *Cache[V]) Store(key string, value V) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key cannot be empty")
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()

	for existing, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, existing)
		}
	}
	c.entries[key] = Entry[V]{
		Key:       key,
		Value:     value,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("cached lookup result",
		logging.String("key", key),
		logging.Duration("ttl", c.ttl))
	return nil
}

// Remove deletes an entry and persists the change.
func (c *Cache[V]) Remove(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()

	if _, exists := c.entries[key]; !exists {
		return fmt.Errorf("key %q not found in cache", key)
	}
	delete(c.entries, key)

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache[V]) Prune() (int, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()

	removed := 0
	for key, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := c.save(); err != nil {
		return removed, fmt.Errorf("persist cache: %w", err)
	}
	c.logger.Debug("pruned expired lookups", logging.Int("removed", removed))
	return removed, nil
}

// List returns all entries sorted by CachedAt descending (newest first).
func (c *Cache[V]) List() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return c.sortedLocked()
}

// Clear removes all entries and persists the empty cache.
func (c *Cache[V]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry[V])
	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	c.logger.Debug("cleared lookup cache")
	return nil
}

// Count returns the number of entries, expired ones included.
func (c *Cache[V]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return len(c.entries)
}

// Stats reports entry counts and hit/miss totals.
func (c *Cache[V]) Stats() Stats {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()

	stats := Stats{
		Entries: len(c.entries),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Path:    c.path,
	}
	for _, entry := range c.entries {
		if entry.Expired(now) {
			stats.Expired++
		}
	}
	return stats
}

func (c *Cache[V]) sortedLocked() []Entry[V] {
	entries := make([]Entry[V], 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CachedAt.Equal(entries[j].CachedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].CachedAt.After(entries[j].CachedAt)
	})
	return entries
}

// refreshLocked reloads the file when it no longer is the one this instance
// last read or wrote. Callers hold the lock.
func (c *Cache[V]) refreshLocked() {
	if c.path == "" {
		return
	}
	info, err := os.Stat(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if c.disk != nil {
			c.entries = make(map[string]Entry[V])
			c.disk = nil
		}
		return
	case err != nil:
		return
	case c.disk != nil && sameFile(c.disk, info):
		return
	}

	entries, err := c.read()
	if err != nil {
		logging.WarnWithContext(c.logger, "failed to load lookup cache", "lookupcache_load_failed",
			logging.String("path", c.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "previously cached lookups will hit the network again"))
		entries = make(map[string]Entry[V])
	}
	c.entries = entries
	c.disk = info
	c.logger.Debug("loaded lookup cache",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", c.path))
}

func sameFile(a, b os.FileInfo) bool {
	return os.SameFile(a, b) && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}

// read parses the cache file, skipping expired entries.
func (c *Cache[V]) read() (map[string]Entry[V], error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	out := make(map[string]Entry[V])
	if len(data) == 0 {
		return out, nil
	}
	var entries []Entry[V]
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}
	now := c.now()
	for _, entry := range entries {
		if strings.TrimSpace(entry.Key) == "" || entry.Expired(now) {
			continue
		}
		out[entry.Key] = entry
	}
	return out, nil
}

// save writes the cache to disk atomically. Callers hold the lock.
func (c *Cache[V]) save() error {
	if c.path == "" {
		return nil
	}

	data, err := json.Marshal(c.sortedLocked())
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	if info, err := os.Stat(c.path); err == nil {
		c.disk = info
	}
	return nil
}
