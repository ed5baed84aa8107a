package lookupcache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func newClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestStoreAndLookupWithinTTL(t *testing.T) {
	clock := newClock()
	cache := New[[]string](filepath.Join(t.TempDir(), "cache.json"), time.Hour, nil, WithClock(clock.Now))

	require.NoError(t, cache.Store("sig-1", []string{"rec-a", "rec-b"}))

	got, ok := cache.Lookup("sig-1")
	require.True(t, ok)
	assert.Equal(t, []string{"rec-a", "rec-b"}, got)

	clock.Advance(59 * time.Minute)
	_, ok = cache.Lookup("sig-1")
	assert.True(t, ok, "entry should still be valid before TTL")

	clock.Advance(time.Minute)
	_, ok = cache.Lookup("sig-1")
	assert.False(t, ok, "entry should expire exactly at TTL")

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Expired)
}

func TestEmptyValuesAreCached(t *testing.T) {
	cache := New[[]string]("", time.Hour, nil)
	require.NoError(t, cache.Store("nothing", nil))

	got, ok := cache.Lookup("nothing")
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestEmptyKeyRejected(t *testing.T) {
	cache := New[int]("", time.Hour, nil)
	assert.Error(t, cache.Store("  ", 1))
	_, ok := cache.Lookup("")
	assert.False(t, ok)
	assert.Error(t, cache.Remove(""))
}

func TestMemoryOnlyCacheWorks(t *testing.T) {
	cache := New[int]("", time.Hour, nil)
	require.NoError(t, cache.Store("a", 1))
	v, ok := cache.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, cache.Count())
	assert.Empty(t, cache.Stats().Path)
}

func TestPersistenceSkipsExpiredEntries(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "nested", "cache.json")

	first := New[string](path, time.Hour, nil, WithClock(clock.Now))
	require.NoError(t, first.Store("old", "x"))
	clock.Advance(30 * time.Minute)
	require.NoError(t, first.Store("new", "y"))

	clock.Advance(45 * time.Minute)
	second := New[string](path, time.Hour, nil, WithClock(clock.Now))
	assert.Equal(t, 1, second.Count())
	v, ok := second.Lookup("new")
	require.True(t, ok)
	assert.Equal(t, "y", v)
}

func TestPruneRemoveClearAndList(t *testing.T) {
	clock := newClock()
	cache := New[int](filepath.Join(t.TempDir(), "cache.json"), time.Minute, nil, WithClock(clock.Now))

	require.NoError(t, cache.Store("a", 1))
	clock.Advance(30 * time.Second)
	require.NoError(t, cache.Store("b", 2))
	clock.Advance(45 * time.Second)

	list := cache.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Key)

	removed, err := cache.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cache.Count())

	assert.Error(t, cache.Remove("a"))
	require.NoError(t, cache.Remove("b"))
	assert.Zero(t, cache.Count())

	require.NoError(t, cache.Store("c", 3))
	require.NoError(t, cache.Clear())
	assert.Zero(t, cache.Count())
}

func TestCorruptedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("not valid json"), 0o644))

	cache := New[int](path, time.Hour, nil)
	assert.Zero(t, cache.Count())
	require.NoError(t, cache.Store("k", 7))
	v, ok := cache.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestExternalClearIsNotOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	daemon := New[int](path, time.Hour, nil)
	for i, key := range []string{"a", "b", "c"} {
		require.NoError(t, daemon.Store(key, i))
	}

	cli := New[int](path, time.Hour, nil)
	require.Equal(t, 3, cli.Count())
	require.NoError(t, cli.Clear())

	_, ok := daemon.Lookup("a")
	assert.False(t, ok, "cleared entry still served from memory")

	require.NoError(t, daemon.Store("d", 4))
	reloaded := New[int](path, time.Hour, nil)
	assert.Equal(t, 1, reloaded.Count())
	_, ok = reloaded.Lookup("d")
	assert.True(t, ok)
}

func TestExternalRemovalResetsCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	cache := New[int](path, time.Hour, nil)
	require.NoError(t, cache.Store("a", 1))

	require.NoError(t, os.Remove(path))
	assert.Zero(t, cache.Count())
	require.NoError(t, cache.Store("b", 2))
	assert.Equal(t, 1, New[int](path, time.Hour, nil).Count())
}

func TestStoreDropsExpiredEntries(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "cache.json")
	cache := New[int](path, time.Minute, nil, WithClock(clock.Now))
	require.NoError(t, cache.Store("a", 1))
	require.NoError(t, cache.Store("b", 2))

	clock.Advance(2 * time.Minute)
	require.NoError(t, cache.Store("c", 3))

	assert.Equal(t, 1, cache.Count())
	entries := New[int](path, time.Hour, nil).List()
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].Key)
}
