package main

import (
	"path/filepath"
	"testing"

	"tonearm/internal/acoustid"
	"tonearm/internal/logging"
	"tonearm/internal/lookupcache"
	"tonearm/internal/testsupport"
)

func TestCacheCommandsWithoutPersistence(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")

	for _, args := range [][]string{{"cache", "stats"}, {"cache", "prune"}, {"cache", "clear"}} {
		out, _, err := runCLI(t, args, socket, configPath)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		requireContains(t, out, "persistence is disabled")
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	cfg.AcoustID.PersistCache = true
	writeTestConfig(t, configPath, cfg)
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")

	cache := lookupcache.New[[]acoustid.Match](cfg.LookupCachePath(), cfg.CacheTTL(), logging.NewNop())
	if err := cache.Store("fp-1", []acoustid.Match{{
		RecordingID: "rec-1",
		Score:       0.93,
		Title:       "Feeling Good",
		Artists:     []string{"Nina Simone"},
	}}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := cache.Store("fp-2", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	out, _, err := runCLI(t, []string{"cache", "stats", "--list"}, socket, configPath)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, cfg.LookupCachePath())
	requireContains(t, out, "Nina Simone - Feeling Good (0.93)")
	requireContains(t, out, "no match")

	out, _, err = runCLI(t, []string{"cache", "prune"}, socket, configPath)
	if err != nil {
		t.Fatalf("cache prune: %v", err)
	}
	requireContains(t, out, "Removed 0 expired lookups")

	out, _, err = runCLI(t, []string{"cache", "clear"}, socket, configPath)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Cleared 2 cached lookups")

	reloaded := lookupcache.New[[]acoustid.Match](cfg.LookupCachePath(), cfg.CacheTTL(), logging.NewNop())
	if reloaded.Count() != 0 {
		t.Fatalf("expected empty cache after clear, got %d entries", reloaded.Count())
	}
}

func TestCacheClearGoesThroughRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t, withPersistedCache())
	for _, key := range []string{"fp-1", "fp-2", "fp-3"} {
		if err := env.cache.Store(key, []acoustid.Match{{RecordingID: "rec-" + key, Score: 0.9}}); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	out, _, err := runCLI(t, []string{"cache", "prune"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cache prune: %v", err)
	}
	requireContains(t, out, "Removed 0 expired lookups")

	out, _, err = runCLI(t, []string{"cache", "clear"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Cleared 3 cached lookups")
	if _, ok := env.cache.Lookup("fp-1"); ok {
		t.Fatal("daemon still serves a cleared lookup")
	}

	if err := env.cache.Store("fp-4", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	reloaded := lookupcache.New[[]acoustid.Match](env.cfg.LookupCachePath(), env.cfg.CacheTTL(), logging.NewNop())
	if reloaded.Count() != 1 {
		t.Fatalf("expected only the new lookup on disk, got %d entries", reloaded.Count())
	}
}
