package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/textutil"
)

// Field weights used by Search. Weights of fields missing from either side
// are dropped and the rest renormalized.
const (
	TitleWeight  = 0.5
	ArtistWeight = 0.35
	AlbumWeight  = 0.15
)

// Store is the persistence surface the catalog needs.
type Store interface {
	ListRecordings(ctx context.Context) ([]queue.Recording, error)
	UpsertRecordings(ctx context.Context, recordings []queue.Recording) (int, error)
	CatalogRevision(ctx context.Context) (string, error)
}

// Query describes free-text fields to match against the catalog.
type Query struct {
	Title  string
	Artist string
	Album  string
}

// Hit is a scored catalog entry.
type Hit struct {
	Recording queue.Recording
	Score     float64
	Fields    map[string]float64
}

// Catalog is a lazily loaded, revision-checked view of the recordings table.
type Catalog struct {
	store    Store
	logger   *slog.Logger
	mu       sync.RWMutex
	revision string
	loaded   bool
	entries  []queue.Recording
	byID     map[string]int
}

// New constructs a catalog over store.
func New(store Store, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Catalog{
		store:  store,
		logger: logging.NewComponentLogger(logger, "catalog"),
	}
}

// Get returns the recording with id.
func (c *Catalog) Get(ctx context.Context, id string) (queue.Recording, bool, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return queue.Recording{}, false, err
	}
	key := strings.ToLower(strings.TrimSpace(id))
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byID[key]
	if !ok {
		return queue.Recording{}, false, nil
	}
	return c.entries[idx], true, nil
}

// Recordings returns a snapshot of every catalog entry.
func (c *Catalog) Recordings(ctx context.Context) ([]queue.Recording, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]queue.Recording, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

// Len reports how many recordings are indexed.
func (c *Catalog) Len(ctx context.Context) (int, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// Search returns entries scoring at least minScore, best first. Ties are
// broken by recording id. A query without a title matches nothing.
func (c *Catalog) Search(ctx context.Context, q Query, minScore float64, limit int) ([]Hit, error) {
	if strings.TrimSpace(q.Title) == "" {
		return nil, nil
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	entries := c.entries
	c.mu.RUnlock()

	var hits []Hit
	for _, rec := range entries {
		score, fields := Score(q, rec)
		if score < minScore || score <= 0 {
			continue
		}
		hits = append(hits, Hit{Recording: rec, Score: score, Fields: fields})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Recording.ID < hits[j].Recording.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Score computes the weighted similarity between q and rec along with the
// per-field scores that contributed.
func Score(q Query, rec queue.Recording) (float64, map[string]float64) {
	fields := make(map[string]float64, 3)
	var total, weight float64
	add := func(name string, w float64, query, value string, sim func(a, b string) float64) {
		if strings.TrimSpace(query) == "" || strings.TrimSpace(value) == "" {
			return
		}
		s := sim(query, value)
		fields[name] = s
		total += w * s
		weight += w
	}
	add("title", TitleWeight, q.Title, rec.Title, textutil.Similarity)
	add("artist", ArtistWeight, q.Artist, rec.Artist, textutil.ArtistSimilarity)
	add("album", AlbumWeight, q.Album, rec.Album, textutil.Similarity)
	if weight == 0 {
		return 0, fields
	}
	if _, ok := fields["title"]; !ok {
		return 0, fields
	}
	return total / weight, fields
}

// Import upserts recordings and refreshes the index.
func (c *Catalog) Import(ctx context.Context, recordings []queue.Recording) (int, error) {
	written, err := c.store.UpsertRecordings(ctx, recordings)
	if err != nil {
		return 0, err
	}
	c.invalidate()
	c.logger.Info("catalog updated",
		logging.Int("recordings", written),
	)
	return written, nil
}

// ImportSeed loads a YAML seed file and upserts its recordings.
func (c *Catalog) ImportSeed(ctx context.Context, path string) (int, error) {
	recordings, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}
	return c.Import(ctx, recordings)
}

// ImportSeedIfEmpty imports the seed file only when the catalog has no
// entries. It returns zero without error when path is empty.
func (c *Catalog) ImportSeedIfEmpty(ctx context.Context, path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, nil
	}
	count, err := c.Len(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	return c.ImportSeed(ctx, path)
}

func (c *Catalog) invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.revision = ""
	c.mu.Unlock()
}

func (c *Catalog) ensureLoaded(ctx context.Context) error {
	revision, err := c.store.CatalogRevision(ctx)
	if err != nil {
		return err
	}
	c.mu.RLock()
	current := c.loaded && c.revision == revision
	c.mu.RUnlock()
	if current {
		return nil
	}

	recordings, err := c.store.ListRecordings(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]int, len(recordings))
	for i, rec := range recordings {
		byID[strings.ToLower(rec.ID)] = i
	}

	c.mu.Lock()
	c.entries = recordings
	c.byID = byID
	c.revision = revision
	c.loaded = true
	c.mu.Unlock()

	c.logger.Debug("catalog loaded",
		logging.Int("recordings", len(recordings)),
		logging.String("revision", revision),
	)
	return nil
}
