package tags

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"tonearm/internal/catalog"
	"tonearm/internal/logging"
	"tonearm/internal/matching"
	"tonearm/internal/queue"
)

const (
	// VerbatimConfidence is assigned when the file carries a well-formed
	// recording identifier.
	VerbatimConfidence = 0.98
	// SimilarityScale maps catalog similarity into the moderate band.
	SimilarityScale = 0.7

	defaultMinSimilarity = 0.5
	searchLimit          = 5
)

// Catalog is the subset of the recording catalog the extractor queries.
type Catalog interface {
	Get(ctx context.Context, id string) (queue.Recording, bool, error)
	Search(ctx context.Context, q catalog.Query, minScore float64, limit int) ([]catalog.Hit, error)
}

// Options configures an Extractor.
type Options struct {
	MinSimilarity float64
	Probe         Prober
	Logger        *slog.Logger
}

// Extractor produces candidates from embedded metadata.
type Extractor struct {
	catalog       Catalog
	probe         Prober
	minSimilarity float64
	logger        *slog.Logger
}

// NewExtractor constructs an extractor. A nil catalog limits it to verbatim
// identifiers.
func NewExtractor(cat Catalog, opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	minSim := opts.MinSimilarity
	if minSim <= 0 {
		minSim = defaultMinSimilarity
	}
	return &Extractor{
		catalog:       cat,
		probe:         opts.Probe,
		minSimilarity: minSim,
		logger:        logging.NewComponentLogger(logger, "tags"),
	}
}

// Extract returns candidates for path, best first. Files without usable tags
// yield an empty slice.
func (e *Extractor) Extract(ctx context.Context, path string) ([]matching.Candidate, error) {
	fields, err := Read(ctx, path, e.probe)
	if err != nil {
		return nil, err
	}
	if fields.Empty() {
		e.logger.Debug("no usable tags", logging.String("path", path), logging.String("format", fields.Format))
		return []matching.Candidate{}, nil
	}
	if id, ok := validMBID(fields.RecordingID); ok {
		candidate, err := e.verbatim(ctx, id, fields)
		if err != nil {
			return nil, err
		}
		return []matching.Candidate{candidate}, nil
	}
	return e.similar(ctx, fields)
}

func (e *Extractor) verbatim(ctx context.Context, id string, fields Fields) (matching.Candidate, error) {
	c := matching.NewCandidate(matching.StrategyEmbeddedTags, id, VerbatimConfidence)
	c.ReleaseID = fields.ReleaseID
	c.ArtistID = fields.ArtistID
	c.Title = fields.Title
	c.Artist = fields.PreferredArtist()
	c.Album = fields.Album
	c = c.WithEvidence("match", "verbatim_id").WithEvidence("tag_format", fields.Format)

	if e.catalog == nil {
		return c, nil
	}
	rec, ok, err := e.catalog.Get(ctx, id)
	if err != nil {
		return matching.Candidate{}, fmt.Errorf("catalog lookup: %w", err)
	}
	if !ok {
		return c.WithEvidence("catalog", "absent"), nil
	}
	c.Title = rec.Title
	c.Artist = rec.Artist
	c.Album = rec.Album
	c.DurationSeconds = rec.DurationSeconds
	if rec.ReleaseID != "" {
		c.ReleaseID = rec.ReleaseID
	}
	if rec.ArtistID != "" {
		c.ArtistID = rec.ArtistID
	}
	return c.WithEvidence("catalog", "present"), nil
}

func (e *Extractor) similar(ctx context.Context, fields Fields) ([]matching.Candidate, error) {
	if e.catalog == nil || fields.Title == "" {
		return []matching.Candidate{}, nil
	}
	hits, err := e.catalog.Search(ctx, catalog.Query{
		Title:  fields.Title,
		Artist: fields.PreferredArtist(),
		Album:  fields.Album,
	}, e.minSimilarity, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	out := make([]matching.Candidate, 0, len(hits))
	for _, hit := range hits {
		rec := hit.Recording
		c := matching.NewCandidate(matching.StrategyEmbeddedTags, rec.ID, SimilarityScale*hit.Score)
		c.ReleaseID = rec.ReleaseID
		c.ArtistID = rec.ArtistID
		c.Title = rec.Title
		c.Artist = rec.Artist
		c.Album = rec.Album
		c.DurationSeconds = rec.DurationSeconds
		c = c.WithEvidence("match", "similarity").
			WithEvidence("similarity", strconv.FormatFloat(hit.Score, 'f', 3, 64)).
			WithEvidence("tag_format", fields.Format).
			WithEvidence("tag_title", fields.Title).
			WithEvidence("tag_artist", fields.PreferredArtist())
		out = append(out, c)
	}
	e.logger.Debug("tag similarity search",
		logging.String("title", fields.Title),
		logging.Int("candidates", len(out)),
	)
	return out, nil
}

func validMBID(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	id, err := uuid.Parse(value)
	if err != nil || id == uuid.Nil {
		return "", false
	}
	return id.String(), true
}
