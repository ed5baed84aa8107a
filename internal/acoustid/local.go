package acoustid

import (
	"context"
	"log/slog"
	"strings"

	"tonearm/internal/fingerprint"
	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// LocalStore is the persistence surface LocalMatcher reads from.
type LocalStore interface {
	ListFingerprints(ctx context.Context, algorithm string) ([]queue.FingerprintRecord, error)
	ListMatchResults(ctx context.Context, states ...string) ([]*queue.MatchRecord, error)
}

// Only identifications made from audio or tag evidence seed local matches;
// filename guesses would propagate low-confidence answers.
var trustedStrategies = map[string]struct{}{
	"fingerprint":   {},
	"embedded_tags": {},
}

// LocalMatcher identifies spectral fingerprints by comparing them with the
// stored fingerprints of files that are already identified.
type LocalMatcher struct {
	store    LocalStore
	logger   *slog.Logger
	minScore float64
}

// NewLocalMatcher builds a matcher over store. Comparisons scoring at or
// below minScore are discarded.
func NewLocalMatcher(store LocalStore, minScore float64, logger *slog.Logger) *LocalMatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LocalMatcher{
		store:    store,
		minScore: minScore,
		logger:   logging.NewComponentLogger(logger, "acoustid_local"),
	}
}

// Lookup returns identified recordings whose audio resembles fp. The file
// being resolved, taken from the context, is never compared with itself.
func (m *LocalMatcher) Lookup(ctx context.Context, fp fingerprint.Fingerprint) ([]Match, error) {
	if m == nil || m.store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "acoustid", "local lookup", "store unavailable", nil)
	}
	if fp.Algorithm != fingerprint.AlgorithmSpectral {
		return nil, services.Wrap(services.ErrUnsupported, "acoustid", "local lookup", "algorithm "+fp.Algorithm+" has no local comparison", nil)
	}
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	self, _ := services.FileIDFromContext(ctx)

	results, err := m.store.ListMatchResults(ctx, "resolved")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "acoustid", "local lookup", "list match results", err)
	}
	identified := make(map[string]*queue.MatchRecord, len(results))
	for _, res := range results {
		if res.LowConfidence || res.RecordingID == "" || res.FileID == self {
			continue
		}
		if _, ok := trustedStrategies[res.Strategy]; !ok {
			continue
		}
		identified[res.FileID] = res
	}
	if len(identified) == 0 {
		return []Match{}, nil
	}

	records, err := m.store.ListFingerprints(ctx, fingerprint.AlgorithmSpectral)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "acoustid", "local lookup", "list fingerprints", err)
	}
	best := make(map[string]Match)
	compared := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, ok := identified[rec.FileID]
		if !ok {
			continue
		}
		score, err := fingerprint.Similarity(fp, fingerprint.Fingerprint{
			Signature:       rec.Signature,
			DurationSeconds: rec.DurationSeconds,
			Algorithm:       rec.Algorithm,
		})
		if err != nil {
			m.logger.Debug("skipping unreadable stored fingerprint",
				logging.String(logging.FieldFileID, rec.FileID),
				logging.Error(err),
			)
			continue
		}
		compared++
		if score <= m.minScore {
			continue
		}
		id := strings.ToLower(res.RecordingID)
		if existing, ok := best[id]; ok && existing.Score >= score {
			continue
		}
		match := Match{
			RecordingID:     id,
			Score:           clamp01(score),
			Title:           res.Title,
			ArtistID:        res.ArtistID,
			ReleaseID:       res.ReleaseID,
			ReleaseTitle:    res.Album,
			DurationSeconds: rec.DurationSeconds,
			Source:          "local",
		}
		if res.Artist != "" {
			match.Artists = []string{res.Artist}
		}
		best[id] = match
	}

	out := make([]Match, 0, len(best))
	for _, match := range best {
		out = append(out, match)
	}
	SortMatches(out)
	m.logger.Debug("local fingerprint comparison complete",
		logging.Int("compared", compared),
		logging.Int("matches", len(out)),
	)
	return out, nil
}
