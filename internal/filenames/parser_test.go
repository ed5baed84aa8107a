package filenames

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonearm/internal/catalog"
	"tonearm/internal/matching"
	"tonearm/internal/queue"
)

type fakeCatalog struct {
	recordings []queue.Recording
	queries    []catalog.Query
}

func (f *fakeCatalog) Search(_ context.Context, q catalog.Query, minScore float64, _ int) ([]catalog.Hit, error) {
	f.queries = append(f.queries, q)
	var hits []catalog.Hit
	for _, rec := range f.recordings {
		if score, fields := catalog.Score(q, rec); score >= minScore && score > 0 {
			hits = append(hits, catalog.Hit{Recording: rec, Score: score, Fields: fields})
		}
	}
	return hits, nil
}

func TestTemplatePrecedence(t *testing.T) {
	p := NewParser(nil, Options{Root: "/music"})
	cases := []struct {
		path     string
		template string
		artist   string
		album    string
		track    int
		title    string
	}{
		{"/music/x/Miles Davis - Kind of Blue - 01 - So What.flac", "artist-album-track-title", "Miles Davis", "Kind of Blue", 1, "So What"},
		{"/music/x/Miles Davis - 02 - Freddie Freeloader.mp3", "artist-track-title", "Miles Davis", "", 2, "Freddie Freeloader"},
		{"/music/Miles Davis/Kind of Blue/03 - Blue in Green.flac", "track-title", "Miles Davis", "Kind of Blue", 3, "Blue in Green"},
		{"/music/Miles Davis/Kind of Blue (1959)/04. All Blues.flac", "track-space-title", "Miles Davis", "Kind of Blue", 4, "All Blues"},
		{"/music/John_Coltrane_-_Naima.mp3", "artist-title", "John Coltrane", "", 0, "Naima"},
	}
	for _, tc := range cases {
		t.Run(tc.template, func(t *testing.T) {
			parsed, ok := p.Match(tc.path)
			require.True(t, ok)
			assert.Equal(t, tc.template, parsed.Template.Name)
			assert.Equal(t, tc.artist, parsed.Artist)
			assert.Equal(t, tc.album, parsed.Album)
			assert.Equal(t, tc.track, parsed.TrackNumber)
			assert.Equal(t, tc.title, parsed.Title)
		})
	}
}

func TestFolderContextVariants(t *testing.T) {
	p := NewParser(nil, Options{Root: "/music"})

	parsed, ok := p.Match("/music/Portishead - Dummy/CD1/05 - Roads.flac")
	require.True(t, ok)
	assert.Equal(t, "Portishead", parsed.Artist)
	assert.Equal(t, "Dummy", parsed.Album)

	parsed, ok = p.Match("/music/Dummy/05 - Roads.flac")
	require.True(t, ok)
	assert.Equal(t, "", parsed.Artist, "library root is not an artist")
	assert.Equal(t, "Dummy", parsed.Album)

	parsed, ok = p.Match("/music/05 - Roads.flac")
	require.True(t, ok)
	assert.Empty(t, parsed.Artist)
	assert.Empty(t, parsed.Album)
}

func TestNoTemplateMatch(t *testing.T) {
	p := NewParser(nil, Options{})
	candidates, err := p.Parse(context.Background(), "/music/untitled.flac")
	require.NoError(t, err)
	assert.NotNil(t, candidates)
	assert.Empty(t, candidates)
}

func TestCatalogBackedCandidateKeepsTemplateConfidence(t *testing.T) {
	cat := &fakeCatalog{recordings: []queue.Recording{
		{ID: "rec-so-what", Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue", DurationSeconds: 562},
		{ID: "rec-naima", Title: "Naima", Artist: "John Coltrane"},
	}}
	p := NewParser(cat, Options{MinSimilarity: 0.6})

	candidates, err := p.Parse(context.Background(), filepath.Join("/music", "Miles Davis - Kind of Blue - 01 - So What.flac"))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, matching.StrategyFilename, c.Strategy)
	assert.Equal(t, "rec-so-what", c.RecordingID)
	assert.Equal(t, 0.40, c.Confidence)
	assert.Equal(t, 562.0, c.DurationSeconds)
	assert.Equal(t, "artist-album-track-title", c.Evidence["template"])
	assert.Equal(t, "1", c.Evidence["track_number"])
}

func TestUnmatchedTextGetsFloorConfidence(t *testing.T) {
	cat := &fakeCatalog{}
	p := NewParser(cat, Options{})

	candidates, err := p.Parse(context.Background(), "/music/Unknown Band - Mystery Song.ogg")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Empty(t, c.RecordingID)
	assert.Equal(t, TextOnlyConfidence, c.Confidence)
	assert.Equal(t, "Unknown Band", c.Artist)
	assert.Equal(t, "Mystery Song", c.Title)
	require.Len(t, cat.queries, 1)
	assert.Equal(t, "Mystery Song", cat.queries[0].Title)
}

func TestConfidencesStayInLowBand(t *testing.T) {
	for _, tmpl := range Templates {
		assert.GreaterOrEqual(t, tmpl.Confidence, 0.2, tmpl.Name)
		assert.LessOrEqual(t, tmpl.Confidence, 0.4, tmpl.Name)
	}
}
