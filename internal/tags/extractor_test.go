package tags

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bogem/id3v2/v2"
	flac "github.com/go-flac/go-flac"
	"github.com/go-flac/flacvorbis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonearm/internal/catalog"
	"tonearm/internal/matching"
	"tonearm/internal/media/ffprobe"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

const soWhatID = "0f1e4c1a-6b2d-4c55-9d61-4f1f2e0c9a10"

type fakeCatalog struct {
	recordings []queue.Recording
}

func (f *fakeCatalog) Get(_ context.Context, id string) (queue.Recording, bool, error) {
	for _, rec := range f.recordings {
		if rec.ID == strings.ToLower(id) {
			return rec, true, nil
		}
	}
	return queue.Recording{}, false, nil
}

func (f *fakeCatalog) Search(_ context.Context, q catalog.Query, minScore float64, limit int) ([]catalog.Hit, error) {
	var hits []catalog.Hit
	for _, rec := range f.recordings {
		score, fields := catalog.Score(q, rec)
		if score >= minScore && score > 0 {
			hits = append(hits, catalog.Hit{Recording: rec, Score: score, Fields: fields})
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{recordings: []queue.Recording{
		{ID: soWhatID, ReleaseID: "rel-kob", ArtistID: "art-miles", Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue", DurationSeconds: 562},
		{ID: "rec-naima", Title: "Naima", Artist: "John Coltrane", Album: "Giant Steps"},
	}}
}

func writeMP3(t *testing.T, build func(tag *id3v2.Tag)) string {
	t.Helper()
	tag := id3v2.NewEmptyTag()
	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	build(tag)

	var buf bytes.Buffer
	_, err := tag.WriteTo(&buf)
	require.NoError(t, err)
	buf.Write(bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 64))

	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeFLAC(t *testing.T, comments map[string]string) string {
	t.Helper()
	cmt := flacvorbis.New()
	for k, v := range comments {
		require.NoError(t, cmt.Add(k, v))
	}
	block := cmt.Marshal()
	streamInfo := flac.MetaDataBlock{Type: flac.StreamInfo, Data: make([]byte, 34)}

	var buf bytes.Buffer
	buf.WriteString("fLaC")
	buf.Write(streamInfo.Marshal(false))
	buf.Write(block.Marshal(true))
	buf.Write([]byte{0xFF, 0xF8, 0x00, 0x00})

	path := filepath.Join(t.TempDir(), "track.flac")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestReadID3Fields(t *testing.T) {
	path := writeMP3(t, func(tag *id3v2.Tag) {
		tag.SetTitle("So What")
		tag.SetArtist("Miles Davis")
		tag.SetAlbum("Kind of Blue")
		tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, "Miles Davis Sextet")
		tag.AddTextFrame("TRCK", id3v2.EncodingUTF8, "1/5")
		tag.AddFrame("UFID", id3v2.UFIDFrame{OwnerIdentifier: musicBrainzOwner, Identifier: []byte(strings.ToUpper(soWhatID))})
		tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{Encoding: id3v2.EncodingUTF8, Description: "MusicBrainz Album Id", Value: "REL-KOB"})
		tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{Encoding: id3v2.EncodingUTF8, Description: "MusicBrainz Artist Id", Value: "art-miles; art-other"})
	})

	fields, err := Read(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "id3v2", fields.Format)
	assert.Equal(t, "So What", fields.Title)
	assert.Equal(t, "Miles Davis", fields.Artist)
	assert.Equal(t, "Miles Davis Sextet", fields.AlbumArtist)
	assert.Equal(t, "Kind of Blue", fields.Album)
	assert.Equal(t, 1, fields.TrackNumber)
	assert.Equal(t, soWhatID, fields.RecordingID)
	assert.Equal(t, "rel-kob", fields.ReleaseID)
	assert.Equal(t, "art-miles", fields.ArtistID)
}

func TestReadVorbisFields(t *testing.T) {
	path := writeFLAC(t, map[string]string{
		flacvorbis.FIELD_TITLE:       "Naima",
		flacvorbis.FIELD_ARTIST:      "John Coltrane",
		flacvorbis.FIELD_ALBUM:       "Giant Steps",
		flacvorbis.FIELD_TRACKNUMBER: "6",
		"musicbrainz_albumid":        "REL-GS",
	})
	fields, err := Read(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "vorbis", fields.Format)
	assert.Equal(t, "Naima", fields.Title)
	assert.Equal(t, "John Coltrane", fields.Artist)
	assert.Equal(t, 6, fields.TrackNumber)
	assert.Equal(t, "rel-gs", fields.ReleaseID)
	assert.Empty(t, fields.RecordingID)
}

func TestReadFallsBackToProbeTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.m4a")
	require.NoError(t, os.WriteFile(path, []byte("not really"), 0o644))
	probe := func(context.Context, string) (ffprobe.Result, error) {
		return ffprobe.Parse([]byte(`{"format":{"tags":{"TITLE":"Roads","ARTIST":"Portishead","track":"4/11","MusicBrainz Track Id":"` + soWhatID + `"}}}`))
	}
	fields, err := Read(context.Background(), path, probe)
	require.NoError(t, err)
	assert.Equal(t, "Roads", fields.Title)
	assert.Equal(t, "Portishead", fields.Artist)
	assert.Equal(t, 4, fields.TrackNumber)
	assert.Equal(t, soWhatID, fields.RecordingID)

	_, err = Read(context.Background(), path, nil)
	assert.ErrorIs(t, err, services.ErrUnsupported)
}

func TestExtractVerbatimIdentifier(t *testing.T) {
	path := writeMP3(t, func(tag *id3v2.Tag) {
		tag.SetTitle("so what (remaster)")
		tag.AddFrame("UFID", id3v2.UFIDFrame{OwnerIdentifier: musicBrainzOwner, Identifier: []byte(soWhatID)})
	})
	ex := NewExtractor(newFakeCatalog(), Options{})

	candidates, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, matching.StrategyEmbeddedTags, c.Strategy)
	assert.Equal(t, soWhatID, c.RecordingID)
	assert.Equal(t, VerbatimConfidence, c.Confidence)
	assert.Equal(t, "So What", c.Title, "catalog data replaces tag text")
	assert.Equal(t, 562.0, c.DurationSeconds)
	assert.Equal(t, "verbatim_id", c.Evidence["match"])
}

func TestExtractMalformedIdentifierFallsBackToSimilarity(t *testing.T) {
	path := writeFLAC(t, map[string]string{
		flacvorbis.FIELD_TITLE:  "So What",
		flacvorbis.FIELD_ARTIST: "Miles Davis",
		flacvorbis.FIELD_ALBUM:  "Kind of Blue",
		"MUSICBRAINZ_TRACKID":   "not-a-uuid",
	})
	ex := NewExtractor(newFakeCatalog(), Options{MinSimilarity: 0.5})

	candidates, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, soWhatID, candidates[0].RecordingID)
	assert.InDelta(t, SimilarityScale, candidates[0].Confidence, 1e-9)
	assert.Equal(t, "similarity", candidates[0].Evidence["match"])
	for _, c := range candidates {
		assert.LessOrEqual(t, c.Confidence, SimilarityScale)
	}
}

func TestExtractWithoutUsableTags(t *testing.T) {
	path := writeMP3(t, func(tag *id3v2.Tag) {
		tag.SetArtist("Unknown Artist")
	})
	ex := NewExtractor(newFakeCatalog(), Options{})
	candidates, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.NotNil(t, candidates)
	assert.Empty(t, candidates)
}

func TestExtractDropsDissimilarText(t *testing.T) {
	path := writeFLAC(t, map[string]string{
		flacvorbis.FIELD_TITLE:  "Xylophone Quartet No. 9",
		flacvorbis.FIELD_ARTIST: "Zzyzx Ensemble",
	})
	ex := NewExtractor(newFakeCatalog(), Options{MinSimilarity: 0.8})
	candidates, err := ex.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestParseTrackNumber(t *testing.T) {
	assert.Equal(t, 3, parseTrackNumber("3/12"))
	assert.Equal(t, 7, parseTrackNumber(" 07 "))
	assert.Equal(t, 0, parseTrackNumber("A1"))
}
