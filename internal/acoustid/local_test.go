package acoustid_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonearm/internal/acoustid"
	"tonearm/internal/fingerprint"
	"tonearm/internal/media/decode"
	"tonearm/internal/queue"
	"tonearm/internal/services"
	"tonearm/internal/testsupport"
)

// toneDecoder yields a swept tone, or seeded white noise when base is zero.
type toneDecoder struct {
	base float64
}

func (d toneDecoder) Decode(context.Context, string, int) (decode.PCM, error) {
	const rate = 11025
	n := 8 * rate
	samples := make([]int16, n)
	seed := uint32(2463534242)
	for i := range samples {
		if d.base == 0 {
			seed ^= seed << 13
			seed ^= seed >> 17
			seed ^= seed << 5
			samples[i] = int16(seed>>16) / 2
			continue
		}
		t := float64(i) / rate
		freq := d.base + 400*math.Sin(2*math.Pi*0.5*t)
		samples[i] = int16(0.5 * math.Sin(2*math.Pi*freq*t) * 32767)
	}
	return decode.PCM{Samples: samples, SampleRate: rate}, nil
}

func spectralFor(t *testing.T, base float64) fingerprint.Fingerprint {
	t.Helper()
	gen, err := fingerprint.NewGenerator(toneDecoder{base: base}, fingerprint.Options{Backend: fingerprint.BackendSpectral})
	require.NoError(t, err)
	fp, err := gen.Generate(context.Background(), "x.flac")
	require.NoError(t, err)
	return fp
}

func saveIdentified(t *testing.T, store *queue.Store, fileID string, fp fingerprint.Fingerprint, match queue.MatchRecord) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveFingerprint(ctx, queue.FingerprintRecord{
		FileID:          fileID,
		Path:            "/music/" + fileID + ".flac",
		Signature:       fp.Signature,
		DurationSeconds: fp.DurationSeconds,
		Algorithm:       fp.Algorithm,
	}))
	match.FileID = fileID
	match.Path = "/music/" + fileID + ".flac"
	require.NoError(t, store.SaveMatchResult(ctx, match))
}

func TestLocalMatcherFindsIdentifiedNeighbour(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	same := spectralFor(t, 600)
	other := spectralFor(t, 0)

	saveIdentified(t, store, "known", same, queue.MatchRecord{
		State: "resolved", Strategy: "embedded_tags", RecordingID: "REC-KNOWN",
		Title: "Naima", Artist: "John Coltrane", Album: "Giant Steps", Confidence: 0.6,
	})
	saveIdentified(t, store, "guessed", same, queue.MatchRecord{
		State: "resolved", Strategy: "filename", RecordingID: "rec-guess", LowConfidence: true, Confidence: 0.3,
	})
	saveIdentified(t, store, "different", other, queue.MatchRecord{
		State: "resolved", Strategy: "fingerprint", RecordingID: "rec-other", Confidence: 0.9,
	})

	matcher := acoustid.NewLocalMatcher(store, 0.5, nil)
	ctx := services.WithFileID(context.Background(), "query")
	matches, err := matcher.Lookup(ctx, same)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rec-known", matches[0].RecordingID)
	assert.Equal(t, 1.0, matches[0].Score)
	assert.Equal(t, []string{"John Coltrane"}, matches[0].Artists)
	assert.Equal(t, "Giant Steps", matches[0].ReleaseTitle)
	assert.Equal(t, "local", matches[0].Source)
}

func TestLocalMatcherExcludesQueryFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fp := spectralFor(t, 700)
	saveIdentified(t, store, "self", fp, queue.MatchRecord{
		State: "resolved", Strategy: "fingerprint", RecordingID: "rec-self", Confidence: 0.9,
	})

	matcher := acoustid.NewLocalMatcher(store, 0.5, nil)
	matches, err := matcher.Lookup(services.WithFileID(context.Background(), "self"), fp)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLocalMatcherRejectsChromaprint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	matcher := acoustid.NewLocalMatcher(store, 0.5, nil)
	_, err := matcher.Lookup(context.Background(), chromaprint("AQADtEmU"))
	assert.ErrorIs(t, err, services.ErrUnsupported)
}

func TestRouterDispatchesByAlgorithm(t *testing.T) {
	clk := &clock{}
	remote := newResolver(t, &fakeLooker{}, clk)

	router := &acoustid.Router{Remote: remote}
	matches, err := router.Lookup(context.Background(), chromaprint("AQADrouted"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	_, err = router.Lookup(context.Background(), fingerprint.Fingerprint{
		Signature: "AAAA", DurationSeconds: 1, Algorithm: fingerprint.AlgorithmSpectral,
	})
	assert.ErrorIs(t, err, services.ErrUnsupported)

	keyless := &acoustid.Router{}
	_, err = keyless.Lookup(context.Background(), chromaprint("AQADrouted"))
	assert.ErrorIs(t, err, services.ErrUnsupported)
	assert.Equal(t, services.ClassPermanent, services.Classify(err))
}
