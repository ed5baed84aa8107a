package fingerprint

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonearm/internal/media/decode"
	"tonearm/internal/services"
)

type fakeDecoder struct {
	pcm   decode.PCM
	err   error
	calls int
}

func (f *fakeDecoder) Decode(_ context.Context, _ string, _ int) (decode.PCM, error) {
	f.calls++
	return f.pcm, f.err
}

func noFpcalc(string) (string, error) { return "", errors.New("not found") }

// tone builds a deterministic signal whose spectrum shifts over time.
func tone(seconds float64, rate int, base float64) decode.PCM {
	n := int(seconds * float64(rate))
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(rate)
		freq := base + 400*math.Sin(2*math.Pi*0.5*t)
		v := 0.4*math.Sin(2*math.Pi*freq*t) + 0.2*math.Sin(2*math.Pi*3*freq*t/2)
		samples[i] = int16(v * 32767)
	}
	return decode.PCM{Samples: samples, SampleRate: rate}
}

func fixedNow() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

func TestSpectralIsDeterministic(t *testing.T) {
	dec := &fakeDecoder{pcm: tone(6, 11025, 600)}
	gen, err := NewGenerator(dec, Options{Backend: BackendSpectral, Now: fixedNow})
	require.NoError(t, err)

	first, err := gen.Generate(context.Background(), "a.flac")
	require.NoError(t, err)
	second, err := gen.Generate(context.Background(), "a.flac")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, AlgorithmSpectral, first.Algorithm)
	assert.InDelta(t, 6.0, first.DurationSeconds, 0.001)
	assert.Equal(t, fixedNow(), first.ComputedAt)
	require.NoError(t, first.Validate())
}

func TestSpectralSimilarity(t *testing.T) {
	gen, err := NewGenerator(&fakeDecoder{}, Options{Backend: BackendSpectral})
	require.NoError(t, err)

	a, err := spectralSignature(tone(8, 11025, 600))
	require.NoError(t, err)
	b, err := spectralSignature(tone(8, 11025, 1300))
	require.NoError(t, err)

	fa := Fingerprint{Signature: a, DurationSeconds: 8, Algorithm: gen.Algorithm()}
	fb := Fingerprint{Signature: b, DurationSeconds: 8, Algorithm: gen.Algorithm()}

	same, err := Similarity(fa, fa)
	require.NoError(t, err)
	assert.Equal(t, 1.0, same)

	different, err := Similarity(fa, fb)
	require.NoError(t, err)
	assert.Less(t, different, same)

	_, err = Similarity(fa, Fingerprint{Signature: a, Algorithm: AlgorithmChromaprint})
	assert.ErrorIs(t, err, services.ErrUnsupported)
}

func TestSpectralRejectsShortAndSilentAudio(t *testing.T) {
	_, err := spectralSignature(decode.PCM{Samples: make([]int16, 100), SampleRate: 11025})
	assert.ErrorIs(t, err, services.ErrDecode)

	_, err = spectralSignature(decode.PCM{Samples: make([]int16, 11025*5), SampleRate: 11025})
	assert.ErrorIs(t, err, services.ErrDecode)
}

func TestBandEdgesAreIncreasing(t *testing.T) {
	for _, rate := range []int{8000, 11025, 44100} {
		edges := bandEdges(rate)
		require.Len(t, edges, spectralBands+1)
		for i := 1; i < len(edges); i++ {
			assert.Greater(t, edges[i], edges[i-1], "rate %d edge %d", rate, i)
		}
	}
}

func TestGenerateUsesProbeDuration(t *testing.T) {
	dec := &fakeDecoder{pcm: tone(6, 11025, 600)}
	gen, err := NewGenerator(dec, Options{
		Backend: BackendSpectral,
		Probe: func(context.Context, string) (float64, error) {
			return 241.3, nil
		},
	})
	require.NoError(t, err)

	fp, err := gen.Generate(context.Background(), "a.flac")
	require.NoError(t, err)
	assert.Equal(t, 241.3, fp.DurationSeconds)
}

func TestGeneratePropagatesDecodeErrors(t *testing.T) {
	decodeErr := services.Wrap(services.ErrUnsupported, "decode", "decode", "no decoder", nil)
	gen, err := NewGenerator(&fakeDecoder{err: decodeErr}, Options{Backend: BackendSpectral})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "a.xyz")
	assert.ErrorIs(t, err, services.ErrUnsupported)
}

func TestAutoBackendSelection(t *testing.T) {
	gen, err := NewGenerator(&fakeDecoder{}, Options{Backend: BackendAuto, LookPath: noFpcalc})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmSpectral, gen.Algorithm())

	gen, err = NewGenerator(&fakeDecoder{}, Options{LookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil }})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmChromaprint, gen.Algorithm())

	_, err = NewGenerator(&fakeDecoder{}, Options{Backend: BackendChromaprint, LookPath: noFpcalc})
	assert.ErrorIs(t, err, services.ErrConfiguration)

	_, err = NewGenerator(&fakeDecoder{}, Options{Backend: "bogus"})
	assert.ErrorIs(t, err, services.ErrConfiguration)

	_, err = NewGenerator(nil, Options{})
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func writeFpcalc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fpcalc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestChromaprintBackend(t *testing.T) {
	script := writeFpcalc(t, "cat >/dev/null\necho '{\"duration\": 6.0, \"fingerprint\": \"AQADtNQYhYkYnGhw\"}'\n")
	dec := &fakeDecoder{pcm: tone(6, 11025, 600)}
	gen, err := NewGenerator(dec, Options{Backend: BackendChromaprint, FpcalcBinary: script, LookPath: func(p string) (string, error) { return p, nil }})
	require.NoError(t, err)

	fp, err := gen.Generate(context.Background(), "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "AQADtNQYhYkYnGhw", fp.Signature)
	assert.Equal(t, AlgorithmChromaprint, fp.Algorithm)
}

func TestChromaprintFailures(t *testing.T) {
	lookPath := func(p string) (string, error) { return p, nil }
	pcm := tone(2, 11025, 600)

	bad := writeFpcalc(t, "cat >/dev/null\necho 'ERROR: could not process' >&2\nexit 2\n")
	gen, err := NewGenerator(&fakeDecoder{pcm: pcm}, Options{Backend: BackendChromaprint, FpcalcBinary: bad, LookPath: lookPath})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "a.mp3")
	assert.ErrorIs(t, err, services.ErrDecode)

	slow := writeFpcalc(t, "exec sleep 5\n")
	gen, err = NewGenerator(&fakeDecoder{pcm: pcm}, Options{Backend: BackendChromaprint, FpcalcBinary: slow, LookPath: lookPath, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "a.mp3")
	assert.ErrorIs(t, err, services.ErrTimeout)

	empty := writeFpcalc(t, "cat >/dev/null\necho '{\"duration\": 2, \"fingerprint\": \"\"}'\n")
	gen, err = NewGenerator(&fakeDecoder{pcm: pcm}, Options{Backend: BackendChromaprint, FpcalcBinary: empty, LookPath: lookPath})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), "a.mp3")
	assert.ErrorIs(t, err, services.ErrDecode)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Fingerprint{Signature: "", DurationSeconds: 1}.Validate())
	assert.Error(t, Fingerprint{Signature: "not base64!", DurationSeconds: 1}.Validate())
	assert.Error(t, Fingerprint{Signature: "AQAD", DurationSeconds: 0}.Validate())
	assert.Error(t, Fingerprint{Signature: "AQAD", DurationSeconds: math.NaN()}.Validate())
	assert.NoError(t, Fingerprint{Signature: "AQAD", DurationSeconds: 1}.Validate())
}
