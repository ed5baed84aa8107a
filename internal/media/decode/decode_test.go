package decode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonearm/internal/services"
)

func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	return path
}

func TestDecodeReadsSamples(t *testing.T) {
	raw := filepath.Join(t.TempDir(), "pcm.raw")
	require.NoError(t, os.WriteFile(raw, []byte{1, 0, 0xff, 0xff, 0, 0x80}, 0o644))
	stub := writeStub(t, "cat '"+raw+"'\n")
	dec := New(stub, 8000, time.Second)

	pcm, err := dec.Decode(context.Background(), writeInput(t, "song.mp3"), 10)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1, -32768}, pcm.Samples)
	assert.Equal(t, 8000, pcm.SampleRate)
	assert.InDelta(t, 3.0/8000, pcm.DurationSeconds(), 1e-12)
	assert.Equal(t, []byte{1, 0, 0xff, 0xff, 0, 0x80}, pcm.Bytes())
}

func TestDecodeUnknownExtensionIsUnsupported(t *testing.T) {
	dec := New(writeStub(t, "exit 0\n"), 0, 0)
	_, err := dec.Decode(context.Background(), writeInput(t, "notes.txt"), 10)
	assert.ErrorIs(t, err, services.ErrUnsupported)
}

func TestDecodeMissingDecoderIsUnsupported(t *testing.T) {
	dec := New(writeStub(t, "echo 'Decoder not found' >&2\nexit 1\n"), 0, 0)
	_, err := dec.Decode(context.Background(), writeInput(t, "song.wma"), 10)
	assert.ErrorIs(t, err, services.ErrUnsupported)
	assert.Equal(t, services.ClassPermanent, services.Classify(err))
}

func TestDecodeCorruptIsDecodeError(t *testing.T) {
	dec := New(writeStub(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n"), 0, 0)
	_, err := dec.Decode(context.Background(), writeInput(t, "song.flac"), 10)
	assert.ErrorIs(t, err, services.ErrDecode)
}

func TestDecodeEmptyOutputIsDecodeError(t *testing.T) {
	dec := New(writeStub(t, "exit 0\n"), 0, 0)
	_, err := dec.Decode(context.Background(), writeInput(t, "song.flac"), 10)
	assert.ErrorIs(t, err, services.ErrDecode)
}

func TestDecodeTimeout(t *testing.T) {
	dec := New(writeStub(t, "exec sleep 5\n"), 0, 50*time.Millisecond)
	_, err := dec.Decode(context.Background(), writeInput(t, "song.ogg"), 10)
	assert.ErrorIs(t, err, services.ErrTimeout)
	assert.True(t, services.IsTransient(err))
}

func TestDecodeParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dec := New(writeStub(t, "exec sleep 5\n"), 0, time.Second)
	_, err := dec.Decode(ctx, writeInput(t, "song.ogg"), 10)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDecodeMissingFile(t *testing.T) {
	dec := New(writeStub(t, "exit 0\n"), 0, 0)
	_, err := dec.Decode(context.Background(), filepath.Join(t.TempDir(), "gone.mp3"), 10)
	assert.ErrorIs(t, err, services.ErrNotFound)
}
