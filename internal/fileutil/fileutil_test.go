package fileutil

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileIDStableAcrossRelativeForms(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "a", "song.flac")

	id1, err := FileID(abs)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := FileID(filepath.Join(dir, "a", ".", "..", "a", "song.flac"))
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("expected identical ids, got %s and %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Fatalf("expected hex sha256, got %q", id1)
	}
	other, _ := FileID(filepath.Join(dir, "b.flac"))
	if other == id1 {
		t.Fatal("expected different paths to produce different ids")
	}
}

func TestFileIDRejectsEmptyPath(t *testing.T) {
	if _, err := FileID("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestIsAudioFile(t *testing.T) {
	cases := map[string]bool{
		"song.mp3":   true,
		"SONG.FLAC":  true,
		"track.opus": true,
		"cover.jpg":  false,
		"notes":      false,
	}
	for name, want := range cases {
		if got := IsAudioFile(name); got != want {
			t.Fatalf("IsAudioFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWalkAudioFiles(t *testing.T) {
	root := t.TempDir()
	files := []string{
		filepath.Join(root, "Artist", "Album", "01 - Intro.flac"),
		filepath.Join(root, "Artist", "Album", "02 - Song.mp3"),
		filepath.Join(root, "Artist", "Album", "cover.jpg"),
		filepath.Join(root, ".trash", "old.mp3"),
	}
	for _, path := range files {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := WalkAudioFiles(root)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{files[0], files[1]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("WalkAudioFiles() = %v, want %v", got, want)
	}

	if _, err := WalkAudioFiles(files[0]); err == nil {
		t.Fatal("expected error when root is a file")
	}
	if !Exists(files[0]) || Exists(filepath.Join(root, "missing.mp3")) || Exists(root) {
		t.Fatal("unexpected Exists result")
	}
}
