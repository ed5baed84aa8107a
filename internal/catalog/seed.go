package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// Seed is the on-disk catalog format. Releases list their tracks; loose
// recordings can be given directly.
type Seed struct {
	Releases   []SeedRelease     `yaml:"releases"`
	Recordings []queue.Recording `yaml:"recordings"`
}

// SeedRelease groups tracks that share an album and artist.
type SeedRelease struct {
	ID       string      `yaml:"id"`
	Title    string      `yaml:"title"`
	Artist   string      `yaml:"artist"`
	ArtistID string      `yaml:"artist_id"`
	Tracks   []SeedTrack `yaml:"tracks"`
}

// SeedTrack is one recording on a release. Artist overrides the release
// artist for compilations.
type SeedTrack struct {
	ID              string  `yaml:"id"`
	Title           string  `yaml:"title"`
	Number          int     `yaml:"number"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	Artist          string  `yaml:"artist"`
	ArtistID        string  `yaml:"artist_id"`
}

// LoadSeed reads and flattens a YAML seed file.
func LoadSeed(path string) ([]queue.Recording, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "load seed", "path is required", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "catalog", "load seed", path, err)
		}
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	recordings, err := ParseSeed(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return recordings, nil
}

// ParseSeed decodes a seed document into catalog recordings, rejecting
// unknown keys, entries without id or title, and duplicate ids.
func ParseSeed(r io.Reader) ([]queue.Recording, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrValidation, "catalog", "parse seed", "", err)
	}

	var out []queue.Recording
	seen := make(map[string]string)
	add := func(rec queue.Recording, where string) error {
		rec.ID = strings.ToLower(strings.TrimSpace(rec.ID))
		rec.Title = strings.TrimSpace(rec.Title)
		if rec.ID == "" {
			return services.Wrap(services.ErrValidation, "catalog", "parse seed", where+": id is required", nil)
		}
		if rec.Title == "" {
			return services.Wrap(services.ErrValidation, "catalog", "parse seed", where+": title is required", nil)
		}
		if prev, dup := seen[rec.ID]; dup {
			return services.Wrap(services.ErrValidation, "catalog", "parse seed", fmt.Sprintf("%s: duplicate id %s (first seen at %s)", where, rec.ID, prev), nil)
		}
		seen[rec.ID] = where
		out = append(out, rec)
		return nil
	}

	for i, rel := range seed.Releases {
		for j, track := range rel.Tracks {
			artist, artistID := rel.Artist, rel.ArtistID
			if strings.TrimSpace(track.Artist) != "" {
				artist, artistID = track.Artist, track.ArtistID
			}
			number := track.Number
			if number == 0 {
				number = j + 1
			}
			rec := queue.Recording{
				ID:              track.ID,
				ReleaseID:       strings.ToLower(strings.TrimSpace(rel.ID)),
				ArtistID:        strings.ToLower(strings.TrimSpace(artistID)),
				Title:           track.Title,
				Artist:          strings.TrimSpace(artist),
				Album:           strings.TrimSpace(rel.Title),
				TrackNumber:     number,
				DurationSeconds: track.DurationSeconds,
			}
			if err := add(rec, fmt.Sprintf("releases[%d].tracks[%d]", i, j)); err != nil {
				return nil, err
			}
		}
	}
	for i, rec := range seed.Recordings {
		rec.ReleaseID = strings.ToLower(strings.TrimSpace(rec.ReleaseID))
		rec.ArtistID = strings.ToLower(strings.TrimSpace(rec.ArtistID))
		if err := add(rec, fmt.Sprintf("recordings[%d]", i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
