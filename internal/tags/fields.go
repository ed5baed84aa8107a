package tags

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	flac "github.com/go-flac/go-flac"
	"github.com/go-flac/flacvorbis"

	"tonearm/internal/media/ffprobe"
	"tonearm/internal/services"
)

const musicBrainzOwner = "http://musicbrainz.org"

// Fields holds the metadata relevant to identification.
type Fields struct {
	Format      string
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	TrackNumber int
	RecordingID string
	ReleaseID   string
	ArtistID    string
}

// Empty reports whether no usable field is present.
func (f Fields) Empty() bool {
	return f.Title == "" && f.RecordingID == ""
}

// PreferredArtist returns the track artist, falling back to the album artist.
func (f Fields) PreferredArtist() string {
	if f.Artist != "" {
		return f.Artist
	}
	return f.AlbumArtist
}

// Prober inspects a media file; used for containers without a native reader.
type Prober func(ctx context.Context, path string) (ffprobe.Result, error)

// Read extracts Fields from path, choosing a reader by extension.
func Read(ctx context.Context, path string, probe Prober) (Fields, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Fields{}, services.Wrap(services.ErrNotFound, "tags", "read", path, err)
		}
		return Fields{}, services.Wrap(services.ErrDecode, "tags", "read", path, err)
	}
	var (
		fields Fields
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		fields, err = readID3(path)
	case ".flac":
		fields, err = readVorbis(path)
	default:
		if probe == nil {
			return Fields{}, services.Wrap(services.ErrUnsupported, "tags", "read", "no tag reader for "+filepath.Ext(path), nil)
		}
		fields, err = readProbe(ctx, path, probe)
	}
	if err != nil {
		return Fields{}, err
	}
	return fields.normalized(), nil
}

func readID3(path string) (Fields, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return Fields{}, services.Wrap(services.ErrDecode, "tags", "read id3", path, err)
	}
	defer tag.Close()

	fields := Fields{
		Format:      "id3v2",
		Title:       tag.Title(),
		Artist:      tag.Artist(),
		Album:       tag.Album(),
		AlbumArtist: tag.GetTextFrame("TPE2").Text,
		TrackNumber: parseTrackNumber(tag.GetTextFrame("TRCK").Text),
	}
	for _, frame := range tag.GetFrames("UFID") {
		ufid, ok := frame.(id3v2.UFIDFrame)
		if !ok || !strings.EqualFold(strings.TrimSpace(ufid.OwnerIdentifier), musicBrainzOwner) {
			continue
		}
		fields.RecordingID = strings.TrimRight(string(ufid.Identifier), "\x00")
	}
	for _, frame := range tag.GetFrames("TXXX") {
		udtf, ok := frame.(id3v2.UserDefinedTextFrame)
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(udtf.Description)) {
		case "musicbrainz album id":
			fields.ReleaseID = udtf.Value
		case "musicbrainz artist id":
			fields.ArtistID = firstOf(udtf.Value)
		case "musicbrainz track id", "musicbrainz recording id":
			if fields.RecordingID == "" {
				fields.RecordingID = udtf.Value
			}
		}
	}
	return fields, nil
}

func readVorbis(path string) (Fields, error) {
	file, err := flac.ParseFile(path)
	if err != nil {
		return Fields{}, services.Wrap(services.ErrDecode, "tags", "read flac", path, err)
	}
	fields := Fields{Format: "vorbis"}
	for _, block := range file.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		comment, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			return Fields{}, services.Wrap(services.ErrDecode, "tags", "read flac", "vorbis comment", err)
		}
		values := make(map[string]string, len(comment.Comments))
		for _, entry := range comment.Comments {
			key, value, ok := strings.Cut(entry, "=")
			if !ok {
				continue
			}
			key = strings.ToUpper(strings.TrimSpace(key))
			if _, seen := values[key]; !seen {
				values[key] = value
			}
		}
		fields.Title = values[flacvorbis.FIELD_TITLE]
		fields.Artist = values[flacvorbis.FIELD_ARTIST]
		fields.Album = values[flacvorbis.FIELD_ALBUM]
		fields.AlbumArtist = values["ALBUMARTIST"]
		fields.TrackNumber = parseTrackNumber(values[flacvorbis.FIELD_TRACKNUMBER])
		fields.RecordingID = values["MUSICBRAINZ_TRACKID"]
		fields.ReleaseID = values["MUSICBRAINZ_ALBUMID"]
		fields.ArtistID = firstOf(values["MUSICBRAINZ_ARTISTID"])
		break
	}
	return fields, nil
}

func readProbe(ctx context.Context, path string, probe Prober) (Fields, error) {
	result, err := probe(ctx, path)
	if err != nil {
		return Fields{}, services.Wrap(services.ErrDecode, "tags", "probe", path, err)
	}
	pick := func(keys ...string) string {
		for _, key := range keys {
			if v := result.Tag(key); v != "" {
				return v
			}
		}
		return ""
	}
	return Fields{
		Format:      "ffprobe",
		Title:       pick("title"),
		Artist:      pick("artist"),
		Album:       pick("album"),
		AlbumArtist: pick("album_artist", "albumartist"),
		TrackNumber: parseTrackNumber(pick("track", "tracknumber")),
		RecordingID: pick("MusicBrainz Track Id", "musicbrainz_trackid"),
		ReleaseID:   pick("MusicBrainz Album Id", "musicbrainz_albumid"),
		ArtistID:    firstOf(pick("MusicBrainz Artist Id", "musicbrainz_artistid")),
	}, nil
}

func (f Fields) normalized() Fields {
	clean := func(s string) string {
		return strings.Join(strings.Fields(strings.TrimRight(s, "\x00")), " ")
	}
	f.Title = clean(f.Title)
	f.Artist = clean(f.Artist)
	f.AlbumArtist = clean(f.AlbumArtist)
	f.Album = clean(f.Album)
	f.RecordingID = strings.ToLower(strings.TrimSpace(f.RecordingID))
	f.ReleaseID = strings.ToLower(strings.TrimSpace(f.ReleaseID))
	f.ArtistID = strings.ToLower(strings.TrimSpace(f.ArtistID))
	return f
}

func parseTrackNumber(value string) int {
	value = strings.TrimSpace(value)
	if idx := strings.Index(value, "/"); idx >= 0 {
		value = value[:idx]
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func firstOf(value string) string {
	for _, sep := range []string{";", "/", ","} {
		if idx := strings.Index(value, sep); idx >= 0 {
			value = value[:idx]
		}
	}
	return strings.TrimSpace(value)
}

func (f Fields) String() string {
	return fmt.Sprintf("%s - %s (%s)", f.PreferredArtist(), f.Title, f.Album)
}
