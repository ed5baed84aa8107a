// Package tags turns embedded audio metadata into match candidates.
//
// ID3v2 frames are read from MP3 files and Vorbis comments from FLAC files.
// Other containers fall back to the tags ffprobe reports. A verbatim
// MusicBrainz recording identifier yields a near-certain candidate; otherwise
// the free-text fields are compared with the local catalog.
package tags
