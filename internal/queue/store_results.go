package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SaveFingerprint stores the signature for a file, replacing any earlier one.
func (s *Store) SaveFingerprint(ctx context.Context, record FingerprintRecord) error {
	if strings.TrimSpace(record.FileID) == "" {
		return errors.New("fingerprint file id is required")
	}
	if strings.TrimSpace(record.Signature) == "" {
		return errors.New("fingerprint signature is required")
	}
	if record.ComputedAt.IsZero() {
		record.ComputedAt = time.Now()
	}
	return s.execWithoutResultRetry(ctx,
		`INSERT INTO fingerprints (file_id, file_path, signature, duration_seconds, algorithm, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			file_path = excluded.file_path,
			signature = excluded.signature,
			duration_seconds = excluded.duration_seconds,
			algorithm = excluded.algorithm,
			computed_at = excluded.computed_at`,
		record.FileID,
		record.Path,
		record.Signature,
		record.DurationSeconds,
		record.Algorithm,
		formatTime(record.ComputedAt),
	)
}

// GetFingerprint returns the stored fingerprint for fileID, or nil.
func (s *Store) GetFingerprint(ctx context.Context, fileID string) (*FingerprintRecord, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT file_id, file_path, signature, duration_seconds, algorithm, computed_at
		FROM fingerprints WHERE file_id = ?`, fileID)
	var (
		record      FingerprintRecord
		computedRaw string
	)
	err := row.Scan(&record.FileID, &record.Path, &record.Signature, &record.DurationSeconds, &record.Algorithm, &computedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}
	if t, err := parseTimeString(computedRaw); err == nil {
		record.ComputedAt = t
	}
	return &record, nil
}

// ListFingerprints returns stored fingerprints produced by algorithm, or all
// of them when algorithm is empty.
func (s *Store) ListFingerprints(ctx context.Context, algorithm string) ([]FingerprintRecord, error) {
	ctx = ensureContext(ctx)
	query := `SELECT file_id, file_path, signature, duration_seconds, algorithm, computed_at FROM fingerprints`
	var args []any
	if algorithm != "" {
		query += ` WHERE algorithm = ?`
		args = append(args, algorithm)
	}
	query += ` ORDER BY file_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var records []FingerprintRecord
	for rows.Next() {
		var (
			record      FingerprintRecord
			computedRaw string
		)
		if err := rows.Scan(&record.FileID, &record.Path, &record.Signature, &record.DurationSeconds, &record.Algorithm, &computedRaw); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		if t, err := parseTimeString(computedRaw); err == nil {
			record.ComputedAt = t
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

const matchColumns = "file_id, file_path, state, strategy, recording_id, release_id, artist_id, title, artist, album, confidence, low_confidence, resolved_at, result_json"

// SaveMatchResult stores the latest resolution for a file, superseding the
// previous one.
func (s *Store) SaveMatchResult(ctx context.Context, record MatchRecord) error {
	if strings.TrimSpace(record.FileID) == "" {
		return errors.New("match result file id is required")
	}
	if strings.TrimSpace(record.State) == "" {
		return errors.New("match result state is required")
	}
	if record.ResolvedAt.IsZero() {
		record.ResolvedAt = time.Now()
	}
	if record.ResultJSON == "" {
		record.ResultJSON = "{}"
	}
	return s.execWithoutResultRetry(ctx,
		`INSERT INTO match_results (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			file_path = excluded.file_path,
			state = excluded.state,
			strategy = excluded.strategy,
			recording_id = excluded.recording_id,
			release_id = excluded.release_id,
			artist_id = excluded.artist_id,
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			confidence = excluded.confidence,
			low_confidence = excluded.low_confidence,
			resolved_at = excluded.resolved_at,
			result_json = excluded.result_json`,
		record.FileID,
		record.Path,
		record.State,
		nullableString(record.Strategy),
		nullableString(record.RecordingID),
		nullableString(record.ReleaseID),
		nullableString(record.ArtistID),
		nullableString(record.Title),
		nullableString(record.Artist),
		nullableString(record.Album),
		record.Confidence,
		boolToInt(record.LowConfidence),
		formatTime(record.ResolvedAt),
		record.ResultJSON,
	)
}

// GetMatchResult returns the latest resolution for fileID, or nil.
func (s *Store) GetMatchResult(ctx context.Context, fileID string) (*MatchRecord, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM match_results WHERE file_id = ?`, fileID)
	record, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match result: %w", err)
	}
	return record, nil
}

// ListMatchResults returns stored resolutions ordered by path, optionally
// filtered by state.
func (s *Store) ListMatchResults(ctx context.Context, states ...string) ([]*MatchRecord, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + matchColumns + ` FROM match_results`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, state)
		}
	}
	query += ` ORDER BY file_path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list match results: %w", err)
	}
	defer rows.Close()

	var records []*MatchRecord
	for rows.Next() {
		record, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match result: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanMatch(scanner interface{ Scan(dest ...any) error }) (*MatchRecord, error) {
	var (
		record      MatchRecord
		strategy    sql.NullString
		recordingID sql.NullString
		releaseID   sql.NullString
		artistID    sql.NullString
		title       sql.NullString
		artist      sql.NullString
		album       sql.NullString
		lowConf     int
		resolvedRaw string
	)
	if err := scanner.Scan(
		&record.FileID,
		&record.Path,
		&record.State,
		&strategy,
		&recordingID,
		&releaseID,
		&artistID,
		&title,
		&artist,
		&album,
		&record.Confidence,
		&lowConf,
		&resolvedRaw,
		&record.ResultJSON,
	); err != nil {
		return nil, err
	}
	record.Strategy = strategy.String
	record.RecordingID = recordingID.String
	record.ReleaseID = releaseID.String
	record.ArtistID = artistID.String
	record.Title = title.String
	record.Artist = artist.String
	record.Album = album.String
	record.LowConfidence = lowConf != 0
	if t, err := parseTimeString(resolvedRaw); err == nil {
		record.ResolvedAt = t
	}
	return &record, nil
}
