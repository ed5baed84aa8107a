package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const recordingColumns = "id, release_id, artist_id, title, artist, album, track_number, duration_seconds"

// UpsertRecordings inserts or replaces catalog recordings in one transaction
// and returns how many rows were written.
func (s *Store) UpsertRecordings(ctx context.Context, recordings []Recording) (int, error) {
	ctx = ensureContext(ctx)
	for _, rec := range recordings {
		if strings.TrimSpace(rec.ID) == "" {
			return 0, errors.New("recording id is required")
		}
		if strings.TrimSpace(rec.Title) == "" {
			return 0, fmt.Errorf("recording %s: title is required", rec.ID)
		}
	}
	if len(recordings) == 0 {
		return 0, nil
	}

	written := 0
	err := retryOnBusy(ctx, func() error {
		written = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = tx.Rollback()
		}()
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO recordings (`+recordingColumns+`, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				release_id = excluded.release_id,
				artist_id = excluded.artist_id,
				title = excluded.title,
				artist = excluded.artist,
				album = excluded.album,
				track_number = excluded.track_number,
				duration_seconds = excluded.duration_seconds,
				updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := formatTime(time.Now())
		for _, rec := range recordings {
			if _, err := stmt.ExecContext(ctx,
				strings.ToLower(strings.TrimSpace(rec.ID)),
				nullableString(rec.ReleaseID),
				nullableString(rec.ArtistID),
				rec.Title,
				rec.Artist,
				nullableString(rec.Album),
				rec.TrackNumber,
				rec.DurationSeconds,
				now,
			); err != nil {
				return err
			}
			written++
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("upsert recordings: %w", err)
	}
	return written, nil
}

// ListRecordings returns the whole catalog ordered by artist, album, track.
func (s *Store) ListRecordings(ctx context.Context) ([]Recording, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings ORDER BY artist, album, track_number, title, id`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRecording returns a catalog recording by id, or nil.
func (s *Store) GetRecording(ctx context.Context, id string) (*Recording, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, strings.ToLower(strings.TrimSpace(id)))
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return &rec, nil
}

// CatalogRevision summarizes the catalog so callers can detect changes
// without reloading it: the row count and the newest update stamp.
func (s *Store) CatalogRevision(ctx context.Context) (string, error) {
	ctx = ensureContext(ctx)
	var (
		count   int
		updated sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1), MAX(updated_at) FROM recordings`)
	if err := row.Scan(&count, &updated); err != nil {
		return "", fmt.Errorf("catalog revision: %w", err)
	}
	return fmt.Sprintf("%d@%s", count, updated.String), nil
}

func scanRecording(scanner interface{ Scan(dest ...any) error }) (Recording, error) {
	var (
		rec       Recording
		releaseID sql.NullString
		artistID  sql.NullString
		album     sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &releaseID, &artistID, &rec.Title, &rec.Artist, &album, &rec.TrackNumber, &rec.DurationSeconds); err != nil {
		return Recording{}, err
	}
	rec.ReleaseID = releaseID.String
	rec.ArtistID = artistID.String
	rec.Album = album.String
	return rec, nil
}
