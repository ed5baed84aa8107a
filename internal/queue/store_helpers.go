package queue

import (
	"database/sql"
	"errors"
	"time"
)

// Fixed-width UTC layout so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const jobColumns = "id, file_id, file_path, status, rescan, attempts, scheduled_at, next_attempt_at, started_at, completed_at, last_error, error_class, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		fileID       string
		filePath     string
		statusStr    string
		rescan       int
		attempts     int
		scheduledRaw string
		nextRaw      sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		lastError    sql.NullString
		errorClass   sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id,
		&fileID,
		&filePath,
		&statusStr,
		&rescan,
		&attempts,
		&scheduledRaw,
		&nextRaw,
		&startedRaw,
		&completedRaw,
		&lastError,
		&errorClass,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:         id,
		FileID:     fileID,
		Path:       filePath,
		Status:     Status(statusStr),
		Rescan:     rescan != 0,
		Attempts:   attempts,
		LastError:  lastError.String,
		ErrorClass: errorClass.String,
	}
	if t, err := parseTimeString(scheduledRaw); err == nil {
		job.ScheduledAt = t
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = t
	}
	job.NextAttemptAt = parseNullableTime(nextRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	return job, nil
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
