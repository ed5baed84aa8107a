package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateJob inserts a new job. When another pending, running, or retrying
// job already exists for the same file, that job is returned with created
// set to false and nothing is inserted.
func (s *Store) CreateJob(ctx context.Context, job *Job) (*Job, bool, error) {
	if job == nil {
		return nil, false, errors.New("job is required")
	}
	if strings.TrimSpace(job.FileID) == "" {
		return nil, false, errors.New("job file id is required")
	}
	if strings.TrimSpace(job.Path) == "" {
		return nil, false, errors.New("job path is required")
	}
	ctx = ensureContext(ctx)

	created := job.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Status == "" {
		created.Status = StatusPending
	}
	now := time.Now().UTC()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	if created.ScheduledAt.IsZero() {
		created.ScheduledAt = created.CreatedAt
	}
	created.UpdatedAt = created.CreatedAt

	// A concurrent writer may finish its active job between our failed insert
	// and the lookup, so the pair is retried a few times.
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.execWithRetry(ctx,
			`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			created.ID,
			created.FileID,
			created.Path,
			string(created.Status),
			boolToInt(created.Rescan),
			created.Attempts,
			formatTime(created.ScheduledAt),
			nullableTime(created.NextAttemptAt),
			nullableTime(created.StartedAt),
			nullableTime(created.CompletedAt),
			nullableString(created.LastError),
			nullableString(created.ErrorClass),
			formatTime(created.CreatedAt),
			formatTime(created.UpdatedAt),
		)
		if err == nil {
			return created, true, nil
		}
		if !isUniqueViolation(err) {
			return nil, false, fmt.Errorf("insert job: %w", err)
		}
		existing, lookupErr := s.ActiveJobForFile(ctx, created.FileID)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("insert job for file %s: active job changed concurrently", created.FileID)
}

// GetJob fetches a job with its attempt history. It returns nil when the job
// does not exist.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	history, err := s.AttemptHistory(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	job.History = history
	return job, nil
}

// ActiveJobForFile returns the pending, running, or retrying job for fileID,
// or nil when the file has none.
func (s *Store) ActiveJobForFile(ctx context.Context, fileID string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE file_id = ? AND status IN (?, ?, ?) LIMIT 1`,
		fileID, string(StatusPending), string(StatusRunning), string(StatusRetrying),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job for file: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs in creation order, optionally filtered by status.
// History is not loaded.
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob persists the mutable fields of a job and stamps UpdatedAt.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}
	job.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, rescan = ?, attempts = ?, scheduled_at = ?, next_attempt_at = ?,
			started_at = ?, completed_at = ?, last_error = ?, error_class = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status),
		boolToInt(job.Rescan),
		job.Attempts,
		formatTime(job.ScheduledAt),
		nullableTime(job.NextAttemptAt),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableString(job.LastError),
		nullableString(job.ErrorClass),
		formatTime(job.UpdatedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job %s: not found", job.ID)
	}
	return nil
}

// AppendAttempt records one finished attempt in the job history.
func (s *Store) AppendAttempt(ctx context.Context, jobID string, attempt Attempt) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	if attempt.Number <= 0 {
		return fmt.Errorf("invalid attempt number %d", attempt.Number)
	}
	return s.execWithoutResultRetry(ctx,
		`INSERT OR REPLACE INTO job_attempts (job_id, attempt, started_at, finished_at, outcome, error, error_class, backoff_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID,
		attempt.Number,
		formatTime(attempt.StartedAt),
		nullableTime(&attempt.FinishedAt),
		attempt.Outcome,
		nullableString(attempt.Error),
		nullableString(attempt.ErrorClass),
		attempt.Backoff.Milliseconds(),
	)
}

// AttemptHistory returns the recorded attempts for a job in order.
func (s *Store) AttemptHistory(ctx context.Context, jobID string) ([]Attempt, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt, started_at, finished_at, outcome, error, error_class, backoff_ms
		FROM job_attempts WHERE job_id = ? ORDER BY attempt`, jobID)
	if err != nil {
		return nil, fmt.Errorf("attempt history: %w", err)
	}
	defer rows.Close()

	var history []Attempt
	for rows.Next() {
		var (
			attempt     Attempt
			startedRaw  string
			finishedRaw sql.NullString
			errText     sql.NullString
			errClass    sql.NullString
			backoffMS   int64
		)
		if err := rows.Scan(&attempt.Number, &startedRaw, &finishedRaw, &attempt.Outcome, &errText, &errClass, &backoffMS); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if t, err := parseTimeString(startedRaw); err == nil {
			attempt.StartedAt = t
		}
		if finished := parseNullableTime(finishedRaw); finished != nil {
			attempt.FinishedAt = *finished
		}
		attempt.Error = errText.String
		attempt.ErrorClass = errClass.String
		attempt.Backoff = time.Duration(backoffMS) * time.Millisecond
		history = append(history, attempt)
	}
	return history, rows.Err()
}

// ResetRunning returns jobs left running by an interrupted process to pending.
// The interrupted attempt is not counted.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, started_at = NULL, updated_at = ? WHERE status = ?`,
		string(StatusPending), formatTime(time.Now()), string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return res.RowsAffected()
}

// RecoverableJobs returns pending and retrying jobs in scheduling order.
func (s *Store) RecoverableJobs(ctx context.Context) ([]*Job, error) {
	jobs, err := s.ListJobs(ctx, StatusPending, StatusRetrying)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
