package ipc

import (
	"time"

	"tonearm/internal/deps"
	"tonearm/internal/matching"
	"tonearm/internal/queue"
	"tonearm/internal/scheduler"
)

// StartRequest triggers scheduler startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the scheduler.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = deps.Status

// JobAttempt is the wire form of one attempt in a job's history.
type JobAttempt struct {
	Number     int    `json:"number"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	BackoffMS  int64  `json:"backoff_ms,omitempty"`
}

// JobItem is the wire form of a job.
type JobItem struct {
	ID            string       `json:"id"`
	FileID        string       `json:"file_id"`
	Path          string       `json:"path"`
	Status        string       `json:"status"`
	Rescan        bool         `json:"rescan"`
	Attempts      int          `json:"attempts"`
	Retries       int          `json:"retries"`
	NextAttemptAt string       `json:"next_attempt_at,omitempty"`
	StartedAt     string       `json:"started_at,omitempty"`
	CompletedAt   string       `json:"completed_at,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	ErrorClass    string       `json:"error_class,omitempty"`
	CreatedAt     string       `json:"created_at"`
	UpdatedAt     string       `json:"updated_at"`
	History       []JobAttempt `json:"history,omitempty"`
}

// FromJob converts a stored job into its wire form.
func FromJob(job *queue.Job) JobItem {
	if job == nil {
		return JobItem{}
	}
	item := JobItem{
		ID:            job.ID,
		FileID:        job.FileID,
		Path:          job.Path,
		Status:        string(job.Status),
		Rescan:        job.Rescan,
		Attempts:      job.Attempts,
		Retries:       job.Retries(),
		NextAttemptAt: formatTimePtr(job.NextAttemptAt),
		StartedAt:     formatTimePtr(job.StartedAt),
		CompletedAt:   formatTimePtr(job.CompletedAt),
		LastError:     job.LastError,
		ErrorClass:    job.ErrorClass,
		CreatedAt:     formatTime(job.CreatedAt),
		UpdatedAt:     formatTime(job.UpdatedAt),
	}
	for _, attempt := range job.History {
		item.History = append(item.History, JobAttempt{
			Number:     attempt.Number,
			StartedAt:  formatTime(attempt.StartedAt),
			FinishedAt: formatTime(attempt.FinishedAt),
			Outcome:    attempt.Outcome,
			Error:      attempt.Error,
			ErrorClass: attempt.ErrorClass,
			BackoffMS:  attempt.Backoff.Milliseconds(),
		})
	}
	return item
}

// FromJobs converts a slice of stored jobs, skipping nil entries.
func FromJobs(jobs []*queue.Job) []JobItem {
	items := make([]JobItem, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		items = append(items, FromJob(job))
	}
	return items
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// StatusResponse represents combined daemon and scheduler status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	JobStats     map[string]int     `json:"job_stats"`
	Scheduler    scheduler.Stats    `json:"scheduler"`
	LastError    string             `json:"last_error"`
	LastJob      *JobItem           `json:"last_job"`
	LockPath     string             `json:"lock_path"`
	DatabasePath string             `json:"database_path"`
	LogPath      string             `json:"log_path"`
	Dependencies []DependencyStatus `json:"dependencies"`
	PID          int                `json:"pid"`
}

// SubmitRequest queues a file for identification.
type SubmitRequest struct {
	Path   string `json:"path"`
	Rescan bool   `json:"rescan"`
}

// SubmitResponse returns the job handling the file.
type SubmitResponse struct {
	Job JobItem `json:"job"`
}

// JobStatusRequest fetches a single job by id.
type JobStatusRequest struct {
	ID string `json:"id"`
}

// JobStatusResponse contains the job and, once available, its result.
type JobStatusResponse struct {
	Job    JobItem          `json:"job"`
	Result *matching.Result `json:"result,omitempty"`
}

// JobListRequest filters job listing by status.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
}

// JobListResponse contains job entries.
type JobListResponse struct {
	Jobs []JobItem `json:"jobs"`
}

// JobCancelRequest cancels a job by id.
type JobCancelRequest struct {
	ID string `json:"id"`
}

// JobCancelResponse reports whether cancellation was accepted.
type JobCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// RescanRequest triggers an eligibility rescan.
type RescanRequest struct{}

// RescanResponse summarizes the rescan pass.
type RescanResponse struct {
	Considered int      `json:"considered"`
	Submitted  []string `json:"submitted"`
	Skipped    int      `json:"skipped"`
	Errors     int      `json:"errors"`
}

// CacheRequest asks the daemon to prune or clear its lookup cache.
type CacheRequest struct{}

// CacheResponse reports how many lookups were removed.
type CacheResponse struct {
	Removed int `json:"removed"`
}

// ResultRequest fetches the stored result for a path.
type ResultRequest struct {
	Path string `json:"path"`
}

// ResultResponse contains the stored result.
type ResultResponse struct {
	Result matching.Result `json:"result"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TablesPresent    []string `json:"tables_present"`
	MissingTables    []string `json:"missing_tables"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalJobs        int      `json:"total_jobs"`
	Error            string   `json:"error"`
}
