package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of an identification job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// CancelledReason is recorded as the last error when a job is cancelled by request.
const CancelledReason = "cancelled by request"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusRetrying,
	StatusSucceeded,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsActive reports whether a job in this status still occupies its file.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning || s == StatusRetrying
}

// IsTerminal reports whether the job will never be attempted again.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Attempt outcomes recorded in job history.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetrying  = "retrying"
	OutcomeFailed    = "failed"
)

// Attempt records one execution of a job.
type Attempt struct {
	Number     int           `json:"number"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	ErrorClass string        `json:"error_class,omitempty"`
	Backoff    time.Duration `json:"backoff,omitempty"`
}

// Job is a unit of identification work for one file.
type Job struct {
	ID            string     `json:"id"`
	FileID        string     `json:"file_id"`
	Path          string     `json:"path"`
	Status        Status     `json:"status"`
	Rescan        bool       `json:"rescan"`
	Attempts      int        `json:"attempts"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	ErrorClass    string     `json:"error_class,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	History       []Attempt  `json:"history,omitempty"`
}

// Retries returns the number of attempts beyond the first.
func (j *Job) Retries() int {
	if j == nil || j.Attempts <= 1 {
		return 0
	}
	return j.Attempts - 1
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.NextAttemptAt = cloneTime(j.NextAttemptAt)
	out.StartedAt = cloneTime(j.StartedAt)
	out.CompletedAt = cloneTime(j.CompletedAt)
	if j.History != nil {
		out.History = make([]Attempt, len(j.History))
		copy(out.History, j.History)
	}
	return &out
}

func (j *Job) String() string {
	if j == nil {
		return "<nil job>"
	}
	return fmt.Sprintf("job %s (%s) %s", j.ID, j.Status, j.Path)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// FingerprintRecord stores the acoustic signature computed for a file.
type FingerprintRecord struct {
	FileID          string    `json:"file_id"`
	Path            string    `json:"path"`
	Signature       string    `json:"signature"`
	DurationSeconds float64   `json:"duration_seconds"`
	Algorithm       string    `json:"algorithm"`
	ComputedAt      time.Time `json:"computed_at"`
}

// MatchRecord stores the most recent identification outcome for a file.
// ResultJSON holds the full serialized result including auxiliary candidates.
type MatchRecord struct {
	FileID        string    `json:"file_id"`
	Path          string    `json:"path"`
	State         string    `json:"state"`
	Strategy      string    `json:"strategy,omitempty"`
	RecordingID   string    `json:"recording_id,omitempty"`
	ReleaseID     string    `json:"release_id,omitempty"`
	ArtistID      string    `json:"artist_id,omitempty"`
	Title         string    `json:"title,omitempty"`
	Artist        string    `json:"artist,omitempty"`
	Album         string    `json:"album,omitempty"`
	Confidence    float64   `json:"confidence"`
	LowConfidence bool      `json:"low_confidence"`
	ResolvedAt    time.Time `json:"resolved_at"`
	ResultJSON    string    `json:"-"`
}

// Recording is one entry of the local recording catalog.
type Recording struct {
	ID              string  `json:"id" yaml:"id"`
	ReleaseID       string  `json:"release_id,omitempty" yaml:"release_id,omitempty"`
	ArtistID        string  `json:"artist_id,omitempty" yaml:"artist_id,omitempty"`
	Title           string  `json:"title" yaml:"title"`
	Artist          string  `json:"artist" yaml:"artist"`
	Album           string  `json:"album,omitempty" yaml:"album,omitempty"`
	TrackNumber     int     `json:"track_number,omitempty" yaml:"track_number,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated job counts per lifecycle group.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Retrying  int
	Succeeded int
	Failed    int
}
