package matching

import (
	"fmt"
	"math"
	"strings"
	"time"

	"tonearm/internal/services"
)

// Strategy identifies one identification technique.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyFingerprint
	StrategyEmbeddedTags
	StrategyFilename
)

// Precedence is the fixed order in which strategies are tried.
var Precedence = [...]Strategy{StrategyFingerprint, StrategyEmbeddedTags, StrategyFilename}

func (s Strategy) String() string {
	switch s {
	case StrategyFingerprint:
		return "fingerprint"
	case StrategyEmbeddedTags:
		return "embedded_tags"
	case StrategyFilename:
		return "filename"
	default:
		return ""
	}
}

// ParseStrategy converts a persisted name back into a Strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return StrategyNone, nil
	case "fingerprint":
		return StrategyFingerprint, nil
	case "embedded_tags", "tags":
		return StrategyEmbeddedTags, nil
	case "filename":
		return StrategyFilename, nil
	default:
		return StrategyNone, fmt.Errorf("unknown strategy %q", value)
	}
}

func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// State is a step of the resolution state machine.
type State int

const (
	StateNotStarted State = iota
	StateTryingFingerprint
	StateTryingTags
	StateTryingFilename
	StateResolved
	StateUnresolved
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateTryingFingerprint:
		return "trying_fingerprint"
	case StateTryingTags:
		return "trying_tags"
	case StateTryingFilename:
		return "trying_filename"
	case StateResolved:
		return "resolved"
	case StateUnresolved:
		return "unresolved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateUnresolved
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateNotStarted; candidate <= StateUnresolved; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

func stateFor(strategy Strategy) State {
	switch strategy {
	case StrategyFingerprint:
		return StateTryingFingerprint
	case StrategyEmbeddedTags:
		return StateTryingTags
	case StrategyFilename:
		return StateTryingFilename
	default:
		return StateNotStarted
	}
}

// Candidate is one proposed identity for a file, produced by a single
// strategy.
type Candidate struct {
	Strategy        Strategy          `json:"strategy"`
	RecordingID     string            `json:"recording_id,omitempty"`
	ReleaseID       string            `json:"release_id,omitempty"`
	ArtistID        string            `json:"artist_id,omitempty"`
	Title           string            `json:"title,omitempty"`
	Artist          string            `json:"artist,omitempty"`
	Album           string            `json:"album,omitempty"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	Confidence      float64           `json:"confidence"`
	Evidence        map[string]string `json:"evidence,omitempty"`
}

// NewCandidate returns a candidate with confidence clamped to [0,1].
func NewCandidate(strategy Strategy, recordingID string, confidence float64) Candidate {
	return Candidate{
		Strategy:    strategy,
		RecordingID: strings.ToLower(strings.TrimSpace(recordingID)),
		Confidence:  ClampConfidence(confidence),
	}
}

// Verbatim reports whether the candidate is an identifier read from the file
// rather than a similarity match.
func (c Candidate) Verbatim() bool {
	return c.Evidence["match"] == "verbatim_id"
}

// WithEvidence records a piece of supporting evidence and returns c.
func (c Candidate) WithEvidence(key, value string) Candidate {
	if key == "" || value == "" {
		return c
	}
	evidence := make(map[string]string, len(c.Evidence)+1)
	for k, v := range c.Evidence {
		evidence[k] = v
	}
	evidence[key] = value
	c.Evidence = evidence
	return c
}

// ClampConfidence bounds v to [0,1]; NaN becomes 0.
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// StrategyFailure records why a strategy produced no usable candidate.
type StrategyFailure struct {
	Strategy Strategy              `json:"strategy"`
	Class    services.FailureClass `json:"class"`
	Error    string                `json:"error"`
}

// File is the input to Resolve.
type File struct {
	ID              string
	Path            string
	DurationSeconds float64
	Rescan          bool
}

// Result is the outcome of one resolution.
type Result struct {
	FileID          string            `json:"file_id"`
	Path            string            `json:"path"`
	State           State             `json:"state"`
	Strategy        Strategy          `json:"strategy"`
	Chosen          *Candidate        `json:"chosen,omitempty"`
	Confidence      float64           `json:"confidence"`
	LowConfidence   bool              `json:"low_confidence"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	ResolvedAt      time.Time         `json:"resolved_at"`
	Auxiliary       []Candidate       `json:"auxiliary,omitempty"`
	Failures        []StrategyFailure `json:"failures,omitempty"`
}

// Resolved reports whether a candidate was chosen.
func (r Result) Resolved() bool {
	return r.State == StateResolved && r.Chosen != nil
}

// Failure returns the recorded failure for strategy, if any.
func (r Result) Failure(strategy Strategy) (StrategyFailure, bool) {
	for _, f := range r.Failures {
		if f.Strategy == strategy {
			return f, true
		}
	}
	return StrategyFailure{}, false
}

// DegradedTransiently reports whether the fingerprint strategy failed for a
// reason expected to clear on retry and the result was therefore decided by
// a lower-precedence strategy or left unresolved.
func (r Result) DegradedTransiently() bool {
	if r.Strategy == StrategyFingerprint {
		return false
	}
	f, ok := r.Failure(StrategyFingerprint)
	return ok && f.Class == services.ClassTransient
}
