package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"tonearm/internal/logging"
	"tonearm/internal/matching"
	"tonearm/internal/media/ffprobe"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// Resolver is the engine contract the runner needs.
type Resolver interface {
	Resolve(ctx context.Context, file matching.File) (matching.Result, error)
}

// ResultStore persists resolutions.
type ResultStore interface {
	SaveMatchResult(ctx context.Context, record queue.MatchRecord) error
}

// Prober inspects a media container.
type Prober func(ctx context.Context, path string) (ffprobe.Result, error)

// Runner executes job attempts.
type Runner struct {
	engine Resolver
	store  ResultStore
	probe  Prober
	logger *slog.Logger
}

// NewRunner constructs a runner. A nil probe skips container inspection and a
// nil store skips persistence.
func NewRunner(engine Resolver, store ResultStore, probe Prober, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		engine: engine,
		store:  store,
		probe:  probe,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run performs one attempt of job.
func (r *Runner) Run(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "pipeline", "run", "job is nil", nil)
	}
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithFileID(ctx, job.FileID)
	result, err := r.Identify(ctx, matching.File{ID: job.FileID, Path: job.Path, Rescan: job.Rescan})
	if err != nil {
		return err
	}
	if !result.DegradedTransiently() {
		return nil
	}
	// An identifier embedded in the file outranks anything a fingerprint
	// lookup could add.
	if result.Resolved() && result.Chosen.Verbatim() {
		return nil
	}
	failure, _ := result.Failure(matching.StrategyFingerprint)
	return services.Wrap(services.ErrProvisional, "pipeline", "resolve",
		fmt.Sprintf("fingerprint lookup degraded; stored %s result, retrying for a fingerprint match", describeOutcome(result)),
		errors.New(failure.Error))
}

// Identify resolves file and persists the result.
func (r *Runner) Identify(ctx context.Context, file matching.File) (matching.Result, error) {
	if r == nil || r.engine == nil {
		return matching.Result{}, services.Wrap(services.ErrConfiguration, "pipeline", "identify", "matching engine unavailable", nil)
	}
	logger := logging.WithContext(ctx, r.logger)

	if _, err := os.Stat(file.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return matching.Result{}, services.Wrap(services.ErrNotFound, "pipeline", "stat", "file no longer exists: "+file.Path, nil)
		}
		return matching.Result{}, services.Wrap(services.ErrPermanent, "pipeline", "stat", "cannot access "+file.Path, err)
	}

	if r.probe != nil {
		duration, err := r.inspect(ctx, file.Path)
		if err != nil {
			return matching.Result{}, err
		}
		if file.DurationSeconds <= 0 {
			file.DurationSeconds = duration
		}
	}

	result, err := r.engine.Resolve(ctx, file)
	if err != nil {
		return matching.Result{}, err
	}

	if r.store != nil {
		record, err := Record(result)
		if err != nil {
			return result, services.Wrap(services.ErrPermanent, "pipeline", "persist", "encode result", err)
		}
		if err := r.store.SaveMatchResult(ctx, record); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			return result, services.Wrap(services.ErrTransient, "pipeline", "persist", "save match result", err)
		}
	}

	logger.Info("identification finished",
		logging.String("state", result.State.String()),
		logging.String(logging.FieldStrategy, result.Strategy.String()),
		logging.Float64("confidence", result.Confidence),
		logging.Bool("low_confidence", result.LowConfidence),
		logging.Int("failures", len(result.Failures)),
	)
	return result, nil
}

func (r *Runner) inspect(ctx context.Context, path string) (float64, error) {
	probe, err := r.probe(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if errors.Is(err, ffprobe.ErrInvalidData) {
			return 0, services.Wrap(services.ErrDecode, "pipeline", "probe", "container could not be parsed", err)
		}
		return 0, services.Wrap(services.ErrExternalTool, "pipeline", "probe", "ffprobe failed", err)
	}
	if probe.AudioStreamCount() == 0 {
		return 0, services.Wrap(services.ErrUnsupported, "pipeline", "probe", "no audio stream", nil)
	}
	return probe.DurationSeconds(), nil
}

func describeOutcome(result matching.Result) string {
	if result.Resolved() {
		return result.Strategy.String()
	}
	return "unresolved"
}

// Record flattens result into its persisted form.
func Record(result matching.Result) (queue.MatchRecord, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return queue.MatchRecord{}, err
	}
	record := queue.MatchRecord{
		FileID:        result.FileID,
		Path:          result.Path,
		State:         result.State.String(),
		Strategy:      result.Strategy.String(),
		Confidence:    result.Confidence,
		LowConfidence: result.LowConfidence,
		ResolvedAt:    result.ResolvedAt,
		ResultJSON:    string(payload),
	}
	if c := result.Chosen; c != nil {
		record.RecordingID = c.RecordingID
		record.ReleaseID = c.ReleaseID
		record.ArtistID = c.ArtistID
		record.Title = c.Title
		record.Artist = c.Artist
		record.Album = c.Album
	}
	return record, nil
}

// Decode restores the full result stored in record.
func Decode(record *queue.MatchRecord) (matching.Result, error) {
	if record == nil {
		return matching.Result{}, services.Wrap(services.ErrNotFound, "pipeline", "decode", "no stored result", nil)
	}
	raw := strings.TrimSpace(record.ResultJSON)
	if raw == "" || raw == "{}" {
		return matching.Result{}, services.Wrap(services.ErrValidation, "pipeline", "decode", "stored result has no payload", nil)
	}
	var result matching.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return matching.Result{}, services.Wrap(services.ErrValidation, "pipeline", "decode", "stored result is corrupt", err)
	}
	return result, nil
}
