package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tonearm/internal/acoustid"
	"tonearm/internal/fileutil"
	"tonearm/internal/fingerprint"
	"tonearm/internal/logging"
	"tonearm/internal/queue"
	"tonearm/internal/services"
)

// Default acceptance thresholds.
const (
	DefaultFingerprintThreshold = 0.7
	DefaultTagThreshold         = 0.5
)

// FingerprintSource computes fingerprints for files.
type FingerprintSource interface {
	Generate(ctx context.Context, path string) (fingerprint.Fingerprint, error)
	Algorithm() string
}

// FingerprintStore persists fingerprints between resolutions.
type FingerprintStore interface {
	GetFingerprint(ctx context.Context, fileID string) (*queue.FingerprintRecord, error)
	SaveFingerprint(ctx context.Context, record queue.FingerprintRecord) error
}

// Resolver maps a fingerprint to recording matches.
type Resolver interface {
	Lookup(ctx context.Context, fp fingerprint.Fingerprint) ([]acoustid.Match, error)
}

// TagSource extracts candidates from embedded metadata.
type TagSource interface {
	Extract(ctx context.Context, path string) ([]Candidate, error)
}

// FilenameSource extracts candidates from path structure.
type FilenameSource interface {
	Parse(ctx context.Context, path string) ([]Candidate, error)
}

// Options wires an Engine.
type Options struct {
	Generator            FingerprintSource
	Store                FingerprintStore
	Resolver             Resolver
	Tags                 TagSource
	Filenames            FilenameSource
	FingerprintThreshold float64
	TagThreshold         float64
	Logger               *slog.Logger
	Now                  func() time.Time
}

// Engine runs the precedence chain for one file at a time. It holds no
// per-file state and is safe for concurrent use.
type Engine struct {
	generator            FingerprintSource
	store                FingerprintStore
	resolver             Resolver
	tags                 TagSource
	filenames            FilenameSource
	fingerprintThreshold float64
	tagThreshold         float64
	logger               *slog.Logger
	now                  func() time.Time
}

// NewEngine validates opts and builds an engine. A nil Store disables
// fingerprint reuse across resolutions.
func NewEngine(opts Options) (*Engine, error) {
	e := &Engine{
		generator:            opts.Generator,
		store:                opts.Store,
		resolver:             opts.Resolver,
		tags:                 opts.Tags,
		filenames:            opts.Filenames,
		fingerprintThreshold: opts.FingerprintThreshold,
		tagThreshold:         opts.TagThreshold,
		logger:               opts.Logger,
		now:                  opts.Now,
	}
	if e.fingerprintThreshold == 0 {
		e.fingerprintThreshold = DefaultFingerprintThreshold
	}
	if e.tagThreshold == 0 {
		e.tagThreshold = DefaultTagThreshold
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	e.logger = logging.NewComponentLogger(e.logger, "matching")
	if e.now == nil {
		e.now = time.Now
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) validate() error {
	if e == nil {
		return services.Wrap(services.ErrConfiguration, "matching", "init", "engine is nil", nil)
	}
	var missing []string
	if e.generator == nil {
		missing = append(missing, "fingerprint generator")
	}
	if e.resolver == nil {
		missing = append(missing, "fingerprint resolver")
	}
	if e.tags == nil {
		missing = append(missing, "tag extractor")
	}
	if e.filenames == nil {
		missing = append(missing, "filename parser")
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "matching", "init", "missing "+strings.Join(missing, ", "), nil)
	}
	for name, v := range map[string]float64{"fingerprint_threshold": e.fingerprintThreshold, "tag_threshold": e.tagThreshold} {
		if v < 0 || v > 1 {
			return services.Wrap(services.ErrConfiguration, "matching", "init", fmt.Sprintf("%s must be within [0,1], got %v", name, v), nil)
		}
	}
	return nil
}

// resolution carries the mutable state of one Resolve call.
type resolution struct {
	file     File
	state    State
	duration float64
	result   Result
	logger   *slog.Logger
}

func (r *resolution) advance(to State) {
	if r.state.Terminal() || to <= r.state {
		return
	}
	r.logger.Debug("resolution state changed",
		logging.String("from", r.state.String()),
		logging.String("to", to.String()),
	)
	r.state = to
}

// Resolve identifies file. Strategy failures are recorded in the result;
// an error is returned only for configuration problems or cancellation.
func (e *Engine) Resolve(ctx context.Context, file File) (Result, error) {
	if err := e.validate(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(file.Path) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "matching", "resolve", "file path is required", nil)
	}
	if file.ID == "" {
		id, err := fileutil.FileID(file.Path)
		if err != nil {
			return Result{}, services.Wrap(services.ErrValidation, "matching", "resolve", "derive file id", err)
		}
		file.ID = id
	}
	ctx = services.WithFileID(ctx, file.ID)

	run := &resolution{
		file:     file,
		state:    StateNotStarted,
		duration: file.DurationSeconds,
		result: Result{
			FileID: file.ID,
			Path:   file.Path,
		},
		logger: logging.WithContext(ctx, e.logger),
	}

	for _, strategy := range Precedence {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		run.advance(stateFor(strategy))
		strategyCtx := services.WithStrategy(ctx, strategy.String())

		candidates, err := e.candidates(strategyCtx, run, strategy)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			e.recordFailure(run, strategy, err)
			continue
		}
		if len(candidates) == 0 {
			run.logger.Debug("strategy produced no candidate", logging.String(logging.FieldStrategy, strategy.String()))
			continue
		}
		for i := range candidates {
			candidates[i].Strategy = strategy
			candidates[i].Confidence = ClampConfidence(candidates[i].Confidence)
		}
		best, _ := Best(candidates, run.duration)
		if e.accepts(strategy, best) {
			e.accept(run, strategy, best, len(candidates))
			return run.result, nil
		}
		run.logger.Info("strategy candidate below threshold",
			logging.Args(append(logging.DecisionAttrs("strategy_acceptance", "rejected", "below threshold"),
				logging.String(logging.FieldStrategy, strategy.String()),
				logging.Float64("confidence", best.Confidence),
				logging.Float64("threshold", e.threshold(strategy)),
				logging.String("recording_id", best.RecordingID),
			)...)...,
		)
		run.result.Auxiliary = append(run.result.Auxiliary, best)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	run.advance(StateUnresolved)
	run.result.State = StateUnresolved
	run.result.Strategy = StrategyNone
	run.result.DurationSeconds = run.duration
	run.result.ResolvedAt = e.now().UTC()
	run.logger.Info("file unresolved",
		logging.Args(append(logging.DecisionAttrs("resolution", "unresolved", "no strategy produced an acceptable candidate"),
			logging.Int("failures", len(run.result.Failures)),
			logging.Int("auxiliary", len(run.result.Auxiliary)),
		)...)...,
	)
	return run.result, nil
}

// candidates dispatches to the strategy implementation.
func (e *Engine) candidates(ctx context.Context, run *resolution, strategy Strategy) ([]Candidate, error) {
	switch strategy {
	case StrategyFingerprint:
		return e.fingerprintCandidates(ctx, run)
	case StrategyEmbeddedTags:
		return e.tags.Extract(ctx, run.file.Path)
	case StrategyFilename:
		return e.filenames.Parse(ctx, run.file.Path)
	default:
		return nil, fmt.Errorf("unknown strategy %d", int(strategy))
	}
}

func (e *Engine) threshold(strategy Strategy) float64 {
	switch strategy {
	case StrategyFingerprint:
		return e.fingerprintThreshold
	case StrategyEmbeddedTags:
		return e.tagThreshold
	default:
		return 0
	}
}

func (e *Engine) accepts(strategy Strategy, best Candidate) bool {
	if strategy == StrategyFilename {
		return true
	}
	return best.Confidence >= e.threshold(strategy)
}

func (e *Engine) accept(run *resolution, strategy Strategy, best Candidate, considered int) {
	chosen := best
	run.advance(StateResolved)
	run.result.State = StateResolved
	run.result.Strategy = strategy
	run.result.Chosen = &chosen
	run.result.Confidence = chosen.Confidence
	run.result.LowConfidence = strategy == StrategyFilename
	run.result.DurationSeconds = run.duration
	run.result.ResolvedAt = e.now().UTC()

	reason := "confidence " + strconv.FormatFloat(chosen.Confidence, 'f', 3, 64) + " >= threshold " + strconv.FormatFloat(e.threshold(strategy), 'f', 2, 64)
	if strategy == StrategyFilename {
		reason = "best-effort filename fallback"
	}
	run.logger.Info("file resolved",
		logging.Args(append(logging.DecisionAttrs("strategy_acceptance", "accepted", reason),
			logging.String(logging.FieldStrategy, strategy.String()),
			logging.String("recording_id", chosen.RecordingID),
			logging.Float64("confidence", chosen.Confidence),
			logging.Bool("low_confidence", run.result.LowConfidence),
			logging.Int("candidates", considered),
		)...)...,
	)
}

func (e *Engine) recordFailure(run *resolution, strategy Strategy, err error) {
	class := services.Classify(err)
	run.result.Failures = append(run.result.Failures, StrategyFailure{
		Strategy: strategy,
		Class:    class,
		Error:    err.Error(),
	})
	run.logger.Info("strategy failed; falling through",
		logging.String(logging.FieldStrategy, strategy.String()),
		logging.String("failure_class", string(class)),
		logging.Error(err),
	)
}

func (e *Engine) fingerprintCandidates(ctx context.Context, run *resolution) ([]Candidate, error) {
	fp, err := e.fingerprintFor(ctx, run)
	if err != nil {
		return nil, err
	}
	if fp.DurationSeconds > 0 {
		run.duration = fp.DurationSeconds
	}
	matches, err := e.resolver.Lookup(ctx, fp)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		c := NewCandidate(StrategyFingerprint, m.RecordingID, m.Score)
		c.ReleaseID = m.ReleaseID
		c.ArtistID = m.ArtistID
		c.Title = m.Title
		c.Artist = m.Artist()
		c.Album = m.ReleaseTitle
		c.DurationSeconds = m.DurationSeconds
		c = c.WithEvidence("algorithm", fp.Algorithm).
			WithEvidence("source", m.Source).
			WithEvidence("release_group_id", m.ReleaseGroupID).
			WithEvidence("score", strconv.FormatFloat(m.Score, 'f', 3, 64))
		out = append(out, c)
	}
	return out, nil
}

// fingerprintFor reuses the stored fingerprint unless the file is being
// rescanned or the stored one came from a different backend.
func (e *Engine) fingerprintFor(ctx context.Context, run *resolution) (fingerprint.Fingerprint, error) {
	file := run.file
	if !file.Rescan && e.store != nil {
		record, err := e.store.GetFingerprint(ctx, file.ID)
		if err != nil {
			run.logger.Debug("stored fingerprint unavailable", logging.Error(err))
		} else if record != nil && record.Algorithm == e.generator.Algorithm() {
			fp := fingerprint.Fingerprint{
				Signature:       record.Signature,
				DurationSeconds: record.DurationSeconds,
				ComputedAt:      record.ComputedAt,
				Algorithm:       record.Algorithm,
			}
			if fp.Validate() == nil {
				run.logger.Debug("reusing stored fingerprint", logging.String("algorithm", fp.Algorithm))
				return fp, nil
			}
		}
	}

	fp, err := e.generator.Generate(ctx, file.Path)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	if e.store != nil {
		saveErr := e.store.SaveFingerprint(ctx, queue.FingerprintRecord{
			FileID:          file.ID,
			Path:            file.Path,
			Signature:       fp.Signature,
			DurationSeconds: fp.DurationSeconds,
			Algorithm:       fp.Algorithm,
			ComputedAt:      fp.ComputedAt,
		})
		if saveErr != nil && !errors.Is(saveErr, context.Canceled) {
			logging.WarnWithContext(run.logger, "fingerprint not persisted", "fingerprint_save_failed",
				logging.Error(saveErr),
				logging.String(logging.FieldErrorHint, "check database health with tonearm status"),
				logging.String(logging.FieldImpact, "fingerprint will be recomputed on the next attempt"),
			)
		}
	}
	return fp, nil
}
