package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tonearm/internal/acoustid"
	"tonearm/internal/catalog"
	"tonearm/internal/config"
	"tonearm/internal/filenames"
	"tonearm/internal/fingerprint"
	"tonearm/internal/logging"
	"tonearm/internal/lookupcache"
	"tonearm/internal/matching"
	"tonearm/internal/media/decode"
	"tonearm/internal/media/ffprobe"
	"tonearm/internal/pipeline"
	"tonearm/internal/queue"
	"tonearm/internal/scheduler"
	"tonearm/internal/tags"
)

// localMatchFloor discards spectral comparisons too weak to be a candidate.
const localMatchFloor = 0.5

// Components holds the identification stack built from configuration.
type Components struct {
	Catalog   *catalog.Catalog
	Cache     *lookupcache.Cache[[]acoustid.Match]
	Generator *fingerprint.Generator
	Resolver  *acoustid.Resolver
	Engine    *matching.Engine
	Runner    *pipeline.Runner
}

// Build wires the matching engine and job runner around store. The remote
// resolver is only built when an API key is configured; without one the auto
// backend falls back to spectral fingerprints matched against the library.
func Build(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Components, error) {
	if cfg == nil || store == nil {
		return nil, fmt.Errorf("build components: config and store are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	cat := catalog.New(store, logger)
	if seed := strings.TrimSpace(cfg.Catalog.SeedPath); seed != "" {
		imported, err := cat.ImportSeedIfEmpty(ctx, seed)
		if err != nil {
			logging.WarnWithContext(logger, "catalog seed import failed", "catalog_seed_failed",
				logging.String("seed_path", seed),
				logging.Error(err),
				logging.String(logging.FieldImpact, "tag and filename candidates fall back to text-only matches"),
				logging.String(logging.FieldErrorHint, "Fix the seed file and run tonearm catalog import"),
			)
		} else if imported > 0 {
			logger.Info("catalog seeded",
				logging.String(logging.FieldEventType, "catalog_seeded"),
				logging.Int("recordings", imported),
			)
		}
	}

	ffprobeBinary := cfg.Fingerprint.FFprobeBinary
	probe := func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, ffprobeBinary, path)
	}
	durationProbe := func(ctx context.Context, path string) (float64, error) {
		result, err := probe(ctx, path)
		if err != nil {
			return 0, err
		}
		return result.DurationSeconds(), nil
	}

	apiKey := strings.TrimSpace(cfg.AcoustID.APIKey)
	backend := strings.ToLower(strings.TrimSpace(cfg.Fingerprint.Backend))
	if apiKey == "" && (backend == "" || backend == fingerprint.BackendAuto) {
		backend = fingerprint.BackendSpectral
	}
	decoder := decode.New(cfg.Fingerprint.FFmpegBinary, cfg.Fingerprint.SampleRate, cfg.DecodeTimeout())
	generator, err := fingerprint.NewGenerator(decoder, fingerprint.Options{
		Backend:      backend,
		MaxSeconds:   cfg.Fingerprint.MaxSeconds,
		FpcalcBinary: cfg.Fingerprint.FpcalcBinary,
		Timeout:      cfg.DecodeTimeout(),
		Probe:        durationProbe,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("fingerprint generator: %w", err)
	}

	cachePath := ""
	if cfg.AcoustID.PersistCache {
		cachePath = cfg.LookupCachePath()
	}
	cache := lookupcache.New[[]acoustid.Match](cachePath, cfg.CacheTTL(), logger)

	router := &acoustid.Router{Local: acoustid.NewLocalMatcher(store, localMatchFloor, logger)}
	var resolver *acoustid.Resolver
	if apiKey != "" {
		client, err := acoustid.New(apiKey, cfg.AcoustID.BaseURL, acoustid.WithTimeout(cfg.AcoustIDTimeout()))
		if err != nil {
			return nil, fmt.Errorf("acoustid client: %w", err)
		}
		resolver, err = acoustid.NewResolver(client, cache, acoustid.ResolverOptions{
			RequestsPerSecond: cfg.AcoustID.RequestsPerSecond,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("acoustid resolver: %w", err)
		}
		router.Remote = resolver
	}

	engine, err := matching.NewEngine(matching.Options{
		Generator: generator,
		Store:     store,
		Resolver:  router,
		Tags: tags.NewExtractor(cat, tags.Options{
			MinSimilarity: cfg.Matching.TagMinSimilarity,
			Probe:         probe,
			Logger:        logger,
		}),
		Filenames: filenames.NewParser(cat, filenames.Options{
			Root:          cfg.Paths.LibraryDir,
			MinSimilarity: cfg.Matching.FilenameMinSimilarity,
			Logger:        logger,
		}),
		FingerprintThreshold: cfg.Matching.FingerprintThreshold,
		TagThreshold:         cfg.Matching.TagThreshold,
		Logger:               logger,
	})
	if err != nil {
		return nil, fmt.Errorf("matching engine: %w", err)
	}

	logger.Info("identification stack ready",
		logging.String(logging.FieldEventType, "stack_ready"),
		logging.String("fingerprint_backend", generator.Algorithm()),
		logging.Bool("remote_lookup", resolver != nil),
		logging.Bool("persist_cache", cachePath != ""),
	)

	return &Components{
		Catalog:   cat,
		Cache:     cache,
		Generator: generator,
		Resolver:  resolver,
		Engine:    engine,
		Runner:    pipeline.NewRunner(engine, store, probe, logger),
	}, nil
}

// NewScheduler builds a scheduler that runs jobs through components.Runner and
// rescans the configured library directory.
func NewScheduler(cfg *config.Config, store *queue.Store, components *Components, logger *slog.Logger) (*scheduler.Scheduler, error) {
	if components == nil || components.Runner == nil {
		return nil, fmt.Errorf("build scheduler: runner is required")
	}
	opts := scheduler.OptionsFromConfig(cfg)
	opts.Eligible = scheduler.DefaultEligible(store, cfg.Paths.LibraryDir)
	return scheduler.New(store, components.Runner, logger, opts)
}
