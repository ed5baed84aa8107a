package acoustid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"tonearm/internal/fingerprint"
	"tonearm/internal/logging"
	"tonearm/internal/lookupcache"
	"tonearm/internal/services"
)

const (
	defaultRequestsPerSecond = 3
	defaultFlightTimeout     = 30 * time.Second
	defaultMaxAttempts       = 2
	defaultRetryDelay        = 500 * time.Millisecond
	maxInlineRetryAfter      = 5 * time.Second
)

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// RequestsPerSecond bounds remote calls. Zero uses the AcoustID limit.
	RequestsPerSecond float64
	// MaxAttempts bounds the remote calls made for one transiently failing
	// lookup before the error is handed back to the caller.
	MaxAttempts int
	// RetryDelay is the pause between those calls.
	RetryDelay time.Duration
	// FlightTimeout bounds a shared lookup once callers stop waiting on it.
	FlightTimeout time.Duration
	Logger        *slog.Logger
	Sleep         func(ctx context.Context, d time.Duration) error
}

// Resolver turns chromaprint fingerprints into recording matches. Results are
// cached by signature, and concurrent lookups of one signature share a single
// remote call.
type Resolver struct {
	client        Looker
	cache         *lookupcache.Cache[[]Match]
	limiter       *rate.Limiter
	group         singleflight.Group
	logger        *slog.Logger
	maxAttempts   int
	retryDelay    time.Duration
	flightTimeout time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	remoteCalls   atomic.Int64
}

// NewResolver constructs a resolver around client and cache. A nil cache
// disables caching but keeps in-flight deduplication.
func NewResolver(client Looker, cache *lookupcache.Cache[[]Match], opts ResolverOptions) (*Resolver, error) {
	if client == nil {
		return nil, services.Wrap(services.ErrConfiguration, "acoustid", "init", "client required", nil)
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 || math.IsNaN(rps) {
		rps = defaultRequestsPerSecond
	}
	burst := int(math.Ceil(rps))
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Resolver{
		client:        client,
		cache:         cache,
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		logger:        logging.NewComponentLogger(logger, "acoustid"),
		maxAttempts:   opts.MaxAttempts,
		retryDelay:    opts.RetryDelay,
		flightTimeout: opts.FlightTimeout,
		sleep:         opts.Sleep,
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.retryDelay <= 0 {
		r.retryDelay = defaultRetryDelay
	}
	if r.flightTimeout <= 0 {
		r.flightTimeout = defaultFlightTimeout
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	return r, nil
}

// RemoteCalls reports how many requests reached the client.
func (r *Resolver) RemoteCalls() int64 {
	return r.remoteCalls.Load()
}

// Lookup resolves fp to matches ordered by score. An empty slice means the
// service knows no recording for the fingerprint.
func (r *Resolver) Lookup(ctx context.Context, fp fingerprint.Fingerprint) ([]Match, error) {
	if fp.Algorithm != "" && fp.Algorithm != fingerprint.AlgorithmChromaprint {
		return nil, services.Wrap(services.ErrUnsupported, "acoustid", "lookup", "algorithm "+fp.Algorithm+" is not accepted by acoustid", nil)
	}
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	key := cacheKey(fp.Signature)
	if matches, ok := r.cached(key); ok {
		r.logger.DebugContext(ctx, "acoustid cache hit",
			logging.String("cache_key", key[:12]),
			logging.Int("matches", len(matches)),
		)
		return matches, nil
	}

	flight := r.group.DoChan(key, func() (any, error) {
		if matches, ok := r.cached(key); ok {
			return matches, nil
		}
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.flightTimeout)
		defer cancel()
		matches, err := r.fetch(flightCtx, fp)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if err := r.cache.Store(key, matches); err != nil {
				logging.WarnWithContext(r.logger, "acoustid cache write failed", "lookup_cache_write_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check cache_dir permissions"),
					logging.String(logging.FieldImpact, "lookup will be repeated after restart"),
				)
			}
		}
		return matches, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		matches, _ := res.Val.([]Match)
		return cloneMatches(matches), nil
	}
}

func (r *Resolver) cached(key string) ([]Match, bool) {
	if r.cache == nil {
		return nil, false
	}
	matches, ok := r.cache.Lookup(key)
	if !ok {
		return nil, false
	}
	return cloneMatches(matches), true
}

func (r *Resolver) fetch(ctx context.Context, fp fingerprint.Fingerprint) ([]Match, error) {
	duration := int(math.Round(fp.DurationSeconds))
	if duration < 1 {
		duration = 1
	}
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, services.Wrap(services.ErrTimeout, "acoustid", "rate limit wait", "", err)
		}
		r.remoteCalls.Add(1)
		start := time.Now()
		resp, err := r.client.Lookup(ctx, fp.Signature, duration)
		if err == nil {
			matches := Matches(resp)
			r.logger.Debug("acoustid lookup complete",
				logging.Int("matches", len(matches)),
				logging.Int("attempt", attempt),
				logging.Duration("latency", time.Since(start)),
			)
			if matches == nil {
				matches = []Match{}
			}
			return matches, nil
		}
		lastErr = err
		if !services.IsTransient(err) || attempt == r.maxAttempts {
			break
		}
		delay := r.retryDelay
		if hint, ok := services.RetryAfter(err); ok {
			if hint > maxInlineRetryAfter {
				break
			}
			delay = max(delay, hint)
		}
		r.logger.Debug("acoustid lookup retrying",
			logging.Error(err),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
		)
		if err := r.sleep(ctx, delay); err != nil {
			break
		}
	}
	return nil, lastErr
}

func cacheKey(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])
}

func cloneMatches(in []Match) []Match {
	if in == nil {
		return []Match{}
	}
	out := make([]Match, len(in))
	for i, m := range in {
		out[i] = m
		if m.Artists != nil {
			out[i].Artists = append([]string(nil), m.Artists...)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
