package acoustid

import (
	"context"

	"tonearm/internal/fingerprint"
	"tonearm/internal/services"
)

// Lookuper resolves a fingerprint to recording matches.
type Lookuper interface {
	Lookup(ctx context.Context, fp fingerprint.Fingerprint) ([]Match, error)
}

// Router sends chromaprint fingerprints to the remote resolver and spectral
// fingerprints to the local matcher.
type Router struct {
	Remote Lookuper
	Local  Lookuper
}

// Lookup dispatches fp by algorithm.
func (r *Router) Lookup(ctx context.Context, fp fingerprint.Fingerprint) ([]Match, error) {
	switch fp.Algorithm {
	case fingerprint.AlgorithmChromaprint, "":
		if r.Remote == nil {
			return nil, services.Wrap(services.ErrUnsupported, "acoustid", "lookup", "no api key configured", nil)
		}
		return r.Remote.Lookup(ctx, fp)
	case fingerprint.AlgorithmSpectral:
		if r.Local == nil {
			return nil, services.Wrap(services.ErrUnsupported, "acoustid", "lookup", "local matching disabled", nil)
		}
		return r.Local.Lookup(ctx, fp)
	default:
		return nil, services.Wrap(services.ErrUnsupported, "acoustid", "lookup", "unknown algorithm "+fp.Algorithm, nil)
	}
}

var (
	_ Lookuper = (*Resolver)(nil)
	_ Lookuper = (*LocalMatcher)(nil)
	_ Lookuper = (*Router)(nil)
)
