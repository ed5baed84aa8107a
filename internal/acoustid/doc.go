// Package acoustid resolves fingerprints to recording candidates.
//
// Client wraps the AcoustID lookup endpoint and maps HTTP and API failures
// onto the services error taxonomy. Resolver layers a TTL cache, in-flight
// deduplication keyed by signature, and a request rate limiter on top of the
// client so concurrent jobs holding the same fingerprint cause exactly one
// remote call. LocalMatcher compares in-process spectral fingerprints against
// files that were already identified, and Router picks between the two by
// fingerprint algorithm.
package acoustid
