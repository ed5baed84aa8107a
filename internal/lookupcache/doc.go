// Package lookupcache provides a TTL cache for remote lookup results.
//
// Entries are keyed by an opaque string (the AcoustID resolver uses a digest
// of the fingerprint signature) and expire after a fixed TTL measured with an
// injectable clock. Empty results are cached like any other value so repeated
// misses do not reach the network.
//
// # Storage
//
// When a path is configured the cache is mirrored to a JSON file (default:
// ~/.cache/tonearm/acoustid_cache.json) and reloaded on start. Without a path
// the cache lives only in memory.
//
// CLI commands for inspection and management:
//
//	tonearm cache stats    # Entry counts and hit ratio
//	tonearm cache clear    # Remove all entries
package lookupcache
