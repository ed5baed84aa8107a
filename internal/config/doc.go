// Package config loads, normalizes, and validates tonearm configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ACOUSTID_API_KEY. The Config type centralizes every knob the daemon and CLI
// need: matching thresholds, scheduler bounds, decoder limits, and the
// directories holding the database, caches, and logs.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
