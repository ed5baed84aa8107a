// Package catalog indexes the local recording catalog used to turn tag and
// filename text into canonical recording identifiers.
//
// Recordings live in the queue store. The in-memory index reloads whenever the
// store's catalog revision changes, and Search ranks entries by weighted
// title, artist, and album similarity. Seed files in YAML can be imported to
// populate the catalog from a release listing.
package catalog
