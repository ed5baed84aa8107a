// Package pipeline binds the matching engine to the job store: one call to
// Runner.Run is one attempt of one job.
//
// A run checks the file still exists, probes the container so unreadable
// files fail permanently before any strategy runs, resolves the file, and
// persists the result. When the fingerprint step degraded transiently the
// persisted result stands but the run reports a transient error so the
// scheduler retries for a higher-precedence answer.
package pipeline
