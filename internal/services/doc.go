// Package services defines shared utilities consumed by the identification
// strategies, the job runner, and the scheduler.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, file IDs, strategies, attempts, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the transient versus
//     permanent classification the scheduler uses to decide on retries.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
