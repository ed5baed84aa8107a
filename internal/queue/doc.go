// Package queue persists identification jobs and their outputs in SQLite.
//
// The Store manages database connections, embedded migrations, and the
// tables the rest of the system shares: jobs with their attempt history, the
// fingerprint computed for each file, the latest match result per file, and
// the local recording catalog. A partial unique index guarantees at most one
// pending, running, or retrying job per file even across processes.
//
// Treat this package as the single source of truth for job status semantics;
// when you add new statuses or columns, add a numbered migration under
// migrations/ rather than editing an applied one.
package queue
