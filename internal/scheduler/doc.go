// Package scheduler owns the job registry and runs identification attempts
// under a bounded pool of workers.
//
// Jobs are persisted through queue.Store on every transition; the scheduler
// keeps the active ones in memory (job id to job, file id to active job, a
// ready queue and a set of delayed retries). A dispatcher goroutine promotes
// due retries and hands ready jobs to workers whenever one of the
// max_concurrent_jobs permits is free. Transient failures are retried with
// exponential backoff until max_retries is exhausted; permanent failures
// finalize the job immediately. Time is read through an injected Clock so
// tests never sleep through backoff.
//
// A periodic rescan re-submits files whose latest result is unresolved or
// low confidence, plus library files that have never been identified.
package scheduler
