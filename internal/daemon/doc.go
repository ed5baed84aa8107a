// Package daemon coordinates the long-running tonearm process.
//
// It wires configuration, the job store, and the scheduler into a single
// lifecycle with flock-based locking to prevent multiple instances. The
// daemon exposes job submission, inspection, cancellation, and rescans to the
// IPC layer, and reports dependency health alongside scheduler statistics.
//
// Keep orchestration here: identification itself lives in the matching and
// pipeline packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
