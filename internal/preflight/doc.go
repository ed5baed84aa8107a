// Package preflight provides readiness checks for the filesystem paths,
// external binaries, and the AcoustID service that tonearm depends on.
//
// The daemon runs RunAll at startup and logs every failing check; the CLI
// "tonearm status" command renders the same results alongside the daemon
// state.
package preflight
