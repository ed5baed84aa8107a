// Package daemonrun assembles the identification stack from configuration
// and hosts the foreground daemon loop.
//
// Build is shared by the daemon and the one-shot resolve command so both run
// the same engine: decoder, fingerprint generator, lookup routing, catalog
// backed tag and filename sources, and the job runner. Run adds logging, the
// pid file, the single-instance daemon, and the IPC socket on top.
package daemonrun
