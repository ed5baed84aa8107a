// Command tonearm is the command-line front end for the tonearm identification
// daemon.
//
// It resolves single files in-process, submits and inspects jobs through the
// daemon socket (falling back to the database when the daemon is down),
// manages the daemon lifecycle, and maintains the recording catalog and the
// fingerprint lookup cache.
package main
