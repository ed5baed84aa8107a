// Package logs reads daemon log files for the CLI.
//
// Tail groups lines into entries (a header line plus its indented field
// lines, as written by the console handler; JSON records are one line each),
// replays the last N entries, and optionally follows the file. Following
// survives the daemon restarting and repointing tonearm.log at a new run
// file. JobMatcher narrows output to a single job in either log format.
package logs
