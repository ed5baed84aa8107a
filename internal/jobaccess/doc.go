// Package jobaccess lets CLI commands work with jobs whether or not the
// daemon is running: IPC when the socket answers, the sqlite store otherwise.
package jobaccess
