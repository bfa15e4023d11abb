// Package logs reads the daemon's log file directly. The CLI falls back to it
// when no daemon is listening, so `vidscribe logs` still shows the last run.
package logs
