// Package ledger archives finished transcription jobs in SQLite.
//
// Only metadata is recorded (source, outcome, timings, diagnostics); the
// transcript text itself lives in the single-slot transcript store. The
// supervisor writes a row whenever a job reaches a terminal state, the history
// command lists recent rows, and State lookups fall back to the ledger for
// jobs no longer held in memory.
package ledger
