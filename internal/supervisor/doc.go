// Package supervisor owns the transcription job lifecycle.
//
// A Supervisor accepts one active job at a time, drives it through the
// extract, transcribe, and save stages on a background goroutine, and keeps a
// snapshot of every recent job that callers can read at any moment without
// waiting on a running worker. Progress checkpoints are published to a
// progress.Channel; terminal snapshots are archived in the job ledger and
// announced through the notifications service.
//
// Cancelling a job interrupts its running worker as well as any stage that
// has not started yet.
package supervisor
