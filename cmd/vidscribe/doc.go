// Package main hosts the vidscribe CLI.
//
// Commands either run a transcription in-process (transcribe) or talk to the
// background daemon over its Unix socket. Read-only commands such as status,
// last, and history fall back to the files on disk when the daemon is not
// running.
package main
