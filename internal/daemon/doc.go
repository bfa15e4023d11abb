// Package daemon coordinates the long-running vidscribe process.
//
// It wires configuration, the job supervisor, the job ledger, and the log
// stream hub into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon also owns the optional HTTP API, which
// mirrors the IPC surface for remote clients and streams job progress over
// websockets.
//
// Keep orchestration logic here: pipeline behaviour lives in the supervisor
// while the daemon focuses on startup, shutdown, and transport glue.
package daemon
