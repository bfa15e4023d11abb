// Package api defines wire-format types and converters shared by the HTTP
// API, the IPC server, and the CLI. It translates supervisor snapshots,
// progress events, ledger entries, and dependency checks into DTOs that
// clients can render without importing internal packages.
//
// # Key Types
//
// Job: transport form of a job snapshot, including progress, transcript,
// structured error, and persistence warning.
//
// ProgressEvent/ProgressResponse: ordered progress checkpoints and the
// long-poll envelope carrying the cursor for the next request.
//
// DaemonStatus: runtime information, active and last job, worker availability.
//
// Frame: websocket envelope whose event name for checkpoints is
// "transcription-progress".
//
// # Errors
//
// ErrorKind and HTTPStatus classify supervisor errors for transports, and
// ErrorFromKind rebuilds them on the client side so the CLI can branch with
// errors.Is.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
package api
