// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Request and response types wrap the DTOs from package api so the socket and
// the HTTP surface report jobs identically. Errors cross the socket as
// "kind: message" strings; the client turns them back into values that match
// the supervisor sentinels with errors.Is.
package ipc
