// Package worker launches external media and speech-recognition tools.
//
// A worker is an opaque executable invoked with an argument list. Run waits for
// it to exit, captures stdout and stderr (decoded permissively so malformed
// UTF-8 never fails a job), and classifies failures as launch errors, non-zero
// exits, timeouts, or cancellations. Each worker runs in its own process group
// so a timeout or cancellation terminates any helper processes it spawned.
package worker
