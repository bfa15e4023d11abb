package stage

import (
	"errors"
	"time"
)

// Failure kinds recorded on unsuccessful results.
const (
	KindCancelled    = "cancelled"
	KindLaunchFailed = "launch_failed"
	KindNonZeroExit  = "non_zero_exit"
	KindTimedOut     = "timed_out"
	KindEmptyOutput  = "empty_output"
)

// ErrEmptyOutput marks a worker that exited cleanly without usable output.
var ErrEmptyOutput = errors.New("empty output")

// Result is the immutable outcome of one stage.
type Result struct {
	StageName  string
	Succeeded  bool
	Output     string
	Diagnostic string
	Kind       string
	Duration   time.Duration
	// Err carries the classified cause for errors.Is checks; nil on success.
	Err error
}

// Cancelled reports whether the stage stopped because of cancellation.
func (r Result) Cancelled() bool {
	return r.Kind == KindCancelled
}
