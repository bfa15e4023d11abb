package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vidscribe/internal/services"
)

// Kind classifies why a worker invocation failed.
type Kind int

const (
	// LaunchFailed means the executable could not be started.
	LaunchFailed Kind = iota + 1
	// NonZeroExit means the worker ran and reported failure.
	NonZeroExit
	// TimedOut means the worker exceeded its allotted time and was terminated.
	TimedOut
	// Cancelled means the caller abandoned the invocation and the worker was terminated.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case LaunchFailed:
		return "launch_failed"
	case NonZeroExit:
		return "non_zero_exit"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error describes a failed worker invocation.
type Error struct {
	Kind       Kind
	Executable string
	// Code is the exit status for NonZeroExit, -1 when terminated by a signal.
	Code int
	// Stderr holds the tail of the worker's standard error.
	Stderr  string
	Timeout time.Duration
	Err     error
}

func (e *Error) Error() string {
	name := e.Executable
	switch e.Kind {
	case LaunchFailed:
		return fmt.Sprintf("launch %s: %v", name, e.Err)
	case NonZeroExit:
		msg := fmt.Sprintf("%s exited with code %d", name, e.Code)
		if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
			msg += ": " + stderr
		}
		return msg
	case TimedOut:
		return fmt.Sprintf("%s timed out after %s", name, e.Timeout)
	case Cancelled:
		return fmt.Sprintf("%s cancelled", name)
	default:
		return fmt.Sprintf("%s failed: %v", name, e.Err)
	}
}

// Unwrap exposes both the classification marker and the underlying cause so
// callers can use errors.Is with services markers or context errors.
func (e *Error) Unwrap() []error {
	var marker error
	switch e.Kind {
	case LaunchFailed, NonZeroExit:
		marker = services.ErrExternalTool
	case TimedOut:
		marker = services.ErrTimeout
	case Cancelled:
		marker = context.Canceled
	}
	out := make([]error, 0, 2)
	if marker != nil {
		out = append(out, marker)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}
