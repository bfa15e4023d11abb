// Package job defines the transcription job data model shared by the
// supervisor, the transports, and the CLI.
package job

import (
	"fmt"
	"time"
)

// State is a job lifecycle state.
type State string

const (
	StatePending      State = "pending"
	StateExtracting   State = "extracting"
	StateTranscribing State = "transcribing"
	StateSaving       State = "saving"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Stage names used in progress events and logs.
const (
	StageSubmit     = "submit"
	StageExtract    = "extract"
	StageTranscribe = "transcribe"
	StageSave       = "save"
)

// AllStates lists every state in lifecycle order.
func AllStates() []State {
	return []State{
		StatePending,
		StateExtracting,
		StateTranscribing,
		StateSaving,
		StateCompleted,
		StateFailed,
		StateCancelled,
	}
}

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, known := range AllStates() {
		if s == known {
			return true
		}
	}
	return false
}

var forward = map[State]State{
	StatePending:      StateExtracting,
	StateExtracting:   StateTranscribing,
	StateTranscribing: StateSaving,
	StateSaving:       StateCompleted,
}

// CanTransition enforces the job state machine: one step forward, or into
// Failed or Cancelled from any non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	return forward[from] == to
}

// ValidateTransition returns a descriptive error for an illegal edge.
func ValidateTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	return nil
}

// Error is the structured failure recorded on a Failed job. Diagnostic holds
// the worker's own error output verbatim.
type Error struct {
	Stage      string `json:"stage"`
	Kind       string `json:"kind"`
	Diagnostic string `json:"diagnostic"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Diagnostic)
}

// Snapshot is an immutable copy of a job's observable state.
type Snapshot struct {
	ID              string     `json:"id"`
	SourcePath      string     `json:"source_path"`
	State           State      `json:"state"`
	Stage           string     `json:"stage,omitempty"`
	ProgressPercent int        `json:"progress_percent"`
	Message         string     `json:"message,omitempty"`
	Transcript      string     `json:"transcript,omitempty"`
	Error           *Error     `json:"error,omitempty"`
	Warning         string     `json:"warning,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Duration reports how long the job ran, or has been running.
func (s Snapshot) Duration() time.Duration {
	end := time.Now()
	if s.FinishedAt != nil {
		end = *s.FinishedAt
	}
	if s.CreatedAt.IsZero() {
		return 0
	}
	return end.Sub(s.CreatedAt)
}

// ProgressEvent is one ordered notification emitted while a job runs.
type ProgressEvent struct {
	Sequence  uint64    `json:"seq"`
	JobID     string    `json:"job_id"`
	Stage     string    `json:"stage"`
	Percent   int       `json:"progress"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
