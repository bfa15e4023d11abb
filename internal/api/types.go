package api

import "vidscribe/internal/logging"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Websocket event names.
const (
	EventTranscriptionProgress = "transcription-progress"
	EventJobFinished           = "job-finished"
)

// Job describes a transcription job in a transport-friendly format.
type Job struct {
	ID              string      `json:"id"`
	SourcePath      string      `json:"sourcePath"`
	State           string      `json:"state"`
	Terminal        bool        `json:"terminal"`
	Progress        JobProgress `json:"progress"`
	Transcript      string      `json:"transcript,omitempty"`
	Error           *JobError   `json:"error,omitempty"`
	Warning         string      `json:"warning,omitempty"`
	CreatedAt       string      `json:"createdAt,omitempty"`
	UpdatedAt       string      `json:"updatedAt,omitempty"`
	FinishedAt      string      `json:"finishedAt,omitempty"`
	DurationSeconds float64     `json:"durationSeconds"`
}

// JobProgress captures the latest checkpoint of a job.
type JobProgress struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// JobError is the structured failure of a Failed job.
type JobError struct {
	Stage      string `json:"stage"`
	Kind       string `json:"kind"`
	Diagnostic string `json:"diagnostic"`
}

// ProgressEvent is one ordered checkpoint.
type ProgressEvent struct {
	Sequence  uint64 `json:"seq"`
	JobID     string `json:"jobId"`
	Stage     string `json:"stage"`
	Progress  int    `json:"progress"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ProgressResponse is returned by progress long-poll requests. Next is the
// cursor to pass as "since" on the following request.
type ProgressResponse struct {
	Events []ProgressEvent `json:"events"`
	Done   bool            `json:"done"`
	Next   uint64          `json:"next"`
}

// Transcript is the persisted artifact.
type Transcript struct {
	JobID      string `json:"jobId"`
	Text       string `json:"text"`
	SourcePath string `json:"sourcePath,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// DependencyStatus captures availability of an external worker binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	SocketPath     string             `json:"socketPath,omitempty"`
	LockFilePath   string             `json:"lockFilePath,omitempty"`
	LedgerPath     string             `json:"ledgerPath,omitempty"`
	TranscriptPath string             `json:"transcriptPath"`
	ScratchRoot    string             `json:"scratchRoot"`
	Active         *Job               `json:"active,omitempty"`
	LastJob        *Job               `json:"lastJob,omitempty"`
	Dependencies   []DependencyStatus `json:"dependencies"`
}

// HistoryEntry is one archived job from the ledger.
type HistoryEntry struct {
	Job             Job `json:"job"`
	TranscriptChars int `json:"transcriptChars"`
}

// SubmitRequest starts a job for Path.
type SubmitRequest struct {
	Path string `json:"path"`
}

// SubmitResponse carries the new job id.
type SubmitResponse struct {
	JobID string `json:"jobId"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// TranscriptResponse wraps the last transcript; Transcript is nil when no job
// has completed yet.
type TranscriptResponse struct {
	Transcript *Transcript `json:"transcript"`
}

// ErrorResponse is the body of every non-2xx HTTP response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Frame is a websocket message.
type Frame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// LogStreamResponse carries log events and the cursor for the next request.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
