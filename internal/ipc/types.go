package ipc

import (
	"vidscribe/internal/api"
	"vidscribe/internal/logging"
)

// SubmitRequest starts a transcription job.
type SubmitRequest struct {
	Path string `json:"path"`
}

// SubmitResponse returns the new job's identifier.
type SubmitResponse struct {
	JobID string `json:"jobId"`
}

// CancelRequest cancels a running job.
type CancelRequest struct {
	JobID string `json:"jobId"`
}

// CancelResponse acknowledges the cancellation request.
type CancelResponse struct {
	Requested bool `json:"requested"`
}

// StateRequest looks up a job by ID.
type StateRequest struct {
	JobID string `json:"jobId"`
}

// StateResponse carries a job snapshot.
type StateResponse struct {
	Job api.Job `json:"job"`
}

// ProgressRequest long-polls for progress events after Since. WaitMillis of
// zero returns immediately.
type ProgressRequest struct {
	JobID      string `json:"jobId"`
	Since      uint64 `json:"since"`
	WaitMillis int    `json:"waitMillis"`
}

// ProgressResponse returns progress events.
type ProgressResponse struct {
	api.ProgressResponse
}

// LastTranscriptRequest requests the most recent persisted transcript.
type LastTranscriptRequest struct{}

// LastTranscriptResponse is empty when nothing has been persisted yet.
type LastTranscriptResponse struct {
	Transcript *api.Transcript `json:"transcript,omitempty"`
}

// StatusRequest requests daemon status.
type StatusRequest struct{}

// StatusResponse reports daemon status.
type StatusResponse struct {
	api.DaemonStatus
	LogPath    string `json:"logPath"`
	APIAddress string `json:"apiAddress,omitempty"`
}

// HistoryRequest lists archived jobs.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse returns archived jobs, newest first.
type HistoryResponse struct {
	Entries []api.HistoryEntry `json:"entries"`
}

// LogTailRequest reads daemon log events.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"waitMillis"`
	JobID      string `json:"jobId,omitempty"`
}

// LogTailResponse returns log events and the next cursor.
type LogTailResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification test result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// StopRequest asks the daemon to stop.
type StopRequest struct{}

// StopResponse acknowledges the stop request.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
