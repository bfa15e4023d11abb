package api

import (
	"time"

	"vidscribe/internal/deps"
	"vidscribe/internal/job"
	"vidscribe/internal/ledger"
	"vidscribe/internal/supervisor"
	"vidscribe/internal/transcripts"
)

// FromSnapshot converts a job snapshot to its API representation.
func FromSnapshot(snap job.Snapshot) Job {
	dto := Job{
		ID:         snap.ID,
		SourcePath: snap.SourcePath,
		State:      string(snap.State),
		Terminal:   snap.State.Terminal(),
		Progress: JobProgress{
			Stage:   snap.Stage,
			Percent: snap.ProgressPercent,
			Message: snap.Message,
		},
		Transcript:      snap.Transcript,
		Warning:         snap.Warning,
		CreatedAt:       formatTime(snap.CreatedAt),
		UpdatedAt:       formatTime(snap.UpdatedAt),
		DurationSeconds: snap.Duration().Seconds(),
	}
	if snap.FinishedAt != nil {
		dto.FinishedAt = formatTime(*snap.FinishedAt)
	}
	if snap.Error != nil {
		dto.Error = &JobError{
			Stage:      snap.Error.Stage,
			Kind:       snap.Error.Kind,
			Diagnostic: snap.Error.Diagnostic,
		}
	}
	return dto
}

func fromSnapshotPtr(snap *job.Snapshot) *Job {
	if snap == nil {
		return nil
	}
	dto := FromSnapshot(*snap)
	return &dto
}

// FromProgressEvent converts a single progress event.
func FromProgressEvent(evt job.ProgressEvent) ProgressEvent {
	return ProgressEvent{
		Sequence:  evt.Sequence,
		JobID:     evt.JobID,
		Stage:     evt.Stage,
		Progress:  evt.Percent,
		Message:   evt.Message,
		Timestamp: formatTime(evt.Timestamp),
	}
}

// NewProgressResponse builds a long-poll response; since is echoed as the
// cursor when no events arrived.
func NewProgressResponse(events []job.ProgressEvent, done bool, since uint64) ProgressResponse {
	resp := ProgressResponse{Events: make([]ProgressEvent, 0, len(events)), Done: done, Next: since}
	for _, evt := range events {
		resp.Events = append(resp.Events, FromProgressEvent(evt))
		resp.Next = evt.Sequence
	}
	return resp
}

// FromTranscript converts the persisted transcript; nil stays nil.
func FromTranscript(t *transcripts.Transcript) *Transcript {
	if t == nil {
		return nil
	}
	return &Transcript{
		JobID:      t.JobID,
		Text:       t.Text,
		SourcePath: t.SourcePath,
		CreatedAt:  formatTime(t.CreatedAt),
	}
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Path:        s.Path,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Version:     s.Version,
			Detail:      s.Detail,
		})
	}
	return out
}

// FromSupervisorStatus fills the job and dependency portion of DaemonStatus.
func FromSupervisorStatus(status supervisor.Status) DaemonStatus {
	return DaemonStatus{
		TranscriptPath: status.Transcript,
		ScratchRoot:    status.ScratchRoot,
		Active:         fromSnapshotPtr(status.Active),
		LastJob:        fromSnapshotPtr(status.LastJob),
		Dependencies:   FromDependencies(status.Workers),
	}
}

// FromLedgerEntries converts archived jobs, preserving order.
func FromLedgerEntries(entries []ledger.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, HistoryEntry{
			Job:             FromSnapshot(entry.Snapshot),
			TranscriptChars: entry.TranscriptChars,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses a timestamp produced by this package.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
