package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidscribe/internal/job"
	"vidscribe/internal/logging"
	"vidscribe/internal/progress"
	"vidscribe/internal/services"
	"vidscribe/internal/transcripts"
	"vidscribe/internal/workspace"
)

// Checkpoint messages and percentages emitted before each stage.
const (
	msgPreparing    = "Preparing video for processing..."
	msgExtracting   = "Extracting audio..."
	msgTranscribing = "Transcribing audio..."
	msgSaving       = "Saving transcript..."
	msgComplete     = "Transcription complete"

	pctPreparing    = 0
	pctExtracting   = 25
	pctTranscribing = 75
	pctSaving       = 90
	pctComplete     = 100
)

// Submit validates sourcePath and starts a new job. It fails with ErrBusy
// while another job is active, leaving that job untouched.
func (s *Supervisor) Submit(sourcePath string) (string, error) {
	source, err := validateSource(sourcePath)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrShuttingDown
	}
	if s.active != "" {
		active := s.active
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrBusy, active)
	}
	if err := s.workspaces.Acquire(); err != nil {
		s.mu.Unlock()
		if errors.Is(err, workspace.ErrLocked) {
			return "", fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return "", services.Wrap(services.ErrConfiguration, job.StageSubmit, "lock scratch", s.workspaces.Root(), err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	jobCtx, cancel := context.WithCancel(services.WithJobID(s.baseCtx, id))
	rec := &record{
		snap: job.Snapshot{
			ID:              id,
			SourcePath:      source,
			State:           job.StatePending,
			Stage:           job.StageSubmit,
			ProgressPercent: pctPreparing,
			Message:         msgPreparing,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		cancel: cancel,
	}
	s.jobs[id] = rec
	s.order = append(s.order, id)
	s.active = id
	s.pruneLocked()
	s.progress.Open(id)
	s.publish(id, job.StageSubmit, pctPreparing, msgPreparing)
	s.wg.Add(1)
	s.mu.Unlock()

	logging.WithContext(jobCtx, s.logger).Info(
		"job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String("source_path", source),
	)

	go s.run(jobCtx, id, source)
	return id, nil
}

// Cancel requests that job id stop. The running worker is interrupted and no
// later stage starts; the job reaches Cancelled once its runner unwinds.
// Once the transcript save has begun the job is past cancelling and
// ErrAlreadyTerminal is returned.
func (s *Supervisor) Cancel(id string) error {
	s.mu.Lock()
	rec, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		if snap, found := s.archived(id); found && snap.State.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, snap.State)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.snap.State.Terminal() {
		state := rec.snap.State
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, state)
	}
	if rec.committed {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is saving its transcript", ErrAlreadyTerminal, id)
	}
	rec.cancelRequested = true
	cancel := rec.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Info("job cancel requested",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldEventType, "job_cancel_requested"),
	)
	return nil
}

// State returns the current snapshot for id. Jobs no longer held in memory
// are read back from the ledger.
func (s *Supervisor) State(id string) (job.Snapshot, error) {
	s.mu.Lock()
	rec, ok := s.jobs[id]
	var snap job.Snapshot
	if ok {
		snap = rec.snap
	}
	s.mu.Unlock()
	if ok {
		return snap, nil
	}
	if archived, found := s.archived(id); found {
		return archived, nil
	}
	return job.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Active returns the active job's snapshot, if any.
func (s *Supervisor) Active() (job.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return job.Snapshot{}, false
	}
	return s.jobs[s.active].snap, true
}

// Subscribe returns an iterator over the job's progress events from the
// first checkpoint. It ends once the job is terminal.
func (s *Supervisor) Subscribe(id string) (*progress.Subscription, error) {
	sub, err := s.progress.Subscribe(id)
	if errors.Is(err, progress.ErrUnknownJob) {
		return nil, fmt.Errorf("%w: no progress stream for %s", ErrNotFound, id)
	}
	return sub, err
}

// Progress long-polls the job's events with sequence greater than since.
func (s *Supervisor) Progress(ctx context.Context, id string, since uint64, wait bool) ([]job.ProgressEvent, bool, error) {
	events, done, err := s.progress.Fetch(ctx, id, since, wait)
	if errors.Is(err, progress.ErrUnknownJob) {
		return nil, false, fmt.Errorf("%w: no progress stream for %s", ErrNotFound, id)
	}
	return events, done, err
}

// LastTranscript returns the most recently persisted transcript, or nil when
// no job has completed yet.
func (s *Supervisor) LastTranscript() (*transcripts.Transcript, error) {
	return s.transcripts.Load()
}

func (s *Supervisor) archived(id string) (job.Snapshot, bool) {
	if s.ledger == nil || strings.TrimSpace(id) == "" {
		return job.Snapshot{}, false
	}
	entry, err := s.ledger.Get(context.Background(), id)
	if err != nil {
		s.logger.Warn("ledger lookup failed",
			logging.String(logging.FieldJobID, id),
			logging.Error(err),
		)
		return job.Snapshot{}, false
	}
	if entry == nil {
		return job.Snapshot{}, false
	}
	snap := entry.Snapshot
	if snap.State == job.StateCompleted && snap.Transcript == "" {
		// A completed job must carry its text; the transcript slot is the only
		// other place it can come from.
		saved, err := s.transcripts.Load()
		if err != nil || saved == nil || saved.JobID != id {
			return job.Snapshot{}, false
		}
		snap.Transcript = saved.Text
	}
	return snap, true
}

func (s *Supervisor) publish(id, stageName string, percent int, message string) {
	s.progress.Publish(job.ProgressEvent{
		JobID:   id,
		Stage:   stageName,
		Percent: percent,
		Message: message,
	})
}

// pruneLocked drops the oldest finished jobs beyond the history limit.
func (s *Supervisor) pruneLocked() {
	excess := len(s.order) - s.history
	if excess <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		rec := s.jobs[id]
		if excess > 0 && rec != nil && rec.snap.State.Terminal() && id != s.last {
			delete(s.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func validateSource(sourcePath string) (string, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return "", fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidPath, abs)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrInvalidPath, abs)
	}
	return abs, nil
}
