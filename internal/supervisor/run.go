package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"vidscribe/internal/job"
	"vidscribe/internal/logging"
	"vidscribe/internal/stage"
	"vidscribe/internal/transcripts"
)

// run drives one job through its stages. It is the only writer of the job's
// state after submission.
func (s *Supervisor) run(ctx context.Context, id, source string) {
	defer s.wg.Done()
	logger := logging.WithContext(ctx, s.logger)

	dir, err := s.workspaces.Create(id)
	if err != nil {
		s.fail(ctx, id, &job.Error{Stage: job.StageSubmit, Kind: "workspace", Diagnostic: err.Error()})
		return
	}
	audioPath := filepath.Join(dir, s.cfg.Extractor.OutputName)

	if !s.advance(ctx, id, job.StateExtracting, job.StageExtract, pctExtracting, msgExtracting) {
		return
	}
	extracted := s.executor.Execute(ctx, stage.FromWorker(job.StageExtract, s.cfg.Extractor, source, audioPath, dir))
	if !s.stageSucceeded(ctx, id, extracted) {
		return
	}

	if !s.advance(ctx, id, job.StateTranscribing, job.StageTranscribe, pctTranscribing, msgTranscribing) {
		return
	}
	transcribed := s.executor.Execute(ctx, stage.FromWorker(job.StageTranscribe, s.cfg.Transcriber, extracted.Output, "", dir))
	if !s.stageSucceeded(ctx, id, transcribed) {
		return
	}

	if !s.advance(ctx, id, job.StateSaving, job.StageSave, pctSaving, msgSaving) {
		return
	}
	if !s.commit(ctx, id) {
		return
	}
	var warning string
	err = s.transcripts.Save(transcripts.Transcript{
		JobID:      id,
		Text:       transcribed.Output,
		SourcePath: source,
	})
	if err != nil {
		if s.cfg.Jobs.PersistenceRequired {
			s.fail(ctx, id, &job.Error{Stage: job.StageSave, Kind: "persistence_failed", Diagnostic: err.Error()})
			return
		}
		warning = fmt.Sprintf("transcript not saved: %v", err)
		logging.WarnWithContext(logger, "transcript save failed", "transcript_save_failed",
			logging.String("path", s.transcripts.Path()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that state_dir is writable"),
			logging.String(logging.FieldImpact, "job completes but vidscribe last will not return this transcript"),
		)
	}

	s.complete(ctx, id, transcribed.Output, warning)
}

// advance records the transition into the next stage and emits its
// checkpoint. It returns false when the job was cancelled instead.
func (s *Supervisor) advance(ctx context.Context, id string, to job.State, stageName string, percent int, message string) bool {
	s.mu.Lock()
	rec := s.jobs[id]
	if rec.cancelRequested || ctx.Err() != nil {
		s.mu.Unlock()
		s.finish(ctx, id, job.StateCancelled, func(*job.Snapshot) {})
		return false
	}
	if err := job.ValidateTransition(rec.snap.State, to); err != nil {
		s.mu.Unlock()
		s.fail(ctx, id, &job.Error{Stage: stageName, Kind: "internal", Diagnostic: err.Error()})
		return false
	}
	rec.snap.State = to
	rec.snap.Stage = stageName
	rec.snap.ProgressPercent = percent
	rec.snap.Message = message
	rec.snap.UpdatedAt = time.Now().UTC()
	s.publish(id, stageName, percent, message)
	s.mu.Unlock()
	return true
}

// commit marks the job as past cancelling. It returns false when a cancel
// landed after the Saving checkpoint.
func (s *Supervisor) commit(ctx context.Context, id string) bool {
	s.mu.Lock()
	rec := s.jobs[id]
	if rec.cancelRequested || ctx.Err() != nil {
		s.mu.Unlock()
		s.finish(ctx, id, job.StateCancelled, func(*job.Snapshot) {})
		return false
	}
	rec.committed = true
	s.mu.Unlock()
	if s.beforeSave != nil {
		s.beforeSave(id)
	}
	return true
}

func (s *Supervisor) stageSucceeded(ctx context.Context, id string, result stage.Result) bool {
	if result.Succeeded {
		return true
	}
	s.mu.Lock()
	cancelled := s.jobs[id].cancelRequested
	s.mu.Unlock()
	if cancelled || result.Cancelled() {
		s.finish(ctx, id, job.StateCancelled, func(*job.Snapshot) {})
		return false
	}
	s.fail(ctx, id, &job.Error{Stage: result.StageName, Kind: result.Kind, Diagnostic: result.Diagnostic})
	return false
}

func (s *Supervisor) fail(ctx context.Context, id string, jobErr *job.Error) {
	s.finish(ctx, id, job.StateFailed, func(snap *job.Snapshot) {
		snap.Error = jobErr
	})
}

func (s *Supervisor) complete(ctx context.Context, id, text, warning string) {
	s.finish(ctx, id, job.StateCompleted, func(snap *job.Snapshot) {
		snap.Transcript = text
		snap.Warning = warning
		snap.Stage = job.StageSave
		snap.ProgressPercent = pctComplete
		snap.Message = msgComplete
	})
}

// finish moves the job to a terminal state, frees the active slot, and then
// performs the slow follow-ups outside the lock.
func (s *Supervisor) finish(ctx context.Context, id string, to job.State, apply func(*job.Snapshot)) {
	logger := logging.WithContext(ctx, s.logger)

	if !s.cfg.Jobs.KeepWorkspace {
		if err := s.workspaces.Remove(id); err != nil {
			logger.Warn("workspace cleanup failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the directory under scratch_dir by hand"),
			)
		}
	}

	s.mu.Lock()
	rec := s.jobs[id]
	if err := job.ValidateTransition(rec.snap.State, to); err != nil {
		s.mu.Unlock()
		logger.Error("terminal transition rejected", logging.Error(err))
		return
	}
	now := time.Now().UTC()
	rec.snap.State = to
	rec.snap.UpdatedAt = now
	rec.snap.FinishedAt = &now
	apply(&rec.snap)
	if to == job.StateCompleted {
		s.publish(id, job.StageSave, pctComplete, msgComplete)
	}
	snap := rec.snap
	rec.cancel()
	s.active = ""
	s.last = id
	s.workspaces.Release()
	s.mu.Unlock()

	s.progress.Close(id)
	s.logOutcome(logger, snap)
	s.archive(ctx, logger, snap)
	s.notify(ctx, logger, snap)
}
