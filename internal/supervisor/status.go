package supervisor

import (
	"context"
	"time"

	"vidscribe/internal/deps"
	"vidscribe/internal/job"
	"vidscribe/internal/logging"
	"vidscribe/internal/preflight"
	"vidscribe/internal/workspace"
)

// Status summarises the supervisor for status commands.
type Status struct {
	Active      *job.Snapshot `json:"active,omitempty"`
	LastJob     *job.Snapshot `json:"last_job,omitempty"`
	ScratchRoot string        `json:"scratch_root"`
	Transcript  string        `json:"transcript_path"`
	Workers     []deps.Status `json:"workers"`
}

// Status returns the active job, the most recently finished job, and the
// availability of the worker binaries.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	summary := Status{
		ScratchRoot: s.workspaces.Root(),
		Transcript:  s.transcripts.Path(),
	}
	if rec, ok := s.jobs[s.active]; ok {
		snap := rec.snap
		summary.Active = &snap
	}
	if rec, ok := s.jobs[s.last]; ok {
		snap := rec.snap
		summary.LastJob = &snap
	}
	s.mu.Unlock()

	summary.Workers = preflight.CheckSystemDeps(s.cfg)
	return summary
}

// CleanWorkspaces removes job workspaces older than the configured age,
// skipping the active job.
func (s *Supervisor) CleanWorkspaces() workspace.CleanStaleResult {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	maxAge := time.Duration(s.cfg.Jobs.WorkspaceMaxAgeHours) * time.Hour
	result := s.workspaces.CleanStale(maxAge, active)
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		s.logger.Info("stale workspaces cleaned",
			logging.String(logging.FieldEventType, "workspace_cleanup"),
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)
	}
	return result
}

// Wait blocks until every job runner has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting jobs, cancels the active one, and waits for its
// runner to finish or ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
