package supervisor

import (
	"context"
	"log/slog"
	"time"

	"vidscribe/internal/job"
	"vidscribe/internal/logging"
)

const followUpTimeout = 30 * time.Second

func (s *Supervisor) logOutcome(logger *slog.Logger, snap job.Snapshot) {
	switch snap.State {
	case job.StateCompleted:
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_completed"),
			logging.Duration("duration", snap.Duration()),
			logging.Int("transcript_chars", len([]rune(snap.Transcript))),
			logging.Bool("saved", snap.Warning == ""),
		)
	case job.StateCancelled:
		logger.Info("job cancelled",
			logging.String(logging.FieldEventType, "job_cancelled"),
			logging.String(logging.FieldStage, snap.Stage),
			logging.Duration("duration", snap.Duration()),
		)
	case job.StateFailed:
		attrs := []logging.Attr{
			logging.Duration("duration", snap.Duration()),
			logging.String(logging.FieldImpact, "no transcript was produced for this source"),
		}
		if snap.Error != nil {
			attrs = append(attrs,
				logging.String("failed_stage", snap.Error.Stage),
				logging.String("failure_kind", snap.Error.Kind),
				logging.String("diagnostic", snap.Error.Diagnostic),
			)
		}
		logging.ErrorWithContext(logger, "job failed", "job_failed", attrs...)
	}
}

// archive records the terminal snapshot in the ledger when one is configured.
func (s *Supervisor) archive(ctx context.Context, logger *slog.Logger, snap job.Snapshot) {
	if s.ledger == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
	defer cancel()
	if err := s.ledger.Record(recordCtx, snap); err != nil {
		logging.WarnWithContext(logger, "job ledger write failed", "ledger_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that jobs.db under state_dir is writable"),
			logging.String(logging.FieldImpact, "job will be missing from vidscribe history"),
		)
	}
}

func (s *Supervisor) notify(ctx context.Context, logger *slog.Logger, snap job.Snapshot) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
	defer cancel()

	var err error
	switch snap.State {
	case job.StateCompleted:
		err = s.notifier.NotifyJobCompleted(notifyCtx, snap)
	case job.StateFailed:
		err = s.notifier.NotifyJobFailed(notifyCtx, snap)
	case job.StateCancelled:
		err = s.notifier.NotifyJobCancelled(notifyCtx, snap)
	}
	if err != nil {
		logger.Warn("notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check ntfy_topic and network access"),
		)
	}
}
