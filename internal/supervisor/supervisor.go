package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"vidscribe/internal/config"
	"vidscribe/internal/job"
	"vidscribe/internal/ledger"
	"vidscribe/internal/logging"
	"vidscribe/internal/notifications"
	"vidscribe/internal/progress"
	"vidscribe/internal/stage"
	"vidscribe/internal/transcripts"
	"vidscribe/internal/worker"
	"vidscribe/internal/workspace"
)

var (
	// ErrBusy rejects a submission while another job is active.
	ErrBusy = errors.New("a job is already active")
	// ErrInvalidPath rejects a source that is missing or not a regular file.
	ErrInvalidPath = errors.New("invalid source path")
	// ErrNotFound reports an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyTerminal rejects cancelling a finished job.
	ErrAlreadyTerminal = errors.New("job already finished")
	// ErrShuttingDown rejects submissions after Shutdown.
	ErrShuttingDown = errors.New("supervisor is shutting down")
)

const defaultHistoryLimit = 32

// Supervisor coordinates transcription jobs.
type Supervisor struct {
	cfg         *config.Config
	logger      *slog.Logger
	runner      worker.Runner
	executor    *stage.Executor
	progress    *progress.Channel
	transcripts *transcripts.Store
	ledger      *ledger.Store
	notifier    notifications.Service
	workspaces  *workspace.Manager
	history     int
	beforeSave  func(id string)

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*record
	order  []string
	active string
	last   string
	closed bool
}

type record struct {
	snap            job.Snapshot
	cancel          context.CancelFunc
	cancelRequested bool
	// committed is set once the transcript save begins; cancels are refused
	// from then on.
	committed bool
}

// Option configures optional Supervisor collaborators.
type Option func(*Supervisor)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunner replaces the worker runner used by every stage.
func WithRunner(runner worker.Runner) Option {
	return func(s *Supervisor) {
		s.runner = runner
	}
}

// WithLedger archives terminal snapshots in store.
func WithLedger(store *ledger.Store) Option {
	return func(s *Supervisor) {
		s.ledger = store
	}
}

// WithNotifier replaces the notification service built from config.
func WithNotifier(notifier notifications.Service) Option {
	return func(s *Supervisor) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithProgressChannel shares an existing progress channel.
func WithProgressChannel(ch *progress.Channel) Option {
	return func(s *Supervisor) {
		if ch != nil {
			s.progress = ch
		}
	}
}

// WithHistoryLimit bounds how many finished jobs stay in memory.
func WithHistoryLimit(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.history = n
		}
	}
}

// New constructs a supervisor for cfg.
func New(cfg *config.Config, opts ...Option) *Supervisor {
	baseCtx, stop := context.WithCancel(context.Background())
	s := &Supervisor{
		cfg:         cfg,
		logger:      logging.NewNop(),
		transcripts: transcripts.NewStore(cfg.TranscriptPath()),
		notifier:    notifications.NewService(cfg),
		history:     defaultHistoryLimit,
		baseCtx:     baseCtx,
		stop:        stop,
		jobs:        make(map[string]*record),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.NewComponentLogger(s.logger, "supervisor")
	s.executor = stage.NewExecutor(s.runner, s.logger)
	if s.progress == nil {
		s.progress = progress.NewChannel(s.history)
	}
	s.workspaces = workspace.NewManager(cfg.Paths.ScratchDir, s.logger)
	return s
}
