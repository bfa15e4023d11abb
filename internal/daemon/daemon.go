package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vidscribe/internal/api"
	"vidscribe/internal/config"
	"vidscribe/internal/job"
	"vidscribe/internal/ledger"
	"vidscribe/internal/logging"
	"vidscribe/internal/notifications"
	"vidscribe/internal/preflight"
	"vidscribe/internal/progress"
	"vidscribe/internal/supervisor"
	"vidscribe/internal/transcripts"
)

const (
	shutdownTimeout = 15 * time.Second
	// ledgerKeep bounds the job archive; older rows are pruned at startup.
	ledgerKeep = 1000
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	supervisor *supervisor.Supervisor
	ledger     *ledger.Store
	logHub     *logging.StreamHub
	logPath    string

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Supervisor   supervisor.Status
	LedgerPath   string
	LockFilePath string
	SocketPath   string
}

// New constructs a daemon with initialized dependencies. store and hub may be nil.
func New(cfg *config.Config, sup *supervisor.Supervisor, store *ledger.Store, logger *slog.Logger, hub *logging.StreamHub) (*Daemon, error) {
	if cfg == nil || sup == nil || logger == nil {
		return nil, errors.New("daemon requires config, supervisor, and logger")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		supervisor: sup,
		ledger:     store,
		logHub:     hub,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		done:       make(chan struct{}),
	}
	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, runs startup checks, and starts the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidscribe daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.runStartupChecks(d.ctx)
	d.supervisor.CleanWorkspaces()

	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("vidscribe daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop cancels the active job, stops the API, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.supervisor.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("active job did not stop in time",
			logging.Error(err),
			logging.String(logging.FieldEventType, "shutdown_timeout"),
		)
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.doneOnce.Do(func() { close(d.done) })
	d.logger.Info("vidscribe daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Done is closed once the daemon has been stopped.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.ledger != nil {
		return d.ledger.Close()
	}
	return nil
}

func (d *Daemon) runStartupChecks(ctx context.Context) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "startup check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run vidscribe deps for details"),
			logging.String(logging.FieldImpact, "jobs that need this check will fail"),
		)
	}

	if d.ledger == nil {
		return
	}
	removed, err := d.ledger.Prune(ctx, ledgerKeep)
	if err != nil {
		logging.WarnWithContext(d.logger, "job ledger prune failed", "ledger_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check "+d.ledger.Path()),
			logging.String(logging.FieldImpact, "history keeps growing until the next successful prune"),
		)
		return
	}
	if removed > 0 {
		d.logger.Info("pruned job ledger",
			logging.Int64("removed", removed),
			logging.Int("kept", ledgerKeep),
			logging.String(logging.FieldEventType, "ledger_pruned"),
		)
	}
}

// Submit starts a job for sourcePath.
func (d *Daemon) Submit(sourcePath string) (string, error) {
	return d.supervisor.Submit(sourcePath)
}

// Cancel cancels job id.
func (d *Daemon) Cancel(id string) error {
	return d.supervisor.Cancel(id)
}

// Job returns the snapshot of job id.
func (d *Daemon) Job(id string) (job.Snapshot, error) {
	return d.supervisor.State(id)
}

// Subscribe follows job id's progress stream.
func (d *Daemon) Subscribe(id string) (*progress.Subscription, error) {
	return d.supervisor.Subscribe(id)
}

// Progress long-polls job id's progress events.
func (d *Daemon) Progress(ctx context.Context, id string, since uint64, wait bool) ([]job.ProgressEvent, bool, error) {
	return d.supervisor.Progress(ctx, id, since, wait)
}

// LastTranscript returns the most recently persisted transcript.
func (d *Daemon) LastTranscript() (*transcripts.Transcript, error) {
	return d.supervisor.LastTranscript()
}

// History lists archived jobs, newest first.
func (d *Daemon) History(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if d.ledger == nil {
		return nil, errors.New("job ledger unavailable")
	}
	return d.ledger.List(ctx, limit)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogQuery selects daemon log events. Since zero without Follow returns the
// most recent Limit events.
type LogQuery struct {
	Since  uint64
	Limit  int
	Follow bool
	JobID  string
}

// Logs reads from the in-memory log stream. A follow that times out returns
// an empty batch rather than an error.
func (d *Daemon) Logs(ctx context.Context, q LogQuery) (api.LogStreamResponse, error) {
	var resp api.LogStreamResponse
	if d.logHub == nil {
		resp.Next = q.Since
		return resp, nil
	}
	if q.Since == 0 && !q.Follow {
		resp.Events, resp.Next = d.logHub.Tail(q.Limit)
	} else {
		events, next, err := d.logHub.Fetch(ctx, q.Since, q.Limit, q.Follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return resp, err
		}
		resp.Events, resp.Next = events, next
	}
	if resp.Next == 0 {
		resp.Next = q.Since
	}
	if q.JobID != "" {
		filtered := resp.Events[:0]
		for _, evt := range resp.Events {
			if evt.JobID == q.JobID {
				filtered = append(filtered, evt)
			}
		}
		resp.Events = filtered
	}
	return resp, nil
}

// SetLogPath records the daemon log file location for status output.
func (d *Daemon) SetLogPath(path string) {
	d.logPath = path
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LogStream returns the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// APIAddress reports the HTTP API listen address, or "" when disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Supervisor:   d.supervisor.Status(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.SocketPath(),
	}
	if d.ledger != nil {
		status.LedgerPath = d.ledger.Path()
	}
	return status
}
