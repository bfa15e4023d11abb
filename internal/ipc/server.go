package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"vidscribe/internal/api"
	"vidscribe/internal/daemon"
	"vidscribe/internal/logging"
)

const (
	serviceName    = "Vidscribe"
	maxWait        = 25 * time.Second
	defaultHistory = 20
	defaultLogTail = 200
	closeGrace     = 2 * time.Second
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

// Close stops the server and removes the socket file. Clients still
// connected after a short grace period are disconnected.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(closeGrace):
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		<-drained
	}
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may confuse clients"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// wireError flattens err so the client can recover its kind.
func wireError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(api.EncodeError(err))
}

func waitContext(parent context.Context, millis int) (context.Context, context.CancelFunc) {
	wait := time.Duration(millis) * time.Millisecond
	if wait <= 0 || wait > maxWait {
		wait = maxWait
	}
	return context.WithTimeout(parent, wait)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	id, err := s.daemon.Submit(req.Path)
	if err != nil {
		return wireError(err)
	}
	resp.JobID = id
	s.logger.Info("job submitted via IPC",
		logging.String(logging.FieldJobID, id),
		logging.String("source", req.Path),
		logging.String(logging.FieldEventType, "ipc_submit"))
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *CancelResponse) error {
	if err := s.daemon.Cancel(req.JobID); err != nil {
		return wireError(err)
	}
	resp.Requested = true
	return nil
}

func (s *service) State(req StateRequest, resp *StateResponse) error {
	snap, err := s.daemon.Job(req.JobID)
	if err != nil {
		return wireError(err)
	}
	resp.Job = api.FromSnapshot(snap)
	return nil
}

func (s *service) Progress(req ProgressRequest, resp *ProgressResponse) error {
	wait := req.WaitMillis > 0
	ctx, cancel := waitContext(s.ctx, req.WaitMillis)
	defer cancel()
	events, done, err := s.daemon.Progress(ctx, req.JobID, req.Since, wait)
	if err != nil && !isTimeout(err) {
		return wireError(err)
	}
	resp.ProgressResponse = api.NewProgressResponse(events, done, req.Since)
	return nil
}

func (s *service) LastTranscript(_ LastTranscriptRequest, resp *LastTranscriptResponse) error {
	transcript, err := s.daemon.LastTranscript()
	if err != nil {
		return wireError(err)
	}
	resp.Transcript = api.FromTranscript(transcript)
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.DaemonStatus = s.daemon.APIStatus()
	resp.LogPath = s.daemon.LogPath()
	resp.APIAddress = s.daemon.APIAddress()
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistory
	}
	entries, err := s.daemon.History(s.ctx, limit)
	if err != nil {
		return wireError(err)
	}
	resp.Entries = api.FromLedgerEntries(entries)
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLogTail
	}
	ctx, cancel := waitContext(s.ctx, req.WaitMillis)
	defer cancel()
	out, err := s.daemon.Logs(ctx, daemon.LogQuery{
		Since:  req.Since,
		Limit:  limit,
		Follow: req.Follow,
		JobID:  req.JobID,
	})
	if err != nil {
		return wireError(err)
	}
	resp.Events = out.Events
	resp.Next = out.Next
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	if err != nil {
		resp.Message = fmt.Sprintf("%s: %v", message, err)
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}
