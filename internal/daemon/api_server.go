package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vidscribe/internal/api"
	"vidscribe/internal/config"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
)

const (
	maxRequestBody   = 64 << 10
	maxProgressWait  = 25 * time.Second
	wsWriteTimeout   = 10 * time.Second
	defaultLogLimit  = 200
	defaultHistLimit = 20
)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	upgrader websocket.Upgrader

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      maxProgressWait + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, withRequestID(authMiddleware(token, h)))
	}
	handle("POST /api/jobs", s.handleSubmit)
	handle("GET /api/jobs/{id}", s.handleJob)
	handle("POST /api/jobs/{id}/cancel", s.handleCancel)
	handle("GET /api/jobs/{id}/progress", s.handleProgress)
	handle("GET /api/jobs/{id}/events", s.handleEvents)
	handle("GET /api/transcript", s.handleTranscript)
	handle("GET /api/status", s.handleStatus)
	handle("GET /api/history", s.handleHistory)
	handle("GET /api/logs", s.handleLogs)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, services.Wrap(services.ErrValidation, "", "decode request", "invalid JSON body", err))
		return
	}
	id, err := s.daemon.Submit(req.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+id)
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: id})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.Job(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromSnapshot(snap)})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.daemon.Cancel(id); err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.daemon.Job(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromSnapshot(snap)})
}

func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	wait := parseBool(query.Get("wait"))

	ctx, cancel := context.WithTimeout(r.Context(), maxProgressWait)
	defer cancel()
	events, done, err := s.daemon.Progress(ctx, r.PathValue("id"), since, wait)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.NewProgressResponse(events, done, since))
}

// handleEvents streams a job's progress as websocket frames until the job
// finishes or the client disconnects. The final frame carries the terminal job.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := s.daemon.Subscribe(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.log().Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		evt, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return
		}
		frame := api.Frame{Event: api.EventTranscriptionProgress, Payload: api.FromProgressEvent(evt)}
		if err := writeFrame(conn, frame); err != nil {
			s.log().Debug("websocket write failed", logging.String(logging.FieldJobID, id), logging.Error(err))
			return
		}
	}

	if snap, err := s.daemon.Job(id); err == nil {
		_ = writeFrame(conn, api.Frame{Event: api.EventJobFinished, Payload: api.FromSnapshot(snap)})
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
}

func writeFrame(conn *websocket.Conn, frame api.Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}

func (s *apiServer) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	transcript, err := s.daemon.LastTranscript()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TranscriptResponse{Transcript: api.FromTranscript(transcript)})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.APIStatus())
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultHistLimit
	}
	entries, err := s.daemon.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromLedgerEntries(entries))
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}

	ctx, cancel := context.WithTimeout(r.Context(), maxProgressWait)
	defer cancel()

	resp, err := s.daemon.Logs(ctx, LogQuery{
		Since:  since,
		Limit:  limit,
		Follow: parseBool(query.Get("follow")),
		JobID:  strings.TrimSpace(query.Get("job")),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// APIStatus renders Status in its transport form.
func (d *Daemon) APIStatus() api.DaemonStatus {
	status := d.Status()
	payload := api.FromSupervisorStatus(status.Supervisor)
	payload.Running = status.Running
	payload.PID = status.PID
	payload.SocketPath = status.SocketPath
	payload.LockFilePath = status.LockFilePath
	payload.LedgerPath = status.LedgerPath
	return payload
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := api.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log().Error("api request failed", logging.Error(err))
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: api.ErrorKind(err)})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

// withRequestID tags the request context so handler logs correlate.
func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	}
}

func parseBool(value string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && b
}
