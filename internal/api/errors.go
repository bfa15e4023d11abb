package api

import (
	"errors"
	"net/http"
	"strings"

	"vidscribe/internal/services"
	"vidscribe/internal/supervisor"
)

// Error kinds carried in ErrorResponse.Kind and IPC error prefixes.
const (
	KindBusy            = "busy"
	KindInvalidPath     = "invalid_path"
	KindNotFound        = "not_found"
	KindAlreadyTerminal = "already_terminal"
	KindShuttingDown    = "shutting_down"
	KindUnauthorized    = "unauthorized"
	KindBadRequest      = "bad_request"
	KindInternal        = "internal"
)

var kindErrors = map[string]error{
	KindBusy:            supervisor.ErrBusy,
	KindInvalidPath:     supervisor.ErrInvalidPath,
	KindNotFound:        supervisor.ErrNotFound,
	KindAlreadyTerminal: supervisor.ErrAlreadyTerminal,
	KindShuttingDown:    supervisor.ErrShuttingDown,
}

// ErrorKind classifies err for transport.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, supervisor.ErrBusy):
		return KindBusy
	case errors.Is(err, supervisor.ErrInvalidPath):
		return KindInvalidPath
	case errors.Is(err, supervisor.ErrNotFound), errors.Is(err, services.ErrNotFound):
		return KindNotFound
	case errors.Is(err, supervisor.ErrAlreadyTerminal):
		return KindAlreadyTerminal
	case errors.Is(err, supervisor.ErrShuttingDown):
		return KindShuttingDown
	case errors.Is(err, services.ErrValidation):
		return KindBadRequest
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch ErrorKind(err) {
	case KindBusy, KindAlreadyTerminal:
		return http.StatusConflict
	case KindInvalidPath, KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindShuttingDown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// EncodeError renders err as "kind: message" for transports that only carry
// strings, such as net/rpc.
func EncodeError(err error) string {
	if err == nil {
		return ""
	}
	return ErrorKind(err) + ": " + err.Error()
}

// DecodeError reverses EncodeError so callers can match supervisor sentinels.
func DecodeError(text string) error {
	kind, message, ok := strings.Cut(text, ": ")
	if !ok {
		return errors.New(text)
	}
	return ErrorFromKind(kind, message)
}

// ErrorFromKind rebuilds an error that matches the sentinel for kind.
func ErrorFromKind(kind, message string) error {
	sentinel, ok := kindErrors[kind]
	if !ok {
		return errors.New(message)
	}
	return &remoteError{sentinel: sentinel, message: message}
}

type remoteError struct {
	sentinel error
	message  string
}

func (e *remoteError) Error() string { return e.message }

func (e *remoteError) Unwrap() error { return e.sentinel }
