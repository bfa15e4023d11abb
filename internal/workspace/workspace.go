// Package workspace owns per-job scratch directories.
//
// Every job gets its own directory under the scratch root, so intermediate
// artifacts such as the extracted audio never share a path between jobs. A
// file lock on the scratch root keeps two processes (a daemon and a one-shot
// CLI run, say) from driving pipelines against the same root at once.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"vidscribe/internal/logging"
)

const lockFileName = ".active.lock"

// ErrLocked is returned when another process holds the scratch root.
var ErrLocked = errors.New("scratch directory in use by another process")

// Manager creates and removes job workspaces below a root directory.
type Manager struct {
	root   string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewManager returns a manager rooted at root.
func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{
		root:   root,
		lock:   flock.New(filepath.Join(root, lockFileName)),
		logger: logging.NewComponentLogger(logger, "workspace"),
	}
}

// Root reports the scratch root.
func (m *Manager) Root() string {
	return m.root
}

// Acquire takes the cross-process scratch lock without blocking.
func (m *Manager) Acquire() error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("create scratch root: %w", err)
	}
	ok, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock scratch root: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Release drops the scratch lock.
func (m *Manager) Release() {
	if err := m.lock.Unlock(); err != nil {
		m.logger.Debug("scratch unlock failed", logging.Error(err))
	}
}

// Path returns the workspace directory for jobID without creating it.
func (m *Manager) Path(jobID string) string {
	return filepath.Join(m.root, sanitize(jobID))
}

// Create makes a fresh, empty workspace for jobID.
func (m *Manager) Create(jobID string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", errors.New("workspace: job id is required")
	}
	dir := m.Path(jobID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Remove deletes the workspace for jobID.
func (m *Manager) Remove(jobID string) error {
	dir := m.Path(jobID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", dir, err)
	}
	return nil
}

func sanitize(jobID string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(jobID))
	if cleaned == "" {
		return "_"
	}
	return cleaned
}
