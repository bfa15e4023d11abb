// Package transcripts persists the most recently completed transcript.
//
// The store is single-slot: each save replaces the previous artifact. Writes
// go through a temp file and rename so a concurrent reader, or a reader after
// a crash, never sees a partially written document.
package transcripts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"vidscribe/internal/fileutil"
	"vidscribe/internal/services"
)

// ErrPersistenceFailed marks a transcript that could not be written.
var ErrPersistenceFailed = errors.New("transcript persistence failed")

// Transcript is the on-disk artifact.
type Transcript struct {
	JobID      string    `json:"job_id"`
	Text       string    `json:"text"`
	SourcePath string    `json:"source_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store reads and writes the transcript artifact at a fixed path.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path reports the artifact location.
func (s *Store) Path() string {
	return s.path
}

// Save atomically replaces the stored transcript.
func (s *Store) Save(t Transcript) error {
	if strings.TrimSpace(t.JobID) == "" {
		return services.Wrap(services.ErrValidation, "save", "validate transcript", "job id is required", ErrPersistenceFailed)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fileutil.WriteJSONAtomic(s.path, t, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "save", "write transcript", s.path, errors.Join(ErrPersistenceFailed, err))
	}
	return nil
}

// Load returns the stored transcript, or nil when none has been saved.
func (s *Store) Load() (*Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, services.Wrap(services.ErrValidation, "load", "decode transcript", s.path, err)
	}
	return &t, nil
}
