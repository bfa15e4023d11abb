package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vidscribe/internal/job"
)

const recordColumns = `id, source_path, state, progress_percent, message, error_stage, error_kind,
	error_diagnostic, warning, transcript_chars, created_at, finished_at`

// Entry is an archived job. Get fills in the transcript text; List leaves it
// empty and reports TranscriptChars only.
type Entry struct {
	job.Snapshot
	TranscriptChars int `json:"transcript_chars"`
}

// Record inserts or replaces the row for snap.
func (s *Store) Record(ctx context.Context, snap job.Snapshot) error {
	var errStage, errKind, errDiag string
	if snap.Error != nil {
		errStage, errKind, errDiag = snap.Error.Stage, snap.Error.Kind, snap.Error.Diagnostic
	}
	var finished any
	if snap.FinishedAt != nil {
		finished = formatTime(*snap.FinishedAt)
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO jobs (`+recordColumns+`, transcript)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				state = excluded.state,
				progress_percent = excluded.progress_percent,
				message = excluded.message,
				error_stage = excluded.error_stage,
				error_kind = excluded.error_kind,
				error_diagnostic = excluded.error_diagnostic,
				warning = excluded.warning,
				transcript_chars = excluded.transcript_chars,
				transcript = excluded.transcript,
				finished_at = excluded.finished_at`,
			snap.ID, snap.SourcePath, string(snap.State), snap.ProgressPercent, snap.Message,
			errStage, errKind, errDiag, snap.Warning, len([]rune(snap.Transcript)),
			formatTime(snap.CreatedAt), finished, snap.Transcript,
		)
		if err != nil {
			return fmt.Errorf("record job %s: %w", snap.ID, err)
		}
		return nil
	})
}

// Get returns the entry for id, or nil when it was never recorded.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+`, transcript FROM jobs WHERE id = ?`, id)
	var text string
	entry, err := scanEntry(row, &text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	entry.Transcript = text
	return entry, nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + recordColumns + ` FROM jobs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Prune deletes all but the newest keep entries and reports how many went.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM jobs WHERE id NOT IN (
				SELECT id FROM jobs ORDER BY created_at DESC, id LIMIT ?
			)`, keep)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner, extra ...any) (*Entry, error) {
	var (
		entry                     Entry
		state                     string
		errStage, errKind, errMsg string
		created                   string
		finished                  sql.NullString
	)
	dest := []any{
		&entry.ID, &entry.SourcePath, &state, &entry.ProgressPercent, &entry.Message,
		&errStage, &errKind, &errMsg, &entry.Warning, &entry.TranscriptChars,
		&created, &finished,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	entry.State = job.State(state)
	if errStage != "" || errKind != "" || errMsg != "" {
		entry.Error = &job.Error{Stage: errStage, Kind: errKind, Diagnostic: errMsg}
	}
	entry.CreatedAt = parseTime(created)
	entry.UpdatedAt = entry.CreatedAt
	if finished.Valid && finished.String != "" {
		ts := parseTime(finished.String)
		entry.FinishedAt = &ts
		entry.UpdatedAt = ts
	}
	return &entry, nil
}

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
