package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"vidscribe/internal/job"
	"vidscribe/internal/ledger"
	"vidscribe/internal/testsupport"
)

func snapshot(id string, state job.State, created time.Time) job.Snapshot {
	finished := created.Add(time.Minute)
	return job.Snapshot{
		ID:              id,
		SourcePath:      "/videos/" + id + ".mp4",
		State:           state,
		ProgressPercent: 100,
		CreatedAt:       created,
		FinishedAt:      &finished,
	}
}

func TestRecordAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	snap := snapshot("a", job.StateFailed, time.Now().UTC())
	snap.ProgressPercent = 25
	snap.Error = &job.Error{Stage: job.StageExtract, Kind: "non_zero_exit", Diagnostic: "ffmpeg exited with code 1: bad input"}
	if err := store.Record(ctx, snap); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected entry")
	}
	if got.State != job.StateFailed || got.ProgressPercent != 25 {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.Error == nil || got.Error.Diagnostic != "ffmpeg exited with code 1: bad input" {
		t.Fatalf("expected diagnostic to round-trip, got %+v", got.Error)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(*snap.FinishedAt) {
		t.Fatalf("unexpected finished_at %v", got.FinishedAt)
	}
}

func TestGetReturnsTranscriptListReturnsLength(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	snap := snapshot("b", job.StateCompleted, time.Now().UTC())
	snap.Transcript = "héllo"
	if err := store.Record(ctx, snap); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	got, err := store.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.TranscriptChars != 5 || got.Transcript != "héllo" {
		t.Fatalf("unexpected transcript fields: chars=%d text=%q", got.TranscriptChars, got.Transcript)
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].TranscriptChars != 5 || entries[0].Transcript != "" {
		t.Fatalf("expected list to carry length only, got %+v", entries)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	got, err := store.Get(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", got, err)
	}
}

func TestListNewestFirstAndPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := store.Record(ctx, snapshot(fmt.Sprintf("job-%d", i), job.StateCompleted, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "job-4" || entries[1].ID != "job-3" {
		t.Fatalf("unexpected ordering %+v", entries)
	}

	removed, err := store.Prune(ctx, 3)
	if err != nil {
		t.Fatalf("Prune returned error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned rows, got %d", removed)
	}
	all, _ := store.List(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 rows after prune, got %d", len(all))
	}
}

func TestRecordUpdatesExistingRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	snap := snapshot("c", job.StateCompleted, time.Now().UTC())
	if err := store.Record(ctx, snap); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	snap.Warning = "transcript not saved"
	if err := store.Record(ctx, snap); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	all, _ := store.List(ctx, 0)
	if len(all) != 1 || all[0].Warning != "transcript not saved" {
		t.Fatalf("expected single updated row, got %+v", all)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	_ = store.Close()

	db, err := sql.Open("sqlite", cfg.LedgerPath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := ledger.Open(cfg.LedgerPath()); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
