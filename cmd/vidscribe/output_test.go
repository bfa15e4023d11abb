package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"vidscribe/internal/api"
	"vidscribe/internal/logging"
)

func newBufferedCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	return cmd, &stdout, &stderr
}

func TestJobOutcome(t *testing.T) {
	t.Run("completed prints transcript and warning", func(t *testing.T) {
		cmd, stdout, stderr := newBufferedCommand()
		job := api.Job{ID: "j1", State: "completed", Terminal: true, Transcript: "hello", Warning: "transcript not saved"}
		if err := jobOutcome(cmd, job, false); err != nil {
			t.Fatalf("jobOutcome: %v", err)
		}
		if stdout.String() != "hello\n" {
			t.Fatalf("unexpected stdout %q", stdout.String())
		}
		requireContains(t, stderr.String(), "warning: transcript not saved")
	})

	t.Run("failed maps to exit 1", func(t *testing.T) {
		cmd, _, _ := newBufferedCommand()
		job := api.Job{ID: "j2", State: "failed", Terminal: true,
			Error: &api.JobError{Stage: "transcribe", Kind: "timed_out", Diagnostic: "exceeded 10s"}}
		err := jobOutcome(cmd, job, false)
		if exitCode(err) != 1 {
			t.Fatalf("expected exit 1, got %v", err)
		}
		if err.Error() != "transcribe failed: timed_out: exceeded 10s" {
			t.Fatalf("unexpected message %q", err.Error())
		}
	})

	t.Run("cancelled maps to exit 130", func(t *testing.T) {
		cmd, stdout, _ := newBufferedCommand()
		err := jobOutcome(cmd, api.Job{ID: "j3", State: "cancelled", Terminal: true}, true)
		if exitCode(err) != 130 {
			t.Fatalf("expected exit 130, got %v", err)
		}
		requireContains(t, stdout.String(), `"state": "cancelled"`)
	})
}

func TestExitCodeDefaultsToOne(t *testing.T) {
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	wrapped := fmt.Errorf("wrapped: %w", &exitError{code: 130, msg: "cancelled"})
	if got := exitCode(wrapped); got != 130 {
		t.Fatalf("expected 130, got %d", got)
	}
}

func TestFormatLogEvent(t *testing.T) {
	evt := logging.LogEvent{
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local),
		Level:     "warn",
		Message:   "transcript save failed",
		Component: "supervisor",
		JobID:     "0123456789abcdef",
		Stage:     "save",
		Fields:    map[string]string{"impact": "history only", "error_hint": "check disk"},
	}
	got := formatLogEvent(evt)
	want := "2026-03-01 10:00:00 WARN  [supervisor] job=01234567 stage=save transcript save failed error_hint=check disk impact=history only"
	if got != want {
		t.Fatalf("formatLogEvent:\n got %q\nwant %q", got, want)
	}
}

func TestFormatProgressEvent(t *testing.T) {
	line := formatProgressEvent(api.ProgressEvent{Stage: "extract", Progress: 25, Message: "audio extracted"})
	if line != "[ 25%] extract    audio extracted" {
		t.Fatalf("unexpected line %q", line)
	}
	line = formatProgressEvent(api.ProgressEvent{Progress: 0, Message: "queued"})
	if line != "[  0%] queued" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory([]api.HistoryEntry{{
		Job: api.Job{
			ID:              "abcdef0123456789",
			State:           "failed",
			SourcePath:      "/videos/talk.mp4",
			DurationSeconds: 1.2,
			Error:           &api.JobError{Kind: "non_zero_exit"},
		},
		TranscriptChars: 0,
	}})
	for _, want := range []string{"abcdef01", "failed (non_zero_exit)", "talk.mp4", "1.2s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected history table to contain %q:\n%s", want, out)
		}
	}
}
