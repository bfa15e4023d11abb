package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/api"
	"vidscribe/internal/logging"
	"vidscribe/internal/supervisor"
	"vidscribe/internal/testsupport"
)

func TestSubmitWaitPrintsTranscript(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.WithExtractorScript(testsupport.ExtractorWritesAudio),
		testsupport.WithTranscriberScript(testsupport.TranscriberPrints("  welcome to the lecture  ")),
	)

	stdout, stderr, err := runCLI(t, []string{"submit", "--wait", sourceVideo(t, env.cfg)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("submit --wait failed: %v (stderr %q)", err, stderr)
	}
	if strings.TrimSpace(stdout) != "welcome to the lecture" {
		t.Fatalf("unexpected transcript %q", stdout)
	}
	requireContains(t, stderr, "Submitted job")
	requireContains(t, stderr, "[100%]")

	stdout, _, err = runCLI(t, []string{"last"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("last failed: %v", err)
	}
	if strings.TrimSpace(stdout) != "welcome to the lecture" {
		t.Fatalf("unexpected last transcript %q", stdout)
	}

	stdout, _, err = runCLI(t, []string{"history", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var entries []api.HistoryEntry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 1 || entries[0].Job.State != "completed" {
		t.Fatalf("unexpected history %+v", entries)
	}
	if entries[0].TranscriptChars != len("welcome to the lecture") {
		t.Fatalf("expected transcript chars %d, got %d", len("welcome to the lecture"), entries[0].TranscriptChars)
	}
}

func TestSubmitWaitReportsStageFailure(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.WithExtractorScript(testsupport.WorkerFails(3, "no audio stream")),
		testsupport.WithTranscriberScript(testsupport.TranscriberPrints("unused")),
	)

	stdout, _, err := runCLI(t, []string{"submit", "--wait", sourceVideo(t, env.cfg)}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected failed job to return an error")
	}
	if exitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d", exitCode(err))
	}
	requireContains(t, err.Error(), "extract failed: non_zero_exit")
	requireContains(t, err.Error(), "no audio stream")
	if stdout != "" {
		t.Fatalf("expected no transcript on stdout, got %q", stdout)
	}
	if testsupport.Launched(env.cfg, "transcriber") {
		t.Fatal("transcriber should not run after extraction fails")
	}
}

func TestSubmitRejectedWhileBusy(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.WithExtractorScript(testsupport.ExtractorBlocks),
		testsupport.WithTranscriberScript(testsupport.TranscriberPrints("unused")),
	)
	video := sourceVideo(t, env.cfg)

	id, _, err := runCLI(t, []string{"submit", video}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	id = strings.TrimSpace(id)

	_, _, err = runCLI(t, []string{"submit", video}, env.socketPath, env.configPath)
	if !errors.Is(err, supervisor.ErrBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}

	stdout, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	requireContains(t, stdout, "running (pid")
	requireContains(t, stdout, id)

	stdout, _, err = runCLI(t, []string{"cancel", id}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	requireContains(t, stdout, "Cancellation requested")

	_, _, err = runCLI(t, []string{"watch", id}, env.socketPath, env.configPath)
	if exitCode(err) != 130 {
		t.Fatalf("expected cancelled watch to exit 130, got %v", err)
	}

	stdout, _, err = runCLI(t, []string{"cancel", id}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second cancel failed: %v", err)
	}
	requireContains(t, stdout, "already finished")
}

func TestCancelUnknownJob(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"cancel", "missing"}, env.socketPath, env.configPath)
	if !errors.Is(err, supervisor.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWatchWithoutActiveJob(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"watch"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no active job") {
		t.Fatalf("expected no active job error, got %v", err)
	}
}

func TestLogsFiltersByJob(t *testing.T) {
	env := setupCLITestEnv(t)
	now := time.Now()
	env.hub.Publish(logging.LogEvent{Timestamp: now, Level: "INFO", Message: "extraction started", JobID: "job-a", Stage: "extract"})
	env.hub.Publish(logging.LogEvent{Timestamp: now, Level: "WARN", Message: "save failed", JobID: "job-b",
		Fields: map[string]string{"error_hint": "check disk"}})

	stdout, _, err := runCLI(t, []string{"logs", "--job", "job-b"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	requireContains(t, stdout, "save failed")
	requireContains(t, stdout, "error_hint=check disk")
	if strings.Contains(stdout, "extraction started") {
		t.Fatalf("expected job filter to drop other jobs, got %q", stdout)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify failed: %v", err)
	}
	requireContains(t, stdout, "ntfy topic not configured")
}

func TestCommandsFallBackWhenDaemonStopped(t *testing.T) {
	cfg, configPath := writeConfigOnly(t)

	stdout, _, err := runCLI(t, []string{"status"}, "", configPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	requireContains(t, stdout, "not running")
	requireContains(t, stdout, cfg.TranscriptPath())

	_, stderr, err := runCLI(t, []string{"last"}, "", configPath)
	if err != nil {
		t.Fatalf("last failed: %v", err)
	}
	requireContains(t, stderr, "No transcript has been saved yet")

	_, _, err = runCLI(t, []string{"submit", "/tmp/whatever.mp4"}, "", configPath)
	if err == nil || !strings.Contains(err.Error(), "vidscribe daemon start") {
		t.Fatalf("expected dial hint, got %v", err)
	}
}

func TestTranscribeRunsInProcess(t *testing.T) {
	cfg, configPath := writeConfigOnly(t,
		testsupport.WithExtractorScript(testsupport.ExtractorWritesAudio),
		testsupport.WithTranscriberScript(testsupport.TranscriberPrints("local run")),
	)

	stdout, stderr, err := runCLI(t, []string{"transcribe", sourceVideo(t, cfg)}, "", configPath)
	if err != nil {
		t.Fatalf("transcribe failed: %v (stderr %q)", err, stderr)
	}
	if strings.TrimSpace(stdout) != "local run" {
		t.Fatalf("unexpected transcript %q", stdout)
	}
	requireContains(t, stderr, "transcribe")

	if _, err := os.Stat(cfg.TranscriptPath()); err != nil {
		t.Fatalf("expected transcript slot written: %v", err)
	}
}

func TestTranscribeRejectsMissingSource(t *testing.T) {
	cfg, configPath := writeConfigOnly(t)

	_, _, err := runCLI(t, []string{"transcribe", "-q", filepath.Join(testsupport.BaseDir(cfg), "nope.mp4")}, "", configPath)
	if !errors.Is(err, supervisor.ErrInvalidPath) {
		t.Fatalf("expected invalid path, got %v", err)
	}
}

func TestTranscribeEmptyAudioFails(t *testing.T) {
	cfg, configPath := writeConfigOnly(t,
		testsupport.WithExtractorScript(testsupport.ExtractorWritesEmpty),
		testsupport.WithTranscriberScript(testsupport.TranscriberPrints("unused")),
	)

	stdout, _, err := runCLI(t, []string{"transcribe", "--json", sourceVideo(t, cfg)}, "", configPath)
	if exitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	var job api.Job
	if err := json.Unmarshal([]byte(stdout), &job); err != nil {
		t.Fatalf("decode job: %v (%q)", err, stdout)
	}
	if job.State != "failed" || job.Error == nil || job.Error.Kind != "empty_output" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestLogsReadsFileWhenDaemonStopped(t *testing.T) {
	cfg, configPath := writeConfigOnly(t)
	if err := os.WriteFile(cfg.CurrentLogPath(), []byte("line one\nline two\nline three\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	stdout, stderr, err := runCLI(t, []string{"logs", "-n", "2"}, "", configPath)
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	requireContains(t, stderr, "Daemon not reachable")
	if stdout != "line two\nline three\n" {
		t.Fatalf("unexpected log output %q", stdout)
	}
}
