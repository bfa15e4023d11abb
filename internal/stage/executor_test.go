package stage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/stage"
	"vidscribe/internal/testsupport"
	"vidscribe/internal/worker"
)

func newExecutor() *stage.Executor {
	return stage.NewExecutor(nil, logging.NewNop())
}

func fileSpec(t *testing.T, body string) stage.Spec {
	t.Helper()
	dir := t.TempDir()
	return stage.Spec{
		Name:       "extract",
		Executable: testsupport.WriteScript(t, filepath.Join(dir, "extract.sh"), body),
		Args:       []string{"{input}", "{output}"},
		Input:      filepath.Join(dir, "video.mp4"),
		OutputFile: filepath.Join(dir, "audio.wav"),
		Timeout:    5 * time.Second,
	}
}

func TestExecuteFileStageSucceeds(t *testing.T) {
	spec := fileSpec(t, testsupport.ExtractorWritesAudio)

	result := newExecutor().Execute(context.Background(), spec)
	if !result.Succeeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Output != spec.OutputFile {
		t.Fatalf("expected output path %q, got %q", spec.OutputFile, result.Output)
	}
	if result.StageName != "extract" {
		t.Fatalf("unexpected stage name %q", result.StageName)
	}
}

func TestExecuteStdoutStageTrimsTranscript(t *testing.T) {
	dir := t.TempDir()
	spec := stage.Spec{
		Name:       "transcribe",
		Executable: testsupport.WriteScript(t, filepath.Join(dir, "t.sh"), "printf '\\n  hello there \\n\\n'\n"),
		Args:       []string{"{input}"},
		Input:      filepath.Join(dir, "audio.wav"),
	}

	result := newExecutor().Execute(context.Background(), spec)
	if !result.Succeeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Output != "hello there" {
		t.Fatalf("unexpected transcript %q", result.Output)
	}
}

func TestExecuteNonZeroExitKeepsStderrVerbatim(t *testing.T) {
	spec := fileSpec(t, testsupport.WorkerFails(1, "video.mp4: Invalid data found when processing input"))

	result := newExecutor().Execute(context.Background(), spec)
	if result.Succeeded {
		t.Fatal("expected failure")
	}
	if result.Kind != stage.KindNonZeroExit {
		t.Fatalf("unexpected kind %q", result.Kind)
	}
	if !strings.Contains(result.Diagnostic, "video.mp4: Invalid data found when processing input") {
		t.Fatalf("expected stderr in diagnostic, got %q", result.Diagnostic)
	}
	if !strings.Contains(result.Diagnostic, "code 1") {
		t.Fatalf("expected exit code in diagnostic, got %q", result.Diagnostic)
	}
	if !errors.Is(result.Err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", result.Err)
	}
}

func TestExecuteMissingOutputFileIsEmptyOutput(t *testing.T) {
	for name, body := range map[string]string{
		"absent": testsupport.ExtractorWritesNone,
		"empty":  testsupport.ExtractorWritesEmpty,
	} {
		t.Run(name, func(t *testing.T) {
			spec := fileSpec(t, body)
			result := newExecutor().Execute(context.Background(), spec)
			if result.Succeeded {
				t.Fatal("expected failure for missing output")
			}
			if result.Kind != stage.KindEmptyOutput {
				t.Fatalf("unexpected kind %q", result.Kind)
			}
			if !errors.Is(result.Err, stage.ErrEmptyOutput) {
				t.Fatalf("expected ErrEmptyOutput, got %v", result.Err)
			}
		})
	}
}

func TestExecuteRemovesStaleOutputBeforeRun(t *testing.T) {
	spec := fileSpec(t, testsupport.ExtractorWritesNone)
	testsupport.WriteFile(t, spec.OutputFile, 64)

	result := newExecutor().Execute(context.Background(), spec)
	if result.Kind != stage.KindEmptyOutput {
		t.Fatalf("stale file must not satisfy verification, got %+v", result)
	}
}

func TestExecuteBlankStdoutIsEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	spec := stage.Spec{
		Name:       "transcribe",
		Executable: testsupport.WriteScript(t, filepath.Join(dir, "t.sh"), "printf '   \\n'\n"),
		Args:       []string{"{input}"},
	}
	result := newExecutor().Execute(context.Background(), spec)
	if result.Succeeded || result.Kind != stage.KindEmptyOutput {
		t.Fatalf("expected empty output failure, got %+v", result)
	}
}

func TestExecuteCancelledBeforeLaunch(t *testing.T) {
	spec := fileSpec(t, testsupport.ExtractorWritesAudio)
	marker := filepath.Join(filepath.Dir(spec.OutputFile), "ran")
	spec.Executable = testsupport.WriteScript(t, spec.Executable, "touch '"+marker+"'\n"+testsupport.ExtractorWritesAudio)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newExecutor().Execute(ctx, spec)
	if result.Succeeded || !result.Cancelled() {
		t.Fatalf("expected cancelled result, got %+v", result)
	}
	if result.Diagnostic != "cancelled" {
		t.Fatalf("unexpected diagnostic %q", result.Diagnostic)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("worker must not be launched when already cancelled (stat err=%v)", err)
	}
}

func TestExecuteTimeout(t *testing.T) {
	spec := fileSpec(t, testsupport.ExtractorBlocks)
	spec.Timeout = 100 * time.Millisecond

	result := newExecutor().Execute(context.Background(), spec)
	if result.Kind != stage.KindTimedOut {
		t.Fatalf("expected timeout, got %+v", result)
	}
	if !errors.Is(result.Err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", result.Err)
	}
}

func TestExecuteLaunchFailure(t *testing.T) {
	spec := fileSpec(t, testsupport.ExtractorWritesAudio)
	spec.Executable = filepath.Join(t.TempDir(), "does-not-exist")

	result := newExecutor().Execute(context.Background(), spec)
	if result.Kind != stage.KindLaunchFailed {
		t.Fatalf("expected launch failure, got %+v", result)
	}
}

type recordingRunner struct {
	invocations []worker.Invocation
}

func (r *recordingRunner) Run(_ context.Context, inv worker.Invocation) (worker.Output, error) {
	r.invocations = append(r.invocations, inv)
	return worker.Output{Stdout: "text"}, nil
}

func TestExecuteRendersArgumentTemplate(t *testing.T) {
	runner := &recordingRunner{}
	spec := stage.Spec{
		Name:       "transcribe",
		Executable: "whisper-mps",
		Args:       []string{"--file-name", "{input}", "--model-name", "large-v3"},
		Input:      "/scratch/job/audio.wav",
		Timeout:    time.Minute,
	}

	result := stage.NewExecutor(runner, logging.NewNop()).Execute(context.Background(), spec)
	if !result.Succeeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(runner.invocations) != 1 {
		t.Fatalf("expected a single invocation, got %d", len(runner.invocations))
	}
	want := []string{"--file-name", "/scratch/job/audio.wav", "--model-name", "large-v3"}
	if got := runner.invocations[0].Args; !slices.Equal(got, want) {
		t.Fatalf("unexpected args: %v", got)
	}
	if runner.invocations[0].Timeout != time.Minute {
		t.Fatalf("timeout not forwarded: %v", runner.invocations[0].Timeout)
	}
}
