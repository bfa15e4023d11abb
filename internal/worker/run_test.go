package worker_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"vidscribe/internal/services"
	"vidscribe/internal/testsupport"
	"vidscribe/internal/worker"
)

func script(t *testing.T, body string) string {
	t.Helper()
	return testsupport.WriteScript(t, filepath.Join(t.TempDir(), "worker.sh"), body)
}

func TestRunCapturesStdoutAndStderr(t *testing.T) {
	path := script(t, "printf 'hello world\\n'\nprintf 'note' >&2\n")

	out, err := worker.Run(context.Background(), worker.Invocation{Executable: path, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Stdout != "hello world\n" {
		t.Fatalf("unexpected stdout %q", out.Stdout)
	}
	if out.Stderr != "note" {
		t.Fatalf("unexpected stderr %q", out.Stderr)
	}
}

func TestRunPassesArgumentsVerbatim(t *testing.T) {
	path := script(t, "printf '%s|' \"$@\"\n")

	out, err := worker.Run(context.Background(), worker.Invocation{
		Executable: path,
		Args:       []string{"a b", "--flag=x", ""},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Stdout != "a b|--flag=x||" {
		t.Fatalf("unexpected argument echo %q", out.Stdout)
	}
}

func TestRunDoesNotInheritStdin(t *testing.T) {
	path := script(t, "if read line; then echo got; else echo eof; fi\n")

	out, err := worker.Run(context.Background(), worker.Invocation{Executable: path, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if strings.TrimSpace(out.Stdout) != "eof" {
		t.Fatalf("expected worker to see closed stdin, got %q", out.Stdout)
	}
}

func TestRunReplacesInvalidUTF8(t *testing.T) {
	path := script(t, "printf 'ok\\377\\376done'\n")

	out, err := worker.Run(context.Background(), worker.Invocation{Executable: path})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.HasPrefix(out.Stdout, "ok") || !strings.HasSuffix(out.Stdout, "done") {
		t.Fatalf("unexpected decoded output %q", out.Stdout)
	}
	if !strings.Contains(out.Stdout, "�") {
		t.Fatalf("expected replacement character in %q", out.Stdout)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	path := script(t, "echo 'Invalid data found when processing input' >&2\nexit 3\n")

	_, err := worker.Run(context.Background(), worker.Invocation{Executable: path})
	var werr *worker.Error
	if !errors.As(err, &werr) {
		t.Fatalf("expected *worker.Error, got %T %v", err, err)
	}
	if werr.Kind != worker.NonZeroExit || werr.Code != 3 {
		t.Fatalf("unexpected kind/code: %v/%d", werr.Kind, werr.Code)
	}
	if werr.Stderr != "Invalid data found when processing input\n" {
		t.Fatalf("expected stderr verbatim, got %q", werr.Stderr)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestRunLaunchFailed(t *testing.T) {
	_, err := worker.Run(context.Background(), worker.Invocation{Executable: filepath.Join(t.TempDir(), "missing")})
	var werr *worker.Error
	if !errors.As(err, &werr) || werr.Kind != worker.LaunchFailed {
		t.Fatalf("expected LaunchFailed, got %v", err)
	}
}

func TestRunTimesOutAndKillsProcessGroup(t *testing.T) {
	path := script(t, "sleep 30 &\nwait\n")

	started := time.Now()
	_, err := worker.ExecRunner{GracePeriod: time.Second}.Run(context.Background(), worker.Invocation{
		Executable: path,
		Timeout:    100 * time.Millisecond,
	})
	var werr *worker.Error
	if !errors.As(err, &werr) || werr.Kind != worker.TimedOut {
		t.Fatalf("expected TimedOut, got %v", err)
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 10*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

func TestRunKillsDescendantsIgnoringTerm(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	path := script(t, "trap '' TERM\nsleep 60 &\necho $! > '"+pidFile+"'\nwait\n")

	_, err := worker.ExecRunner{GracePeriod: 300 * time.Millisecond}.Run(context.Background(), worker.Invocation{
		Executable: path,
		Timeout:    300 * time.Millisecond,
	})
	var werr *worker.Error
	if !errors.As(err, &werr) || werr.Kind != worker.TimedOut {
		t.Fatalf("expected TimedOut, got %v", err)
	}

	raw, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read child pid: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		t.Fatalf("parse child pid %q: %v", raw, err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		// Signal 0 fails once the process has been reaped; a zombie awaiting
		// its reparented reaper also counts as gone.
		if err := syscall.Kill(pid, 0); err != nil || isZombie(pid) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker descendant %d still alive after timeout", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func isZombie(pid int) bool {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestRunKeepsStderrTail(t *testing.T) {
	path := script(t, "head -c 200000 /dev/zero | tr '\\0' 'x' >&2\nprintf 'final error' >&2\nexit 1\n")

	_, err := worker.Run(context.Background(), worker.Invocation{Executable: path, Timeout: 5 * time.Second})
	var werr *worker.Error
	if !errors.As(err, &werr) || werr.Kind != worker.NonZeroExit {
		t.Fatalf("expected NonZeroExit, got %v", err)
	}
	if len(werr.Stderr) > 64<<10 {
		t.Fatalf("stderr not capped: %d bytes", len(werr.Stderr))
	}
	if !strings.HasSuffix(werr.Stderr, "final error") {
		t.Fatalf("expected stderr tail to be kept, got suffix %q", werr.Stderr[max(0, len(werr.Stderr)-20):])
	}
}

func TestRunCancelledByContext(t *testing.T) {
	path := script(t, "sleep 30\n")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := worker.Run(ctx, worker.Invocation{Executable: path, Timeout: time.Minute})
	var werr *worker.Error
	if !errors.As(err, &werr) || werr.Kind != worker.Cancelled {
		t.Fatalf("expected Cancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestRunAlreadyCancelledDoesNotLaunch(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	path := script(t, "touch '"+marker+"'\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := worker.Run(ctx, worker.Invocation{Executable: path})
	var werr *worker.Error
	if !errors.As(err, &werr) || werr.Kind != worker.Cancelled {
		t.Fatalf("expected Cancelled, got %v", err)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Fatalf("worker should not have been launched, stat err=%v", statErr)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  *worker.Error
		want string
	}{
		{&worker.Error{Kind: worker.NonZeroExit, Executable: "ffmpeg", Code: 1, Stderr: "boom\n"}, "ffmpeg exited with code 1: boom"},
		{&worker.Error{Kind: worker.TimedOut, Executable: "whisper", Timeout: 2 * time.Second}, "whisper timed out after 2s"},
		{&worker.Error{Kind: worker.Cancelled, Executable: "ffmpeg"}, "ffmpeg cancelled"},
	}
	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("Error() = %q, want %q", got, tc.want)
		}
	}
}
