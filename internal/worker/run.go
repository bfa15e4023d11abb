package worker

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	defaultGracePeriod = 5 * time.Second
	// maxStderrBytes caps captured stderr; the tail is kept since that is
	// where tools report the failure.
	maxStderrBytes = 64 << 10
)

// Invocation describes a single worker run.
type Invocation struct {
	Executable string
	Args       []string
	// Timeout bounds the run; zero means no limit beyond the caller's context.
	Timeout time.Duration
	Dir     string
}

// Output is the captured result of a successful run.
type Output struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes worker invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Output, error)
}

// ExecRunner runs workers as child processes.
type ExecRunner struct {
	// GracePeriod is how long a terminated worker has to exit after SIGTERM
	// before it is killed outright.
	GracePeriod time.Duration
}

// Run executes inv with the default ExecRunner.
func Run(ctx context.Context, inv Invocation) (Output, error) {
	return ExecRunner{}.Run(ctx, inv)
}

// Run starts the worker, blocks until it exits, and classifies the outcome.
// Failures are always *Error.
func (r ExecRunner) Run(ctx context.Context, inv Invocation) (Output, error) {
	grace := r.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	var stdout bytes.Buffer
	stderr := tailBuffer{max: maxStderrBytes}
	cmd := exec.CommandContext(runCtx, inv.Executable, inv.Args...) //nolint:gosec
	cmd.Dir = inv.Dir
	cmd.Stdin = nil
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return terminateGroup(cmd)
	}
	cmd.WaitDelay = grace

	if err := ctx.Err(); err != nil {
		return Output{}, &Error{Kind: Cancelled, Executable: inv.Executable, Err: err}
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Output{}, &Error{Kind: LaunchFailed, Executable: inv.Executable, Err: err}
	}
	waitErr := cmd.Wait()
	// The leader is gone; anything left in its group has outlived the run.
	killGroup(cmd.Process.Pid)
	out := Output{
		Stdout:   decode(stdout.Bytes()),
		Stderr:   decode(stderr.Bytes()),
		Duration: time.Since(started),
	}

	// Context state decides first: a worker killed for a timeout or cancel
	// reports a signal exit that must not read as an ordinary failure.
	switch {
	case ctx.Err() != nil:
		return out, &Error{Kind: Cancelled, Executable: inv.Executable, Stderr: out.Stderr, Err: ctx.Err()}
	case runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return out, &Error{Kind: TimedOut, Executable: inv.Executable, Stderr: out.Stderr, Timeout: inv.Timeout, Err: runCtx.Err()}
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return out, &Error{Kind: NonZeroExit, Executable: inv.Executable, Code: exitErr.ExitCode(), Stderr: out.Stderr, Err: waitErr}
		}
		if errors.Is(waitErr, exec.ErrWaitDelay) {
			// Worker exited cleanly but a descendant kept the output pipes open.
			return out, nil
		}
		return out, &Error{Kind: NonZeroExit, Executable: inv.Executable, Code: -1, Stderr: out.Stderr, Err: waitErr}
	}
	return out, nil
}

// terminateGroup sends SIGTERM to the worker's whole process group. Members
// still alive once the grace period ends are killed by killGroup.
func terminateGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func killGroup(pgid int) {
	_ = unix.Kill(-pgid, unix.SIGKILL)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	return b.buf
}

func decode(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	text, _, err := transform.Bytes(runes.ReplaceIllFormed(), raw)
	if err != nil {
		return string(bytes.ToValidUTF8(raw, []byte("�")))
	}
	return string(text)
}
