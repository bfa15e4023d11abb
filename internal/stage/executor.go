package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/worker"
)

// Executor runs stages through a worker.Runner.
type Executor struct {
	runner worker.Runner
	logger *slog.Logger
}

// NewExecutor constructs an executor. A nil runner uses worker.ExecRunner.
func NewExecutor(runner worker.Runner, logger *slog.Logger) *Executor {
	if runner == nil {
		runner = worker.ExecRunner{}
	}
	return &Executor{runner: runner, logger: logging.NewComponentLogger(logger, "stage")}
}

// Execute runs spec once. ctx doubles as the cancel token: a context already
// done yields a cancelled result without launching anything, and cancelling
// mid-run terminates the worker.
func (e *Executor) Execute(ctx context.Context, spec Spec) Result {
	stageCtx := services.WithStage(ctx, spec.Name)
	logger := logging.WithContext(stageCtx, e.logger)

	if err := ctx.Err(); err != nil {
		logger.Info("stage skipped", logging.String(logging.FieldEventType, "stage_cancelled"))
		return Result{StageName: spec.Name, Diagnostic: KindCancelled, Kind: KindCancelled, Err: err}
	}

	if spec.ProducesFile() {
		// A stale artifact from an earlier attempt must not satisfy the check.
		if err := os.Remove(spec.OutputFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("stale output removal failed", logging.String("path", spec.OutputFile), logging.Error(err))
		}
	}

	args := spec.RenderArgs()
	logger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("stage_label", stageLabel(spec.Name)),
		logging.String("executable", spec.Executable),
		logging.Int("arg_count", len(args)),
	)
	logger.Debug("worker command", logging.String("args", strings.Join(args, " ")))

	out, err := e.runner.Run(stageCtx, worker.Invocation{
		Executable: spec.Executable,
		Args:       args,
		Timeout:    spec.Timeout,
		Dir:        spec.Dir,
	})
	result := Result{StageName: spec.Name, Duration: out.Duration}
	if err != nil {
		result.Kind, result.Diagnostic = classify(spec, err)
		result.Err = err
		e.logFailure(logger, result)
		return result
	}

	if spec.ProducesFile() {
		if diag := verifyFile(spec.OutputFile); diag != "" {
			result.Kind = KindEmptyOutput
			result.Diagnostic = diag
			result.Err = services.Wrap(services.ErrExternalTool, spec.Name, "verify output", diag, ErrEmptyOutput)
			e.logFailure(logger, result)
			return result
		}
		result.Output = spec.OutputFile
	} else {
		text := strings.TrimSpace(out.Stdout)
		if text == "" {
			result.Kind = KindEmptyOutput
			result.Diagnostic = fmt.Sprintf("%s produced no output on stdout", filepath.Base(spec.Executable))
			if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
				result.Diagnostic += ": " + stderr
			}
			result.Err = services.Wrap(services.ErrExternalTool, spec.Name, "verify output", result.Diagnostic, ErrEmptyOutput)
			e.logFailure(logger, result)
			return result
		}
		result.Output = text
	}

	result.Succeeded = true
	logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", result.Duration),
		logging.Int("output_bytes", len(result.Output)),
	)
	return result
}

func (e *Executor) logFailure(logger *slog.Logger, result Result) {
	if result.Kind == KindCancelled {
		logger.Info(
			"stage cancelled",
			logging.String(logging.FieldEventType, "stage_cancelled"),
			logging.Duration("duration", result.Duration),
		)
		return
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("failure_kind", result.Kind),
		logging.String("diagnostic", result.Diagnostic),
		logging.String(logging.FieldErrorHint, failureHint(result.Kind)),
		logging.Error(result.Err),
	)
}

func classify(spec Spec, err error) (string, string) {
	var werr *worker.Error
	if !errors.As(err, &werr) {
		return KindLaunchFailed, err.Error()
	}
	name := filepath.Base(spec.Executable)
	switch werr.Kind {
	case worker.Cancelled:
		return KindCancelled, KindCancelled
	case worker.TimedOut:
		return KindTimedOut, fmt.Sprintf("%s timed out after %s", name, spec.Timeout)
	case worker.NonZeroExit:
		diag := fmt.Sprintf("%s exited with code %d", name, werr.Code)
		if stderr := strings.TrimRight(werr.Stderr, "\r\n"); stderr != "" {
			diag += ": " + stderr
		}
		return KindNonZeroExit, diag
	default:
		return KindLaunchFailed, fmt.Sprintf("failed to launch %s: %v", spec.Executable, werr.Err)
	}
}

func verifyFile(path string) string {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("worker exited successfully but did not create %s", path)
	case err != nil:
		return fmt.Sprintf("cannot inspect output %s: %v", path, err)
	case info.IsDir():
		return fmt.Sprintf("expected output file but found directory %s", path)
	case info.Size() == 0:
		return fmt.Sprintf("worker exited successfully but %s is empty", path)
	}
	return ""
}

func failureHint(kind string) string {
	switch kind {
	case KindLaunchFailed:
		return "install the worker or fix its command path in the config file"
	case KindTimedOut:
		return "raise timeout_seconds for this stage or use a shorter input"
	case KindEmptyOutput:
		return "run the worker by hand to confirm it writes output for this input"
	default:
		return "inspect the worker diagnostic for the cause"
	}
}

func stageLabel(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
}
