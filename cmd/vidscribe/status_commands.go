package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidscribe/internal/api"
	"vidscribe/internal/daemonctl"
	"vidscribe/internal/deps"
	"vidscribe/internal/ipc"
	"vidscribe/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, job, and worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(status, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func renderStatus(status *ipc.StatusResponse, colorize bool) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line(renderSectionHeader("Daemon", colorize))
	if status.Running {
		line(renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
	} else {
		line(renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	if status.APIAddress != "" {
		line(renderStatusLine("HTTP API", statusInfo, status.APIAddress, colorize))
	}
	line(renderStatusLine("Transcript", statusInfo, status.TranscriptPath, colorize))
	line(renderStatusLine("Scratch", statusInfo, status.ScratchRoot, colorize))
	b.WriteByte('\n')

	line(renderSectionHeader("Jobs", colorize))
	if status.Active != nil {
		for _, l := range jobSummary(*status.Active, colorize) {
			line(l)
		}
	} else {
		line(renderStatusLine("Active", statusInfo, "idle", colorize))
	}
	if status.LastJob != nil {
		line(renderStatusLine("Last job", stateKind(status.LastJob.State),
			fmt.Sprintf("%s %s (%s)", status.LastJob.ID, status.LastJob.State, filepath.Base(status.LastJob.SourcePath)), colorize))
	}
	b.WriteByte('\n')

	line(renderSectionHeader("Workers", colorize))
	for _, dep := range status.Dependencies {
		line(dependencyLine(dep, colorize))
	}
	return b.String()
}

func dependencyLine(dep api.DependencyStatus, colorize bool) string {
	if dep.Available {
		msg := dep.Path
		if dep.Version != "" {
			msg += " (" + dep.Version + ")"
		}
		return renderStatusLine(dep.Name, statusOK, msg, colorize)
	}
	detail := strings.TrimSpace(dep.Detail)
	if detail == "" {
		detail = "not available"
	}
	kind := statusError
	if dep.Optional {
		kind = statusWarn
	}
	return renderStatusLine(dep.Name, kind, detail, colorize)
}

func newLastCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "last",
		Short: "Print the most recently saved transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			transcript, err := daemonctl.LastTranscript(cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.TranscriptResponse{Transcript: transcript})
			}
			if transcript == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "No transcript has been saved yet")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), transcript.Text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := daemonctl.History(cmd.Context(), cfg, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded yet")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderHistory(entries))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func renderHistory(entries []api.HistoryEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		job := entry.Job
		outcome := job.State
		if job.Error != nil {
			outcome += " (" + job.Error.Kind + ")"
		}
		rows = append(rows, []string{
			shortJobID(job.ID),
			outcome,
			filepath.Base(job.SourcePath),
			formatDuration(job.DurationSeconds),
			strconv.Itoa(entry.TranscriptChars),
			job.FinishedAt,
		})
	}
	return renderTable(
		[]string{"Job", "Outcome", "Source", "Duration", "Chars", "Finished"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func shortJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check worker binaries and directory access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := preflight.CheckSystemDeps(cfg)
			checks := preflight.RunAll(cmd.Context(), cfg)
			if asJSON {
				if err := writeJSON(cmd, map[string]any{"workers": statuses, "checks": checks}); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), renderDeps(statuses, checks))
			}
			if missing := deps.Missing(statuses); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, m := range missing {
					names = append(names, m.Name)
				}
				return fmt.Errorf("missing required workers: %s", strings.Join(names, ", "))
			}
			if failed := preflight.Failed(checks); len(failed) > 0 {
				return errors.New(failed[0].Name + ": " + failed[0].Detail)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func renderDeps(statuses []deps.Status, checks []preflight.Result) string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		state := "missing"
		if s.Available {
			state = "ok"
		}
		location := s.Path
		if location == "" {
			location = s.Detail
		}
		rows = append(rows, []string{s.Name, s.Command, state, location, s.Version})
	}
	out := renderTable([]string{"Worker", "Command", "State", "Location", "Version"}, rows, nil)

	checkRows := make([][]string, 0, len(checks))
	for _, c := range checks {
		state := "fail"
		if c.Passed {
			state = "ok"
		}
		checkRows = append(checkRows, []string{c.Name, state, c.Detail})
	}
	return out + renderTable([]string{"Check", "State", "Detail"}, checkRows, nil)
}
