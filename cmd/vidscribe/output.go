package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"vidscribe/internal/api"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render() + "\n"
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"

	statusLabelWidth = 14
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := map[statusKind]string{statusOK: "OK", statusWarn: "WARN", statusError: "ERROR"}[kind]
	if tag == "" {
		tag = "INFO"
	}
	line := fmt.Sprintf("  %-*s [%s]", statusLabelWidth, label+":", tag)
	if message != "" {
		line += " " + message
	}
	if !colorize {
		return line
	}
	color := map[statusKind]string{statusOK: ansiGreen, statusWarn: ansiYellow, statusError: ansiRed, statusInfo: ansiBlue}[kind]
	return color + line + ansiReset
}

func renderSectionHeader(title string, colorize bool) string {
	line := "== " + strings.TrimSpace(title) + " =="
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatProgressEvent(evt api.ProgressEvent) string {
	if evt.Stage == "" {
		return fmt.Sprintf("[%3d%%] %s", evt.Progress, evt.Message)
	}
	return fmt.Sprintf("[%3d%%] %-10s %s", evt.Progress, evt.Stage, evt.Message)
}

func stateKind(state string) statusKind {
	switch state {
	case "completed":
		return statusOK
	case "cancelled":
		return statusWarn
	case "failed":
		return statusError
	default:
		return statusInfo
	}
}

func formatDuration(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Round(100 * time.Millisecond).String()
}

// jobSummary renders a job in a few labelled lines.
func jobSummary(job api.Job, colorize bool) []string {
	lines := []string{
		renderStatusLine("Job", stateKind(job.State), fmt.Sprintf("%s (%s)", job.ID, job.State), colorize),
		renderStatusLine("Source", statusInfo, job.SourcePath, colorize),
	}
	if job.Terminal {
		lines = append(lines, renderStatusLine("Duration", statusInfo, formatDuration(job.DurationSeconds), colorize))
	} else {
		lines = append(lines, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d%% %s", job.Progress.Percent, job.Progress.Message), colorize))
	}
	if job.Error != nil {
		lines = append(lines, renderStatusLine("Error", statusError,
			fmt.Sprintf("%s during %s: %s", job.Error.Kind, job.Error.Stage, job.Error.Diagnostic), colorize))
	}
	if job.Warning != "" {
		lines = append(lines, renderStatusLine("Warning", statusWarn, job.Warning, colorize))
	}
	return lines
}

// jobOutcome turns a terminal job into the command's result: the transcript on
// stdout for a completed job, an exitError otherwise.
func jobOutcome(cmd *cobra.Command, job api.Job, asJSON bool) error {
	if asJSON {
		if err := writeJSON(cmd, job); err != nil {
			return err
		}
	}
	if job.Warning != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", job.Warning)
	}
	switch job.State {
	case "completed":
		if !asJSON {
			fmt.Fprintln(cmd.OutOrStdout(), job.Transcript)
		}
		return nil
	case "cancelled":
		return &exitError{code: 130, msg: "job " + job.ID + " cancelled"}
	default:
		msg := "job " + job.ID + " " + job.State
		if job.Error != nil {
			msg = fmt.Sprintf("%s failed: %s: %s", job.Error.Stage, job.Error.Kind, job.Error.Diagnostic)
		}
		return &exitError{code: 1, msg: msg}
	}
}
