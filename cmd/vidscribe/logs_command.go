package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidscribe/internal/ipc"
	"vidscribe/internal/logging"
	"vidscribe/internal/logs"
)

const logFollowWait = 5 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				cfg, cfgErr := ctx.ensureConfig()
				if cfgErr != nil {
					return cfgErr
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Daemon not reachable; reading", cfg.CurrentLogPath())
				return tailLogFile(cmd, cfg.CurrentLogPath(), lines, follow)
			}
			defer client.Close()
			return streamDaemonLogs(cmd, client, lines, strings.TrimSpace(jobID), follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent events to show")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show events for this job id")
	return cmd
}

func streamDaemonLogs(cmd *cobra.Command, client *ipc.Client, lines int, jobID string, follow bool) error {
	out := cmd.OutOrStdout()
	resp, err := client.LogTail(ipc.LogTailRequest{Limit: lines, JobID: jobID})
	if err != nil {
		return err
	}
	printLogEvents(out, resp.Events)

	next := resp.Next
	for follow && cmd.Context().Err() == nil {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Since:      next,
			Follow:     true,
			WaitMillis: int(logFollowWait / time.Millisecond),
			JobID:      jobID,
		})
		if err != nil {
			return err
		}
		printLogEvents(out, resp.Events)
		if resp.Next > next {
			next = resp.Next
		}
	}
	return nil
}

// tailLogFile prints raw lines from the log file when no daemon is running.
func tailLogFile(cmd *cobra.Command, path string, lines int, follow bool) error {
	out := cmd.OutOrStdout()
	chunk, err := logs.Last(path, lines)
	if err != nil {
		return err
	}
	for _, line := range chunk.Lines {
		fmt.Fprintln(out, line)
	}
	offset := chunk.Offset
	for follow {
		chunk, err := logs.Since(cmd.Context(), path, offset, logFollowWait)
		if err != nil {
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		}
		for _, line := range chunk.Lines {
			fmt.Fprintln(out, line)
		}
		offset = chunk.Offset
	}
	return nil
}

func printLogEvents(w io.Writer, events []logging.LogEvent) {
	for _, evt := range events {
		fmt.Fprintln(w, formatLogEvent(evt))
	}
}

// formatLogEvent renders an event as a single console line.
func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(evt.Level))
	if evt.Component != "" {
		b.WriteString(" [" + evt.Component + "]")
	}
	if evt.JobID != "" {
		b.WriteString(" job=" + shortJobID(evt.JobID))
	}
	if evt.Stage != "" {
		b.WriteString(" stage=" + evt.Stage)
	}
	b.WriteByte(' ')
	b.WriteString(evt.Message)

	if len(evt.Fields) > 0 {
		keys := make([]string, 0, len(evt.Fields))
		for k := range evt.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, evt.Fields[k])
		}
	}
	return b.String()
}
