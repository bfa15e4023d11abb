package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vidscribe/internal/api"
	"vidscribe/internal/ipc"
	"vidscribe/internal/supervisor"
)

const watchPollWait = 20 * time.Second

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit <video>",
		Short: "Queue a video on the daemon and print the job id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := client.Submit(args[0])
				if err != nil {
					if errors.Is(err, supervisor.ErrBusy) {
						return fmt.Errorf("%w; cancel it or wait for it to finish", err)
					}
					return err
				}
				if !wait {
					if asJSON {
						return writeJSON(cmd, api.SubmitResponse{JobID: id})
					}
					fmt.Fprintln(cmd.OutOrStdout(), id)
					return nil
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Submitted job", id)
				return watchJob(cmd, client, id, asJSON)
			})
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow progress and print the transcript when done")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				err := client.Cancel(args[0])
				switch {
				case errors.Is(err, supervisor.ErrAlreadyTerminal):
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s already finished\n", args[0])
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s\n", args[0])
				return nil
			})
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "watch [job-id]",
		Short: "Follow a job's progress until it finishes",
		Long:  "Follows the given job, or the active job when no id is passed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				var id string
				if len(args) == 1 {
					id = args[0]
				} else {
					status, err := client.Status()
					if err != nil {
						return err
					}
					if status.Active == nil {
						return errors.New("no active job; pass a job id to inspect a finished one")
					}
					id = status.Active.ID
				}
				return watchJob(cmd, client, id, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the finished job as JSON instead of the transcript")
	return cmd
}

// watchJob prints progress events until the job's stream closes, then reports
// the terminal job. Streams that were already pruned skip straight to the
// outcome.
func watchJob(cmd *cobra.Command, client *ipc.Client, id string, asJSON bool) error {
	stderr := cmd.ErrOrStderr()
	var since uint64
	for {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		resp, err := client.Progress(id, since, watchPollWait)
		if errors.Is(err, supervisor.ErrNotFound) {
			break
		}
		if err != nil {
			return err
		}
		for _, evt := range resp.Events {
			fmt.Fprintln(stderr, formatProgressEvent(evt))
		}
		since = resp.Next
		if resp.Done {
			break
		}
	}

	job, err := client.State(id)
	if err != nil {
		return err
	}
	if !job.Terminal {
		return fmt.Errorf("job %s is still %s", id, job.State)
	}
	return jobOutcome(cmd, *job, asJSON)
}
