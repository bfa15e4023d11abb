package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vidscribe/internal/api"
	"vidscribe/internal/config"
	"vidscribe/internal/ledger"
	"vidscribe/internal/logging"
	"vidscribe/internal/notifications"
	"vidscribe/internal/supervisor"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "transcribe <video>",
		Short: "Transcribe a video in this process, printing the transcript",
		Long: "Runs extraction and transcription without the daemon. Progress goes to stderr, the\n" +
			"transcript to stdout. Ctrl-C cancels the job and stops the running worker.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sup, cleanup, err := newLocalSupervisor(cfg, ctx.logLevel())
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := sup.Submit(args[0])
			if err != nil {
				return err
			}
			sub, err := sup.Subscribe(id)
			if err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-sigCtx.Done()
				_ = sup.Cancel(id)
			}()

			stderr := cmd.ErrOrStderr()
			for {
				evt, err := sub.Next(context.Background())
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				if !quiet {
					fmt.Fprintln(stderr, formatProgressEvent(api.FromProgressEvent(evt)))
				}
			}
			sup.Wait()

			snap, err := sup.State(id)
			if err != nil {
				return err
			}
			return jobOutcome(cmd, api.FromSnapshot(snap), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the finished job as JSON instead of the transcript")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

// newLocalSupervisor builds an in-process supervisor that shares the daemon's
// ledger, transcript slot, and scratch lock.
func newLocalSupervisor(cfg *config.Config, level string) (*supervisor.Supervisor, func(), error) {
	if level == "" {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	opts := []supervisor.Option{
		supervisor.WithLogger(logger),
		supervisor.WithNotifier(notifications.NewService(cfg)),
	}
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		logging.WarnWithContext(logger, "job ledger unavailable; history will not include this run", "ledger_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job is not archived"),
		)
	} else {
		opts = append(opts, supervisor.WithLedger(store))
	}

	sup := supervisor.New(cfg, opts...)
	cleanup := func() {
		if store != nil {
			_ = store.Close()
		}
	}
	return sup, cleanup, nil
}
