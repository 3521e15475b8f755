package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petrijr/jobseal"
	"github.com/petrijr/jobseal/pkg/api"
)

func newWorkCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Run a worker that logs and completes every job",
		Long: `Consumes jobs from the configured queue, logs each one with its decrypted
data and completes it. SIGINT or SIGTERM stop claiming new jobs and wait
up to JOBSEAL_SHUTDOWN_TIMEOUT for in-flight ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, err := jobseal.NewBundle(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			a.logger.Info("worker_ready",
				slog.String("queue", a.cfg.Queue().String()),
				slog.String("store", a.cfg.Store.Driver),
				slog.Bool("keypair", b.Keypair != nil),
			)
			return b.Run(ctx, logJob(a.logger))
		},
	}
}

func logJob(logger *slog.Logger) jobseal.Process {
	return func(ctx context.Context, job *api.Job, complete api.CompleteFunc) error {
		logger.InfoContext(ctx, "job_processed",
			slog.String("id", job.ID),
			slog.String("type", job.Type),
			slog.Int("attempts", job.Attempts),
			slog.Int("fields", len(job.Data)),
		)
		complete(nil)
		return nil
	}
}
