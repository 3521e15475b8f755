package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/petrijr/jobseal"
	"github.com/petrijr/jobseal/pkg/config"
)

// app carries what every subcommand needs once the root command has
// loaded the configuration.
type app struct {
	envFiles []string
	cfg      *config.Config
	logger   *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "jobseal",
		Short: "Submit and process background jobs with sealed sensitive data",
		Long: `jobseal submits jobs to a shared persistent queue and runs workers for them.

Sensitive parts of a job are encrypted to the worker's public key before
they are stored. Storage and worker settings are read from JOBSEAL_*
environment variables and optional .env files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.envFiles...)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.NewLogger(cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "env files to load (default .env)")

	root.AddCommand(
		newKeygenCommand(a),
		newPublishKeyCommand(a),
		newSubmitCommand(a),
		newWorkCommand(a),
	)
	return root
}

func (a *app) openStore(ctx context.Context) (*jobseal.Store, func() error, error) {
	return jobseal.OpenStore(ctx, a.cfg.Store, a.logger)
}
