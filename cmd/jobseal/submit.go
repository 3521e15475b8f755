package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/client"
	"github.com/petrijr/jobseal/pkg/sealer"
	"github.com/petrijr/jobseal/pkg/telemetry"
)

func newSubmitCommand(a *app) *cobra.Command {
	var (
		data      string
		sensitive string
		queue     string
		wait      bool
	)

	cmd := &cobra.Command{
		Use:   "submit TYPE",
		Short: "Submit a job",
		Long: `Submits a job of the given type. --data and --sensitive take JSON objects;
the sensitive object is encrypted to the published worker key. With --wait
the command blocks until a worker has consumed the job.`,
		Example: `  jobseal submit send-email --data '{"to":"a@example.com"}' --sensitive '{"token":"s3cr3t"}'
  jobseal submit render-report --queue fast --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseObject("data", data)
			if err != nil {
				return err
			}
			secret, err := parseObject("sensitive", sensitive)
			if err != nil {
				return err
			}

			qt := a.cfg.Queue()
			if queue != "" {
				if qt, err = api.ParseQueueType(queue); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			sub, err := client.New(st,
				client.WithQueueType(qt),
				client.WithGateway(sealer.NewGateway(st, sealer.WithFailurePolicy(a.cfg.Policy()))),
				client.WithLogger(telemetry.NewSlogLogger(a.logger)),
				client.WithPerformTimeout(a.cfg.PerformTimeout),
			)
			if err != nil {
				return err
			}

			rec, err := sub.AddJob(ctx, args[0], payload, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.Name())

			if wait {
				if err := sub.Wait(ctx, rec); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "completed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "job data as a JSON object")
	cmd.Flags().StringVar(&sensitive, "sensitive", "", "sensitive data as a JSON object, encrypted before storage")
	cmd.Flags().StringVar(&queue, "queue", "", "queue type: default, session or fast (default from JOBSEAL_QUEUE_TYPE)")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until a worker consumed the job")
	return cmd
}

// parseObject decodes a JSON object flag. An empty flag yields nil.
func parseObject(name, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	if out == nil {
		return nil, fmt.Errorf("--%s: expected a JSON object", name)
	}
	return out, nil
}
