package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/printworks/jobtrack/internal/config"
	"github.com/printworks/jobtrack/internal/worker"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Queue an urgency sweep now",
		Long:  "Queues the same urgency sweep the cron schedule runs. A sweep already queued within the last minute is not duplicated.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("sweep: load config: %w", err)
			}

			client := asynq.NewClient(asynq.RedisClientOpt{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer client.Close()

			return runSweep(cmd.OutOrStdout(), client)
		},
	}
}

func runSweep(out io.Writer, enq worker.Enqueuer) error {
	info, err := enq.Enqueue(worker.NewUrgencySweepTask(), worker.SweepOptions()...)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			fmt.Fprintln(out, "Urgency sweep already queued")
			return nil
		}
		return fmt.Errorf("sweep: enqueue: %w", err)
	}
	fmt.Fprintf(out, "Queued urgency sweep %s on %s\n", info.ID, info.Queue)
	return nil
}
