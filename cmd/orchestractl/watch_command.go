package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"jobforge/internal/jobrecord"
	"jobforge/internal/statemachine"
)

// pollInterval balances responsiveness against hammering the filesystem
// with repeated Locate/ReadMetadata scans.
const pollInterval = 500 * time.Millisecond

func newWatchJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <jobId>",
		Short: "Poll a job's state until it reaches DONE or FAILED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure()
			if err != nil {
				return err
			}
			jobID := args[0]

			total := len(c.Config.Pipeline.Stages)
			bar := progressbar.NewOptions(total,
				progressbar.OptionSetDescription(fmt.Sprintf("job %s", jobID)),
				progressbar.OptionSetWriter(cmd.OutOrStdout()),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)

			ticker := time.NewTicker(pollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-ticker.C:
					state, rec, err := c.GetJob(jobID)
					if err != nil {
						return err
					}
					done := 0
					for _, sc := range c.Config.Pipeline.Stages {
						if rec.StageState(sc.Name) == jobrecord.StageComplete {
							done++
						}
					}
					_ = bar.Set(done)

					if state == statemachine.Failed {
						fmt.Fprintf(cmd.OutOrStdout(), "\njob %s failed\n", jobID)
						return nil
					}
					if state == statemachine.Completed && done >= total {
						_ = bar.Finish()
						fmt.Fprintf(cmd.OutOrStdout(), "job %s completed\n", jobID)
						return nil
					}
				}
			}
		},
	}
}
