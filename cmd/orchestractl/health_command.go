package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check every pipeline stage's external collaborator",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure()
			if err != nil {
				return err
			}
			results := c.GetHealth(cmd.Context())
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stages configured")
				return nil
			}
			rows := make([][]string, 0, len(results))
			unhealthy := false
			for _, h := range results {
				status := "ready"
				if !h.Ready {
					status = "unhealthy"
					unhealthy = true
				}
				if shouldColorize(cmd.OutOrStdout()) {
					if h.Ready {
						status = ansiGreen + status + ansiReset
					} else {
						status = ansiRed + status + ansiReset
					}
				}
				rows = append(rows, []string{h.Name, status, h.Detail})
			}
			out := renderTable([]string{"Stage", "Status", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft})
			fmt.Fprint(cmd.OutOrStdout(), out)
			if unhealthy {
				return fmt.Errorf("one or more stages are unhealthy")
			}
			return nil
		},
	}
}
