package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"jobforge/internal/jobstore"
	"jobforge/internal/statemachine"
)

func colorizeState(state statemachine.State) string {
	switch state {
	case statemachine.Completed:
		return ansiGreen + string(state) + ansiReset
	case statemachine.Failed:
		return ansiRed + string(state) + ansiReset
	default:
		return ansiYellow + string(state) + ansiReset
	}
}

func newCreateJobCommand(ctx *commandContext) *cobra.Command {
	var inputFlag string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new job from a JSON input descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure()
			if err != nil {
				return err
			}
			var input json.RawMessage
			if strings.TrimSpace(inputFlag) != "" {
				if !json.Valid([]byte(inputFlag)) {
					return fmt.Errorf("--input is not valid JSON")
				}
				input = json.RawMessage(inputFlag)
			}
			rec, err := c.CreateJob(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created job %s\n", rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&inputFlag, "input", "", "JSON input descriptor for the job")
	return cmd
}

func newListJobsCommand(ctx *commandContext) *cobra.Command {
	var stateFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure()
			if err != nil {
				return err
			}
			state := statemachine.State(strings.ToUpper(strings.TrimSpace(stateFlag)))
			entries, err := c.ListJobs(state)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs found")
				return nil
			}
			rows := buildJobListRows(entries)
			out := renderTable(
				[]string{"ID", "State", "Created", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&stateFlag, "state", "", "Filter by state (NEW, CLAIMED, RUNNING, DONE, FAILED)")
	return cmd
}

func buildJobListRows(entries []jobstore.Enumeration) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		created, updated := "", ""
		if e.Metadata != nil {
			created = humanize.Time(e.Metadata.CreatedAt)
			updated = humanize.Time(e.Metadata.UpdatedAt)
		}
		rows = append(rows, []string{e.JobID, string(e.State), created, updated})
	}
	return rows
}

func newGetJobCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <jobId>",
		Short: "Show a single job's state and stage records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure()
			if err != nil {
				return err
			}
			state, rec, err := c.GetJob(args[0])
			if err != nil {
				return err
			}
			stateText := string(state)
			if shouldColorize(cmd.OutOrStdout()) {
				stateText = colorizeState(state)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job:    %s\nstate:  %s\ncreated: %s\nupdated: %s\n",
				rec.ID, stateText, rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), rec.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
			if len(rec.Stages) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(rec.Stages))
			for name, sr := range rec.Stages {
				rows = append(rows, []string{name, string(sr.Status), sr.Provider, strings.Join(sr.Artifacts, ", ")})
			}
			out := renderTable([]string{"Stage", "Status", "Provider", "Artifacts"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft})
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	return cmd
}

func newGetJobLogCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "log <jobId>",
		Short: "Print a job's append-only log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure()
			if err != nil {
				return err
			}
			text, err := c.GetJobLog(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newGetJobArtifactsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts <jobId>",
		Short: "List a job's per-stage artifact files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure()
			if err != nil {
				return err
			}
			byStage, err := c.GetJobArtifacts(args[0])
			if err != nil {
				return err
			}
			if len(byStage) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no artifacts recorded")
				return nil
			}
			rows := make([][]string, 0)
			for stage, files := range byStage {
				for _, f := range files {
					rows = append(rows, []string{stage, f})
				}
			}
			out := renderTable([]string{"Stage", "Artifact"}, rows, []columnAlignment{alignLeft, alignLeft})
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newRetryJobCommand(ctx *commandContext) *cobra.Command {
	var reasonFlag string

	cmd := &cobra.Command{
		Use:   "retry <jobId>",
		Short: "Move a failed job back to NEW so the pipeline reprocesses it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensure()
			if err != nil {
				return err
			}
			if _, err := c.RetryJob(cmd.Context(), args[0], reasonFlag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s requeued\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reasonFlag, "reason", "", "Reason for the retry, recorded in the job's log")
	return cmd
}
