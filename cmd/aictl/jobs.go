package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/perculacms/aicore/internal/types"
)

func newJobsCmd(c *cli) *cobra.Command {
	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the AI job ledger",
	}

	var filter types.JobFilter
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				filter.Status = types.JobStatus(strings.ToUpper(status))
				if filter.Status != types.JobPending && !filter.Status.Terminal() {
					return fmt.Errorf("unknown status %q", status)
				}
			}

			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.ListJobs(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tAGENT\tVENDOR\tMODEL\tSTATUS\tTOKENS\tCOST\tMS")
			for _, j := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s/%s\t%s\t%s\n",
					j.ID, j.StartedAt.Local().Format("2006-01-02 15:04:05"), j.AgentLabel,
					j.VendorType, j.Model, j.Status,
					optInt(j.InputTokens), optInt(j.OutputTokens), price(j.Cost), optInt64(j.DurationMs))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&filter.AgentLabel, "agent", "", "agent label")
	list.Flags().StringVar(&status, "status", "", "PENDING, COMPLETED or ERROR")
	list.Flags().StringVar(&filter.Principal, "principal", "", "invoking principal")
	list.Flags().IntVar(&filter.Limit, "limit", 50, "maximum rows")

	show := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			job, err := st.GetJob(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("job %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		},
	}

	jobs.AddCommand(list, show)
	return jobs
}

func optInt(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

func optInt64(p *int64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}
