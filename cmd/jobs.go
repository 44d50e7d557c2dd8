package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/monitoring"
	"github.com/sells-group/leadgen/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect archived extraction jobs",
	Long:  "Commands for listing, viewing, and pruning the snapshots of finished jobs kept in the job archive.",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("jobs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := st.ListJobs(ctx, store.JobFilter{
			Status:   model.JobStatus(status),
			Category: category,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, list)
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show the full snapshot of an archived job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("jobs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// -- jobs prune --

var jobsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archived jobs older than a cutoff",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("jobs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return eris.New("jobs prune: --older-than must be positive")
		}

		n, err := st.PruneBefore(ctx, time.Now().Add(-olderThan))
		if err != nil {
			return eris.Wrap(err, "jobs prune")
		}
		fmt.Fprintf(os.Stdout, "Pruned %d jobs.\n", n)
		return nil
	},
}

// -- jobs stats --

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize job outcomes over a recent window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("jobs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			return eris.New("jobs stats: --since must be at least 1h")
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}

		formatStats(os.Stdout, snap)
		for _, a := range monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap) {
			fmt.Fprintf(os.Stdout, "ALERT [%s] %s\n", a.Severity, a.Message)
		}
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by job status (complete, error)")
	jobsListCmd.Flags().String("category", "", "filter by business category")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsStatsCmd.Flags().Duration("since", 24*time.Hour, "lookback window, rounded down to whole hours")

	jobsPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete jobs created before now minus this duration")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsPruneCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, list []model.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tQUERY\tSTATUS\tLEADS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t-----\t-------\t--------")

	for _, j := range list {
		dur := j.UpdatedAt.Sub(j.CreatedAt).Round(time.Second).String()

		query := j.Query.SearchText()
		if r := []rune(query); len(r) > 40 {
			query = string(r[:37]) + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(j.ID),
			query,
			j.Status,
			j.ResultCount,
			j.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatStats writes a metrics snapshot as aligned key/value rows.
func formatStats(out io.Writer, snap *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Jobs:\t%d (%d complete, %d failed)\n", snap.JobsTotal, snap.JobsComplete, snap.JobsFailed)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.FailRate*100)
	_, _ = fmt.Fprintf(w, "No results:\t%d (%.1f%%)\n", snap.JobsNoResults, snap.NoResultsRate*100)
	_, _ = fmt.Fprintf(w, "Leads:\t%d (avg %.1f per job)\n", snap.LeadsTotal, snap.AvgLeads)
	_, _ = fmt.Fprintf(w, "Avg duration:\t%s\n", time.Duration(snap.AvgDurationSecs*float64(time.Second)).Round(time.Second))
	for i, f := range snap.RecentFailures {
		label := ""
		if i == 0 {
			label = "Recent failures:"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s  %s: %s\n", label, truncateID(f.ID), f.Query, f.Error)
	}
	_ = w.Flush()
}
