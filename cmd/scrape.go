package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/report"
)

var (
	scrapeCategory string
	scrapeRegion   string
	scrapeCountry  string
	scrapeLeads    int
	scrapeOut      string
	scrapePoll     time.Duration
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one extraction job and write its report",
	Long:  "Runs a single job in the foreground through the same orchestrator the server uses, prints progress to stderr and the report path to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("scrape"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()
		defer env.Manager.Wait()

		q := model.ExtractionQuery{
			Category:   scrapeCategory,
			Region:     scrapeRegion,
			Country:    scrapeCountry,
			MaxRecords: scrapeLeads,
		}
		id, err := env.Manager.CreateJob(q)
		if err != nil {
			return err
		}
		zap.L().Info("scrape: job started", zap.String("job_id", id))

		job, err := waitForJob(ctx, env.Manager, id, scrapePoll, os.Stderr)
		if err != nil {
			return err
		}
		if job.Status == model.JobStatusError {
			return eris.Errorf("scrape: job %s failed: %s", id, job.Error)
		}

		path := job.ArtifactRef
		if scrapeOut != "" {
			dest := scrapeOut
			if info, err := os.Stat(dest); err == nil && info.IsDir() {
				dest = filepath.Join(dest, report.FileName(job.Query))
			}
			if err := copyFile(path, dest); err != nil {
				return err
			}
			path = dest
		}

		fmt.Fprintf(os.Stderr, "Found %d leads\n", job.ResultCount)
		fmt.Fprintln(os.Stdout, path)
		return nil
	},
}

// statusReader is the part of the orchestrator waitForJob polls.
type statusReader interface {
	GetStatus(id string) (model.Job, error)
}

// waitForJob polls until the job is terminal, writing a line to w whenever
// its status, progress or message changes.
func waitForJob(ctx context.Context, jobs statusReader, id string, interval time.Duration, w io.Writer) (model.Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last model.Job
	for {
		job, err := jobs.GetStatus(id)
		if err != nil {
			return model.Job{}, eris.Wrapf(err, "scrape: poll job %s", id)
		}
		if job.Status != last.Status || job.Progress != last.Progress || job.Message != last.Message {
			_, _ = fmt.Fprintf(w, "[%3d%%] %-10s %s\n", job.Progress, job.Status, job.Message)
			last = job
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return model.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrap(err, "scrape: open report")
	}
	defer in.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrap(err, "scrape: create output dir")
	}
	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrap(err, "scrape: create output")
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return eris.Wrap(err, "scrape: copy report")
	}
	return eris.Wrap(out.Close(), "scrape: close output")
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeCategory, "category", "", "business category, e.g. \"bakeries\"")
	scrapeCmd.Flags().StringVar(&scrapeRegion, "region", "", "region or state")
	scrapeCmd.Flags().StringVar(&scrapeCountry, "country", "", "country")
	scrapeCmd.Flags().IntVar(&scrapeLeads, "leads", 20, "maximum number of leads (1-100)")
	scrapeCmd.Flags().StringVar(&scrapeOut, "out", "", "copy the report to this file or directory")
	scrapeCmd.Flags().DurationVar(&scrapePoll, "poll", 500*time.Millisecond, "progress polling interval")
	_ = scrapeCmd.MarkFlagRequired("category")
	_ = scrapeCmd.MarkFlagRequired("region")
	_ = scrapeCmd.MarkFlagRequired("country")
	rootCmd.AddCommand(scrapeCmd)
}
