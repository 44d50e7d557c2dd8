// Package monitoring computes job health from the archive and raises
// webhook alerts when extraction starts failing.
package monitoring

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen/internal/extract"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/store"
)

// MetricsSnapshot holds a point-in-time view of extraction health.
type MetricsSnapshot struct {
	JobsTotal     int     `json:"jobs_total"`
	JobsComplete  int     `json:"jobs_complete"`
	JobsFailed    int     `json:"jobs_failed"`
	JobsNoResults int     `json:"jobs_no_results"`
	FailRate      float64 `json:"fail_rate"`
	NoResultsRate float64 `json:"no_results_rate"`

	LeadsTotal      int     `json:"leads_total"`
	AvgLeads        float64 `json:"avg_leads"`
	AvgDurationSecs float64 `json:"avg_duration_secs"`

	// RecentFailures lists the newest failed searches, at most
	// maxRecentFailures of them.
	RecentFailures []FailedJob `json:"recent_failures,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// FailedJob is a failed search as shown in alerts and stats.
type FailedJob struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Error     string    `json:"error"`
	NoResults bool      `json:"no_results"`
	At        time.Time `json:"at"`
}

const maxRecentFailures = 5

// Finished is the number of jobs that reached a terminal state.
func (s *MetricsSnapshot) Finished() int {
	return s.JobsComplete + s.JobsFailed
}

// JobLister is the part of the archive the collector reads.
type JobLister interface {
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.Job, error)
}

// Collector gathers metrics from the job archive.
type Collector struct {
	jobs JobLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(jobs JobLister) *Collector {
	return &Collector{jobs: jobs, now: time.Now}
}

// Collect gathers a snapshot of job metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	jobs, err := c.jobs.ListJobs(ctx, store.JobFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}

	snap.JobsTotal = len(jobs)
	var totalDuration time.Duration

	for _, j := range jobs {
		switch j.Status {
		case model.JobStatusComplete:
			snap.JobsComplete++
			snap.LeadsTotal += j.ResultCount
		case model.JobStatusError:
			snap.JobsFailed++
			noResults := strings.HasPrefix(j.Error, extract.NoResultsPrefix)
			if noResults {
				snap.JobsNoResults++
			}
			snap.RecentFailures = append(snap.RecentFailures, FailedJob{
				ID:        j.ID,
				Query:     j.Query.SearchText(),
				Error:     j.Error,
				NoResults: noResults,
				At:        j.UpdatedAt,
			})
		default:
			continue
		}
		totalDuration += j.UpdatedAt.Sub(j.CreatedAt)
	}

	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.JobsFailed) / float64(finished)
		snap.NoResultsRate = float64(snap.JobsNoResults) / float64(finished)
		snap.AvgDurationSecs = totalDuration.Seconds() / float64(finished)
	}
	if snap.JobsComplete > 0 {
		snap.AvgLeads = float64(snap.LeadsTotal) / float64(snap.JobsComplete)
	}

	slices.SortStableFunc(snap.RecentFailures, func(a, b FailedJob) int {
		return b.At.Compare(a.At)
	})
	if len(snap.RecentFailures) > maxRecentFailures {
		snap.RecentFailures = snap.RecentFailures[:maxRecentFailures]
	}

	return snap, nil
}
