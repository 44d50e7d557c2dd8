package monitoring

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/internal/extract"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/store"
)

// fakeLister filters an in-memory job list the way the archive does.
type fakeLister struct {
	jobs    []model.Job
	listErr error
	filter  store.JobFilter
}

func (f *fakeLister) ListJobs(_ context.Context, filter store.JobFilter) ([]model.Job, error) {
	f.filter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Job
	for _, j := range f.jobs {
		if !filter.CreatedAfter.IsZero() && j.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func archived(status model.JobStatus, leads int, errMsg string, age, took time.Duration) model.Job {
	created := testNow.Add(-age)
	return model.Job{
		Status:      status,
		ResultCount: leads,
		Error:       errMsg,
		CreatedAt:   created,
		UpdatedAt:   created.Add(took),
	}
}

func newTestCollector(l JobLister) *Collector {
	c := NewCollector(l)
	c.now = func() time.Time { return testNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	noResults := extract.NoResultsPrefix + " for \"bakeries in Kerala, India\""
	l := &fakeLister{jobs: []model.Job{
		archived(model.JobStatusComplete, 20, "", time.Hour, 60*time.Second),
		archived(model.JobStatusComplete, 10, "", 2*time.Hour, 30*time.Second),
		archived(model.JobStatusError, 0, noResults, 3*time.Hour, 10*time.Second),
		archived(model.JobStatusError, 0, "navigation timeout", 4*time.Hour, 20*time.Second),
		// outside the 24h window
		archived(model.JobStatusError, 0, noResults, 30*time.Hour, time.Second),
	}}

	snap, err := newTestCollector(l).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, testNow.Add(-24*time.Hour), l.filter.CreatedAfter)
	assert.Equal(t, 10000, l.filter.Limit)

	assert.Equal(t, 4, snap.JobsTotal)
	assert.Equal(t, 2, snap.JobsComplete)
	assert.Equal(t, 2, snap.JobsFailed)
	assert.Equal(t, 1, snap.JobsNoResults)
	assert.Equal(t, 4, snap.Finished())
	assert.InDelta(t, 0.5, snap.FailRate, 0.001)
	assert.InDelta(t, 0.25, snap.NoResultsRate, 0.001)
	assert.Equal(t, 30, snap.LeadsTotal)
	assert.InDelta(t, 15.0, snap.AvgLeads, 0.001)
	assert.InDelta(t, 30.0, snap.AvgDurationSecs, 0.001)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, testNow, snap.CollectedAt)

	require.Len(t, snap.RecentFailures, 2)
	assert.True(t, snap.RecentFailures[0].NoResults, "newest failure first")
	assert.Equal(t, "navigation timeout", snap.RecentFailures[1].Error)
	assert.False(t, snap.RecentFailures[1].NoResults)
}

func TestCollector_Collect_RecentFailuresCapped(t *testing.T) {
	var jobs []model.Job
	for i := 0; i < 8; i++ {
		j := archived(model.JobStatusError, 0, "navigation timeout", time.Duration(i+1)*time.Hour, time.Second)
		j.ID = fmt.Sprintf("job-%d", i)
		j.Query = model.ExtractionQuery{Category: "Bakeries", Region: "Kerala", Country: "India"}
		jobs = append(jobs, j)
	}

	snap, err := newTestCollector(&fakeLister{jobs: jobs}).Collect(context.Background(), 24)
	require.NoError(t, err)

	require.Len(t, snap.RecentFailures, maxRecentFailures)
	assert.Equal(t, "job-0", snap.RecentFailures[0].ID)
	assert.Equal(t, "job-4", snap.RecentFailures[4].ID)
	assert.Equal(t, "Bakeries in Kerala, India", snap.RecentFailures[0].Query)
}

func TestCollector_Collect_Empty(t *testing.T) {
	snap, err := newTestCollector(&fakeLister{}).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Zero(t, snap.JobsTotal)
	assert.Zero(t, snap.FailRate)
	assert.Zero(t, snap.AvgLeads)
	assert.Zero(t, snap.AvgDurationSecs)
}

func TestCollector_Collect_SkipsUnfinished(t *testing.T) {
	l := &fakeLister{jobs: []model.Job{
		archived(model.JobStatusScraping, 0, "", time.Hour, time.Minute),
		archived(model.JobStatusComplete, 8, "", time.Hour, 40*time.Second),
	}}

	snap, err := newTestCollector(l).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.JobsTotal)
	assert.Equal(t, 1, snap.Finished())
	assert.InDelta(t, 40.0, snap.AvgDurationSecs, 0.001)
}

func TestCollector_Collect_ListError(t *testing.T) {
	l := &fakeLister{listErr: errors.New("database is locked")}

	_, err := newTestCollector(l).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list jobs")
}

func TestCollector_Collect_SQLiteArchive(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	now := time.Now().UTC()
	for i, j := range []model.Job{
		{ID: "a", Status: model.JobStatusComplete, ResultCount: 12, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-59 * time.Minute)},
		{ID: "b", Status: model.JobStatusError, Error: extract.NoResultsPrefix, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "c", Status: model.JobStatusComplete, ResultCount: 3, CreatedAt: now.Add(-48 * time.Hour), UpdatedAt: now.Add(-48 * time.Hour)},
	} {
		j.Query = model.ExtractionQuery{Category: "bakeries", Region: "Kerala", Country: "India", MaxRecords: 20}
		require.NoError(t, st.SaveJob(ctx, j), "job %d", i)
	}

	snap, err := NewCollector(st).Collect(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.JobsTotal)
	assert.Equal(t, 1, snap.JobsNoResults)
	assert.Equal(t, 12, snap.LeadsTotal)
}
