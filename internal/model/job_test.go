package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status JobStatus
		want   string
	}{
		{JobStatusStarting, "starting"},
		{JobStatusScraping, "scraping"},
		{JobStatusValidating, "validating"},
		{JobStatusGenerating, "generating"},
		{JobStatusComplete, "complete"},
		{JobStatusError, "error"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestJobStatus_CanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusStarting, JobStatusScraping, true},
		{JobStatusScraping, JobStatusValidating, true},
		{JobStatusValidating, JobStatusGenerating, true},
		{JobStatusGenerating, JobStatusComplete, true},
		{JobStatusScraping, JobStatusError, true},
		{JobStatusGenerating, JobStatusError, true},
		{JobStatusValidating, JobStatusScraping, false},
		{JobStatusComplete, JobStatusError, false},
		{JobStatusError, JobStatusScraping, false},
		{JobStatusError, JobStatusComplete, false},
		{JobStatusComplete, JobStatusComplete, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestJob_SnapshotCopiesResults(t *testing.T) {
	t.Parallel()

	j := Job{ID: "j1", Results: []ValidatedRecord{{Name: "A"}}}
	snap := j.Snapshot()
	snap.Results[0].Name = "changed"

	assert.Equal(t, "A", j.Results[0].Name)
}
