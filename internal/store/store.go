// Package store archives finished jobs so their history outlives the
// in-memory retention window.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen/internal/model"
)

// ErrNotFound is returned when no archived job has the requested ID.
var ErrNotFound = eris.New("store: job not found")

// JobFilter specifies criteria for listing archived jobs.
type JobFilter struct {
	Status       model.JobStatus `json:"status,omitempty"`
	Category     string          `json:"category,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the job archive.
type Store interface {
	// SaveJob inserts the job or replaces an earlier snapshot of it.
	SaveJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)
	// PruneBefore deletes jobs created before t and returns how many went.
	PruneBefore(ctx context.Context, t time.Time) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}
