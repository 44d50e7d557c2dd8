package model

import "time"

// JobStatus represents the current state of an extraction job.
type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusScraping   JobStatus = "scraping"
	JobStatusValidating JobStatus = "validating"
	JobStatusGenerating JobStatus = "generating"
	JobStatusComplete   JobStatus = "complete"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether no further transition can leave the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// rank orders the non-error statuses along the happy path.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusStarting:
		return 0
	case JobStatusScraping:
		return 1
	case JobStatusValidating:
		return 2
	case JobStatusGenerating:
		return 3
	case JobStatusComplete:
		return 4
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next is allowed: forward
// along starting → scraping → validating → generating → complete, or to
// error from any non-terminal state.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == JobStatusError {
		return true
	}
	return next.rank() > s.rank()
}

// Job is one extraction request tracked from creation to a terminal state.
type Job struct {
	ID          string            `json:"id"`
	Query       ExtractionQuery   `json:"query"`
	Status      JobStatus         `json:"status"`
	Progress    int               `json:"progress"`
	Message     string            `json:"message"`
	ResultCount int               `json:"result_count"`
	Results     []ValidatedRecord `json:"results,omitempty"`
	ArtifactRef string            `json:"artifact_ref,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Snapshot returns a copy that shares no mutable state with j.
func (j Job) Snapshot() Job {
	if j.Results != nil {
		results := make([]ValidatedRecord, len(j.Results))
		copy(results, j.Results)
		j.Results = results
	}
	return j
}
