package model

// ProgressStatus enumerates the phases an extraction reports while running.
type ProgressStatus string

const (
	ProgressLaunching  ProgressStatus = "launching"
	ProgressSearching  ProgressStatus = "searching"
	ProgressFallback   ProgressStatus = "fallback"
	ProgressCollecting ProgressStatus = "collecting"
	ProgressEnriching  ProgressStatus = "enriching"
	ProgressDone       ProgressStatus = "done"
)

// ProgressEvent is a transient signal from the extraction engine. Optional
// counters are nil when not applicable.
type ProgressEvent struct {
	Status  ProgressStatus `json:"status"`
	Message string         `json:"message"`
	Current *int           `json:"current,omitempty"`
	Total   *int           `json:"total,omitempty"`
	Count   *int           `json:"count,omitempty"`
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
