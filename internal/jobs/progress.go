package jobs

import "github.com/sells-group/leadgen/internal/model"

// Fixed progress points per job status. Scraping fills the range up to
// progressScrapingEnd from extraction events.
const (
	progressStarting    = 0
	progressLaunching   = 2
	progressSearching   = 5
	progressCollectEnd  = 30
	progressScrapingEnd = 90
	progressValidating  = 90
	progressGenerating  = 95
	progressComplete    = 100
)

// progressFor maps an extraction event onto the job's 0-100 scale.
func progressFor(ev model.ProgressEvent) int {
	switch ev.Status {
	case model.ProgressLaunching:
		return progressLaunching
	case model.ProgressSearching, model.ProgressFallback:
		return progressSearching
	case model.ProgressCollecting:
		return scale(progressSearching, progressCollectEnd, deref(ev.Count), deref(ev.Total))
	case model.ProgressEnriching:
		// Events arrive before each navigation, so candidate i of n has
		// finished i-1 detail pages.
		return scale(progressCollectEnd, progressScrapingEnd, deref(ev.Current)-1, deref(ev.Total))
	case model.ProgressDone:
		return progressScrapingEnd
	default:
		return 0
	}
}

// scale places done/total linearly within [lo, hi].
func scale(lo, hi, done, total int) int {
	if total <= 0 || done <= 0 {
		return lo
	}
	if done >= total {
		return hi
	}
	return lo + (hi-lo)*done/total
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
