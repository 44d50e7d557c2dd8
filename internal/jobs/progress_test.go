package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadgen/internal/model"
)

func TestProgressFor(t *testing.T) {
	t.Parallel()
	ip := model.IntPtr

	tests := []struct {
		name string
		ev   model.ProgressEvent
		want int
	}{
		{"launching", model.ProgressEvent{Status: model.ProgressLaunching}, 2},
		{"searching", model.ProgressEvent{Status: model.ProgressSearching}, 5},
		{"fallback", model.ProgressEvent{Status: model.ProgressFallback}, 5},
		{"collecting none", model.ProgressEvent{Status: model.ProgressCollecting, Count: ip(0), Total: ip(20)}, 5},
		{"collecting half", model.ProgressEvent{Status: model.ProgressCollecting, Count: ip(10), Total: ip(20)}, 17},
		{"collecting over cap", model.ProgressEvent{Status: model.ProgressCollecting, Count: ip(25), Total: ip(20)}, 30},
		{"collecting without total", model.ProgressEvent{Status: model.ProgressCollecting, Count: ip(3)}, 5},
		{"enriching first", model.ProgressEvent{Status: model.ProgressEnriching, Current: ip(1), Total: ip(10)}, 30},
		{"enriching sixth", model.ProgressEvent{Status: model.ProgressEnriching, Current: ip(6), Total: ip(10)}, 60},
		{"enriching last", model.ProgressEvent{Status: model.ProgressEnriching, Current: ip(10), Total: ip(10)}, 84},
		{"done", model.ProgressEvent{Status: model.ProgressDone, Count: ip(10)}, 90},
		{"unknown", model.ProgressEvent{Status: "mystery"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, progressFor(tt.ev))
		})
	}
}

func TestProgressFor_StaysBelowValidating(t *testing.T) {
	t.Parallel()
	for i := 1; i <= 100; i++ {
		p := progressFor(model.ProgressEvent{Status: model.ProgressEnriching, Current: model.IntPtr(i), Total: model.IntPtr(100)})
		assert.LessOrEqual(t, p, progressValidating)
		assert.GreaterOrEqual(t, p, progressCollectEnd)
	}
}
