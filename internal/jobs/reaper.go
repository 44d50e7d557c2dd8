package jobs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
)

// Reap removes every job created before now minus the retention window,
// whatever its status, and deletes the reports of removed jobs. It returns
// the number of jobs removed.
func (m *Manager) Reap(now time.Time) int {
	cutoff := now.Add(-m.cfg.Retention)

	m.mu.Lock()
	var expired []*entry
	for id, e := range m.jobs {
		e.mu.Lock()
		old := e.job.CreatedAt.Before(cutoff)
		e.mu.Unlock()
		if old {
			expired = append(expired, e)
			delete(m.jobs, id)
		}
	}
	m.mu.Unlock()

	for _, e := range expired {
		e.mu.Lock()
		id, ref := e.job.ID, e.job.ArtifactRef
		e.mu.Unlock()
		if ref == "" {
			continue
		}
		if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.log.Warn("jobs: remove report", zap.String("job_id", id), zap.String("path", ref), zap.Error(err))
		}
	}

	if n := len(expired); n > 0 {
		jobsReaped.Add(float64(n))
		m.log.Info("jobs: reaped expired jobs", zap.Int("count", n))
	}
	return len(expired)
}

// RunReaper sweeps expired jobs every half retention window until ctx is
// done.
func (m *Manager) RunReaper(ctx context.Context) error {
	interval := m.cfg.Retention / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reap(m.now())
		}
	}
}
