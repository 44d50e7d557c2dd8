// Package jobs runs extraction jobs in the background and tracks each one
// through starting, scraping, validating, generating and a terminal complete
// or error status.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/browser"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/store"
	"github.com/sells-group/leadgen/internal/validate"
)

// Lookup errors.
var (
	ErrInvalidQuery = eris.New("jobs: category, region and country are required")
	ErrNotFound     = eris.New("jobs: job not found")
	ErrNotReady     = eris.New("jobs: job is not complete")
)

// Extractor finds raw records for a query.
type Extractor interface {
	Extract(ctx context.Context, q model.ExtractionQuery, newDriver browser.Factory, events chan<- model.ProgressEvent) ([]model.RawRecord, error)
}

// Reporter renders validated records to a file and returns its path.
type Reporter interface {
	Generate(records []model.ValidatedRecord, path string) (string, error)
}

// Config controls job retention and output.
type Config struct {
	// Retention is how long a job stays queryable after creation,
	// regardless of status. Default: 1h.
	Retention time.Duration
	// OutputDir receives one workbook per completed job.
	OutputDir string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithArchive persists every job snapshot that reaches a terminal status.
func WithArchive(s store.Store) Option {
	return func(m *Manager) { m.archive = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// entry is one tracked job. Its mutex guards every read and write of job.
type entry struct {
	mu  sync.Mutex
	job model.Job
}

// Manager owns the in-memory job table. The table lock only guards
// insert, delete and lookup; each job is guarded by its own lock.
type Manager struct {
	cfg       Config
	extractor Extractor
	newDriver browser.Factory
	reporter  Reporter
	archive   store.Store
	now       func() time.Time

	// base is the parent context of every pipeline; cancelling it stops
	// running browsers at shutdown.
	base context.Context

	mu   sync.RWMutex
	jobs map[string]*entry

	wg  sync.WaitGroup
	log *zap.Logger
}

// NewManager creates a Manager. Pipelines run under ctx.
func NewManager(ctx context.Context, cfg Config, extractor Extractor, newDriver browser.Factory, reporter Reporter, opts ...Option) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(os.TempDir(), "leadgen")
	}
	m := &Manager{
		cfg:       cfg,
		extractor: extractor,
		newDriver: newDriver,
		reporter:  reporter,
		now:       time.Now,
		base:      ctx,
		jobs:      make(map[string]*entry),
		log:       zap.L().With(zap.String("component", "jobs")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Retention returns the configured retention window.
func (m *Manager) Retention() time.Duration { return m.cfg.Retention }

// CreateJob validates q, clamps its record cap, registers a job and starts
// its pipeline in the background. It returns the new job's ID immediately.
func (m *Manager) CreateJob(q model.ExtractionQuery) (string, error) {
	q = q.Clamp()
	if q.Category == "" || q.Region == "" || q.Country == "" {
		return "", ErrInvalidQuery
	}

	now := m.now()
	id := uuid.New().String()
	e := &entry{job: model.Job{
		ID:        id,
		Query:     q,
		Status:    model.JobStatusStarting,
		Progress:  progressStarting,
		Message:   "Job queued",
		CreatedAt: now,
		UpdatedAt: now,
	}}

	m.mu.Lock()
	m.jobs[id] = e
	m.mu.Unlock()

	jobsCreated.Inc()
	jobsActive.Inc()
	m.log.Info("jobs: created",
		zap.String("job_id", id),
		zap.String("category", q.Category),
		zap.String("region", q.Region),
		zap.String("country", q.Country),
		zap.Int("max_records", q.MaxRecords),
	)

	m.wg.Add(1)
	go m.run(id, q)
	return id, nil
}

// GetStatus returns a snapshot of the job.
func (m *Manager) GetStatus(id string) (model.Job, error) {
	e := m.lookup(id)
	if e == nil {
		return model.Job{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Snapshot(), nil
}

// GetArtifact returns the report path of a complete job.
func (m *Manager) GetArtifact(id string) (string, error) {
	job, err := m.GetStatus(id)
	if err != nil {
		return "", err
	}
	if job.Status != model.JobStatusComplete || job.ArtifactRef == "" {
		return "", ErrNotReady
	}
	return job.ArtifactRef, nil
}

// List returns snapshots of every tracked job, in no particular order.
func (m *Manager) List() []model.Job {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.jobs))
	for _, e := range m.jobs {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]model.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.job.Snapshot())
		e.mu.Unlock()
	}
	return out
}

// Wait blocks until every started pipeline has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// artifactPath is where the report of job id is written.
func (m *Manager) artifactPath(id string) string {
	return filepath.Join(m.cfg.OutputDir, id+".xlsx")
}

func (m *Manager) lookup(id string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// run executes one pipeline and records its outcome. Panics are recovered
// into the job's error status.
func (m *Manager) run(id string, q model.ExtractionQuery) {
	defer m.wg.Done()
	log := m.log.With(zap.String("job_id", id))
	start := m.now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("jobs: pipeline panic", zap.Any("panic", r), zap.Stack("stack"))
			m.fail(id, fmt.Sprint(r))
		}
		m.finish(id, start, log)
	}()

	if err := m.pipeline(id, q, log); err != nil {
		log.Error("jobs: pipeline failed", zap.Error(err))
		m.fail(id, err.Error())
	}
}

func (m *Manager) pipeline(id string, q model.ExtractionQuery, log *zap.Logger) error {
	ctx := m.base

	m.advance(id, model.JobStatusScraping, progressStarting, "Starting browser")

	raw, err := m.extract(ctx, id, q)
	if err != nil {
		return err
	}
	log.Info("jobs: extraction finished", zap.Int("raw_records", len(raw)))

	m.advance(id, model.JobStatusValidating, progressValidating, fmt.Sprintf("Validating %d records", len(raw)))
	records := validate.Validate(raw)

	m.advance(id, model.JobStatusGenerating, progressGenerating, fmt.Sprintf("Generating report for %d leads", len(records)))
	ref, err := m.reporter.Generate(records, m.artifactPath(id))
	if err != nil {
		return eris.Wrap(err, "jobs: generate report")
	}

	m.update(id, func(j *model.Job) {
		if !j.Status.CanTransition(model.JobStatusComplete) {
			return
		}
		j.Status = model.JobStatusComplete
		j.Progress = progressComplete
		j.Message = fmt.Sprintf("Found %d leads", len(records))
		j.ResultCount = len(records)
		j.Results = records
		j.ArtifactRef = ref
	})
	recordsExtracted.Add(float64(len(records)))
	return nil
}

// extract runs the extractor while a goroutine folds its progress events
// into the job. The event channel is closed and drained even when Extract
// panics, so the panic reaches run without stranding the drain goroutine.
func (m *Manager) extract(ctx context.Context, id string, q model.ExtractionQuery) ([]model.RawRecord, error) {
	events := make(chan model.ProgressEvent, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			m.update(id, func(j *model.Job) {
				j.Progress = max(j.Progress, progressFor(ev))
				if ev.Message != "" {
					j.Message = ev.Message
				}
			})
		}
	}()
	defer func() {
		close(events)
		<-drained
	}()

	return m.extractor.Extract(ctx, q, m.newDriver, events)
}

// advance moves the job to status when the transition is allowed.
func (m *Manager) advance(id string, status model.JobStatus, progress int, msg string) {
	m.update(id, func(j *model.Job) {
		if !j.Status.CanTransition(status) {
			return
		}
		j.Status = status
		j.Progress = max(j.Progress, progress)
		j.Message = msg
	})
}

// fail moves the job to error with msg as both error and message.
func (m *Manager) fail(id, msg string) {
	m.update(id, func(j *model.Job) {
		if !j.Status.CanTransition(model.JobStatusError) {
			return
		}
		j.Status = model.JobStatusError
		j.Error = msg
		j.Message = msg
	})
}

// update applies fn to the job under its lock. A reaped job is silently
// skipped.
func (m *Manager) update(id string, fn func(j *model.Job)) {
	e := m.lookup(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.job)
	e.job.UpdatedAt = m.now()
}

// finish records metrics and archives the terminal snapshot.
func (m *Manager) finish(id string, start time.Time, log *zap.Logger) {
	jobsActive.Dec()

	e := m.lookup(id)
	if e == nil {
		// Nothing can download the report of a reaped job.
		if err := os.Remove(m.artifactPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn("jobs: remove orphaned report", zap.Error(err))
		}
		log.Info("jobs: finished after being reaped")
		return
	}
	e.mu.Lock()
	snap := e.job.Snapshot()
	e.mu.Unlock()

	jobsFinished.WithLabelValues(string(snap.Status)).Inc()
	jobDuration.WithLabelValues(string(snap.Status)).Observe(m.now().Sub(start).Seconds())
	log.Info("jobs: finished",
		zap.String("status", string(snap.Status)),
		zap.Int("result_count", snap.ResultCount),
	)

	if m.archive == nil {
		return
	}
	// The base context may already be cancelled at shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.base), 10*time.Second)
	defer cancel()
	if err := m.archive.SaveJob(ctx, snap); err != nil {
		log.Warn("jobs: archive snapshot", zap.Error(err))
	}
}
