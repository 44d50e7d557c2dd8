// Package extract drives a browser session through a map listing interface:
// it collects candidate businesses from the list view, escalating through
// fallback views when nothing is found, then enriches each candidate from its
// detail page.
package extract

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen/internal/browser"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/internal/selector"
)

// Config tunes the engine. Zero values fall back to DefaultConfig.
type Config struct {
	PrimaryURL string
	SearchURL  string
	MapURL     string

	MaxIterations      int
	StagnationLimit    int
	FallbackIterations int
	FallbackStagnation int
	SettleDelay        time.Duration

	NavTimeout       time.Duration
	NavRate          float64 // detail navigations per second; <= 0 is unlimited
	NavBurst         int
	DetailRetries    int
	BreakerThreshold int
	BreakerCooldown  time.Duration

	ViewportWidth  int
	ViewportHeight int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PrimaryURL:         "https://www.google.com/maps/search/{query}",
		SearchURL:          "https://www.google.com/search?tbm=lcl&hl=en&q={query}",
		MapURL:             "https://www.google.com/maps?hl=en&q={query}",
		MaxIterations:      20,
		StagnationLimit:    4,
		FallbackIterations: 8,
		FallbackStagnation: 3,
		SettleDelay:        2 * time.Second,
		NavTimeout:         30 * time.Second,
		NavRate:            1,
		NavBurst:           2,
		DetailRetries:      2,
		BreakerThreshold:   5,
		BreakerCooldown:    time.Minute,
		ViewportWidth:      1366,
		ViewportHeight:     900,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PrimaryURL == "" && c.SearchURL == "" && c.MapURL == "" {
		c.PrimaryURL, c.SearchURL, c.MapURL = def.PrimaryURL, def.SearchURL, def.MapURL
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.StagnationLimit <= 0 {
		c.StagnationLimit = def.StagnationLimit
	}
	if c.FallbackIterations <= 0 {
		c.FallbackIterations = def.FallbackIterations
	}
	if c.FallbackStagnation <= 0 {
		c.FallbackStagnation = def.FallbackStagnation
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = def.NavTimeout
	}
	if c.NavBurst <= 0 {
		c.NavBurst = def.NavBurst
	}
	if c.DetailRetries <= 0 {
		c.DetailRetries = def.DetailRetries
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = def.BreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = def.BreakerCooldown
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		c.ViewportWidth, c.ViewportHeight = def.ViewportWidth, def.ViewportHeight
	}
	return c
}

// Engine runs extractions. One Engine is shared by all jobs; each Extract
// call owns its own driver. The detail navigation limiter is shared so
// concurrent jobs together respect NavRate.
type Engine struct {
	cfg     Config
	sel     selector.Set
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates an Engine.
func New(cfg Config, sel selector.Set) *Engine {
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.NavRate > 0 {
		limit = rate.Limit(cfg.NavRate)
	}

	return &Engine{
		cfg:     cfg,
		sel:     sel,
		limiter: rate.NewLimiter(limit, cfg.NavBurst),
		log:     zap.L().With(zap.String("component", "extract")),
	}
}

// Extract finds up to q.MaxRecords businesses matching q. Progress events are
// sent on events when it is non-nil; the channel is never closed here.
//
// It returns *DriverLaunchError when the browser cannot start and
// *NoResultsError when every strategy comes back empty. Detail page failures
// never fail the call.
func (e *Engine) Extract(ctx context.Context, q model.ExtractionQuery, newDriver browser.Factory, events chan<- model.ProgressEvent) ([]model.RawRecord, error) {
	q = q.Clamp()
	text := q.SearchText()
	log := e.log.With(zap.String("query", text), zap.Int("max_records", q.MaxRecords))

	emit(ctx, events, model.ProgressEvent{Status: model.ProgressLaunching, Message: "Launching browser"})

	drv, err := newDriver(ctx)
	if err != nil {
		return nil, &DriverLaunchError{Err: err}
	}
	defer func() {
		if cerr := drv.Close(); cerr != nil {
			log.Warn("extract: close driver", zap.Error(cerr))
		}
	}()

	if err := drv.SetViewport(ctx, e.cfg.ViewportWidth, e.cfg.ViewportHeight); err != nil {
		log.Warn("extract: set viewport", zap.Error(err))
	}

	records, err := e.collect(ctx, drv, q, text, events, log)
	if err != nil {
		return nil, err
	}
	if len(records) > q.MaxRecords {
		records = records[:q.MaxRecords]
	}
	log.Info("extract: collection finished", zap.Int("candidates", len(records)))

	if err := e.enrich(ctx, drv, records, events, log); err != nil {
		return nil, err
	}

	emit(ctx, events, model.ProgressEvent{
		Status:  model.ProgressDone,
		Message: "Extraction finished",
		Count:   model.IntPtr(len(records)),
	})
	return records, nil
}

// emit delivers ev unless events is nil or ctx ends first.
func emit(ctx context.Context, events chan<- model.ProgressEvent, ev model.ProgressEvent) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) newBreaker(log *zap.Logger) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{
		Threshold: e.cfg.BreakerThreshold,
		Cooldown:  e.cfg.BreakerCooldown,
		OnStateChange: func(from, to resilience.BreakerState) {
			log.Warn("extract: detail breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}
