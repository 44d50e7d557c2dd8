package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker re-evaluates archive health on an interval. Each cycle publishes
// the window gauges and notifies the webhook about alerts that started
// firing; an alert that stays breached is sent once until it clears.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger

	// firing is only touched by the goroutine running the cycles.
	firing map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().With(zap.String("component", "monitoring")),
		firing:    map[AlertType]bool{},
	}
}

// Run checks once right away, then on every tick until ctx is cancelled.
// It always returns nil so it can sit in an errgroup beside the server.
func (c *Checker) Run(ctx context.Context) error {
	c.log.Info("monitoring: watching job health",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			c.Check(ctx)
		}
		select {
		case <-ctx.Done():
			c.log.Info("monitoring: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Check runs one cycle and returns the alerts that started firing in it.
// When the webhook call fails those alerts are forgotten, so the next cycle
// raises them again.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("monitoring: collect failed", zap.Error(err))
		return nil
	}
	publish(snap)

	raised := c.transition(c.alerter.Evaluate(snap))
	if len(raised) == 0 {
		return nil
	}

	types := make([]string, 0, len(raised))
	for _, a := range raised {
		types = append(types, string(a.Type))
	}

	if err := c.alerter.Notify(ctx, NewNotification(snap, raised)); err != nil {
		c.log.Error("monitoring: notification failed", zap.Strings("alerts", types), zap.Error(err))
		for _, a := range raised {
			delete(c.firing, a.Type)
		}
		return raised
	}

	c.log.Warn("monitoring: alerts raised",
		zap.Strings("alerts", types),
		zap.Int("finished", snap.Finished()),
		zap.Float64("failure_rate", snap.FailRate),
	)
	return raised
}

// transition replaces the firing set with alerts and returns the ones that
// were not firing before.
func (c *Checker) transition(alerts []Alert) []Alert {
	active := make(map[AlertType]bool, len(alerts))
	var raised []Alert
	for _, a := range alerts {
		active[a.Type] = true
		if !c.firing[a.Type] {
			raised = append(raised, a)
		}
	}

	for typ := range c.firing {
		if !active[typ] {
			c.log.Info("monitoring: alert cleared", zap.String("type", string(typ)))
		}
	}
	c.firing = active

	for _, typ := range alertTypes {
		v := 0.0
		if active[typ] {
			v = 1
		}
		alertsFiring.WithLabelValues(string(typ)).Set(v)
	}
	return raised
}
