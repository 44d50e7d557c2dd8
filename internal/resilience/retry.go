package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy controls Do.
type Policy struct {
	// Attempts is the total number of tries, including the first. Default: 2.
	Attempts int
	// Backoff is the delay before the first retry; it doubles per retry up
	// to MaxBackoff. Defaults: 750ms and 10s.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Jitter spreads each delay by ±Jitter of itself (0 to 1).
	Jitter float64
	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is the policy used for detail page navigations.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   2,
		Backoff:    750 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
		Jitter:     0.2,
	}
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Retryable reports whether Do should try again after err. Caller
// cancellation, open breakers and permanent errors are final; anything else
// (timeouts, dropped targets, missing wait selectors) is worth another try.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *PermanentError
	switch {
	case errors.As(err, &perm):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrOpen):
		return false
	}
	return true
}

// Do runs fn until it succeeds, returns a non-retryable error, the context
// ends, or the policy's attempts are used up. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || ctx.Err() != nil || !Retryable(err) || attempt >= p.Attempts {
			return err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	return p
}

// delay returns the sleep before retry number attempt (1-based).
func (p Policy) delay(attempt int) time.Duration {
	d := p.MaxBackoff
	if attempt < 32 {
		d = p.Backoff << (attempt - 1)
	}
	if d <= 0 || d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	return max(d, 0)
}

// LogRetry returns an OnRetry callback that logs each retry at WARN.
func LogRetry(operation string, fields ...zap.Field) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			append([]zap.Field{
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err),
			}, fields...)...,
		)
	}
}
