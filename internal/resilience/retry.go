// Package resilience retries transient failures of remote fetches: boundary archive
// downloads and upstream basemap tiles.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls retries with exponential backoff and jitter.
type Policy struct {
	// Attempts is the total number of tries, the first included. Default 3.
	Attempts int
	// Backoff is the delay before the first retry. Default 250ms.
	Backoff time.Duration
	// MaxBackoff caps any single delay. Default 10s.
	MaxBackoff time.Duration
	// Jitter spreads each delay by up to this fraction either way. Default 0.2;
	// negative disables it.
	Jitter float64
	// Retryable overrides IsTransient.
	Retryable func(err error) bool
	// Name labels retry log lines.
	Name string
}

const (
	defaultAttempts   = 3
	defaultBackoff    = 250 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
	defaultJitter     = 0.2
)

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = defaultAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	} else if p.Jitter == 0 {
		p.Jitter = defaultJitter
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Do calls fn until it succeeds, fails with a non-retryable error, the attempts run
// out or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions returning a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt >= p.Attempts-1 {
			return zero, err
		}

		delay := p.delay(attempt)
		zap.L().Warn("retrying after transient failure",
			zap.String("operation", p.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
