// Package ratelimit enforces a minimum wall-clock interval between calls to
// a named external operation. The last-call timestamp lives in the shared
// store, so independent processes hitting the same venue endpoint are
// jointly throttled. Reads and writes are deliberately not lock-protected:
// under contention a few calls may land slightly early, which the venue
// tolerates.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the venue's documented call-rate ceiling (3 rps).
const DefaultInterval = time.Second / 3

// Clock abstracts time for deterministic testing
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// TimestampStore is the slice of the control store the limiter needs.
type TimestampStore interface {
	GetTimestamp(ctx context.Context, key string) (float64, error)
	SetTimestamp(ctx context.Context, key string, ts float64) error
}

type Limiter struct {
	store    TimestampStore
	interval time.Duration
	clock    Clock
	logger   *zap.Logger
}

func NewLimiter(store TimestampStore, interval time.Duration, clock Clock, logger *zap.Logger) *Limiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Limiter{
		store:    store,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Wait blocks the calling goroutine until at least the configured interval
// has elapsed since the last recorded call under key. Callers must invoke
// Record after the guarded operation completes.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	last, err := l.store.GetTimestamp(ctx, key)
	if err != nil {
		return err
	}
	if last == 0 {
		return nil
	}

	now := epochSeconds(l.clock.Now())
	residual := l.interval - secondsToDuration(now-last)
	if residual > 0 {
		l.logger.Debug("Rate limit wait", zap.String("key", key), zap.Duration("residual", residual))
		l.clock.Sleep(residual)
	}
	return nil
}

// Record writes the current instant as the last-call timestamp under key.
func (l *Limiter) Record(ctx context.Context, key string) error {
	return l.store.SetTimestamp(ctx, key, epochSeconds(l.clock.Now()))
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
