// Package retry wraps fallible venue calls with bounded, fixed-delay
// retries. No jitter and no exponential backoff: the ceiling and delay match
// the venue's documented retry contract.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = 5 * time.Second
)

// Clock abstracts time for deterministic testing
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

type Policy struct {
	attempts int
	delay    time.Duration
	clock    Clock
	logger   *zap.Logger
}

func NewPolicy(attempts int, delay time.Duration, clock Clock, logger *zap.Logger) *Policy {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Policy{
		attempts: attempts,
		delay:    delay,
		clock:    clock,
		logger:   logger,
	}
}

// Do runs fn up to the attempt ceiling, sleeping the fixed delay between
// attempts while isTransient holds for the returned error. Non-transient
// errors propagate immediately; the final attempt's error propagates
// unchanged.
func (p *Policy) Do(ctx context.Context, op string, fn func() error, isTransient func(error) bool) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if attempt == p.attempts {
			break
		}

		p.logger.Warn("Transient failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.attempts),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			p.clock.Sleep(p.delay)
		}
	}
	return err
}
