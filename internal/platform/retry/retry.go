package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

// Policy is a bounded exponential backoff budget.
type Policy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Hook observes every failed attempt that will be retried.
type Hook func(name string, attempt int, err error)

// Do runs fn until it succeeds, returns a Permanent error, the context ends,
// or the attempt budget is spent. The returned error wraps the last failure.
func Do(ctx context.Context, name string, p Policy, log *logger.Logger, hook Hook, fn func(ctx context.Context) error) error {
	p = p.normalized()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 && log != nil {
				log.Info("succeeded after retry", "operation", name, "attempt", attempt)
			}
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: retry aborted: %w", name, lastErr)
		}
		if hook != nil {
			hook(name, attempt, lastErr)
		}
		delay := Delay(attempt, p)
		if log != nil {
			log.Warn("operation failed, retrying",
				"operation", name,
				"attempt", attempt,
				"max_attempts", p.MaxAttempts,
				"error", lastErr,
				"next_delay", delay,
			)
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: retry aborted during backoff: %w", name, lastErr)
		}
	}
	if p.MaxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", name, p.MaxAttempts, lastErr)
}

// Delay is the backoff before attempt+1.
func Delay(attempt int, p Policy) time.Duration {
	p = p.normalized()
	backoff := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	backoff += backoff * p.JitterFraction * (2*rand.Float64() - 1)
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	if backoff < 0 {
		backoff = float64(p.InitialDelay)
	}
	return time.Duration(backoff)
}
