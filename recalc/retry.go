package recalc

import (
	"context"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// RetryPolicy bounds the attempts made against an external store.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(d.MaxDelay, p.BaseDelay)
	}
	return p
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// retry runs fn until it succeeds, fails with a non-retryable error, the
// attempts are exhausted, or ctx is done. Failures other than client and
// not-found errors are returned as *attendance.StoreError.
func retry(ctx context.Context, p RetryPolicy, op string, fn func(context.Context) error) (int, error) {
	var err error
	attempt := 0
	for attempt < p.Attempts {
		attempt++
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if !attendance.IsRetryable(err) || attempt == p.Attempts {
			break
		}

		t := time.NewTimer(p.Backoff(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
			return attempt, storeError(op, err)
		}
	}
	return attempt, storeError(op, err)
}

func storeError(op string, err error) error {
	if attendance.IsClientError(err) || attendance.IsNotFound(err) {
		return err
	}
	if _, ok := err.(*attendance.StoreError); ok {
		return err
	}
	return &attendance.StoreError{Op: op, Err: err}
}
