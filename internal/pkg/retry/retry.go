// Package retry re-runs short operations that failed transiently,
// with a bounded number of attempts and exponential backoff.
package retry

import (
	"context"
	"time"
)

// Policy controls how many times an operation runs and how long to
// wait between attempts. The delay doubles after every failure.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy retries twice more after the first failure, waiting
// 500ms and then 1s.
var DefaultPolicy = Policy{Attempts: 3, Delay: 500 * time.Millisecond}

// Do runs fn up to p.Attempts times, sleeping between attempts.
// A failure is retried only when retryable reports it as transient;
// any other error, or exhaustion of the attempts, returns the last
// error. Context cancellation during a backoff wait aborts early.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func() error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var err error
	delay := p.Delay
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !retryable(err) || attempt >= p.Attempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
