// Package retry provides the attempt policy used for transient upstream
// failures, most notably the commit-status reporter.
package retry

import (
	"context"
	"fmt"
	"time"
)

// BackoffMode selects how the delay grows between attempts.
type BackoffMode string

const (
	BackoffFixed       BackoffMode = "fixed"
	BackoffLinear      BackoffMode = "linear"
	BackoffExponential BackoffMode = "exponential"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode        BackoffMode   // fixed|linear|exponential
	Initial     time.Duration // base delay; zero means retry immediately
	Max         time.Duration // cap for growth
	MaxAttempts int           // total attempts including the first
}

// DefaultPolicy returns the policy used by the status reporter: 5 sequential
// attempts with no delay between them.
func DefaultPolicy() Policy {
	return Policy{Mode: BackoffFixed, Initial: 0, Max: 0, MaxAttempts: 5}
}

// Delay returns the backoff delay before the given retry (1-based: the delay
// before the second attempt is Delay(1)).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 || p.Initial <= 0 {
		return 0
	}
	switch p.Mode {
	case BackoffExponential:
		d := p.Initial * (1 << (retryCount - 1))
		if p.Max > 0 && d > p.Max {
			return p.Max
		}
		return d
	case BackoffLinear:
		d := time.Duration(retryCount) * p.Initial
		if p.Max > 0 && d > p.Max {
			return p.Max
		}
		return d
	default:
		return p.Initial
	}
}

// Validate ensures invariants; returns an error if the policy cannot be applied.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >=1")
	}
	if p.Initial < 0 {
		return fmt.Errorf("initial delay cannot be negative")
	}
	return nil
}

// Do runs fn up to MaxAttempts times, sleeping per the policy between
// attempts, until fn returns nil. The last error is returned after the final
// attempt. Context cancellation aborts the loop between attempts.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if lastErr != nil {
			if d := p.Delay(attempt - 1); d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return lastErr
				}
			} else if err := ctx.Err(); err != nil {
				return lastErr
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
