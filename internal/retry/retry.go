// Package retry runs an operation with bounded exponential backoff and
// jitter. Only errors the caller classifies as retryable are retried.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Default policy values.
const (
	DefaultAttempts  = 5
	DefaultBaseDelay = 20 * time.Millisecond
	DefaultMaxDelay  = 500 * time.Millisecond
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// policy's attempts are used up. A nil retryable retries every error. The
// last error is returned wrapped so errors.Is still matches it.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func() error) error {
	attempts := max(p.Attempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(p.delay(attempt)):
			}
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// delay computes the backoff for an attempt index: exponential growth capped
// at MaxDelay, then uniform jitter in [d/2, d).
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	d := base << min(attempt, 30)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	half := int64(d) / 2
	if half <= 0 {
		return d
	}
	return time.Duration(half + rand.Int63n(half)) //nolint:gosec // jitter does not need crypto/rand
}
