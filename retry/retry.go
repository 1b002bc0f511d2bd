// Package retry implements the bounded exponential backoff policy used
// for upstream gateway calls: jittered exponential delays, a configurable
// retryable-status set, and a context-interruptible sleep.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Defaults for Policy zero-value normalization.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 10 * time.Second
)

// DefaultStatuses is the default retryable-status set for raw HTTP
// retries. Callers that classify 429 for user-visible handling (so a
// rate limit surfaces immediately instead of burning retries) should
// pass their own set without it.
func DefaultStatuses() []int {
	return []int{408, 429, 500, 502, 503, 504}
}

// Policy decides whether to retry and how long to wait between attempts.
// The zero value is usable and behaves like Default().
type Policy struct {
	MaxRetries int           // retries after the initial attempt; total tries = MaxRetries + 1
	BaseDelay  time.Duration // first backoff step
	MaxDelay   time.Duration // ceiling before jitter
	Statuses   []int         // HTTP statuses worth retrying; nil = DefaultStatuses()

	// Jitter returns a value in [0, 1). Nil uses math/rand/v2; tests
	// inject a fixed source to pin delays.
	Jitter func() float64
}

// Default returns the standard policy: 3 retries, 1s base, 10s ceiling,
// DefaultStatuses.
func Default() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Statuses:   DefaultStatuses(),
	}
}

func (p Policy) maxRetries() int {
	if p.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	if p.MaxRetries < 0 {
		return 0
	}
	return p.MaxRetries
}

// ShouldRetry reports whether another attempt is allowed. attempt is
// zero-based: attempt 0 is the initial try, so retries stop once
// attempt reaches MaxRetries.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.maxRetries()
}

// RetryStatus reports whether the HTTP status is in the retryable set.
func (p Policy) RetryStatus(code int) bool {
	statuses := p.Statuses
	if statuses == nil {
		statuses = DefaultStatuses()
	}
	for _, s := range statuses {
		if s == code {
			return true
		}
	}
	return false
}

// Backoff computes the delay before retry number attempt (zero-based):
// min(base * 2^attempt, max) with ±10% uniform jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = DefaultMaxDelay
	}

	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}

	jitter := p.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	d += time.Duration(float64(d) * 0.2 * (jitter() - 0.5))
	if d < 0 {
		d = 0
	}
	return d
}

// Sleep waits for d or until ctx is done, whichever comes first. A
// canceled backoff returns the context's error so abort wins over retry.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
