// Package ratelimit provides the client-side sliding-window gate placed
// in front of gateway calls. It is independent of the gateway's own
// limiting: a locally rejected call never reaches the network, while a
// gateway 429 flows through the normal classification path.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/refinekit/refine"
)

// Defaults match the upstream gate: 60 requests per identity per minute.
const (
	DefaultLimit   = 60
	DefaultWindow  = time.Minute
	defaultMaxKeys = 1024
)

// Limiter is a sliding-window rate limiter keyed by client identity.
// Expired timestamps are evicted lazily on access and the key map is
// bounded, so memory does not grow with the number of identities seen.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	maxKeys int
	now     func() time.Time
	seen    map[string][]time.Time
}

// Option configures a [Limiter].
type Option func(*Limiter)

// WithClock injects the time source. Tests use a fake clock to step
// through window boundaries deterministically.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithMaxKeys bounds the number of tracked identities.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) { l.maxKeys = n }
}

// New creates a Limiter allowing limit requests per window per key.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		maxKeys: defaultMaxKeys,
		now:     time.Now,
		seen:    make(map[string][]time.Time),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Default returns a limiter with the standard 60/minute gate.
func Default() *Limiter {
	return New(DefaultLimit, DefaultWindow)
}

// Allow reports whether a request for the given identity fits in the
// current window, recording it when it does.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	live := trim(l.seen[key], cutoff)
	if len(live) >= l.limit {
		l.seen[key] = live
		return false
	}
	l.seen[key] = append(live, now)

	if len(l.seen) > l.maxKeys {
		l.sweep(cutoff)
	}
	return true
}

// Remaining returns how many requests the identity has left in the
// current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	live := trim(l.seen[key], l.now().Add(-l.window))
	l.seen[key] = live
	if n := l.limit - len(live); n > 0 {
		return n
	}
	return 0
}

// sweep drops identities with no live timestamps; if the map is still
// over budget it drops the coldest identities (oldest last activity).
func (l *Limiter) sweep(cutoff time.Time) {
	for k, ts := range l.seen {
		if live := trim(ts, cutoff); len(live) == 0 {
			delete(l.seen, k)
		} else {
			l.seen[k] = live
		}
	}
	for len(l.seen) > l.maxKeys {
		var coldest string
		var coldestAt time.Time
		for k, ts := range l.seen {
			last := ts[len(ts)-1]
			if coldest == "" || last.Before(coldestAt) {
				coldest, coldestAt = k, last
			}
		}
		delete(l.seen, coldest)
	}
}

func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// Interface compliance check.
var _ refine.Provider = (*Provider)(nil)

// Provider decorates an inner [refine.Provider] with a limiter. Rejected
// calls fail with Kind = rate-limit before any network activity.
type Provider struct {
	inner   refine.Provider
	limiter *Limiter
	key     string
}

// Wrap returns a Provider gating inner by the limiter under the given
// client identity.
func Wrap(inner refine.Provider, l *Limiter, key string) *Provider {
	return &Provider{inner: inner, limiter: l, key: key}
}

// Enhance consults the limiter, then delegates.
func (p *Provider) Enhance(ctx context.Context, req refine.Request) (refine.Stream, error) {
	if !p.limiter.Allow(p.key) {
		return nil, &refine.Error{Kind: refine.KindRateLimit, Message: "Rate limit exceeded. Please slow down."}
	}
	return p.inner.Enhance(ctx, req)
}
