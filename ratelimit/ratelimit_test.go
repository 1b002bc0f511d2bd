package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinekit/refine"
	"github.com/refinekit/refine/mock"
	"github.com/refinekit/refine/ratelimit"
)

// fakeClock is a manually stepped time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimit.New(3, time.Minute, ratelimit.WithClock(clock.Now))

	for i := range 3 {
		assert.True(t, l.Allow("alice"), "request %d", i)
	}
	assert.False(t, l.Allow("alice"), "fourth request in the window is rejected")

	// A different identity has its own budget.
	assert.True(t, l.Allow("bob"))

	// Sliding window: once the earliest timestamps expire, capacity returns.
	clock.Advance(time.Minute + time.Second)
	assert.True(t, l.Allow("alice"))
}

func TestLimiter_SlidingNotFixed(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimit.New(2, time.Minute, ratelimit.WithClock(clock.Now))

	require.True(t, l.Allow("k"))
	clock.Advance(40 * time.Second)
	require.True(t, l.Allow("k"))

	// 30s later the first slot has expired but the second has not.
	clock.Advance(30 * time.Second)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestLimiter_Remaining(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimit.New(2, time.Minute, ratelimit.WithClock(clock.Now))

	assert.Equal(t, 2, l.Remaining("k"))
	l.Allow("k")
	assert.Equal(t, 1, l.Remaining("k"))
	l.Allow("k")
	assert.Equal(t, 0, l.Remaining("k"))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, l.Remaining("k"))
}

func TestLimiter_BoundedKeys(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimit.New(1, time.Minute,
		ratelimit.WithClock(clock.Now),
		ratelimit.WithMaxKeys(4),
	)

	// Many one-shot identities; the map must not grow without bound.
	for i := range 100 {
		l.Allow(string(rune('a' + i%26)))
		clock.Advance(time.Second)
	}

	// Still functional after sweeps.
	clock.Advance(2 * time.Minute)
	assert.True(t, l.Allow("zz"))
}

func TestProvider_Wrap(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := ratelimit.New(1, time.Minute, ratelimit.WithClock(clock.Now))

	inner := &mock.Provider{
		EnhanceFn: func(ctx context.Context, req refine.Request) (refine.Stream, error) {
			return mock.ScriptStream("ok"), nil
		},
	}
	p := ratelimit.Wrap(inner, l, "client-1")

	s, err := p.Enhance(context.Background(), refine.Request{Content: "x", Mode: refine.ModeFormal})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Second call in the same window is rejected before the network.
	_, err = p.Enhance(context.Background(), refine.Request{Content: "x", Mode: refine.ModeFormal})
	require.Error(t, err)

	var e *refine.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, refine.KindRateLimit, e.Kind)
	assert.Contains(t, e.Message, "slow down")

	clock.Advance(2 * time.Minute)
	_, err = p.Enhance(context.Background(), refine.Request{Content: "x", Mode: refine.ModeFormal})
	assert.NoError(t, err)
}
