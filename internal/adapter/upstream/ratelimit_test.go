package upstream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a RateLimiter without real sleeps. Every wait advances
// the clock by the requested duration and fires immediately.
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) after(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.t = c.t.Add(d)
	now := c.t
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func newTestLimiter(limit int, window time.Duration) (*RateLimiter, *fakeClock) {
	clk := newFakeClock()
	rl := NewRateLimiter(limit, window)
	rl.now = clk.now
	rl.after = clk.after
	return rl, clk
}

func TestRateLimiterAdmitsUnderLimit(t *testing.T) {
	rl, clk := newTestLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Acquire(context.Background()))
	}
	assert.Empty(t, clk.waits)
	assert.Equal(t, 3, rl.Len())
}

func TestRateLimiterWaitsForOldestToExpire(t *testing.T) {
	rl, clk := newTestLimiter(2, time.Minute)

	require.NoError(t, rl.Acquire(context.Background())) // t=0
	clk.advance(20 * time.Second)
	require.NoError(t, rl.Acquire(context.Background())) // t=20s

	require.NoError(t, rl.Acquire(context.Background()))
	require.Len(t, clk.waits, 1)
	assert.Equal(t, 40*time.Second, clk.waits[0])

	// Only the t=20s and t=60s admissions remain in the window.
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl, clk := newTestLimiter(2, time.Minute)
	require.NoError(t, rl.Acquire(context.Background()))
	require.NoError(t, rl.Acquire(context.Background()))

	clk.advance(61 * time.Second)
	assert.Equal(t, 0, rl.Len())
	require.NoError(t, rl.Acquire(context.Background()))
	assert.Empty(t, clk.waits)
}

func TestRateLimiterCancelledWhileWaiting(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, rl.Len(), "a cancelled wait must not be recorded")
}

func TestRateLimiterCancelledBeforeAcquire(t *testing.T) {
	rl, _ := newTestLimiter(5, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, rl.Acquire(ctx), context.Canceled)
	assert.Equal(t, 0, rl.Len())
}

func TestRateLimiterZeroLimitRaised(t *testing.T) {
	rl, clk := newTestLimiter(0, time.Minute)
	require.NoError(t, rl.Acquire(context.Background()))
	assert.Empty(t, clk.waits)
}

func TestRateLimiterConcurrent(t *testing.T) {
	rl := NewRateLimiter(50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rl.Acquire(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, rl.Len())
}
