package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWebhook = errors.New("webhook: 502")

func failing(context.Context) error    { return errWebhook }
func succeeding(context.Context) error { return nil }

// testBreaker returns a breaker on a manual clock.
func testBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(cfg)
	b.now = func() time.Time { return clock }
	return b, &clock
}

func TestBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{})
	assert.Equal(t, 3, b.cfg.Threshold)
	assert.Equal(t, 5*time.Minute, b.cfg.Cooldown)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b, _ := testBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Minute})
	ctx := context.Background()

	assert.ErrorIs(t, b.Execute(ctx, failing), errWebhook)
	assert.Equal(t, BreakerClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, failing), errWebhook)
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()
	b, _ := testBreaker(BreakerConfig{Threshold: 3})
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)
	assert.Equal(t, 2, b.Failures())

	require.NoError(t, b.Execute(ctx, succeeding))
	assert.Zero(t, b.Failures())
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	t.Parallel()
	b, clock := testBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	require.Equal(t, BreakerOpen, b.State())

	*clock = clock.Add(59 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, succeeding), ErrBreakerOpen)

	*clock = clock.Add(time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, succeeding))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	b, clock := testBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for range 3 {
		_ = b.Execute(ctx, failing)
	}
	*clock = clock.Add(2 * time.Minute)

	assert.ErrorIs(t, b.Execute(ctx, failing), errWebhook)
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Execute(ctx, succeeding), ErrBreakerOpen)
}

func TestBreaker_OnChange(t *testing.T) {
	t.Parallel()
	var seen []string
	b, clock := testBreaker(BreakerConfig{
		Threshold: 1,
		Cooldown:  time.Second,
		OnChange: func(from, to BreakerState) {
			seen = append(seen, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	*clock = clock.Add(time.Second)
	_ = b.Execute(ctx, succeeding)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, seen)
}

func TestBreaker_Concurrent(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Threshold: 1000})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = b.Execute(ctx, failing)
			} else {
				_ = b.Execute(ctx, succeeding)
			}
			_ = b.State()
		}()
	}
	wg.Wait()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
