package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"provider-gateway/provider/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func cfg(attempts int) domain.RetryConfig {
	return domain.RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      false,
		Idempotent:  true,
	}
}

func TestDelay_ExponentialCapped(t *testing.T) {
	rc := RetryController{}
	c := cfg(10)
	want := []time.Duration{100, 200, 400, 800, 1600, 2000, 2000}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, rc.Delay(c, i+1, domain.ErrNetwork), "attempt %d", i+1)
	}
}

func TestDelay_FullJitterWithinBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := rapid.Float64Range(0, 0.999999).Draw(t, "rand")
		attempt := rapid.IntRange(1, 12).Draw(t, "attempt")
		c := cfg(12)
		c.Jitter = true

		d := RetryController{Rand: func() float64 { return r }}.Delay(c, attempt, domain.ErrProvider)
		ceiling := RetryController{}.Delay(cfg(12), attempt, domain.ErrProvider)
		if d < 0 || d > ceiling {
			t.Fatalf("delay %s outside [0, %s]", d, ceiling)
		}
	})
}

func TestDelay_RetryAfterHintWins(t *testing.T) {
	rc := RetryController{Rand: func() float64 { return 0 }}
	c := cfg(3)
	c.MaxDelay = 10 * time.Second
	c.Jitter = true

	err := domain.NewRateLimitError("provider 429", 5*time.Second)
	assert.Equal(t, 5*time.Second, rc.Delay(c, 1, err))

	err = domain.NewRateLimitError("provider 429", time.Minute)
	assert.Equal(t, 10*time.Second, rc.Delay(c, 1, err))
}

func TestExecute_StopsAfterMaxAttempts(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxAttempts := rapid.IntRange(1, 8).Draw(t, "max")
		sleeper := &noSleep{}
		var calls atomic.Int64

		res, err := Execute(context.Background(), RetryController{Sleep: sleeper.Sleep}, cfg(maxAttempts),
			func(context.Context) (int, error) {
				calls.Add(1)
				return 0, &domain.Error{Kind: domain.KindNetwork, Message: "reset"}
			})
		if !errors.Is(err, domain.ErrNetwork) {
			t.Fatalf("unexpected error %v", err)
		}
		if int(calls.Load()) != maxAttempts || res.Attempts != maxAttempts {
			t.Fatalf("calls=%d attempts=%d, want %d", calls.Load(), res.Attempts, maxAttempts)
		}
		if len(sleeper.delays) != maxAttempts-1 {
			t.Fatalf("slept %d times", len(sleeper.delays))
		}
	})
}

func TestExecute_NonRetryableRunsOnce(t *testing.T) {
	for _, kind := range []domain.ErrorKind{
		domain.KindValidation, domain.KindAuthentication, domain.KindNotFound,
		domain.KindSchema, domain.KindQuotaExceeded, domain.KindUnknown,
	} {
		var calls int
		_, err := Execute(context.Background(), RetryController{Sleep: (&noSleep{}).Sleep}, cfg(5),
			func(context.Context) (string, error) {
				calls++
				return "", &domain.Error{Kind: kind}
			})
		require.Error(t, err)
		assert.Equal(t, 1, calls, kind.String())
	}
}

func TestExecute_NonIdempotentRunsOnce(t *testing.T) {
	c := cfg(5)
	c.Idempotent = false
	var calls int
	_, err := Execute(context.Background(), RetryController{Sleep: (&noSleep{}).Sleep}, c,
		func(context.Context) (int, error) {
			calls++
			return 0, domain.ErrProvider
		})
	require.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, 1, calls)
}

func TestExecute_SucceedsAfterTransientFailures(t *testing.T) {
	sleeper := &noSleep{}
	var calls int
	res, err := Execute(context.Background(), RetryController{Sleep: sleeper.Sleep}, cfg(3),
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", domain.ErrProvider
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.delays)
}

func TestExecute_ProviderRetryAfterIsHonored(t *testing.T) {
	sleeper := &noSleep{}
	c := cfg(3)
	c.Jitter = true
	c.MaxDelay = 10 * time.Second
	var calls int
	_, err := Execute(context.Background(), RetryController{Sleep: sleeper.Sleep, Rand: func() float64 { return 0.01 }}, c,
		func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, domain.NewRateLimitError("provider 429", 5*time.Second)
			}
			return 1, nil
		})
	require.NoError(t, err)
	require.Len(t, sleeper.delays, 1)
	assert.GreaterOrEqual(t, sleeper.delays[0], 5*time.Second)
}

func TestExecute_AbandonsAttemptOnDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	res, err := Execute(ctx, RetryController{}, cfg(3), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, res.Attempts)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecute_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	_, err := Execute(ctx, RetryController{Sleep: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}}, cfg(5), func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrNetwork
	})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 1, calls)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
