package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFraction: 0,
	}
}

func TestDoSuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("still down"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoNoRetryOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValReturnsValue(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, NewTransientError(errors.New("retry me"), 429)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(5), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("transient"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoOnRetryCallback(t *testing.T) {
	cfg := fastRetry(3)
	var attempts []int
	cfg.OnRetry = func(attempt int, _ error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), cfg, func(context.Context) error {
		return NewTransientError(errors.New("down"), 502)
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestComputeBackoffDoublesAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		JitterFraction: 0,
	}
	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, computeBackoff(2, cfg))
	assert.Equal(t, 300*time.Millisecond, computeBackoff(5, cfg))
}
