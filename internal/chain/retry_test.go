package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNonRetryable = errors.New("non-retryable error")

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry_SuccessAfterRetry(t *testing.T) {
	t.Parallel()
	attempts := 0
	var retried []int
	cfg := fastRetry(4)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	result, err := RetryWithConfig(context.Background(), cfg, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", ErrRateLimited
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_NonRetryableError(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := RetryWithConfig(context.Background(), fastRetry(4), func(context.Context) (int, error) {
		attempts++
		return 0, errNonRetryable
	})

	require.ErrorIs(t, err, errNonRetryable)
	assert.Equal(t, 1, attempts)
}

func TestRetry_MaxAttempts(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := RetryWithConfig(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		attempts++
		return 0, WrapRetryable(errNonRetryable)
	})

	require.Error(t, err)
	require.ErrorIs(t, err, errNonRetryable)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestRetry_NoRetry(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := RetryWithConfig(context.Background(), NoRetry(), func(context.Context) (int, error) {
		attempts++
		return 0, ErrTimeout
	})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	attempts := 0
	_, err := RetryWithConfig(ctx, cfg, func(context.Context) (int, error) {
		attempts++
		cancel()
		return 0, ErrRetryable
	})

	require.ErrorIs(t, err, ErrRetryable)
	assert.Equal(t, 1, attempts)
}

func TestCalculateDelay(t *testing.T) {
	t.Parallel()
	base := 100 * time.Millisecond
	maxDelay := 500 * time.Millisecond

	delay := calculateDelay(0, base, maxDelay)
	assert.GreaterOrEqual(t, delay, 50*time.Millisecond)
	assert.Less(t, delay, 100*time.Millisecond)

	delay = calculateDelay(10, base, maxDelay)
	assert.GreaterOrEqual(t, delay, 250*time.Millisecond)
	assert.Less(t, delay, 500*time.Millisecond)

	assert.Zero(t, calculateDelay(3, 0, maxDelay))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRetryable(ErrRetryable))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(WrapRetryable(errNonRetryable)))
	assert.False(t, IsRetryable(errNonRetryable))
	assert.False(t, IsRetryable(nil))
	assert.NoError(t, WrapRetryable(nil))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3*time.Second, ParseRetryAfter("3"))
	assert.Zero(t, ParseRetryAfter(""))
	assert.Zero(t, ParseRetryAfter("soon"))
	assert.Zero(t, ParseRetryAfter("-2"))
}
