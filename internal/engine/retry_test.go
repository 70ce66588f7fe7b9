package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	err := RetryWithBackoff(context.Background(), policy, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("ThrottlingException: rate exceeded")
		}
		return nil
	}, IsTransientError)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_PermanentErrorReturnsImmediately(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	err := RetryWithBackoff(context.Background(), policy, func() error {
		attempts++
		return errors.New("AccessDenied: not authorized")
	}, IsTransientError)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	err := RetryWithBackoff(context.Background(), policy, func() error {
		attempts++
		return errors.New("service unavailable")
	}, IsTransientError)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_CancelledBetweenAttempts(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := RetryWithBackoff(ctx, policy, func() error {
		attempts++
		return errors.New("connection reset by peer")
	}, IsTransientError)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("ThrottlingException: Rate exceeded"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("dial tcp: i/o timeout"), true},
		{errors.New("AccessDenied"), false},
		{errors.New("EntityAlreadyExists"), false},
		{nil, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransientError(tt.err), "error: %v", tt.err)
	}
}

func TestNodeTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Minute, nodeTimeout("5m"))
	assert.Equal(t, DefaultTimeout, nodeTimeout(""))
	assert.Equal(t, DefaultTimeout, nodeTimeout("not-a-duration"))
	assert.Equal(t, DefaultTimeout, nodeTimeout("-1m"))
}

func TestCalculateBackoff_CappedAtMax(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := calculateBackoff(attempt, time.Second, 5*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}
