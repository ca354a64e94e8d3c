package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsRetries(t *testing.T) {
	attempts := 0
	wantErr := errors.New("i/o timeout")
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 4, attempts) // initial + 3 retries
}

func TestDoStopsOnPermanentError(t *testing.T) {
	attempts := 0
	wantErr := errors.New("syntax error at or near SELECT")
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, &Config{MaxRetries: 5, InitialDelay: time.Minute, MaxDelay: time.Minute, Multiplier: 1}, func() error {
		return errors.New("service unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	v, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("429 too many requests")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

type declaredError struct{ retryable bool }

func (e *declaredError) Error() string     { return "declared" }
func (e *declaredError) IsRetryable() bool { return e.retryable }

func TestDoHonorsDeclaredRetryability(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return &declaredError{retryable: false}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("connection refused")))
	assert.True(t, IsRetryable(errors.New("HTTP 429 Too Many Requests")))
	assert.False(t, IsRetryable(errors.New("syntax error at or near SELECT")))
	assert.True(t, IsRetryable(&declaredError{retryable: true}))
	assert.False(t, IsRetryable(&declaredError{retryable: false}))
}
