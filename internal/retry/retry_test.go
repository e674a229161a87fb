package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTemporary = errors.New("temporary")

func TestDo_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, Backoff: ConstantBackoff(time.Millisecond)}, func() error {
		attempts++
		if attempts < 3 {
			return errTemporary
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	attempts := 0
	err := Do(context.Background(), Config{
		MaxAttempts: 5,
		Backoff:     ConstantBackoff(time.Millisecond),
		ShouldRetry: func(err error) bool { return !errors.Is(err, permanent) },
	}, func() error {
		attempts++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult_ReturnsLastErrorWhenExhausted(t *testing.T) {
	v, err := DoWithResult(context.Background(), Config{MaxAttempts: 2, Backoff: ConstantBackoff(time.Millisecond)},
		func() (int, error) { return 7, errTemporary })

	assert.ErrorIs(t, err, errTemporary)
	assert.Zero(t, v)
}

func TestDo_HonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, Config{MaxAttempts: 10, Backoff: ConstantBackoff(time.Hour)}, func() error {
		attempts++
		cancel()
		return errTemporary
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errTemporary)
	assert.Equal(t, 1, attempts)
}

func TestExponentialBackoff_Grows(t *testing.T) {
	b := ExponentialBackoff(10 * time.Millisecond)
	assert.GreaterOrEqual(t, b(1), 10*time.Millisecond)
	assert.GreaterOrEqual(t, b(3), 40*time.Millisecond)
	assert.LessOrEqual(t, b(3), 60*time.Millisecond)
}
