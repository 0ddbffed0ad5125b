package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoValSuccessFirstTry(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), RetryConfig{
		ShouldRetry: func(error) bool { return true },
	}, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestDoValRetriesExactlyOnce(t *testing.T) {
	throttled := eris.New("429")
	calls := 0
	retries := 0

	got, err := DoVal(context.Background(), RetryConfig{
		Backoff:     time.Millisecond,
		ShouldRetry: func(err error) bool { return err == throttled },
		OnRetry:     func(error) { retries++ },
	}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", throttled
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, retries)
}

func TestDoValSecondFailureIsFinal(t *testing.T) {
	throttled := eris.New("429")
	calls := 0

	_, err := DoVal(context.Background(), RetryConfig{
		Backoff:     time.Millisecond,
		ShouldRetry: func(error) bool { return true },
	}, func(context.Context) (int, error) {
		calls++
		return 0, throttled
	})
	assert.Equal(t, throttled, err)
	// one retry, never more
	assert.Equal(t, 2, calls)
}

func TestDoValNonRetryableReturnsImmediately(t *testing.T) {
	boom := eris.New("503")
	calls := 0

	_, err := DoVal(context.Background(), RetryConfig{
		Backoff:     time.Minute,
		ShouldRetry: func(error) bool { return false },
	}, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestDoValContextCancelAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	throttled := eris.New("429")
	calls := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := DoVal(ctx, RetryConfig{
		Backoff:     time.Minute,
		ShouldRetry: func(error) bool { return true },
	}, func(context.Context) (int, error) {
		calls++
		return 0, throttled
	})
	assert.Equal(t, throttled, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestLimiterAcquireRelease(t *testing.T) {
	l := New(2, 100, 10)
	ctx := context.Background()

	rel1, err := l.Acquire(ctx, "tmdb")
	require.NoError(t, err)
	rel2, err := l.Acquire(ctx, "omdb")
	require.NoError(t, err)

	// both slots held: a third acquire must block until one is released
	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(blocked, "tmdb")
	assert.Error(t, err)

	rel1()
	rel2()

	rel3, err := l.Acquire(ctx, "tmdb")
	require.NoError(t, err)
	rel3()
}

func TestLimiterPerSourceRate(t *testing.T) {
	l := New(10, 100, 10)
	l.Configure("slow", 1, 1)
	ctx := context.Background()

	// first token is free, the second must wait for the bucket
	rel, err := l.Acquire(ctx, "slow")
	require.NoError(t, err)
	rel()

	bounded, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(bounded, "slow")
	assert.Error(t, err)
}
