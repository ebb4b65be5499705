package retry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/JRF63/monitor-brightness-controller/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Backoff(t *testing.T) {
	p := retry.Policy{Attempts: 5, Initial: 10 * time.Millisecond}

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{name: "first failure", attempt: 0, expected: 10 * time.Millisecond},
		{name: "second failure", attempt: 1, expected: 20 * time.Millisecond},
		{name: "third failure", attempt: 2, expected: 40 * time.Millisecond},
		{name: "fourth failure", attempt: 3, expected: 80 * time.Millisecond},
		{name: "fifth failure", attempt: 4, expected: 160 * time.Millisecond},
		{name: "negative attempt clamps to first", attempt: -1, expected: 10 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.Backoff(tt.attempt))
		})
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	var slept []time.Duration

	err := retry.Do(retry.DefaultPolicy, func(d time.Duration) { slept = append(slept, d) }, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var slept []time.Duration

	err := retry.Do(retry.DefaultPolicy, func(d time.Duration) { slept = append(slept, d) }, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, slept)
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	calls := 0
	var slept []time.Duration
	wantErr := errors.New("write refused")

	err := retry.Do(retry.DefaultPolicy, func(d time.Duration) { slept = append(slept, d) }, func() error {
		calls++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 5, calls)

	// Sleeps between attempts must be strictly increasing.
	require.Len(t, slept, 4)
	for i := 1; i < len(slept); i++ {
		assert.Greater(t, slept[i], slept[i-1])
	}
}

func TestDo_ZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0

	err := retry.Do(retry.Policy{}, func(time.Duration) {}, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
