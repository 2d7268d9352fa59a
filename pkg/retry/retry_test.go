package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantReportsLastErrorAfterBurst(t *testing.T) {
	calls := 0
	err := Constant(func() error {
		calls++
		return errors.New("down")
	}, time.Millisecond, 3)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestConstantStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Constant(func() error {
		calls++
		if calls < 2 {
			return errors.New("down")
		}
		return nil
	}, time.Millisecond, 5)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestExponentialGivesUpAtDeadline(t *testing.T) {
	calls, retries := 0, 0
	err := Exponential(func() error {
		calls++
		return errors.New("down")
	}, time.Millisecond, 20*time.Millisecond, func(error, time.Duration) { retries++ })

	require.Error(t, err)
	assert.GreaterOrEqual(t, calls, 2)
	assert.GreaterOrEqual(t, retries, 1)
}

func TestExponentialStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Exponential(func() error {
		calls++
		if calls < 2 {
			return errors.New("down")
		}
		return nil
	}, time.Millisecond, time.Second, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
