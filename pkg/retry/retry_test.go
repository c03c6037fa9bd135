package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("deadlock detected")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func fastConfig(attempts int) Config {
	return Config{Attempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetriesTransientUntilSuccess(t *testing.T) {
	calls, retries := 0, 0
	err := Do(context.Background(), fastConfig(3), isTransient, func(error) { retries++ }, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestGivesUpAfterBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), isTransient, nil, func() error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	rejected := errors.New("slot conflict")
	calls := 0
	err := Do(context.Background(), fastConfig(5), isTransient, nil, func() error {
		calls++
		return rejected
	})

	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, calls)
}

func TestSingleAttemptRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(1), isTransient, nil, func() error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}
