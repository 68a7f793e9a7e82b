package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{Attempts: 3, Delay: time.Millisecond}

	calls := 0
	err := Do(context.Background(), p, isFlaky, func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	p := Policy{Attempts: 3, Delay: time.Millisecond}

	calls := 0
	err := Do(context.Background(), p, isFlaky, func() error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	p := Policy{Attempts: 3, Delay: time.Millisecond}
	permanent := errors.New("permanent")

	calls := 0
	err := Do(context.Background(), p, isFlaky, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	p := Policy{Attempts: 5, Delay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, isFlaky, func() error {
			calls++
			return errFlaky
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not abort on cancellation")
	}
}
