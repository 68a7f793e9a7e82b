package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAcquireRelease(t *testing.T) {
	l := NewUserLock()
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, 1, time.Second))

	// Same user blocks, different user does not.
	assert.False(t, l.TryAcquire(1))
	assert.True(t, l.TryAcquire(2))
	l.Release(2)

	l.Release(1)
	assert.True(t, l.TryAcquire(1))
	l.Release(1)
}

func TestAcquireTimeout(t *testing.T) {
	l := NewUserLock()
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, 7, time.Second))
	defer l.Release(7)

	err := l.Acquire(ctx, 7, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAcquireContextCancel(t *testing.T) {
	l := NewUserLock()

	require.NoError(t, l.Acquire(context.Background(), 7, time.Second))
	defer l.Release(7)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx, 7, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithSerializes(t *testing.T) {
	l := NewUserLock()
	ctx := context.Background()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.With(ctx, 42, 5*time.Second, func() error {
				// Read-modify-write without extra synchronization; the
				// user lock must make this safe.
				c := counter
				time.Sleep(time.Microsecond)
				counter = c + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

// TestMutualExclusionProperty runs random interleavings of acquire and
// release across a handful of users and checks the binary semaphore
// invariant: a held lock can never be acquired again.
func TestMutualExclusionProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := NewUserLock()
		held := map[int64]bool{}

		steps := rapid.IntRange(1, 100).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			user := rapid.Int64Range(1, 5).Draw(rt, "user")
			if held[user] {
				if l.TryAcquire(user) {
					rt.Fatalf("user %d lock acquired twice", user)
				}
				l.Release(user)
				held[user] = false
			} else {
				if !l.TryAcquire(user) {
					rt.Fatalf("user %d lock unavailable while not held", user)
				}
				held[user] = true
			}
		}
	})
}
