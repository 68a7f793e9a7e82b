// Package lock provides per-user serialization for XP mutations.
// Two events for the same user must never interleave between reading
// and writing the daily counters; events for different users proceed
// concurrently.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a user's lock cannot be acquired within
// the configured window. Callers should surface it as a transient,
// retryable failure.
var ErrTimeout = errors.New("user lock acquisition timed out")

// UserLock hands out one binary semaphore per user ID. Semaphores are
// created on first use and kept for the life of the process; the user
// population of a single guild is small enough that no eviction is
// needed.
type UserLock struct {
	mu    sync.Mutex
	users map[int64]chan struct{}
}

// NewUserLock creates an empty UserLock.
func NewUserLock() *UserLock {
	return &UserLock{users: make(map[int64]chan struct{})}
}

func (l *UserLock) sem(userID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.users[userID]
	if !ok {
		s = make(chan struct{}, 1)
		l.users[userID] = s
	}
	return s
}

// Acquire blocks until the user's lock is held, the timeout elapses,
// or the context is cancelled.
func (l *UserLock) Acquire(ctx context.Context, userID int64, timeout time.Duration) error {
	s := l.sem(userID)

	select {
	case s <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the user's lock. Releasing a lock that is not held is
// a programming error and panics.
func (l *UserLock) Release(userID int64) {
	s := l.sem(userID)
	select {
	case <-s:
	default:
		panic("lock: release of unheld user lock")
	}
}

// TryAcquire acquires the lock only if it is immediately available.
func (l *UserLock) TryAcquire(userID int64) bool {
	select {
	case l.sem(userID) <- struct{}{}:
		return true
	default:
		return false
	}
}

// With runs fn while holding the user's lock.
func (l *UserLock) With(ctx context.Context, userID int64, timeout time.Duration, fn func() error) error {
	if err := l.Acquire(ctx, userID, timeout); err != nil {
		return err
	}
	defer l.Release(userID)
	return fn()
}
