package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"telegram-rp-bot/internal/pkg/lock"
	"telegram-rp-bot/internal/repository"
)

// simulateGrant mirrors the clamp logic in LedgerService.GrantXP: the
// requested amount goes in the record, the applied amount is truncated
// so lifetime XP never drops below zero.
func simulateGrant(currentXP, amount int64) (applied, newXP int64) {
	applied = amount
	if currentXP+applied < 0 {
		applied = -currentXP
	}
	return applied, currentXP + applied
}

func TestSimulateGrant(t *testing.T) {
	tests := []struct {
		name        string
		currentXP   int64
		amount      int64
		wantApplied int64
		wantXP      int64
	}{
		{"positive grant", 100, 50, 50, 150},
		{"deduction within balance", 100, -40, -40, 60},
		{"deduction clamped at zero", 100, -150, -100, 0},
		{"deduction from zero", 0, -10, 0, 0},
		{"zero grant", 100, 0, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied, newXP := simulateGrant(tt.currentXP, tt.amount)
			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantXP, newXP)
		})
	}
}

// TestGrantClampProperty checks the clamp invariants for any grant:
// lifetime XP never goes negative, positive grants are never clamped,
// and the applied amount never exceeds the requested magnitude.
func TestGrantClampProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		currentXP := rapid.Int64Range(0, 1_000_000).Draw(t, "currentXP")
		amount := rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "amount")

		applied, newXP := simulateGrant(currentXP, amount)

		assert.GreaterOrEqual(t, newXP, int64(0))
		if amount >= 0 {
			assert.Equal(t, amount, applied)
		} else {
			assert.GreaterOrEqual(t, applied, amount)
			assert.LessOrEqual(t, applied, int64(0))
		}
		assert.Equal(t, currentXP+applied, newXP)
	})
}

func TestWrapLock(t *testing.T) {
	assert.Nil(t, wrapLock(nil))

	err := wrapLock(lock.ErrTimeout)
	assert.ErrorIs(t, err, ErrTransient)

	other := errors.New("boom")
	assert.Equal(t, other, wrapLock(other))
}

func TestNotFoundMapping(t *testing.T) {
	assert.ErrorIs(t, notFound(repository.ErrUserNotFound), ErrNotFound)
	assert.ErrorIs(t, notFound(repository.ErrCharacterNotFound), ErrNotFound)
	assert.ErrorIs(t, notFound(repository.ErrQuestNotFound), ErrNotFound)

	other := errors.New("connection refused")
	assert.Equal(t, other, notFound(other))
	assert.NotErrorIs(t, notFound(other), ErrNotFound)
}
