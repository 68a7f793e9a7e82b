package quest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-rp-bot/internal/model"
)

func TestXPForCR(t *testing.T) {
	tests := []struct {
		cr   string
		xp   int64
		fail bool
	}{
		{"0", 0, false},
		{"1/8", 25, false},
		{"1/4", 50, false},
		{"1/2", 100, false},
		{"1", 200, false},
		{"5", 1800, false},
		{"30", 155000, false},
		{" 2 ", 450, false},
		{"31", 0, true},
		{"2/3", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.cr, func(t *testing.T) {
			v, err := XPForCR(tt.cr)
			if tt.fail {
				assert.ErrorIs(t, err, ErrInvalidCR)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.xp, v)
		})
	}
}

func TestEncounterXP(t *testing.T) {
	name := "Wolf"
	monsters := []*model.QuestMonster{
		{CR: "1", Count: 2},
		{CR: "1/2", Count: 1, MonsterName: &name},
	}
	assert.Equal(t, int64(500), EncounterXP(monsters))

	// Unknown CRs and non-positive counts are skipped.
	monsters = append(monsters,
		&model.QuestMonster{CR: "nope", Count: 3},
		&model.QuestMonster{CR: "5", Count: 0},
	)
	assert.Equal(t, int64(500), EncounterXP(monsters))

	assert.Zero(t, EncounterXP(nil))
}

func TestSplitEvenly(t *testing.T) {
	// 500 XP over three participants: remainder goes to the first two.
	assert.Equal(t, []int64{167, 167, 166}, SplitEvenly(500, 3))
	assert.Equal(t, []int64{100}, SplitEvenly(100, 1))
	assert.Equal(t, []int64{0, 0}, SplitEvenly(0, 2))
	assert.Equal(t, []int64{1, 1, 1, 0}, SplitEvenly(3, 4))
	assert.Nil(t, SplitEvenly(100, 0))
}

// TestSplitEvenlyExactProperty checks that splitting never loses or
// creates XP and that shares differ by at most one unit, earliest
// joiners first.
func TestSplitEvenlyExactProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.Int64Range(0, 10000000).Draw(rt, "total")
		n := rapid.IntRange(1, 50).Draw(rt, "n")

		shares := SplitEvenly(total, n)
		require.Len(rt, shares, n)

		var sum int64
		for i, s := range shares {
			sum += s
			if i > 0 && shares[i-1] < s {
				rt.Fatalf("share %d (%d) larger than earlier share %d (%d)", i, s, i-1, shares[i-1])
			}
		}
		if sum != total {
			rt.Fatalf("shares sum to %d, want %d", sum, total)
		}
		if shares[0]-shares[n-1] > 1 {
			rt.Fatalf("shares differ by more than one: first=%d last=%d", shares[0], shares[n-1])
		}
	})
}

func TestParseBracket(t *testing.T) {
	b, err := ParseBracket("3-4")
	require.NoError(t, err)
	assert.Equal(t, Bracket{Min: 3, Max: 4}, b)
	assert.True(t, b.Contains(3))
	assert.True(t, b.Contains(4))
	assert.False(t, b.Contains(5))

	_, err = ParseBracket("17")
	assert.Error(t, err)
	_, err = ParseBracket("a-b")
	assert.Error(t, err)
	_, err = ParseBracket("7-5")
	assert.Error(t, err)
}

func TestLevelInBracket(t *testing.T) {
	assert.True(t, LevelInBracket(6, "5-7"))
	assert.False(t, LevelInBracket(8, "5-7"))
	assert.False(t, LevelInBracket(5, "garbage"))
}
