package xp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParseForage(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    ForageOutcome
		matched bool
	}{
		{
			name:    "hunt attempt without harvest",
			text:    "Mira goes hunting in the dark woods... nothing stirs.",
			want:    ForageOutcome{CharacterName: "Mira", Activity: ActivityHunting, Success: false},
			matched: true,
		},
		{
			name:    "successful hunt",
			text:    "Mira goes hunting... a clean kill! Time to gut and harvest.",
			want:    ForageOutcome{CharacterName: "Mira", Activity: ActivityHunting, Success: true},
			matched: true,
		},
		{
			name:    "successful forage",
			text:    "Old Tom goes foraging along the riverbank. Time to harvest!",
			want:    ForageOutcome{CharacterName: "Old Tom", Activity: ActivityForaging, Success: true},
			matched: true,
		},
		{
			name:    "case insensitive detection",
			text:    "MIRA GOES FORAGING... TIME TO HARVEST",
			want:    ForageOutcome{CharacterName: "MIRA", Activity: ActivityForaging, Success: true},
			matched: true,
		},
		{
			name:    "ordinary chatter ignored",
			text:    "Mira draws her sword and charges.",
			matched: false,
		},
		{
			name:    "harvest phrase alone is not an outcome",
			text:    "time to harvest the crops, everyone",
			matched: false,
		},
		{
			name:    "missing character name",
			text:    "goes hunting again",
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseForage(tt.text)
			assert.Equal(t, tt.matched, ok)
			if tt.matched {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestForageAward(t *testing.T) {
	tests := []struct {
		name        string
		success     bool
		dailyForage int64
		want        int64
	}{
		{name: "attempt earns base", success: false, dailyForage: 0, want: 1},
		{name: "success adds bonus", success: true, dailyForage: 0, want: 6},
		{name: "cap clips award", success: true, dailyForage: 3, want: 2},
		{name: "at cap earns nothing", success: false, dailyForage: 5, want: 0},
		{name: "over cap earns nothing", success: true, dailyForage: 9, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForageAward(tt.success, 1, 5, tt.dailyForage, 5)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Awards never push the daily forage counter past the cap, no matter
// the configured amounts or how much was already earned today.
func TestForageAwardCapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.Int64Range(0, 50).Draw(t, "base")
		bonus := rapid.Int64Range(0, 50).Draw(t, "bonus")
		cap := rapid.Int64Range(0, 100).Draw(t, "cap")
		daily := rapid.Int64Range(0, 120).Draw(t, "daily")
		success := rapid.Bool().Draw(t, "success")

		award := ForageAward(success, base, bonus, daily, cap)
		if award < 0 {
			t.Fatalf("negative award %d", award)
		}
		if daily < cap && daily+award > cap {
			t.Fatalf("award %d pushes daily %d past cap %d", award, daily, cap)
		}
		if daily >= cap && award != 0 {
			t.Fatalf("award %d granted at or past cap (daily %d, cap %d)", award, daily, cap)
		}
	})
}
