package xp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestAccrue(t *testing.T) {
	tests := []struct {
		name      string
		in        AccrualInput
		credited  int64
		newBuffer int64
		capped    bool
	}{
		{
			// 500 chars at ratio 240: 2 XP credited, 20 chars carry over.
			name:      "fresh day converts whole units",
			in:        AccrualInput{Length: 500, Buffer: 0, Ratio: 240, DailyXP: 0, Cap: 10},
			credited:  2,
			newBuffer: 20,
			capped:    false,
		},
		{
			// Same message at daily 9: only 1 XP of room; surplus discarded.
			name:      "cap truncates and discards remainder",
			in:        AccrualInput{Length: 500, Buffer: 0, Ratio: 240, DailyXP: 9, Cap: 10},
			credited:  1,
			newBuffer: 0,
			capped:    true,
		},
		{
			name:      "short message only grows buffer",
			in:        AccrualInput{Length: 100, Buffer: 0, Ratio: 240, DailyXP: 0, Cap: 10},
			credited:  0,
			newBuffer: 100,
			capped:    false,
		},
		{
			name:      "buffer pushes over a unit",
			in:        AccrualInput{Length: 100, Buffer: 150, Ratio: 240, DailyXP: 0, Cap: 10},
			credited:  1,
			newBuffer: 10,
			capped:    false,
		},
		{
			name:      "already at cap credits nothing",
			in:        AccrualInput{Length: 500, Buffer: 0, Ratio: 240, DailyXP: 10, Cap: 10},
			credited:  0,
			newBuffer: 0,
			capped:    true,
		},
		{
			name:      "exact fill reaches cap",
			in:        AccrualInput{Length: 240, Buffer: 0, Ratio: 240, DailyXP: 9, Cap: 10},
			credited:  1,
			newBuffer: 0,
			capped:    true,
		},
		{
			name:      "zero ratio converts nothing",
			in:        AccrualInput{Length: 500, Buffer: 30, Ratio: 0, DailyXP: 0, Cap: 10},
			credited:  0,
			newBuffer: 30,
			capped:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Accrue(tt.in)
			assert.Equal(t, tt.credited, res.Credited, "credited")
			assert.Equal(t, tt.newBuffer, res.NewBuffer, "new buffer")
			assert.Equal(t, tt.capped, res.Capped, "capped")
		})
	}
}

// TestAccrueInvariantsProperty checks the accrual contract over random
// inputs: the credit never exceeds the remaining room, the buffer stays
// below the ratio whenever all convertible units were applied, and no
// XP is invented out of thin air.
func TestAccrueInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ratio := rapid.Int64Range(1, 10000).Draw(rt, "ratio")
		in := AccrualInput{
			Length:  rapid.Int64Range(0, 50000).Draw(rt, "length"),
			Buffer:  rapid.Int64Range(0, ratio-1).Draw(rt, "buffer"),
			Ratio:   ratio,
			DailyXP: rapid.Int64Range(0, 1000).Draw(rt, "dailyXP"),
			Cap:     rapid.Int64Range(1, 1000).Draw(rt, "cap"),
		}

		res := Accrue(in)

		room := in.Cap - in.DailyXP
		if room < 0 {
			room = 0
		}
		if res.Credited < 0 {
			rt.Fatalf("negative credit %d", res.Credited)
		}
		if res.Credited > room {
			rt.Fatalf("credited %d exceeds room %d", res.Credited, room)
		}

		whole := (in.Buffer + in.Length) / in.Ratio
		if res.Credited == whole && res.NewBuffer >= in.Ratio {
			rt.Fatalf("buffer %d not below ratio %d after full conversion", res.NewBuffer, in.Ratio)
		}
		if res.Credited > whole {
			rt.Fatalf("credited %d more than convertible %d", res.Credited, whole)
		}

		// Conversion accounting: credited units plus surviving buffer
		// never exceed the characters that went in.
		if res.Credited*in.Ratio+res.NewBuffer > in.Buffer+in.Length {
			rt.Fatalf("accrual created characters: credited=%d buffer=%d in=%d",
				res.Credited, res.NewBuffer, in.Buffer+in.Length)
		}
	})
}

// TestAccrueCapDiscardProperty pins the overflow policy: whenever the
// cap truncates the credit, the buffer is zeroed rather than banked.
func TestAccrueCapDiscardProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ratio := rapid.Int64Range(1, 1000).Draw(rt, "ratio")
		in := AccrualInput{
			Length:  rapid.Int64Range(0, 100000).Draw(rt, "length"),
			Buffer:  rapid.Int64Range(0, ratio-1).Draw(rt, "buffer"),
			Ratio:   ratio,
			DailyXP: rapid.Int64Range(0, 100).Draw(rt, "dailyXP"),
			Cap:     rapid.Int64Range(1, 100).Draw(rt, "cap"),
		}

		res := Accrue(in)

		whole := (in.Buffer + in.Length) / in.Ratio
		if res.Credited < whole {
			if res.NewBuffer != 0 {
				rt.Fatalf("truncated accrual kept buffer %d", res.NewBuffer)
			}
			if !res.Capped {
				rt.Fatalf("truncated accrual not flagged as capped")
			}
		}
	})
}
