// Package quest implements the pure quest reward math: the challenge
// rating XP table, level bracket parsing, and the deterministic even
// split of encounter XP across participants.
package quest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"telegram-rp-bot/internal/model"
)

// ErrInvalidCR is returned for a challenge rating outside the table.
var ErrInvalidCR = errors.New("invalid challenge rating")

// crToXP maps a challenge rating to its XP value (DMG encounter table).
// Fractional ratings are kept as strings to avoid float keys.
var crToXP = map[string]int64{
	"0": 0, "1/8": 25, "1/4": 50, "1/2": 100,
	"1": 200, "2": 450, "3": 700, "4": 1100, "5": 1800,
	"6": 2300, "7": 2900, "8": 3900, "9": 5000, "10": 5900,
	"11": 7200, "12": 8400, "13": 10000, "14": 11500, "15": 13000,
	"16": 15000, "17": 18000, "18": 20000, "19": 22000, "20": 25000,
	"21": 33000, "22": 41000, "23": 50000, "24": 62000, "25": 75000,
	"26": 90000, "27": 105000, "28": 120000, "29": 135000, "30": 155000,
}

// XPForCR returns the XP value for a challenge rating string such as
// "5" or "1/2".
func XPForCR(cr string) (int64, error) {
	v, ok := crToXP[strings.TrimSpace(cr)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCR, cr)
	}
	return v, nil
}

// ValidCR reports whether the challenge rating is in the table.
func ValidCR(cr string) bool {
	_, ok := crToXP[strings.TrimSpace(cr)]
	return ok
}

// EncounterXP sums the XP of a monster roster. Entries with an
// unknown CR or a non-positive count contribute nothing.
func EncounterXP(monsters []*model.QuestMonster) int64 {
	var total int64
	for _, m := range monsters {
		if m.Count <= 0 {
			continue
		}
		v, err := XPForCR(m.CR)
		if err != nil {
			continue
		}
		total += v * int64(m.Count)
	}
	return total
}

// SplitEvenly divides total XP across n participants. Integer division
// leaves a remainder of at most n-1; it is handed out one unit at a
// time starting from index 0, so earlier joiners get the extra point.
// The returned shares always sum to exactly total.
func SplitEvenly(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	shares := make([]int64, n)
	base := total / int64(n)
	rem := total % int64(n)
	for i := range shares {
		shares[i] = base
		if int64(i) < rem {
			shares[i]++
		}
	}
	return shares
}

// Bracket is a parsed level bracket such as "3-4".
type Bracket struct {
	Min, Max int
}

// ParseBracket parses a "min-max" level bracket label.
func ParseBracket(s string) (Bracket, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return Bracket{}, fmt.Errorf("malformed level bracket %q", s)
	}
	min, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Bracket{}, fmt.Errorf("malformed level bracket %q", s)
	}
	max, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Bracket{}, fmt.Errorf("malformed level bracket %q", s)
	}
	if min > max {
		return Bracket{}, fmt.Errorf("inverted level bracket %q", s)
	}
	return Bracket{Min: min, Max: max}, nil
}

// String renders the bracket in its canonical "min-max" form.
func (b Bracket) String() string {
	return fmt.Sprintf("%d-%d", b.Min, b.Max)
}

// Contains reports whether a level falls inside the bracket.
func (b Bracket) Contains(level int) bool {
	return level >= b.Min && level <= b.Max
}

// LevelInBracket checks a level against a bracket label. An
// unparsable label admits nobody.
func LevelInBracket(level int, bracket string) bool {
	b, err := ParseBracket(bracket)
	if err != nil {
		return false
	}
	return b.Contains(level)
}
