package xp

import "strings"

// Forage activities. The values come from the outcome text itself and
// are only used for reporting.
const (
	ActivityHunting  = "hunting"
	ActivityForaging = "foraging"
)

// ForageOutcome is one parsed hunt or forage result posted in a
// tracked forage channel.
type ForageOutcome struct {
	CharacterName string
	Activity      string
	Success       bool
}

// ParseForage recognizes hunt and forage outcome messages of the form
// "<name> goes hunting ..." or "<name> goes foraging ...". A haul is a
// success when the text announces a harvest. Returns false for
// anything else, including outcomes with an empty character name.
func ParseForage(text string) (ForageOutcome, bool) {
	lower := strings.ToLower(text)

	var activity string
	switch {
	case strings.Contains(lower, "goes hunting"):
		activity = ActivityHunting
	case strings.Contains(lower, "goes foraging"):
		activity = ActivityForaging
	default:
		return ForageOutcome{}, false
	}

	idx := strings.Index(lower, " goes ")
	if idx <= 0 {
		return ForageOutcome{}, false
	}
	name := strings.TrimSpace(text[:idx])
	if name == "" {
		return ForageOutcome{}, false
	}

	success := strings.Contains(lower, "time to harvest") ||
		strings.Contains(lower, "time to gut and harvest")

	return ForageOutcome{
		CharacterName: name,
		Activity:      activity,
		Success:       success,
	}, true
}

// ForageAward computes the XP for one outcome. Every attempt earns the
// base amount and a successful haul adds the bonus, but the total is
// clipped to the room left under the daily forage cap. A character
// already at the cap earns nothing.
func ForageAward(success bool, base, bonus, dailyForage, cap int64) int64 {
	room := cap - dailyForage
	if room <= 0 {
		return 0
	}
	award := base
	if success {
		award += bonus
	}
	if award > room {
		award = room
	}
	if award < 0 {
		return 0
	}
	return award
}
