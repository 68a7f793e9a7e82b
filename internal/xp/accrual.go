package xp

// AccrualInput holds everything the passive accrual decision needs.
// Ratio is the guild's characters-per-XP setting, Cap the guild's
// daily XP cap, Buffer and DailyXP the character's current counters.
type AccrualInput struct {
	Length  int64 // message character count
	Buffer  int64 // unconverted character count carried over
	Ratio   int64 // characters per 1 XP
	DailyXP int64 // XP already accrued today
	Cap     int64 // daily XP cap
}

// AccrualResult is the outcome of one accrual computation.
// Credited is the XP to add to lifetime and daily XP, NewBuffer the
// buffer value to persist, Capped whether the daily cap limited (or
// has now been reached by) this accrual.
type AccrualResult struct {
	Credited  int64
	NewBuffer int64
	Capped    bool
}

// Accrue converts message activity into an XP delta.
//
// total = buffer + length is divided by the ratio; whole units are
// credited up to the remaining daily room. When the cap truncates the
// credit, the unconverted remainder is discarded rather than banked:
// a capped-out character must not accumulate overflow for tomorrow.
// Only when every convertible unit was applied does the remainder
// survive as the new buffer.
func Accrue(in AccrualInput) AccrualResult {
	if in.Ratio <= 0 {
		// Misconfigured guild; nothing converts.
		return AccrualResult{NewBuffer: in.Buffer}
	}

	total := in.Buffer + in.Length
	whole := total / in.Ratio
	rem := total % in.Ratio

	room := in.Cap - in.DailyXP
	var credited int64
	if room > 0 {
		credited = whole
		if credited > room {
			credited = room
		}
	}

	res := AccrualResult{Credited: credited}
	if credited == whole {
		res.NewBuffer = rem
	} else {
		// Cap cut the credit short; drop the surplus.
		res.NewBuffer = 0
	}
	res.Capped = in.DailyXP+credited >= in.Cap
	return res
}
