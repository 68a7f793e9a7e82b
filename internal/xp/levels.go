// Package xp implements the pure XP math: the level progression table
// and the passive accrual calculator. Nothing in this package touches
// the database or the clock.
package xp

// MaxLevel is the level cap. XP past the final threshold never raises
// the level further.
const MaxLevel = 20

// levelThresholds[i] is the cumulative XP at which level i+1 begins.
// Intervals are closed-open: XP exactly on a threshold belongs to the
// higher level.
var levelThresholds = [MaxLevel]int64{
	0, 300, 900, 2700, 6500, 14000, 23000, 34000, 48000, 64000,
	85000, 100000, 120000, 140000, 165000, 195000, 225000, 265000, 305000, 355000,
}

// LevelForXP returns the level (1..MaxLevel) for a cumulative XP total.
// Negative XP is treated as zero.
func LevelForXP(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	for i := MaxLevel - 1; i >= 0; i-- {
		if xp >= levelThresholds[i] {
			return i + 1
		}
	}
	return 1
}

// Progress returns the level for a cumulative XP total along with the
// XP earned within the current level and the XP span of that level.
// At MaxLevel both progress values are 0.
func Progress(xp int64) (level int, progress, required int64) {
	level = LevelForXP(xp)
	if level >= MaxLevel {
		return MaxLevel, 0, 0
	}
	current := levelThresholds[level-1]
	next := levelThresholds[level]
	return level, xp - current, next - current
}

// ToNextLevel returns the XP remaining until the next level, 0 at the
// level cap.
func ToNextLevel(xp int64) int64 {
	level, progress, required := Progress(xp)
	if level >= MaxLevel {
		return 0
	}
	return required - progress
}
