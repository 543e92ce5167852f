package game

import "math"

// Progression constants. A level is 100 XP and every level adds 5% to
// max health, movement speed and outgoing damage.
const (
	XPPerLevel         = 100
	MultiplierPerLevel = 0.05
	XPPerHit           = 2
	XPPerKill          = 50
	XPLossPerDamage    = 0.5
	XPLossMin          = 1
)

// LevelForXP returns floor(xp / XPPerLevel).
func LevelForXP(xp int) int {
	if xp <= 0 {
		return 0
	}
	return xp / XPPerLevel
}

// MultiplierForLevel returns the stat multiplier for a level.
func MultiplierForLevel(level int) float64 {
	return 1 + MultiplierPerLevel*float64(level)
}

// xpPenalty is how much XP a victim loses for taking amount damage.
func xpPenalty(amount float64) int {
	return int(math.Max(XPLossMin, math.Floor(amount*XPLossPerDamage)))
}
