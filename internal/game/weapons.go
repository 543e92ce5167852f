package game

import (
	"math/rand"
	"time"

	"agent-arena/internal/catalog"
)

// Weapon is the runtime state of one carried weapon. The definition is
// shared and immutable; everything else belongs to the carrier.
type Weapon struct {
	Def         *catalog.WeaponDef
	Ammo        int
	LastShot    time.Time
	Reloading   bool
	ReloadStart time.Time
}

// NewWeapon returns a weapon with a full magazine.
func NewWeapon(def *catalog.WeaponDef) *Weapon {
	return &Weapon{Def: def, Ammo: def.Capacity}
}

// NewWeaponWithAmmo returns a weapon holding ammo rounds, clamped to
// [0, capacity].
func NewWeaponWithAmmo(def *catalog.WeaponDef, ammo int) *Weapon {
	w := &Weapon{Def: def}
	w.Ammo = min(max(ammo, 0), def.Capacity)
	return w
}

// CanFire reports whether the weapon may fire at now: not reloading, a
// round chambered (melee ignores ammo) and the fire delay elapsed.
func (w *Weapon) CanFire(now time.Time) bool {
	if w.Reloading {
		return false
	}
	if !w.Def.Melee && w.Ammo <= 0 {
		return false
	}
	return w.LastShot.IsZero() || now.Sub(w.LastShot) >= w.Def.FireDelay
}

// Fire consumes a round and records the shot time. It returns false and
// changes nothing when CanFire is false.
func (w *Weapon) Fire(now time.Time) bool {
	if !w.CanFire(now) {
		return false
	}
	if !w.Def.Melee {
		w.Ammo--
	}
	w.LastShot = now
	return true
}

// StartReload begins a reload if one is useful: ranged, not already
// reloading, magazine not full, and some reserve to draw from.
func (w *Weapon) StartReload(now time.Time, reserve int) bool {
	if w.Def.Melee || w.Reloading || w.Ammo >= w.Def.Capacity || reserve <= 0 {
		return false
	}
	w.Reloading = true
	w.ReloadStart = now
	return true
}

// UpdateReload completes a pending reload once ReloadTime has passed. It
// returns the number of rounds moved into the magazine, which the caller
// deducts from reserve.
func (w *Weapon) UpdateReload(now time.Time, reserve int) int {
	if !w.Reloading || now.Sub(w.ReloadStart) < w.Def.ReloadTime {
		return 0
	}
	w.Reloading = false
	n := min(w.Def.Capacity-w.Ammo, max(reserve, 0))
	w.Ammo += n
	return n
}

// CancelReload abandons a reload in progress.
func (w *Weapon) CancelReload() {
	w.Reloading = false
}

// PelletAngles fans count pellets evenly across spread around center, then
// jitters each by up to ±inaccuracy. A single pellet flies at center.
func PelletAngles(center float64, count int, spread, inaccuracy float64, rng *rand.Rand) []float64 {
	if count < 1 {
		count = 1
	}
	angles := make([]float64, count)
	for i := range angles {
		a := center
		if count > 1 {
			a += spread * (float64(i)/float64(count-1) - 0.5)
		}
		angles[i] = a + jitter(inaccuracy, rng)
	}
	return angles
}

func jitter(maxOffset float64, rng *rand.Rand) float64 {
	if maxOffset <= 0 || rng == nil {
		return 0
	}
	return (rng.Float64()*2 - 1) * maxOffset
}
