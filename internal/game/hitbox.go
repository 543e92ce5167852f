package game

import (
	"agent-arena/internal/game/geom"
)

// Melee cone thresholds. A target is in front when the dot product of the
// attacker's facing and the unit vector to the target exceeds the limit.
// Obstacles use a wider cone and a little extra reach since their centers
// sit further inside larger shapes.
const (
	MeleeCharacterDot   = 0.5 // ~60° either side
	MeleeObstacleDot    = 0.3 // ~72° either side
	ObstacleMeleeMargin = 20.0
)

// MeleeCone is a melee weapon's attack area for one swing.
type MeleeCone struct {
	Origin geom.Vec2
	Facing geom.Vec2 // unit
	Range  float64
}

// Contains reports whether a target centered at p lies within reach and
// inside the cone described by minDot.
func (m MeleeCone) Contains(p geom.Vec2, reach, minDot float64) bool {
	to := p.Sub(m.Origin)
	dist := to.Len()
	if dist > reach {
		return false
	}
	// Overlapping centers: treat as in front.
	if dist < geom.Epsilon {
		return true
	}
	return m.Facing.Dot(to.Scale(1/dist)) > minDot
}

// meleeHit is a strike queued during the attack phase. Strikes are applied
// together once every character has attacked, so two fighters swinging at
// each other in the same tick both land.
type meleeHit struct {
	target   EntityID
	kind     EntityKind
	damage   float64
	attacker EntityID
	weaponID string
}

// meleeAttack queues a strike on every live character and obstacle in
// front of c.
func (w *World) meleeAttack(c *Character, wpn *Weapon) {
	angle := c.Rotation + jitter(wpn.Def.Inaccuracy, w.rng)
	cone := MeleeCone{Origin: c.Pos, Facing: geom.FromAngle(angle), Range: wpn.Def.Range}
	damage := wpn.Def.Damage * c.Multiplier()

	reach := cone.Range + ObstacleMeleeMargin
	for _, raw := range w.grid.QueryRadius(c.Pos.X, c.Pos.Y, reach) {
		id := EntityID(raw)
		if id == c.ID {
			continue
		}
		switch w.kinds[id] {
		case KindCharacter:
			t := w.charByID[id]
			if t != nil && t.Alive && cone.Contains(t.Pos, cone.Range, MeleeCharacterDot) {
				w.meleeHits = append(w.meleeHits, meleeHit{id, KindCharacter, damage, c.ID, wpn.Def.ID})
			}
		case KindObstacle:
			o := w.obstacleByID[id]
			if o != nil && !o.Passable() && cone.Contains(o.Pos, reach, MeleeObstacleDot) {
				w.meleeHits = append(w.meleeHits, meleeHit{id, KindObstacle, damage, c.ID, wpn.Def.ID})
			}
		}
	}
}

func (w *World) applyMeleeHits() {
	for _, h := range w.meleeHits {
		switch h.kind {
		case KindCharacter:
			w.damageCharacter(w.charByID[h.target], h.damage, w.charByID[h.attacker], h.weaponID)
		case KindObstacle:
			w.damageObstacle(w.obstacleByID[h.target], h.damage, h.attacker)
		}
	}
	clear(w.meleeHits)
	w.meleeHits = w.meleeHits[:0]
}
