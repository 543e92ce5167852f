package game

import (
	"agent-arena/internal/game/geom"
	"agent-arena/internal/protocol"
)

// Bullet is a ranged shot in flight. Damage is fixed when fired, so later
// level changes of the shooter do not affect bullets already airborne.
type Bullet struct {
	ID        EntityID
	Pos       geom.Vec2
	Origin    geom.Vec2
	Dir       geom.Vec2 // unit
	Rotation  float64
	Speed     float64 // units per second
	Damage    float64
	Traveled  float64
	Range     float64
	ShooterID EntityID
	WeaponID  string
	Alive     bool
}

func (b *Bullet) state() protocol.BulletState {
	return protocol.BulletState{
		ID:        uint32(b.ID),
		X:         b.Pos.X,
		Y:         b.Pos.Y,
		Rotation:  b.Rotation,
		ShooterID: uint32(b.ShooterID),
	}
}

// bulletHit is the nearest thing a bullet's sweep touched.
type bulletHit struct {
	id   EntityID
	kind EntityKind
	hit  geom.Hit
}

// updateBullets advances every live bullet by one tick. Each bullet sweeps
// the segment it travels this tick and stops at the nearest non-shooter
// hitbox it crosses. Equidistant hits go to the lower entity ID.
func (w *World) updateBullets(dt float64) {
	n := 0
	for _, b := range w.bullets {
		w.advanceBullet(b, dt)
		if b.Alive {
			w.bullets[n] = b
			n++
		}
	}
	clear(w.bullets[n:])
	w.bullets = w.bullets[:n]
}

func (w *World) advanceBullet(b *Bullet, dt float64) {
	step := b.Speed * dt
	if remaining := b.Range - b.Traveled; step > remaining {
		step = remaining
	}
	from := b.Pos
	to := from.Add(b.Dir.Scale(step))

	if hit, ok := w.sweep(b, from, to); ok {
		b.Pos = hit.hit.Point
		b.Traveled += hit.hit.Distance
		b.Alive = false
		w.applyBulletHit(b, hit)
		return
	}

	b.Pos = to
	b.Traveled += step
	if b.Traveled >= b.Range || !w.bounds.Contains(b.Pos) {
		b.Alive = false
	}
}

func (w *World) sweep(b *Bullet, from, to geom.Vec2) (bulletHit, bool) {
	var best bulletHit
	found := false
	for _, raw := range w.grid.Query(geom.SegmentBounds(from, to)) {
		id := EntityID(raw)
		if id == b.ShooterID {
			continue
		}
		var hb geom.Hitbox
		kind := w.kinds[id]
		switch kind {
		case KindCharacter:
			c := w.charByID[id]
			if c == nil || !c.Alive {
				continue
			}
			hb = c.Hitbox
		case KindObstacle:
			o := w.obstacleByID[id]
			if o == nil || o.Passable() {
				continue
			}
			hb = o.Hitbox
		default:
			continue
		}
		h, ok := geom.IntersectSegment(hb, from, to)
		if !ok {
			continue
		}
		// Query returns ascending IDs, so strict < keeps the lower ID on ties.
		if !found || h.Distance < best.hit.Distance {
			best = bulletHit{id: id, kind: kind, hit: h}
			found = true
		}
	}
	return best, found
}

func (w *World) applyBulletHit(b *Bullet, h bulletHit) {
	switch h.kind {
	case KindCharacter:
		w.damageCharacter(w.charByID[h.id], b.Damage, w.charByID[b.ShooterID], b.WeaponID)
	case KindObstacle:
		w.damageObstacle(w.obstacleByID[h.id], b.Damage, b.ShooterID)
	}
}
