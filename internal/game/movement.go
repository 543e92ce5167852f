package game

import (
	"math"
	"time"

	"agent-arena/internal/game/geom"
)

// Interpolation eases an agent from Start to Target over Duration. The
// agent snaps to Target once progress reaches 1.
type Interpolation struct {
	Start     geom.Vec2
	Target    geom.Vec2
	StartTime time.Time
	Duration  time.Duration
}

// EaseInOutCubic maps t in [0,1] onto a smooth accelerate/decelerate curve.
// It is monotonic with EaseInOutCubic(0)=0 and EaseInOutCubic(1)=1.
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// Progress returns elapsed/duration clamped to [0, 1].
func (ip *Interpolation) Progress(now time.Time) float64 {
	if ip.Duration <= 0 {
		return 1
	}
	return geom.Clamp(float64(now.Sub(ip.StartTime))/float64(ip.Duration), 0, 1)
}

// PositionAt returns the eased position at now and whether the move is
// complete.
func (ip *Interpolation) PositionAt(now time.Time) (geom.Vec2, bool) {
	p := ip.Progress(now)
	if p >= 1 {
		return ip.Target, true
	}
	return ip.Start.Lerp(ip.Target, EaseInOutCubic(p)), false
}

// moveCharacter applies held directional input for one tick. A blocked
// destination rejects the whole move; there is no sliding.
func (w *World) moveCharacter(c *Character, dt float64) {
	dir := c.input.direction()
	if dir.IsZero() {
		return
	}
	disp := dir.Normalize().Scale(c.Speed() * dt)
	w.tryMove(c, c.Pos.Add(disp))
}

// tryMove moves c to dest (clamped to the world) unless that overlaps a
// solid entity.
func (w *World) tryMove(c *Character, dest geom.Vec2) bool {
	dest = w.clampToWorld(dest, c.Hitbox.Radius)
	if w.blocked(c.Hitbox.At(dest), c.ID) {
		return false
	}
	w.setCharacterPos(c, dest)
	return true
}

// pushBack nudges c opposite to dir after a rejected bridge move. The
// nudge is collision checked like any other move.
func (w *World) pushBack(c *Character, dir geom.Vec2) bool {
	if dir.IsZero() || w.cfg.PushBackDistance <= 0 {
		return false
	}
	return w.tryMove(c, c.Pos.Sub(dir.Normalize().Scale(w.cfg.PushBackDistance)))
}

// startMove begins an eased move by offset. It returns false, after
// applying push-back, when the destination is blocked.
func (w *World) startMove(c *Character, offset geom.Vec2, now time.Time) bool {
	if offset.IsZero() || !offset.IsFinite() {
		return false
	}
	target := w.clampToWorld(c.Pos.Add(offset), c.Hitbox.Radius)
	if w.blocked(c.Hitbox.At(target), c.ID) {
		w.pushBack(c, offset)
		return false
	}

	dist := target.Dist(c.Pos)
	dur := time.Duration(dist / w.cfg.InterpSpeed * float64(time.Second))
	if dur < w.cfg.MinInterpDuration {
		dur = w.cfg.MinInterpDuration
	}
	c.interp = &Interpolation{Start: c.Pos, Target: target, StartTime: now, Duration: dur}
	if !c.Attacking {
		c.Rotation = offset.Angle()
	}
	return true
}

// updateInterpolations advances every agent mid-move. If something has
// moved into the path the move is abandoned and the agent pushed back.
func (w *World) updateInterpolations(now time.Time) {
	for _, c := range w.characters {
		if !c.Alive || c.interp == nil {
			continue
		}
		pos, done := c.interp.PositionAt(now)
		if w.blocked(c.Hitbox.At(pos), c.ID) {
			dir := c.interp.Target.Sub(c.interp.Start)
			c.interp = nil
			w.pushBack(c, dir)
			continue
		}
		w.setCharacterPos(c, pos)
		if done {
			c.interp = nil
		}
	}
}

// blocked reports whether h overlaps any solid entity other than self.
// Solid means a live character or an obstacle that is neither destroyed
// nor open.
func (w *World) blocked(h geom.Hitbox, self EntityID) bool {
	for _, raw := range w.grid.Query(h.Bounds()) {
		id := EntityID(raw)
		if id == self {
			continue
		}
		switch w.kinds[id] {
		case KindCharacter:
			if o := w.charByID[id]; o != nil && o.Alive && geom.Overlaps(h, o.Hitbox) {
				return true
			}
		case KindObstacle:
			if o := w.obstacleByID[id]; o != nil && !o.Passable() && geom.Overlaps(h, o.Hitbox) {
				return true
			}
		}
	}
	return false
}

func (w *World) clampToWorld(p geom.Vec2, margin float64) geom.Vec2 {
	return geom.V(
		geom.Clamp(p.X, margin, w.cfg.Width-margin),
		geom.Clamp(p.Y, margin, w.cfg.Height-margin),
	)
}

func (w *World) setCharacterPos(c *Character, p geom.Vec2) {
	c.SetPosition(p)
	w.grid.Update(uint32(c.ID), c.Hitbox.Bounds())
}

// Teleport places a character at pos, clamped to the world, without a
// collision check. Any bridge move in progress is cancelled.
func (w *World) Teleport(id EntityID, pos geom.Vec2) bool {
	c := w.charByID[id]
	if c == nil || !pos.IsFinite() {
		return false
	}
	c.interp = nil
	w.setCharacterPos(c, w.clampToWorld(pos, c.Hitbox.Radius))
	return true
}
