package game

import (
	"agent-arena/internal/catalog"
	"agent-arena/internal/game/geom"
	"agent-arena/internal/protocol"
)

// Obstacle is static scenery: trees, rocks, crates, walls and gates.
type Obstacle struct {
	Body
	Def      *catalog.ObstacleDef
	Rotation float64
	Health   float64
	Open     bool // interactive obstacles only
}

func newObstacle(id EntityID, def *catalog.ObstacleDef, pos geom.Vec2, rotation float64) *Obstacle {
	var hb geom.Hitbox
	if def.Shape == "circle" {
		hb = geom.Circle(pos, def.Radius)
	} else {
		hb = geom.Rect(pos, def.Width, def.Height, rotation)
	}
	return &Obstacle{
		Body:     Body{ID: id, Pos: pos, Hitbox: hb, Alive: true},
		Def:      def,
		Rotation: rotation,
		Health:   def.Health,
	}
}

// Passable reports whether characters may overlap the obstacle.
func (o *Obstacle) Passable() bool {
	return !o.Alive || o.Open
}

// TakeDamage reduces health. It returns true exactly once: on the hit
// that destroys the obstacle.
func (o *Obstacle) TakeDamage(amount float64) bool {
	if !o.Alive || o.Def.Indestructible || amount <= 0 {
		return false
	}
	o.Health -= amount
	if o.Health > 0 {
		return false
	}
	o.Health = 0
	o.Alive = false
	return true
}

// Toggle opens or closes an interactive obstacle.
func (o *Obstacle) Toggle() bool {
	if !o.Alive || !o.Def.Interactive {
		return false
	}
	o.Open = !o.Open
	return true
}

func (o *Obstacle) state() protocol.ObstacleState {
	return protocol.ObstacleState{
		ID:        uint32(o.ID),
		Type:      o.Def.Type,
		X:         o.Pos.X,
		Y:         o.Pos.Y,
		Rotation:  o.Rotation,
		Health:    o.Health,
		Destroyed: !o.Alive,
		Open:      o.Open,
	}
}
