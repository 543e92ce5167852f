package game

import (
	"agent-arena/internal/game/geom"
)

// EntityID identifies every simulated object. IDs are assigned in increasing
// order and never reused, so comparing IDs also compares spawn order.
type EntityID uint32

// EntityKind tags the variant behind an EntityID.
type EntityKind uint8

const (
	KindNone EntityKind = iota
	KindCharacter
	KindObstacle
	KindBullet
	KindLoot
)

func (k EntityKind) String() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindObstacle:
		return "obstacle"
	case KindBullet:
		return "bullet"
	case KindLoot:
		return "loot"
	default:
		return "none"
	}
}

// Body is the state shared by all entities: identity, position, hitbox and
// the alive flag. The hitbox always sits at Pos; use SetPosition to move.
type Body struct {
	ID     EntityID
	Pos    geom.Vec2
	Hitbox geom.Hitbox
	Alive  bool
}

// SetPosition moves the body and its hitbox together.
func (b *Body) SetPosition(p geom.Vec2) {
	b.Pos = p
	b.Hitbox = b.Hitbox.At(p)
}
