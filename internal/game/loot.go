package game

import (
	"agent-arena/internal/game/geom"
	"agent-arena/internal/protocol"
)

// LootType tags what a pickup grants.
type LootType string

const (
	LootXPOrb  LootType = "xp_orb"
	LootAmmo   LootType = "ammo"
	LootWeapon LootType = "weapon"
	LootHealth LootType = "health"
)

// Loot is an item lying on the ground. XP orbs are collected on contact;
// everything else needs a pickup action.
type Loot struct {
	Body
	Type     LootType
	WeaponID string
	AmmoType string
	Amount   int // XP, rounds, health, or magazine contents for weapons
}

func (l *Loot) state() protocol.LootState {
	return protocol.LootState{
		ID:       uint32(l.ID),
		Type:     string(l.Type),
		X:        l.Pos.X,
		Y:        l.Pos.Y,
		Weapon:   l.WeaponID,
		AmmoType: l.AmmoType,
		Amount:   l.Amount,
	}
}

func newLoot(id EntityID, typ LootType, pos geom.Vec2, radius float64) *Loot {
	return &Loot{
		Body: Body{ID: id, Pos: pos, Hitbox: geom.Circle(pos, radius), Alive: true},
		Type: typ,
	}
}
