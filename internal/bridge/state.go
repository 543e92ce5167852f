package bridge

import (
	"cmp"
	"slices"
	"strconv"

	"agent-arena/internal/game"
)

// StateForAgent builds the agent's view: its own status plus every other
// character, loot item and intact obstacle whose center lies within radius,
// each list sorted by distance (ties by entity id). It consumes the
// just-died flag. w must be locked by the caller.
func StateForAgent(w *game.World, agent *game.Character, radius float64) *AgentState {
	st := &AgentState{
		AgentID:    agent.AgentID,
		EntityID:   uint32(agent.ID),
		Name:       agent.Name,
		Tick:       w.Tick(),
		Position:   Position{X: agent.Pos.X, Y: agent.Pos.Y},
		Rotation:   agent.Rotation,
		Health:     agent.Health,
		MaxHealth:  agent.MaxHealth(),
		Alive:      agent.Alive,
		JustDied:   agent.ConsumeJustDied(),
		Moving:     agent.Interpolating(),
		Inventory:  []string{},
		ActiveSlot: agent.ActiveSlot,
		Ammo:       make(map[string]int, len(agent.Ammo)),
		XP:         agent.XP,
		Level:      agent.Level(),
		Kills:      agent.Kills,
		Deaths:     agent.Deaths,
		Plan:       agent.Plan,
		LastAction: agent.LastAction,

		NearbyAgents:    []NearbyCharacter{},
		NearbyLoot:      []NearbyLoot{},
		NearbyObstacles: []NearbyObstacle{},
	}
	for slot, wpn := range agent.Weapons {
		if wpn == nil {
			continue
		}
		st.Inventory = append(st.Inventory, wpn.Def.ID)
		st.Weapons = append(st.Weapons, WeaponInfo{
			Slot:      slot,
			ID:        wpn.Def.ID,
			Name:      wpn.Def.Name,
			Melee:     wpn.Def.Melee,
			Ammo:      wpn.Ammo,
			Capacity:  wpn.Def.Capacity,
			Reloading: wpn.Reloading,
			Active:    slot == agent.ActiveSlot,
		})
	}
	for t, n := range agent.Ammo {
		st.Ammo[t] = n
	}

	for _, id := range w.QueryRadius(agent.Pos, radius) {
		if id == agent.ID {
			continue
		}
		switch w.KindOf(id) {
		case game.KindCharacter:
			c := w.Character(id)
			nc := NearbyCharacter{
				ID:        characterRef(c),
				EntityID:  uint32(c.ID),
				Name:      c.Name,
				Agent:     c.IsAgent(),
				Position:  Position{X: c.Pos.X, Y: c.Pos.Y},
				Distance:  c.Pos.Dist(agent.Pos),
				Health:    c.Health,
				MaxHealth: c.MaxHealth(),
				Level:     c.Level(),
			}
			if wpn := c.ActiveWeapon(); wpn != nil {
				nc.Weapon = wpn.Def.ID
			}
			st.NearbyAgents = append(st.NearbyAgents, nc)
		case game.KindLoot:
			l := w.LootByID(id)
			st.NearbyLoot = append(st.NearbyLoot, NearbyLoot{
				EntityID: uint32(l.ID),
				Type:     string(l.Type),
				Weapon:   l.WeaponID,
				AmmoType: l.AmmoType,
				Amount:   l.Amount,
				Position: Position{X: l.Pos.X, Y: l.Pos.Y},
				Distance: l.Pos.Dist(agent.Pos),
			})
		case game.KindObstacle:
			o := w.Obstacle(id)
			st.NearbyObstacles = append(st.NearbyObstacles, NearbyObstacle{
				EntityID:     uint32(o.ID),
				Type:         o.Def.Type,
				Position:     Position{X: o.Pos.X, Y: o.Pos.Y},
				Distance:     o.Pos.Dist(agent.Pos),
				Health:       o.Health,
				Destructible: !o.Def.Indestructible,
				Interactive:  o.Def.Interactive,
				Open:         o.Open,
			})
		}
	}

	slices.SortFunc(st.NearbyAgents, func(a, b NearbyCharacter) int {
		return byDistance(a.Distance, b.Distance, a.EntityID, b.EntityID)
	})
	slices.SortFunc(st.NearbyLoot, func(a, b NearbyLoot) int {
		return byDistance(a.Distance, b.Distance, a.EntityID, b.EntityID)
	})
	slices.SortFunc(st.NearbyObstacles, func(a, b NearbyObstacle) int {
		return byDistance(a.Distance, b.Distance, a.EntityID, b.EntityID)
	})
	return st
}

func byDistance(da, db float64, ida, idb uint32) int {
	if c := cmp.Compare(da, db); c != 0 {
		return c
	}
	return cmp.Compare(ida, idb)
}

// characterRef is the id an agent uses to target c.
func characterRef(c *game.Character) string {
	if c.IsAgent() && c.AgentID != "" {
		return c.AgentID
	}
	return strconv.FormatUint(uint64(c.ID), 10)
}
