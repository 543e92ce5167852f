package game

import (
	"time"

	"agent-arena/internal/protocol"
)

// ControlMode separates the two character variants.
type ControlMode uint8

const (
	ControlHuman ControlMode = iota // live client over the socket protocol
	ControlAgent                    // driven by the HTTP agent bridge
)

// Character is a player or AI agent. Both share combat and progression;
// agents additionally move by interpolation and carry a plan.
type Character struct {
	Body
	Name       string
	Control    ControlMode
	Rotation   float64
	Health     float64
	Weapons    [2]*Weapon
	ActiveSlot int
	Ammo       map[string]int // reserve rounds by ammo type
	XP         int
	Kills      int // never reset, not even by respawn
	Deaths     int
	Attacking  bool

	// JustDied is set on death and cleared by the first bridge state read.
	JustDied bool
	DiedAt   time.Time

	input        Input
	lastSeq      uint32
	wantPickup   bool
	wantInteract bool

	baseHealth float64
	baseSpeed  float64

	// Agent-only state.
	AgentID    string
	Plan       string
	LastAction string
	interp     *Interpolation
}

// IsAgent reports whether the character is bridge-controlled.
func (c *Character) IsAgent() bool { return c.Control == ControlAgent }

// Level returns floor(XP/100).
func (c *Character) Level() int { return LevelForXP(c.XP) }

// Multiplier is the level-based stat multiplier, read at point of use.
func (c *Character) Multiplier() float64 { return MultiplierForLevel(c.Level()) }

// MaxHealth scales base health by level.
func (c *Character) MaxHealth() float64 { return c.baseHealth * c.Multiplier() }

// Speed scales base movement speed by level.
func (c *Character) Speed() float64 { return c.baseSpeed * c.Multiplier() }

// ActiveWeapon returns the selected weapon, which may be nil.
func (c *Character) ActiveWeapon() *Weapon {
	return c.Weapons[c.ActiveSlot]
}

// Interpolating reports whether a bridge move is in progress.
func (c *Character) Interpolating() bool { return c.interp != nil }

// CurrentInput returns the held input.
func (c *Character) CurrentInput() Input { return c.input }

// SwitchWeapon selects the other slot when it holds a weapon.
func (c *Character) SwitchWeapon() bool {
	other := 1 - c.ActiveSlot
	if c.Weapons[other] == nil {
		return false
	}
	c.ActiveSlot = other
	return true
}

// TakeDamage applies amount to the character and handles progression. The
// victim loses XP for the hit; a distinct living attacker gains XPPerHit
// and, on the killing blow, XPPerKill and a kill. Dead characters ignore
// damage.
// It returns true when this hit killed the character.
func (c *Character) TakeDamage(amount float64, attacker *Character, now time.Time) bool {
	if !c.Alive || amount <= 0 {
		return false
	}

	c.Health -= amount
	if c.Health < 0 {
		c.Health = 0
	}
	c.addXP(-xpPenalty(amount))

	credited := attacker != nil && attacker != c && attacker.Alive
	if credited {
		attacker.addXP(XPPerHit)
	}

	if c.Health > 0 {
		return false
	}
	c.die(now)
	if credited {
		attacker.Kills++
		attacker.addXP(XPPerKill)
	}
	return true
}

// Heal restores health up to the level-scaled maximum.
func (c *Character) Heal(amount float64) {
	if !c.Alive || amount <= 0 {
		return
	}
	c.Health = min(c.Health+amount, c.MaxHealth())
}

// addXP changes XP, flooring at zero. Losing a level clamps health to the
// new, lower maximum.
func (c *Character) addXP(delta int) {
	c.XP = max(c.XP+delta, 0)
	if m := c.MaxHealth(); c.Health > m {
		c.Health = m
	}
}

func (c *Character) die(now time.Time) {
	c.Alive = false
	c.Health = 0
	c.JustDied = true
	c.DiedAt = now
	c.Deaths++
	c.Attacking = false
	c.interp = nil
	c.input = Input{}
	for _, w := range c.Weapons {
		if w != nil {
			w.CancelReload()
		}
	}
}

// ConsumeJustDied returns and clears the death edge flag.
func (c *Character) ConsumeJustDied() bool {
	d := c.JustDied
	c.JustDied = false
	return d
}

// PublicState is the view every client sees.
func (c *Character) PublicState() protocol.PlayerState {
	s := protocol.PlayerState{
		ID:        uint32(c.ID),
		Name:      c.Name,
		X:         c.Pos.X,
		Y:         c.Pos.Y,
		Rotation:  c.Rotation,
		Health:    c.Health,
		MaxHealth: c.MaxHealth(),
		Alive:     c.Alive,
		Agent:     c.IsAgent(),
		Attacking: c.Attacking,
		Level:     c.Level(),
		Kills:     c.Kills,
	}
	if w := c.ActiveWeapon(); w != nil {
		s.Weapon = w.Def.ID
	}
	return s
}

// PrivateState is the view only the owning connection sees.
func (c *Character) PrivateState() *protocol.PrivateState {
	s := &protocol.PrivateState{
		ID:         uint32(c.ID),
		ActiveSlot: c.ActiveSlot,
		Ammo:       make(map[string]int, len(c.Ammo)),
		XP:         c.XP,
		Level:      c.Level(),
		Kills:      c.Kills,
		Deaths:     c.Deaths,
	}
	for i, w := range c.Weapons {
		if w != nil {
			s.Slots[i] = &protocol.WeaponSlot{
				ID:        w.Def.ID,
				Ammo:      w.Ammo,
				Capacity:  w.Def.Capacity,
				Reloading: w.Reloading,
			}
		}
	}
	for k, v := range c.Ammo {
		s.Ammo[k] = v
	}
	return s
}
