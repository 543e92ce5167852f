package game

import (
	"sync"

	"agent-arena/internal/game/geom"
	"agent-arena/internal/protocol"
)

// Input is the latest control state for one character. Movement keys, aim
// and Attacking are held until the next input replaces them; the action
// flags, MoveBy and Plan fire once when the input is applied.
type Input struct {
	Seq       uint32
	Up        bool
	Down      bool
	Left      bool
	Right     bool
	Aim       geom.Vec2 // world point the character faces
	HasAim    bool
	Attacking bool

	SwitchWeapon bool
	Pickup       bool
	Reload       bool
	Interact     bool

	// Set by the agent bridge only.
	MoveBy *geom.Vec2
	Plan   *string

	// Additive inputs carry only one-shot actions. Applying one leaves the
	// held keys, aim and Attacking untouched.
	Additive bool
}

// InputFromPacket converts a client Input packet. Non-finite aim values are
// discarded rather than propagated into the simulation.
func InputFromPacket(p protocol.InputPacket) Input {
	in := Input{
		Seq:          p.Seq,
		Up:           p.Up,
		Down:         p.Down,
		Left:         p.Left,
		Right:        p.Right,
		Attacking:    p.Attacking,
		SwitchWeapon: p.SwitchWeapon,
		Pickup:       p.Pickup,
		Reload:       p.Reload,
		Interact:     p.Interact,
	}
	aim := geom.V(p.AimX, p.AimY)
	if aim.IsFinite() {
		in.Aim = aim
		in.HasAim = true
	}
	return in
}

// direction returns the unnormalized movement direction from held keys.
func (in Input) direction() geom.Vec2 {
	var d geom.Vec2
	if in.Up {
		d.Y--
	}
	if in.Down {
		d.Y++
	}
	if in.Left {
		d.X--
	}
	if in.Right {
		d.X++
	}
	return d
}

// InputBuffer collects inputs from network and bridge goroutines between
// ticks. Only the most recent input per entity survives until the next
// Drain; earlier ones written in the same tick are overwritten.
type InputBuffer struct {
	mu        sync.Mutex
	pending   map[EntityID]Input
	coalesced uint64
}

// NewInputBuffer creates an empty buffer.
func NewInputBuffer() *InputBuffer {
	return &InputBuffer{pending: make(map[EntityID]Input)}
}

// Put records in as the latest input for id. An additive input is folded
// into a pending one instead of replacing it.
func (b *InputBuffer) Put(id EntityID, in Input) {
	b.mu.Lock()
	if prev, ok := b.pending[id]; ok {
		b.coalesced++
		if in.Additive {
			in = prev.withOneShots(in)
		}
	}
	b.pending[id] = in
	b.mu.Unlock()
}

// withOneShots returns in with the one-shot actions of extra added.
func (in Input) withOneShots(extra Input) Input {
	in.SwitchWeapon = in.SwitchWeapon || extra.SwitchWeapon
	in.Pickup = in.Pickup || extra.Pickup
	in.Reload = in.Reload || extra.Reload
	in.Interact = in.Interact || extra.Interact
	if extra.MoveBy != nil {
		in.MoveBy = extra.MoveBy
	}
	if extra.Plan != nil {
		in.Plan = extra.Plan
	}
	return in
}

// Drain returns and clears all pending inputs.
func (b *InputBuffer) Drain() map[EntityID]Input {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = make(map[EntityID]Input, len(out))
	return out
}

// Discard drops any pending input for id.
func (b *InputBuffer) Discard(id EntityID) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Coalesced returns how many inputs were overwritten before being applied.
func (b *InputBuffer) Coalesced() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.coalesced
}
