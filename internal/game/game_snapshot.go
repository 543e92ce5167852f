package game

import (
	"sync/atomic"
	"time"

	"agent-arena/internal/protocol"
)

// ResourceLimits defines hard caps that keep a busy or hostile arena from
// exhausting memory or tick time.
type ResourceLimits struct {
	MaxCharacters int // players + agents
	MaxAgents     int // bridge-controlled subset
	MaxBullets    int // live bullets; extra pellets are dropped
	MaxLoot       int // used to size the spatial index
}

// DefaultLimits provides production-safe default limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxCharacters: 200,
		MaxAgents:     64,
		MaxBullets:    1024,
		MaxLoot:       512,
	}
}

// Snapshot is an immutable copy of the world taken at the end of a tick.
// The slices are shared by every connection's update and must not be
// modified.
type Snapshot struct {
	Tick      uint64
	Time      time.Time
	Players   []protocol.PlayerState
	Bullets   []protocol.BulletState
	Obstacles []protocol.ObstacleState
	Loot      []protocol.LootState

	private map[EntityID]*protocol.PrivateState
}

// Snapshot copies the world's public state plus every character's private
// block.
func (w *World) Snapshot() *Snapshot {
	s := &Snapshot{
		Tick:      w.tick,
		Time:      w.now,
		Players:   make([]protocol.PlayerState, len(w.characters)),
		Bullets:   make([]protocol.BulletState, len(w.bullets)),
		Obstacles: make([]protocol.ObstacleState, len(w.obstacles)),
		Loot:      make([]protocol.LootState, len(w.loot)),
		private:   make(map[EntityID]*protocol.PrivateState, len(w.characters)),
	}
	for i, c := range w.characters {
		s.Players[i] = c.PublicState()
		if !c.IsAgent() {
			s.private[c.ID] = c.PrivateState()
		}
	}
	for i, b := range w.bullets {
		s.Bullets[i] = b.state()
	}
	for i, o := range w.obstacles {
		s.Obstacles[i] = o.state()
	}
	for i, l := range w.loot {
		s.Loot[i] = l.state()
	}
	return s
}

// Private returns the private block for a human character, or nil.
func (s *Snapshot) Private(id EntityID) *protocol.PrivateState {
	return s.private[id]
}

// UpdateFor builds the update packet for one connection. Players receive
// their private block; spectators (id 0) get the spectator marker.
func (s *Snapshot) UpdateFor(id EntityID) protocol.UpdatePacket {
	u := protocol.UpdatePacket{
		Tick:      s.Tick,
		Players:   s.Players,
		Bullets:   s.Bullets,
		Obstacles: s.Obstacles,
		Loot:      s.Loot,
	}
	if id == 0 {
		u.Spectator = true
	} else {
		u.Self = s.private[id]
	}
	return u
}

// SnapshotStore publishes the latest snapshot to readers on other
// goroutines without locking.
type SnapshotStore struct {
	latest atomic.Pointer[Snapshot]
}

// Publish replaces the current snapshot.
func (st *SnapshotStore) Publish(s *Snapshot) {
	st.latest.Store(s)
}

// Latest returns the most recent snapshot, or nil before the first tick.
func (st *SnapshotStore) Latest() *Snapshot {
	return st.latest.Load()
}
