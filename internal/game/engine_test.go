package game

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-arena/internal/game/geom"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultWorldConfig()
	cfg.Seed = 7
	e := NewEngine(EngineConfig{World: cfg})
	t.Cleanup(e.Stop)
	return e
}

// TestNewEngine verifies engine creation with correct defaults
func TestNewEngine(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, 40, e.TickRate())
	require.NotNil(t, e.Snapshot(), "an initial snapshot is published before the first tick")
	assert.Equal(t, uint64(0), e.Snapshot().Tick)
	assert.False(t, e.Running())
}

// TestEngineStartStop verifies engine can start and stop without panics
func TestEngineStartStop(t *testing.T) {
	e := newTestEngine(t)

	var ticks atomic.Int32
	e.OnTick(func(*Snapshot, time.Duration) { ticks.Add(1) })

	e.Start()
	e.Start()
	assert.True(t, e.Running())
	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)

	e.Stop()
	e.Stop()
	assert.False(t, e.Running())
	n := ticks.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, ticks.Load(), "no ticks after Stop")
}

func TestJoinPlayer(t *testing.T) {
	e := newTestEngine(t)

	id, err := e.JoinPlayer(0, "Player1")
	require.NoError(t, err)
	assert.NotZero(t, id)

	snap := e.Step(t0)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "Player1", snap.Players[0].Name)
	assert.NotNil(t, snap.UpdateFor(id).Self)

	// Joining again while alive keeps the same character.
	again, err := e.JoinPlayer(id, "Player1")
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestJoinPlayerRespawnsDead(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.JoinPlayer(0, "Player1")
	require.NoError(t, err)

	e.WithWorld(func(w *World) {
		w.Character(id).TakeDamage(1000, nil, t0)
	})
	again, err := e.JoinPlayer(id, "Player1")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	e.WithWorld(func(w *World) {
		c := w.Character(id)
		assert.True(t, c.Alive)
		assert.Equal(t, 1, c.Deaths)
	})
}

func TestJoinPlayerLimit(t *testing.T) {
	cfg := DefaultWorldConfig()
	cfg.Limits.MaxCharacters = 3
	e := NewEngine(EngineConfig{World: cfg})
	t.Cleanup(e.Stop)

	for i := 0; i < 3; i++ {
		_, err := e.JoinPlayer(0, fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}
	_, err := e.JoinPlayer(0, "overflow")
	assert.ErrorIs(t, err, ErrWorldFull)
}

func TestAddAgentLimit(t *testing.T) {
	cfg := DefaultWorldConfig()
	cfg.Limits.MaxAgents = 1
	e := NewEngine(EngineConfig{World: cfg})
	t.Cleanup(e.Stop)

	id, err := e.AddAgent("agent-1", "Bot")
	require.NoError(t, err)
	e.WithWorld(func(w *World) {
		c := w.Character(id)
		assert.True(t, c.IsAgent())
		assert.Equal(t, "agent-1", c.AgentID)
	})

	_, err = e.AddAgent("agent-2", "Bot2")
	assert.ErrorIs(t, err, ErrWorldFull)

	_, err = e.JoinPlayer(0, "human")
	assert.NoError(t, err, "humans are not counted against the agent cap")
}

func TestSubmitInputLastWriteWins(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.JoinPlayer(0, "p")
	require.NoError(t, err)

	var start geom.Vec2
	e.WithWorld(func(w *World) { start = w.Character(id).Pos })

	e.SubmitInput(id, Input{Left: true})
	e.SubmitInput(id, Input{Right: true})
	e.Step(t0)

	e.WithWorld(func(w *World) {
		c := w.Character(id)
		assert.True(t, c.CurrentInput().Right)
		assert.False(t, c.CurrentInput().Left)
		assert.GreaterOrEqual(t, c.Pos.X, start.X)
	})
	assert.Equal(t, uint64(1), e.Stats().InputsMerged)
}

func TestAdditiveInputMergesIntoPending(t *testing.T) {
	buf := NewInputBuffer()
	plan := "regroup"
	buf.Put(7, Input{Right: true, Attacking: true})
	buf.Put(7, Input{Pickup: true, Plan: &plan, Additive: true})

	in := buf.Drain()[7]
	assert.True(t, in.Right)
	assert.True(t, in.Attacking)
	assert.True(t, in.Pickup)
	require.NotNil(t, in.Plan)
	assert.Equal(t, "regroup", *in.Plan)
	assert.False(t, in.Additive)
	assert.Equal(t, uint64(1), buf.Coalesced())
}

func TestDisconnect(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.JoinPlayer(0, "p")
	require.NoError(t, err)

	e.SubmitInput(id, Input{Right: true})
	e.Disconnect(id)
	snap := e.Step(t0)
	assert.Empty(t, snap.Players)
	assert.Nil(t, snap.Private(id))

	e.Disconnect(0)
}

func TestEngineStats(t *testing.T) {
	e := NewEngine(EngineConfig{World: DefaultWorldConfig(), PopulateMap: true})
	t.Cleanup(e.Stop)
	_, _ = e.JoinPlayer(0, "human")
	_, _ = e.AddAgent("a", "agent")
	e.Step(t0)

	s := e.Stats()
	assert.Equal(t, uint64(1), s.Tick)
	assert.Equal(t, 2, s.Characters)
	assert.Equal(t, 1, s.Agents)
	assert.Equal(t, len(e.Catalog().Map.Obstacles), s.Obstacles)
	assert.NotNil(t, s.Events)
}

func TestLeaderboard(t *testing.T) {
	e := newTestEngine(t)
	a, _ := e.JoinPlayer(0, "a")
	b, _ := e.JoinPlayer(0, "b")
	c, _ := e.AddAgent("bot", "c")

	e.WithWorld(func(w *World) {
		w.Character(a).Kills = 1
		w.Character(b).Kills = 3
		w.Character(c).Kills = 1
		w.Character(c).XP = 40
	})

	top := e.Leaderboard(0)
	require.Len(t, top, 3)
	assert.Equal(t, uint32(b), top[0].ID)
	assert.Equal(t, uint32(c), top[1].ID, "XP breaks kill ties")
	assert.Equal(t, uint32(a), top[2].ID)
	assert.Equal(t, []int{1, 2, 3}, []int{top[0].Rank, top[1].Rank, top[2].Rank})

	assert.Len(t, e.Leaderboard(2), 2)
}

// TestConcurrentAccess drives the engine from many goroutines while it
// ticks; run with -race.
func TestConcurrentAccess(t *testing.T) {
	e := newTestEngine(t)
	e.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := e.JoinPlayer(0, fmt.Sprintf("p%d", i))
			if err != nil {
				return
			}
			for j := 0; j < 50; j++ {
				e.SubmitInput(id, Input{Right: j%2 == 0, Attacking: j%3 == 0, Seq: uint32(j + 1)})
				if s := e.Snapshot(); s != nil {
					_ = s.UpdateFor(id)
				}
				time.Sleep(time.Millisecond)
			}
			e.Disconnect(id)
		}(i)
	}
	wg.Wait()
	e.Stop()
}
