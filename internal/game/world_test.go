package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"agent-arena/internal/game/geom"
)

func TestRifleEmptiesThenReloads(t *testing.T) {
	w := newTestWorld(t)
	shooter := spawnAt(t, w, "shooter", ControlHuman, 100, 800)
	rifle, err := w.GiveWeapon(shooter, "rifle", 60)
	require.NoError(t, err)

	inputs := map[EntityID]Input{shooter.ID: aimAt(geom.V(1900, 800), true)}
	spawned := map[EntityID]time.Duration{}
	var order []time.Duration

	for n := 0; n <= 220; n++ {
		now := tickAt(w, n)
		w.Step(now, inputs)
		inputs = nil
		for _, b := range w.Bullets() {
			if _, ok := spawned[b.ID]; !ok {
				spawned[b.ID] = now.Sub(t0)
				order = append(order, now.Sub(t0))
			}
		}
	}

	require.Greater(t, len(order), 30)
	for i := 0; i < 30; i++ {
		assert.Less(t, order[i], 3000*time.Millisecond, "shot %d", i)
	}
	// The empty trigger pull at 2925ms starts the reload; nothing fires
	// until it completes.
	assert.GreaterOrEqual(t, order[30], 2925*time.Millisecond+rifle.Def.ReloadTime)
	assert.Equal(t, 30, shooter.Ammo["556mm"], "reload drew one magazine from reserve")
}

func TestCrateTakesEightHits(t *testing.T) {
	w := newTestWorld(t)
	crate, err := w.SpawnObstacle("crate", geom.V(600, 800), 0)
	require.NoError(t, err)
	shooter := spawnAt(t, w, "shooter", ControlHuman, 300, 800)
	_, err = w.GiveWeapon(shooter, "rifle", 0)
	require.NoError(t, err)

	inputs := map[EntityID]Input{shooter.ID: aimAt(crate.Pos, true)}
	var healths []float64
	last := crate.Health
	for n := 0; n < 200 && crate.Alive; n++ {
		w.Step(tickAt(w, n), inputs)
		inputs = nil
		if crate.Health != last {
			healths = append(healths, crate.Health)
			last = crate.Health
			if crate.Alive {
				assert.Empty(t, w.LootItems(), "no orbs before the destroying hit")
			}
		}
	}

	assert.Equal(t, []float64{70, 60, 50, 40, 30, 20, 10, 0}, healths)
	assert.False(t, crate.Alive)
	assert.Len(t, w.LootItems(), crate.Def.XPOrbs)
	for _, l := range w.LootItems() {
		assert.Equal(t, LootXPOrb, l.Type)
		assert.Equal(t, crate.Def.XPValue, l.Amount)
	}
	assert.False(t, w.grid.Has(uint32(crate.ID)), "destroyed obstacle leaves the index")
}

func TestObstacleDestroyedOnce(t *testing.T) {
	w := newTestWorld(t)
	o, err := w.SpawnObstacle("barrel", geom.V(500, 500), 0)
	require.NoError(t, err)

	assert.False(t, o.TakeDamage(30))
	assert.True(t, o.TakeDamage(30))
	assert.False(t, o.TakeDamage(30))
	assert.Equal(t, 0.0, o.Health)

	wall, err := w.SpawnObstacle("wall", geom.V(900, 500), 0)
	require.NoError(t, err)
	assert.False(t, wall.TakeDamage(1e6))
	assert.True(t, wall.Alive)
}

func fireTestBullet(w *World, shooter EntityID, from, dir geom.Vec2) *Bullet {
	b := &Bullet{
		ID: w.allocID(), Pos: from, Origin: from, Dir: dir,
		Speed: 40000, Damage: 10, Range: 2000,
		ShooterID: shooter, WeaponID: "test", Alive: true,
	}
	w.bullets = append(w.bullets, b)
	return b
}

func TestBulletHitsNearest(t *testing.T) {
	w := newTestWorld(t)
	far := spawnAt(t, w, "far", ControlHuman, 700, 800)
	near := spawnAt(t, w, "near", ControlHuman, 400, 800)
	shooter := spawnAt(t, w, "shooter", ControlHuman, 100, 800)

	b := fireTestBullet(w, shooter.ID, shooter.Pos, geom.V(1, 0))
	w.Step(t0, nil)

	assert.False(t, b.Alive)
	assert.InDelta(t, 380, b.Pos.X, 1e-6, "stops at the near edge")
	assert.Equal(t, 90.0, near.Health)
	assert.Equal(t, 100.0, far.Health)
	assert.Equal(t, 100.0, shooter.Health, "bullets never hit their shooter")
	assert.Empty(t, w.Bullets())
}

func TestBulletEquidistantLowestID(t *testing.T) {
	w := newTestWorld(t)
	first := spawnAt(t, w, "first", ControlHuman, 400, 810)
	second := spawnAt(t, w, "second", ControlHuman, 400, 790)

	fireTestBullet(w, 0, geom.V(100, 800), geom.V(1, 0))
	w.Step(t0, nil)

	assert.Equal(t, 90.0, first.Health)
	assert.Equal(t, 100.0, second.Health)
}

func TestBulletRangeLimit(t *testing.T) {
	w := newTestWorld(t)
	b := fireTestBullet(w, 0, geom.V(100, 800), geom.V(1, 0))
	b.Speed, b.Range = 1200, 50

	w.Step(tickAt(w, 0), nil)
	assert.True(t, b.Alive)
	w.Step(tickAt(w, 1), nil)
	assert.False(t, b.Alive)
	assert.InDelta(t, 50, b.Traveled, 1e-9)
	assert.InDelta(t, 150, b.Pos.X, 1e-9)
}

func TestBulletPassesOpenGate(t *testing.T) {
	w := newTestWorld(t)
	gate, err := w.SpawnObstacle("gate", geom.V(400, 800), geom.V(0, 1).Angle())
	require.NoError(t, err)
	target := spawnAt(t, w, "target", ControlHuman, 700, 800)

	gate.Open = true
	fireTestBullet(w, 0, geom.V(100, 800), geom.V(1, 0))
	w.Step(t0, nil)
	assert.Equal(t, 90.0, target.Health)

	gate.Open = false
	fireTestBullet(w, 0, geom.V(100, 800), geom.V(1, 0))
	w.Step(tickAt(w, 1), nil)
	assert.Equal(t, 90.0, target.Health, "closed gate stops the bullet")
}

func TestMutualMeleeSameTick(t *testing.T) {
	w := newTestWorld(t)
	a := spawnAt(t, w, "a", ControlAgent, 500, 800)
	b := spawnAt(t, w, "b", ControlAgent, 540, 800)
	a.SwitchWeapon()
	b.SwitchWeapon()
	require.True(t, a.ActiveWeapon().Def.Melee)

	w.Step(t0, map[EntityID]Input{
		a.ID: aimAt(b.Pos, true),
		b.ID: aimAt(a.Pos, true),
	})

	assert.Equal(t, 90.0, a.Health)
	assert.Equal(t, 90.0, b.Health)
}

func TestMeleeFacingAwayMisses(t *testing.T) {
	w := newTestWorld(t)
	a := spawnAt(t, w, "a", ControlAgent, 500, 800)
	b := spawnAt(t, w, "b", ControlAgent, 540, 800)
	a.SwitchWeapon()

	w.Step(t0, map[EntityID]Input{a.ID: aimAt(geom.V(100, 800), true)})
	assert.Equal(t, 100.0, b.Health)

	// Perpendicular is dot 0, still outside the cone.
	w.Step(tickAt(w, 20), map[EntityID]Input{a.ID: aimAt(geom.V(500, 100), true)})
	assert.Equal(t, 100.0, b.Health)
}

func TestMeleeConeContains(t *testing.T) {
	cone := MeleeCone{Origin: geom.V(0, 0), Facing: geom.V(1, 0), Range: 40}
	tests := []struct {
		name string
		p    geom.Vec2
		want bool
	}{
		{"ahead", geom.V(30, 0), true},
		{"out of reach", geom.V(41, 0), false},
		{"45 degrees", geom.V(20, 20), true},
		{"60 degrees is the edge", geom.FromAngle(1.0472).Scale(30), false},
		{"behind", geom.V(-10, 0), false},
		{"same point", geom.V(0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cone.Contains(tt.p, cone.Range, MeleeCharacterDot))
		})
	}
}

func TestFistsBreakBarrel(t *testing.T) {
	w := newTestWorld(t)
	barrel, err := w.SpawnObstacle("barrel", geom.V(550, 800), 0)
	require.NoError(t, err)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)
	c.SwitchWeapon()

	inputs := map[EntityID]Input{c.ID: aimAt(barrel.Pos, true)}
	swings := 0
	for n := 0; n < 200 && barrel.Alive; n++ {
		before := barrel.Health
		w.Step(tickAt(w, n), inputs)
		inputs = nil
		if barrel.Health < before {
			swings++
		}
	}
	assert.False(t, barrel.Alive)
	assert.Equal(t, 4, swings)
}

func TestMovementBlocked(t *testing.T) {
	w := newTestWorld(t)
	_, err := w.SpawnObstacle("rock", geom.V(560, 800), 0)
	require.NoError(t, err)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)

	w.Step(t0, map[EntityID]Input{c.ID: {Right: true}})
	assert.Equal(t, geom.V(500, 800), c.Pos, "move into the rock is rejected whole")

	w.Step(tickAt(w, 1), map[EntityID]Input{c.ID: {Left: true}})
	assert.InDelta(t, 500-c.Speed()*w.cfg.TickInterval.Seconds(), c.Pos.X, 1e-9)
}

func TestMovementHeldAcrossTicks(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)

	w.Step(tickAt(w, 0), map[EntityID]Input{c.ID: {Down: true}})
	w.Step(tickAt(w, 1), nil)
	w.Step(tickAt(w, 2), nil)
	assert.InDelta(t, 800+3*c.Speed()*w.cfg.TickInterval.Seconds(), c.Pos.Y, 1e-9)
	assert.Equal(t, []uint32{uint32(c.ID)}, w.grid.QueryRadius(c.Pos.X, c.Pos.Y, 1))
}

func TestMovementClampedToWorld(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 21, 800)
	w.Step(t0, map[EntityID]Input{c.ID: {Left: true}})
	assert.Equal(t, c.Hitbox.Radius, c.Pos.X)
}

func TestStaleInputIgnored(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)

	w.Step(tickAt(w, 0), map[EntityID]Input{c.ID: {Seq: 5, Right: true}})
	w.Step(tickAt(w, 1), map[EntityID]Input{c.ID: {Seq: 3, Left: true}})
	assert.True(t, c.CurrentInput().Right)
	assert.Greater(t, c.Pos.X, 500.0)
}

func TestOneShotFlagsConsumed(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)

	w.Step(tickAt(w, 0), map[EntityID]Input{c.ID: {SwitchWeapon: true}})
	w.Step(tickAt(w, 1), nil)
	w.Step(tickAt(w, 2), nil)
	assert.Equal(t, 1, c.ActiveSlot, "switch applied exactly once")
}

func TestAdditiveInputKeepsHeldState(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlAgent, 500, 800)
	aim := geom.V(500, 300)

	w.Step(tickAt(w, 0), map[EntityID]Input{c.ID: aimAt(aim, true)})
	require.True(t, c.Attacking)

	plan := "hold"
	w.Step(tickAt(w, 1), map[EntityID]Input{c.ID: {Plan: &plan, Additive: true}})
	assert.True(t, c.Attacking)
	assert.Equal(t, aim, c.CurrentInput().Aim)
	assert.Equal(t, "hold", c.Plan)
}

func TestManualReload(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)
	pistol := c.ActiveWeapon()
	pistol.Ammo = 2

	w.Step(tickAt(w, 0), map[EntityID]Input{c.ID: {Reload: true}})
	require.True(t, pistol.Reloading)

	ticks := int(pistol.Def.ReloadTime / w.cfg.TickInterval)
	for n := 1; n <= ticks; n++ {
		w.Step(tickAt(w, n), nil)
	}
	assert.False(t, pistol.Reloading)
	assert.Equal(t, pistol.Def.Capacity, pistol.Ammo)
	assert.Equal(t, 48-(pistol.Def.Capacity-2), c.Ammo["9mm"])
}

func TestAgentMoveInterpolates(t *testing.T) {
	w := newTestWorld(t)
	a := spawnAt(t, w, "a", ControlAgent, 500, 800)
	offset := geom.V(150, 0)

	w.Step(tickAt(w, 0), map[EntityID]Input{a.ID: {MoveBy: &offset}})
	require.True(t, a.Interpolating())

	// 150 units at 300/s is 500ms, i.e. 20 ticks.
	w.Step(tickAt(w, 10), nil)
	assert.InDelta(t, 575, a.Pos.X, 1e-6, "halfway in time is halfway in space")
	w.Step(tickAt(w, 20), nil)
	assert.Equal(t, geom.V(650, 800), a.Pos)
	assert.False(t, a.Interpolating())
}

func TestAgentMoveMinimumDuration(t *testing.T) {
	w := newTestWorld(t)
	a := spawnAt(t, w, "a", ControlAgent, 500, 800)
	offset := geom.V(3, 0)

	w.Step(tickAt(w, 0), map[EntityID]Input{a.ID: {MoveBy: &offset}})
	require.NotNil(t, a.interp)
	assert.Equal(t, w.cfg.MinInterpDuration, a.interp.Duration)
}

func TestAgentMoveBlockedPushBack(t *testing.T) {
	w := newTestWorld(t)
	_, err := w.SpawnObstacle("rock", geom.V(600, 800), 0)
	require.NoError(t, err)
	a := spawnAt(t, w, "a", ControlAgent, 500, 800)
	offset := geom.V(100, 0)

	w.Step(t0, map[EntityID]Input{a.ID: {MoveBy: &offset}})
	assert.False(t, a.Interpolating())
	assert.InDelta(t, 500-w.cfg.PushBackDistance, a.Pos.X, 1e-9)
}

func TestAgentMoveInterruptedMidway(t *testing.T) {
	w := newTestWorld(t)
	a := spawnAt(t, w, "a", ControlAgent, 500, 800)
	offset := geom.V(300, 0)
	w.Step(tickAt(w, 0), map[EntityID]Input{a.ID: {MoveBy: &offset}})
	require.True(t, a.Interpolating())

	// Something lands in the path after the move started.
	_, err := w.SpawnObstacle("rock", geom.V(700, 800), 0)
	require.NoError(t, err)
	for n := 1; n <= 50 && a.Interpolating(); n++ {
		w.Step(tickAt(w, n), nil)
	}
	assert.False(t, a.Interpolating())
	assert.Less(t, a.Pos.X, 700-36-20.0, "stopped short of the rock")
}

// An unobstructed agent move ends exactly at its (clamped) target, and the
// remaining distance never grows along the way.
func TestInterpolationConvergesProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		w := newTestWorld(t)
		a := spawnAt(t, w, "a", ControlAgent, 1000, 800)
		offset := geom.V(
			rapid.Float64Range(-1200, 1200).Draw(rt, "dx"),
			rapid.Float64Range(-1000, 1000).Draw(rt, "dy"),
		)
		if offset.Len() < 1 {
			return
		}
		target := w.clampToWorld(a.Pos.Add(offset), a.Hitbox.Radius)

		w.Step(tickAt(w, 0), map[EntityID]Input{a.ID: {MoveBy: &offset}})
		remaining := a.Pos.Dist(target)
		for n := 1; n < 400 && a.Interpolating(); n++ {
			w.Step(tickAt(w, n), nil)
			d := a.Pos.Dist(target)
			if d > remaining+1e-9 {
				rt.Fatalf("tick %d moved away from target: %v -> %v", n, remaining, d)
			}
			remaining = d
		}
		if a.Interpolating() {
			rt.Fatal("move never completed")
		}
		if a.Pos != target {
			rt.Fatalf("ended at %v, want %v", a.Pos, target)
		}
	})
}

func TestEaseInOutCubic(t *testing.T) {
	assert.Equal(t, 0.0, EaseInOutCubic(0))
	assert.Equal(t, 0.5, EaseInOutCubic(0.5))
	assert.Equal(t, 1.0, EaseInOutCubic(1))
	prev := 0.0
	for i := 1; i <= 100; i++ {
		v := EaseInOutCubic(float64(i) / 100)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestXPOrbCollectedOnContact(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)
	w.SpawnXPOrb(120, geom.V(520, 800))
	w.SpawnAmmoLoot("9mm", 10, geom.V(480, 800))

	w.Step(t0, nil)
	assert.Equal(t, 120, c.XP)
	assert.Equal(t, 1, c.Level())
	assert.Len(t, w.LootItems(), 1, "ammo needs the pickup action")

	w.Step(tickAt(w, 1), map[EntityID]Input{c.ID: {Pickup: true}})
	assert.Empty(t, w.LootItems())
	assert.Equal(t, 58, c.Ammo["9mm"])
}

func TestWeaponPickupSwapsActive(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)
	c.ActiveWeapon().Ammo = 5
	w.SpawnWeaponLoot("shotgun", 4, geom.V(510, 800))

	w.Step(t0, map[EntityID]Input{c.ID: {Pickup: true}})
	require.Equal(t, "shotgun", c.ActiveWeapon().Def.ID)
	assert.Equal(t, 4, c.ActiveWeapon().Ammo)

	require.Len(t, w.LootItems(), 1)
	dropped := w.LootItems()[0]
	assert.Equal(t, LootWeapon, dropped.Type)
	assert.Equal(t, "pistol", dropped.WeaponID)
	assert.Equal(t, 5, dropped.Amount)
}

func TestHealthLootSkippedAtFullHealth(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)
	w.spawnLoot(LootHealth, geom.V(510, 800)).Amount = 30

	w.Step(tickAt(w, 0), map[EntityID]Input{c.ID: {Pickup: true}})
	assert.Len(t, w.LootItems(), 1)

	c.Health = 50
	w.Step(tickAt(w, 1), map[EntityID]Input{c.ID: {Pickup: true}})
	assert.Empty(t, w.LootItems())
	assert.Equal(t, 80.0, c.Health)
}

func TestGateInteract(t *testing.T) {
	w := newTestWorld(t)
	gate, err := w.SpawnObstacle("gate", geom.V(500, 800), 0)
	require.NoError(t, err)
	c := spawnAt(t, w, "c", ControlHuman, 500, 760)

	w.Step(tickAt(w, 0), map[EntityID]Input{c.ID: {Interact: true}})
	require.True(t, gate.Open)

	// Walk onto the open gate, then try to close it.
	w.setCharacterPos(c, geom.V(500, 800))
	w.Step(tickAt(w, 1), map[EntityID]Input{c.ID: {Interact: true}})
	assert.True(t, gate.Open, "gate will not close on a character")

	w.setCharacterPos(c, geom.V(500, 740))
	w.Step(tickAt(w, 2), map[EntityID]Input{c.ID: {Interact: true}})
	assert.False(t, gate.Open)
}

func TestAgentAutoRespawn(t *testing.T) {
	w := newTestWorld(t)
	agent := spawnAt(t, w, "agent", ControlAgent, 500, 800)
	human := spawnAt(t, w, "human", ControlHuman, 900, 800)

	agent.TakeDamage(1000, nil, tickAt(w, 0))
	human.TakeDamage(1000, nil, tickAt(w, 0))

	w.Step(tickAt(w, 1), nil)
	assert.False(t, agent.Alive)

	ticks := int(w.cfg.RespawnDelay / w.cfg.TickInterval)
	w.Step(tickAt(w, ticks), nil)
	assert.True(t, agent.Alive)
	assert.False(t, human.Alive, "humans respawn by joining again")
}

func TestQueuedRemoval(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 500, 800)
	w.QueueRemoval(c.ID)
	assert.NotNil(t, w.Character(c.ID), "removal waits for the tick")

	w.Step(t0, nil)
	assert.Nil(t, w.Character(c.ID))
	assert.False(t, w.grid.Has(uint32(c.ID)))
	assert.Equal(t, KindNone, w.KindOf(c.ID))
}

func TestWorldFull(t *testing.T) {
	cfg := DefaultWorldConfig()
	cfg.Limits.MaxCharacters = 2
	w := NewWorld(cfg, nil, nil)
	_, err := w.SpawnCharacter("a", ControlHuman)
	require.NoError(t, err)
	_, err = w.SpawnCharacter("b", ControlHuman)
	require.NoError(t, err)
	_, err = w.SpawnCharacter("c", ControlHuman)
	assert.ErrorIs(t, err, ErrWorldFull)
}

func TestPopulateMap(t *testing.T) {
	w := newTestWorld(t)
	require.NoError(t, w.PopulateMap())
	assert.Len(t, w.Obstacles(), len(w.Catalog().Map.Obstacles))
	assert.Len(t, w.LootItems(), len(w.Catalog().Map.Loot))

	c, err := w.SpawnCharacter("c", ControlHuman)
	require.NoError(t, err)
	assert.False(t, w.blocked(c.Hitbox, c.ID), "spawn point is free")
}

func TestQueries(t *testing.T) {
	w := newTestWorld(t)
	a := spawnAt(t, w, "a", ControlHuman, 500, 800)
	rock, _ := w.SpawnObstacle("rock", geom.V(600, 800), 0)
	orb := w.SpawnXPOrb(5, geom.V(1500, 800))

	assert.Equal(t, []EntityID{a.ID, rock.ID}, w.QueryRadius(geom.V(550, 800), 60))
	assert.Equal(t, []EntityID{orb.ID}, w.QueryShape(geom.Circle(geom.V(1500, 805), 5)))
	assert.Empty(t, w.QueryShape(geom.Circle(geom.V(1000, 200), 5)))
}

func TestSnapshotViews(t *testing.T) {
	w := newTestWorld(t)
	human := spawnAt(t, w, "human", ControlHuman, 500, 800)
	agent := spawnAt(t, w, "agent", ControlAgent, 900, 800)
	w.Step(t0, nil)

	s := w.Snapshot()
	assert.Len(t, s.Players, 2)

	u := s.UpdateFor(human.ID)
	require.NotNil(t, u.Self)
	assert.Equal(t, uint32(human.ID), u.Self.ID)
	assert.False(t, u.Spectator)

	view := s.UpdateFor(0)
	assert.Nil(t, view.Self)
	assert.True(t, view.Spectator)

	assert.Nil(t, s.Private(agent.ID), "agents have no socket to receive a private block")
}
