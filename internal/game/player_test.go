package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewCharacter(t *testing.T) {
	w := newTestWorld(t)
	c, err := w.SpawnCharacter("Player1", ControlHuman)
	require.NoError(t, err)

	assert.Equal(t, "Player1", c.Name)
	assert.True(t, c.Alive)
	assert.Equal(t, 100.0, c.Health)
	assert.Equal(t, 0, c.Level())
	require.NotNil(t, c.Weapons[0])
	assert.Equal(t, "pistol", c.ActiveWeapon().Def.ID)
	assert.Equal(t, "fists", c.Weapons[1].Def.ID)
	assert.Equal(t, 48, c.Ammo["9mm"])
}

func TestLevelMultiplier(t *testing.T) {
	tests := []struct {
		xp    int
		level int
		mult  float64
	}{
		{0, 0, 1.0},
		{99, 0, 1.0},
		{100, 1, 1.05},
		{250, 2, 1.10},
		{1000, 10, 1.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, LevelForXP(tt.xp), "xp %d", tt.xp)
		assert.InDelta(t, tt.mult, MultiplierForLevel(tt.level), 1e-9, "level %d", tt.level)
	}
}

func TestTakeDamageProgression(t *testing.T) {
	w := newTestWorld(t)
	attacker := spawnAt(t, w, "attacker", ControlHuman, 100, 100)
	victim := spawnAt(t, w, "victim", ControlHuman, 300, 100)
	victim.XP = 40

	killed := victim.TakeDamage(30, attacker, t0)
	assert.False(t, killed)
	assert.Equal(t, 70.0, victim.Health)
	assert.Equal(t, 25, victim.XP, "loses floor(30*0.5) XP")
	assert.Equal(t, XPPerHit, attacker.XP)

	killed = victim.TakeDamage(500, attacker, t0)
	assert.True(t, killed)
	assert.False(t, victim.Alive)
	assert.Equal(t, 0.0, victim.Health)
	assert.Equal(t, 0, victim.XP, "XP floors at zero")
	assert.Equal(t, 1, victim.Deaths)
	assert.True(t, victim.JustDied)
	assert.Equal(t, 1, attacker.Kills)
	assert.Equal(t, 2*XPPerHit+XPPerKill, attacker.XP)

	assert.False(t, victim.TakeDamage(10, attacker, t0), "dead characters ignore damage")
	assert.Equal(t, 1, attacker.Kills)
}

func TestTakeDamageMinimumXPLoss(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 100, 100)
	c.XP = 10
	c.TakeDamage(0.5, nil, t0)
	assert.Equal(t, 9, c.XP)
}

func TestSelfDamageNoCredit(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 100, 100)
	c.TakeDamage(1000, c, t0)
	assert.False(t, c.Alive)
	assert.Equal(t, 0, c.Kills)
	assert.Equal(t, 0, c.XP)
}

func TestDeadAttackerNoCredit(t *testing.T) {
	w := newTestWorld(t)
	shooter := spawnAt(t, w, "shooter", ControlAgent, 100, 100)
	victim := spawnAt(t, w, "victim", ControlAgent, 300, 100)

	shooter.TakeDamage(1000, nil, t0)
	require.False(t, shooter.Alive)
	xp := shooter.XP

	// A bullet still in flight after its shooter died.
	assert.True(t, victim.TakeDamage(1000, shooter, t0))
	assert.False(t, victim.Alive)
	assert.Equal(t, 0, shooter.Kills)
	assert.Equal(t, xp, shooter.XP)
}

func TestLevelLossClampsHealth(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 100, 100)
	c.XP = 100
	c.Health = c.MaxHealth()
	require.InDelta(t, 105.0, c.Health, 1e-9)

	c.TakeDamage(2, nil, t0)
	assert.Equal(t, 0, c.Level())
	assert.LessOrEqual(t, c.Health, c.MaxHealth())
	assert.InDelta(t, 100.0, c.Health, 1e-9)
}

func TestHealCapped(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 100, 100)
	c.Health = 50
	c.Heal(20)
	assert.Equal(t, 70.0, c.Health)
	c.Heal(1000)
	assert.Equal(t, c.MaxHealth(), c.Health)
}

func TestKillsPersistThroughRespawn(t *testing.T) {
	w := newTestWorld(t)
	a := spawnAt(t, w, "a", ControlHuman, 100, 100)
	b := spawnAt(t, w, "b", ControlHuman, 300, 100)

	b.TakeDamage(1000, a, t0)
	a.TakeDamage(1000, b, t0)
	require.False(t, a.Alive)
	require.Equal(t, 1, a.Kills)

	require.True(t, w.Respawn(a.ID))
	assert.True(t, a.Alive)
	assert.Equal(t, 1, a.Kills)
	assert.Equal(t, 1, a.Deaths)
	assert.Equal(t, 0, a.XP)
	assert.Equal(t, a.MaxHealth(), a.Health)
	assert.Equal(t, "pistol", a.ActiveWeapon().Def.ID)
	assert.False(t, w.Respawn(a.ID), "respawning a live character is a no-op")
}

func TestSwitchWeapon(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlHuman, 100, 100)
	assert.True(t, c.SwitchWeapon())
	assert.Equal(t, "fists", c.ActiveWeapon().Def.ID)

	c.Weapons[0] = nil
	assert.False(t, c.SwitchWeapon(), "cannot switch to an empty slot")
	assert.Equal(t, 1, c.ActiveSlot)
}

func TestConsumeJustDied(t *testing.T) {
	w := newTestWorld(t)
	c := spawnAt(t, w, "c", ControlAgent, 100, 100)
	c.TakeDamage(1000, nil, t0)
	assert.True(t, c.ConsumeJustDied())
	assert.False(t, c.ConsumeJustDied())
}

// Without healing, health only ever goes down and stays within
// [0, MaxHealth] regardless of how XP moves.
func TestHealthMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		w := newTestWorld(t)
		victim := spawnAt(t, w, "victim", ControlHuman, 500, 500)
		victim.XP = rapid.IntRange(0, 1000).Draw(rt, "xp")
		victim.Health = victim.MaxHealth()
		other := spawnAt(t, w, "other", ControlHuman, 800, 500)

		prev := victim.Health
		hits := rapid.SliceOfN(rapid.Float64Range(0, 60), 1, 40).Draw(rt, "hits")
		for i, dmg := range hits {
			var attacker *Character
			if rapid.Bool().Draw(rt, "attributed") {
				attacker = other
			}
			victim.TakeDamage(dmg, attacker, t0)
			if victim.Health > prev {
				rt.Fatalf("hit %d raised health %v -> %v", i, prev, victim.Health)
			}
			if victim.Health < 0 || victim.Health > victim.MaxHealth() {
				rt.Fatalf("health %v outside [0, %v]", victim.Health, victim.MaxHealth())
			}
			if victim.XP < 0 {
				rt.Fatalf("negative XP %d", victim.XP)
			}
			prev = victim.Health
		}
	})
}
