package game

import (
	"testing"
	"time"

	"agent-arena/internal/game/geom"
)

var t0 = time.Unix(1_700_000_000, 0)

// newTestWorld returns an empty, deterministic arena using the default
// catalog.
func newTestWorld(tb testing.TB) *World {
	tb.Helper()
	cfg := DefaultWorldConfig()
	cfg.Seed = 42
	return NewWorld(cfg, nil, nil)
}

func spawnAt(tb testing.TB, w *World, name string, mode ControlMode, x, y float64) *Character {
	tb.Helper()
	c, err := w.SpawnCharacterAt(name, mode, geom.V(x, y))
	if err != nil {
		tb.Fatalf("spawn %s: %v", name, err)
	}
	return c
}

// tickAt returns the time of tick n counted from t0.
func tickAt(w *World, n int) time.Time {
	return t0.Add(time.Duration(n) * w.cfg.TickInterval)
}

// aimAt is a held input that faces p.
func aimAt(p geom.Vec2, attacking bool) Input {
	return Input{Aim: p, HasAim: true, Attacking: attacking}
}
