package spatial

import (
	"testing"

	"agent-arena/internal/game/geom"
)

func TestNewSpatialGrid(t *testing.T) {
	g := NewSpatialGrid(1000, 500, 100, 64)
	cols, rows, cell := g.Dimensions()
	if cols != 10 || rows != 5 || cell != 100 {
		t.Errorf("Expected 10x5 cells of 100, got %dx%d of %v", cols, rows, cell)
	}
}

func TestInsertAndQuery(t *testing.T) {
	g := NewSpatialGrid(1000, 1000, 100, 64)
	g.Insert(3, geom.BoxAround(geom.V(50, 50), 10))
	g.Insert(1, geom.BoxAround(geom.V(150, 50), 10))
	g.Insert(2, geom.BoxAround(geom.V(900, 900), 10))

	got := g.QueryRadius(100, 50, 60)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("Expected [1 3], got %v", got)
	}
}

func TestSpanningEntityIsDeduplicated(t *testing.T) {
	g := NewSpatialGrid(1000, 1000, 100, 64)
	// A wall covering four cells.
	g.Insert(7, geom.AABB{Min: geom.V(50, 50), Max: geom.V(150, 150)})

	got := g.Query(geom.AABB{Min: geom.V(0, 0), Max: geom.V(300, 300)})
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("Expected [7] exactly once, got %v", got)
	}
	if s := g.Stats(); s.CellEntries != 4 || s.TotalEntities != 1 {
		t.Errorf("Expected 4 cell entries for 1 entity, got %+v", s)
	}
}

func TestUpdateMovesEntity(t *testing.T) {
	g := NewSpatialGrid(1000, 1000, 100, 64)
	g.Insert(1, geom.BoxAround(geom.V(50, 50), 5))
	g.Update(1, geom.BoxAround(geom.V(850, 850), 5))

	if got := g.QueryRadius(50, 50, 10); len(got) != 0 {
		t.Errorf("Expected old cell empty, got %v", got)
	}
	if got := g.QueryRadius(850, 850, 10); len(got) != 1 {
		t.Errorf("Expected entity at new cell, got %v", got)
	}
}

func TestRemove(t *testing.T) {
	g := NewSpatialGrid(1000, 1000, 100, 64)
	g.Insert(1, geom.BoxAround(geom.V(50, 50), 5))
	g.Insert(2, geom.BoxAround(geom.V(55, 55), 5))
	g.Remove(1)
	g.Remove(99) // unknown, ignored

	got := g.QueryRadius(50, 50, 20)
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("Expected [2], got %v", got)
	}
	if g.Has(1) || g.Len() != 1 {
		t.Errorf("Expected only entity 2 indexed, len=%d", g.Len())
	}
}

func TestOutOfBoundsClamps(t *testing.T) {
	g := NewSpatialGrid(100, 100, 50, 8)
	g.Insert(1, geom.BoxAround(geom.V(-20, 500), 1))
	if got := g.QueryCell(0, 99); len(got) != 1 {
		t.Errorf("Expected clamped entity in corner cell, got %v", got)
	}
}

func TestClear(t *testing.T) {
	g := NewSpatialGrid(1000, 1000, 100, 64)
	for i := uint32(0); i < 20; i++ {
		g.Insert(i, geom.BoxAround(geom.V(float64(i)*40, 10), 2))
	}
	g.Clear()
	if s := g.Stats(); s.TotalEntities != 0 || s.CellEntries != 0 {
		t.Errorf("Expected empty grid after Clear, got %+v", s)
	}
}

func BenchmarkQueryRadius(b *testing.B) {
	g := NewSpatialGrid(4000, 4000, 200, 512)
	for i := uint32(0); i < 500; i++ {
		x := float64(i*37%4000) + 0.5
		y := float64(i*91%4000) + 0.5
		g.Insert(i, geom.BoxAround(geom.V(x, y), 16))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.QueryRadius(2000, 2000, 300)
	}
}
