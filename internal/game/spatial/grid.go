// Package spatial provides the broad-phase index used for movement
// collision, bullet sweeps, melee cones and "what's nearby" queries.
//
// Entities are tracked by integer ID (not pointer) so the grid holds no
// references into the world and costs the GC nothing to scan.
package spatial

import (
	"math"
	"slices"

	"agent-arena/internal/game/geom"
)

// SpatialGrid buckets entity IDs into fixed-size cells. An entity whose
// bounds span several cells is listed in each of them.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
type SpatialGrid struct {
	cellSize    float64
	invCellSize float64 // 1/cellSize for faster division
	cols, rows  int
	cells       [][]uint32
	spans       map[uint32]cellSpan // where each entity is currently listed
	scratch     []uint32            // reusable buffer for query results
}

type cellSpan struct {
	minCol, minRow, maxCol, maxRow int
}

// NewSpatialGrid creates a grid for the given world bounds.
// cellSize should be close to the largest common query radius.
// maxEntities is used to preallocate cell capacity.
func NewSpatialGrid(worldWidth, worldHeight, cellSize float64, maxEntities int) *SpatialGrid {
	cols := int(math.Ceil(worldWidth / cellSize))
	rows := int(math.Ceil(worldHeight / cellSize))

	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	avgPerCell := maxEntities / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &SpatialGrid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		spans:       make(map[uint32]cellSpan, maxEntities),
		scratch:     make([]uint32, 0, 64),
	}
}

// Clear removes every entity without deallocating cell memory.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	clear(g.spans)
}

// Len returns the number of indexed entities.
func (g *SpatialGrid) Len() int {
	return len(g.spans)
}

// Has reports whether id is indexed.
func (g *SpatialGrid) Has(id uint32) bool {
	_, ok := g.spans[id]
	return ok
}

// Insert indexes id under every cell its bounds touch. Inserting an ID that
// is already present behaves like Update.
func (g *SpatialGrid) Insert(id uint32, bounds geom.AABB) {
	if _, ok := g.spans[id]; ok {
		g.Update(id, bounds)
		return
	}
	span := g.spanOf(bounds)
	g.add(id, span)
	g.spans[id] = span
}

// Update moves id to new bounds. Cells are only rewritten when the covered
// cell range changes, which is the common case for small moves.
func (g *SpatialGrid) Update(id uint32, bounds geom.AABB) {
	old, ok := g.spans[id]
	if !ok {
		g.Insert(id, bounds)
		return
	}
	span := g.spanOf(bounds)
	if span == old {
		return
	}
	g.drop(id, old)
	g.add(id, span)
	g.spans[id] = span
}

// Remove drops id from the index. Unknown IDs are ignored.
func (g *SpatialGrid) Remove(id uint32) {
	span, ok := g.spans[id]
	if !ok {
		return
	}
	g.drop(id, span)
	delete(g.spans, id)
}

// Query returns the IDs listed in any cell overlapping bounds, deduplicated
// and in ascending order. Candidates may lie outside bounds; the caller
// performs the narrow phase.
//
// IMPORTANT: The returned slice is reused on subsequent calls.
// Copy the results if you need to persist them.
func (g *SpatialGrid) Query(bounds geom.AABB) []uint32 {
	g.scratch = g.scratch[:0]
	span := g.spanOf(bounds)
	for row := span.minRow; row <= span.maxRow; row++ {
		for col := span.minCol; col <= span.maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}
	slices.Sort(g.scratch)
	g.scratch = slices.Compact(g.scratch)
	return g.scratch
}

// QueryRadius returns candidates within the square around (cx, cy).
func (g *SpatialGrid) QueryRadius(cx, cy, radius float64) []uint32 {
	return g.Query(geom.BoxAround(geom.V(cx, cy), radius))
}

// QueryCell returns all entity IDs in the cell containing (x, y).
func (g *SpatialGrid) QueryCell(x, y float64) []uint32 {
	col, row := g.cellOf(x, y)
	return g.cells[row*g.cols+col]
}

func (g *SpatialGrid) add(id uint32, s cellSpan) {
	for row := s.minRow; row <= s.maxRow; row++ {
		for col := s.minCol; col <= s.maxCol; col++ {
			idx := row*g.cols + col
			g.cells[idx] = append(g.cells[idx], id)
		}
	}
}

func (g *SpatialGrid) drop(id uint32, s cellSpan) {
	for row := s.minRow; row <= s.maxRow; row++ {
		for col := s.minCol; col <= s.maxCol; col++ {
			idx := row*g.cols + col
			cell := g.cells[idx]
			for i, v := range cell {
				if v == id {
					// Swap-remove; order within a cell is not meaningful.
					cell[i] = cell[len(cell)-1]
					g.cells[idx] = cell[:len(cell)-1]
					break
				}
			}
		}
	}
}

func (g *SpatialGrid) spanOf(b geom.AABB) cellSpan {
	minCol, minRow := g.cellOf(b.Min.X, b.Min.Y)
	maxCol, maxRow := g.cellOf(b.Max.X, b.Max.Y)
	return cellSpan{minCol: minCol, minRow: minRow, maxCol: maxCol, maxRow: maxRow}
}

// cellOf computes the clamped cell coordinates for a position.
func (g *SpatialGrid) cellOf(x, y float64) (col, row int) {
	col = int(math.Floor(x * g.invCellSize))
	row = int(math.Floor(y * g.invCellSize))

	if col < 0 {
		col = 0
	}
	if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= g.rows {
		row = g.rows - 1
	}
	return col, row
}

// Stats returns grid statistics for debugging/profiling.
func (g *SpatialGrid) Stats() GridStats {
	var listed, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		count := len(cell)
		listed += count
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avgPerCell := 0.0
	if nonEmpty > 0 {
		avgPerCell = float64(listed) / float64(nonEmpty)
	}

	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalEntities:  len(g.spans),
		CellEntries:    listed,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avgPerCell,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int
	NonEmptyCells  int
	TotalEntities  int
	CellEntries    int // >= TotalEntities when entities span cells
	MaxInCell      int
	AvgPerNonEmpty float64
}

// Dimensions returns the grid dimensions.
func (g *SpatialGrid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}
