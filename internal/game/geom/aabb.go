package geom

import "math"

// AABB is an axis-aligned bounding box. Min is inclusive, Max is inclusive.
type AABB struct {
	Min Vec2
	Max Vec2
}

// BoxAround returns the square box of half-size r centered on c.
func BoxAround(c Vec2, r float64) AABB {
	return AABB{Min: Vec2{c.X - r, c.Y - r}, Max: Vec2{c.X + r, c.Y + r}}
}

// SegmentBounds returns the box covering the segment p0→p1.
func SegmentBounds(p0, p1 Vec2) AABB {
	return AABB{
		Min: Vec2{math.Min(p0.X, p1.X), math.Min(p0.Y, p1.Y)},
		Max: Vec2{math.Max(p0.X, p1.X), math.Max(p0.Y, p1.Y)},
	}
}

// Intersects reports whether the two boxes share any point.
func (b AABB) Intersects(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y
}

// Contains reports whether p lies inside the box.
func (b AABB) Contains(p Vec2) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Expand grows the box by m on every side.
func (b AABB) Expand(m float64) AABB {
	return AABB{Min: Vec2{b.Min.X - m, b.Min.Y - m}, Max: Vec2{b.Max.X + m, b.Max.Y + m}}
}

// ClampPoint returns the point in the box closest to p.
func (b AABB) ClampPoint(p Vec2) Vec2 {
	return Vec2{Clamp(p.X, b.Min.X, b.Max.X), Clamp(p.Y, b.Min.Y, b.Max.Y)}
}

func (b AABB) Width() float64  { return b.Max.X - b.Min.X }
func (b AABB) Height() float64 { return b.Max.Y - b.Min.Y }
