package geom

import "math"

// Kind tags which shape a Hitbox holds.
type Kind uint8

const (
	KindCircle Kind = iota
	KindRect
)

func (k Kind) String() string {
	switch k {
	case KindCircle:
		return "circle"
	case KindRect:
		return "rect"
	}
	return "unknown"
}

// Hitbox is a closed union of the two collision shapes used in the arena.
// Circles use Radius; rectangles use HalfW/HalfH rotated by Rotation
// around Center.
//
// Touching shapes (zero penetration) do not overlap, so a character can
// stand flush against a wall and still move along it.
type Hitbox struct {
	Kind     Kind
	Center   Vec2
	Radius   float64
	HalfW    float64
	HalfH    float64
	Rotation float64
}

// Hit describes where a segment first enters a shape.
type Hit struct {
	Point    Vec2
	Distance float64 // from the segment start
	T        float64 // parametric position in [0, 1]
}

// Circle builds a circular hitbox.
func Circle(center Vec2, radius float64) Hitbox {
	return Hitbox{Kind: KindCircle, Center: center, Radius: radius}
}

// Rect builds a rectangle of full size w×h rotated by rotation radians.
func Rect(center Vec2, w, h, rotation float64) Hitbox {
	return Hitbox{Kind: KindRect, Center: center, HalfW: w / 2, HalfH: h / 2, Rotation: rotation}
}

// At returns a copy of h centered on c.
func (h Hitbox) At(c Vec2) Hitbox {
	h.Center = c
	return h
}

// Bounds returns the axis-aligned box enclosing the shape.
func (h Hitbox) Bounds() AABB {
	if h.Kind == KindCircle {
		return BoxAround(h.Center, h.Radius)
	}
	if h.Rotation == 0 {
		return AABB{
			Min: Vec2{h.Center.X - h.HalfW, h.Center.Y - h.HalfH},
			Max: Vec2{h.Center.X + h.HalfW, h.Center.Y + h.HalfH},
		}
	}
	s, c := math.Sincos(h.Rotation)
	ex := math.Abs(h.HalfW*c) + math.Abs(h.HalfH*s)
	ey := math.Abs(h.HalfW*s) + math.Abs(h.HalfH*c)
	return AABB{
		Min: Vec2{h.Center.X - ex, h.Center.Y - ey},
		Max: Vec2{h.Center.X + ex, h.Center.Y + ey},
	}
}

// Corners returns a rectangle's corners in counter-clockwise order.
func (h Hitbox) Corners() [4]Vec2 {
	local := [4]Vec2{
		{-h.HalfW, -h.HalfH},
		{h.HalfW, -h.HalfH},
		{h.HalfW, h.HalfH},
		{-h.HalfW, h.HalfH},
	}
	for i := range local {
		local[i] = local[i].Rotate(h.Rotation).Add(h.Center)
	}
	return local
}

// toLocal maps a world point into the rectangle's unrotated frame.
func (h Hitbox) toLocal(p Vec2) Vec2 {
	return p.Sub(h.Center).Rotate(-h.Rotation)
}

// ContainsPoint reports whether p is inside or on the shape.
func (h Hitbox) ContainsPoint(p Vec2) bool {
	if h.Kind == KindCircle {
		return p.DistSq(h.Center) <= h.Radius*h.Radius
	}
	l := h.toLocal(p)
	return math.Abs(l.X) <= h.HalfW && math.Abs(l.Y) <= h.HalfH
}

// Overlaps reports whether two hitboxes penetrate each other.
func Overlaps(a, b Hitbox) bool {
	switch {
	case a.Kind == KindCircle && b.Kind == KindCircle:
		r := a.Radius + b.Radius
		return a.Center.DistSq(b.Center) < r*r
	case a.Kind == KindCircle:
		return circleRect(a, b)
	case b.Kind == KindCircle:
		return circleRect(b, a)
	default:
		return rectRect(a, b)
	}
}

func circleRect(c, r Hitbox) bool {
	l := r.toLocal(c.Center)
	closest := Vec2{Clamp(l.X, -r.HalfW, r.HalfW), Clamp(l.Y, -r.HalfH, r.HalfH)}
	return l.DistSq(closest) < c.Radius*c.Radius
}

// rectRect is a separating-axis test over both rectangles' edge normals.
func rectRect(a, b Hitbox) bool {
	if !a.Bounds().Intersects(b.Bounds()) {
		return false
	}
	ca, cb := a.Corners(), b.Corners()
	axes := [4]Vec2{
		FromAngle(a.Rotation), FromAngle(a.Rotation).Perp(),
		FromAngle(b.Rotation), FromAngle(b.Rotation).Perp(),
	}
	for _, axis := range axes {
		minA, maxA := project(ca, axis)
		minB, maxB := project(cb, axis)
		if maxA <= minB || maxB <= minA {
			return false
		}
	}
	return true
}

func project(pts [4]Vec2, axis Vec2) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		d := p.Dot(axis)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}

// IntersectSegment returns the first point where the segment p0→p1 touches
// h. A segment that starts inside the shape hits at p0.
func IntersectSegment(h Hitbox, p0, p1 Vec2) (Hit, bool) {
	var t float64
	var ok bool
	if h.Kind == KindCircle {
		t, ok = segmentCircle(h.Center, h.Radius, p0, p1)
	} else {
		t, ok = segmentBox(h.HalfW, h.HalfH, h.toLocal(p0), h.toLocal(p1))
	}
	if !ok {
		return Hit{}, false
	}
	d := p1.Sub(p0)
	return Hit{Point: p0.Add(d.Scale(t)), Distance: d.Len() * t, T: t}, true
}

func segmentCircle(c Vec2, r float64, p0, p1 Vec2) (float64, bool) {
	d := p1.Sub(p0)
	f := p0.Sub(c)
	cc := f.LenSq() - r*r
	if cc <= 0 {
		return 0, true
	}
	a := d.LenSq()
	if a < Epsilon {
		return 0, false
	}
	b := 2 * f.Dot(d)
	disc := b*b - 4*a*cc
	if disc < 0 {
		return 0, false
	}
	t := (-b - math.Sqrt(disc)) / (2 * a)
	if t < 0 || t > 1 {
		return 0, false
	}
	return t, true
}

// segmentBox clips a local-frame segment against the box [-hw,hw]×[-hh,hh].
func segmentBox(hw, hh float64, p0, p1 Vec2) (float64, bool) {
	if math.Abs(p0.X) <= hw && math.Abs(p0.Y) <= hh {
		return 0, true
	}
	d := p1.Sub(p0)
	tmin, tmax := 0.0, 1.0
	for _, ax := range [2]struct{ p, d, e float64 }{{p0.X, d.X, hw}, {p0.Y, d.Y, hh}} {
		if math.Abs(ax.d) < Epsilon {
			if ax.p < -ax.e || ax.p > ax.e {
				return 0, false
			}
			continue
		}
		t1 := (-ax.e - ax.p) / ax.d
		t2 := (ax.e - ax.p) / ax.d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}
