package gesture

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/Skryldev/mockup-studio/transform"
)

// minSpan is the smallest pointer separation usable as a pinch baseline.
const minSpan = 1e-9

// Span is the separation of two pointers: distance in pixels and the angle
// of the vector from the first to the second in degrees.
type Span struct {
	Dist  float64
	Angle float64
}

// SpanOf measures the pair (a, b).
func SpanOf(a, b Point) Span {
	d := r2.Sub(r2.Vec{X: b.X, Y: b.Y}, r2.Vec{X: a.X, Y: a.Y})
	return Span{Dist: r2.Norm(d), Angle: math.Atan2(d.Y, d.X) * 180 / math.Pi}
}

// Pinch maps two-pointer movement onto a scale factor and, when Twist is
// set, a rotation. It is shared by the overlay gesture and the mobile dock.
type Pinch struct {
	origin   Span
	scale0   float64
	rot0     float64
	min, max float64
	Twist    bool
}

// NewPinch snapshots the starting pair and the values it modifies. Scale
// results are clamped to [min, max].
func NewPinch(a, b Point, scale, rotation, min, max float64, twist bool) Pinch {
	return Pinch{
		origin: SpanOf(a, b),
		scale0: scale,
		rot0:   rotation,
		min:    min,
		max:    max,
		Twist:  twist,
	}
}

// Update returns the scale and rotation for the pair's new positions. When
// the starting pair had no separation the baseline is moved to the current
// sample and ok is false.
func (p *Pinch) Update(a, b Point) (scale, rotation float64, ok bool) {
	cur := SpanOf(a, b)
	if p.origin.Dist < minSpan {
		p.origin = cur
		return p.scale0, p.rot0, false
	}
	scale = transform.Clamp(p.scale0*cur.Dist/p.origin.Dist, p.min, p.max)
	rotation = p.rot0
	if p.Twist {
		rotation = transform.NormalizeDegrees(p.rot0 + (cur.Angle - p.origin.Angle))
	}
	return scale, rotation, true
}
