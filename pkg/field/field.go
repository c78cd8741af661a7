// Package field evaluates signed distance fields over shape lists.
// Distances are negative inside a solid and positive outside. A list is
// folded left to right starting from +Inf, each shape combined into the
// running value through its own operation.
package field

import (
	"math"

	"github.com/chazu/islebake/pkg/shape"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Box is the rounded box distance for a box of full extent size centered
// at the origin. r rounds every edge; r = 0 gives a sharp box.
func Box(p, size v3.Vec, r float64) float64 {
	q := p.Abs().Sub(size.MulScalar(0.5)).AddScalar(r)
	return q.Max(v3.Vec{}).Length() + math.Min(q.MaxComponent(), 0) - r
}

// Sphere is the distance to a sphere of radius r at the origin.
func Sphere(p v3.Vec, r float64) float64 {
	return p.Length() - r
}

// Cylinder is the rounded distance to a Y-axis cylinder of the given
// radius and full height.
func Cylinder(p v3.Vec, radius, height, r float64) float64 {
	dx := math.Hypot(p.X, p.Z) - radius + r
	dy := math.Abs(p.Y) - 0.5*height + r
	outside := math.Hypot(math.Max(dx, 0), math.Max(dy, 0))
	return outside + math.Min(math.Max(dx, dy), 0) - r
}

// Torus is the distance to a torus lying in the XZ plane.
func Torus(p v3.Vec, major, minor float64) float64 {
	return math.Hypot(math.Hypot(p.X, p.Z)-major, p.Y) - minor
}

// Union keeps whatever is inside either field.
func Union(a, b float64) float64 { return math.Min(a, b) }

// Intersect keeps what is inside both fields.
func Intersect(a, b float64) float64 { return math.Max(a, b) }

// Subtract removes b from a.
func Subtract(a, b float64) float64 { return math.Max(a, -b) }

// Combine folds d into acc with op.
func Combine(op shape.Operation, acc, d float64) float64 {
	switch op {
	case shape.Intersect:
		return Intersect(acc, d)
	case shape.Subtract:
		return Subtract(acc, d)
	default:
		return Union(acc, d)
	}
}

// Shape evaluates a single shape at builder-local point p.
//
// Non-uniform scale is handled by evaluating in the unscaled local frame
// and multiplying by the smallest scale factor, which keeps the result a
// lower bound of the true distance.
func Shape(s shape.Shape, p v3.Vec) float64 {
	local := s.Transform.ToLocal(p)
	var d float64
	switch s.Kind {
	case shape.Box:
		d = Box(local, s.Size, s.EdgeRadius)
	case shape.Sphere:
		d = Sphere(local, s.Radius)
	case shape.Cylinder:
		d = Cylinder(local, s.Radius, s.Height, s.EdgeRadius)
	case shape.Torus:
		d = Torus(local, s.Radius, s.Ring)
	default:
		return math.Inf(1)
	}
	return d * minScale(s.Transform.Scale)
}

func minScale(s v3.Vec) float64 {
	m := s.Abs().MinComponent()
	if m == 0 {
		return 1
	}
	return m
}

// Evaluate folds the whole list at p. An empty list yields +Inf.
func Evaluate(l shape.List, p v3.Vec) float64 {
	acc := math.Inf(1)
	for _, s := range l {
		acc = Combine(s.Operation, acc, Shape(s, p))
	}
	return acc
}

// Gradient estimates the field gradient at p with central differences of
// step h. The result is not normalized.
func Gradient(l shape.List, p v3.Vec, h float64) v3.Vec {
	dx := v3.Vec{X: h}
	dy := v3.Vec{Y: h}
	dz := v3.Vec{Z: h}
	return v3.Vec{
		X: Evaluate(l, p.Add(dx)) - Evaluate(l, p.Sub(dx)),
		Y: Evaluate(l, p.Add(dy)) - Evaluate(l, p.Sub(dy)),
		Z: Evaluate(l, p.Add(dz)) - Evaluate(l, p.Sub(dz)),
	}.DivScalar(2 * h)
}
