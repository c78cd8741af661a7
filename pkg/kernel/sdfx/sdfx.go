// Package sdfx implements kernel.Mesher using the marching cubes renderer
// from github.com/deadsy/sdfx. The sampled grid is exposed to sdfx as a
// trilinearly interpolated sdf.SDF3.
package sdfx

import (
	"math"

	"github.com/chazu/islebake/pkg/kernel"
	"github.com/chazu/islebake/pkg/voxel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface checks.
var (
	_ kernel.Mesher = (*Mesher)(nil)
	_ sdf.SDF3      = (*gridSDF)(nil)
)

// Name is the settings identifier of this backend.
const Name = "marching-cubes"

// Mesher meshes grids with sdfx marching cubes at the grid's own
// resolution.
type Mesher struct{}

// New returns a new Mesher.
func New() *Mesher {
	return &Mesher{}
}

// Name returns "marching-cubes".
func (m *Mesher) Name() string { return Name }

// gridSDF wraps a voxel grid to implement sdf.SDF3.
type gridSDF struct {
	g *voxel.Grid
}

// BoundingBox returns the lattice bounds.
func (s *gridSDF) BoundingBox() sdf.Box3 {
	return s.g.Bounds()
}

// Evaluate interpolates the grid trilinearly. Points outside the lattice
// take the value of the nearest border sample, which is always outside.
func (s *gridSDF) Evaluate(p v3.Vec) float64 {
	c, f := s.locate(p)
	return trilinear(s.corners(c), f)
}

// Normal is the normalized gradient of the interpolant at p.
func (s *gridSDF) Normal(p v3.Vec) v3.Vec {
	c, f := s.locate(p)
	v := s.corners(c)
	g := v3.Vec{
		X: lerp2(v[1]-v[0], v[3]-v[2], v[5]-v[4], v[7]-v[6], f.Y, f.Z),
		Y: lerp2(v[2]-v[0], v[3]-v[1], v[6]-v[4], v[7]-v[5], f.X, f.Z),
		Z: lerp2(v[4]-v[0], v[5]-v[1], v[6]-v[2], v[7]-v[3], f.X, f.Y),
	}
	if l := g.Length(); l > 0 {
		return g.DivScalar(l)
	}
	return v3.Vec{Y: 1}
}

// locate returns the cell containing p and p's fractional offset in it.
func (s *gridSDF) locate(p v3.Vec) ([3]int, v3.Vec) {
	g := s.g
	rel := p.Sub(g.Origin).DivScalar(g.Size)
	var cell [3]int
	var frac [3]float64
	for axis, r := range []float64{rel.X, rel.Y, rel.Z} {
		hi := float64(g.Dims[axis] - 1)
		r = math.Max(0, math.Min(hi, r))
		i := math.Floor(r)
		if i >= hi {
			i = hi - 1
		}
		cell[axis] = int(i)
		frac[axis] = r - i
	}
	return cell, v3.Vec{X: frac[0], Y: frac[1], Z: frac[2]}
}

func (s *gridSDF) corners(c [3]int) [8]float64 {
	var v [8]float64
	for i := 0; i < 8; i++ {
		v[i] = float64(s.g.At(c[0]+(i&1), c[1]+(i>>1&1), c[2]+(i>>2&1)))
	}
	return v
}

func trilinear(v [8]float64, f v3.Vec) float64 {
	x00 := v[0] + (v[1]-v[0])*f.X
	x10 := v[2] + (v[3]-v[2])*f.X
	x01 := v[4] + (v[5]-v[4])*f.X
	x11 := v[6] + (v[7]-v[6])*f.X
	y0 := x00 + (x10-x00)*f.Y
	y1 := x01 + (x11-x01)*f.Y
	return y0 + (y1-y0)*f.Z
}

// lerp2 bilinearly blends four values over (s, t).
func lerp2(a, b, c, d, s, t float64) float64 {
	return (1-s)*(1-t)*a + s*(1-t)*b + (1-s)*t*c + s*t*d
}

// Mesh converts the grid to a triangle mesh using marching cubes. Shared
// vertices are not merged; the build pipeline welds afterwards.
func (m *Mesher) Mesh(g *voxel.Grid) (*kernel.Mesh, error) {
	out := &kernel.Mesh{}
	if g.Empty() || g.CellCount() == 0 || g.Inside() == 0 {
		return out, nil
	}
	field := &gridSDF{g: g}

	cells := max(g.Dims[0], g.Dims[1], g.Dims[2]) - 1
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(field, renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	out.Vertices = make([]float32, 0, numVerts*3)
	out.Normals = make([]float32, 0, numVerts*3)
	out.Indices = make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		for j := 0; j < 3; j++ {
			v := tri[j]
			n := field.Normal(v)
			out.Vertices = append(out.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
			out.Normals = append(out.Normals, float32(n.X), float32(n.Y), float32(n.Z))
			out.Indices = append(out.Indices, uint32(i*3+j))
		}
	}
	return out, nil
}
