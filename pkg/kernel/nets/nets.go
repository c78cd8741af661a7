// Package nets implements kernel.Mesher with naive surface nets: one
// vertex per sign-changing cell, placed at the mass point of the edge
// crossings, and one quad per sign-changing lattice edge.
package nets

import (
	"math"

	"github.com/chazu/islebake/pkg/kernel"
	"github.com/chazu/islebake/pkg/voxel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Mesher = (*Mesher)(nil)

// Name is the settings identifier of this backend.
const Name = "surface-nets"

// cubeEdges lists corner pairs of the 12 cell edges. Corner c has offset
// (c&1, c>>1&1, c>>2&1).
var cubeEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7},
	{0, 2}, {1, 3}, {4, 6}, {5, 7},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// Mesher is the surface nets backend. It holds no state.
type Mesher struct{}

// New returns a surface nets mesher.
func New() *Mesher {
	return &Mesher{}
}

// Name returns "surface-nets".
func (m *Mesher) Name() string { return Name }

// Mesh extracts the zero iso-surface of g. Faces wind counter-clockwise
// seen from outside. Normals come from the trilinear gradient.
func (m *Mesher) Mesh(g *voxel.Grid) (*kernel.Mesh, error) {
	out := &kernel.Mesh{}
	if g.Empty() || g.CellCount() == 0 {
		return out, nil
	}
	cx, cy, cz := g.Dims[0]-1, g.Dims[1]-1, g.Dims[2]-1
	cellIndex := func(x, y, z int) int { return x + cx*(y+cy*z) }
	vertexOf := make([]int32, cx*cy*cz)

	var corners [8]float64
	for z := 0; z < cz; z++ {
		for y := 0; y < cy; y++ {
			for x := 0; x < cx; x++ {
				mask := 0
				for c := 0; c < 8; c++ {
					o := cornerOffset(c)
					corners[c] = float64(g.At(x+int(o.X), y+int(o.Y), z+int(o.Z)))
					if corners[c] < 0 {
						mask |= 1 << c
					}
				}
				ci := cellIndex(x, y, z)
				if mask == 0 || mask == 0xff {
					vertexOf[ci] = -1
					continue
				}
				local := massPoint(&corners)
				p := g.Position(x, y, z).Add(local.MulScalar(g.Size))
				n := gradient(&corners, local)
				vertexOf[ci] = int32(out.VertexCount())
				out.Vertices = append(out.Vertices, float32(p.X), float32(p.Y), float32(p.Z))
				out.Normals = append(out.Normals, float32(n.X), float32(n.Y), float32(n.Z))
			}
		}
	}

	quad := func(inside bool, a, b, c, d int) {
		q := [4]uint32{uint32(vertexOf[a]), uint32(vertexOf[b]), uint32(vertexOf[c]), uint32(vertexOf[d])}
		if !inside {
			q[1], q[3] = q[3], q[1]
		}
		emitQuad(out, q)
	}

	for z := 0; z < g.Dims[2]; z++ {
		for y := 0; y < g.Dims[1]; y++ {
			for x := 0; x < g.Dims[0]; x++ {
				v0 := g.At(x, y, z) < 0
				if x < cx && y > 0 && z > 0 && y < cy && z < cz {
					if v0 != (g.At(x+1, y, z) < 0) {
						quad(v0,
							cellIndex(x, y-1, z-1), cellIndex(x, y, z-1),
							cellIndex(x, y, z), cellIndex(x, y-1, z))
					}
				}
				if y < cy && x > 0 && z > 0 && x < cx && z < cz {
					if v0 != (g.At(x, y+1, z) < 0) {
						quad(v0,
							cellIndex(x-1, y, z-1), cellIndex(x-1, y, z),
							cellIndex(x, y, z), cellIndex(x, y, z-1))
					}
				}
				if z < cz && x > 0 && y > 0 && x < cx && y < cy {
					if v0 != (g.At(x, y, z+1) < 0) {
						quad(v0,
							cellIndex(x-1, y-1, z), cellIndex(x, y-1, z),
							cellIndex(x, y, z), cellIndex(x-1, y, z))
					}
				}
			}
		}
	}
	return out, nil
}

// massPoint averages the zero crossings along sign-changing edges, in
// cell-local [0,1] coordinates.
func massPoint(corners *[8]float64) v3.Vec {
	var sum v3.Vec
	n := 0
	for _, e := range cubeEdges {
		a, b := corners[e[0]], corners[e[1]]
		if (a < 0) == (b < 0) {
			continue
		}
		t := a / (a - b)
		pa, pb := cornerOffset(e[0]), cornerOffset(e[1])
		sum = sum.Add(pa.Add(pb.Sub(pa).MulScalar(t)))
		n++
	}
	if n == 0 {
		return v3.Vec{X: 0.5, Y: 0.5, Z: 0.5}
	}
	return sum.DivScalar(float64(n))
}

func cornerOffset(c int) v3.Vec {
	return v3.Vec{X: float64(c & 1), Y: float64(c >> 1 & 1), Z: float64(c >> 2 & 1)}
}

// gradient is the normalized gradient of the trilinear interpolant at
// cell-local point p.
func gradient(c *[8]float64, p v3.Vec) v3.Vec {
	fx, fy, fz := p.X, p.Y, p.Z
	gx := (1-fy)*(1-fz)*(c[1]-c[0]) + fy*(1-fz)*(c[3]-c[2]) + (1-fy)*fz*(c[5]-c[4]) + fy*fz*(c[7]-c[6])
	gy := (1-fx)*(1-fz)*(c[2]-c[0]) + fx*(1-fz)*(c[3]-c[1]) + (1-fx)*fz*(c[6]-c[4]) + fx*fz*(c[7]-c[5])
	gz := (1-fx)*(1-fy)*(c[4]-c[0]) + fx*(1-fy)*(c[5]-c[1]) + (1-fx)*fy*(c[6]-c[2]) + fx*fy*(c[7]-c[3])
	g := v3.Vec{X: gx, Y: gy, Z: gz}
	l := g.Length()
	if l == 0 || math.IsNaN(l) {
		return v3.Vec{Y: 1}
	}
	return g.DivScalar(l)
}

// emitQuad splits q along its shorter diagonal.
func emitQuad(m *kernel.Mesh, q [4]uint32) {
	a, b, c, d := m.Vertex(int(q[0])), m.Vertex(int(q[1])), m.Vertex(int(q[2])), m.Vertex(int(q[3]))
	if a.Sub(c).Length() <= b.Sub(d).Length() {
		m.Indices = append(m.Indices, q[0], q[1], q[2], q[0], q[2], q[3])
		return
	}
	m.Indices = append(m.Indices, q[0], q[1], q[3], q[1], q[2], q[3])
}
