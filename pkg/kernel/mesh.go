package kernel

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, uvs and uv2s have 2 floats per vertex
// when present, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"`      // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`       // [nx0,ny0,nz0, ...]
	UVs      []float32 `json:"uvs,omitempty"` // [u0,v0, ...]
	UV2s     []float32 `json:"uv2s,omitempty"`
	Indices  []uint32  `json:"indices"` // [i0,i1,i2, ...] triangles
	Name     string    `json:"name"`    // which builder produced this mesh
	Material string    `json:"material,omitempty"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Indices) == 0
}

// Vertex returns vertex i as a vector.
func (m *Mesh) Vertex(i int) v3.Vec {
	return v3.Vec{
		X: float64(m.Vertices[3*i]),
		Y: float64(m.Vertices[3*i+1]),
		Z: float64(m.Vertices[3*i+2]),
	}
}

// Reset empties the mesh in place, keeping allocated capacity.
func (m *Mesh) Reset() {
	m.Vertices = m.Vertices[:0]
	m.Normals = m.Normals[:0]
	m.UVs = m.UVs[:0]
	m.UV2s = m.UV2s[:0]
	m.Indices = m.Indices[:0]
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	if m == nil {
		return nil
	}
	return &Mesh{
		Vertices: append([]float32(nil), m.Vertices...),
		Normals:  append([]float32(nil), m.Normals...),
		UVs:      append([]float32(nil), m.UVs...),
		UV2s:     append([]float32(nil), m.UV2s...),
		Indices:  append([]uint32(nil), m.Indices...),
		Name:     m.Name,
		Material: m.Material,
	}
}

// Volume is the signed volume enclosed by the triangles, summed as
// tetrahedra against the origin. Outward-wound closed meshes give a
// positive value.
func (m *Mesh) Volume() float64 {
	var sum float64
	for t := 0; t+2 < len(m.Indices); t += 3 {
		a := m.Vertex(int(m.Indices[t]))
		b := m.Vertex(int(m.Indices[t+1]))
		c := m.Vertex(int(m.Indices[t+2]))
		sum += a.Dot(b.Cross(c))
	}
	return sum / 6
}

// Bounds is the tight AABB of the referenced vertices. The second result
// is false for an empty mesh.
func (m *Mesh) Bounds() (sdf.Box3, bool) {
	if m.VertexCount() == 0 {
		return sdf.Box3{}, false
	}
	bb := sdf.Box3{Min: m.Vertex(0), Max: m.Vertex(0)}
	for i := 1; i < m.VertexCount(); i++ {
		bb = bb.Include(m.Vertex(i))
	}
	return bb, true
}

// ApplyTriplanarUVs writes uv = (x+z, y) and, when secondary is set,
// uv2 = (x, z). Both are scaled by 1/scale.
func (m *Mesh) ApplyTriplanarUVs(scale float64, secondary bool) {
	if scale <= 0 {
		scale = 1
	}
	inv := float32(1 / scale)
	n := m.VertexCount()
	m.UVs = m.UVs[:0]
	m.UV2s = m.UV2s[:0]
	for i := 0; i < n; i++ {
		x, y, z := m.Vertices[3*i], m.Vertices[3*i+1], m.Vertices[3*i+2]
		m.UVs = append(m.UVs, (x+z)*inv, y*inv)
		if secondary {
			m.UV2s = append(m.UV2s, x*inv, z*inv)
		}
	}
}

// Weld merges vertices closer than dist, averaging their normals, and
// drops triangles that collapse. UVs are recomputed by the caller if
// needed; welding discards them.
func (m *Mesh) Weld(dist float64) {
	if dist <= 0 || m.IsEmpty() {
		return
	}
	type key [3]int64
	cell := func(v v3.Vec) key {
		return key{
			int64(math.Floor(v.X / dist)),
			int64(math.Floor(v.Y / dist)),
			int64(math.Floor(v.Z / dist)),
		}
	}
	buckets := make(map[key][]uint32)
	remap := make([]uint32, m.VertexCount())
	var verts, norms []float32
	hasNormals := len(m.Normals) == len(m.Vertices)

	for i := 0; i < m.VertexCount(); i++ {
		p := m.Vertex(i)
		c := cell(p)
		found := -1
	search:
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dz := int64(-1); dz <= 1; dz++ {
					for _, w := range buckets[key{c[0] + dx, c[1] + dy, c[2] + dz}] {
						q := v3.Vec{X: float64(verts[3*w]), Y: float64(verts[3*w+1]), Z: float64(verts[3*w+2])}
						if p.Sub(q).Length() < dist {
							found = int(w)
							break search
						}
					}
				}
			}
		}
		if found >= 0 {
			remap[i] = uint32(found)
			if hasNormals {
				norms[3*found] += m.Normals[3*i]
				norms[3*found+1] += m.Normals[3*i+1]
				norms[3*found+2] += m.Normals[3*i+2]
			}
			continue
		}
		idx := uint32(len(verts) / 3)
		remap[i] = idx
		buckets[c] = append(buckets[c], idx)
		verts = append(verts, m.Vertices[3*i:3*i+3]...)
		if hasNormals {
			norms = append(norms, m.Normals[3*i:3*i+3]...)
		}
	}

	indices := m.Indices[:0]
	for t := 0; t+2 < len(m.Indices); t += 3 {
		a, b, c := remap[m.Indices[t]], remap[m.Indices[t+1]], remap[m.Indices[t+2]]
		if a == b || b == c || a == c {
			continue
		}
		indices = append(indices, a, b, c)
	}
	for i := 0; i+2 < len(norms); i += 3 {
		n := v3.Vec{X: float64(norms[i]), Y: float64(norms[i+1]), Z: float64(norms[i+2])}
		if l := n.Length(); l > 0 {
			norms[i] = float32(n.X / l)
			norms[i+1] = float32(n.Y / l)
			norms[i+2] = float32(n.Z / l)
		}
	}
	m.Vertices = verts
	m.Normals = norms
	m.Indices = indices
	m.UVs = nil
	m.UV2s = nil
}
