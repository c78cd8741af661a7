package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitCube is an outward-wound closed cube spanning [0,1]^3 with
// unshared vertices on each face.
func unitCube() *Mesh {
	quads := [][4][3]float32{
		{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}, // -Z
		{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}, // +Z
		{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}, // -Y
		{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}, // +Y
		{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}, // -X
		{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}, // +X
	}
	m := &Mesh{}
	for _, q := range quads {
		base := uint32(m.VertexCount())
		for _, v := range q {
			m.Vertices = append(m.Vertices, v[0], v[1], v[2])
			m.Normals = append(m.Normals, 0, 1, 0)
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// ---------------------------------------------------------------------------
// Counts
// ---------------------------------------------------------------------------

func TestMeshCounts(t *testing.T) {
	m := unitCube()
	assert.Equal(t, 24, m.VertexCount())
	assert.Equal(t, 12, m.TriangleCount())
	assert.False(t, m.IsEmpty())
	assert.True(t, (&Mesh{}).IsEmpty())

	var nilMesh *Mesh
	assert.True(t, nilMesh.IsEmpty())
}

// ---------------------------------------------------------------------------
// Measures
// ---------------------------------------------------------------------------

func TestVolume(t *testing.T) {
	assert.InDelta(t, 1.0, unitCube().Volume(), 1e-6)
	assert.Zero(t, (&Mesh{}).Volume())
}

func TestBounds(t *testing.T) {
	bb, ok := unitCube().Bounds()
	require.True(t, ok)
	assert.Equal(t, 1.0, bb.Max.X)
	assert.Equal(t, 0.0, bb.Min.Z)

	_, ok = (&Mesh{}).Bounds()
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Editing
// ---------------------------------------------------------------------------

func TestWeld(t *testing.T) {
	m := unitCube()
	m.ApplyTriplanarUVs(1, true)
	m.Weld(1e-4)
	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 12, m.TriangleCount())
	assert.InDelta(t, 1.0, m.Volume(), 1e-6)
	assert.Empty(t, m.UVs)
	assert.Len(t, m.Normals, 24)
}

func TestWeldDropsCollapsed(t *testing.T) {
	m := &Mesh{
		Vertices: []float32{0, 0, 0, 0.001, 0, 0, 1, 0, 0},
		Indices:  []uint32{0, 1, 2},
	}
	m.Weld(0.01)
	assert.True(t, m.IsEmpty())
}

func TestTriplanarUVs(t *testing.T) {
	m := &Mesh{Vertices: []float32{1, 2, 3}}
	m.ApplyTriplanarUVs(2, false)
	assert.Equal(t, []float32{2, 1}, m.UVs)
	assert.Empty(t, m.UV2s)

	m.ApplyTriplanarUVs(1, true)
	assert.Equal(t, []float32{4, 2}, m.UVs)
	assert.Equal(t, []float32{1, 3}, m.UV2s)
}

func TestCloneAndReset(t *testing.T) {
	m := unitCube()
	m.Name = "isle"
	c := m.Clone()
	m.Reset()
	assert.True(t, m.IsEmpty())
	assert.Equal(t, 24, c.VertexCount())
	assert.Equal(t, "isle", c.Name)
	assert.Nil(t, (*Mesh)(nil).Clone())
}
