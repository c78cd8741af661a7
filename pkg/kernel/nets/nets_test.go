package nets

import (
	"context"
	"math"
	"testing"

	"github.com/chazu/islebake/pkg/shape"
	"github.com/chazu/islebake/pkg/voxel"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T, l shape.List, size float64) *voxel.Grid {
	t.Helper()
	g, err := voxel.NewSampler(nil, 0).Sample(context.Background(), l, voxel.Options{VoxelSize: size, Padding: 1})
	require.NoError(t, err)
	return g
}

func sphere(r float64) shape.List {
	s := shape.New(shape.Sphere, shape.Union)
	s.Radius = r
	return shape.List{s.WithDefaults(0)}
}

// ---------------------------------------------------------------------------
// Degenerate input
// ---------------------------------------------------------------------------

func TestEmptyGrid(t *testing.T) {
	m, err := New().Mesh(&voxel.Grid{})
	require.NoError(t, err)
	assert.True(t, m.IsEmpty())
	assert.Zero(t, m.Volume())

	m, err = New().Mesh(nil)
	require.NoError(t, err)
	assert.True(t, m.IsEmpty())
}

func TestNoSignChange(t *testing.T) {
	g := &voxel.Grid{Size: 1, Dims: [3]int{3, 3, 3}, Samples: make([]float32, 27)}
	for i := range g.Samples {
		g.Samples[i] = 1
	}
	m, err := New().Mesh(g)
	require.NoError(t, err)
	assert.True(t, m.IsEmpty())
}

// ---------------------------------------------------------------------------
// Sphere
// ---------------------------------------------------------------------------

func TestSphereVolumeConverges(t *testing.T) {
	want := 4.0 / 3.0 * math.Pi
	relErr := func(size float64) float64 {
		m, err := New().Mesh(sample(t, sphere(1), size))
		require.NoError(t, err)
		return math.Abs(m.Volume()-want) / want
	}
	coarse := relErr(0.25)
	fine := relErr(0.05)
	assert.Less(t, coarse, 0.15)
	assert.Less(t, fine, 0.03)
	assert.Less(t, fine, coarse)
}

func TestSphereNormalsPointOutward(t *testing.T) {
	m, err := New().Mesh(sample(t, sphere(1), 0.1))
	require.NoError(t, err)
	require.False(t, m.IsEmpty())
	for i := 0; i < m.VertexCount(); i++ {
		p := m.Vertex(i)
		n := v3.Vec{X: float64(m.Normals[3*i]), Y: float64(m.Normals[3*i+1]), Z: float64(m.Normals[3*i+2])}
		assert.Greater(t, p.Normalize().Dot(n), 0.8, "vertex %d", i)
		assert.InDelta(t, 1.0, p.Length(), 0.05, "vertex %d on surface", i)
	}
}

func TestMeshIsClosed(t *testing.T) {
	m, err := New().Mesh(sample(t, sphere(1), 0.2))
	require.NoError(t, err)
	edges := map[[2]uint32]int{}
	for i := 0; i < len(m.Indices); i += 3 {
		for e := 0; e < 3; e++ {
			a, b := m.Indices[i+e], m.Indices[i+(e+1)%3]
			edges[[2]uint32{a, b}]++
		}
	}
	for e, n := range edges {
		// Each directed edge appears once and its twin runs the other way.
		assert.Equal(t, 1, n, "edge %v", e)
		assert.Equal(t, 1, edges[[2]uint32{e[1], e[0]}], "twin of %v", e)
	}
}

func TestDeterministic(t *testing.T) {
	b := shape.New(shape.Box, shape.Union)
	b.Size = v3.Vec{X: 2, Y: 1, Z: 2}
	tor := shape.New(shape.Torus, shape.Subtract)
	tor.Radius, tor.Ring = 0.8, 0.3
	tor.Transform.Position = v3.Vec{Y: 0.5}
	l := shape.List{b.WithDefaults(0.2), tor.WithDefaults(0)}
	g := sample(t, l, 0.1)

	first, err := New().Mesh(g)
	require.NoError(t, err)
	second, err := New().Mesh(g)
	require.NoError(t, err)
	assert.Equal(t, first.VertexCount(), second.VertexCount())
	assert.Equal(t, first.Indices, second.Indices)
	assert.Equal(t, first.Vertices, second.Vertices)
}

// The sphere touches each box face, so the walls there thin to nothing.
// Walls thinner than a cell fall between samples and are lost, which
// makes the volume error grow with the voxel size.
func TestBoxMinusSphere(t *testing.T) {
	b := shape.New(shape.Box, shape.Union)
	b.Size = v3.Vec{X: 2, Y: 2, Z: 2}
	s := shape.New(shape.Sphere, shape.Subtract)
	s.Radius = 1
	l := shape.List{b.WithDefaults(0), s.WithDefaults(0)}
	exact := 8 - 4.0/3.0*math.Pi

	for _, size := range []float64{0.1, 0.05} {
		m, err := New().Mesh(sample(t, l, size))
		require.NoError(t, err)
		v := m.Volume()
		assert.Less(t, v, 8.0, "voxel %v", size)
		assert.InDelta(t, exact, v, 6*size, "voxel %v", size)
	}
}
