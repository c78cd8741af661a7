package sdfx

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

func sampleSphere(t *testing.T, r, size float64) *voxel.Grid {
	t.Helper()
	s := shape.New(shape.Sphere, shape.Union)
	s.Radius = r
	g, err := voxel.NewSampler(nil, 0).Sample(context.Background(), shape.List{s.WithDefaults(0)},
		voxel.Options{VoxelSize: size, Padding: 1})
	require.NoError(t, err)
	return g
}

func TestGridSDFInterpolates(t *testing.T) {
	g := sampleSphere(t, 1, 0.1)
	f := &gridSDF{g: g}
	// Lattice points reproduce samples exactly.
	assert.InDelta(t, float64(g.At(5, 6, 7)), f.Evaluate(g.Position(5, 6, 7)), 1e-6)
	assert.InDelta(t, -1, f.Evaluate(v3.Vec{}), 0.02)
	// Far away points clamp to the border, which is outside.
	assert.Greater(t, f.Evaluate(v3.Vec{X: 100}), 0.0)

	n := f.Normal(v3.Vec{X: 1})
	assert.InDelta(t, 1, n.X, 0.05)
}

func TestMeshSphere(t *testing.T) {
	m, err := New().Mesh(sampleSphere(t, 1, 0.1))
	require.NoError(t, err)
	require.False(t, m.IsEmpty())
	assert.Equal(t, m.VertexCount(), len(m.Indices))

	want := 4.0 / 3.0 * math.Pi
	assert.InDelta(t, want, m.Volume(), want*0.1)

	m.Weld(1e-5)
	assert.Less(t, m.VertexCount(), len(m.Indices))
	assert.InDelta(t, want, m.Volume(), want*0.1)
}

func TestMeshEmpty(t *testing.T) {
	m, err := New().Mesh(&voxel.Grid{})
	require.NoError(t, err)
	assert.True(t, m.IsEmpty())
	assert.Equal(t, Name, New().Name())
}
