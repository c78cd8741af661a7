package field

import (
	"math"
	"math/rand"
	"testing"

	"github.com/chazu/islebake/pkg/shape"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

func TestPrimitiveDistances(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"box center", Box(v3.Vec{}, v3.Vec{X: 2, Y: 2, Z: 2}, 0), -1},
		{"box face", Box(v3.Vec{X: 3}, v3.Vec{X: 2, Y: 2, Z: 2}, 0), 2},
		{"box corner", Box(v3.Vec{X: 2, Y: 2, Z: 2}, v3.Vec{X: 2, Y: 2, Z: 2}, 0), math.Sqrt(3)},
		{"rounded box face unchanged", Box(v3.Vec{X: 3}, v3.Vec{X: 2, Y: 2, Z: 2}, 0.5), 2},
		{"rounded box corner", Box(v3.Vec{X: 2, Y: 2, Z: 2}, v3.Vec{X: 2, Y: 2, Z: 2}, 0.5), math.Sqrt(3*1.5*1.5) - 0.5},
		{"sphere", Sphere(v3.Vec{Y: 3}, 1), 2},
		{"cylinder side", Cylinder(v3.Vec{X: 3}, 1, 2, 0), 2},
		{"cylinder cap", Cylinder(v3.Vec{Y: 4}, 1, 2, 0), 3},
		{"cylinder inside", Cylinder(v3.Vec{}, 1, 4, 0), -1},
		{"torus tube center", Torus(v3.Vec{X: 2}, 2, 0.5), -0.5},
		{"torus hole", Torus(v3.Vec{}, 2, 0.5), 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.got, 1e-12)
		})
	}
}

// ---------------------------------------------------------------------------
// Composition
// ---------------------------------------------------------------------------

func TestEmptyListIsOutside(t *testing.T) {
	assert.True(t, math.IsInf(Evaluate(nil, v3.Vec{}), 1))
}

func TestCombinators(t *testing.T) {
	a := shape.New(shape.Box, shape.Union)
	a.Size = v3.Vec{X: 2, Y: 2, Z: 2}
	a.EdgeRadius = 0
	b := shape.New(shape.Sphere, shape.Union)
	b.Radius = 1
	b.Transform.Position = v3.Vec{X: 0.7, Y: 0.3}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		p := v3.Vec{X: rng.Float64()*6 - 3, Y: rng.Float64()*6 - 3, Z: rng.Float64()*6 - 3}
		da, db := Shape(a, p), Shape(b, p)

		bu := b
		assert.Equal(t, math.Min(da, db), Evaluate(shape.List{a, bu}, p))

		bs := b
		bs.Operation = shape.Subtract
		assert.Equal(t, math.Max(da, -db), Evaluate(shape.List{a, bs}, p))

		bi := b
		bi.Operation = shape.Intersect
		assert.Equal(t, math.Max(da, db), Evaluate(shape.List{a, bi}, p))
	}
}

func TestLeadingNonUnionIsEmpty(t *testing.T) {
	for _, op := range []shape.Operation{shape.Intersect, shape.Subtract} {
		s := shape.New(shape.Sphere, op)
		assert.Greater(t, Evaluate(shape.List{s}, v3.Vec{}), 0.0, op.String())
	}
}

func TestShapeTransform(t *testing.T) {
	s := shape.New(shape.Sphere, shape.Union)
	s.Radius = 1
	s.Transform.Position = v3.Vec{X: 5}
	assert.InDelta(t, -1, Shape(s, v3.Vec{X: 5}), 1e-12)

	// Uniform scale multiplies distances exactly.
	s.Transform.Scale = v3.Vec{X: 2, Y: 2, Z: 2}
	assert.InDelta(t, 1, Shape(s, v3.Vec{X: 8}), 1e-12)
}

func TestGradientPointsOutward(t *testing.T) {
	s := shape.New(shape.Sphere, shape.Union)
	s.Radius = 1
	g := Gradient(shape.List{s}, v3.Vec{X: 1, Y: 1}, 1e-4).Normalize()
	assert.InDelta(t, math.Sqrt2/2, g.X, 1e-6)
	assert.InDelta(t, math.Sqrt2/2, g.Y, 1e-6)
	assert.InDelta(t, 0, g.Z, 1e-6)
}

func TestSDF3Adapter(t *testing.T) {
	empty := NewSDF3(nil)
	assert.Equal(t, math.MaxFloat64, empty.Evaluate(v3.Vec{}))

	s := shape.New(shape.Sphere, shape.Union)
	s.Radius = 2
	a := NewSDF3(shape.List{s})
	require.InDelta(t, -2, a.Evaluate(v3.Vec{}), 1e-12)
	assert.Equal(t, s.Bounds(), a.BoundingBox())
}
