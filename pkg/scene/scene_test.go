package scene

import (
	"context"
	"testing"

	"github.com/chazu/islebake/pkg/build"
	"github.com/chazu/islebake/pkg/config"
	"github.com/chazu/islebake/pkg/shape"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func at(x, y, z float64) shape.Transform {
	t := shape.Identity()
	t.Position = v3.Vec{X: x, Y: y, Z: z}
	return t
}

func sphere(r float64) shape.Shape {
	s := shape.New(shape.Sphere, shape.Union)
	s.Radius = r
	return s
}

// island builds:
//
//	isle (builder)
//	├── isle/output
//	├── base (box at 0,0,0)
//	├── hill (group at 2,0,0)
//	│   ├── top (sphere at 0,1,0)
//	│   └── hidden (sphere, invisible)
//	└── inner (nested builder)
//	    └── ignored (sphere)
func island(t *testing.T) *Graph {
	t.Helper()
	g := New()
	isle := NewBuilder("isle", "")
	out := NewOutput("isle/output")
	base := NewPrimitive("base", shape.New(shape.Box, shape.Union), shape.Identity())
	hill := NewGroup("hill", at(2, 0, 0))
	top := NewPrimitive("top", sphere(1), at(0, 1, 0))
	hidden := NewPrimitive("hidden", sphere(1), shape.Identity())
	hidden.Visible = false
	inner := NewBuilder("inner", "")
	ignored := NewPrimitive("ignored", sphere(1), shape.Identity())

	hill.Children = []NodeID{top.ID, hidden.ID}
	inner.Children = []NodeID{ignored.ID}
	isle.Children = []NodeID{out.ID, base.ID, hill.ID, inner.ID}
	for _, n := range []*Node{isle, out, base, hill, top, hidden, inner, ignored} {
		g.AddNode(n)
	}
	g.AddRoot(isle.ID)
	return g
}

// ---------------------------------------------------------------------------
// Structure
// ---------------------------------------------------------------------------

func TestNodeIDs(t *testing.T) {
	assert.Equal(t, NodeID("isle"), NewNodeID(NodeBuilder, "isle"))
	a := NewNodeID(NodePrimitive, "")
	b := NewNodeID(NodePrimitive, "")
	assert.NotEqual(t, a, b)
	assert.Contains(t, string(a), "primitive-")
}

func TestBuildersAndOutput(t *testing.T) {
	g := island(t)
	builders := g.Builders()
	require.Len(t, builders, 2)
	assert.Equal(t, "isle", builders[0].Name)
	assert.Equal(t, "inner", builders[1].Name)

	out, err := g.Output("isle")
	require.NoError(t, err)
	assert.NotNil(t, out)

	_, err = g.Output("inner")
	assert.Error(t, err, "inner has no output child")
	_, err = g.Output("base")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Shape collection
// ---------------------------------------------------------------------------

func TestCollectShapes(t *testing.T) {
	g := island(t)
	l := g.CollectShapes("isle")
	require.Len(t, l, 2, "hidden and nested shapes are skipped")
	assert.Equal(t, shape.Box, l[0].Kind)
	assert.Equal(t, shape.Sphere, l[1].Kind)
	assert.InDelta(t, 2, l[1].Transform.Position.X, 1e-9)
	assert.InDelta(t, 1, l[1].Transform.Position.Y, 1e-9)

	assert.Len(t, g.CollectShapes("inner"), 1)
	assert.Nil(t, g.CollectShapes("missing"))
}

func TestCollectIgnoresBuilderTransform(t *testing.T) {
	g := island(t)
	before := g.CollectShapes("isle")
	g.Get("isle").Transform = at(100, 0, 0)
	assert.True(t, before.Equal(g.CollectShapes("isle")))
}

func TestCollectComposesRotation(t *testing.T) {
	g := island(t)
	hill := g.Get("hill")
	hill.Transform.Rotation = shape.Euler(0, 0, 90)
	l := g.CollectShapes("isle")
	// (0,1,0) turned 90 degrees about Z is (-1,0,0), offset by the group.
	assert.InDelta(t, 1, l[1].Transform.Position.X, 1e-9)
	assert.InDelta(t, 0, l[1].Transform.Position.Y, 1e-9)
}

// ---------------------------------------------------------------------------
// Fingerprints
// ---------------------------------------------------------------------------

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(g *Graph)
		changed bool
	}{
		{"no edit", func(*Graph) {}, false},
		{"move", func(g *Graph) { g.Get("top").Transform.Position.Z = 3 }, true},
		{"resize", func(g *Graph) {
			n := g.Get("top")
			d := n.Data.(PrimitiveData)
			d.Shape.Radius = 2
			n.Data = d
		}, true},
		{"hide", func(g *Graph) { g.Get("top").Visible = false }, true},
		{"edit hidden", func(g *Graph) { g.Get("hidden").Transform.Position.X = 7 }, false},
		{"edit nested builder", func(g *Graph) { g.Get("ignored").Transform.Position.X = 7 }, false},
		{"move builder", func(g *Graph) { g.Get("isle").Transform.Position.X = 7 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := island(t)
			before := g.Fingerprint("isle")
			tt.edit(g)
			assert.Equal(t, tt.changed, before != g.Fingerprint("isle"))
		})
	}
}

// ---------------------------------------------------------------------------
// Replace
// ---------------------------------------------------------------------------

func TestReplaceKeepsOutputs(t *testing.T) {
	g := island(t)
	src := g.Source("isle")
	before := src.Fingerprint()
	out, err := g.Output("isle")
	require.NoError(t, err)

	next := island(t)
	next.Get("top").Transform.Position.Y = 5
	g.Replace(next)

	kept, err := g.Output("isle")
	require.NoError(t, err)
	assert.Same(t, out, kept)
	assert.Equal(t, uint64(1), g.Version)
	assert.NotEqual(t, before, src.Fingerprint(), "sources read through the graph")
	assert.InDelta(t, 5, src.Shapes()[1].Transform.Position.Y, 1e-9)
}

// ---------------------------------------------------------------------------
// Output as a build target
// ---------------------------------------------------------------------------

func TestOutputReceivesBuild(t *testing.T) {
	g := island(t)
	out, err := g.Output("isle")
	require.NoError(t, err)

	settings := config.Default()
	settings.Voxels.Size = 0.25
	b := build.New("isle", g.Source("isle"), out, settings)
	require.NoError(t, b.Build(context.Background()))

	require.NotNil(t, out.Mesh)
	assert.False(t, out.Mesh.IsEmpty())
	assert.NotEmpty(t, out.Hulls)
	assert.Greater(t, out.Physics.Mass, 0.0)
	assert.Equal(t, uint64(3), out.Revision)

	out.Clear()
	assert.Nil(t, out.Mesh)
	assert.Equal(t, uint64(4), out.Revision)
}
