package build

import (
	"math"

	"github.com/chazu/islebake/pkg/hull"
	"github.com/chazu/islebake/pkg/kernel"
	"github.com/chazu/islebake/pkg/shape"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Source supplies a builder's shapes. Implementations walk the host scene
// and must only be called from the goroutine that owns it.
type Source interface {
	// Shapes returns the visible primitives relative to the builder.
	Shapes() shape.List
	// Fingerprint changes whenever Shapes would return something different.
	Fingerprint() uint64
}

// Target receives finished artifacts. Calls happen on the owning
// goroutine only.
type Target interface {
	ApplyMesh(m *kernel.Mesh)
	ApplyCollision(set hull.Set, phys Physics)
	ApplyNavigation(nav Navigation)
	Clear()
}

// Physics is the mass summary handed over with collision.
type Physics struct {
	Volume float64
	Mass   float64
	Health float64
}

// Navigation summarizes a mesh for pathing and culling.
type Navigation struct {
	Bounds sdf.Box3
	Center v3.Vec
	Radius float64
}

// navigationOf derives navigation properties from a mesh. With horizontal
// set the radius ignores height.
func navigationOf(m *kernel.Mesh, horizontal bool) Navigation {
	bb, ok := m.Bounds()
	if !ok {
		return Navigation{}
	}
	size := bb.Size()
	r := 0.5 * size.Length()
	if horizontal {
		r = 0.5 * math.Hypot(size.X, size.Z)
	}
	return Navigation{Bounds: bb, Center: bb.Center(), Radius: r}
}

// ShapeSource is a fixed shape list, useful for tools and tests.
type ShapeSource struct {
	List shape.List
	Rev  uint64
}

// Shapes returns the list.
func (s *ShapeSource) Shapes() shape.List { return append(shape.List(nil), s.List...) }

// Fingerprint returns Rev; bump it after editing List.
func (s *ShapeSource) Fingerprint() uint64 { return s.Rev }

// Set replaces the list and bumps the revision.
func (s *ShapeSource) Set(l shape.List) {
	s.List = l
	s.Rev++
}

// MemoryTarget records what was applied to it.
type MemoryTarget struct {
	Mesh       *kernel.Mesh
	Hulls      hull.Set
	Physics    Physics
	Navigation Navigation
	Applied    int
	Cleared    int
}

func (t *MemoryTarget) ApplyMesh(m *kernel.Mesh) {
	t.Mesh = m
	t.Applied++
}

func (t *MemoryTarget) ApplyCollision(set hull.Set, phys Physics) {
	t.Hulls = set
	t.Physics = phys
}

func (t *MemoryTarget) ApplyNavigation(nav Navigation) {
	t.Navigation = nav
}

func (t *MemoryTarget) Clear() {
	*t = MemoryTarget{Applied: t.Applied, Cleared: t.Cleared + 1}
}
