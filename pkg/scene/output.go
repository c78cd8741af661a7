package scene

import (
	"github.com/chazu/islebake/pkg/build"
	"github.com/chazu/islebake/pkg/hull"
	"github.com/chazu/islebake/pkg/kernel"
)

// Output is the scene-side home of an island's generated artifacts. The
// mesh slot holds either the live preview or the final bake, whichever was
// applied last.
type Output struct {
	Mesh       *kernel.Mesh
	Hulls      hull.Set
	Physics    build.Physics
	Navigation build.Navigation
	// Revision increases on every change, so observers can poll cheaply.
	Revision uint64
}

var _ build.Target = (*Output)(nil)

func (o *Output) ApplyMesh(m *kernel.Mesh) {
	o.Mesh = m
	o.Revision++
}

func (o *Output) ApplyCollision(set hull.Set, phys build.Physics) {
	o.Hulls = set
	o.Physics = phys
	o.Revision++
}

func (o *Output) ApplyNavigation(nav build.Navigation) {
	o.Navigation = nav
	o.Revision++
}

func (o *Output) Clear() {
	*o = Output{Revision: o.Revision + 1}
}
