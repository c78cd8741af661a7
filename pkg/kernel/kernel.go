// Package kernel defines the mesh representation and the meshing backend
// interface. Backends (surface nets, sdfx marching cubes) turn a sampled
// voxel grid into a triangle mesh behind this interface so the build
// pipeline can swap them without changing anything else.
package kernel

import "github.com/chazu/islebake/pkg/voxel"

// Mesher extracts an iso-surface from a sampled grid. An empty grid or a
// grid with no sign change yields an empty mesh, not an error.
type Mesher interface {
	// Name identifies the algorithm in settings and logs.
	Name() string
	Mesh(g *voxel.Grid) (*Mesh, error)
}
