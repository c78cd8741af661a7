// Package voxel samples signed distance fields onto regular grids.
package voxel

import (
	"errors"
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

var (
	// ErrInvalidVoxelSize is returned for non-positive or non-finite sizes.
	ErrInvalidVoxelSize = errors.New("voxel: invalid voxel size")
	// ErrGridTooLarge is returned when a grid would exceed the sample ceiling.
	ErrGridTooLarge = errors.New("voxel: grid exceeds sample ceiling")
)

// DefaultMaxSamples bounds grid allocation when no ceiling is configured.
// At four bytes per sample this is 256 MiB.
const DefaultMaxSamples = 64 << 20

// Grid is a dense lattice of SDF samples. Samples are stored at cell
// corners, X fastest, then Y, then Z. A grid with Dims {nx, ny, nz} has
// (nx-1)(ny-1)(nz-1) cells.
type Grid struct {
	Origin  v3.Vec
	Size    float64
	Dims    [3]int
	Samples []float32
}

// Index returns the flat sample index of corner (i, j, k).
func (g *Grid) Index(i, j, k int) int {
	return i + g.Dims[0]*(j+g.Dims[1]*k)
}

// At returns the sample at corner (i, j, k).
func (g *Grid) At(i, j, k int) float32 {
	return g.Samples[g.Index(i, j, k)]
}

// Position returns the builder-local position of corner (i, j, k).
func (g *Grid) Position(i, j, k int) v3.Vec {
	return v3.Vec{
		X: g.Origin.X + float64(i)*g.Size,
		Y: g.Origin.Y + float64(j)*g.Size,
		Z: g.Origin.Z + float64(k)*g.Size,
	}
}

// SampleCount is the number of corners.
func (g *Grid) SampleCount() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// CellCount is the number of cubes between corners.
func (g *Grid) CellCount() int {
	if g.Empty() {
		return 0
	}
	return (g.Dims[0] - 1) * (g.Dims[1] - 1) * (g.Dims[2] - 1)
}

// Bounds is the box spanned by the corner lattice.
func (g *Grid) Bounds() sdf.Box3 {
	last := g.Position(g.Dims[0]-1, g.Dims[1]-1, g.Dims[2]-1)
	return sdf.Box3{Min: g.Origin, Max: last}
}

// Empty reports whether the grid holds no samples.
func (g *Grid) Empty() bool {
	return g == nil || len(g.Samples) == 0
}

// Inside counts samples below zero.
func (g *Grid) Inside() int {
	n := 0
	for _, s := range g.Samples {
		if s < 0 {
			n++
		}
	}
	return n
}

// Plan computes the lattice covering bounds at the given voxel size,
// enlarged by padding cells on every side and centered on bounds. It
// fails before allocating anything when the sample count would exceed
// maxSamples.
func Plan(bounds sdf.Box3, size float64, padding, maxSamples int) (*Grid, error) {
	if !(size > 0) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVoxelSize, size)
	}
	if padding < 1 {
		padding = 1
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	extent := bounds.Size()
	center := bounds.Center()
	var dims [3]int
	total := 1.0
	for axis, e := range []float64{extent.X, extent.Y, extent.Z} {
		n := math.Ceil(e/size) + 1 + 2*float64(padding)
		if math.IsNaN(n) || n > float64(maxSamples) {
			return nil, fmt.Errorf("%w: axis %d needs %.0f samples", ErrGridTooLarge, axis, n)
		}
		dims[axis] = int(n)
		total *= n
	}
	if total > float64(maxSamples) {
		return nil, fmt.Errorf("%w: %.0f samples > %d", ErrGridTooLarge, total, maxSamples)
	}
	half := v3.Vec{
		X: float64(dims[0]-1) * size / 2,
		Y: float64(dims[1]-1) * size / 2,
		Z: float64(dims[2]-1) * size / 2,
	}
	return &Grid{
		Origin: center.Sub(half),
		Size:   size,
		Dims:   dims,
	}, nil
}
