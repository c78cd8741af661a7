package voxel

import (
	"context"
	"fmt"
	"math"

	"github.com/alitto/pond/v2"
	"github.com/chazu/islebake/pkg/field"
	"github.com/chazu/islebake/pkg/shape"
)

// Options control one sampling pass.
type Options struct {
	VoxelSize float64
	// Padding is the number of extra cells around the shape bounds. The
	// outermost layer is always forced outside so surfaces close.
	Padding          int
	SmoothIterations int
	SmoothRadius     int
	// SmoothWeight blends each blurred sample with the original: 0 keeps
	// the raw field, 1 replaces it with the blur.
	SmoothWeight float64
}

// Sampler fills grids from shape lists. Work is split into Z slabs and
// submitted to Pool; a nil Pool samples on the calling goroutine.
type Sampler struct {
	Pool       pond.Pool
	MaxSamples int
}

// NewSampler returns a sampler backed by pool.
func NewSampler(pool pond.Pool, maxSamples int) *Sampler {
	return &Sampler{Pool: pool, MaxSamples: maxSamples}
}

// Plan sizes the grid for l without sampling it. An empty list returns an
// empty grid.
func (s *Sampler) Plan(l shape.List, opts Options) (*Grid, error) {
	bounds, ok := l.Bounds()
	if !ok {
		if !(opts.VoxelSize > 0) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidVoxelSize, opts.VoxelSize)
		}
		return &Grid{Size: opts.VoxelSize}, nil
	}
	return Plan(bounds, opts.VoxelSize, opts.Padding, s.MaxSamples)
}

// Sample evaluates l at every grid corner. The returned grid is empty
// when l is empty. On error no grid is returned.
func (s *Sampler) Sample(ctx context.Context, l shape.List, opts Options) (*Grid, error) {
	g, err := s.Plan(l, opts)
	if err != nil {
		return nil, err
	}
	if g.SampleCount() == 0 {
		return g, nil
	}
	g.Samples = make([]float32, g.SampleCount())
	limit := g.sampleLimit()

	err = s.slabs(ctx, g.Dims[2], func(k int) {
		for j := 0; j < g.Dims[1]; j++ {
			for i := 0; i < g.Dims[0]; i++ {
				d := field.Evaluate(l, g.Position(i, j, k))
				g.Samples[g.Index(i, j, k)] = float32(clamp(d, -limit, limit))
			}
		}
	})
	if err != nil {
		return nil, err
	}

	for it := 0; it < opts.SmoothIterations; it++ {
		if err := s.Smooth(ctx, g, opts.SmoothRadius, opts.SmoothWeight); err != nil {
			return nil, err
		}
	}
	g.sealBorder(float32(g.Size))
	return g, nil
}

// Smooth applies one box-blur pass of the given radius, blending the
// result into the grid with weight w.
func (s *Sampler) Smooth(ctx context.Context, g *Grid, radius int, w float64) error {
	if g.Empty() || radius < 1 || w <= 0 {
		return nil
	}
	w = math.Min(w, 1)
	src := g.Samples
	dst := make([]float32, len(src))
	nx, ny, nz := g.Dims[0], g.Dims[1], g.Dims[2]

	err := s.slabs(ctx, nz, func(k int) {
		k0, k1 := max(k-radius, 0), min(k+radius, nz-1)
		for j := 0; j < ny; j++ {
			j0, j1 := max(j-radius, 0), min(j+radius, ny-1)
			for i := 0; i < nx; i++ {
				i0, i1 := max(i-radius, 0), min(i+radius, nx-1)
				var sum float64
				for kk := k0; kk <= k1; kk++ {
					for jj := j0; jj <= j1; jj++ {
						base := g.Index(0, jj, kk)
						for ii := i0; ii <= i1; ii++ {
							sum += float64(src[base+ii])
						}
					}
				}
				n := float64((k1 - k0 + 1) * (j1 - j0 + 1) * (i1 - i0 + 1))
				idx := g.Index(i, j, k)
				orig := float64(src[idx])
				dst[idx] = float32(orig + (sum/n-orig)*w)
			}
		}
	})
	if err != nil {
		return err
	}
	g.Samples = dst
	return nil
}

// slabs runs fn once per Z index, in parallel when a pool is configured.
func (s *Sampler) slabs(ctx context.Context, nz int, fn func(k int)) error {
	if s.Pool == nil {
		for k := 0; k < nz; k++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(k)
		}
		return nil
	}
	group := s.Pool.NewGroup()
	for k := 0; k < nz; k++ {
		group.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			fn(k)
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("voxel: sampling task: %w", err)
	}
	return ctx.Err()
}

// sampleLimit is the magnitude stored samples are clamped to. It exceeds
// any true distance inside the grid, and keeps blur arithmetic finite.
func (g *Grid) sampleLimit() float64 {
	e := g.Bounds().Size()
	return math.Max(e.Length(), g.Size)
}

// sealBorder raises the outermost layer of samples to at least outside.
func (g *Grid) sealBorder(outside float32) {
	nx, ny, nz := g.Dims[0], g.Dims[1], g.Dims[2]
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if i == 0 || j == 0 || k == 0 || i == nx-1 || j == ny-1 || k == nz-1 {
					idx := g.Index(i, j, k)
					if g.Samples[idx] < outside {
						g.Samples[idx] = outside
					}
				}
			}
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
