package hull

import (
	"math"

	"github.com/chazu/islebake/pkg/field"
	"github.com/chazu/islebake/pkg/kernel"
	"github.com/chazu/islebake/pkg/shape"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Set is an ordered list of convex hulls approximating one solid.
type Set []Hull

// Volume sums the hull volumes. Overlaps are counted twice.
func (s Set) Volume() float64 {
	var v float64
	for i := range s {
		v += s[i].Volume()
	}
	return v
}

// PointCount is the total number of hull points.
func (s Set) PointCount() int {
	n := 0
	for _, h := range s {
		n += len(h.Points)
	}
	return n
}

// Decomposer partitions a mesh into convex pieces.
//
// Every welded mesh vertex is assigned to the Union shape whose surface
// it is closest to. Clusters are then merged greedily: the pair whose
// merged hull wastes the least volume goes first, while the weighted
// waste score stays at or below MergeThreshold. The merge order does not
// depend on the threshold, so raising it never yields more hulls.
type Decomposer struct {
	MergeThreshold float64
	// MinPoints drops clusters with fewer welded points before merging.
	MinPoints    int
	WeldDistance float64
}

type cluster struct {
	points []v3.Vec
	hull   Hull
	weight float64 // sum of seed hull weights
	seeds  int
}

func (c *cluster) meanWeight() float64 {
	if c.seeds == 0 {
		return 1
	}
	return c.weight / float64(c.seeds)
}

// Decompose returns the hull set for m. Seeds are the Union shapes of the
// list the mesh was built from; with no seeds the whole mesh becomes one
// cluster. An empty mesh yields an empty set.
func (d Decomposer) Decompose(m *kernel.Mesh, seeds shape.List) Set {
	if m.IsEmpty() {
		return Set{}
	}
	welded := m.Clone()
	welded.Weld(d.WeldDistance)
	clusters := d.filter(d.partition(welded, seeds))

	// Greedy agglomeration. Pair scores are cached and only pairs touching
	// the merged cluster are recomputed.
	type pairKey struct{ i, j int }
	type pairVal struct {
		score float64
		hull  Hull
	}
	scores := map[pairKey]pairVal{}
	score := func(i, j int) pairVal {
		a, b := clusters[i], clusters[j]
		merged := append(append([]v3.Vec(nil), a.hull.Points...), b.hull.Points...)
		h, err := ConvexHull(merged)
		if err != nil {
			return pairVal{score: math.Inf(1)}
		}
		vij := h.Volume()
		if vij <= 0 {
			return pairVal{score: math.Inf(1)}
		}
		w := (a.meanWeight() + b.meanWeight()) / 2
		waste := math.Max(0, 1-(a.hull.Volume()+b.hull.Volume())/vij)
		return pairVal{score: waste * w, hull: h}
	}
	alive := make([]bool, len(clusters))
	for i := range clusters {
		alive[i] = true
		for j := i + 1; j < len(clusters); j++ {
			scores[pairKey{i, j}] = score(i, j)
		}
	}
	for {
		best, bestKey, found := math.Inf(1), pairKey{}, false
		for i := range clusters {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < len(clusters); j++ {
				if !alive[j] {
					continue
				}
				if s := scores[pairKey{i, j}].score; s < best {
					best, bestKey, found = s, pairKey{i, j}, true
				}
			}
		}
		if !found || best > d.MergeThreshold {
			break
		}
		a, b := clusters[bestKey.i], clusters[bestKey.j]
		a.points = append(a.points, b.points...)
		a.weight += b.weight
		a.seeds += b.seeds
		a.hull = scores[bestKey].hull
		alive[bestKey.j] = false
		for k := range clusters {
			if k == bestKey.i || !alive[k] {
				continue
			}
			i, j := min(k, bestKey.i), max(k, bestKey.i)
			scores[pairKey{i, j}] = score(i, j)
		}
	}

	out := Set{}
	for i, c := range clusters {
		if alive[i] {
			out = append(out, c.hull)
		}
	}
	return out
}

// filter drops clusters without a valid hull or with fewer than
// MinPoints points. When nothing survives, the largest valid cluster is
// kept so a non-empty mesh always has collision.
func (d Decomposer) filter(in []*cluster) []*cluster {
	var out []*cluster
	var largest *cluster
	for _, c := range in {
		h, err := ConvexHull(c.points)
		if err != nil {
			continue
		}
		c.hull = h
		if largest == nil || len(c.points) > len(largest.points) {
			largest = c
		}
		if len(c.points) >= d.MinPoints {
			out = append(out, c)
		}
	}
	if len(out) == 0 && largest != nil {
		out = append(out, largest)
	}
	return out
}

// partition assigns each welded vertex to its nearest seed. Seeds that
// receive no points are dropped.
func (d Decomposer) partition(m *kernel.Mesh, seeds shape.List) []*cluster {
	if len(seeds) == 0 {
		c := &cluster{}
		for i := 0; i < m.VertexCount(); i++ {
			c.points = append(c.points, m.Vertex(i))
		}
		return []*cluster{c}
	}
	clusters := make([]*cluster, len(seeds))
	for i, s := range seeds {
		clusters[i] = &cluster{weight: s.HullWeight, seeds: 1}
		if clusters[i].weight <= 0 {
			clusters[i].weight = 1
		}
	}
	for i := 0; i < m.VertexCount(); i++ {
		p := m.Vertex(i)
		best, bestD := 0, math.Inf(1)
		for si, s := range seeds {
			if dist := math.Abs(field.Shape(s, p)); dist < bestD {
				best, bestD = si, dist
			}
		}
		clusters[best].points = append(clusters[best].points, p)
	}
	out := clusters[:0]
	for _, c := range clusters {
		if len(c.points) > 0 {
			out = append(out, c)
		}
	}
	return out
}
