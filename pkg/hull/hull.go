// Package hull computes convex hulls and approximate convex
// decompositions of meshes for physics collision.
package hull

import (
	"errors"
	"math"
	"sort"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrDegenerate is returned when the points do not span a volume.
var ErrDegenerate = errors.New("hull: points are coplanar or degenerate")

// Hull is a closed convex polyhedron. Faces index Points and wind
// counter-clockwise seen from outside.
type Hull struct {
	Points []v3.Vec
	Faces  [][3]int
}

// Volume of the hull.
func (h *Hull) Volume() float64 {
	if len(h.Faces) == 0 {
		return 0
	}
	c := h.centroid()
	var v float64
	for _, f := range h.Faces {
		a, b, d := h.Points[f[0]].Sub(c), h.Points[f[1]].Sub(c), h.Points[f[2]].Sub(c)
		v += a.Dot(b.Cross(d))
	}
	return v / 6
}

// Contains reports whether p lies inside or on the hull, within eps.
func (h *Hull) Contains(p v3.Vec, eps float64) bool {
	if len(h.Faces) == 0 {
		return false
	}
	for _, f := range h.Faces {
		a := h.Points[f[0]]
		n := h.Points[f[1]].Sub(a).Cross(h.Points[f[2]].Sub(a))
		l := n.Length()
		if l == 0 {
			continue
		}
		if n.Dot(p.Sub(a))/l > eps {
			return false
		}
	}
	return true
}

// Bounds is the AABB of the hull points.
func (h *Hull) Bounds() sdf.Box3 {
	if len(h.Points) == 0 {
		return sdf.Box3{}
	}
	bb := sdf.Box3{Min: h.Points[0], Max: h.Points[0]}
	for _, p := range h.Points[1:] {
		bb = bb.Include(p)
	}
	return bb
}

func (h *Hull) centroid() v3.Vec {
	var c v3.Vec
	for _, p := range h.Points {
		c = c.Add(p)
	}
	return c.DivScalar(float64(len(h.Points)))
}

type face struct {
	v       [3]int
	n       v3.Vec
	d       float64
	outside []int // conflict list: points strictly above this face
	alive   bool
}

func makeFace(pts []v3.Vec, a, b, c int) face {
	n := pts[b].Sub(pts[a]).Cross(pts[c].Sub(pts[a]))
	if l := n.Length(); l > 0 {
		n = n.DivScalar(l)
	}
	return face{v: [3]int{a, b, c}, n: n, d: n.Dot(pts[a]), alive: true}
}

func (f *face) distance(p v3.Vec) float64 {
	return f.n.Dot(p) - f.d
}

// quickhull is the working state of one ConvexHull call. Edges map each
// directed edge to the live face that owns it, so the face across edge
// (a, b) is the owner of (b, a).
type quickhull struct {
	pts   []v3.Vec
	eps   float64
	faces []face
	edges map[[2]int]int
}

// ConvexHull computes the hull of points with quickhull: every point is
// kept in the conflict list of one face it lies above, and the furthest
// conflict point is added first. Points within a tolerance scaled to the
// coordinates are treated as lying on the hull and dropped. The input
// order does not affect the resulting shape.
func ConvexHull(points []v3.Vec) (Hull, error) {
	pts := dedupe(points)
	if len(pts) < 4 {
		return Hull{}, ErrDegenerate
	}
	var maxAbs v3.Vec
	for _, p := range pts {
		maxAbs = maxAbs.Max(p.Abs())
	}
	bb := sdf.Box3{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		bb = bb.Include(p)
	}
	scale := bb.Size().MaxComponent()
	if scale == 0 {
		return Hull{}, ErrDegenerate
	}
	// Rounding bound of the plane distance, widened to a relative
	// tolerance so near-coplanar points do not fragment flat faces.
	eps := math.Max(3*2.2e-16*(maxAbs.X+maxAbs.Y+maxAbs.Z), 1e-9*scale)

	i0, i1, i2, i3, ok := initialSimplex(pts, eps)
	if !ok {
		return Hull{}, ErrDegenerate
	}

	qh := &quickhull{pts: pts, eps: eps, edges: make(map[[2]int]int)}
	simplex := [][3]int{{i0, i1, i2}, {i0, i2, i3}, {i0, i3, i1}, {i1, i3, i2}}
	// Orient outward relative to the simplex centroid, which stays inside
	// every later hull.
	centroid := pts[i0].Add(pts[i1]).Add(pts[i2]).Add(pts[i3]).DivScalar(4)
	for _, v := range simplex {
		f := makeFace(pts, v[0], v[1], v[2])
		if f.distance(centroid) > 0 {
			f = makeFace(pts, v[0], v[2], v[1])
		}
		qh.add(f)
	}

	seed := make([]int, 0, len(pts))
	for pi := range pts {
		if pi != i0 && pi != i1 && pi != i2 && pi != i3 {
			seed = append(seed, pi)
		}
	}
	qh.assign(seed, []int{0, 1, 2, 3})

	// Every iteration removes one point from the conflict lists for good,
	// either by adding it to the hull or by dropping it.
	for {
		fi := qh.nextFace()
		if fi < 0 {
			break
		}
		qh.expand(fi)
	}
	return compact(pts, qh.faces), nil
}

func (qh *quickhull) add(f face) int {
	fi := len(qh.faces)
	qh.faces = append(qh.faces, f)
	for e := 0; e < 3; e++ {
		qh.edges[[2]int{f.v[e], f.v[(e+1)%3]}] = fi
	}
	return fi
}

func (qh *quickhull) kill(fi int) {
	f := &qh.faces[fi]
	f.alive = false
	f.outside = nil
	for e := 0; e < 3; e++ {
		key := [2]int{f.v[e], f.v[(e+1)%3]}
		if qh.edges[key] == fi {
			delete(qh.edges, key)
		}
	}
}

// assign moves each point to the conflict list of the candidate face it
// lies furthest above. Points above no face are inside and dropped.
func (qh *quickhull) assign(points, candidates []int) {
	for _, pi := range points {
		best, bestD := -1, qh.eps
		for _, fi := range candidates {
			if d := qh.faces[fi].distance(qh.pts[pi]); d > bestD {
				best, bestD = fi, d
			}
		}
		if best >= 0 {
			qh.faces[best].outside = append(qh.faces[best].outside, pi)
		}
	}
}

// nextFace returns the first live face with pending points, or -1.
func (qh *quickhull) nextFace() int {
	for fi := range qh.faces {
		if qh.faces[fi].alive && len(qh.faces[fi].outside) > 0 {
			return fi
		}
	}
	return -1
}

// expand adds the furthest conflict point of face fi to the hull.
func (qh *quickhull) expand(fi int) {
	f := &qh.faces[fi]
	eyeAt, eyeD := 0, math.Inf(-1)
	for k, pi := range f.outside {
		if d := f.distance(qh.pts[pi]); d > eyeD {
			eyeAt, eyeD = k, d
		}
	}
	eye := f.outside[eyeAt]
	f.outside = append(f.outside[:eyeAt], f.outside[eyeAt+1:]...)
	p := qh.pts[eye]

	// The visible set is grown from fi across shared edges, so it is
	// connected.
	visible := []int{fi}
	seen := map[int]bool{fi: true}
	for k := 0; k < len(visible); k++ {
		v := qh.faces[visible[k]].v
		for e := 0; e < 3; e++ {
			nb, ok := qh.edges[[2]int{v[(e+1)%3], v[e]}]
			if !ok || seen[nb] {
				continue
			}
			seen[nb] = true
			if qh.faces[nb].distance(p) > qh.eps {
				visible = append(visible, nb)
			}
		}
	}

	horizon, ok := qh.horizon(visible)
	if !ok {
		// Rounding made the visible region something other than a disk.
		// The eye is within a few ulps of the faces it disagrees with, so
		// leaving it out keeps the hull closed at negligible cost.
		return
	}

	var orphans []int
	for _, vi := range visible {
		orphans = append(orphans, qh.faces[vi].outside...)
		qh.kill(vi)
	}
	created := make([]int, 0, len(horizon))
	for _, e := range horizon {
		created = append(created, qh.add(makeFace(qh.pts, e[0], e[1], eye)))
	}
	qh.assign(orphans, created)
}

// horizon returns the boundary edges of the visible set as one ordered
// loop, wound like the visible faces. It fails when the boundary is not a
// single simple loop.
func (qh *quickhull) horizon(visible []int) ([][2]int, bool) {
	isVisible := make(map[int]bool, len(visible))
	for _, vi := range visible {
		isVisible[vi] = true
	}
	next := map[int]int{}
	count := 0
	start := -1
	for _, vi := range visible {
		v := qh.faces[vi].v
		for e := 0; e < 3; e++ {
			a, b := v[e], v[(e+1)%3]
			nb, ok := qh.edges[[2]int{b, a}]
			if ok && isVisible[nb] {
				continue
			}
			if _, dup := next[a]; dup {
				return nil, false
			}
			next[a] = b
			count++
			if start < 0 {
				start = a
			}
		}
	}
	if count < 3 {
		return nil, false
	}
	loop := make([][2]int, 0, count)
	for a := start; ; {
		b, ok := next[a]
		if !ok {
			return nil, false
		}
		loop = append(loop, [2]int{a, b})
		a = b
		if a == start {
			break
		}
		if len(loop) > count {
			return nil, false
		}
	}
	return loop, len(loop) == count
}

// initialSimplex picks four well spread, non-coplanar points: the most
// distant pair of axis extremes, the point furthest from their line and
// the point furthest from that plane.
func initialSimplex(pts []v3.Vec, eps float64) (int, int, int, int, bool) {
	var ext [6]int
	for i, p := range pts {
		if p.X < pts[ext[0]].X {
			ext[0] = i
		}
		if p.X > pts[ext[1]].X {
			ext[1] = i
		}
		if p.Y < pts[ext[2]].Y {
			ext[2] = i
		}
		if p.Y > pts[ext[3]].Y {
			ext[3] = i
		}
		if p.Z < pts[ext[4]].Z {
			ext[4] = i
		}
		if p.Z > pts[ext[5]].Z {
			ext[5] = i
		}
	}
	i0, i1, best := -1, -1, eps
	for a := 0; a < 6; a++ {
		for b := a + 1; b < 6; b++ {
			if d := pts[ext[a]].Sub(pts[ext[b]]).Length(); d > best {
				i0, i1, best = ext[a], ext[b], d
			}
		}
	}
	if i0 < 0 {
		return 0, 0, 0, 0, false
	}
	axis := pts[i1].Sub(pts[i0]).Normalize()
	i2, best := -1, eps
	for i, p := range pts {
		r := p.Sub(pts[i0])
		if d := r.Sub(axis.MulScalar(r.Dot(axis))).Length(); d > best {
			i2, best = i, d
		}
	}
	if i2 < 0 {
		return 0, 0, 0, 0, false
	}
	n := pts[i1].Sub(pts[i0]).Cross(pts[i2].Sub(pts[i0])).Normalize()
	i3, best := -1, eps*100
	for i, p := range pts {
		if d := math.Abs(n.Dot(p.Sub(pts[i0]))); d > best {
			i3, best = i, d
		}
	}
	if i3 < 0 {
		return 0, 0, 0, 0, false
	}
	return i0, i1, i2, i3, true
}

// compact keeps only points referenced by live faces and reindexes.
func compact(pts []v3.Vec, faces []face) Hull {
	remap := map[int]int{}
	var h Hull
	for _, f := range faces {
		if !f.alive {
			continue
		}
		var out [3]int
		for k, vi := range f.v {
			ni, ok := remap[vi]
			if !ok {
				ni = len(h.Points)
				remap[vi] = ni
				h.Points = append(h.Points, pts[vi])
			}
			out[k] = ni
		}
		h.Faces = append(h.Faces, out)
	}
	return h
}

// dedupe drops exact duplicates and sorts points lexicographically so the
// hull does not depend on input order.
func dedupe(points []v3.Vec) []v3.Vec {
	pts := append([]v3.Vec(nil), points...)
	sort.Slice(pts, func(i, j int) bool {
		a, b := pts[i], pts[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	out := pts[:0]
	for i, p := range pts {
		if i > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}
