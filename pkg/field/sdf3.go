package field

import (
	"math"

	"github.com/chazu/islebake/pkg/shape"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ sdf.SDF3 = (*SDF3)(nil)

// SDF3 exposes a shape list as an sdf.SDF3 so the sdfx renderers and
// helpers can consume it.
type SDF3 struct {
	list shape.List
	bb   sdf.Box3
}

// NewSDF3 wraps a shape list. The bounding box is the list's AABB, or a
// degenerate box at the origin when the list is empty.
func NewSDF3(l shape.List) *SDF3 {
	bb, _ := l.Bounds()
	return &SDF3{list: l, bb: bb}
}

// Evaluate returns the folded distance. +Inf is clamped to the largest
// finite float so renderers that interpolate never see Inf.
func (s *SDF3) Evaluate(p v3.Vec) float64 {
	d := Evaluate(s.list, p)
	if math.IsInf(d, 1) {
		return math.MaxFloat64
	}
	return d
}

// BoundingBox returns the list's AABB.
func (s *SDF3) BoundingBox() sdf.Box3 {
	return s.bb
}
