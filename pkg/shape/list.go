package shape

import (
	"github.com/deadsy/sdfx/sdf"
)

// List is an ordered shape snapshot. Order matters: the field folds
// shapes left to right, each through its own operation.
type List []Shape

// Bounds returns the union of every shape's transformed AABB. The second
// result is false when the list is empty.
func (l List) Bounds() (sdf.Box3, bool) {
	if len(l) == 0 {
		return sdf.Box3{}, false
	}
	bb := l[0].Bounds()
	for _, s := range l[1:] {
		bb = bb.Extend(s.Bounds())
	}
	return bb, true
}

// Unions returns the union shapes in list order. They seed collision
// clusters.
func (l List) Unions() List {
	var out List
	for _, s := range l {
		if s.Operation == Union {
			out = append(out, s)
		}
	}
	return out
}

// LeadingNonUnion reports whether the first shape uses an operation other
// than Union. Such shapes fold against an empty field and contribute no
// volume.
func (l List) LeadingNonUnion() bool {
	return len(l) > 0 && l[0].Operation != Union
}

// WithDefaults applies Shape.WithDefaults to a copy of every entry.
func (l List) WithDefaults(edgeRadius float64) List {
	out := make(List, len(l))
	for i, s := range l {
		out[i] = s.WithDefaults(edgeRadius)
	}
	return out
}

// Equal reports element-wise equality.
func (l List) Equal(o List) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		a, b := l[i], o[i]
		if a.Kind != b.Kind || a.Operation != b.Operation || !a.Transform.Equal(b.Transform) ||
			a.Size != b.Size || a.Radius != b.Radius || a.Height != b.Height ||
			a.Ring != b.Ring || a.EdgeRadius != b.EdgeRadius || a.HullWeight != b.HullWeight {
			return false
		}
	}
	return true
}
