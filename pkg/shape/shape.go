// Package shape defines the primitive solids an island is sculpted from.
// A Shape is a plain value: kind, boolean operation, local transform and
// a few per-shape tunables. Shapes are snapshotted into a List when a
// builder serializes and never mutated afterwards.
package shape

import (
	"fmt"
	"math"
	"strings"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Kind identifies the primitive a Shape describes.
type Kind int

const (
	Box Kind = iota
	Sphere
	Cylinder
	Torus
)

var kindNames = [...]string{"box", "sphere", "cylinder", "torus"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a kind name such as "box" or "torus".
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("shape: unknown kind %q", s)
}

// Operation is the boolean combination applied when a shape is folded
// into the running field.
type Operation int

const (
	Union Operation = iota
	Intersect
	Subtract
)

var operationNames = [...]string{"union", "intersect", "subtract"}

func (o Operation) String() string {
	if o < 0 || int(o) >= len(operationNames) {
		return fmt.Sprintf("operation(%d)", int(o))
	}
	return operationNames[o]
}

// ParseOperation resolves an operation name. "difference" is accepted as
// an alias for subtract.
func ParseOperation(s string) (Operation, error) {
	if strings.EqualFold(s, "difference") {
		return Subtract, nil
	}
	for i, name := range operationNames {
		if strings.EqualFold(s, name) {
			return Operation(i), nil
		}
	}
	return 0, fmt.Errorf("shape: unknown operation %q", s)
}

// Shape is one primitive placed in builder-local space.
//
// Dimensions are interpreted per kind:
//   - Box: Size is the full extent along each axis.
//   - Sphere: Radius.
//   - Cylinder: Radius and Height, axis along local Y.
//   - Torus: Radius is the major radius in the local XZ plane, Ring the
//     minor (tube) radius.
//
// EdgeRadius rounds the edges of boxes and cylinders. A negative value
// means "inherit the build default" and is resolved by WithDefaults.
type Shape struct {
	Kind       Kind
	Operation  Operation
	Transform  Transform
	Size       v3.Vec
	Radius     float64
	Height     float64
	Ring       float64
	EdgeRadius float64
	HullWeight float64
}

// New returns a unit shape of the given kind at the origin.
func New(kind Kind, op Operation) Shape {
	return Shape{
		Kind:       kind,
		Operation:  op,
		Transform:  Identity(),
		Size:       v3.Vec{X: 1, Y: 1, Z: 1},
		Radius:     0.5,
		Height:     1,
		Ring:       0.25,
		EdgeRadius: -1,
		HullWeight: 1,
	}
}

// WithDefaults resolves inherited tunables and clamps the edge radius so
// the rounded formulas never invert the primitive.
func (s Shape) WithDefaults(edgeRadius float64) Shape {
	if s.EdgeRadius < 0 {
		s.EdgeRadius = edgeRadius
	}
	if s.EdgeRadius < 0 {
		s.EdgeRadius = 0
	}
	switch s.Kind {
	case Box:
		s.EdgeRadius = math.Min(s.EdgeRadius, 0.5*s.Size.Abs().MinComponent())
	case Cylinder:
		s.EdgeRadius = math.Min(s.EdgeRadius, math.Min(math.Abs(s.Radius), 0.5*math.Abs(s.Height)))
	default:
		s.EdgeRadius = 0
	}
	if s.HullWeight <= 0 {
		s.HullWeight = 1
	}
	return s
}

// LocalBounds is the primitive's AABB before its transform is applied.
func (s Shape) LocalBounds() sdf.Box3 {
	var half v3.Vec
	switch s.Kind {
	case Box:
		half = s.Size.Abs().MulScalar(0.5)
	case Sphere:
		r := math.Abs(s.Radius)
		half = v3.Vec{X: r, Y: r, Z: r}
	case Cylinder:
		r := math.Abs(s.Radius)
		half = v3.Vec{X: r, Y: 0.5 * math.Abs(s.Height), Z: r}
	case Torus:
		outer := math.Abs(s.Radius) + math.Abs(s.Ring)
		half = v3.Vec{X: outer, Y: math.Abs(s.Ring), Z: outer}
	}
	return sdf.Box3{Min: half.Neg(), Max: half}
}

// Bounds is a conservative AABB of the shape in builder-local space: the
// box around all eight transformed corners of LocalBounds.
func (s Shape) Bounds() sdf.Box3 {
	lb := s.LocalBounds()
	m := s.Transform.Matrix()
	var out sdf.Box3
	for i := 0; i < 8; i++ {
		c := v3.Vec{X: lb.Min.X, Y: lb.Min.Y, Z: lb.Min.Z}
		if i&1 != 0 {
			c.X = lb.Max.X
		}
		if i&2 != 0 {
			c.Y = lb.Max.Y
		}
		if i&4 != 0 {
			c.Z = lb.Max.Z
		}
		w := apply(m, c)
		if i == 0 {
			out = sdf.Box3{Min: w, Max: w}
			continue
		}
		out = out.Include(w)
	}
	return out
}

// Describe is a short human-readable summary used in logs.
func (s Shape) Describe() string {
	p := s.Transform.Position
	return fmt.Sprintf("%s %s at (%.3g, %.3g, %.3g)", s.Operation, s.Kind, p.X, p.Y, p.Z)
}
