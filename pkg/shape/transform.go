package shape

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/go-gl/mathgl/mgl64"
)

// Transform is a translate-rotate-scale placement. Scale may be
// non-uniform; the composed matrix is T * R * S.
type Transform struct {
	Position v3.Vec
	Rotation mgl64.Quat
	Scale    v3.Vec
}

// Identity returns the transform that leaves points unchanged.
func Identity() Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    v3.Vec{X: 1, Y: 1, Z: 1},
	}
}

// Euler builds a rotation from XYZ Euler angles given in degrees.
func Euler(x, y, z float64) mgl64.Quat {
	return mgl64.AnglesToQuat(mgl64.DegToRad(x), mgl64.DegToRad(y), mgl64.DegToRad(z), mgl64.XYZ)
}

func (t Transform) rotation() mgl64.Quat {
	if t.Rotation.Len() == 0 {
		return mgl64.QuatIdent()
	}
	return t.Rotation.Normalize()
}

// Matrix returns the local-to-parent matrix.
func (t Transform) Matrix() mgl64.Mat4 {
	tr := mgl64.Translate3D(t.Position.X, t.Position.Y, t.Position.Z)
	sc := mgl64.Scale3D(t.Scale.X, t.Scale.Y, t.Scale.Z)
	return tr.Mul4(t.rotation().Mat4()).Mul4(sc)
}

// Inverse returns the parent-to-local matrix. A zero scale axis collapses
// the shape; it is treated as a vanishingly small scale so the inverse
// stays finite.
func (t Transform) Inverse() mgl64.Mat4 {
	s := t.Scale
	s.X = nonZero(s.X)
	s.Y = nonZero(s.Y)
	s.Z = nonZero(s.Z)
	inv := mgl64.Scale3D(1/s.X, 1/s.Y, 1/s.Z)
	inv = inv.Mul4(t.rotation().Conjugate().Mat4())
	return inv.Mul4(mgl64.Translate3D(-t.Position.X, -t.Position.Y, -t.Position.Z))
}

func nonZero(f float64) float64 {
	const eps = 1e-9
	if math.Abs(f) < eps {
		if f < 0 {
			return -eps
		}
		return eps
	}
	return f
}

// ToLocal maps a parent-space point into the shape's local frame.
func (t Transform) ToLocal(p v3.Vec) v3.Vec {
	return apply(t.Inverse(), p)
}

// ToWorld maps a local point into the parent frame.
func (t Transform) ToWorld(p v3.Vec) v3.Vec {
	return apply(t.Matrix(), p)
}

// Then composes t inside parent: the result maps t-local points directly
// into parent's parent frame. Rotation and scale are recovered from the
// product, which is exact unless a non-uniform parent scale shears a
// rotated child; in that case the shear is dropped.
func (t Transform) Then(parent Transform) Transform {
	m := parent.Matrix().Mul4(t.Matrix())
	pos := v3.Vec{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
	cols := [3]mgl64.Vec3{m.Col(0).Vec3(), m.Col(1).Vec3(), m.Col(2).Vec3()}
	scale := v3.Vec{X: cols[0].Len(), Y: cols[1].Len(), Z: cols[2].Len()}
	if m.Mat3().Det() < 0 {
		scale.X = -scale.X
		cols[0] = cols[0].Mul(-1)
	}
	for i, s := range []float64{scale.X, scale.Y, scale.Z} {
		if s != 0 {
			cols[i] = cols[i].Mul(1 / math.Abs(s))
		}
	}
	rot := mgl64.Mat3FromCols(cols[0], cols[1], cols[2])
	return Transform{
		Position: pos,
		Rotation: mgl64.Mat4ToQuat(rot.Mat4()).Normalize(),
		Scale:    scale,
	}
}

// Equal reports whether two transforms are numerically identical.
func (t Transform) Equal(o Transform) bool {
	return t.Position == o.Position && t.Scale == o.Scale &&
		t.Rotation.W == o.Rotation.W && t.Rotation.V == o.Rotation.V
}

func apply(m mgl64.Mat4, p v3.Vec) v3.Vec {
	r := m.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return v3.Vec{X: r[0], Y: r[1], Z: r[2]}
}
