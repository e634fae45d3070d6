package vec

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Basis is a right-handed orthonormal orientation frame.
// Aim is the local X axis, Up the local Y axis, Side the local Z axis.
type Basis struct {
	Aim  Vec3
	Up   Vec3
	Side Vec3
}

// IdentityBasis returns the world-aligned frame.
func IdentityBasis() Basis {
	return Basis{Aim: WorldX, Up: WorldY, Side: WorldZ}
}

// NewBasis builds an orthonormal frame from an aim and an approximate up
// direction. Side is aim × up; up is recomputed as side × aim so the frame
// is exactly orthonormal even when the inputs are not quite perpendicular.
// Degenerate inputs (zero aim, up parallel to aim) yield the identity frame.
func NewBasis(aim, up Vec3) Basis {
	a := aim.Unit()
	if a.IsZero() {
		return IdentityBasis()
	}
	s := a.Cross(up).Unit()
	if s.IsZero() {
		return IdentityBasis()
	}
	return Basis{Aim: a, Up: s.Cross(a).Unit(), Side: s}
}

// Mat4 returns the rotation matrix whose columns are the frame axes.
func (b Basis) Mat4() mgl64.Mat4 {
	return mgl64.Mat4{
		b.Aim.X, b.Aim.Y, b.Aim.Z, 0,
		b.Up.X, b.Up.Y, b.Up.Z, 0,
		b.Side.X, b.Side.Y, b.Side.Z, 0,
		0, 0, 0, 1,
	}
}

// Quat returns the frame as a rotation quaternion.
func (b Basis) Quat() mgl64.Quat {
	return mgl64.Mat4ToQuat(b.Mat4())
}

// BasisFromMat4 extracts the rotation frame from the upper-left 3x3 of m.
// Translation and any scale in m are ignored; the axes are re-normalized.
func BasisFromMat4(m mgl64.Mat4) Basis {
	return Basis{
		Aim:  FromMgl(m.Col(0).Vec3()).Unit(),
		Up:   FromMgl(m.Col(1).Vec3()).Unit(),
		Side: FromMgl(m.Col(2).Vec3()).Unit(),
	}
}

// TranslationOf returns the translation column of m as a point.
func TranslationOf(m mgl64.Mat4) Vec3 {
	return FromMgl(m.Col(3).Vec3())
}

// TRMat4 composes a translation and a rotation frame into a transform.
func TRMat4(t Vec3, b Basis) mgl64.Mat4 {
	m := b.Mat4()
	m[12] = t.X
	m[13] = t.Y
	m[14] = t.Z
	return m
}

// EulerMat4 builds a rotation matrix from XYZ Euler angles in degrees.
// The X rotation is applied first: R = Rz·Ry·Rx.
func EulerMat4(deg [3]float64) mgl64.Mat4 {
	rx := mgl64.HomogRotate3DX(Radians(deg[0]))
	ry := mgl64.HomogRotate3DY(Radians(deg[1]))
	rz := mgl64.HomogRotate3DZ(Radians(deg[2]))
	return rz.Mul4(ry).Mul4(rx)
}

// EulerDegrees extracts XYZ Euler angles in degrees from a rotation matrix,
// inverting [EulerMat4]. At the gimbal singularity (Y rotation of ±90°) the
// Z angle is fixed at zero and the full twist is reported on X.
func EulerDegrees(m mgl64.Mat4) [3]float64 {
	sy := Clamp(-m.At(2, 0), -1, 1)
	y := math.Asin(sy)

	var x, z float64
	if math.Abs(sy) < 1-1e-9 {
		x = math.Atan2(m.At(2, 1), m.At(2, 2))
		z = math.Atan2(m.At(1, 0), m.At(0, 0))
	} else {
		x = math.Atan2(-m.At(1, 2), m.At(1, 1))
		z = 0
	}

	return [3]float64{Degrees(x), Degrees(y), Degrees(z)}
}

// EulerBasis builds an orientation frame from XYZ Euler angles in degrees.
func EulerBasis(deg [3]float64) Basis {
	return BasisFromMat4(EulerMat4(deg))
}
