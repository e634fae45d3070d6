// Package vec provides the 3D vector math used by the rig construction core.
//
// The package wraps gonum's spatial/r3 vectors with the chain-safe operations
// the solvers need: normalization that floors degenerate lengths to zero,
// plane fitting with deterministic fallbacks, planarity testing and
// enforcement, and orthonormal basis construction with conversions to 4x4
// matrices and XYZ Euler angles.
//
// # Degeneracy handling
//
// Guide points are user-placed and frequently degenerate: coincident points,
// collinear chains, segments shorter than working precision. Every operation
// here has a defined result for those inputs instead of an error or a NaN.
// The threshold for "degenerate" is [Epsilon]; vectors shorter than that
// normalize to the zero vector, and callers branch on [Vec3.IsZero].
//
// # Conventions
//
// Rotations are XYZ Euler angles in degrees; the corresponding matrix is
// built as Rz·Ry·Rx (X applied first). Bases are right-handed with local X
// as the aim axis, Y as up, and Z as side.
package vec

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r3"
)

// Epsilon is the length below which a vector is treated as degenerate.
const Epsilon = 1e-4

// NearParallelDot is the |dot| threshold above which two unit vectors are
// treated as parallel for fallback selection.
const NearParallelDot = 0.99

// Vec3 is a point or direction in 3D space.
type Vec3 struct {
	r3.Vec
}

// New constructs a Vec3 from components.
func New(x, y, z float64) Vec3 {
	return Vec3{r3.Vec{X: x, Y: y, Z: z}}
}

// World axis directions.
var (
	WorldX = New(1, 0, 0)
	WorldY = New(0, 1, 0)
	WorldZ = New(0, 0, 1)
)

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{r3.Add(v.Vec, w.Vec)}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{r3.Sub(v.Vec, w.Vec)}
}

// Scale returns v scaled by f.
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{r3.Scale(f, v.Vec)}
}

// Dot returns the dot product of v and w.
func (v Vec3) Dot(w Vec3) float64 {
	return r3.Dot(v.Vec, w.Vec)
}

// Cross returns the cross product v × w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{r3.Cross(v.Vec, w.Vec)}
}

// Norm returns the length of v.
func (v Vec3) Norm() float64 {
	return r3.Norm(v.Vec)
}

// Unit returns v normalized to unit length.
// Vectors shorter than [Epsilon] normalize to the zero vector.
func (v Vec3) Unit() Vec3 {
	if r3.Norm(v.Vec) < Epsilon {
		return Vec3{}
	}
	return Vec3{r3.Unit(v.Vec)}
}

// IsZero reports whether v is degenerate (length below [Epsilon]).
func (v Vec3) IsZero() bool {
	return r3.Norm(v.Vec) < Epsilon
}

// Distance returns the distance between points v and w.
func (v Vec3) Distance(w Vec3) float64 {
	return r3.Norm(r3.Sub(w.Vec, v.Vec))
}

// Mid returns the midpoint of v and w.
func (v Vec3) Mid(w Vec3) Vec3 {
	return Vec3{r3.Scale(0.5, r3.Add(v.Vec, w.Vec))}
}

// AngleTo returns the angle between v and w in radians.
// The acos argument is clamped to [-1, 1] so accumulated floating error
// never produces NaN. Degenerate inputs yield 0.
func (v Vec3) AngleTo(w Vec3) float64 {
	a, b := v.Unit(), w.Unit()
	if a.IsZero() || b.IsZero() {
		return 0
	}
	return math.Acos(Clamp(a.Dot(b), -1, 1))
}

// AngleToDeg returns the angle between v and w in degrees.
func (v Vec3) AngleToDeg(w Vec3) float64 {
	return Degrees(v.AngleTo(w))
}

// Array returns the components as a fixed-size array.
func (v Vec3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// FromArray constructs a Vec3 from a component array.
func FromArray(a [3]float64) Vec3 {
	return New(a[0], a[1], a[2])
}

// Mgl converts v to an mgl64 vector.
func (v Vec3) Mgl() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// FromMgl converts an mgl64 vector to a Vec3.
func FromMgl(m mgl64.Vec3) Vec3 {
	return New(m.X(), m.Y(), m.Z())
}

// Clamp limits x to the range [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}
