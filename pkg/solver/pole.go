package solver

import (
	"math"

	"github.com/kelpfield/riggen/pkg/vec"
)

// DefaultMinPoleAngle is the minimum angle in degrees between the pole
// direction and the limb-plane normal below which a pole placement is
// rejected.
const DefaultMinPoleAngle = 5.0

// poleOffset is how far along the plane normal a corrected pole position
// is pushed from the mid joint.
const poleOffset = 5.0

// PoleCheck is the result of [ValidatePole].
type PoleCheck struct {
	// Valid reports whether the candidate position is usable as-is.
	Valid bool
	// AngleDeg is the measured angle between the mid-to-pole direction
	// and the limb-plane normal. Zero when the pole coincides with the
	// mid joint.
	AngleDeg float64
	// Suggested is the candidate itself when valid, otherwise a corrected
	// position offset from the mid joint along the plane normal.
	Suggested vec.Vec3
}

// ValidatePole checks a candidate pole-vector position against the limb
// plane spanned by root, mid and end. A collinear limb never fails: the
// plane normal falls back to world Y, or world Z when the limb runs along
// world Y. Passing 0 for minAngleDeg selects [DefaultMinPoleAngle].
func ValidatePole(root, mid, end, pole vec.Vec3, minAngleDeg float64) PoleCheck {
	if minAngleDeg == 0 {
		minAngleDeg = DefaultMinPoleAngle
	}

	bone1 := mid.Sub(root)
	bone2 := end.Sub(mid)
	normal := bone1.Cross(bone2).Unit()
	if normal.IsZero() {
		normal = vec.WorldY
		if math.Abs(bone1.Unit().Dot(vec.WorldY)) > vec.NearParallelDot {
			normal = vec.WorldZ
		}
	}

	toPole := pole.Sub(mid)
	if toPole.Norm() < vec.Epsilon {
		return PoleCheck{Suggested: mid.Add(normal.Scale(poleOffset))}
	}

	angle := vec.Degrees(math.Acos(vec.Clamp(toPole.Unit().Dot(normal), -1, 1)))
	if math.Abs(angle) < minAngleDeg {
		return PoleCheck{AngleDeg: angle, Suggested: mid.Add(normal.Scale(poleOffset))}
	}
	return PoleCheck{Valid: true, AngleDeg: angle, Suggested: pole}
}
