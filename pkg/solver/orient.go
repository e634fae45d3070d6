// Package solver computes joint orientations and validates pole-vector
// placement. Everything here is pure geometry: the functions take and
// return values from pkg/vec and never touch the scene graph, so chain
// construction can apply the results through whatever port it holds.
package solver

import (
	"math"

	"github.com/kelpfield/riggen/pkg/vec"
)

// OrientOptions steer how chain bases are computed.
type OrientOptions struct {
	// Pole, when set, supplies the up reference for the first joint: the
	// component of (pole - joint) perpendicular to the aim axis. Joints
	// past the first always use the hint cascade.
	Pole *vec.Vec3

	// UpHint seeds the fallback cascade. The zero vector means world Y.
	UpHint vec.Vec3
}

// SegmentBases returns one orthonormal basis per chain segment: the aim
// axis points from positions[i] toward positions[i+1], the up axis comes
// from the pole or the hint cascade. For fewer than two positions there
// are no segments and the result is nil.
//
// Degenerate input never fails. A collapsed segment aims down world X,
// and a hint parallel to the aim is replaced before the basis collapses.
func SegmentBases(positions []vec.Vec3, opts OrientOptions) []vec.Basis {
	if len(positions) < 2 {
		return nil
	}
	out := make([]vec.Basis, 0, len(positions)-1)
	for i := 0; i < len(positions)-1; i++ {
		aim := positions[i+1].Sub(positions[i]).Unit()
		if aim.IsZero() {
			aim = vec.WorldX
		}
		var (
			up vec.Vec3
			ok bool
		)
		if i == 0 && opts.Pole != nil {
			up, ok = upFromPole(positions[i], aim, *opts.Pole)
		}
		if !ok {
			up = upFromHint(aim, opts.UpHint)
		}
		out = append(out, vec.NewBasis(aim, up))
	}
	return out
}

// ChainBases returns one basis per joint. The terminal joint has no
// segment of its own and inherits the penultimate basis, which keeps its
// orientation defined without inventing an aim direction. A single
// position gets the identity basis.
func ChainBases(positions []vec.Vec3, opts OrientOptions) []vec.Basis {
	switch len(positions) {
	case 0:
		return nil
	case 1:
		return []vec.Basis{vec.IdentityBasis()}
	}
	segs := SegmentBases(positions, opts)
	return append(segs, segs[len(segs)-1])
}

// upFromPole projects the vector toward the pole onto the plane
// perpendicular to aim. Reports false when the pole sits on the aim axis
// and no usable up direction remains.
func upFromPole(origin, aim, pole vec.Vec3) (vec.Vec3, bool) {
	toPole := pole.Sub(origin)
	perp := toPole.Sub(aim.Scale(toPole.Dot(aim)))
	if perp.Norm() > vec.Epsilon {
		return perp.Unit(), true
	}
	return vec.Vec3{}, false
}

// upFromHint derives an up axis from a hint direction, swapping in world
// Z when the hint runs near-parallel to the aim, then retrying with world
// Z and world X if the side product still collapses.
func upFromHint(aim, hint vec.Vec3) vec.Vec3 {
	if hint.IsZero() {
		hint = vec.WorldY
	}
	h := hint.Unit()
	if math.Abs(aim.Dot(h)) > vec.NearParallelDot {
		h = vec.WorldZ
	}
	side := aim.Cross(h).Unit()
	if side.IsZero() {
		for _, retry := range []vec.Vec3{vec.WorldZ, vec.WorldX} {
			side = aim.Cross(retry).Unit()
			if !side.IsZero() {
				break
			}
		}
	}
	if side.IsZero() {
		return vec.WorldY
	}
	return side.Cross(aim).Unit()
}
