package solver

import (
	"math"
	"testing"

	"github.com/kelpfield/riggen/pkg/vec"
)

func vecApprox(a, b vec.Vec3, tol float64) bool {
	return math.Abs(a.X-b.X) < tol && math.Abs(a.Y-b.Y) < tol && math.Abs(a.Z-b.Z) < tol
}

func TestSegmentBasesLimbGuides(t *testing.T) {
	positions := []vec.Vec3{
		vec.New(0, 15, 0),
		vec.New(10, 15, -2),
		vec.New(15, 15, 0),
	}
	bases := SegmentBases(positions, OrientOptions{})
	if len(bases) != 2 {
		t.Fatalf("len(bases) = %d, want 2", len(bases))
	}

	wantAim := vec.New(10, 0, -2).Unit()
	if !vecApprox(bases[0].Aim, wantAim, 1e-9) {
		t.Errorf("bases[0].Aim = %v, want %v", bases[0].Aim, wantAim)
	}

	for i, b := range bases {
		if math.Abs(b.Aim.Norm()-1) > 1e-6 {
			t.Errorf("bases[%d].Aim length = %v, want 1", i, b.Aim.Norm())
		}
		if d := math.Abs(b.Aim.Dot(b.Up)); d >= 1e-5 {
			t.Errorf("bases[%d] aim/up dot = %v, want < 1e-5", i, d)
		}
	}
}

func TestSegmentBasesOrthonormal(t *testing.T) {
	positions := []vec.Vec3{
		vec.New(0, 0, 0),
		vec.New(3, 4, 1),
		vec.New(5, 2, -2),
		vec.New(9, 3, 0),
	}
	for i, b := range SegmentBases(positions, OrientOptions{}) {
		if math.Abs(b.Aim.Norm()-1) > 1e-6 || math.Abs(b.Up.Norm()-1) > 1e-6 {
			t.Errorf("bases[%d] axes not unit length: aim %v up %v", i, b.Aim.Norm(), b.Up.Norm())
		}
		if d := math.Abs(b.Aim.Dot(b.Up)); d >= 1e-5 {
			t.Errorf("bases[%d] aim/up dot = %v", i, d)
		}
		if !vecApprox(b.Side, b.Aim.Cross(b.Up), 1e-9) {
			t.Errorf("bases[%d].Side = %v, want aim x up", i, b.Side)
		}
		want := positions[i+1].Sub(positions[i]).Unit()
		if !vecApprox(b.Aim, want, 1e-9) {
			t.Errorf("bases[%d].Aim = %v, want %v", i, b.Aim, want)
		}
	}
}

func TestChainBasesTerminalInherits(t *testing.T) {
	positions := []vec.Vec3{
		vec.New(0, 15, 0),
		vec.New(10, 15, -2),
		vec.New(15, 15, 0),
	}
	bases := ChainBases(positions, OrientOptions{})
	if len(bases) != 3 {
		t.Fatalf("len(bases) = %d, want 3", len(bases))
	}
	if bases[2] != bases[1] {
		t.Errorf("terminal basis = %+v, want copy of penultimate %+v", bases[2], bases[1])
	}
}

func TestChainBasesShort(t *testing.T) {
	if got := ChainBases(nil, OrientOptions{}); got != nil {
		t.Errorf("ChainBases(nil) = %v, want nil", got)
	}
	got := ChainBases([]vec.Vec3{vec.New(1, 2, 3)}, OrientOptions{})
	if len(got) != 1 || got[0] != vec.IdentityBasis() {
		t.Errorf("ChainBases(single) = %v, want identity", got)
	}
}

func TestSegmentBasesCoincidentPoints(t *testing.T) {
	positions := []vec.Vec3{vec.New(2, 2, 2), vec.New(2, 2, 2)}
	bases := SegmentBases(positions, OrientOptions{})
	if !vecApprox(bases[0].Aim, vec.WorldX, 1e-9) {
		t.Errorf("collapsed segment aim = %v, want world X", bases[0].Aim)
	}
}

func TestSegmentBasesPole(t *testing.T) {
	positions := []vec.Vec3{
		vec.New(0, 0, 0),
		vec.New(10, 0, 0),
		vec.New(20, 0, 0),
	}
	pole := vec.New(5, 0, 10)
	bases := SegmentBases(positions, OrientOptions{Pole: &pole})

	// first joint: up points at the pole, projected off the aim axis
	if !vecApprox(bases[0].Up, vec.New(0, 0, 1), 1e-9) {
		t.Errorf("bases[0].Up = %v, want (0 0 1)", bases[0].Up)
	}
	// later joints ignore the pole and use the hint cascade
	if !vecApprox(bases[1].Up, vec.New(0, 1, 0), 1e-9) {
		t.Errorf("bases[1].Up = %v, want (0 1 0)", bases[1].Up)
	}
}

func TestSegmentBasesPoleOnAimAxis(t *testing.T) {
	positions := []vec.Vec3{vec.New(0, 0, 0), vec.New(10, 0, 0)}
	pole := vec.New(5, 0, 0)
	bases := SegmentBases(positions, OrientOptions{Pole: &pole})
	// no perpendicular component survives, so the hint cascade takes over
	if !vecApprox(bases[0].Up, vec.New(0, 1, 0), 1e-9) {
		t.Errorf("bases[0].Up = %v, want (0 1 0)", bases[0].Up)
	}
}

func TestSegmentBasesVerticalChain(t *testing.T) {
	positions := []vec.Vec3{vec.New(0, 0, 0), vec.New(0, 10, 0)}
	bases := SegmentBases(positions, OrientOptions{})
	// default hint runs along the chain, world Z takes its place
	if !vecApprox(bases[0].Up, vec.New(0, 0, 1), 1e-9) {
		t.Errorf("bases[0].Up = %v, want (0 0 1)", bases[0].Up)
	}
}

func TestSegmentBasesCustomHint(t *testing.T) {
	positions := []vec.Vec3{vec.New(0, 0, 0), vec.New(10, 0, 0)}
	bases := SegmentBases(positions, OrientOptions{UpHint: vec.New(0, 0, 1)})
	if !vecApprox(bases[0].Up, vec.New(0, 0, 1), 1e-9) {
		t.Errorf("bases[0].Up = %v, want (0 0 1)", bases[0].Up)
	}
}
