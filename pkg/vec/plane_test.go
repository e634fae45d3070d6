package vec

import (
	"math"
	"testing"
)

func TestFitPlane(t *testing.T) {
	tests := []struct {
		name       string
		points     []Vec3
		wantNormal Vec3
		wantFitted bool
	}{
		{
			name:       "triangle in xy plane",
			points:     []Vec3{New(0, 0, 0), New(1, 0, 0), New(0, 1, 0)},
			wantNormal: New(0, 0, 1),
			wantFitted: true,
		},
		{
			name:       "collinear prefix skipped",
			points:     []Vec3{New(0, 0, 0), New(1, 0, 0), New(2, 0, 0), New(2, 1, 0)},
			wantNormal: New(0, 0, 1),
			wantFitted: true,
		},
		{
			name:       "fully collinear falls back to world Y",
			points:     []Vec3{New(0, 0, 0), New(1, 0, 0), New(2, 0, 0), New(3, 0, 0)},
			wantNormal: WorldY,
			wantFitted: false,
		},
		{
			name:       "vertical collinear falls back to world Z",
			points:     []Vec3{New(0, 0, 0), New(0, 1, 0), New(0, 2, 0)},
			wantNormal: WorldZ,
			wantFitted: false,
		},
		{
			name:       "empty",
			points:     nil,
			wantNormal: WorldY,
			wantFitted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl, fitted := FitPlane(tt.points)
			if fitted != tt.wantFitted {
				t.Fatalf("fitted = %v, want %v", fitted, tt.wantFitted)
			}
			// Normal direction may be negated depending on winding; compare up to sign.
			if !vecApproxEq(pl.Normal, tt.wantNormal, 1e-9) && !vecApproxEq(pl.Normal.Scale(-1), tt.wantNormal, 1e-9) {
				t.Errorf("Normal = %v, want %v (up to sign)", pl.Normal, tt.wantNormal)
			}
		})
	}
}

func TestPlaneDistanceProject(t *testing.T) {
	pl := Plane{Anchor: New(0, 0, 0), Normal: New(0, 0, 1)}

	if got := pl.Distance(New(3, 4, 2.5)); !approxEq(got, 2.5, 1e-12) {
		t.Errorf("Distance = %v, want 2.5", got)
	}
	if got := pl.Distance(New(1, 1, -2)); !approxEq(got, -2, 1e-12) {
		t.Errorf("Distance = %v, want -2", got)
	}
	if got := pl.Project(New(3, 4, 2.5)); !vecApproxEq(got, New(3, 4, 0), 1e-12) {
		t.Errorf("Project = %v, want (3,4,0)", got)
	}
}

func TestIsPlanar(t *testing.T) {
	const tol = 0.01

	flat := []Vec3{New(0, 0, 0), New(1, 0, 0), New(0, 1, 0), New(1, 1, 0)}

	tests := []struct {
		name   string
		points []Vec3
		want   bool
	}{
		{"two points", []Vec3{New(0, 0, 0), New(5, 5, 5)}, true},
		{"three points", []Vec3{New(0, 0, 0), New(1, 0, 0), New(9, 9, 9)}, true},
		{"flat quad", flat, true},
		{"point above tolerance", append(append([]Vec3{}, flat...), New(0.5, 0.5, tol+0.001)), false},
		{"point within tolerance", append(append([]Vec3{}, flat...), New(0.5, 0.5, tol-0.001)), true},
		{"collinear chain", []Vec3{New(0, 0, 0), New(1, 1, 1), New(2, 2, 2), New(3, 3, 3)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPlanar(tt.points, tol); got != tt.want {
				t.Errorf("IsPlanar = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPlanarToleranceFlip(t *testing.T) {
	// Pushing one point along the fitted normal past tol flips the result.
	base := []Vec3{New(0, 0, 0), New(10, 0, 0), New(10, 10, 0), New(0, 10, 0)}
	const tol = 0.1

	for _, offset := range []float64{tol - 1e-6, tol + 1e-6} {
		pts := append(append([]Vec3{}, base...), New(5, 5, offset))
		want := offset <= tol
		if got := IsPlanar(pts, tol); got != want {
			t.Errorf("offset %v: IsPlanar = %v, want %v", offset, got, want)
		}
	}
}

func TestMakePlanar(t *testing.T) {
	// A shoulder-elbow-wrist-hand chain with the elbow pushed off plane.
	points := []Vec3{
		New(0, 15, 0),
		New(5, 15.8, -2),
		New(10, 15, -2),
		New(15, 15.4, 0),
	}

	out := MakePlanar(points, true)

	if len(out) != len(points) {
		t.Fatalf("len = %d, want %d", len(out), len(points))
	}
	if !vecApproxEq(out[0], points[0], 1e-12) {
		t.Errorf("first point moved: %v", out[0])
	}

	// Consecutive segment lengths survive flattening.
	for i := 1; i < len(points); i++ {
		wantLen := points[i].Sub(points[i-1]).Norm()
		gotLen := out[i].Sub(out[i-1]).Norm()
		if !approxEq(gotLen, wantLen, 1e-9) {
			t.Errorf("segment %d length = %v, want %v", i, gotLen, wantLen)
		}
	}

	// Every output point lies on the fitted plane.
	pl, _ := FitPlane(points)
	for i, p := range out {
		if d := math.Abs(pl.Distance(p)); d > 1e-9 {
			t.Errorf("point %d off plane by %v", i, d)
		}
	}
}

func TestMakePlanarWithoutLengthPreservation(t *testing.T) {
	points := []Vec3{
		New(0, 0, 0),
		New(1, 0, 1),
		New(2, 1, 0),
		New(3, 0, -1),
	}

	out := MakePlanar(points, false)

	pl, _ := FitPlane(points)
	for i, p := range out {
		if d := math.Abs(pl.Distance(p)); d > 1e-9 {
			t.Errorf("point %d off plane by %v", i, d)
		}
	}
}

func TestMakePlanarShortChain(t *testing.T) {
	points := []Vec3{New(1, 2, 3), New(4, 5, 6)}
	out := MakePlanar(points, true)

	for i := range points {
		if out[i] != points[i] {
			t.Errorf("point %d = %v, want %v", i, out[i], points[i])
		}
	}
}
