package vec

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func basisOrthonormal(t *testing.T, b Basis) {
	t.Helper()

	for _, axis := range []struct {
		name string
		v    Vec3
	}{{"aim", b.Aim}, {"up", b.Up}, {"side", b.Side}} {
		if !approxEq(axis.v.Norm(), 1, 1e-9) {
			t.Errorf("%s norm = %v, want 1", axis.name, axis.v.Norm())
		}
	}

	if d := b.Aim.Dot(b.Up); !approxEq(d, 0, 1e-9) {
		t.Errorf("aim·up = %v, want 0", d)
	}
	if d := b.Aim.Dot(b.Side); !approxEq(d, 0, 1e-9) {
		t.Errorf("aim·side = %v, want 0", d)
	}
	if !vecApproxEq(b.Aim.Cross(b.Up), b.Side, 1e-9) {
		t.Errorf("aim×up = %v, want side %v", b.Aim.Cross(b.Up), b.Side)
	}
}

func TestNewBasis(t *testing.T) {
	tests := []struct {
		name    string
		aim, up Vec3
	}{
		{"world aligned", New(1, 0, 0), New(0, 1, 0)},
		{"skewed up", New(1, 0, 0), New(0.3, 1, 0.2)},
		{"diagonal aim", New(1, 1, 0), New(0, 1, 0)},
		{"arbitrary", New(2, -1, 3), New(0, 0, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBasis(tt.aim, tt.up)
			basisOrthonormal(t, b)

			if !vecApproxEq(b.Aim, tt.aim.Unit(), 1e-9) {
				t.Errorf("Aim = %v, want %v", b.Aim, tt.aim.Unit())
			}
		})
	}
}

func TestNewBasisDegenerate(t *testing.T) {
	tests := []struct {
		name    string
		aim, up Vec3
	}{
		{"zero aim", New(0, 0, 0), New(0, 1, 0)},
		{"up parallel to aim", New(1, 0, 0), New(2, 0, 0)},
		{"zero up", New(1, 0, 0), New(0, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBasis(tt.aim, tt.up)
			if b != IdentityBasis() {
				t.Errorf("NewBasis = %+v, want identity", b)
			}
		})
	}
}

func TestBasisMat4RoundTrip(t *testing.T) {
	b := NewBasis(New(1, 2, 0), New(0, 1, 1))
	got := BasisFromMat4(b.Mat4())

	if !vecApproxEq(got.Aim, b.Aim, 1e-9) || !vecApproxEq(got.Up, b.Up, 1e-9) || !vecApproxEq(got.Side, b.Side, 1e-9) {
		t.Errorf("BasisFromMat4(Mat4()) = %+v, want %+v", got, b)
	}
}

func TestBasisMat4Columns(t *testing.T) {
	b := IdentityBasis()
	if m := b.Mat4(); m != mgl64.Ident4() {
		t.Errorf("identity basis Mat4 = %v, want identity", m)
	}
}

func TestTRMat4(t *testing.T) {
	m := TRMat4(New(1, 2, 3), IdentityBasis())

	if got := TranslationOf(m); !vecApproxEq(got, New(1, 2, 3), 1e-12) {
		t.Errorf("TranslationOf = %v", got)
	}
	if got := BasisFromMat4(m); got != IdentityBasis() {
		t.Errorf("rotation part = %+v, want identity", got)
	}
}

func TestEulerRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		deg  [3]float64
	}{
		{"zero", [3]float64{0, 0, 0}},
		{"x only", [3]float64{90, 0, 0}},
		{"y only", [3]float64{0, 45, 0}},
		{"z only", [3]float64{0, 0, 90}},
		{"combined", [3]float64{30, -60, 120}},
		{"negative", [3]float64{-10, 20, -30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EulerDegrees(EulerMat4(tt.deg))
			for i := range got {
				if !approxEq(got[i], tt.deg[i], 1e-6) {
					t.Errorf("angle %d = %v, want %v", i, got[i], tt.deg[i])
				}
			}
		})
	}
}

func TestEulerGimbal(t *testing.T) {
	// At y = 90 the x/z split is ambiguous; extraction pins z to 0 but the
	// reconstructed rotation must match the original matrix.
	in := [3]float64{25, 90, 0}
	m := EulerMat4(in)
	out := EulerDegrees(m)
	back := EulerMat4(out)

	for i := range 16 {
		if !approxEq(m[i], back[i], 1e-6) {
			t.Fatalf("matrix mismatch at %d: %v vs %v", i, m[i], back[i])
		}
	}
}

func TestEulerKnownRotation(t *testing.T) {
	// 90 degrees about Z maps world X to world Y.
	m := EulerMat4([3]float64{0, 0, 90})
	v := m.Mul4x1(mgl64.Vec4{1, 0, 0, 0})

	if !vecApproxEq(FromMgl(v.Vec3()), New(0, 1, 0), 1e-9) {
		t.Errorf("Rz(90)·X = %v, want (0,1,0)", v)
	}
}

func TestEulerBasisAxes(t *testing.T) {
	// 90 degrees about Y points the aim axis down world -Z.
	b := EulerBasis([3]float64{0, 90, 0})
	if !vecApproxEq(b.Aim, New(0, 0, -1), 1e-9) {
		t.Errorf("Aim = %v, want (0,0,-1)", b.Aim)
	}
}
