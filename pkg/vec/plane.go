package vec

// Plane is a plane in point-normal form. Normal is unit length.
type Plane struct {
	Anchor Vec3
	Normal Vec3
}

// Distance returns the signed distance of p from the plane.
func (pl Plane) Distance(p Vec3) float64 {
	return p.Sub(pl.Anchor).Dot(pl.Normal)
}

// Project returns p projected onto the plane.
func (pl Plane) Project(p Vec3) Vec3 {
	return p.Sub(pl.Normal.Scale(pl.Distance(p)))
}

// FitPlane fits a plane through a point chain.
//
// The plane is anchored at the first point. Its normal comes from the first
// triple of consecutive points whose edge cross product is non-degenerate;
// collinear prefixes are skipped. If the whole chain is collinear no triple
// qualifies and the normal falls back to world Y, or to world Z when world Y
// is near-parallel to the chain direction. The second return value reports
// whether the normal was fitted from the points (false means fallback).
func FitPlane(points []Vec3) (Plane, bool) {
	if len(points) == 0 {
		return Plane{Normal: WorldY}, false
	}

	pl := Plane{Anchor: points[0]}
	for i := 0; i+2 < len(points); i++ {
		e1 := points[i+1].Sub(points[i])
		e2 := points[i+2].Sub(points[i+1])
		n := e1.Cross(e2)
		if !n.IsZero() {
			pl.Normal = n.Unit()
			return pl, true
		}
	}

	pl.Normal = fallbackNormal(points)
	return pl, false
}

// fallbackNormal picks a world-axis normal for a collinear chain: world Y
// unless it is near-parallel to the chain direction, then world Z.
func fallbackNormal(points []Vec3) Vec3 {
	dir := Vec3{}
	if len(points) > 1 {
		dir = points[len(points)-1].Sub(points[0]).Unit()
	}
	if dir.IsZero() {
		return WorldY
	}
	if abs(dir.Dot(WorldY)) > NearParallelDot {
		return WorldZ
	}
	return WorldY
}

// IsPlanar reports whether every point lies within tol of one plane.
//
// Chains of three or fewer points are always planar, as are fully collinear
// chains (no unique plane exists, and any containing plane fits). Otherwise
// each point's signed distance from the fitted plane is checked against tol.
func IsPlanar(points []Vec3, tol float64) bool {
	if len(points) <= 3 {
		return true
	}

	pl, ok := FitPlane(points)
	if !ok {
		return true
	}

	for _, p := range points {
		if abs(pl.Distance(p)) > tol {
			return false
		}
	}
	return true
}

// MakePlanar flattens a point chain onto its fitted plane.
//
// The flattening operates on the vectors between consecutive points rather
// than the points themselves: each inter-point vector is projected onto the
// plane and accumulated from the previous output point. With preserveLength
// the projected vector is rescaled to the original segment length first, so
// consecutive-segment distances survive the flattening. A segment whose
// projection collapses (perpendicular to the plane) is kept unprojected; the
// output chain never contains a collapsed segment the input did not have.
//
// The first point is never moved. Inputs of fewer than three points are
// returned as a copy.
func MakePlanar(points []Vec3, preserveLength bool) []Vec3 {
	out := make([]Vec3, len(points))
	copy(out, points)
	if len(points) < 3 {
		return out
	}

	pl, _ := FitPlane(points)
	for i := 1; i < len(points); i++ {
		seg := points[i].Sub(points[i-1])
		proj := seg.Sub(pl.Normal.Scale(seg.Dot(pl.Normal)))
		if proj.IsZero() {
			proj = seg
		} else if preserveLength {
			proj = proj.Unit().Scale(seg.Norm())
		}
		out[i] = out[i-1].Add(proj)
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
