package module

import "github.com/kelpfield/riggen/pkg/vec"

// Seed is one default guide placement. Tables are authored for the left
// or center side; the right side negates X.
type Seed struct {
	Role  string
	Pos   vec.Vec3
	Blade bool
}

// DefaultSpineJoints is the spine joint count used when none is given.
const DefaultSpineJoints = 5

// DefaultNeckJoints is the neck joint count used when none is given.
const DefaultNeckJoints = 3

// ArmSeeds returns the default arm guide placements for a side: the
// shoulder-to-hand chain plus the pole target in front of the elbow.
func ArmSeeds(side Side) []Seed {
	return forSide(side, []Seed{
		{Role: "shoulder", Pos: vec.New(5, 15, 0)},
		{Role: "elbow", Pos: vec.New(10, 15, -2)},
		{Role: "wrist", Pos: vec.New(15, 15, 0)},
		{Role: "hand", Pos: vec.New(16, 15, 0)},
		{Role: "pole", Pos: vec.New(10, 15, 5)},
	})
}

// LegSeeds returns the default leg guide placements for a side: the
// hip-to-toe chain, the pole target in front of the knee, and the heel
// landmark behind the foot for the reverse-foot pivots.
func LegSeeds(side Side) []Seed {
	return forSide(side, []Seed{
		{Role: "hip", Pos: vec.New(2.5, 10, 0)},
		{Role: "knee", Pos: vec.New(3, 5, 1)},
		{Role: "ankle", Pos: vec.New(3, 1, 0)},
		{Role: "foot", Pos: vec.New(3, 0, 3)},
		{Role: "toe", Pos: vec.New(3, 0, 5)},
		{Role: "pole", Pos: vec.New(3, 5, 5)},
		{Role: "heel", Pos: vec.New(3, 0, -1)},
	})
}

// SpineSeeds returns the default spine guide placements: cog, the
// pelvis landmark, count spine guides stacked up to the chest, and the
// chest itself at the last spine position.
func SpineSeeds(side Side, count int) []Seed {
	if count < 1 {
		count = DefaultSpineJoints
	}
	seeds := []Seed{
		{Role: "cog", Pos: vec.New(0, 8, 0)},
		{Role: "pelvis", Pos: vec.New(0, 9, 0)},
	}
	const base, span = 9.0, 7.0
	for i := 1; i <= count; i++ {
		y := base + span*float64(i)/float64(count)
		seeds = append(seeds, Seed{Role: NumberedRole("spine", i), Pos: vec.New(0, y, 0)})
	}
	seeds = append(seeds, Seed{Role: "chest", Pos: vec.New(0, base+span, 0)})
	return forSide(side, seeds)
}

// NeckSeeds returns the default neck guide placements: the base, count
// neck guides rising toward the head, and the blade guides behind the
// base and, with three or more joints, behind the mid neck.
func NeckSeeds(side Side, count int) []Seed {
	if count < 1 {
		count = DefaultNeckJoints
	}
	const base, span = 17.0, 3.0
	seeds := []Seed{
		{Role: "neck_base", Pos: vec.New(0, base, 0)},
	}
	for i := 1; i <= count; i++ {
		y := base + span*float64(i)/float64(count)
		seeds = append(seeds, Seed{Role: NumberedRole("neck", i), Pos: vec.New(0, y, 0)})
	}
	seeds = append(seeds, Seed{Role: "upv_neck_base", Pos: vec.New(0, base, -2), Blade: true})
	if count >= 3 {
		mid := max(1, count/2)
		y := base + span*float64(mid)/float64(count)
		seeds = append(seeds, Seed{Role: "upv_mid_neck", Pos: vec.New(0, y, -2), Blade: true})
	}
	return forSide(side, seeds)
}

// HeadSeeds returns the default head guide placements: base, end, and
// the blade guide behind the base.
func HeadSeeds(side Side) []Seed {
	return forSide(side, []Seed{
		{Role: "head_base", Pos: vec.New(0, 21, 0)},
		{Role: "head_end", Pos: vec.New(0, 24, 0)},
		{Role: "upv_head", Pos: vec.New(0, 21, -2), Blade: true},
	})
}

func forSide(side Side, seeds []Seed) []Seed {
	if side != SideRight {
		return seeds
	}
	out := make([]Seed, len(seeds))
	for i, s := range seeds {
		s.Pos = vec.New(-s.Pos.X, s.Pos.Y, s.Pos.Z)
		out[i] = s
	}
	return out
}
