package mirror

import (
	"math"
	"testing"

	"github.com/kelpfield/riggen/pkg/chain"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/vec"
)

var leftToRight = Mapping{Axis: scene.AxisX, Find: "_l", Replace: "_r"}

func buildLeftArm(t *testing.T) (*scene.Memory, scene.NodeID, chain.Result) {
	t.Helper()
	m := scene.NewMemory()
	grp, _ := m.CreateTransform("skeleton_grp", scene.World)
	res, err := chain.NewBuilder(m, nil).Build([]chain.Link{
		{Name: "shoulder_l", Position: vec.New(5, 15, 0)},
		{Name: "elbow_l", Position: vec.New(10, 15, -2)},
		{Name: "wrist_l", Position: vec.New(15, 15, 0)},
	}, chain.Options{Parent: grp})
	if err != nil {
		t.Fatalf("chain build error = %v", err)
	}
	return m, grp, res
}

func source(res chain.Result) Source {
	return Source{BindRoot: res.Bind[0], FKRoot: res.FK[0], IKRoot: res.IK[0]}
}

func vecApprox(a, b vec.Vec3) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9 && math.Abs(a.Z-b.Z) < 1e-9
}

func TestChainsMirrorsAllThree(t *testing.T) {
	m, grp, res := buildLeftArm(t)
	ch, complete, err := NewEngine(m, nil).Chains(source(res), leftToRight)
	if err != nil {
		t.Fatalf("Chains() error = %v", err)
	}
	if !complete {
		t.Errorf("complete = false, want true")
	}

	for _, tc := range []struct {
		chain string
		nodes map[string]scene.NodeID
		names []string
	}{
		{"bind", ch.Bind, []string{"shoulder_r", "elbow_r", "wrist_r"}},
		{"fk", ch.FK, []string{"fk_shoulder_r", "fk_elbow_r", "fk_wrist_r"}},
		{"ik", ch.IK, []string{"ik_shoulder_r", "ik_elbow_r", "ik_wrist_r"}},
	} {
		if len(tc.nodes) != len(tc.names) {
			t.Errorf("%s chain has %d joints, want %d", tc.chain, len(tc.nodes), len(tc.names))
		}
		for _, n := range tc.names {
			if _, ok := tc.nodes[n]; !ok {
				t.Errorf("%s chain missing %s", tc.chain, n)
			}
		}
	}

	// positions reflect across the YZ plane
	for name, want := range map[string]vec.Vec3{
		"shoulder_r": vec.New(-5, 15, 0),
		"elbow_r":    vec.New(-10, 15, -2),
		"wrist_r":    vec.New(-15, 15, 0),
	} {
		got, err := m.WorldTranslation(ch.Bind[name])
		if err != nil {
			t.Fatalf("WorldTranslation(%s) error = %v", name, err)
		}
		if !vecApprox(got, want) {
			t.Errorf("%s at %v, want %v", name, got, want)
		}
	}

	// the mirrored root lands next to the source root
	if p, _ := m.ParentOf(ch.Bind["shoulder_r"]); p != grp {
		t.Errorf("mirrored root parented to %v, want skeleton_grp", p)
	}
}

func TestChainsRoundTripKeySets(t *testing.T) {
	m, _, res := buildLeftArm(t)
	ch, _, err := NewEngine(m, nil).Chains(source(res), leftToRight)
	if err != nil {
		t.Fatalf("Chains() error = %v", err)
	}
	for i, id := range res.Bind {
		name, _ := m.Name(id)
		if _, ok := ch.Bind[leftToRight.Rename(name)]; !ok {
			t.Errorf("bind joint %d (%s) has no mirrored counterpart", i, name)
		}
	}
	for i, id := range res.IK {
		name, _ := m.Name(id)
		if _, ok := ch.IK[leftToRight.Rename(name)]; !ok {
			t.Errorf("ik joint %d (%s) has no mirrored counterpart", i, name)
		}
	}
}

func TestChainsIdempotent(t *testing.T) {
	m, _, res := buildLeftArm(t)
	eng := NewEngine(m, nil)
	first, _, err := eng.Chains(source(res), leftToRight)
	if err != nil {
		t.Fatalf("first Chains() error = %v", err)
	}
	second, complete, err := eng.Chains(source(res), leftToRight)
	if err != nil {
		t.Fatalf("second Chains() error = %v", err)
	}
	if !complete {
		t.Errorf("complete = false on rerun, want true")
	}

	// FK and IK trees are reused, the bind tree is rebuilt
	for name, id := range first.FK {
		if second.FK[name] != id {
			t.Errorf("fk joint %s replaced on rerun", name)
		}
	}
	for name, id := range first.IK {
		if second.IK[name] != id {
			t.Errorf("ik joint %s replaced on rerun", name)
		}
	}
	if _, err := m.Name(first.Bind["shoulder_r"]); err == nil {
		t.Errorf("stale bind chain still alive after rerun")
	}
	if len(second.Bind) != 3 {
		t.Errorf("rebuilt bind chain has %d joints, want 3", len(second.Bind))
	}
}

func TestChainsSkipsMissingSourceChain(t *testing.T) {
	m, _, res := buildLeftArm(t)
	src := source(res)
	src.IKRoot = scene.World

	ch, complete, err := NewEngine(m, nil).Chains(src, leftToRight)
	if err != nil {
		t.Fatalf("Chains() error = %v", err)
	}
	if complete {
		t.Errorf("complete = true with a missing ik root")
	}
	if ch.IK != nil {
		t.Errorf("ik chain mirrored from nothing: %v", ch.IK)
	}
	if len(ch.Bind) != 3 || len(ch.FK) != 3 {
		t.Errorf("bind/fk chains = %d/%d joints, want 3/3", len(ch.Bind), len(ch.FK))
	}
}

func TestChainsSkipsStaleSourceRoot(t *testing.T) {
	m, _, res := buildLeftArm(t)
	src := source(res)
	if err := m.Delete(res.FK[0]); err != nil {
		t.Fatal(err)
	}

	ch, complete, err := NewEngine(m, nil).Chains(src, leftToRight)
	if err != nil {
		t.Fatalf("Chains() error = %v", err)
	}
	if complete {
		t.Errorf("complete = true with a stale fk root")
	}
	if len(ch.Bind) != 3 || len(ch.IK) != 3 {
		t.Errorf("bind/ik chains = %d/%d joints, want 3/3", len(ch.Bind), len(ch.IK))
	}
}

func TestChainsNoBindRoot(t *testing.T) {
	m, _, _ := buildLeftArm(t)
	ch, complete, err := NewEngine(m, nil).Chains(Source{}, leftToRight)
	if err != nil {
		t.Fatalf("Chains() error = %v", err)
	}
	if complete {
		t.Errorf("complete = true with no bind root")
	}
	if ch.Bind != nil || ch.FK != nil || ch.IK != nil {
		t.Errorf("chains mirrored from an empty source: %+v", ch)
	}
}

func TestHandleRebuilds(t *testing.T) {
	m, _, res := buildLeftArm(t)
	eng := NewEngine(m, nil)
	ch, _, err := eng.Chains(source(res), leftToRight)
	if err != nil {
		t.Fatalf("Chains() error = %v", err)
	}
	ctrl, _ := m.CreateTransform("ik_arm_r_ctrl", scene.World)

	h1, err := eng.Handle("arm_r_ikh", ch.IK["ik_shoulder_r"], ch.IK["ik_wrist_r"], scene.SolverRotatePlane, ctrl)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if p, _ := m.ParentOf(h1); p != ctrl {
		t.Errorf("handle parented to %v, want the ik control", p)
	}
	got, _ := m.WorldTranslation(h1)
	if !vecApprox(got, vec.New(-15, 15, 0)) {
		t.Errorf("handle at %v, want the end joint position", got)
	}

	h2, err := eng.Handle("arm_r_ikh", ch.IK["ik_shoulder_r"], ch.IK["ik_wrist_r"], scene.SolverRotatePlane, ctrl)
	if err != nil {
		t.Fatalf("Handle() rerun error = %v", err)
	}
	if h2 == h1 {
		t.Errorf("rerun kept the old handle node")
	}
	if _, err := m.Name(h1); err == nil {
		t.Errorf("stale handle still alive after rerun")
	}
	if id, _ := m.Lookup("arm_r_ikh"); id != h2 {
		t.Errorf("Lookup(arm_r_ikh) = %v, want the new handle", id)
	}
}

func TestPoleConstraintReparents(t *testing.T) {
	m, _, res := buildLeftArm(t)
	eng := NewEngine(m, nil)
	ch, _, err := eng.Chains(source(res), leftToRight)
	if err != nil {
		t.Fatalf("Chains() error = %v", err)
	}
	ctrl, _ := m.CreateTransform("ik_arm_r_ctrl", scene.World)
	m.SetWorldTranslation(ctrl, vec.New(-15, 15, 0))
	pole, _ := m.CreateTransform("arm_r_pole_ctrl", scene.World)
	m.SetWorldTranslation(pole, vec.New(-10, 15, 5))

	h, err := eng.Handle("arm_r_ikh", ch.IK["ik_shoulder_r"], ch.IK["ik_wrist_r"], scene.SolverRotatePlane, ctrl)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if err := eng.PoleConstraint(h, pole); err != nil {
		t.Fatalf("PoleConstraint() error = %v", err)
	}
	if p, _ := m.ParentOf(h); p != ctrl {
		t.Errorf("handle not returned to its parent")
	}
	if got, _ := m.WorldTranslation(h); !vecApprox(got, vec.New(-15, 15, 0)) {
		t.Errorf("handle moved during constraint setup: %v", got)
	}
	if _, ok := m.Lookup("arm_r_ikh_poleVectorConstraint1"); !ok {
		t.Errorf("pole constraint missing")
	}

	// rerunning replaces the stale constraint instead of stacking
	if err := eng.PoleConstraint(h, pole); err != nil {
		t.Fatalf("PoleConstraint() rerun error = %v", err)
	}
	kids, _ := m.ListChildren(h)
	constraints := 0
	for _, c := range kids {
		if k, _ := m.Kind(c); k == scene.KindConstraint {
			constraints++
		}
	}
	if constraints != 1 {
		t.Errorf("handle carries %d constraints after rerun, want 1", constraints)
	}
}
