// Package neck builds the center neck module: a single bind chain from
// the neck base toward the head, oriented against its blade guides, and
// a base/mid/top control trio whose influence falls off along the chain
// through weighted parent constraints. The last joint aims at the head
// module's base guide so the head splices on without a kink.
package neck

import (
	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/chain"
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/solver"
	"github.com/kelpfield/riggen/pkg/vec"
)

// Guide roles beyond the numbered chain. The blades sit behind the neck
// and give the joints their up axes; with three or more joints a second
// blade steers the upper section separately.
const (
	RoleBase     = "neck_base"
	RoleBladeLow = "upv_neck_base"
	RoleBladeMid = "upv_mid_neck"
)

const (
	baseCtrlSize = 8
	midCtrlSize  = 7
	topCtrlSize  = 10
)

// Neck is the neck module.
type Neck struct {
	*module.Base

	count int
	roles []string

	res chain.Result
}

// New returns an unbuilt neck. An empty name takes the kind as the
// name; a count below one falls back to [module.DefaultNeckJoints].
func New(g scene.Graph, logger *log.Logger, name string, count int) *Neck {
	if count < 1 {
		count = module.DefaultNeckJoints
	}
	roles := make([]string, 0, count+1)
	roles = append(roles, RoleBase)
	for i := 1; i <= count; i++ {
		roles = append(roles, module.NumberedRole("neck", i))
	}
	return &Neck{
		Base:  module.NewBase(g, logger, module.KindNeck, name, module.SideCenter),
		count: count,
		roles: roles,
	}
}

// Count returns the numbered neck joint count.
func (n *Neck) Count() int { return n.count }

// Roles returns the chain roles base first.
func (n *Neck) Roles() []string { return append([]string(nil), n.roles...) }

// Result returns the joint chain from the last Build.
func (n *Neck) Result() chain.Result { return n.res }

// TopJoint returns the last neck joint, the head's splice point. The
// second result is false before Build.
func (n *Neck) TopJoint() (scene.NodeID, bool) {
	return n.Joint(n.roles[len(n.roles)-1])
}

// TopControl returns the top neck control, which adopts the head
// control's offset group. The second result is false before Build.
func (n *Neck) TopControl() (scene.NodeID, bool) {
	return n.Control(n.roles[len(n.roles)-1])
}

// midIndex returns the mid joint index, or zero when the chain is too
// short to carry a mid control.
func (n *Neck) midIndex() int {
	if n.count < 3 {
		return 0
	}
	return max(1, n.count/2)
}

// CreateGuides seeds the neck's guides at their default pose. Guides
// that already exist keep their edited positions.
func (n *Neck) CreateGuides() error {
	if err := n.EnsureGroups(); err != nil {
		return err
	}
	for _, s := range module.NeckSeeds(n.Side(), n.count) {
		var err error
		if s.Blade {
			_, err = n.CreateBladeGuide(s.Role, s.Pos)
		} else {
			_, err = n.CreateGuide(s.Role, s.Pos)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Build raises the neck from its guides: the chain oriented against the
// blades and aimed at the head, then the control trio and the falloff
// constraints. Building again replaces the previous result and picks up
// guide edits.
func (n *Neck) Build() error {
	if err := n.EnsureGroups(); err != nil {
		return err
	}
	positions, err := n.planarizeGuides()
	if err != nil {
		return err
	}
	bases, err := n.chainBases(positions)
	if err != nil {
		return err
	}

	links := make([]chain.Link, len(n.roles))
	for i, role := range n.roles {
		links[i] = chain.Link{Name: n.JointName(role), Position: positions[i]}
	}
	res, err := chain.NewBuilder(n.Scene, n.Log).BuildSingle(links, chain.Options{
		Parent: n.JointGroup(),
		Bases:  bases,
	})
	if err != nil {
		return err
	}
	n.res = res
	for i, role := range n.roles {
		n.Joints[role] = res.Bind[i]
	}

	if err := n.buildControls(res); err != nil {
		return err
	}
	n.Log.Info("neck built", "module", n.ID(), "joints", len(res.Bind))
	return nil
}

// planarizeGuides reads the chain guide positions and, when they have
// drifted off a common plane, projects them back and writes the result
// onto the guides themselves, so what the rig was built from is what
// the guides show.
func (n *Neck) planarizeGuides() ([]vec.Vec3, error) {
	positions := make([]vec.Vec3, len(n.roles))
	for i, role := range n.roles {
		p, err := n.GuideWorld(role)
		if err != nil {
			return nil, err
		}
		positions[i] = p
	}
	if vec.IsPlanar(positions, chain.DefaultPlanarTol) {
		return positions, nil
	}
	n.Log.Warn("neck guides are not planar, projecting onto best-fit plane", "module", n.ID())
	positions = vec.MakePlanar(positions, true)
	for i, role := range n.roles {
		if err := n.Scene.SetWorldTranslation(n.Guides[role], positions[i]); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "write back guide %s", role)
		}
	}
	return positions, nil
}

// chainBases orients the chain in up to two sections. Every joint aims
// at its successor and the last at the head; up axes follow the base
// blade below the mid joint and the mid blade from it upward when the
// chain carries one.
func (n *Neck) chainBases(positions []vec.Vec3) ([]vec.Basis, error) {
	all := make([]vec.Vec3, 0, len(positions)+1)
	all = append(all, positions...)
	all = append(all, n.headAim(positions))

	lowUp, err := n.bladeUp(RoleBladeLow, RoleBase)
	if err != nil {
		return nil, err
	}
	segs := solver.SegmentBases(all, solver.OrientOptions{UpHint: lowUp})
	if mid := n.midIndex(); mid > 0 {
		midUp, err := n.bladeUp(RoleBladeMid, n.roles[mid])
		if err != nil {
			return nil, err
		}
		upper := solver.SegmentBases(all[mid:], solver.OrientOptions{UpHint: midUp})
		copy(segs[mid:], upper)
	}
	return segs, nil
}

// headAim returns the position the last joint aims at: the head
// module's base guide when the registry holds one, otherwise the last
// segment extended past the chain.
func (n *Neck) headAim(positions []vec.Vec3) vec.Vec3 {
	if reg := n.Registry(); reg != nil {
		if m, ok := reg.FindKind(module.KindHead, n.Side()); ok {
			if g, ok := m.(interface {
				GuideWorld(string) (vec.Vec3, error)
			}); ok {
				if p, err := g.GuideWorld("head_base"); err == nil {
					return p
				}
			}
		}
	}
	n.Log.Debug("no head guide to aim at, extending the last segment", "module", n.ID())
	last := positions[len(positions)-1]
	return last.Add(last.Sub(positions[len(positions)-2]))
}

// bladeUp returns the up hint a blade guide encodes: the direction from
// its anchor on the chain out to the blade.
func (n *Neck) bladeUp(blade, anchor string) (vec.Vec3, error) {
	b, err := n.GuideWorld(blade)
	if err != nil {
		return vec.Vec3{}, err
	}
	a, err := n.GuideWorld(anchor)
	if err != nil {
		return vec.Vec3{}, err
	}
	return b.Sub(a), nil
}

// buildControls places the control trio and wires the falloff. The base
// control drives the base joint outright; every numbered joint gets one
// parent constraint with two drivers whose weights trade off linearly
// along its section.
func (n *Neck) buildControls(res chain.Result) error {
	base, err := n.buildControl(RoleBase, baseCtrlSize, res.Bind[0], n.ControlGroup())
	if err != nil {
		return err
	}
	if _, err := n.Scene.CreateConstraint(scene.ConstraintParent, []scene.NodeID{base}, res.Bind[0], true); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "drive neck base")
	}

	parent := base
	mid := n.midIndex()
	var midCtrl scene.NodeID
	if mid > 0 {
		midCtrl, err = n.buildControl(n.roles[mid], midCtrlSize, res.Bind[mid], parent)
		if err != nil {
			return err
		}
		parent = midCtrl
	}
	topRole := n.roles[len(n.roles)-1]
	top, err := n.buildControl(topRole, topCtrlSize, res.Bind[len(res.Bind)-1], parent)
	if err != nil {
		return err
	}

	last := len(res.Bind) - 1
	for i := 1; i <= last; i++ {
		var a, b scene.NodeID
		var wa float64
		switch {
		case mid > 0 && i <= mid:
			a, b = base, midCtrl
			wa = 1 - float64(i)/float64(mid)
		case mid > 0:
			a, b = midCtrl, top
			wa = 1 - float64(i-mid)/float64(last-mid)
		default:
			a, b = base, top
			wa = 1 - float64(i)/float64(last)
		}
		if err := n.constrainWeighted(res.Bind[i], a, b, wa); err != nil {
			return err
		}
	}
	return nil
}

func (n *Neck) buildControl(role string, size float64, joint scene.NodeID, parent scene.NodeID) (scene.NodeID, error) {
	name := module.ControlName(n.JointName(role))
	if _, err := n.DeleteNamed(module.OffsetName(name)); err != nil {
		return "", err
	}
	spec := module.ControlSpec{Shape: module.ShapeCircle, Size: size, Color: module.ColorMain}
	ctrl, grp, err := module.NewControl(n.Scene, name, spec, parent)
	if err != nil {
		return "", err
	}
	if err := n.PlaceAt(grp, joint); err != nil {
		return "", err
	}
	n.Controls[role] = ctrl
	return ctrl, nil
}

// constrainWeighted parent-constrains a joint to two drivers with
// complementary weights.
func (n *Neck) constrainWeighted(joint, a, b scene.NodeID, wa float64) error {
	c, err := n.Scene.CreateConstraint(scene.ConstraintParent, []scene.NodeID{a, b}, joint, true)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "constrain neck joint")
	}
	if len(c.Weights) != 2 {
		return errors.New(errors.ErrCodeConstraintWeightMismatch,
			"neck constraint exposes %d weights, want 2", len(c.Weights))
	}
	if err := n.Scene.SetScalar(c.Weights[0].Alias, wa); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "set falloff weight")
	}
	if err := n.Scene.SetScalar(c.Weights[1].Alias, 1-wa); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "set falloff weight")
	}
	return nil
}
