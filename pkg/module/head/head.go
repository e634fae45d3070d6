// Package head builds the center head module: a two-joint chain from
// the head base to its end, a single head control, and the splice that
// hangs the chain off a built neck. Spliced, the head base adopts the
// top neck joint's orientation and parent, and the head control rides
// the top neck control, so neck poses carry the head along.
package head

import (
	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/chain"
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/vec"
)

// Guide roles. The blade sits behind the base and gives the chain its
// up axis.
const (
	RoleBase  = "head_base"
	RoleEnd   = "head_end"
	RoleBlade = "upv_head"
)

const headCtrlSize = 7

// neckModule is the slice of a neck the head needs for splicing.
type neckModule interface {
	TopJoint() (scene.NodeID, bool)
	TopControl() (scene.NodeID, bool)
}

// Head is the head module.
type Head struct {
	*module.Base

	res chain.Result
}

// New returns an unbuilt head. An empty name takes the kind as the
// name.
func New(g scene.Graph, logger *log.Logger, name string) *Head {
	return &Head{Base: module.NewBase(g, logger, module.KindHead, name, module.SideCenter)}
}

// Result returns the joint chain from the last Build.
func (h *Head) Result() chain.Result { return h.res }

// CreateGuides seeds the head's guides at their default pose. Guides
// that already exist keep their edited positions.
func (h *Head) CreateGuides() error {
	if err := h.EnsureGroups(); err != nil {
		return err
	}
	for _, s := range module.HeadSeeds(h.Side()) {
		var err error
		if s.Blade {
			_, err = h.CreateBladeGuide(s.Role, s.Pos)
		} else {
			_, err = h.CreateGuide(s.Role, s.Pos)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Build raises the head from its guides, splices it onto the neck when
// the registry holds a built one, and drops the head control on the
// base joint. A rebuilt neck deletes the spliced head joints with its
// own, so the head must rebuild after the neck; registries build in
// registration order, which keeps that holding.
func (h *Head) Build() error {
	if err := h.EnsureGroups(); err != nil {
		return err
	}
	base, err := h.GuideWorld(RoleBase)
	if err != nil {
		return err
	}
	end, err := h.GuideWorld(RoleEnd)
	if err != nil {
		return err
	}
	blade, err := h.GuideWorld(RoleBlade)
	if err != nil {
		return err
	}

	links := []chain.Link{
		{Name: h.JointName(RoleBase), Position: base},
		{Name: h.JointName(RoleEnd), Position: end},
	}
	res, err := chain.NewBuilder(h.Scene, h.Log).BuildSingle(links, chain.Options{
		Parent: h.JointGroup(),
		UpHint: blade.Sub(base),
	})
	if err != nil {
		return err
	}
	h.res = res
	h.Joints[RoleBase] = res.Bind[0]
	h.Joints[RoleEnd] = res.Bind[1]

	ctrlParent := h.ControlGroup()
	if topJoint, topCtrl, ok := h.neckAnchors(); ok {
		if err := h.splice(res, topJoint); err != nil {
			return err
		}
		ctrlParent = topCtrl
	}
	if err := h.buildControl(res, ctrlParent); err != nil {
		return err
	}
	h.Log.Info("head built", "module", h.ID(), "joints", len(res.Bind))
	return nil
}

// neckAnchors finds the built neck's top joint and control through the
// registry. Reports false when no neck is registered or it has not
// built yet.
func (h *Head) neckAnchors() (topJoint, topCtrl scene.NodeID, ok bool) {
	reg := h.Registry()
	if reg == nil {
		return "", "", false
	}
	m, ok := reg.FindKind(module.KindNeck, h.Side())
	if !ok {
		return "", "", false
	}
	neck, ok := m.(neckModule)
	if !ok {
		return "", "", false
	}
	j, ok := neck.TopJoint()
	if !ok {
		return "", "", false
	}
	c, ok := neck.TopControl()
	if !ok {
		return "", "", false
	}
	return j, c, true
}

// splice hangs the head chain off the top neck joint. The end joint is
// detached first so reorienting the base cannot drag it, the base takes
// the neck joint's orientation and parent while holding its world
// position, and the end comes back with a zeroed orient so it reads as
// a plain tip.
func (h *Head) splice(res chain.Result, topJoint scene.NodeID) error {
	base, end := res.Bind[0], res.Bind[1]
	w, err := h.Scene.WorldMatrix(topJoint)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "read neck joint")
	}
	if err := h.Scene.Parent(end, scene.World); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "detach head end")
	}
	if err := h.Scene.SetJointOrient(base, vec.BasisFromMat4(w)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "orient head base")
	}
	if err := h.Scene.Parent(base, topJoint); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "splice head base")
	}
	if err := h.Scene.SetWorldTranslation(base, res.Positions[0]); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "restore head base")
	}
	if err := h.Scene.Parent(end, base); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "reattach head end")
	}
	if err := h.Scene.SetWorldTranslation(end, res.Positions[1]); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "restore head end")
	}
	if err := h.Scene.SetJointOrient(end, vec.IdentityBasis()); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "zero head end orient")
	}
	return nil
}

// buildControl drops the head circle on the base joint and drives the
// joint from it. Runs after the splice so the offset group and the
// constraint offset both capture the joint's final pose.
func (h *Head) buildControl(res chain.Result, parent scene.NodeID) error {
	name := module.ControlName(h.JointName(RoleBase))
	if _, err := h.DeleteNamed(module.OffsetName(name)); err != nil {
		return err
	}
	spec := module.ControlSpec{Shape: module.ShapeCircle, Size: headCtrlSize, Color: module.ColorMain}
	ctrl, grp, err := module.NewControl(h.Scene, name, spec, parent)
	if err != nil {
		return err
	}
	if err := h.PlaceAt(grp, res.Bind[0]); err != nil {
		return err
	}
	if _, err := h.Scene.CreateConstraint(scene.ConstraintParent, []scene.NodeID{ctrl}, res.Bind[0], true); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "drive head base")
	}
	h.Controls[RoleBase] = ctrl
	return nil
}
