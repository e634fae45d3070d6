// Package limb builds the dual-chain limb modules, arm and leg: bind,
// FK and IK joint chains raised over shared guides, a nested FK control
// stack, an IK control and pole control steering a rotate-plane handle,
// and the blend switch tying the three chains together. Legs add a
// reverse-foot pivot stack between the IK control and the handles.
package limb

import (
	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/blend"
	"github.com/kelpfield/riggen/pkg/chain"
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/mirror"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/vec"
)

// RolePole names the pole guide both limb kinds carry.
const RolePole = "pole"

// handleEnd is the chain index the rotate-plane handle ends at: the
// wrist on arms, the ankle on legs. Roles past it ride the chains as
// tail joints so the blend triples stay index aligned.
const handleEnd = 2

var (
	armRoles = []string{"shoulder", "elbow", "wrist", "hand"}
	legRoles = []string{"hip", "knee", "ankle", "foot", "toe"}

	armFKSizes = [3]float64{7, 7, 6}
	legFKSizes = [3]float64{5, 4, 3}
)

const (
	ikCtrlSize   = 3.5
	poleCtrlSize = 2.5
	switchSize   = 2
	switchNudge  = 5
)

// Limb is an arm or a leg. It satisfies [module.Mirrorer]: a built left
// limb can raise its right counterpart.
type Limb struct {
	*module.Base

	roles   []string
	fkSizes [3]float64

	res        chain.Result
	handle     scene.NodeID
	footRoll   scene.NodeID
	pivots     map[string]scene.NodeID
	switchCtrl scene.NodeID
	sw         *blend.Switch
}

// New returns an unbuilt limb. Kind must be arm or leg; an empty name
// takes the kind as the name.
func New(g scene.Graph, logger *log.Logger, kind module.Kind, name string, side module.Side) (*Limb, error) {
	l := &Limb{Base: module.NewBase(g, logger, kind, name, side)}
	switch kind {
	case module.KindArm:
		l.roles, l.fkSizes = armRoles, armFKSizes
	case module.KindLeg:
		l.roles, l.fkSizes = legRoles, legFKSizes
	default:
		return nil, errors.New(errors.ErrCodeInvalidKind, "limb kind must be arm or leg, got %q", kind)
	}
	return l, nil
}

// NewArm returns an unbuilt arm.
func NewArm(g scene.Graph, logger *log.Logger, side module.Side) (*Limb, error) {
	return New(g, logger, module.KindArm, "", side)
}

// NewLeg returns an unbuilt leg.
func NewLeg(g scene.Graph, logger *log.Logger, side module.Side) (*Limb, error) {
	return New(g, logger, module.KindLeg, "", side)
}

// Roles returns the chain roles root first.
func (l *Limb) Roles() []string { return append([]string(nil), l.roles...) }

// Result returns the joint chains from the last Build.
func (l *Limb) Result() chain.Result { return l.res }

// Handle returns the rotate-plane handle, empty before Build.
func (l *Limb) Handle() scene.NodeID { return l.handle }

// Switch returns the wired blend switch, nil before Build.
func (l *Limb) Switch() *blend.Switch { return l.sw }

func (l *Limb) seedTable() []module.Seed {
	if l.Kind() == module.KindArm {
		return module.ArmSeeds(l.Side())
	}
	return module.LegSeeds(l.Side())
}

// CreateGuides seeds the limb's guides at their default pose. Guides
// that already exist keep their edited positions.
func (l *Limb) CreateGuides() error {
	if err := l.EnsureGroups(); err != nil {
		return err
	}
	for _, s := range l.seedTable() {
		var err error
		if s.Blade {
			_, err = l.CreateBladeGuide(s.Role, s.Pos)
		} else {
			_, err = l.CreateGuide(s.Role, s.Pos)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Build raises the limb from its guides: the three superimposed chains,
// the handles, the controls and the blend. Building again replaces the
// previous result and picks up guide edits.
func (l *Limb) Build() error {
	if err := l.EnsureGroups(); err != nil {
		return err
	}
	links, err := l.chainLinks()
	if err != nil {
		return err
	}
	pole, err := l.GuideWorld(RolePole)
	if err != nil {
		return err
	}

	res, err := chain.NewBuilder(l.Scene, l.Log).Build(links, chain.Options{
		Parent:    l.JointGroup(),
		Pole:      &pole,
		Restore:   l.restoreGuide,
		WriteBack: l.writeGuide,
	})
	if err != nil {
		return err
	}
	l.res = res
	l.recordJoints(res)

	if err := l.buildIK(res); err != nil {
		return err
	}
	if err := l.buildControls(res); err != nil {
		return err
	}
	if err := l.constrainIK(res); err != nil {
		return err
	}
	if err := l.buildSwitch(res); err != nil {
		return err
	}
	if err := l.wireBlend(res); err != nil {
		return err
	}
	l.Log.Info("limb built", "module", l.ID(), "joints", len(res.Bind))
	return l.hideDriven(res)
}

func (l *Limb) chainLinks() ([]chain.Link, error) {
	links := make([]chain.Link, len(l.roles))
	for i, role := range l.roles {
		p, err := l.GuideWorld(role)
		if err != nil {
			return nil, err
		}
		links[i] = chain.Link{Name: l.JointName(role), Position: p}
	}
	return links, nil
}

// restoreGuide maps a joint name back to its guide position for links
// that arrive zeroed.
func (l *Limb) restoreGuide(name string) (vec.Vec3, bool) {
	p, err := l.GuideWorld(l.RoleOf(name))
	if err != nil {
		return vec.Vec3{}, false
	}
	return p, true
}

// writeGuide pushes a planarized chain position back onto the guide it
// came from.
func (l *Limb) writeGuide(name string, pos vec.Vec3) error {
	id, ok := l.Guides[l.RoleOf(name)]
	if !ok {
		return nil
	}
	return l.Scene.SetWorldTranslation(id, pos)
}

func (l *Limb) recordJoints(res chain.Result) {
	for i, role := range l.roles {
		l.Joints[role] = res.Bind[i]
		l.Joints["fk_"+role] = res.FK[i]
		l.Joints["ik_"+role] = res.IK[i]
	}
}

func (l *Limb) handleName() string { return l.ID() + "_ikh" }

// buildIK places the handles on the IK chain. Handles are rebuilt from
// scratch so repeated and mirrored builds come out the same. The arm's
// handle lives in its own group under the controls; the leg's handles
// stay at the root until the reverse foot adopts them.
func (l *Limb) buildIK(res chain.Result) error {
	e := mirror.NewEngine(l.Scene, l.Log)
	parent := scene.World
	if l.Kind() == module.KindArm {
		grp, err := l.ensureHandleGroup()
		if err != nil {
			return err
		}
		parent = grp
	}
	h, err := e.Handle(l.handleName(), res.IK[0], res.IK[handleEnd], scene.SolverRotatePlane, parent)
	if err != nil {
		return err
	}
	l.handle = h

	if l.Kind() != module.KindLeg {
		return nil
	}
	if _, err := e.Handle(l.ID()+"_ankle_foot_ikh", res.IK[2], res.IK[3], scene.SolverSingleChain, scene.World); err != nil {
		return err
	}
	if _, err := e.Handle(l.ID()+"_foot_toe_ikh", res.IK[3], res.IK[4], scene.SolverSingleChain, scene.World); err != nil {
		return err
	}
	return nil
}

func (l *Limb) ensureHandleGroup() (scene.NodeID, error) {
	name := l.ID() + "_ikh_grp"
	if id, ok := l.Scene.Lookup(name); ok {
		return id, nil
	}
	id, err := l.Scene.CreateTransform(name, l.ControlGroup())
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create handle group %s", name)
	}
	return id, nil
}

func (l *Limb) buildControls(res chain.Result) error {
	if err := l.buildFKControls(res); err != nil {
		return err
	}
	if err := l.buildIKControls(res); err != nil {
		return err
	}
	if l.Kind() == module.KindLeg {
		return l.buildFootRoll()
	}
	return nil
}

// buildFKControls stacks nested circles over the chain up to the handle
// end. Each control drives its FK joint and carries the next control's
// offset group, so rotation cascades down the stack.
func (l *Limb) buildFKControls(res chain.Result) error {
	parent := l.ControlGroup()
	for i := range handleEnd + 1 {
		role := l.roles[i]
		name := module.ControlName(chain.FKName(l.JointName(role)))
		if _, err := l.DeleteNamed(module.OffsetName(name)); err != nil {
			return err
		}
		spec := module.ControlSpec{Shape: module.ShapeCircle, Size: l.fkSizes[i], Color: module.ColorFK}
		ctrl, grp, err := module.NewControl(l.Scene, name, spec, parent)
		if err != nil {
			return err
		}
		if err := l.PlaceAt(grp, res.FK[i]); err != nil {
			return err
		}
		if _, err := l.Scene.CreateConstraint(scene.ConstraintParent, []scene.NodeID{ctrl}, res.FK[i], true); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "drive fk joint %s", role)
		}
		l.Controls["fk_"+role] = ctrl
		parent = ctrl
	}
	return nil
}

// buildIKControls drops the IK end control on the IK end joint and the
// pole control on its guide.
func (l *Limb) buildIKControls(res chain.Result) error {
	endName := module.ControlName(chain.IKName(l.ID()))
	if _, err := l.DeleteNamed(module.OffsetName(endName)); err != nil {
		return err
	}
	spec := module.ControlSpec{Shape: module.ShapeCube, Size: ikCtrlSize, Color: module.ColorIK}
	ctrl, grp, err := module.NewControl(l.Scene, endName, spec, l.ControlGroup())
	if err != nil {
		return err
	}
	if err := l.PlaceAt(grp, res.IK[handleEnd]); err != nil {
		return err
	}
	l.Controls["ik"] = ctrl

	poleName := module.ControlName(l.ID() + "_pole")
	if _, err := l.DeleteNamed(module.OffsetName(poleName)); err != nil {
		return err
	}
	spec = module.ControlSpec{Shape: module.ShapeSphere, Size: poleCtrlSize, Color: module.ColorIK}
	pctrl, pgrp, err := module.NewControl(l.Scene, poleName, spec, l.ControlGroup())
	if err != nil {
		return err
	}
	pos, err := l.GuideWorld(RolePole)
	if err != nil {
		return err
	}
	if err := l.Scene.SetWorldTranslation(pgrp, pos); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "place pole control")
	}
	l.Controls["pole"] = pctrl
	return nil
}

// constrainIK ties the IK controls in. The pole constraint goes first
// because making it clears every constraint already on the handle; the
// control constraints follow. The arm's end control moves the handle
// and orients the IK end joint; the leg's carries the whole reverse
// foot instead.
func (l *Limb) constrainIK(res chain.Result) error {
	pole, ok := l.Control("pole")
	if !ok {
		return errors.New(errors.ErrCodeInternal, "module %s: pole control missing", l.ID())
	}
	e := mirror.NewEngine(l.Scene, l.Log)
	if err := e.PoleConstraint(l.handle, pole); err != nil {
		return err
	}

	ik, ok := l.Control("ik")
	if !ok {
		return errors.New(errors.ErrCodeInternal, "module %s: ik control missing", l.ID())
	}
	if l.Kind() == module.KindLeg {
		if _, err := l.Scene.CreateConstraint(scene.ConstraintParent, []scene.NodeID{ik}, l.footRoll, true); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "drive reverse foot")
		}
		return nil
	}
	if _, err := l.Scene.CreateConstraint(scene.ConstraintPoint, []scene.NodeID{ik}, l.handle, false); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "drive ik handle")
	}
	if _, err := l.Scene.CreateConstraint(scene.ConstraintOrient, []scene.NodeID{ik}, res.IK[handleEnd], true); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "orient ik end joint")
	}
	return nil
}

// buildSwitch plants the blend switch beside the handle-end bind joint
// and keeps it tracking that joint: above the wrist on arms, outboard
// of the ankle on legs.
func (l *Limb) buildSwitch(res chain.Result) error {
	name := module.ControlName(l.ID() + "_switch")
	if _, err := l.DeleteNamed(module.OffsetName(name)); err != nil {
		return err
	}
	spec := module.ControlSpec{Shape: module.ShapeSquare, Size: switchSize, Color: module.ColorMain}
	ctrl, grp, err := module.NewControl(l.Scene, name, spec, l.ControlGroup())
	if err != nil {
		return err
	}
	end := res.Bind[handleEnd]
	p, err := l.Scene.WorldTranslation(end)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "read switch anchor")
	}
	if err := l.Scene.SetWorldTranslation(grp, p.Add(l.switchOffset())); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "place switch control")
	}
	if _, err := l.Scene.CreateConstraint(scene.ConstraintPoint, []scene.NodeID{end}, grp, true); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "anchor switch control")
	}
	l.Controls["switch"] = ctrl
	l.switchCtrl = ctrl
	return nil
}

func (l *Limb) switchOffset() vec.Vec3 {
	if l.Kind() == module.KindArm {
		return vec.New(0, switchNudge, 0)
	}
	if l.Side() == module.SideRight {
		return vec.New(-switchNudge, 0, 0)
	}
	return vec.New(switchNudge, 0, 0)
}

func (l *Limb) wireBlend(res chain.Result) error {
	setup := blend.Setup{
		Switch:  l.switchCtrl,
		End:     handleEnd,
		Triples: make([]blend.Triple, len(res.Bind)),
	}
	for i := range res.Bind {
		setup.Triples[i] = blend.Triple{Bind: res.Bind[i], IK: res.IK[i], FK: res.FK[i]}
	}
	for i := range handleEnd + 1 {
		ctrl, ok := l.Control("fk_" + l.roles[i])
		if !ok {
			return errors.New(errors.ErrCodeInternal, "module %s: fk control %s missing", l.ID(), l.roles[i])
		}
		setup.FKControls = append(setup.FKControls, ctrl)
	}
	ik, _ := l.Control("ik")
	pole, _ := l.Control("pole")
	setup.IKControls = []scene.NodeID{ik, pole}

	sw, err := blend.NewBlender(l.Scene, l.Log).Wire(setup)
	if err != nil {
		return err
	}
	l.sw = sw
	return nil
}

// hideDriven hides the FK and IK chain roots; the bind chain is the
// deliverable skeleton.
func (l *Limb) hideDriven(res chain.Result) error {
	if err := l.SetVisible(res.FK[0], 0); err != nil {
		return err
	}
	return l.SetVisible(res.IK[0], 0)
}
