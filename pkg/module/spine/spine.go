// Package spine builds the center spine module: a single bind chain
// rising from the cog through the numbered spine joints into the chest,
// driven by a nested stack of body controls. The spine carries no FK/IK
// split; its controls drive the bind joints directly.
package spine

import (
	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/chain"
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/vec"
)

// Chain roles. The pelvis stays a guide-only landmark: it marks the hip
// height for leg placement but raises no joint of its own.
const (
	RoleCog   = "cog"
	RoleChest = "chest"
)

const (
	spineCtrlSize = 20
	chestCtrlSize = 20.5
)

// Spine is the torso module.
type Spine struct {
	*module.Base

	count int
	roles []string

	res chain.Result
}

// New returns an unbuilt spine. An empty name takes the kind as the
// name; a count below one falls back to [module.DefaultSpineJoints].
func New(g scene.Graph, logger *log.Logger, name string, count int) *Spine {
	if count < 1 {
		count = module.DefaultSpineJoints
	}
	roles := make([]string, 0, count+2)
	roles = append(roles, RoleCog)
	for i := 1; i <= count; i++ {
		roles = append(roles, module.NumberedRole("spine", i))
	}
	roles = append(roles, RoleChest)
	return &Spine{
		Base:  module.NewBase(g, logger, module.KindSpine, name, module.SideCenter),
		count: count,
		roles: roles,
	}
}

// Count returns the numbered spine joint count.
func (s *Spine) Count() int { return s.count }

// Roles returns the chain roles root first, chest last.
func (s *Spine) Roles() []string { return append([]string(nil), s.roles...) }

// Result returns the joint chain from the last Build.
func (s *Spine) Result() chain.Result { return s.res }

// CreateGuides seeds the spine's guides at their default pose. Guides
// that already exist keep their edited positions.
func (s *Spine) CreateGuides() error {
	if err := s.EnsureGroups(); err != nil {
		return err
	}
	for _, seed := range module.SpineSeeds(s.Side(), s.count) {
		if _, err := s.CreateGuide(seed.Role, seed.Pos); err != nil {
			return err
		}
	}
	return nil
}

// Build raises the spine from its guides: the cog-to-chest chain and
// the nested control stack over it. Building again replaces the
// previous result and picks up guide edits.
func (s *Spine) Build() error {
	if err := s.EnsureGroups(); err != nil {
		return err
	}
	res, err := s.buildChain()
	if err != nil {
		return err
	}
	s.res = res
	for i, role := range s.roles {
		s.Joints[role] = res.Bind[i]
	}
	if err := s.buildControls(res); err != nil {
		return err
	}
	s.Log.Info("spine built", "module", s.ID(), "joints", len(res.Bind))
	return nil
}

// buildChain creates the bind chain. The chest guide sits on the last
// spine guide, so the solver never sees its zero-length segment: bases
// are computed up to the last spine joint and the chest joint copies
// that joint's orientation.
func (s *Spine) buildChain() (chain.Result, error) {
	links := make([]chain.Link, len(s.roles)-1)
	for i, role := range s.roles[:len(s.roles)-1] {
		p, err := s.GuideWorld(role)
		if err != nil {
			return chain.Result{}, err
		}
		links[i] = chain.Link{Name: s.JointName(role), Position: p}
	}
	chestPos, err := s.GuideWorld(RoleChest)
	if err != nil {
		return chain.Result{}, err
	}

	res, err := chain.NewBuilder(s.Scene, s.Log).BuildSingle(links, chain.Options{
		Parent:    s.JointGroup(),
		Restore:   s.restoreGuide,
		WriteBack: s.writeGuide,
	})
	if err != nil {
		return chain.Result{}, err
	}

	chestName := s.JointName(RoleChest)
	if _, err := s.DeleteNamed(chestName); err != nil {
		return chain.Result{}, err
	}
	chest, err := s.Scene.CreateJoint(chestName, res.Bind[len(res.Bind)-1], chestPos)
	if err != nil {
		return chain.Result{}, errors.Wrap(errors.ErrCodeInternal, err, "create joint %s", chestName)
	}
	last := res.Bases[len(res.Bases)-1]
	if err := s.Scene.SetJointOrient(chest, last); err != nil {
		return chain.Result{}, errors.Wrap(errors.ErrCodeInternal, err, "orient joint %s", chestName)
	}

	res.Bind = append(res.Bind, chest)
	res.Positions = append(res.Positions, chestPos)
	res.Bases = append(res.Bases, last)
	return res, nil
}

// restoreGuide maps a joint name back to its guide position for links
// that arrive zeroed.
func (s *Spine) restoreGuide(name string) (vec.Vec3, bool) {
	p, err := s.GuideWorld(s.RoleOf(name))
	if err != nil {
		return vec.Vec3{}, false
	}
	return p, true
}

// writeGuide pushes a planarized chain position back onto the guide it
// came from.
func (s *Spine) writeGuide(name string, pos vec.Vec3) error {
	id, ok := s.Guides[s.RoleOf(name)]
	if !ok {
		return nil
	}
	return s.Scene.SetWorldTranslation(id, pos)
}

// buildControls stacks the body circles from the first spine joint up
// to the chest. Each control parent-constrains its joint and carries
// the next control's offset group; the first control also drives the
// cog, so the whole torso translates with it.
func (s *Spine) buildControls(res chain.Result) error {
	parent := s.ControlGroup()
	for i, role := range s.roles[1:] {
		joint := res.Bind[i+1]
		name := module.ControlName(s.JointName(role))
		if _, err := s.DeleteNamed(module.OffsetName(name)); err != nil {
			return err
		}
		size := float64(spineCtrlSize)
		if role == RoleChest {
			size = chestCtrlSize
		}
		spec := module.ControlSpec{Shape: module.ShapeCircle, Size: size, Color: module.ColorMain}
		ctrl, grp, err := module.NewControl(s.Scene, name, spec, parent)
		if err != nil {
			return err
		}
		if err := s.PlaceAt(grp, joint); err != nil {
			return err
		}
		if i == 0 {
			if err := s.flatten(grp); err != nil {
				return err
			}
			cog, ok := s.Joint(RoleCog)
			if !ok {
				return errors.New(errors.ErrCodeInternal, "module %s: cog joint not recorded", s.ID())
			}
			if _, err := s.Scene.CreateConstraint(scene.ConstraintParent, []scene.NodeID{ctrl}, cog, true); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "drive cog")
			}
		}
		if _, err := s.Scene.CreateConstraint(scene.ConstraintParent, []scene.NodeID{ctrl}, joint, true); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "drive joint %s", role)
		}
		s.Controls[role] = ctrl
		parent = ctrl
	}
	return nil
}

// flatten zeroes the Y component of a group's world rotation so the
// root body circle lies level with the floor however the guides lean.
func (s *Spine) flatten(grp scene.NodeID) error {
	w, err := s.Scene.WorldMatrix(grp)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "read control group")
	}
	e := vec.EulerDegrees(w)
	if err := s.Scene.SetWorldRotation(grp, vec.EulerBasis([3]float64{e[0], 0, e[2]})); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "level control group")
	}
	return nil
}
