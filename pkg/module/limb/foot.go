package limb

import (
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/vec"
)

// Roll attributes the leg's IK control carries, all in degrees.
const (
	AttrRoll = "roll"
	AttrTilt = "tilt"
	AttrToe  = "toe"
	AttrHeel = "heel"
)

// footPivots maps pivot names to the guides they sit on, outermost
// first. Nesting in this order lets each pivot rotate the ones after
// it, which is what peels the foot.
var footPivots = [4]struct{ name, guide string }{
	{"heel_pivot", "heel"},
	{"toe_pivot", "toe"},
	{"ball_pivot", "foot"},
	{"ankle_pivot", "ankle"},
}

func (l *Limb) footRollName() string { return l.ID() + "_foot_roll_grp" }

// FootPivot returns a reverse-foot pivot by name, "ball_pivot" for one.
func (l *Limb) FootPivot(name string) (scene.NodeID, bool) {
	id, ok := l.pivots[name]
	return id, ok
}

// buildFootRoll raises the reverse-foot stack under the control group
// and adopts the leg's handles into it: the main and ankle-to-foot
// handles under the ankle pivot, the toe handle under the ball pivot.
// The roll attributes land on the IK control.
func (l *Limb) buildFootRoll() error {
	if _, err := l.DeleteNamed(l.footRollName()); err != nil {
		return err
	}
	grp, err := l.Scene.CreateTransform(l.footRollName(), l.ControlGroup())
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create foot roll group")
	}
	l.footRoll = grp

	parent := grp
	l.pivots = map[string]scene.NodeID{}
	for _, p := range footPivots {
		id, err := l.Scene.CreateTransform(l.ID()+"_"+p.name, parent)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "create %s", p.name)
		}
		pos, err := l.GuideWorld(p.guide)
		if err != nil {
			return err
		}
		if err := l.Scene.SetWorldTranslation(id, pos); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "place %s", p.name)
		}
		l.pivots[p.name] = id
		parent = id
	}

	for _, h := range []struct{ handle, pivot string }{
		{l.handleName(), "ankle_pivot"},
		{l.ID() + "_ankle_foot_ikh", "ankle_pivot"},
		{l.ID() + "_foot_toe_ikh", "ball_pivot"},
	} {
		id, ok := l.Scene.Lookup(h.handle)
		if !ok {
			return errors.New(errors.ErrCodeInternal, "module %s: handle %s missing", l.ID(), h.handle)
		}
		if err := l.Scene.Parent(id, l.pivots[h.pivot]); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "adopt handle %s", h.handle)
		}
	}

	ik, ok := l.Control("ik")
	if !ok {
		return errors.New(errors.ErrCodeInternal, "module %s: ik control missing", l.ID())
	}
	for _, attr := range []string{AttrRoll, AttrTilt, AttrToe, AttrHeel} {
		if _, err := l.Scene.AddAttr(ik, attr, scene.AttrSpec{Keyable: true}); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "add %s attribute", attr)
		}
	}
	return nil
}

// ApplyFootRoll poses the reverse-foot pivots from the roll attributes
// on the IK control. Negative roll tips the heel back, positive roll
// bends the ball, toe and heel add their own lifts, and tilt banks the
// foot over the ball. The ankle pivot rides its parents, which is what
// carries the handles.
func (l *Limb) ApplyFootRoll() error {
	if l.Kind() != module.KindLeg {
		return errors.New(errors.ErrCodeUnsupported, "foot roll is a leg feature")
	}
	if l.pivots == nil {
		return errors.New(errors.ErrCodeInvalidInput, "module %s is not built", l.ID())
	}
	ik, _ := l.Control("ik")
	read := func(attr string) (float64, error) {
		v, err := l.Scene.Scalar(scene.AttrRef{Node: ik, Attr: attr})
		if err != nil {
			return 0, errors.Wrap(errors.ErrCodeAttrNotFound, err, "read %s", attr)
		}
		return v, nil
	}
	roll, err := read(AttrRoll)
	if err != nil {
		return err
	}
	tilt, err := read(AttrTilt)
	if err != nil {
		return err
	}
	toe, err := read(AttrToe)
	if err != nil {
		return err
	}
	heel, err := read(AttrHeel)
	if err != nil {
		return err
	}

	hx := heel + min(roll, 0)
	set := func(pivot string, e [3]float64) error {
		if err := l.Scene.SetWorldRotation(l.pivots[pivot], vec.EulerBasis(e)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "pose %s", pivot)
		}
		return nil
	}
	if err := set("heel_pivot", [3]float64{hx, 0, 0}); err != nil {
		return err
	}
	if err := set("toe_pivot", [3]float64{hx + toe, 0, 0}); err != nil {
		return err
	}
	return set("ball_pivot", [3]float64{hx + toe + max(roll, 0), 0, tilt})
}
