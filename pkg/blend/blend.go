// Package blend wires a limb's FK/IK switching. One scalar attribute on
// the switch control drives everything: the bind chain follows the IK
// chain at 1 and the FK chain at 0 through complementary constraint
// weights, and control visibility flips with it so only the active set
// shows.
package blend

import (
	stderrors "errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/vec"
)

// AttrBlend is the switch attribute name. 0 is pure FK, 1 is pure IK.
const AttrBlend = "FkIkBlend"

// matchPoleDistance is how far from the mid joint a matched pole control
// is placed along the bend direction.
const matchPoleDistance = 5.0

// Triple names the three parallel joints blended at one chain index.
type Triple struct {
	Bind scene.NodeID
	IK   scene.NodeID
	FK   scene.NodeID
}

// Setup describes one limb's blend wiring. FKControls are index aligned
// with Triples; IKControls hold the IK end control first, then the pole
// control when the limb has one.
type Setup struct {
	Switch     scene.NodeID
	Triples    []Triple
	FKControls []scene.NodeID
	IKControls []scene.NodeID

	// End is the triple index of the IK handle's end joint. Chains that
	// carry tail joints past the handle, a hand or a toe, set it so
	// matching targets the handle end. Zero means the last triple.
	End int
}

// Blender wires blend setups through a scene-graph port.
type Blender struct {
	Scene scene.Graph
	Log   *log.Logger
}

// NewBlender returns a Blender writing through g. A nil logger discards
// output.
func NewBlender(g scene.Graph, logger *log.Logger) *Blender {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Blender{Scene: g, Log: logger}
}

// Switch operates a wired blend.
type Switch struct {
	g     scene.Graph
	log   *log.Logger
	setup Setup

	// Attr is the blend scalar on the switch control.
	Attr scene.AttrRef

	// Skipped counts joints whose constraint did not expose exactly two
	// weights and were left unwired.
	Skipped int
}

// Wire builds the blend network for a setup. Any previous constraints on
// the bind joints are deleted and recreated, so rewiring after a rebuild
// is safe. Constraint weights are bound by driver identity rather than
// slot position: whichever weight belongs to the IK joint follows the
// switch value directly, the FK weight follows its complement, keeping
// the two summing to one at every value.
//
// Visibility defaults are written before the live connections so the
// controls never flash both sets: with the switch at its default of 1
// the FK controls start hidden and the IK controls start shown.
func (b *Blender) Wire(setup Setup) (*Switch, error) {
	switchName, err := b.Scene.Name(setup.Switch)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "resolve switch node")
	}

	one := 1.0
	zero := 0.0
	attr, err := b.Scene.AddAttr(setup.Switch, AttrBlend, scene.AttrSpec{
		Min: &zero, Max: &one, Default: 1, Keyable: true,
	})
	if stderrors.Is(err, scene.ErrDuplicateName) {
		// rebuild path: keep the attribute and whatever value it holds
		attr = scene.AttrRef{Node: setup.Switch, Attr: AttrBlend}
	} else if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "add blend attribute")
	}
	s, err := b.Scene.Scalar(attr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read blend value")
	}

	// drop the stale complement node first: that also frees the FK
	// visibility attributes it was driving
	revName := switchName + "_rev"
	if id, ok := b.Scene.Lookup(revName); ok {
		_ = b.Scene.Delete(id)
	}

	// visibility defaults first, live connections after
	for _, ctrl := range setup.FKControls {
		if err := b.presetScalar(scene.AttrRef{Node: ctrl, Attr: scene.AttrVisibility}, 1-s); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "preset fk visibility")
		}
	}
	for _, ctrl := range setup.IKControls {
		if err := b.presetScalar(scene.AttrRef{Node: ctrl, Attr: scene.AttrVisibility}, s); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "preset ik visibility")
		}
	}

	rev, err := b.Scene.ComplementScalar(revName, attr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create complement node")
	}

	sw := &Switch{g: b.Scene, log: b.Log, setup: setup, Attr: attr}
	for _, tr := range setup.Triples {
		if err := b.wireTriple(tr, attr, rev, sw); err != nil {
			return nil, err
		}
	}

	for _, ctrl := range setup.FKControls {
		if err := b.connectLenient(rev, scene.AttrRef{Node: ctrl, Attr: scene.AttrVisibility}); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "wire fk visibility")
		}
	}
	for _, ctrl := range setup.IKControls {
		if err := b.connectLenient(attr, scene.AttrRef{Node: ctrl, Attr: scene.AttrVisibility}); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "wire ik visibility")
		}
	}

	b.Log.Debug("fk/ik blend wired", "switch", switchName, "joints", len(setup.Triples), "skipped", sw.Skipped)
	return sw, nil
}

// presetScalar writes a value, leaving connection-driven attributes to
// their driver. Rewiring an intact setup hits that case for the IK
// visibilities, which already track the switch.
func (b *Blender) presetScalar(ref scene.AttrRef, v float64) error {
	err := b.Scene.SetScalar(ref, v)
	if stderrors.Is(err, scene.ErrAttrConnected) {
		return nil
	}
	return err
}

// connectLenient wires src to dst, treating an existing incoming
// connection as already wired.
func (b *Blender) connectLenient(src, dst scene.AttrRef) error {
	err := b.Scene.ConnectScalar(src, dst)
	if stderrors.Is(err, scene.ErrAttrConnected) {
		return nil
	}
	return err
}

// wireTriple rebuilds the blended constraint for one joint.
func (b *Blender) wireTriple(tr Triple, attr, rev scene.AttrRef, sw *Switch) error {
	existing, err := b.Scene.ListConnections(tr.Bind, scene.KindConstraint)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "list bind constraints")
	}
	for _, c := range existing {
		_ = b.Scene.Delete(c)
	}

	c, err := b.Scene.CreateConstraint(scene.ConstraintParent, []scene.NodeID{tr.IK, tr.FK}, tr.Bind, false)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create blend constraint")
	}
	if len(c.Weights) != 2 {
		name, _ := b.Scene.Name(tr.Bind)
		b.Log.Warn("blend constraint does not expose two weights, joint left unwired",
			"joint", name, "weights", len(c.Weights), "code", errors.ErrCodeConstraintWeightMismatch)
		sw.Skipped++
		return nil
	}
	for _, w := range c.Weights {
		switch w.Driver {
		case tr.IK:
			err = b.Scene.ConnectScalar(attr, w.Alias)
		case tr.FK:
			err = b.Scene.ConnectScalar(rev, w.Alias)
		default:
			name, _ := b.Scene.Name(w.Driver)
			b.Log.Warn("blend constraint weight belongs to neither chain", "driver", name)
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "connect constraint weight")
		}
	}
	return nil
}

// endIndex resolves the IK end triple, defaulting to the last.
func (s *Switch) endIndex() int {
	e := s.setup.End
	if e <= 0 || e >= len(s.setup.Triples) {
		return len(s.setup.Triples) - 1
	}
	return e
}

// Value returns the current blend scalar.
func (s *Switch) Value() (float64, error) {
	return s.g.Scalar(s.Attr)
}

// Set writes the blend scalar. Values outside [0,1] clamp.
func (s *Switch) Set(v float64) error {
	return s.g.SetScalar(s.Attr, v)
}

// SwitchToFK snaps the blend to pure FK.
func (s *Switch) SwitchToFK() error { return s.Set(0) }

// SwitchToIK snaps the blend to pure IK.
func (s *Switch) SwitchToIK() error { return s.Set(1) }

// MatchFKToIK poses the FK controls to the current IK pose so switching
// to FK holds the pose. The blend is forced to the IK side while the
// bind chain is read, then restored.
func (s *Switch) MatchFKToIK() error {
	prev, err := s.Value()
	if err != nil {
		return err
	}
	if err := s.Set(1); err != nil {
		return err
	}
	defer func() { _ = s.Set(prev) }()

	for i, ctrl := range s.setup.FKControls {
		if i >= len(s.setup.Triples) {
			break
		}
		w, err := s.g.WorldMatrix(s.setup.Triples[i].Bind)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "read bind transform")
		}
		if err := s.g.SetWorldTranslation(ctrl, vec.TranslationOf(w)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "pose fk control")
		}
		if err := s.g.SetWorldRotation(ctrl, vec.BasisFromMat4(w)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "orient fk control")
		}
	}
	return nil
}

// MatchIKToFK poses the IK end control, and the pole control when
// present, to the current FK pose. The blend is forced to the FK side
// while the bind chain is read, then restored.
func (s *Switch) MatchIKToFK() error {
	if len(s.setup.IKControls) == 0 || len(s.setup.Triples) == 0 {
		return nil
	}
	prev, err := s.Value()
	if err != nil {
		return err
	}
	if err := s.Set(0); err != nil {
		return err
	}
	defer func() { _ = s.Set(prev) }()

	end := s.setup.Triples[s.endIndex()].Bind
	w, err := s.g.WorldMatrix(end)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "read bind transform")
	}
	ctrl := s.setup.IKControls[0]
	if err := s.g.SetWorldTranslation(ctrl, vec.TranslationOf(w)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "pose ik control")
	}
	if err := s.g.SetWorldRotation(ctrl, vec.BasisFromMat4(w)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "orient ik control")
	}

	if len(s.setup.IKControls) > 1 && s.endIndex() >= 2 {
		pole, err := s.polePosition()
		if err != nil {
			return err
		}
		if err := s.g.SetWorldTranslation(s.setup.IKControls[1], pole); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "pose pole control")
		}
	}
	return nil
}

// polePosition derives a pole placement preserving the bind chain's
// current bend: out from the mid joint along its offset from the
// root-end chord. A straight limb falls back to the limb-plane normal.
func (s *Switch) polePosition() (vec.Vec3, error) {
	tr := s.setup.Triples
	end := s.endIndex()
	rootP, err := s.g.WorldTranslation(tr[0].Bind)
	if err != nil {
		return vec.Vec3{}, errors.Wrap(errors.ErrCodeInternal, err, "read chain root")
	}
	midP, err := s.g.WorldTranslation(tr[(end+1)/2].Bind)
	if err != nil {
		return vec.Vec3{}, errors.Wrap(errors.ErrCodeInternal, err, "read chain mid")
	}
	endP, err := s.g.WorldTranslation(tr[end].Bind)
	if err != nil {
		return vec.Vec3{}, errors.Wrap(errors.ErrCodeInternal, err, "read chain end")
	}
	bend := midP.Sub(rootP.Mid(endP))
	if bend.Norm() < vec.Epsilon {
		up := vec.WorldY
		aim := endP.Sub(rootP).Unit()
		if !aim.IsZero() && aim.Cross(up).Norm() < vec.Epsilon {
			up = vec.WorldZ
		}
		bend = aim.Cross(up).Cross(aim)
		if bend.IsZero() {
			bend = vec.WorldZ
		}
	}
	return midP.Add(bend.Unit().Scale(matchPoleDistance)), nil
}
