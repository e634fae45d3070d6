// Package module defines the rig-module contract and the shared plumbing
// every module kind builds on: side and kind enums, the scene naming
// scheme, guide bookkeeping, and the registry that owns the rig-level
// group hierarchy and cross-module lookups.
//
// A module owns three scene groups (guides, joints, controls) under the
// rig-level groups, a set of named guides seeded from its kind's table,
// and whatever joints and controls its Build creates from them. The kind
// implementations live in the subpackages limb, spine, neck and head;
// they embed [Base] and add CreateGuides and Build.
package module

import (
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/layout"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/vec"
)

// Side is a body side token. It is the last component of every node name
// a module creates, which is what makes side mirroring a pure text
// substitution.
type Side string

const (
	SideLeft   Side = "l"
	SideRight  Side = "r"
	SideCenter Side = "c"
)

// ParseSide validates a side token.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "l", "left":
		return SideLeft, nil
	case "r", "right":
		return SideRight, nil
	case "c", "center", "centre":
		return SideCenter, nil
	}
	return "", errors.New(errors.ErrCodeInvalidSide, "unknown side %q (want l, r or c)", s)
}

// Opposite returns the mirrored side. Center is its own opposite.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	}
	return s
}

// Token returns the name suffix for the side, "_l" for [SideLeft].
// Center nodes carry no suffix.
func (s Side) Token() string {
	if s == SideCenter {
		return ""
	}
	return "_" + string(s)
}

// Kind names a module kind.
type Kind string

const (
	KindArm   Kind = "arm"
	KindLeg   Kind = "leg"
	KindSpine Kind = "spine"
	KindNeck  Kind = "neck"
	KindHead  Kind = "head"
)

// ParseKind validates a module kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(s))
	switch k {
	case KindArm, KindLeg, KindSpine, KindNeck, KindHead:
		return k, nil
	}
	return "", errors.New(errors.ErrCodeInvalidKind, "unknown module kind %q", s)
}

// JointName returns the scene name for a role on a side: "shoulder_l".
// FK and IK counterparts prefix this with "fk_" and "ik_".
func JointName(role string, side Side) string {
	return role + side.Token()
}

// GuideName returns the scene name of a role's guide: "shoulder_l_guide".
func GuideName(role string, side Side) string {
	return JointName(role, side) + "_guide"
}

// ControlName returns the control node name for a base name:
// "fk_shoulder_l" becomes "fk_shoulder_l_ctrl".
func ControlName(base string) string { return base + "_ctrl" }

// OffsetName returns the offset-group name holding a control. The group
// receives the world transform so the control itself stays zeroed.
func OffsetName(ctrl string) string { return ctrl + "_grp" }

// Module is the contract the registry and the build pipeline drive.
// CreateGuides and Build are rerunnable: both delete or reuse their
// previous scene output rather than failing on it.
type Module interface {
	// ID is the module's scene identity, "arm_l". Every node the module
	// creates carries the ID's side token.
	ID() string
	Kind() Kind
	Side() Side

	// Attach hands the module its registry. The registry calls it on
	// Register; modules use it to reach rig-level groups and siblings.
	Attach(*Registry)

	// CreateGuides creates the module's guide transforms from its kind's
	// seed table. Guides that already exist keep their positions.
	CreateGuides() error

	// Build creates joints, controls and constraints from the current
	// guide positions.
	Build() error

	// CaptureLayout reads the current guide poses.
	CaptureLayout() (layout.Guides, error)

	// ApplyLayout repositions existing guides from stored poses. Roles
	// with no matching guide are skipped.
	ApplyLayout(layout.Guides) error
}

// Mirrorer is implemented by modules that can build their opposite-side
// counterpart. MirrorModule finds or creates the counterpart through the
// registry, mirrors guides and chains, and rebuilds the side-dependent
// pieces on the target.
type Mirrorer interface {
	Module
	MirrorModule() (Module, error)
}

// Base carries the state and helpers shared by all module kinds. Kinds
// embed a *Base and implement CreateGuides and Build on top of it.
type Base struct {
	Scene scene.Graph
	Log   *log.Logger

	kind Kind
	name string
	side Side
	reg  *Registry

	// Guides, Joints and Controls map roles to scene nodes. Joint keys
	// follow the original chain naming: bind joints under the bare role,
	// FK and IK counterparts under "fk_"- and "ik_"-prefixed roles.
	Guides   map[string]scene.NodeID
	Joints   map[string]scene.NodeID
	Controls map[string]scene.NodeID

	guideGrp   scene.NodeID
	jointGrp   scene.NodeID
	controlGrp scene.NodeID
}

// NewBase returns a Base for a module kind. An empty name defaults to
// the kind string, a nil logger discards output.
func NewBase(g scene.Graph, logger *log.Logger, kind Kind, name string, side Side) *Base {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if name == "" {
		name = string(kind)
	}
	return &Base{
		Scene:    g,
		Log:      logger,
		kind:     kind,
		name:     name,
		side:     side,
		Guides:   map[string]scene.NodeID{},
		Joints:   map[string]scene.NodeID{},
		Controls: map[string]scene.NodeID{},
	}
}

// ID returns "{name}_{side}".
func (b *Base) ID() string { return b.name + b.side.Token() }

// Kind returns the module kind.
func (b *Base) Kind() Kind { return b.kind }

// Side returns the module side.
func (b *Base) Side() Side { return b.side }

// Name returns the module name without the side token.
func (b *Base) Name() string { return b.name }

// Attach stores the registry reference.
func (b *Base) Attach(r *Registry) { b.reg = r }

// Registry returns the attached registry, nil for a standalone module.
func (b *Base) Registry() *Registry { return b.reg }

// JointName returns the bind-joint name for a role on this module's side.
func (b *Base) JointName(role string) string { return JointName(role, b.side) }

// GuideGroup returns the module's guide group, creating groups on demand.
func (b *Base) GuideGroup() scene.NodeID { return b.guideGrp }

// JointGroup returns the module's joint group.
func (b *Base) JointGroup() scene.NodeID { return b.jointGrp }

// ControlGroup returns the module's control group.
func (b *Base) ControlGroup() scene.NodeID { return b.controlGrp }

// EnsureGroups creates the module's guide, joint and control groups,
// parented under the registry's rig groups when the module is attached
// and at the scene root otherwise. Existing groups are reused.
func (b *Base) EnsureGroups() error {
	parents := [3]scene.NodeID{scene.World, scene.World, scene.World}
	if b.reg != nil {
		if err := b.reg.EnsureGroups(); err != nil {
			return err
		}
		parents = [3]scene.NodeID{b.reg.guidesGrp, b.reg.jointsGrp, b.reg.controlsGrp}
	}
	var err error
	if b.guideGrp, err = b.ensureGroup(b.ID()+"_guides", parents[0]); err != nil {
		return err
	}
	if b.jointGrp, err = b.ensureGroup(b.ID()+"_joints", parents[1]); err != nil {
		return err
	}
	if b.controlGrp, err = b.ensureGroup(b.ID()+"_controls", parents[2]); err != nil {
		return err
	}
	return nil
}

func (b *Base) ensureGroup(name string, parent scene.NodeID) (scene.NodeID, error) {
	if id, ok := b.Scene.Lookup(name); ok {
		return id, nil
	}
	id, err := b.Scene.CreateTransform(name, parent)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create group %s", name)
	}
	return id, nil
}

// CreateGuide creates one guide transform at a world position and paints
// it with the guide color. A guide that already exists is reused at its
// current position so rebuilds never stomp hand-placed guides.
func (b *Base) CreateGuide(role string, at vec.Vec3) (scene.NodeID, error) {
	return b.createGuide(role, at, ColorGuide)
}

// CreateBladeGuide creates an orientation-reference guide, painted with
// the blade color so it reads as a helper rather than a joint site.
func (b *Base) CreateBladeGuide(role string, at vec.Vec3) (scene.NodeID, error) {
	return b.createGuide(role, at, ColorBlade)
}

func (b *Base) createGuide(role string, at vec.Vec3, color Color) (scene.NodeID, error) {
	name := GuideName(role, b.side)
	if id, ok := b.Scene.Lookup(name); ok {
		b.Guides[role] = id
		return id, nil
	}
	id, err := b.Scene.CreateTransform(name, b.guideGrp)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create guide %s", name)
	}
	if err := b.Scene.SetWorldTranslation(id, at); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "place guide %s", name)
	}
	if err := Paint(b.Scene, id, color); err != nil {
		return "", err
	}
	b.Guides[role] = id
	return id, nil
}

// GuideWorld returns a guide's world position.
func (b *Base) GuideWorld(role string) (vec.Vec3, error) {
	id, ok := b.Guides[role]
	if !ok {
		return vec.Vec3{}, errors.New(errors.ErrCodeGuideMissing, "module %s: guide %q not created", b.ID(), role)
	}
	p, err := b.Scene.WorldTranslation(id)
	if err != nil {
		return vec.Vec3{}, errors.Wrap(errors.ErrCodeGuideMissing, err, "module %s: guide %q unreadable", b.ID(), role)
	}
	return p, nil
}

// Joint returns the scene node recorded under a joint-map key.
func (b *Base) Joint(role string) (scene.NodeID, bool) {
	id, ok := b.Joints[role]
	return id, ok
}

// Control returns the scene node recorded under a control-map key.
func (b *Base) Control(role string) (scene.NodeID, bool) {
	id, ok := b.Controls[role]
	return id, ok
}

// JointMap returns a copy of the joint map. Callers walking the whole
// skeleton use this instead of poking at the field.
func (b *Base) JointMap() map[string]scene.NodeID { return maps.Clone(b.Joints) }

// ControlMap returns a copy of the control map.
func (b *Base) ControlMap() map[string]scene.NodeID { return maps.Clone(b.Controls) }

// PlaceAt moves a node to a target node's world position and rotation.
// Control offset groups are placed this way so the control itself stays
// zeroed at its joint.
func (b *Base) PlaceAt(id, target scene.NodeID) error {
	w, err := b.Scene.WorldMatrix(target)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "read target transform")
	}
	if err := b.Scene.SetWorldTranslation(id, vec.TranslationOf(w)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "place node")
	}
	if err := b.Scene.SetWorldRotation(id, vec.BasisFromMat4(w)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "orient node")
	}
	return nil
}

// SetVisible writes a node's visibility attribute.
func (b *Base) SetVisible(id scene.NodeID, v float64) error {
	if err := b.Scene.SetScalar(scene.AttrRef{Node: id, Attr: scene.AttrVisibility}, v); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "set visibility")
	}
	return nil
}

// DeleteNamed deletes the named node when it exists and reports whether
// anything was deleted. Rebuild passes call it before recreating their
// output.
func (b *Base) DeleteNamed(name string) (bool, error) {
	id, ok := b.Scene.Lookup(name)
	if !ok {
		return false, nil
	}
	if err := b.Scene.Delete(id); err != nil {
		return false, errors.Wrap(errors.ErrCodeInternal, err, "delete %s", name)
	}
	return true, nil
}

// CaptureLayout reads the world pose of every guide the module created.
func (b *Base) CaptureLayout() (layout.Guides, error) {
	out := layout.Guides{}
	for role, id := range b.Guides {
		w, err := b.Scene.WorldMatrix(id)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "module %s: read guide %q", b.ID(), role)
		}
		out[role] = layout.Pose{
			Position: vec.TranslationOf(w).Array(),
			Rotation: vec.EulerDegrees(w),
		}
	}
	return out, nil
}

// ApplyLayout repositions the module's guides from stored poses. Roles
// the module does not have are skipped, so layouts survive module
// configuration changes. Guides freeze once the module has joints: the
// rig was built from them and moving them afterwards would desync the
// two, so a built module refuses the layout.
func (b *Base) ApplyLayout(lg layout.Guides) error {
	if len(b.Joints) > 0 {
		return errors.New(errors.ErrCodeInvalidInput, "module %s is built, guides are frozen", b.ID())
	}
	for role, pose := range lg {
		id, ok := b.Guides[role]
		if !ok {
			b.Log.Debug("layout role has no guide", "module", b.ID(), "role", role)
			continue
		}
		if err := b.Scene.SetWorldTranslation(id, vec.FromArray(pose.Position)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "module %s: place guide %q", b.ID(), role)
		}
		if err := b.Scene.SetWorldRotation(id, vec.EulerBasis(pose.Rotation)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "module %s: orient guide %q", b.ID(), role)
		}
	}
	return nil
}

// MirrorGuides reflects this module's guide positions onto a target-side
// module across the YZ plane: X negated, rotation Y and Z negated. Roles
// missing on either side are skipped.
func (b *Base) MirrorGuides(target *Base) error {
	for role, src := range b.Guides {
		dst, ok := target.Guides[role]
		if !ok {
			continue
		}
		w, err := b.Scene.WorldMatrix(src)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "read guide %q", role)
		}
		p := vec.TranslationOf(w)
		if err := b.Scene.SetWorldTranslation(dst, vec.New(-p.X, p.Y, p.Z)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "place mirrored guide %q", role)
		}
		rot := vec.EulerDegrees(w)
		mirrored := [3]float64{rot[0], -rot[1], -rot[2]}
		if err := b.Scene.SetWorldRotation(dst, vec.EulerBasis(mirrored)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "orient mirrored guide %q", role)
		}
	}
	return nil
}

// NumberedRole returns a 2-digit padded chain role, "spine_03".
func NumberedRole(prefix string, i int) string {
	return fmt.Sprintf("%s_%02d", prefix, i)
}

// RoleOf strips the module's side token and optional chain prefix from a
// scene name, recovering the joint-map key: "fk_shoulder_l" yields
// "fk_shoulder" on a left module.
func (b *Base) RoleOf(name string) string {
	return strings.TrimSuffix(name, b.side.Token())
}
