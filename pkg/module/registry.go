package module

import (
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/layout"
	"github.com/kelpfield/riggen/pkg/scene"
)

// DefaultCharacter is the rig name used when none is given.
const DefaultCharacter = "character"

// Registry owns the rig-level group hierarchy and the ordered set of
// registered modules. Modules reach their siblings through it, which is
// how the head finds its neck and how mirroring finds or creates the
// opposite side.
type Registry struct {
	Scene scene.Graph
	Log   *log.Logger

	character string
	modules   []Module
	byID      map[string]Module

	rigGrp      scene.NodeID
	guidesGrp   scene.NodeID
	jointsGrp   scene.NodeID
	controlsGrp scene.NodeID
}

// NewRegistry returns a registry for one character rig. An empty
// character defaults to [DefaultCharacter], a nil logger discards
// output.
func NewRegistry(g scene.Graph, logger *log.Logger, character string) *Registry {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if character == "" {
		character = DefaultCharacter
	}
	return &Registry{
		Scene:     g,
		Log:       logger,
		character: character,
		byID:      map[string]Module{},
	}
}

// Character returns the rig name.
func (r *Registry) Character() string { return r.character }

// EnsureGroups creates the rig-level groups: "<character>_rig" at the
// scene root with guides, joints and controls groups under it. Existing
// groups are reused.
func (r *Registry) EnsureGroups() error {
	var err error
	if r.rigGrp, err = r.ensureGroup(r.character+"_rig", scene.World); err != nil {
		return err
	}
	if r.guidesGrp, err = r.ensureGroup(r.character+"_guides", r.rigGrp); err != nil {
		return err
	}
	if r.jointsGrp, err = r.ensureGroup(r.character+"_joints", r.rigGrp); err != nil {
		return err
	}
	if r.controlsGrp, err = r.ensureGroup(r.character+"_controls", r.rigGrp); err != nil {
		return err
	}
	return nil
}

func (r *Registry) ensureGroup(name string, parent scene.NodeID) (scene.NodeID, error) {
	if id, ok := r.Scene.Lookup(name); ok {
		return id, nil
	}
	id, err := r.Scene.CreateTransform(name, parent)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create rig group %s", name)
	}
	return id, nil
}

// Register adds a module and hands it the registry. Module IDs are
// unique per rig.
func (r *Registry) Register(m Module) error {
	id := m.ID()
	if _, ok := r.byID[id]; ok {
		return errors.New(errors.ErrCodeInvalidInput, "module %s already registered", id)
	}
	r.modules = append(r.modules, m)
	r.byID[id] = m
	m.Attach(r)
	r.Log.Debug("registered module", "module", id, "kind", m.Kind())
	return nil
}

// Get returns a registered module by ID.
func (r *Registry) Get(id string) (Module, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []Module {
	return slices.Clone(r.modules)
}

// FindKind returns the first registered module of a kind on a side.
func (r *Registry) FindKind(k Kind, side Side) (Module, bool) {
	for _, m := range r.modules {
		if m.Kind() == k && m.Side() == side {
			return m, true
		}
	}
	return nil, false
}

// CreateAllGuides creates guides for every registered module in order.
func (r *Registry) CreateAllGuides() error {
	for _, m := range r.modules {
		if err := m.CreateGuides(); err != nil {
			return err
		}
	}
	return nil
}

// BuildAll builds every registered module in order, stopping at the
// first failure. The build runner iterates modules itself when it needs
// to keep going past a failed module.
func (r *Registry) BuildAll() error {
	for _, m := range r.modules {
		if err := m.Build(); err != nil {
			return err
		}
	}
	return nil
}

// CaptureLayout reads every module's guide poses.
func (r *Registry) CaptureLayout() (layout.Layout, error) {
	out := layout.Layout{}
	for _, m := range r.modules {
		lg, err := m.CaptureLayout()
		if err != nil {
			return nil, err
		}
		out[m.ID()] = lg
	}
	return out, nil
}

// ApplyLayout repositions guides from a stored layout. Layout entries
// for unregistered modules are skipped, as are modules absent from the
// layout.
func (r *Registry) ApplyLayout(l layout.Layout) error {
	for id, lg := range l {
		m, ok := r.byID[id]
		if !ok {
			r.Log.Debug("layout entry has no module", "module", id)
			continue
		}
		if err := m.ApplyLayout(lg); err != nil {
			return err
		}
	}
	return nil
}

// Link makes a whole child module follow one joint of a parent module:
// maintain-offset parent constraints from that joint to the child's
// joint and control groups. Relinking replaces the previous link. The
// head's joint-level neck connection happens in the head module itself;
// Link covers the remaining cases, a limb following the spine chest
// being the usual one.
func (r *Registry) Link(childID, parentID, parentRole string) error {
	child, ok := r.byID[childID]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "link: module %s not registered", childID)
	}
	parent, ok := r.byID[parentID]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "link: module %s not registered", parentID)
	}
	anchor, ok := r.linkAnchor(parent, parentRole)
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "link: module %s has no joint %q", parentID, parentRole)
	}
	cb, ok := child.(interface{ linkGroups() []scene.NodeID })
	if !ok {
		return errors.New(errors.ErrCodeUnsupported, "link: module %s has no groups to link", childID)
	}
	for _, grp := range cb.linkGroups() {
		if grp == scene.World {
			continue
		}
		if err := r.relink(anchor, grp); err != nil {
			return err
		}
	}
	r.Log.Info("linked modules", "child", childID, "parent", parentID, "role", parentRole)
	return nil
}

func (r *Registry) linkAnchor(parent Module, role string) (scene.NodeID, bool) {
	jp, ok := parent.(interface{ Joint(string) (scene.NodeID, bool) })
	if !ok {
		return "", false
	}
	return jp.Joint(role)
}

// relink drops any transform constraint on the group and constrains it
// to the anchor joint.
func (r *Registry) relink(anchor, grp scene.NodeID) error {
	cons, err := r.Scene.ListConnections(grp, scene.KindConstraint)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "list link constraints")
	}
	for _, c := range cons {
		parent, err := r.Scene.ParentOf(c)
		if err != nil {
			continue
		}
		if parent == grp {
			if err := r.Scene.Delete(c); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "drop stale link")
			}
		}
	}
	if _, err := r.Scene.CreateConstraint(scene.ConstraintParent, []scene.NodeID{anchor}, grp, true); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "link constraint")
	}
	return nil
}

// MirrorAll mirrors every left-side module that knows how, in
// registration order, and returns how many mirrored. Newly created
// right-side modules register themselves, so a following BuildAll or
// report pass sees them.
func (r *Registry) MirrorAll() (int, error) {
	count := 0
	for _, m := range r.Modules() {
		mm, ok := m.(Mirrorer)
		if !ok || m.Side() != SideLeft {
			continue
		}
		if _, err := mm.MirrorModule(); err != nil {
			return count, errors.Wrap(errors.GetCode(err), err, "mirror %s", m.ID())
		}
		count++
	}
	return count, nil
}

// linkGroups lets the registry constrain a module's scene groups without
// widening the public Module contract.
func (b *Base) linkGroups() []scene.NodeID {
	return []scene.NodeID{b.jointGrp, b.controlGrp}
}
