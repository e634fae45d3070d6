// Package mirror reconstructs a target-side rig module from its source
// side.
//
// Mirroring runs in a fixed order per module: bind chain first, FK and
// IK chains next, then freshly built IK handles, then controls posed
// from the target joints, and finally the FK/IK blend wiring. The order
// matters: handles and control transforms derived from mirrored nodes
// inherit the source side's handedness, so [Engine.Handle] always builds
// handles from scratch and controls are posed from the target joints
// rather than reflected from the source controls.
package mirror

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/scene"
)

// Mapping describes one side-to-side reflection: the world axis to
// reflect across and the side token substitution applied to names, for
// example "_l" to "_r" across [scene.AxisX].
type Mapping struct {
	Axis    scene.Axis
	Find    string
	Replace string
}

// Rename applies the side token substitution to a name.
func (m Mapping) Rename(name string) string {
	return strings.ReplaceAll(name, m.Find, m.Replace)
}

// Source names the chain roots of the module being mirrored. FK and IK
// roots are optional; a module without the FK/IK split leaves them empty.
type Source struct {
	BindRoot scene.NodeID
	FKRoot   scene.NodeID
	IKRoot   scene.NodeID
}

// Chains holds the mirrored joints per chain, keyed by target-side node
// name. Callers pattern-match the names back to their role tables.
type Chains struct {
	Bind map[string]scene.NodeID
	FK   map[string]scene.NodeID
	IK   map[string]scene.NodeID
}

// Engine mirrors chains and rebuilds the side-dependent pieces around
// them.
type Engine struct {
	Scene scene.Graph
	Log   *log.Logger
}

// NewEngine returns an engine writing to logger, or silent when logger
// is nil.
func NewEngine(g scene.Graph, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Engine{Scene: g, Log: logger}
}

// Chains mirrors the source chains across the mapping. The bind chain is
// deleted and rebuilt on every call; FK and IK chains already present on
// the target side are reused as they are, so repeated mirroring is
// idempotent. The second result is false when a source root is missing
// or stale; that chain is skipped and the rest still mirror.
func (e *Engine) Chains(src Source, mp Mapping) (Chains, bool, error) {
	var out Chains
	complete := true

	name, ok := e.resolve(src.BindRoot, "bind")
	if !ok {
		return out, false, nil
	}
	if id, exists := e.Scene.Lookup(mp.Rename(name)); exists {
		if err := e.Scene.Delete(id); err != nil {
			return out, false, errors.Wrap(errors.ErrCodeInternal, err, "replace bind chain %s", mp.Rename(name))
		}
	}
	roots, err := e.Scene.MirrorJointTree(src.BindRoot, mp.Axis, mp.Find, mp.Replace)
	if err != nil {
		return out, false, errors.Wrap(errors.ErrCodeInternal, err, "mirror bind chain %s", name)
	}
	if out.Bind, err = e.collect(roots[0]); err != nil {
		return out, false, err
	}

	var chainOK bool
	if out.FK, chainOK, err = e.chain(src.FKRoot, mp, "fk"); err != nil {
		return out, false, err
	}
	complete = complete && chainOK
	if out.IK, chainOK, err = e.chain(src.IKRoot, mp, "ik"); err != nil {
		return out, false, err
	}
	complete = complete && chainOK

	e.Log.Debug("chains mirrored", "source", name, "bind", len(out.Bind), "fk", len(out.FK), "ik", len(out.IK), "complete", complete)
	return out, complete, nil
}

// chain mirrors one FK or IK tree, reusing a target tree that already
// exists.
func (e *Engine) chain(root scene.NodeID, mp Mapping, label string) (map[string]scene.NodeID, bool, error) {
	name, ok := e.resolve(root, label)
	if !ok {
		return nil, false, nil
	}
	if id, exists := e.Scene.Lookup(mp.Rename(name)); exists {
		nodes, err := e.collect(id)
		return nodes, err == nil, err
	}
	roots, err := e.Scene.MirrorJointTree(root, mp.Axis, mp.Find, mp.Replace)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeInternal, err, "mirror %s chain %s", label, name)
	}
	nodes, err := e.collect(roots[0])
	return nodes, err == nil, err
}

// resolve turns a source root handle into its name, logging and
// reporting false when the root is absent or stale.
func (e *Engine) resolve(root scene.NodeID, label string) (string, bool) {
	if root == scene.World {
		e.Log.Warn("mirror source chain missing, skipped",
			"chain", label, "code", errors.ErrCodeMirrorSourceIncomplete)
		return "", false
	}
	name, err := e.Scene.Name(root)
	if err != nil {
		e.Log.Warn("mirror source chain root gone, skipped",
			"chain", label, "code", errors.ErrCodeMirrorSourceIncomplete)
		return "", false
	}
	return name, true
}

// collect maps a joint subtree by node name. Non-joint children end the
// walk on their branch, so handles and constraints under the chain stay
// out of the key map.
func (e *Engine) collect(root scene.NodeID) (map[string]scene.NodeID, error) {
	nodes := make(map[string]scene.NodeID)
	var walk func(id scene.NodeID) error
	walk = func(id scene.NodeID) error {
		k, err := e.Scene.Kind(id)
		if err != nil {
			return err
		}
		if k != scene.KindJoint {
			return nil
		}
		name, err := e.Scene.Name(id)
		if err != nil {
			return err
		}
		nodes[name] = id
		kids, err := e.Scene.ListChildren(id)
		if err != nil {
			return err
		}
		for _, c := range kids {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "collect mirrored chain")
	}
	return nodes, nil
}

// Handle builds a fresh IK handle spanning start..end, replacing any
// node already holding the name, and parents it when parent is not the
// world root. A mirrored handle would keep the source side's solve
// handedness and flip, so handles are always rebuilt.
func (e *Engine) Handle(name string, start, end scene.NodeID, solver scene.IKSolver, parent scene.NodeID) (scene.NodeID, error) {
	if id, ok := e.Scene.Lookup(name); ok {
		if err := e.Scene.Delete(id); err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "replace ik handle %s", name)
		}
	}
	h, err := e.Scene.CreateIKHandle(name, start, end, solver)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create ik handle %s", name)
	}
	if parent != scene.World {
		if err := e.Scene.Parent(h, parent); err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "parent ik handle %s", name)
		}
	}
	return h, nil
}

// PoleConstraint points the handle's solve plane at the pole control.
// The handle is parked at the world root while the constraint is made:
// constraining a handle still nested in a rotated hierarchy flips the
// solve. Stale constraints on the handle are removed first, then the
// handle returns to its original parent.
func (e *Engine) PoleConstraint(handle, pole scene.NodeID) error {
	parent, err := e.Scene.ParentOf(handle)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "resolve handle parent")
	}
	if err := e.Scene.Parent(handle, scene.World); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "unparent ik handle")
	}
	kids, err := e.Scene.ListChildren(handle)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "list handle constraints")
	}
	for _, c := range kids {
		k, err := e.Scene.Kind(c)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "inspect handle child")
		}
		if k == scene.KindConstraint {
			_ = e.Scene.Delete(c)
		}
	}
	if _, err := e.Scene.CreateConstraint(scene.ConstraintPoleVector, []scene.NodeID{pole}, handle, false); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create pole constraint")
	}
	if parent != scene.World {
		if err := e.Scene.Parent(handle, parent); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "restore handle parent")
		}
	}
	return nil
}
