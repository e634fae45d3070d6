// Package chain builds the three superimposed joint chains (bind, FK,
// IK) a module's skeleton is made of. The bind chain is the one a mesh
// would be skinned to; the FK and IK chains are created at identical
// positions with identical orientations and only ever feed the bind
// chain through blended constraints.
package chain

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/solver"
	"github.com/kelpfield/riggen/pkg/vec"
)

// DefaultPlanarTol is the planarity tolerance applied to guide chains
// before joint creation.
const DefaultPlanarTol = 1e-3

// FKName returns the FK-chain counterpart of a bind joint name.
func FKName(name string) string { return "fk_" + name }

// IKName returns the IK-chain counterpart of a bind joint name.
func IKName(name string) string { return "ik_" + name }

// Link is one joint of a chain request: the bind joint's name and its
// guide position in world space.
type Link struct {
	Name     string
	Position vec.Vec3
}

// Options steer a chain build.
type Options struct {
	// Parent receives the three chain roots. Zero means the scene root.
	Parent scene.NodeID

	// Pole, when set, orients the first joint's up axis toward it.
	Pole *vec.Vec3

	// UpHint seeds the up-axis fallback cascade. Zero means world Y.
	UpHint vec.Vec3

	// PlanarTol overrides [DefaultPlanarTol] when non-zero.
	PlanarTol float64

	// AimTail, when set, appends one extra position past the last link
	// while orientations are computed, so the terminal joint aims at it
	// instead of inheriting the penultimate basis. The tail takes no
	// part in planarization and gets no joint.
	AimTail *vec.Vec3

	// Bases, when non-nil, supplies one precomputed basis per link and
	// bypasses the solver. Modules that orient chain sections against
	// separate references compute these themselves.
	Bases []vec.Basis

	// Restore resolves a joint name back to its authoritative guide
	// position when a link arrives with the all-zero placeholder left by
	// an unsynced guide. Without it such links fail the build.
	Restore func(name string) (vec.Vec3, bool)

	// WriteBack pushes a planarized position back onto the guide a link
	// came from, so the guides show what the rig was built from. Called
	// only for links the projection actually moved.
	WriteBack func(name string, pos vec.Vec3) error
}

// Result is the outcome of [Builder.Build]. The three chains are index
// aligned with the input links, and Bases holds the per-joint
// orientation snapshot shared by all of them.
type Result struct {
	Bind []scene.NodeID
	FK   []scene.NodeID
	IK   []scene.NodeID

	Bases     []vec.Basis
	Positions []vec.Vec3
}

// Empty reports whether the build produced no joints.
func (r Result) Empty() bool { return len(r.Bind) == 0 }

// Builder creates joint chains through a scene-graph port.
type Builder struct {
	Scene scene.Graph
	Log   *log.Logger
}

// NewBuilder returns a Builder writing through g. A nil logger discards
// output.
func NewBuilder(g scene.Graph, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Builder{Scene: g, Log: logger}
}

// Build creates the bind chain from the links, computes its orientation
// once, then creates the FK and IK chains at the same positions and
// assigns them the same stored orientation values rather than
// recomputing, so the three chains stay geometrically superimposed
// regardless of solver rounding. Existing nodes with the same names are
// deleted first, making a rebuild safe to run at any time.
//
// Non-planar chains are projected onto their best-fit plane with segment
// lengths preserved before any joint is created.
func (b *Builder) Build(links []Link, opts Options) (Result, error) {
	positions, bases, err := b.prepare(links, opts)
	if err != nil {
		return Result{}, err
	}

	bind := make([]string, len(links))
	fk := make([]string, len(links))
	ik := make([]string, len(links))
	for i, l := range links {
		bind[i] = l.Name
		fk[i] = FKName(l.Name)
		ik[i] = IKName(l.Name)
	}

	res := Result{Bases: bases, Positions: positions}
	if res.Bind, err = b.buildOne(bind, positions, bases, opts.Parent); err != nil {
		return Result{}, err
	}
	if res.FK, err = b.buildOne(fk, positions, bases, opts.Parent); err != nil {
		return Result{}, err
	}
	if res.IK, err = b.buildOne(ik, positions, bases, opts.Parent); err != nil {
		return Result{}, err
	}
	b.Log.Debug("joint chains built", "root", links[0].Name, "joints", len(links))
	return res, nil
}

// BuildSingle creates just the bind chain: the same restore, planarity
// and orientation pipeline as [Builder.Build] without the FK and IK
// copies. Modules whose joints are driven by controls directly, with no
// FK/IK blend, build through it.
func (b *Builder) BuildSingle(links []Link, opts Options) (Result, error) {
	positions, bases, err := b.prepare(links, opts)
	if err != nil {
		return Result{}, err
	}

	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}

	res := Result{Bases: bases, Positions: positions}
	if res.Bind, err = b.buildOne(names, positions, bases, opts.Parent); err != nil {
		return Result{}, err
	}
	b.Log.Debug("joint chain built", "root", links[0].Name, "joints", len(links))
	return res, nil
}

// prepare validates the links, restores zeroed positions, planarizes
// and computes the per-joint bases shared by every chain variant.
func (b *Builder) prepare(links []Link, opts Options) ([]vec.Vec3, []vec.Basis, error) {
	if len(links) == 0 {
		return nil, nil, errors.New(errors.ErrCodeGuideMissing, "chain has no links")
	}
	for _, l := range links {
		if l.Name == "" {
			return nil, nil, errors.New(errors.ErrCodeGuideMissing, "chain link missing a name")
		}
	}

	positions := make([]vec.Vec3, len(links))
	for i, l := range links {
		positions[i] = l.Position
	}
	if err := b.restoreZeroed(links, positions, opts); err != nil {
		return nil, nil, err
	}

	tol := opts.PlanarTol
	if tol == 0 {
		tol = DefaultPlanarTol
	}
	if !vec.IsPlanar(positions, tol) {
		b.Log.Warn("guide chain is not planar, projecting onto best-fit plane", "root", links[0].Name)
		planar := vec.MakePlanar(positions, true)
		if opts.WriteBack != nil {
			for i := range planar {
				if planar[i].Distance(positions[i]) <= tol {
					continue
				}
				if err := opts.WriteBack(links[i].Name, planar[i]); err != nil {
					return nil, nil, errors.Wrap(errors.ErrCodeInternal, err, "write back guide for %s", links[i].Name)
				}
			}
		}
		positions = planar
	}

	if opts.Bases != nil {
		if len(opts.Bases) != len(positions) {
			return nil, nil, errors.New(errors.ErrCodeChainMismatch,
				"got %d bases for %d links", len(opts.Bases), len(positions))
		}
		return positions, opts.Bases, nil
	}

	oriented := positions
	if opts.AimTail != nil {
		oriented = append(append([]vec.Vec3{}, positions...), *opts.AimTail)
	}
	bases := solver.ChainBases(oriented, solver.OrientOptions{Pole: opts.Pole, UpHint: opts.UpHint})
	return positions, bases[:len(positions)], nil
}

// restoreZeroed replaces all-zero placeholder positions that follow a
// placed joint with the authoritative guide position.
func (b *Builder) restoreZeroed(links []Link, positions []vec.Vec3, opts Options) error {
	seenPlaced := false
	for i := range positions {
		if !positions[i].IsZero() {
			seenPlaced = true
			continue
		}
		if !seenPlaced {
			continue
		}
		if opts.Restore != nil {
			if p, ok := opts.Restore(links[i].Name); ok && !p.IsZero() {
				b.Log.Warn("joint position was zeroed, restored from guide", "joint", links[i].Name)
				positions[i] = p
				continue
			}
		}
		return errors.New(errors.ErrCodeGuideMissing, "joint %s has no usable position", links[i].Name)
	}
	return nil
}

// buildOne creates a single parent-linked chain and applies the bases.
func (b *Builder) buildOne(names []string, positions []vec.Vec3, bases []vec.Basis, parent scene.NodeID) ([]scene.NodeID, error) {
	for _, n := range names {
		if id, ok := b.Scene.Lookup(n); ok {
			_ = b.Scene.Delete(id)
		}
	}
	ids := make([]scene.NodeID, 0, len(names))
	p := parent
	for i, n := range names {
		id, err := b.Scene.CreateJoint(n, p, positions[i])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "create joint %s", n)
		}
		ids = append(ids, id)
		p = id
	}
	if err := b.applyBases(ids, bases); err != nil {
		return nil, err
	}
	return ids, nil
}

// applyBases writes each joint's orient while holding its transform and
// joint children at their world positions, root to leaf.
func (b *Builder) applyBases(joints []scene.NodeID, bases []vec.Basis) error {
	type snap struct {
		id  scene.NodeID
		pos vec.Vec3
	}
	for i, id := range joints {
		children, err := b.Scene.ListChildren(id)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "list children")
		}
		var snaps []snap
		for _, c := range children {
			k, err := b.Scene.Kind(c)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "inspect child")
			}
			if k != scene.KindJoint && k != scene.KindTransform {
				continue
			}
			p, err := b.Scene.WorldTranslation(c)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "snapshot child")
			}
			snaps = append(snaps, snap{c, p})
		}
		if err := b.Scene.SetJointOrient(id, bases[i]); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "set joint orient")
		}
		for _, s := range snaps {
			if err := b.Scene.SetWorldTranslation(s.id, s.pos); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "restore child position")
			}
		}
	}
	return nil
}
