// Package scene defines the scene-graph port the rig engine talks to.
//
// The engine never manipulates a host application directly. Every pass is
// written against [Graph], a narrow view of a DCC scene: named transforms
// and joints in a hierarchy, joint orients, IK handles, weighted
// constraints, and scalar attributes with one-way connections. [Memory]
// implements the port in process so the whole rig build can run and be
// inspected without a host; an adapter for a real host implements the same
// interface and the passes stay untouched.
package scene

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/kelpfield/riggen/pkg/vec"
)

var (
	// ErrNodeNotFound is returned by any operation given a [NodeID] that
	// does not exist in the scene or was deleted.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateName is returned by the create methods and
	// [Graph.MirrorJointTree] when a node with the same name already
	// exists. Names are unique within a scene so rebuild passes can locate
	// and replace their previous results.
	ErrDuplicateName = errors.New("duplicate node name")

	// ErrInvalidName is returned when a node or attribute name is empty.
	ErrInvalidName = errors.New("name must not be empty")

	// ErrNotAJoint is returned by [Graph.CreateIKHandle] and
	// [Graph.MirrorJointTree] when an endpoint or root is not a joint.
	ErrNotAJoint = errors.New("node is not a joint")

	// ErrIKChainBroken is returned by [Graph.CreateIKHandle] when the end
	// joint is not a descendant of the start joint.
	ErrIKChainBroken = errors.New("ik end joint is not below the start joint")

	// ErrNoDrivers is returned by [Graph.CreateConstraint] when the driver
	// list is empty.
	ErrNoDrivers = errors.New("constraint needs at least one driver")

	// ErrAlreadyConstrained is returned by [Graph.CreateConstraint] when
	// the driven node already has a transform constraint. Callers delete
	// the existing constraint first; rig passes always rebuild constraints
	// from scratch rather than editing them in place.
	ErrAlreadyConstrained = errors.New("node already constrained")

	// ErrUnknownAttr is returned by the scalar operations when the named
	// attribute does not exist on the node.
	ErrUnknownAttr = errors.New("unknown attribute")

	// ErrAttrConnected is returned by [Graph.SetScalar] when the attribute
	// is driven by an incoming connection, and by [Graph.ConnectScalar]
	// when the destination already has one. Delete the driving node to
	// disconnect.
	ErrAttrConnected = errors.New("attribute already connected")

	// ErrCycle is returned by [Graph.Parent] and [Graph.ConnectScalar]
	// when the operation would create a cycle.
	ErrCycle = errors.New("operation would create a cycle")
)

// NodeID is an opaque handle to a scene node. Handles stay valid for the
// life of the node; names can be looked up and re-resolved at any time via
// [Graph.Lookup].
type NodeID string

// World is the parent handle for nodes at the scene root.
const World = NodeID("")

// AttrVisibility is the scalar attribute every transform, joint and IK
// handle carries. 1 shows the node, 0 hides it.
const AttrVisibility = "visibility"

// Kind classifies scene nodes.
type Kind int

const (
	// KindTransform is a plain transform (groups, controls, pivots).
	KindTransform Kind = iota
	// KindJoint is a transform with a joint orient, used for skeletons.
	KindJoint
	// KindIKHandle marks an IK handle spanning a joint chain.
	KindIKHandle
	// KindConstraint is a constraint node parented under its driven node.
	KindConstraint
	// KindUtility covers value nodes such as the complement node created
	// by [Graph.ComplementScalar].
	KindUtility
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindJoint:
		return "joint"
	case KindIKHandle:
		return "ikHandle"
	case KindConstraint:
		return "constraint"
	case KindUtility:
		return "utility"
	}
	return "unknown"
}

// ConstraintKind selects which channels of the driven node a constraint
// takes over.
type ConstraintKind int

const (
	// ConstraintPoint drives translation only.
	ConstraintPoint ConstraintKind = iota
	// ConstraintOrient drives rotation only.
	ConstraintOrient
	// ConstraintParent drives translation and rotation together.
	ConstraintParent
	// ConstraintPoleVector pins an IK handle's solve plane to a target.
	// It does not drive the handle's transform.
	ConstraintPoleVector
)

// String returns the constraint kind as it appears in node names, for
// example "parent" in "wrist_l_parentConstraint1".
func (c ConstraintKind) String() string {
	switch c {
	case ConstraintPoint:
		return "point"
	case ConstraintOrient:
		return "orient"
	case ConstraintParent:
		return "parent"
	case ConstraintPoleVector:
		return "poleVector"
	}
	return "unknown"
}

// IKSolver selects the solver attached to an IK handle.
type IKSolver int

const (
	// SolverRotatePlane is the two-bone solver steered by a pole vector.
	SolverRotatePlane IKSolver = iota
	// SolverSingleChain aims the chain without a pole vector.
	SolverSingleChain
)

// String returns the solver name.
func (s IKSolver) String() string {
	switch s {
	case SolverRotatePlane:
		return "rotatePlane"
	case SolverSingleChain:
		return "singleChain"
	}
	return "unknown"
}

// Axis names a world axis. Mirroring across AxisX reflects through the YZ
// plane, which is the left/right plane for a character facing +Z.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// String returns "x", "y" or "z".
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return "unknown"
}

// AttrRef addresses a scalar attribute on a node.
type AttrRef struct {
	Node NodeID `json:"node"`
	Attr string `json:"attr"`
}

// AttrSpec describes a scalar attribute added with [Graph.AddAttr].
// Nil Min/Max leave the corresponding bound open. Values written through
// [Graph.SetScalar] or a connection are clamped to the bounds.
type AttrSpec struct {
	Min     *float64
	Max     *float64
	Default float64
	Keyable bool
}

// Weight pairs a constraint driver with the weight attribute that scales
// its influence. The alias lives on the constraint node, so weight edits
// survive renames of the driver.
type Weight struct {
	Driver NodeID
	Alias  AttrRef
}

// Constraint is the result of [Graph.CreateConstraint]: the constraint
// node plus one weight per driver, in driver order.
type Constraint struct {
	Node    NodeID
	Kind    ConstraintKind
	Weights []Weight
}

// Graph is the scene-graph port. All positions and bases passed in and
// out are world space; implementations convert to whatever local
// representation the host uses. Operations are synchronous and effects
// are visible to the next call.
type Graph interface {
	// Lookup resolves a node name. The second result is false when no
	// node has that name.
	Lookup(name string) (NodeID, bool)
	// Name returns the node's name.
	Name(id NodeID) (string, error)
	// Kind returns the node's kind.
	Kind(id NodeID) (Kind, error)
	// ListChildren returns the node's children in creation order. Passing
	// [World] lists the scene roots.
	ListChildren(id NodeID) ([]NodeID, error)
	// ListConnections returns nodes of the given kind attached to id:
	// constraints driving it or driven by it, or utility nodes wired to
	// one of its attributes. Results are ordered by node name.
	ListConnections(id NodeID, kind Kind) ([]NodeID, error)

	// CreateTransform creates an empty transform under parent.
	CreateTransform(name string, parent NodeID) (NodeID, error)
	// CreateJoint creates a joint under parent at the world position at,
	// with identity orient and zero rotation.
	CreateJoint(name string, parent NodeID, at vec.Vec3) (NodeID, error)
	// CreateIKHandle creates an IK handle spanning start..end at the end
	// joint's world position, parented to the scene root.
	CreateIKHandle(name string, start, end NodeID, solver IKSolver) (NodeID, error)
	// MirrorJointTree duplicates the joint subtree at root reflected
	// across the world plane perpendicular to axis, substituting find
	// with replace in every name. The copy is parented next to the source
	// root and returned in depth-first order, root first. Non-joint
	// children of the source are skipped.
	MirrorJointTree(root NodeID, axis Axis, find, replace string) ([]NodeID, error)

	// ParentOf returns the node's parent, or [World] for scene roots.
	ParentOf(id NodeID) (NodeID, error)
	// Parent moves the node under a new parent, preserving its world
	// transform. Passing [World] unparents it to the scene root.
	Parent(id, parent NodeID) error
	// Delete removes the node and its whole subtree. Constraints and
	// connections referencing deleted nodes are removed as well.
	Delete(id NodeID) error

	// SetWorldTranslation places the node at a world position.
	SetWorldTranslation(id NodeID, p vec.Vec3) error
	// WorldTranslation returns the node's world position.
	WorldTranslation(id NodeID) (vec.Vec3, error)
	// SetWorldRotation rotates the node so its world basis matches b.
	SetWorldRotation(id NodeID, b vec.Basis) error
	// SetJointOrient bakes the world basis b into the joint's orient and
	// zeroes its rotation, leaving the joint's world position untouched.
	SetJointOrient(id NodeID, b vec.Basis) error
	// WorldMatrix returns the node's world transform. Constraint-driven
	// nodes resolve their drivers at call time.
	WorldMatrix(id NodeID) (mgl64.Mat4, error)

	// CreateConstraint constrains driven to one or more drivers. The
	// constraint node is parented under driven and carries one weight
	// attribute per driver, defaulting to 1. With maintainOffset the
	// driven node holds its current world offset from each driver. A
	// second transform constraint on the same node is rejected with
	// [ErrAlreadyConstrained].
	CreateConstraint(kind ConstraintKind, drivers []NodeID, driven NodeID, maintainOffset bool) (Constraint, error)

	// AddAttr adds a scalar attribute initialized to its clamped default.
	AddAttr(id NodeID, name string, spec AttrSpec) (AttrRef, error)
	// SetScalar writes an attribute value, clamped to its spec. Writing a
	// connection-driven attribute fails with [ErrAttrConnected].
	SetScalar(ref AttrRef, v float64) error
	// Scalar reads an attribute value.
	Scalar(ref AttrRef) (float64, error)
	// ConnectScalar wires src to dst. The current value of src is pushed
	// immediately and on every subsequent write. An attribute accepts at
	// most one incoming connection.
	ConnectScalar(src, dst AttrRef) error
	// ComplementScalar creates a utility node whose output is 1-src and
	// returns the output's reference, ready to connect onward.
	ComplementScalar(name string, src AttrRef) (AttrRef, error)
}
