package scene

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/kelpfield/riggen/pkg/vec"
)

// Memory is the in-process [Graph] used by the engine's tests and the
// command line tools. Node locals compose as translate * orient * rotate
// in the parent's space; world matrices are evaluated on demand, and a
// constraint-driven node resolves its drivers at query time, so weight
// edits show up in the very next query.
//
// IK handles record their chain and solver but the double does not run a
// solve. Rig passes only rely on handle placement, parenting and
// constraints, all of which are modeled.
//
// Memory is not safe for concurrent use. Rig passes run sequentially.
type Memory struct {
	nodes   map[NodeID]*node
	byName  map[string]NodeID
	roots   []NodeID
	inputs  map[AttrRef]AttrRef
	outputs map[AttrRef][]AttrRef
}

type node struct {
	id       NodeID
	name     string
	kind     Kind
	parent   NodeID
	children []NodeID

	translate vec.Vec3
	rotate    mgl64.Mat4
	orient    mgl64.Mat4

	attrs map[string]float64
	specs map[string]AttrSpec

	// drivenBy holds the transform constraint currently driving this
	// node, empty when the node follows its own local transform.
	drivenBy   NodeID
	constraint *constraintRec
	ik         *ikRec
}

type constraintRec struct {
	kind    ConstraintKind
	driven  NodeID
	drivers []NodeID
	aliases []string
	offsets []mgl64.Mat4
}

type ikRec struct {
	start  NodeID
	end    NodeID
	solver IKSolver
}

// NewMemory returns an empty scene.
func NewMemory() *Memory {
	return &Memory{
		nodes:   make(map[NodeID]*node),
		byName:  make(map[string]NodeID),
		inputs:  make(map[AttrRef]AttrRef),
		outputs: make(map[AttrRef][]AttrRef),
	}
}

// Ensure Memory implements Graph.
var _ Graph = (*Memory)(nil)

func (m *Memory) get(id NodeID) (*node, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

func (m *Memory) newNode(name string, kind Kind, parent NodeID) (*node, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if _, taken := m.byName[name]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	if parent != World {
		if _, err := m.get(parent); err != nil {
			return nil, err
		}
	}
	n := &node{
		id:     NodeID(uuid.NewString()),
		name:   name,
		kind:   kind,
		parent: parent,
		rotate: mgl64.Ident4(),
		orient: mgl64.Ident4(),
		attrs:  make(map[string]float64),
		specs:  make(map[string]AttrSpec),
	}
	switch kind {
	case KindTransform, KindJoint, KindIKHandle:
		n.attrs[AttrVisibility] = 1
	}
	m.nodes[n.id] = n
	m.byName[name] = n.id
	if parent == World {
		m.roots = append(m.roots, n.id)
	} else {
		p := m.nodes[parent]
		p.children = append(p.children, n.id)
	}
	return n, nil
}

// Lookup resolves a node name.
func (m *Memory) Lookup(name string) (NodeID, bool) {
	id, ok := m.byName[name]
	return id, ok
}

// Name returns the node's name.
func (m *Memory) Name(id NodeID) (string, error) {
	n, err := m.get(id)
	if err != nil {
		return "", err
	}
	return n.name, nil
}

// Kind returns the node's kind.
func (m *Memory) Kind(id NodeID) (Kind, error) {
	n, err := m.get(id)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// ListChildren returns direct children in creation order. With [World] it
// returns the scene roots.
func (m *Memory) ListChildren(id NodeID) ([]NodeID, error) {
	if id == World {
		return slices.Clone(m.roots), nil
	}
	n, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(n.children), nil
}

// ListConnections returns nodes of the given kind attached to id, ordered
// by name.
func (m *Memory) ListConnections(id NodeID, kind Kind) ([]NodeID, error) {
	if _, err := m.get(id); err != nil {
		return nil, err
	}
	seen := make(map[NodeID]bool)
	var out []NodeID
	add := func(nid NodeID) {
		if !seen[nid] {
			seen[nid] = true
			out = append(out, nid)
		}
	}
	for _, n := range m.nodes {
		if n.kind != kind || n.id == id {
			continue
		}
		if n.constraint != nil {
			if n.constraint.driven == id || slices.Contains(n.constraint.drivers, id) {
				add(n.id)
			}
			continue
		}
		for dst, src := range m.inputs {
			if (src.Node == n.id && dst.Node == id) || (dst.Node == n.id && src.Node == id) {
				add(n.id)
			}
		}
	}
	slices.SortFunc(out, func(a, b NodeID) int {
		return strings.Compare(m.nodes[a].name, m.nodes[b].name)
	})
	return out, nil
}

// CreateTransform creates an empty transform under parent.
func (m *Memory) CreateTransform(name string, parent NodeID) (NodeID, error) {
	n, err := m.newNode(name, KindTransform, parent)
	if err != nil {
		return "", err
	}
	return n.id, nil
}

// CreateJoint creates a joint under parent at the world position at.
func (m *Memory) CreateJoint(name string, parent NodeID, at vec.Vec3) (NodeID, error) {
	n, err := m.newNode(name, KindJoint, parent)
	if err != nil {
		return "", err
	}
	m.placeWorld(n, at)
	return n.id, nil
}

// CreateIKHandle creates an IK handle spanning start..end at the end
// joint's world position.
func (m *Memory) CreateIKHandle(name string, start, end NodeID, solver IKSolver) (NodeID, error) {
	sn, err := m.get(start)
	if err != nil {
		return "", err
	}
	en, err := m.get(end)
	if err != nil {
		return "", err
	}
	if sn.kind != KindJoint || en.kind != KindJoint {
		return "", ErrNotAJoint
	}
	if !m.isBelow(en, sn) {
		return "", ErrIKChainBroken
	}
	n, err := m.newNode(name, KindIKHandle, World)
	if err != nil {
		return "", err
	}
	n.ik = &ikRec{start: start, end: end, solver: solver}
	m.placeWorld(n, vec.TranslationOf(m.worldOf(en)))
	return n.id, nil
}

// isBelow reports whether n sits in the subtree rooted at root.
func (m *Memory) isBelow(n, root *node) bool {
	for cur := n; ; {
		if cur.id == root.id {
			return true
		}
		if cur.parent == World {
			return false
		}
		cur = m.nodes[cur.parent]
	}
}

// MirrorJointTree duplicates the joint subtree at root reflected across
// the plane perpendicular to axis, substituting find with replace in
// names. Joint orients are conjugated by the reflection so the copy keeps
// right-handed frames with behavior mirrored across the plane.
func (m *Memory) MirrorJointTree(root NodeID, axis Axis, find, replace string) ([]NodeID, error) {
	rn, err := m.get(root)
	if err != nil {
		return nil, err
	}
	if rn.kind != KindJoint {
		return nil, ErrNotAJoint
	}
	f := reflection(axis)
	var out []NodeID
	var walk func(src *node, parent NodeID) error
	walk = func(src *node, parent NodeID) error {
		j, err := m.newNode(strings.ReplaceAll(src.name, find, replace), KindJoint, parent)
		if err != nil {
			return err
		}
		out = append(out, j.id)

		srcWorld := m.worldOf(src)
		pos := f.Mul4x1(mgl64.Vec4{srcWorld[12], srcWorld[13], srcWorld[14], 1})
		m.placeWorld(j, vec.New(pos.X(), pos.Y(), pos.Z()))
		mirrored := f.Mul4(rotationOf(srcWorld)).Mul4(f)
		m.bakeOrient(j, mirrored)

		for _, cid := range src.children {
			cn := m.nodes[cid]
			if cn.kind != KindJoint {
				continue
			}
			if err := walk(cn, j.id); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rn, rn.parent); err != nil {
		if len(out) > 0 {
			_ = m.Delete(out[0])
		}
		return nil, err
	}
	return out, nil
}

// reflection returns the world reflection across the plane perpendicular
// to axis.
func reflection(a Axis) mgl64.Mat4 {
	f := mgl64.Ident4()
	switch a {
	case AxisX:
		f[0] = -1
	case AxisY:
		f[5] = -1
	case AxisZ:
		f[10] = -1
	}
	return f
}

// ParentOf returns the node's parent, or [World] for scene roots.
func (m *Memory) ParentOf(id NodeID) (NodeID, error) {
	n, err := m.get(id)
	if err != nil {
		return World, err
	}
	return n.parent, nil
}

// Parent moves the node under a new parent, preserving its world
// transform.
func (m *Memory) Parent(id, parent NodeID) error {
	n, err := m.get(id)
	if err != nil {
		return err
	}
	if parent != World {
		p, err := m.get(parent)
		if err != nil {
			return err
		}
		for cur := p; ; {
			if cur.id == n.id {
				return ErrCycle
			}
			if cur.parent == World {
				break
			}
			cur = m.nodes[cur.parent]
		}
	}
	world := m.worldOf(n)
	m.detach(n)
	n.parent = parent
	if parent == World {
		m.roots = append(m.roots, n.id)
	} else {
		m.nodes[parent].children = append(m.nodes[parent].children, n.id)
	}
	local := m.parentWorld(n).Inv().Mul4(world)
	n.translate = vec.TranslationOf(local)
	n.rotate = n.orient.Inv().Mul4(rotationOf(local))
	return nil
}

// detach removes the node from its parent's child list or the root list.
func (m *Memory) detach(n *node) {
	if n.parent == World {
		m.roots = slices.DeleteFunc(m.roots, func(id NodeID) bool { return id == n.id })
		return
	}
	if p, ok := m.nodes[n.parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(id NodeID) bool { return id == n.id })
	}
}

// Delete removes the node and its subtree, along with any constraints and
// connections that reference the deleted nodes.
func (m *Memory) Delete(id NodeID) error {
	n, err := m.get(id)
	if err != nil {
		return err
	}
	m.deleteSubtree(n)
	return nil
}

func (m *Memory) deleteSubtree(n *node) {
	for _, cid := range slices.Clone(n.children) {
		if cn, ok := m.nodes[cid]; ok {
			m.deleteSubtree(cn)
		}
	}
	m.removeOne(n)
}

func (m *Memory) removeOne(n *node) {
	if _, ok := m.nodes[n.id]; !ok {
		return
	}
	m.detach(n)
	if n.constraint != nil {
		if dn, ok := m.nodes[n.constraint.driven]; ok && dn.drivenBy == n.id {
			dn.drivenBy = ""
		}
	}
	for _, other := range m.nodes {
		if other.constraint == nil || other.id == n.id {
			continue
		}
		if other.constraint.driven == n.id || slices.Contains(other.constraint.drivers, n.id) {
			m.removeOne(other)
		}
	}
	for dst, src := range m.inputs {
		if dst.Node == n.id || src.Node == n.id {
			m.disconnect(src, dst)
		}
	}
	delete(m.byName, n.name)
	delete(m.nodes, n.id)
}

func (m *Memory) disconnect(src, dst AttrRef) {
	delete(m.inputs, dst)
	m.outputs[src] = slices.DeleteFunc(m.outputs[src], func(r AttrRef) bool { return r == dst })
	if len(m.outputs[src]) == 0 {
		delete(m.outputs, src)
	}
}

// SetWorldTranslation places the node at a world position.
func (m *Memory) SetWorldTranslation(id NodeID, p vec.Vec3) error {
	n, err := m.get(id)
	if err != nil {
		return err
	}
	m.placeWorld(n, p)
	return nil
}

// WorldTranslation returns the node's world position.
func (m *Memory) WorldTranslation(id NodeID) (vec.Vec3, error) {
	n, err := m.get(id)
	if err != nil {
		return vec.Vec3{}, err
	}
	return vec.TranslationOf(m.worldOf(n)), nil
}

// SetWorldRotation rotates the node so its world basis matches b.
func (m *Memory) SetWorldRotation(id NodeID, b vec.Basis) error {
	n, err := m.get(id)
	if err != nil {
		return err
	}
	pr := rotationOf(m.parentWorld(n))
	n.rotate = n.orient.Inv().Mul4(pr.Inv()).Mul4(b.Mat4())
	return nil
}

// SetJointOrient bakes the world basis b into the joint's orient and
// zeroes its rotation. The joint's world position does not move.
func (m *Memory) SetJointOrient(id NodeID, b vec.Basis) error {
	n, err := m.get(id)
	if err != nil {
		return err
	}
	if n.kind != KindJoint {
		return ErrNotAJoint
	}
	m.bakeOrient(n, b.Mat4())
	return nil
}

func (m *Memory) bakeOrient(n *node, worldRot mgl64.Mat4) {
	pr := rotationOf(m.parentWorld(n))
	n.orient = pr.Inv().Mul4(worldRot)
	n.rotate = mgl64.Ident4()
}

// WorldMatrix returns the node's world transform.
func (m *Memory) WorldMatrix(id NodeID) (mgl64.Mat4, error) {
	n, err := m.get(id)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	return m.worldOf(n), nil
}

// placeWorld converts a world position to the node's local translation.
func (m *Memory) placeWorld(n *node, p vec.Vec3) {
	local := m.parentWorld(n).Inv().Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	n.translate = vec.New(local.X(), local.Y(), local.Z())
}

func (m *Memory) parentWorld(n *node) mgl64.Mat4 {
	if n.parent == World {
		return mgl64.Ident4()
	}
	return m.worldOf(m.nodes[n.parent])
}

func (m *Memory) localOf(n *node) mgl64.Mat4 {
	t := mgl64.Translate3D(n.translate.X, n.translate.Y, n.translate.Z)
	return t.Mul4(n.orient).Mul4(n.rotate)
}

func (m *Memory) worldOf(n *node) mgl64.Mat4 {
	if n.drivenBy != "" {
		if w, ok := m.constrainedWorld(n); ok {
			return w
		}
	}
	return m.parentWorld(n).Mul4(m.localOf(n))
}

// constrainedWorld blends the driver transforms of the constraint driving
// n. Translations combine as a weighted average; rotations combine by
// successive slerp. Drivers at zero weight drop out, and with every
// weight at zero the node falls back to its own local transform.
func (m *Memory) constrainedWorld(n *node) (mgl64.Mat4, bool) {
	c, ok := m.nodes[n.drivenBy]
	if !ok || c.constraint == nil {
		return mgl64.Mat4{}, false
	}
	rec := c.constraint

	var (
		mats    []mgl64.Mat4
		weights []float64
		total   float64
	)
	for i, d := range rec.drivers {
		dn, ok := m.nodes[d]
		if !ok {
			continue
		}
		w := c.attrs[rec.aliases[i]]
		if w <= 0 {
			continue
		}
		mats = append(mats, m.worldOf(dn).Mul4(rec.offsets[i]))
		weights = append(weights, w)
		total += w
	}
	if total <= 0 {
		return mgl64.Mat4{}, false
	}

	t := translationVec(mats[0]).Mul(weights[0] / total)
	q := mgl64.Mat4ToQuat(rotationOf(mats[0]))
	acc := weights[0]
	for i := 1; i < len(mats); i++ {
		t = t.Add(translationVec(mats[i]).Mul(weights[i] / total))
		acc += weights[i]
		q = mgl64.QuatSlerp(q, mgl64.Mat4ToQuat(rotationOf(mats[i])), weights[i]/acc)
	}
	rot := q.Normalize().Mat4()

	own := m.parentWorld(n).Mul4(m.localOf(n))
	switch rec.kind {
	case ConstraintPoint:
		rot = rotationOf(own)
	case ConstraintOrient:
		t = translationVec(own)
	}
	return mgl64.Translate3D(t.X(), t.Y(), t.Z()).Mul4(rot), true
}

// CreateConstraint constrains driven to the drivers. The constraint node
// is parented under driven and named after it, for example
// "wrist_l_parentConstraint1". Weight aliases follow the driver names:
// "fk_wrist_lW0", "ik_wrist_lW1".
func (m *Memory) CreateConstraint(kind ConstraintKind, drivers []NodeID, driven NodeID, maintainOffset bool) (Constraint, error) {
	if len(drivers) == 0 {
		return Constraint{}, ErrNoDrivers
	}
	dn, err := m.get(driven)
	if err != nil {
		return Constraint{}, err
	}
	for _, d := range drivers {
		if _, err := m.get(d); err != nil {
			return Constraint{}, err
		}
	}
	if kind != ConstraintPoleVector && dn.drivenBy != "" {
		if _, live := m.nodes[dn.drivenBy]; live {
			return Constraint{}, fmt.Errorf("%w: %s", ErrAlreadyConstrained, dn.name)
		}
		dn.drivenBy = ""
	}

	cn, err := m.newNode(m.freeName(dn.name+"_"+kind.String()+"Constraint"), KindConstraint, driven)
	if err != nil {
		return Constraint{}, err
	}
	rec := &constraintRec{kind: kind, driven: driven}
	zero := 0.0
	weights := make([]Weight, 0, len(drivers))
	for i, d := range drivers {
		alias := fmt.Sprintf("%sW%d", m.nodes[d].name, i)
		cn.attrs[alias] = 1
		cn.specs[alias] = AttrSpec{Min: &zero, Default: 1, Keyable: true}
		off := mgl64.Ident4()
		if maintainOffset {
			off = m.worldOf(m.nodes[d]).Inv().Mul4(m.worldOf(dn))
		}
		rec.drivers = append(rec.drivers, d)
		rec.aliases = append(rec.aliases, alias)
		rec.offsets = append(rec.offsets, off)
		weights = append(weights, Weight{Driver: d, Alias: AttrRef{Node: cn.id, Attr: alias}})
	}
	cn.constraint = rec
	if kind != ConstraintPoleVector {
		dn.drivenBy = cn.id
	}
	return Constraint{Node: cn.id, Kind: kind, Weights: weights}, nil
}

// freeName appends the lowest numeric suffix that makes base unique.
func (m *Memory) freeName(base string) string {
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s%d", base, i)
		if _, taken := m.byName[name]; !taken {
			return name
		}
	}
}

// AddAttr adds a scalar attribute initialized to its clamped default.
func (m *Memory) AddAttr(id NodeID, name string, spec AttrSpec) (AttrRef, error) {
	n, err := m.get(id)
	if err != nil {
		return AttrRef{}, err
	}
	if name == "" {
		return AttrRef{}, ErrInvalidName
	}
	if _, exists := n.attrs[name]; exists {
		return AttrRef{}, fmt.Errorf("%w: %s.%s", ErrDuplicateName, n.name, name)
	}
	n.attrs[name] = clampTo(spec, spec.Default)
	n.specs[name] = spec
	return AttrRef{Node: id, Attr: name}, nil
}

func clampTo(s AttrSpec, v float64) float64 {
	if s.Min != nil && v < *s.Min {
		v = *s.Min
	}
	if s.Max != nil && v > *s.Max {
		v = *s.Max
	}
	return v
}

// SetScalar writes an attribute value, clamped to its spec.
func (m *Memory) SetScalar(ref AttrRef, v float64) error {
	n, err := m.get(ref.Node)
	if err != nil {
		return err
	}
	if _, ok := n.attrs[ref.Attr]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownAttr, n.name, ref.Attr)
	}
	if _, driven := m.inputs[ref]; driven {
		return fmt.Errorf("%w: %s.%s", ErrAttrConnected, n.name, ref.Attr)
	}
	m.assign(ref, v)
	return nil
}

// assign writes the value and pushes it through outgoing connections. A
// complement node recomputes its output before fanning out.
func (m *Memory) assign(ref AttrRef, v float64) {
	n := m.nodes[ref.Node]
	if spec, ok := n.specs[ref.Attr]; ok {
		v = clampTo(spec, v)
	}
	n.attrs[ref.Attr] = v
	if n.kind == KindUtility && ref.Attr == attrInput {
		m.assign(AttrRef{Node: n.id, Attr: attrOutput}, 1-v)
	}
	for _, dst := range m.outputs[ref] {
		m.assign(dst, v)
	}
}

// Scalar reads an attribute value.
func (m *Memory) Scalar(ref AttrRef) (float64, error) {
	n, err := m.get(ref.Node)
	if err != nil {
		return 0, err
	}
	v, ok := n.attrs[ref.Attr]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrUnknownAttr, n.name, ref.Attr)
	}
	return v, nil
}

// ConnectScalar wires src to dst and pushes the current value of src.
func (m *Memory) ConnectScalar(src, dst AttrRef) error {
	sv, err := m.Scalar(src)
	if err != nil {
		return err
	}
	dn, err := m.get(dst.Node)
	if err != nil {
		return err
	}
	if _, ok := dn.attrs[dst.Attr]; !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownAttr, dn.name, dst.Attr)
	}
	if _, taken := m.inputs[dst]; taken {
		return fmt.Errorf("%w: %s.%s", ErrAttrConnected, dn.name, dst.Attr)
	}
	if m.reaches(dst, src) {
		return ErrCycle
	}
	m.inputs[dst] = src
	m.outputs[src] = append(m.outputs[src], dst)
	m.assign(dst, sv)
	return nil
}

// reaches reports whether a value written at from would propagate to to.
func (m *Memory) reaches(from, to AttrRef) bool {
	if from == to {
		return true
	}
	next := slices.Clone(m.outputs[from])
	if n, ok := m.nodes[from.Node]; ok && n.kind == KindUtility && from.Attr == attrInput {
		next = append(next, AttrRef{Node: from.Node, Attr: attrOutput})
	}
	for _, d := range next {
		if m.reaches(d, to) {
			return true
		}
	}
	return false
}

const (
	attrInput  = "input"
	attrOutput = "output"
)

// ComplementScalar creates a utility node computing 1-src and returns the
// output reference.
func (m *Memory) ComplementScalar(name string, src AttrRef) (AttrRef, error) {
	if _, err := m.Scalar(src); err != nil {
		return AttrRef{}, err
	}
	n, err := m.newNode(name, KindUtility, World)
	if err != nil {
		return AttrRef{}, err
	}
	n.attrs[attrInput] = 0
	n.attrs[attrOutput] = 1
	if err := m.ConnectScalar(src, AttrRef{Node: n.id, Attr: attrInput}); err != nil {
		return AttrRef{}, err
	}
	return AttrRef{Node: n.id, Attr: attrOutput}, nil
}

func rotationOf(m mgl64.Mat4) mgl64.Mat4 {
	m[12], m[13], m[14] = 0, 0, 0
	return m
}

func translationVec(m mgl64.Mat4) mgl64.Vec3 {
	return mgl64.Vec3{m[12], m[13], m[14]}
}
