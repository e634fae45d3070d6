package limb

import (
	"github.com/kelpfield/riggen/pkg/chain"
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/mirror"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/vec"
)

// MirrorModule raises this limb's opposite-side counterpart. The
// counterpart is registered if it does not exist yet, its guides are
// reflected across YZ unless it already has some, and when this side is
// built the chains are duplicated and the whole rig layer rebuilt on
// the far side. Mirroring again refreshes the result: bind joints,
// handles, controls and constraints come back fresh, FK and IK chains
// already present are reused.
func (l *Limb) MirrorModule() (module.Module, error) {
	if l.Side() != module.SideLeft {
		return nil, errors.New(errors.ErrCodeInvalidSide, "mirror starts from a left module, got %q", l.Side())
	}
	reg := l.Registry()
	if reg == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "module %s is not registered", l.ID())
	}
	right, err := l.counterpart(reg)
	if err != nil {
		return nil, err
	}

	_, had := l.Scene.Lookup(module.GuideName(l.roles[0], right.Side()))
	if err := right.CreateGuides(); err != nil {
		return nil, err
	}
	if !had {
		if err := l.MirrorGuides(right.Base); err != nil {
			return nil, err
		}
	}
	if l.res.Empty() {
		return right, nil
	}
	return right, l.mirrorBuild(right)
}

// counterpart finds or registers the opposite-side limb.
func (l *Limb) counterpart(reg *module.Registry) (*Limb, error) {
	side := l.Side().Opposite()
	id := l.Name() + side.Token()
	if m, ok := reg.Get(id); ok {
		r, ok := m.(*Limb)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "module %s is not a limb", id)
		}
		return r, nil
	}
	r, err := New(l.Scene, l.Log, l.Kind(), l.Name(), side)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

// mirrorBuild duplicates the built chains across YZ and reruns the rig
// stages on the far side.
func (l *Limb) mirrorBuild(r *Limb) error {
	if err := r.EnsureGroups(); err != nil {
		return err
	}
	e := mirror.NewEngine(l.Scene, l.Log)
	mp := mirror.Mapping{Axis: scene.AxisX, Find: l.Side().Token(), Replace: r.Side().Token()}
	src := mirror.Source{BindRoot: l.res.Bind[0], FKRoot: l.res.FK[0], IKRoot: l.res.IK[0]}
	ch, complete, err := e.Chains(src, mp)
	if err != nil {
		return err
	}
	if !complete {
		l.Log.Warn("mirror left an incomplete chain set, rig stages skipped", "module", l.ID())
		return nil
	}

	res, err := r.adoptChains(ch)
	if err != nil {
		return err
	}
	r.res = res
	r.recordJoints(res)

	if err := r.buildIK(res); err != nil {
		return err
	}
	if err := r.buildControls(res); err != nil {
		return err
	}
	if err := r.constrainIK(res); err != nil {
		return err
	}
	if err := r.buildSwitch(res); err != nil {
		return err
	}
	if err := r.wireBlend(res); err != nil {
		return err
	}
	if err := r.hideDriven(res); err != nil {
		return err
	}
	if err := l.CopyControlStyles(r.Base); err != nil {
		return err
	}
	l.Log.Info("limb mirrored", "from", l.ID(), "to", r.ID())
	return nil
}

// adoptChains resolves the mirrored joints into chain order under this
// side's names and parents the chain roots into the joint group.
func (r *Limb) adoptChains(ch mirror.Chains) (chain.Result, error) {
	n := len(r.roles)
	res := chain.Result{
		Bind: make([]scene.NodeID, n),
		FK:   make([]scene.NodeID, n),
		IK:   make([]scene.NodeID, n),
	}
	for i, role := range r.roles {
		name := r.JointName(role)
		bind, ok := ch.Bind[name]
		if !ok {
			return res, errors.New(errors.ErrCodeChainMismatch, "mirrored chains are missing joint %s", name)
		}
		fk, ok := ch.FK[chain.FKName(name)]
		if !ok {
			return res, errors.New(errors.ErrCodeChainMismatch, "mirrored chains are missing joint %s", chain.FKName(name))
		}
		ik, ok := ch.IK[chain.IKName(name)]
		if !ok {
			return res, errors.New(errors.ErrCodeChainMismatch, "mirrored chains are missing joint %s", chain.IKName(name))
		}
		res.Bind[i], res.FK[i], res.IK[i] = bind, fk, ik
	}
	for _, root := range []scene.NodeID{res.Bind[0], res.FK[0], res.IK[0]} {
		if err := r.Scene.Parent(root, r.JointGroup()); err != nil {
			return res, errors.Wrap(errors.ErrCodeInternal, err, "adopt mirrored chain root")
		}
	}
	res.Positions = make([]vec.Vec3, n)
	for i, id := range res.Bind {
		p, err := r.Scene.WorldTranslation(id)
		if err != nil {
			return res, errors.Wrap(errors.ErrCodeInternal, err, "read mirrored joint")
		}
		res.Positions[i] = p
	}
	return res, nil
}
