package build

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/kelpfield/riggen/pkg/blend"
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/skelviz"
	"github.com/kelpfield/riggen/pkg/vec"
)

// Chain labels on joint records, matching the diagram's chain split.
const (
	ChainBind = skelviz.ChainBind
	ChainFK   = skelviz.ChainFK
	ChainIK   = skelviz.ChainIK
)

// Document is the exported skeleton: every joint the build produced
// with its chain, placement and hierarchy, the control inventory, and
// the blend switches with their values at export time. It is the JSON
// build artifact and the serve build response, and carries bson tags
// so deployments can file documents in mongo next to their layouts.
type Document struct {
	Rig      string          `json:"rig" bson:"rig"`
	BuildID  string          `json:"build_id,omitempty" bson:"build_id,omitempty"`
	Built    time.Time       `json:"built,omitempty" bson:"built,omitempty"`
	Joints   []JointRecord   `json:"joints" bson:"joints"`
	Controls []ControlRecord `json:"controls,omitempty" bson:"controls,omitempty"`
	Switches []SwitchRecord  `json:"switches,omitempty" bson:"switches,omitempty"`
}

// JointRecord is one joint: scene name, owning module and role, which
// chain it belongs to, its parent joint (empty at a chain root), and
// its world placement with the orientation as XYZ Euler degrees.
type JointRecord struct {
	Name     string     `json:"name" bson:"name"`
	Module   string     `json:"module" bson:"module"`
	Role     string     `json:"role" bson:"role"`
	Chain    string     `json:"chain" bson:"chain"`
	Parent   string     `json:"parent,omitempty" bson:"parent,omitempty"`
	Position [3]float64 `json:"position" bson:"position"`
	Orient   [3]float64 `json:"orient" bson:"orient"`
}

// ControlRecord is one animator control.
type ControlRecord struct {
	Name   string `json:"name" bson:"name"`
	Module string `json:"module" bson:"module"`
	Role   string `json:"role" bson:"role"`
}

// SwitchRecord is one FK/IK blend switch.
type SwitchRecord struct {
	Module  string  `json:"module" bson:"module"`
	Control string  `json:"control" bson:"control"`
	Attr    string  `json:"attr" bson:"attr"`
	Value   float64 `json:"value" bson:"value"`
}

// jointMapper is what Snapshot needs from a module: the role-keyed
// maps every kind records while building.
type jointMapper interface {
	JointMap() map[string]scene.NodeID
	ControlMap() map[string]scene.NodeID
}

// Snapshot walks every registered module and reads the skeleton out of
// the scene. Modules whose build failed contribute whatever joints
// they got to; the document reflects what is actually in the scene.
func Snapshot(g scene.Graph, reg *module.Registry) (*Document, error) {
	doc := &Document{Rig: reg.Character()}
	for _, m := range reg.Modules() {
		jm, ok := m.(jointMapper)
		if !ok {
			continue
		}
		if err := snapJoints(g, doc, m.ID(), jm.JointMap()); err != nil {
			return nil, err
		}
		if err := snapControls(g, doc, m.ID(), jm.ControlMap()); err != nil {
			return nil, err
		}
	}
	sortDocument(doc)
	return doc, nil
}

func snapJoints(g scene.Graph, doc *Document, moduleID string, joints map[string]scene.NodeID) error {
	for key, id := range joints {
		chain, role := splitChain(key)
		name, err := g.Name(id)
		if err != nil {
			return errors.Wrap(errors.ErrCodeNodeNotFound, err, "module %s: joint %q", moduleID, key)
		}
		m4, err := g.WorldMatrix(id)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "module %s: joint %s transform", moduleID, name)
		}
		rec := JointRecord{
			Name:     name,
			Module:   moduleID,
			Role:     role,
			Chain:    chain,
			Position: vec.TranslationOf(m4).Array(),
			Orient:   vec.EulerDegrees(m4),
		}
		if parent, err := g.ParentOf(id); err == nil && parent != scene.World {
			if k, err := g.Kind(parent); err == nil && k == scene.KindJoint {
				if pn, err := g.Name(parent); err == nil {
					rec.Parent = pn
				}
			}
		}
		doc.Joints = append(doc.Joints, rec)
	}
	return nil
}

func snapControls(g scene.Graph, doc *Document, moduleID string, controls map[string]scene.NodeID) error {
	for role, id := range controls {
		name, err := g.Name(id)
		if err != nil {
			return errors.Wrap(errors.ErrCodeNodeNotFound, err, "module %s: control %q", moduleID, role)
		}
		doc.Controls = append(doc.Controls, ControlRecord{Name: name, Module: moduleID, Role: role})
		if role != "switch" {
			continue
		}
		// A switch control without the blend attribute means the wiring
		// never finished; leave it out rather than invent a value.
		v, err := g.Scalar(scene.AttrRef{Node: id, Attr: blend.AttrBlend})
		if err != nil {
			continue
		}
		doc.Switches = append(doc.Switches, SwitchRecord{
			Module:  moduleID,
			Control: name,
			Attr:    blend.AttrBlend,
			Value:   v,
		})
	}
	return nil
}

// splitChain maps a joint-map key onto its chain and bare role. Bind
// joints sit under the bare role, FK and IK under prefixed keys.
func splitChain(key string) (chain, role string) {
	if r, ok := strings.CutPrefix(key, "fk_"); ok {
		return ChainFK, r
	}
	if r, ok := strings.CutPrefix(key, "ik_"); ok {
		return ChainIK, r
	}
	return ChainBind, key
}

var chainRank = map[string]int{ChainBind: 0, ChainFK: 1, ChainIK: 2}

// sortDocument fixes the record order so the same skeleton always
// serializes to the same bytes.
func sortDocument(doc *Document) {
	sort.SliceStable(doc.Joints, func(i, j int) bool {
		a, b := doc.Joints[i], doc.Joints[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.Chain != b.Chain {
			return chainRank[a.Chain] < chainRank[b.Chain]
		}
		return a.Name < b.Name
	})
	sort.SliceStable(doc.Controls, func(i, j int) bool {
		a, b := doc.Controls[i], doc.Controls[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Name < b.Name
	})
	sort.SliceStable(doc.Switches, func(i, j int) bool {
		return doc.Switches[i].Module < doc.Switches[j].Module
	})
}

// Diagram converts the document into a skelviz skeleton. Hierarchy
// edges come from the joint parents; module and role ride along as
// detail metadata.
func (d *Document) Diagram() skelviz.Skeleton {
	s := skelviz.Skeleton{Name: d.Rig}
	for _, j := range d.Joints {
		s.Joints = append(s.Joints, skelviz.Joint{
			Name:   j.Name,
			Parent: j.Parent,
			Chain:  j.Chain,
			Meta:   map[string]any{"module": j.Module, "role": j.Role},
		})
	}
	return s
}

// MarshalDocument renders the document as indented JSON, the on-disk
// artifact form.
func MarshalDocument(d *Document) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode skeleton document")
	}
	return data, nil
}

// ReadDocument decodes a skeleton document from JSON.
func ReadDocument(r io.Reader) (*Document, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode skeleton document")
	}
	return &d, nil
}
