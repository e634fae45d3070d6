package build

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/module/head"
	"github.com/kelpfield/riggen/pkg/module/limb"
	"github.com/kelpfield/riggen/pkg/module/neck"
	"github.com/kelpfield/riggen/pkg/module/spine"
	"github.com/kelpfield/riggen/pkg/scene"
)

// Manifest describes one rig: its name and the modules to assemble, in
// build order. The TOML form lives in riggen.toml; the same structure
// arrives as JSON on the serve build endpoint.
type Manifest struct {
	Name    string       `toml:"name" json:"name"`
	Mirror  bool         `toml:"mirror,omitempty" json:"mirror,omitempty"`
	Modules []ModuleSpec `toml:"modules" json:"modules"`
}

// ModuleSpec declares one module entry. Kind is a kind token ("spine",
// "arm") or "limb" with Variant picking arm or leg. Side defaults to
// left for limbs and center for everything else. Joints is the chain
// joint count for kinds that take one; zero means the kind's default.
// Parent and Role, set together, link the module under the named joint
// of another manifest entry.
type ModuleSpec struct {
	Kind    string `toml:"kind" json:"kind"`
	Name    string `toml:"name,omitempty" json:"name,omitempty"`
	Side    string `toml:"side,omitempty" json:"side,omitempty"`
	Variant string `toml:"variant,omitempty" json:"variant,omitempty"`
	Joints  int    `toml:"joints,omitempty" json:"joints,omitempty"`
	Parent  string `toml:"parent,omitempty" json:"parent,omitempty"`
	Role    string `toml:"role,omitempty" json:"role,omitempty"`
}

// LoadManifest reads and validates a TOML manifest file.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, errors.Wrap(errors.ErrCodeNotFound, err, "manifest %s", path)
		}
		return Manifest{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse manifest %s", path)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// ParseManifest decodes a JSON manifest, the body format of the serve
// build endpoint, and validates it.
func ParseManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode manifest")
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate normalizes the manifest and checks it is buildable: at
// least one module, unique module IDs, resolvable kinds and sides, and
// parent declarations that point at other manifest entries. An empty
// rig name defaults to [module.DefaultCharacter].
func (m *Manifest) Validate() error {
	if m.Name == "" {
		m.Name = module.DefaultCharacter
	}
	if len(m.Modules) == 0 {
		return errors.New(errors.ErrCodeInvalidManifest, "manifest %q has no modules", m.Name)
	}
	ids := make(map[string]bool, len(m.Modules))
	for _, s := range m.Modules {
		id, err := s.ModuleID()
		if err != nil {
			return err
		}
		if ids[id] {
			return errors.New(errors.ErrCodeInvalidManifest, "module %s declared twice", id)
		}
		ids[id] = true
		if (s.Parent == "") != (s.Role == "") {
			return errors.New(errors.ErrCodeInvalidManifest, "module %s: parent and role must be set together", id)
		}
		if s.Parent == id {
			return errors.New(errors.ErrCodeInvalidManifest, "module %s cannot be its own parent", id)
		}
	}
	for _, s := range m.Modules {
		if s.Parent != "" && !ids[s.Parent] {
			id, _ := s.ModuleID()
			return errors.New(errors.ErrCodeInvalidManifest, "module %s links to %q, which is not in the manifest", id, s.Parent)
		}
	}
	return nil
}

// Warnings returns advisory problems with the manifest: orderings that
// build but lose behavior, like a head listed before the neck it would
// splice onto. Validate does not report these because the build still
// succeeds.
func (m Manifest) Warnings() []string {
	return m.spliceWarnings()
}

// spliceWarnings flags orderings that build but lose behavior: a head
// listed ahead of the neck builds standalone, because the splice looks
// the neck's joints up during the head's own build.
func (m Manifest) spliceWarnings() []string {
	neckSeen := false
	var early []string
	for _, s := range m.Modules {
		kind, _, err := s.resolve()
		if err != nil {
			continue
		}
		if kind == module.KindNeck {
			neckSeen = true
		}
		if kind == module.KindHead && !neckSeen {
			id, _ := s.ModuleID()
			early = append(early, id)
		}
	}
	if !neckSeen {
		return nil
	}
	warns := make([]string, 0, len(early))
	for _, id := range early {
		warns = append(warns, fmt.Sprintf("module %s is listed before the neck and will not splice onto it", id))
	}
	return warns
}

// ModuleID returns the scene ID this spec will build under, "arm_l"
// style: the module name (the kind when unnamed) plus the side token.
func (s ModuleSpec) ModuleID() (string, error) {
	kind, side, err := s.resolve()
	if err != nil {
		return "", err
	}
	name := s.Name
	if name == "" {
		name = string(kind)
	}
	return name + side.Token(), nil
}

// resolve maps the spec's kind and side tokens onto module enums.
func (s ModuleSpec) resolve() (module.Kind, module.Side, error) {
	token := s.Kind
	if strings.EqualFold(token, "limb") {
		if s.Variant == "" {
			return "", "", errors.New(errors.ErrCodeInvalidKind, "limb module needs variant arm or leg")
		}
		if !strings.EqualFold(s.Variant, "arm") && !strings.EqualFold(s.Variant, "leg") {
			return "", "", errors.New(errors.ErrCodeInvalidKind, "limb variant %q is not arm or leg", s.Variant)
		}
		token = s.Variant
	}
	kind, err := module.ParseKind(token)
	if err != nil {
		return "", "", err
	}
	side := module.SideCenter
	if kind == module.KindArm || kind == module.KindLeg {
		side = module.SideLeft
	}
	if s.Side != "" {
		if side, err = module.ParseSide(s.Side); err != nil {
			return "", "", err
		}
	}
	return kind, side, nil
}

// newModule constructs the module a spec declares.
func newModule(g scene.Graph, logger *log.Logger, s ModuleSpec) (module.Module, error) {
	kind, side, err := s.resolve()
	if err != nil {
		return nil, err
	}
	switch kind {
	case module.KindArm, module.KindLeg:
		return limb.New(g, logger, kind, s.Name, side)
	case module.KindSpine:
		return spine.New(g, logger, s.Name, s.Joints), nil
	case module.KindNeck:
		return neck.New(g, logger, s.Name, s.Joints), nil
	case module.KindHead:
		return head.New(g, logger, s.Name), nil
	}
	return nil, errors.New(errors.ErrCodeInvalidKind, "unknown module kind %q", kind)
}

// DefaultManifest returns the starter biped manifest: spine, neck and
// head on the center line, left arm and leg linked to the spine, with
// mirroring on so a build fills in the right side.
func DefaultManifest(name string) Manifest {
	return Manifest{
		Name:   name,
		Mirror: true,
		Modules: []ModuleSpec{
			{Kind: "spine", Joints: 5},
			{Kind: "neck", Joints: 3, Parent: "spine", Role: "chest"},
			{Kind: "head"},
			{Kind: "arm", Side: "l", Parent: "spine", Role: "chest"},
			{Kind: "leg", Side: "l", Parent: "spine", Role: "cog"},
		},
	}
}
