package build

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/scene"
)

func TestSplitChain(t *testing.T) {
	tests := []struct {
		key, chain, role string
	}{
		{"shoulder", ChainBind, "shoulder"},
		{"fk_shoulder", ChainFK, "shoulder"},
		{"ik_wrist", ChainIK, "wrist"},
		{"spine_01", ChainBind, "spine_01"},
	}
	for _, tt := range tests {
		chain, role := splitChain(tt.key)
		if chain != tt.chain || role != tt.role {
			t.Errorf("splitChain(%q) = %s/%s, want %s/%s", tt.key, chain, role, tt.chain, tt.role)
		}
	}
}

func TestDocumentDiagram(t *testing.T) {
	r := NewRunner(scene.NewMemory(), nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{Manifest: testManifest(), Formats: []string{FormatDOT}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	sk := res.Document.Diagram()
	if sk.Name != "hero" {
		t.Errorf("Diagram().Name = %q, want hero", sk.Name)
	}
	if len(sk.Joints) != len(res.Document.Joints) {
		t.Errorf("Diagram() joints = %d, want %d", len(sk.Joints), len(res.Document.Joints))
	}
	dot := string(res.Artifacts[FormatDOT])
	for _, want := range []string{"shoulder_l", "fk_shoulder_l", "ik_shoulder_l", "chest"} {
		if !strings.Contains(dot, want) {
			t.Errorf("dot artifact misses %s", want)
		}
	}
}

func TestDocumentSorted(t *testing.T) {
	r := NewRunner(scene.NewMemory(), nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{Manifest: testManifest()})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	joints := res.Document.Joints
	for i := 1; i < len(joints); i++ {
		a, b := joints[i-1], joints[i]
		if a.Module > b.Module {
			t.Fatalf("joints unsorted by module: %s after %s", b.Module, a.Module)
		}
		if a.Module == b.Module && chainRank[a.Chain] > chainRank[b.Chain] {
			t.Fatalf("module %s: chain %s after %s", a.Module, b.Chain, a.Chain)
		}
	}
}

func TestReadDocument(t *testing.T) {
	doc := &Document{
		Rig: "hero",
		Joints: []JointRecord{
			{Name: "cog", Module: "spine", Role: "cog", Chain: ChainBind, Position: [3]float64{0, 8, 0}},
		},
		Switches: []SwitchRecord{
			{Module: "arm_l", Control: "arm_l_switch_ctrl", Attr: "FkIkBlend", Value: 1},
		},
	}
	data, err := MarshalDocument(doc)
	if err != nil {
		t.Fatalf("MarshalDocument() error = %v", err)
	}
	got, err := ReadDocument(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadDocument() error = %v", err)
	}
	if got.Rig != "hero" || len(got.Joints) != 1 || got.Switches[0].Value != 1 {
		t.Errorf("ReadDocument() = %+v", got)
	}
	if _, err := ReadDocument(strings.NewReader("not json")); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("ReadDocument(garbage) error = %v, want %s", err, errors.ErrCodeInvalidFormat)
	}
}
