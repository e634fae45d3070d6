package build

import (
	"bytes"
	"context"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kelpfield/riggen/pkg/blend"
	"github.com/kelpfield/riggen/pkg/cache"
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/layout"
	"github.com/kelpfield/riggen/pkg/observability"
	"github.com/kelpfield/riggen/pkg/scene"
)

func testManifest() Manifest {
	return Manifest{
		Name: "hero",
		Modules: []ModuleSpec{
			{Kind: "spine", Joints: 3},
			{Kind: "arm", Side: "l", Parent: "spine", Role: "chest"},
		},
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func lookupJoint(doc *Document, moduleID, chain, role string) (JointRecord, bool) {
	for _, j := range doc.Joints {
		if j.Module == moduleID && j.Chain == chain && j.Role == role {
			return j, true
		}
	}
	return JointRecord{}, false
}

func findJoint(t *testing.T, doc *Document, moduleID, chain, role string) JointRecord {
	t.Helper()
	j, ok := lookupJoint(doc, moduleID, chain, role)
	if !ok {
		t.Fatalf("joint %s/%s/%s not in document", moduleID, chain, role)
	}
	return j
}

func TestRunnerExecute(t *testing.T) {
	r := NewRunner(scene.NewMemory(), nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{
		Manifest: testManifest(),
		Formats:  []string{FormatJSON, FormatDOT},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(res.Report.Modules) != 2 {
		t.Fatalf("Report.Modules = %d, want 2", len(res.Report.Modules))
	}
	for _, s := range res.Report.Modules {
		if s.Failed() {
			t.Errorf("module %s failed: %v", s.ID, s.Err)
		}
		if s.Joints == 0 {
			t.Errorf("module %s reports no joints", s.ID)
		}
	}
	if _, err := uuid.Parse(res.Report.BuildID); err != nil {
		t.Errorf("BuildID %q is not a uuid: %v", res.Report.BuildID, err)
	}
	if res.Document == nil || len(res.Document.Joints) == 0 {
		t.Fatal("Execute() produced no skeleton document")
	}
	doc, err := ReadDocument(bytes.NewReader(res.Artifacts[FormatJSON]))
	if err != nil {
		t.Fatalf("ReadDocument(json artifact) error = %v", err)
	}
	if doc.Rig != "hero" || doc.BuildID != res.Report.BuildID {
		t.Errorf("document rig/build = %q/%q, want hero/%q", doc.Rig, doc.BuildID, res.Report.BuildID)
	}
	if dot := string(res.Artifacts[FormatDOT]); !strings.Contains(dot, "digraph skeleton") {
		t.Errorf("dot artifact = %q, want a skeleton digraph", dot)
	}
	if res.CacheInfo.SkeletonHit {
		t.Error("SkeletonHit = true on a first build")
	}
}

func TestRunnerDocumentRecords(t *testing.T) {
	r := NewRunner(scene.NewMemory(), nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{Manifest: testManifest()})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	doc := res.Document

	shoulder := findJoint(t, doc, "arm_l", ChainBind, "shoulder")
	if shoulder.Name != "shoulder_l" {
		t.Errorf("shoulder name = %q, want shoulder_l", shoulder.Name)
	}
	if !approx(shoulder.Position[0], 5) || !approx(shoulder.Position[1], 15) {
		t.Errorf("shoulder at %v, want the (5,15,0) seed", shoulder.Position)
	}
	elbow := findJoint(t, doc, "arm_l", ChainBind, "elbow")
	if elbow.Parent != "shoulder_l" {
		t.Errorf("elbow parent = %q, want shoulder_l", elbow.Parent)
	}
	fk := findJoint(t, doc, "arm_l", ChainFK, "shoulder")
	if fk.Name != "fk_shoulder_l" {
		t.Errorf("fk shoulder name = %q, want fk_shoulder_l", fk.Name)
	}
	chest := findJoint(t, doc, "spine", ChainBind, "chest")
	if chest.Chain != ChainBind {
		t.Errorf("chest chain = %q, want bind", chest.Chain)
	}

	if len(doc.Controls) == 0 {
		t.Error("document has no controls")
	}
	if len(doc.Switches) != 1 {
		t.Fatalf("Switches = %d, want the arm blend switch", len(doc.Switches))
	}
	sw := doc.Switches[0]
	if sw.Module != "arm_l" || sw.Attr != blend.AttrBlend || sw.Control == "" {
		t.Errorf("switch = %+v", sw)
	}
}

func TestRunnerSkeletonCache(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}
	ctx := context.Background()
	opts := Options{Manifest: testManifest(), Formats: []string{FormatJSON, FormatDOT}}

	res1, err := NewRunner(scene.NewMemory(), fc, nil, nil).Execute(ctx, opts)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res1.CacheInfo.SkeletonHit {
		t.Fatal("first build hit the skeleton cache")
	}

	res2, err := NewRunner(scene.NewMemory(), fc, nil, nil).Execute(ctx, opts)
	if err != nil {
		t.Fatalf("Execute() (cached) error = %v", err)
	}
	if !res2.CacheInfo.SkeletonHit {
		t.Fatal("second build missed the skeleton cache")
	}
	if !res2.CacheInfo.RenderHit {
		t.Error("second build missed the render cache")
	}
	if res2.Registry != nil {
		t.Error("cached build assembled a registry")
	}
	if res2.Document.BuildID != res1.Report.BuildID {
		t.Errorf("cached document build id = %q, want %q", res2.Document.BuildID, res1.Report.BuildID)
	}
	if len(res2.Document.Joints) != len(res1.Document.Joints) {
		t.Errorf("cached joints = %d, want %d", len(res2.Document.Joints), len(res1.Document.Joints))
	}

	refresh := opts
	refresh.Refresh = true
	res3, err := NewRunner(scene.NewMemory(), fc, nil, nil).Execute(ctx, refresh)
	if err != nil {
		t.Fatalf("Execute() (refresh) error = %v", err)
	}
	if res3.CacheInfo.SkeletonHit {
		t.Error("refresh build hit the skeleton cache")
	}
	if res3.Report.BuildID == res1.Report.BuildID {
		t.Error("refresh build reused the first build id")
	}

	bypass := opts
	bypass.NoCache = true
	res4, err := NewRunner(scene.NewMemory(), fc, nil, nil).Execute(ctx, bypass)
	if err != nil {
		t.Fatalf("Execute() (no cache) error = %v", err)
	}
	if res4.CacheInfo.SkeletonHit || res4.CacheInfo.RenderHit {
		t.Error("no-cache build touched the cache")
	}
}

// brokenIK fails every IK handle creation, which sinks limb builds but
// leaves chain-only modules alone.
type brokenIK struct {
	scene.Graph
}

func (b brokenIK) CreateIKHandle(name string, start, end scene.NodeID, solver scene.IKSolver) (scene.NodeID, error) {
	return "", errors.New(errors.ErrCodeUnsupported, "no IK in this host")
}

func TestRunnerFailedModuleContinues(t *testing.T) {
	r := NewRunner(brokenIK{scene.NewMemory()}, nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{Manifest: testManifest()})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var spineStatus, armStatus ModuleStatus
	for _, s := range res.Report.Modules {
		switch s.ID {
		case "spine":
			spineStatus = s
		case "arm_l":
			armStatus = s
		}
	}
	if spineStatus.Failed() {
		t.Errorf("spine failed: %v", spineStatus.Err)
	}
	if !armStatus.Failed() {
		t.Fatal("arm build succeeded without IK support")
	}
	if !errors.Is(armStatus.Err, errors.ErrCodeUnsupported) {
		t.Errorf("arm error = %v, want code %s", armStatus.Err, errors.ErrCodeUnsupported)
	}
	if len(res.Report.Failed()) != 1 {
		t.Errorf("Failed() = %d, want 1", len(res.Report.Failed()))
	}
	if len(res.Report.Warnings) == 0 {
		t.Error("report carries no warning for the failed module")
	}
	if _, ok := lookupJoint(res.Document, "spine", ChainBind, "chest"); !ok {
		t.Error("document lost the spine chest joint")
	}
}

func TestRunnerMirror(t *testing.T) {
	m := testManifest()
	m.Mirror = true
	r := NewRunner(scene.NewMemory(), nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{Manifest: m})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if _, ok := res.Registry.Get("arm_r"); !ok {
		t.Fatal("mirror did not register arm_r")
	}
	right, ok := lookupJoint(res.Document, "arm_r", ChainBind, "shoulder")
	if !ok {
		t.Fatal("document misses the mirrored shoulder")
	}
	left := findJoint(t, res.Document, "arm_l", ChainBind, "shoulder")
	if !approx(right.Position[0], -left.Position[0]) || !approx(right.Position[1], left.Position[1]) {
		t.Errorf("mirrored shoulder at %v, want X negated from %v", right.Position, left.Position)
	}
}

func TestRunnerLayoutApplied(t *testing.T) {
	lay := layout.Layout{
		"arm_l": {"shoulder": {Position: [3]float64{6, 16, 0}}},
	}
	r := NewRunner(scene.NewMemory(), nil, nil, nil)
	res, err := r.Execute(context.Background(), Options{Manifest: testManifest(), Layout: lay})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	shoulder := findJoint(t, res.Document, "arm_l", ChainBind, "shoulder")
	if !approx(shoulder.Position[0], 6) || !approx(shoulder.Position[1], 16) {
		t.Errorf("shoulder at %v, want the guide moved to (6,16,0)", shoulder.Position)
	}
}

func TestRunnerLayoutFromStore(t *testing.T) {
	ctx := context.Background()
	store := layout.NewMemory()
	wide := layout.Layout{"arm_l": {"shoulder": {Position: [3]float64{7, 15, 0}}}}
	if err := store.Save(ctx, "wide", wide); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	r := NewRunner(scene.NewMemory(), nil, nil, nil)
	r.Layouts = store
	res, err := r.Execute(ctx, Options{Manifest: testManifest(), LayoutName: "wide"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	shoulder := findJoint(t, res.Document, "arm_l", ChainBind, "shoulder")
	if !approx(shoulder.Position[0], 7) {
		t.Errorf("shoulder at %v, want X from the stored layout", shoulder.Position)
	}

	bare := NewRunner(scene.NewMemory(), nil, nil, nil)
	if _, err := bare.Execute(ctx, Options{Manifest: testManifest(), LayoutName: "wide"}); !errors.Is(err, errors.ErrCodeStore) {
		t.Errorf("Execute() without a store error = %v, want %s", err, errors.ErrCodeStore)
	}

	missing := NewRunner(scene.NewMemory(), nil, nil, nil)
	missing.Layouts = store
	if _, err := missing.Execute(ctx, Options{Manifest: testManifest(), LayoutName: "nope"}); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Execute() with an unknown layout error = %v, want %s", err, errors.ErrCodeNotFound)
	}
}

type recordingHooks struct {
	observability.NoopBuildHooks
	starts    []string
	completes []string
	mirrors   int
}

func (h *recordingHooks) OnModuleStart(ctx context.Context, id, kind string) {
	h.starts = append(h.starts, id)
}

func (h *recordingHooks) OnModuleComplete(ctx context.Context, id, kind string, joints int, d time.Duration, err error) {
	h.completes = append(h.completes, id)
}

func (h *recordingHooks) OnMirrorComplete(ctx context.Context, rig string, modules int, d time.Duration, err error) {
	h.mirrors++
}

func TestRunnerInvokesHooks(t *testing.T) {
	rec := &recordingHooks{}
	observability.SetBuildHooks(rec)
	t.Cleanup(observability.Reset)

	m := testManifest()
	m.Mirror = true
	r := NewRunner(scene.NewMemory(), nil, nil, nil)
	if _, err := r.Execute(context.Background(), Options{Manifest: m}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := []string{"spine", "arm_l"}
	if !slices.Equal(rec.starts, want) {
		t.Errorf("OnModuleStart ids = %v, want %v", rec.starts, want)
	}
	if !slices.Equal(rec.completes, want) {
		t.Errorf("OnModuleComplete ids = %v, want %v", rec.completes, want)
	}
	if rec.mirrors != 1 {
		t.Errorf("OnMirrorComplete calls = %d, want 1", rec.mirrors)
	}
}

func TestRunnerPrepareGuides(t *testing.T) {
	r := NewRunner(scene.NewMemory(), nil, nil, nil)
	reg, err := r.PrepareGuides(context.Background(), Options{
		Manifest: testManifest(),
		Layout:   layout.Layout{"arm_l": {"shoulder": {Position: [3]float64{6, 16, 0}}}},
	})
	if err != nil {
		t.Fatalf("PrepareGuides() error = %v", err)
	}
	lay, err := reg.CaptureLayout()
	if err != nil {
		t.Fatalf("CaptureLayout() error = %v", err)
	}
	shoulder, ok := lay["arm_l"]["shoulder"]
	if !ok {
		t.Fatal("captured layout misses the arm shoulder guide")
	}
	if !approx(shoulder.Position[0], 6) || !approx(shoulder.Position[1], 16) {
		t.Errorf("shoulder guide at %v, want the layout position", shoulder.Position)
	}
	arm, _ := reg.Get("arm_l")
	jm := arm.(interface{ JointMap() map[string]scene.NodeID })
	if n := len(jm.JointMap()); n != 0 {
		t.Errorf("PrepareGuides() built %d joints, want none", n)
	}
}

func TestOptionsValidate(t *testing.T) {
	o := Options{Manifest: testManifest()}
	if err := o.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults() error = %v", err)
	}
	if !slices.Equal(o.Formats, []string{FormatJSON}) {
		t.Errorf("Formats = %v, want the json default", o.Formats)
	}

	mirrored := Options{Manifest: testManifest(), Mirror: true}
	if err := mirrored.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults() error = %v", err)
	}
	if !mirrored.Manifest.Mirror {
		t.Error("Mirror option did not fold into the manifest")
	}

	bad := Options{Manifest: testManifest(), Formats: []string{"gif"}}
	if err := bad.ValidateAndSetDefaults(); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("gif format error = %v, want %s", err, errors.ErrCodeInvalidInput)
	}

	sideways := Options{Manifest: testManifest(), Rankdir: "UP"}
	if err := sideways.ValidateAndSetDefaults(); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("rankdir UP error = %v, want %s", err, errors.ErrCodeInvalidInput)
	}
}
