package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kelpfield/riggen/pkg/build"
)

func TestManifestBase(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"riggen.toml", "riggen"},
		{"rigs/hero.toml", "rigs/hero"},
		{"hero", "hero"},
		{"a.b.toml", "a.b"},
	}
	for _, tt := range tests {
		if got := manifestBase(tt.path); got != tt.want {
			t.Errorf("manifestBase(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLooksLikeLayoutFile(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"pose", false},
		{"v2_pose", false},
		{"pose.json", true},
		{"dir/pose", true},
		{`dir\pose`, true},
	}
	for _, tt := range tests {
		if got := looksLikeLayoutFile(tt.ref); got != tt.want {
			t.Errorf("looksLikeLayoutFile(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestResolveManifestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hero.toml")
	if err := writeManifestFile(path, build.DefaultManifest("hero")); err != nil {
		t.Fatalf("writeManifestFile() error = %v", err)
	}

	m, base, ok, err := resolveManifest([]string{path}, "", false)
	if err != nil {
		t.Fatalf("resolveManifest() error = %v", err)
	}
	if !ok {
		t.Fatal("resolveManifest() ok = false")
	}
	if m.Name != "hero" {
		t.Errorf("manifest name = %q, want hero", m.Name)
	}
	if want := filepath.Join(dir, "hero"); base != want {
		t.Errorf("base = %q, want %q", base, want)
	}
	if len(m.Modules) == 0 {
		t.Error("manifest has no modules")
	}
}

func TestResolveManifestMissingFile(t *testing.T) {
	_, _, _, err := resolveManifest([]string{filepath.Join(t.TempDir(), "gone.toml")}, "", false)
	if err == nil {
		t.Error("missing manifest file did not error")
	}
}

func TestResolveManifestDefaultRig(t *testing.T) {
	// No manifest argument, no riggen.toml in the working directory,
	// not interactive: the starter manifest under the rig name is used.
	m, base, ok, err := resolveManifest(nil, "hero", false)
	if err != nil {
		t.Fatalf("resolveManifest() error = %v", err)
	}
	if !ok {
		t.Fatal("resolveManifest() ok = false")
	}
	if m.Name != "hero" || base != "hero" {
		t.Errorf("name/base = %q/%q, want hero/hero", m.Name, base)
	}
	want := build.DefaultManifest("hero")
	if len(m.Modules) != len(want.Modules) {
		t.Errorf("modules = %d, want %d", len(m.Modules), len(want.Modules))
	}
}

func TestApplyLayoutRef(t *testing.T) {
	t.Run("stored name", func(t *testing.T) {
		var opts build.Options
		if err := applyLayoutRef(&opts, "rest_pose"); err != nil {
			t.Fatalf("applyLayoutRef() error = %v", err)
		}
		if opts.LayoutName != "rest_pose" || opts.Layout != nil {
			t.Errorf("opts = %q/%v, want name rest_pose and nil layout", opts.LayoutName, opts.Layout)
		}
	})

	t.Run("layout file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pose.json")
		content := `{"arm_l": {"wrist": {"position": [15, 15, 0], "rotation": [0, 0, 0]}}}`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write layout file: %v", err)
		}
		var opts build.Options
		if err := applyLayoutRef(&opts, path); err != nil {
			t.Fatalf("applyLayoutRef() error = %v", err)
		}
		if opts.LayoutName != "" {
			t.Errorf("LayoutName = %q, want empty for a file reference", opts.LayoutName)
		}
		pose, ok := opts.Layout["arm_l"]["wrist"]
		if !ok || pose.Position != [3]float64{15, 15, 0} {
			t.Errorf("parsed layout = %v, want the wrist pose from the file", opts.Layout)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		var opts build.Options
		if err := applyLayoutRef(&opts, filepath.Join(t.TempDir(), "gone.json")); err == nil {
			t.Error("missing layout file did not error")
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
			t.Fatalf("write layout file: %v", err)
		}
		var opts build.Options
		if err := applyLayoutRef(&opts, path); err == nil {
			t.Error("malformed layout file did not error")
		}
	})
}

func TestModuleCount(t *testing.T) {
	doc := &build.Document{Joints: []build.JointRecord{
		{Name: "cog", Module: "spine"},
		{Name: "chest", Module: "spine"},
		{Name: "shoulder_l", Module: "arm_l"},
		{Name: "shoulder_r", Module: "arm_r"},
	}}
	if got := moduleCount(doc); got != 3 {
		t.Errorf("moduleCount() = %d, want 3", got)
	}
}

func TestWriteArtifacts(t *testing.T) {
	base := filepath.Join(t.TempDir(), "hero")
	artifacts := map[string][]byte{
		"json": []byte(`{"rig": "hero"}`),
		"dot":  []byte("digraph skeleton {}"),
	}

	paths, err := writeArtifacts(artifacts, []string{"json", "dot"}, base)
	if err != nil {
		t.Fatalf("writeArtifacts() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("writeArtifacts() wrote %d files, want 2", len(paths))
	}
	for _, f := range []string{"json", "dot"} {
		data, err := os.ReadFile(base + "." + f)
		if err != nil {
			t.Fatalf("read %s artifact: %v", f, err)
		}
		if string(data) != string(artifacts[f]) {
			t.Errorf("%s artifact = %q, want %q", f, data, artifacts[f])
		}
	}
}

func TestWriteArtifactsStdoutSingleFormatOnly(t *testing.T) {
	artifacts := map[string][]byte{"json": nil, "dot": nil}
	if _, err := writeArtifacts(artifacts, []string{"json", "dot"}, "-"); err == nil {
		t.Error("stdout output with two formats did not error")
	}
}
