package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kelpfield/riggen/pkg/build"
	"github.com/kelpfield/riggen/pkg/layout"
)

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	if err := runInit(ctx, dir, "hero", false); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}

	manifestPath := filepath.Join(dir, defaultManifestFile)
	m, err := build.LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadManifest(%s) error = %v", manifestPath, err)
	}
	if m.Name != "hero" {
		t.Errorf("manifest name = %q, want hero", m.Name)
	}
	if len(m.Modules) == 0 {
		t.Error("manifest has no modules")
	}

	data, err := os.ReadFile(filepath.Join(dir, guidesFile))
	if err != nil {
		t.Fatalf("read guides file: %v", err)
	}
	var lay layout.Layout
	if err := json.Unmarshal(data, &lay); err != nil {
		t.Fatalf("guides file is not a layout: %v", err)
	}
	if _, ok := lay["spine"]; !ok {
		t.Errorf("captured layout has no spine module, got %v", lay.Modules())
	}
	if _, ok := lay["arm_l"]["pole"]; !ok {
		t.Error("captured layout is missing the arm pole guide")
	}
}

func TestRunInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	if err := runInit(ctx, dir, "hero", false); err != nil {
		t.Fatalf("first runInit() error = %v", err)
	}
	err := runInit(ctx, dir, "hero", false)
	if err == nil {
		t.Fatal("second runInit() without force did not error")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error = %v, want an already-exists refusal", err)
	}
	if err := runInit(ctx, dir, "hero", true); err != nil {
		t.Errorf("runInit() with force error = %v", err)
	}
}

func TestRunInitNameFromDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "villain")
	ctx := context.Background()

	if err := runInit(ctx, dir, "", false); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}
	m, err := build.LoadManifest(filepath.Join(dir, defaultManifestFile))
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if m.Name != "villain" {
		t.Errorf("manifest name = %q, want the directory name villain", m.Name)
	}
}
