package cli

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/kelpfield/riggen/pkg/buildinfo"
)

func TestRootCommandStructure(t *testing.T) {
	root := newRootCmd()

	if root.Use != "riggen" {
		t.Errorf("root.Use = %q, want riggen", root.Use)
	}
	if root.Version == "" {
		t.Error("root.Version is empty")
	}

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	want := []string{"init", "build", "mirror", "validate", "graph", "layout", "serve", "completion"}
	for _, name := range want {
		if !slices.Contains(names, name) {
			t.Errorf("root is missing command %q (have %v)", name, names)
		}
	}
}

func TestRootVersionFlag(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"--version"})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("--version error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "riggen") || !strings.Contains(out, buildinfo.Version) {
		t.Errorf("version output = %q, want the app name and %q", out, buildinfo.Version)
	}
}

func TestRootRejectsUnknownCommand(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"frobnicate"})

	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Error("unknown command did not error")
	}
}
