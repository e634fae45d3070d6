// Package skelviz renders joint hierarchies as node-link diagrams.
// [ToDOT] turns a [Skeleton] into Graphviz DOT source, and [RenderSVG]
// and [RenderPNG] rasterize it in process. Chains are tinted by kind
// so the bind, FK, and IK copies of a limb read apart at a glance, and
// constraint edges are drawn dashed next to the parent edges.
package skelviz

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Chain kinds a [Joint] can belong to. Anything else renders in the
// plain transform style.
const (
	ChainBind = "bind"
	ChainFK   = "fk"
	ChainIK   = "ik"
)

// Joint is one box in the diagram.
type Joint struct {
	Name   string
	Parent string // empty for a root
	Chain  string // ChainBind, ChainFK, ChainIK, or empty
	Meta   map[string]any
}

// Link is an extra non-hierarchy edge, a constraint or an IK handle
// reaching across chains. Drawn dashed.
type Link struct {
	From string
	To   string
	Kind string // edge label: "parent", "point", "poleVector", "handle"
}

// Skeleton is the diagram input: every joint plus the cross edges.
// Hierarchy edges come from each joint's Parent field.
type Skeleton struct {
	Name   string
	Joints []Joint
	Links  []Link
}

// Options configures diagram generation.
type Options struct {
	// Detailed includes the joint metadata in node labels. When false,
	// only the joint name is shown.
	Detailed bool

	// Rankdir sets the layout direction, "TB" (default) or "LR".
	Rankdir string
}

// ToDOT converts a skeleton to Graphviz DOT format. The resulting DOT
// string can be rendered with [RenderSVG] or [RenderPNG], or saved and
// processed with external Graphviz tools.
func ToDOT(s Skeleton, opts Options) string {
	rankdir := opts.Rankdir
	if rankdir == "" {
		rankdir = "TB"
	}

	var buf bytes.Buffer
	buf.WriteString("digraph skeleton {\n")
	fmt.Fprintf(&buf, "  rankdir=%s;\n", rankdir)
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=24, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, j := range s.Joints {
		label := fmtLabel(j, opts.Detailed)
		attrs := fmtAttrs(j, label)
		fmt.Fprintf(&buf, "  %q [%s];\n", j.Name, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, j := range s.Joints {
		if j.Parent == "" {
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q;\n", j.Parent, j.Name)
	}

	for _, l := range s.Links {
		fmt.Fprintf(&buf, "  %q -> %q [style=dashed, color=gray50, fontcolor=gray50, fontsize=18, arrowhead=open, label=%q];\n",
			l.From, l.To, l.Kind)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(j Joint, detailed bool) string {
	if !detailed {
		return j.Name
	}

	var parts []string
	if j.Chain != "" {
		parts = append(parts, "chain: "+j.Chain)
	}
	for _, k := range slices.Sorted(maps.Keys(j.Meta)) {
		parts = append(parts, fmt.Sprintf("%s: %v", k, j.Meta[k]))
	}
	if len(parts) == 0 {
		return j.Name
	}

	return j.Name + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(j Joint, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch j.Chain {
	case ChainFK:
		attrs = append(attrs, "fillcolor=palegreen")
	case ChainIK:
		attrs = append(attrs, "fillcolor=plum")
	case ChainBind:
		// default white fill
	default:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey")
	}
	return attrs
}
