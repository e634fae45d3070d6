package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kelpfield/riggen/pkg/build"
	"github.com/kelpfield/riggen/pkg/layout"
	"github.com/kelpfield/riggen/pkg/module"
)

// defaultManifestFile is where build looks when no manifest is named.
const defaultManifestFile = "riggen.toml"

// buildOpts carries the build command's flag values.
type buildOpts struct {
	layoutRef string
	out       string
	formats   string
	rankdir   string
	rig       string
	mirror    bool
	refresh   bool
	noCache   bool
	detailed  bool
}

// newBuildCmd creates the build command.
func newBuildCmd() *cobra.Command {
	var opts buildOpts

	cmd := &cobra.Command{
		Use:   "build [manifest.toml]",
		Short: "Build a skeleton from a rig manifest",
		Long: `Build a skeleton from a rig manifest.

The build command assembles the manifest's modules, creates and lays out
their guides, builds oriented bind, FK, and IK chains with blend switches,
links modules into one hierarchy, and mirrors the left side when asked.

Without an argument it reads riggen.toml from the working directory. On an
interactive terminal with no manifest at all, it opens a module picker
seeded with the starter biped.

Artifacts default to the skeleton document (json); --format adds dot, svg,
and png hierarchy diagrams. Results are cached keyed by the manifest and
layout that produced them, so rebuilding an unchanged rig is a lookup.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), args, opts)
		},
	}

	addBuildFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.mirror, "mirror", false, "build right-side counterparts of sided modules")
	return cmd
}

// addBuildFlags registers the flag set build and mirror share.
func addBuildFlags(cmd *cobra.Command, opts *buildOpts) {
	cmd.Flags().StringVarP(&opts.layoutRef, "layout", "l", "", "stored layout name or layout .json file to apply")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", `output base path (default: manifest name; "-" for stdout)`)
	cmd.Flags().StringVarP(&opts.formats, "format", "f", "json", "comma-separated artifact formats: json, dot, svg, png")
	cmd.Flags().StringVar(&opts.rankdir, "rankdir", "", "diagram direction: TB (default), LR")
	cmd.Flags().StringVar(&opts.rig, "rig", "", "rig name for the picker and the starter biped")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "skip cache reads and rebuild")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include module and role metadata in diagram labels")
}

// runBuild resolves the manifest, runs the build, and writes artifacts.
func runBuild(ctx context.Context, args []string, opts buildOpts) error {
	logger := loggerFromContext(ctx)

	manifest, base, ok, err := resolveManifest(args, opts.rig, isTTY())
	if err != nil {
		return err
	}
	if !ok {
		printInfo("No modules selected")
		return nil
	}

	runner, err := newRunner(ctx, logger, opts.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	formats := splitFormats(opts.formats)
	if len(formats) == 0 {
		formats = []string{build.FormatJSON}
	}

	buildOptions := build.Options{
		Manifest: manifest,
		Mirror:   opts.mirror,
		Formats:  formats,
		Refresh:  opts.refresh,
		NoCache:  opts.noCache,
		Rankdir:  opts.rankdir,
		Detailed: opts.detailed,
	}
	if err := applyLayoutRef(&buildOptions, opts.layoutRef); err != nil {
		return err
	}

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Building %s...", manifest.Name))
	spinner.Start()

	result, err := runner.Execute(ctx, buildOptions)
	if err != nil {
		spinner.StopWithError("Build failed")
		return err
	}
	spinner.Stop()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	printSuccess("Built %s", StyleHighlight.Render(manifest.Name))
	reportBuild(result)

	outBase := opts.out
	if outBase == "" {
		outBase = base
	}
	paths, err := writeArtifacts(result.Artifacts, formats, outBase)
	if err != nil {
		return err
	}
	for _, p := range paths {
		printFile(p)
	}
	printStats(len(result.Document.Joints), moduleCount(result.Document), result.CacheInfo.SkeletonHit)

	if outBase != "-" && slices.Contains(formats, build.FormatJSON) {
		printNewline()
		printNextStep("Inspect", "riggen graph "+outBase+".json")
	}
	return nil
}

// resolveManifest picks the manifest for a build: the named file, then
// riggen.toml in the working directory, then the interactive picker
// when interactive, then the starter biped. base is the default
// artifact base path; ok is false when the picker was dismissed.
func resolveManifest(args []string, rig string, interactive bool) (build.Manifest, string, bool, error) {
	if len(args) > 0 {
		m, err := build.LoadManifest(args[0])
		if err != nil {
			return build.Manifest{}, "", false, err
		}
		return m, manifestBase(args[0]), true, nil
	}
	if _, err := os.Stat(defaultManifestFile); err == nil {
		m, err := build.LoadManifest(defaultManifestFile)
		if err != nil {
			return build.Manifest{}, "", false, err
		}
		return m, manifestBase(defaultManifestFile), true, nil
	}
	if rig == "" {
		rig = module.DefaultCharacter
	}
	if interactive {
		m, ok, err := runModulePicker(rig)
		if err != nil || !ok {
			return build.Manifest{}, "", false, err
		}
		return m, m.Name, true, nil
	}
	m := build.DefaultManifest(rig)
	return m, m.Name, true, nil
}

// manifestBase strips the manifest extension for the artifact base path.
func manifestBase(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// applyLayoutRef resolves the --layout flag onto the build options. A
// reference that looks like a file becomes an explicit layout; anything
// else names a stored layout.
func applyLayoutRef(opts *build.Options, ref string) error {
	if ref == "" {
		return nil
	}
	if !looksLikeLayoutFile(ref) {
		opts.LayoutName = ref
		return nil
	}
	lay, err := readLayoutFile(ref)
	if err != nil {
		return err
	}
	opts.Layout = lay
	return nil
}

// looksLikeLayoutFile reports whether a layout reference addresses a file
// rather than a stored name. Stored names cannot carry separators or
// extensions, so either marks a path.
func looksLikeLayoutFile(ref string) bool {
	return strings.HasSuffix(ref, ".json") || strings.ContainsAny(ref, `/\`)
}

// readLayoutFile loads a guide layout from a JSON file.
func readLayoutFile(path string) (layout.Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	var lay layout.Layout
	if err := json.Unmarshal(data, &lay); err != nil {
		return nil, fmt.Errorf("parse layout %s: %w", path, err)
	}
	return lay, nil
}

// reportBuild prints per-module failures and run warnings. A module
// failure also appears in the report's warning list; those duplicates
// are skipped so each failure prints once.
func reportBuild(result *build.Result) {
	failed := map[string]bool{}
	for _, s := range result.Report.Failed() {
		failed[s.ID] = true
		printError("module %s failed: %v", s.ID, s.Err)
	}
	for _, w := range result.Report.Warnings {
		if rest, ok := strings.CutPrefix(w, "module "); ok {
			if id, _, found := strings.Cut(rest, ":"); found && failed[id] {
				continue
			}
		}
		printWarning("%s", w)
	}
}

// moduleCount counts the distinct modules in a skeleton document. The
// registry is empty on a skeleton cache hit, so the document is the
// count's source; it includes mirrored modules the manifest never named.
func moduleCount(doc *build.Document) int {
	seen := map[string]bool{}
	for _, j := range doc.Joints {
		seen[j.Module] = true
	}
	return len(seen)
}

// writeArtifacts writes each requested format next to base. With base
// "-", the single requested artifact streams to stdout instead.
func writeArtifacts(artifacts map[string][]byte, formats []string, base string) ([]string, error) {
	if base == "-" {
		if len(formats) != 1 {
			return nil, fmt.Errorf("stdout output takes exactly one format, got %d", len(formats))
		}
		if _, err := os.Stdout.Write(artifacts[formats[0]]); err != nil {
			return nil, fmt.Errorf("write artifact: %w", err)
		}
		return nil, nil
	}

	var paths []string
	for _, f := range formats {
		data, ok := artifacts[f]
		if !ok {
			continue
		}
		path := base + "." + f
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
