package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kelpfield/riggen/pkg/build"
	"github.com/kelpfield/riggen/pkg/skelviz"
)

// graphOpts carries the graph command's flag values.
type graphOpts struct {
	out      string
	formats  string
	rankdir  string
	detailed bool
	noCache  bool
}

// newGraphCmd creates the graph command.
func newGraphCmd() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "graph <skeleton.json|manifest.toml>",
		Short: "Render a skeleton as a hierarchy diagram",
		Long: `Render a skeleton as a hierarchy diagram.

Given a skeleton document (the json artifact of a build), graph renders
its joint hierarchy without rebuilding: bind chains plain, FK chains
green, IK chains purple, constraint and handle edges dashed.

Given a manifest, graph builds it first (through the cache) and renders
the result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", `output base path (default: input base; "-" for stdout)`)
	cmd.Flags().StringVarP(&opts.formats, "format", "f", "svg", "comma-separated diagram formats: dot, svg, png")
	cmd.Flags().StringVar(&opts.rankdir, "rankdir", "", "diagram direction: TB (default), LR")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include module and role metadata in labels")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching when building from a manifest")
	return cmd
}

// runGraph renders diagrams from a skeleton document or a manifest.
func runGraph(ctx context.Context, input string, opts graphOpts) error {
	formats := splitFormats(opts.formats)
	if len(formats) == 0 {
		formats = []string{build.FormatSVG}
	}
	for _, f := range formats {
		if f == build.FormatJSON || !build.ValidFormats[f] {
			return fmt.Errorf("diagram format %q is not dot, svg, or png", f)
		}
	}

	outBase := opts.out
	if outBase == "" {
		outBase = manifestBase(input)
	}

	if strings.HasSuffix(input, ".json") {
		return graphDocument(ctx, input, outBase, formats, opts)
	}
	return graphManifest(ctx, input, outBase, formats, opts)
}

// graphDocument renders a saved skeleton document directly, no build.
func graphDocument(ctx context.Context, input, outBase string, formats []string, opts graphOpts) error {
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open skeleton %s: %w", input, err)
	}
	defer f.Close()

	doc, err := build.ReadDocument(f)
	if err != nil {
		return err
	}

	dot := skelviz.ToDOT(doc.Diagram(), skelviz.Options{Detailed: opts.detailed, Rankdir: opts.rankdir})

	spinner := newSpinnerWithContext(ctx, "Rendering skeleton...")
	spinner.Start()

	artifacts := map[string][]byte{}
	for _, format := range formats {
		var data []byte
		switch format {
		case build.FormatDOT:
			data = []byte(dot)
		case build.FormatSVG:
			data, err = skelviz.RenderSVG(dot)
		case build.FormatPNG:
			data, err = skelviz.RenderPNG(dot)
		}
		if err != nil {
			spinner.StopWithError("Render failed")
			return err
		}
		artifacts[format] = data
	}
	spinner.Stop()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	printSuccess("Rendered %s", StyleHighlight.Render(doc.Rig))
	paths, err := writeArtifacts(artifacts, formats, outBase)
	if err != nil {
		return err
	}
	for _, p := range paths {
		printFile(p)
	}
	printStats(len(doc.Joints), moduleCount(doc), false)
	return nil
}

// graphManifest builds the manifest and renders the requested diagrams.
func graphManifest(ctx context.Context, input, outBase string, formats []string, opts graphOpts) error {
	manifest, err := build.LoadManifest(input)
	if err != nil {
		return err
	}

	runner, err := newRunner(ctx, loggerFromContext(ctx), opts.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Building %s...", manifest.Name))
	spinner.Start()

	result, err := runner.Execute(ctx, build.Options{
		Manifest: manifest,
		Formats:  formats,
		NoCache:  opts.noCache,
		Rankdir:  opts.rankdir,
		Detailed: opts.detailed,
	})
	if err != nil {
		spinner.StopWithError("Build failed")
		return err
	}
	spinner.Stop()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	printSuccess("Rendered %s", StyleHighlight.Render(manifest.Name))
	reportBuild(result)

	paths, err := writeArtifacts(result.Artifacts, formats, outBase)
	if err != nil {
		return err
	}
	for _, p := range paths {
		printFile(p)
	}
	cached := result.CacheInfo.SkeletonHit && result.CacheInfo.RenderHit
	printStats(len(result.Document.Joints), moduleCount(result.Document), cached)
	return nil
}
