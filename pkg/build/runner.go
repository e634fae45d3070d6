// Package build turns a rig manifest into a built skeleton. A Runner
// instantiates the manifest's modules, lays out their guides, builds
// them in order, applies the declared links, mirrors the left side on
// request, and exports the result as a skeleton document plus rendered
// hierarchy diagrams. Artifacts are cached keyed by the manifest and
// layout that produced them, so rebuilding an unchanged rig is a
// lookup.
//
// CLI and server share this package; both hand a [Manifest] to a
// [Runner] and read artifacts off the [Result]. A module that fails to
// build aborts only itself: its status carries the coded error and the
// run continues with the rest of the rig.
package build

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/kelpfield/riggen/pkg/cache"
	"github.com/kelpfield/riggen/pkg/errors"
	"github.com/kelpfield/riggen/pkg/layout"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/observability"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/skelviz"
)

// Artifact formats a build can export.
const (
	FormatJSON = "json"
	FormatDOT  = "dot"
	FormatSVG  = "svg"
	FormatPNG  = "png"
)

// ValidFormats is the set of supported artifact formats.
var ValidFormats = map[string]bool{
	FormatJSON: true,
	FormatDOT:  true,
	FormatSVG:  true,
	FormatPNG:  true,
}

// Options configures one build run.
type Options struct {
	// Manifest declares the rig to assemble.
	Manifest Manifest

	// LayoutName names a stored guide layout to apply before building.
	// Layout, when non-nil, is applied instead.
	LayoutName string
	Layout     layout.Layout

	// Mirror builds right-side counterparts after the left side is up.
	// The manifest can also request this.
	Mirror bool

	// Formats picks the artifacts to export. Defaults to json.
	Formats []string

	// Refresh skips cache reads; NoCache skips the cache entirely.
	Refresh bool
	NoCache bool

	// Rankdir and Detailed shape the rendered diagrams.
	Rankdir  string
	Detailed bool
}

// ValidateAndSetDefaults checks the options and fills in defaults. The
// Mirror option is folded into the manifest here so the skeleton cache
// key sees it; a mirrored and an unmirrored build of the same manifest
// never share an entry.
func (o *Options) ValidateAndSetDefaults() error {
	if err := o.Manifest.Validate(); err != nil {
		return err
	}
	if o.Mirror {
		o.Manifest.Mirror = true
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatJSON}
	}
	for _, f := range o.Formats {
		if !ValidFormats[f] {
			return errors.New(errors.ErrCodeInvalidInput, "unknown artifact format %q", f)
		}
	}
	switch o.Rankdir {
	case "", "TB", "LR":
	default:
		return errors.New(errors.ErrCodeInvalidInput, "diagram direction %q is not TB or LR", o.Rankdir)
	}
	return nil
}

// renderFormats returns the formats that go through the diagram
// renderer.
func (o *Options) renderFormats() []string {
	out := make([]string, 0, len(o.Formats))
	for _, f := range o.Formats {
		if f != FormatJSON {
			out = append(out, f)
		}
	}
	return out
}

// Report is the per-run build record: what was built, how long each
// stage took, and what went wrong without stopping the run.
type Report struct {
	BuildID   string
	Rig       string
	Modules   []ModuleStatus
	Durations Durations
	Warnings  []string
}

// Failed returns the statuses of modules that did not build.
func (r *Report) Failed() []ModuleStatus {
	var out []ModuleStatus
	for _, s := range r.Modules {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}

// ModuleStatus records one module's build outcome. A failed module
// keeps its coded error here; the run itself carries on.
type ModuleStatus struct {
	ID       string
	Kind     string
	Joints   int
	Duration time.Duration
	Err      error
}

// Failed reports whether the module build errored.
func (s ModuleStatus) Failed() bool { return s.Err != nil }

// Durations breaks the run down by stage.
type Durations struct {
	Guides time.Duration
	Build  time.Duration
	Link   time.Duration
	Mirror time.Duration
	Export time.Duration
	Total  time.Duration
}

// CacheInfo tracks which outputs came out of the cache.
type CacheInfo struct {
	// SkeletonHit means the whole document was cached and the scene
	// was never assembled.
	SkeletonHit bool

	// RenderHit means every requested diagram came from the cache.
	RenderHit bool
}

// Result contains the outputs of a build run.
type Result struct {
	// Registry holds the built modules. Nil when the skeleton came out
	// of the cache.
	Registry *module.Registry

	// Document is the exported skeleton.
	Document *Document

	// Artifacts contains the exported outputs keyed by format.
	Artifacts map[string][]byte

	// Report records per-module outcomes and stage timings.
	Report Report

	// CacheInfo tracks cache hits.
	CacheInfo CacheInfo
}

// Runner executes builds. CLI and server share one so caching and
// logging behave the same from both. The runner holds no per-run
// state; each Execute assembles a fresh registry on the scene unless
// one was injected.
type Runner struct {
	Scene    scene.Graph
	Registry *module.Registry
	Layouts  layout.Store
	Cache    cache.Cache
	Keyer    cache.Keyer
	Logger   *log.Logger
}

// NewRunner creates a runner on a scene. A nil cache disables caching,
// a nil keyer uses the default key scheme, a nil logger discards
// output. The layout store stays nil unless the caller sets one.
func NewRunner(g scene.Graph, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{Scene: g, Cache: c, Keyer: keyer, Logger: logger}
}

// Execute runs the full pipeline: guides → builds → links → mirror →
// artifacts. Module build failures are reported and skipped;
// infrastructure failures (scene, store, renderer) abort the run. On a
// skeleton cache hit the scene is never touched and Result.Registry
// stays nil.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	start := time.Now()
	result := &Result{Artifacts: map[string][]byte{}}
	result.Report = Report{BuildID: uuid.NewString(), Rig: opts.Manifest.Name}

	lay, err := r.resolveLayout(ctx, opts)
	if err != nil {
		return nil, err
	}
	skelKey, err := r.skeletonKey(opts.Manifest, lay)
	if err != nil {
		return nil, err
	}

	if doc, ok := r.cachedDocument(ctx, opts, skelKey); ok {
		result.Document = doc
		result.CacheInfo.SkeletonHit = true
		if err := r.export(ctx, doc, opts, result); err != nil {
			return nil, err
		}
		result.Report.Durations.Total = time.Since(start)
		r.Logger.Info("skeleton from cache",
			"rig", result.Report.Rig,
			"joints", len(doc.Joints),
			"duration", result.Report.Durations.Total)
		return result, nil
	}

	reg := r.Registry
	if reg == nil {
		reg = module.NewRegistry(r.Scene, r.Logger, opts.Manifest.Name)
	}
	result.Registry = reg
	for _, w := range opts.Manifest.spliceWarnings() {
		result.Report.Warnings = append(result.Report.Warnings, w)
		r.Logger.Warn(w)
	}

	guideStart := time.Now()
	mods, err := r.assemble(reg, opts.Manifest)
	if err != nil {
		return nil, err
	}
	if err := reg.EnsureGroups(); err != nil {
		return nil, err
	}
	if err := reg.CreateAllGuides(); err != nil {
		return nil, err
	}
	if lay != nil {
		if err := reg.ApplyLayout(lay); err != nil {
			return nil, err
		}
	}
	result.Report.Durations.Guides = time.Since(guideStart)
	r.Logger.Info("guides ready",
		"modules", len(mods),
		"layout", opts.LayoutName,
		"duration", result.Report.Durations.Guides)

	buildStart := time.Now()
	r.buildModules(ctx, mods, &result.Report)
	result.Report.Durations.Build = time.Since(buildStart)

	linkStart := time.Now()
	r.linkModules(reg, opts.Manifest, mods, &result.Report)
	result.Report.Durations.Link = time.Since(linkStart)

	if opts.Manifest.Mirror {
		mirrorStart := time.Now()
		r.mirrorModules(ctx, reg, &result.Report)
		result.Report.Durations.Mirror = time.Since(mirrorStart)
	}

	exportStart := time.Now()
	doc, err := Snapshot(r.Scene, reg)
	if err != nil {
		return nil, err
	}
	doc.BuildID = result.Report.BuildID
	doc.Built = time.Now().UTC()
	result.Document = doc
	if !opts.NoCache {
		if data, err := MarshalDocument(doc); err == nil {
			r.storeArtifact(ctx, skelKey, data, cache.TTLSkeleton, "skeleton")
		}
	}
	if err := r.export(ctx, doc, opts, result); err != nil {
		return nil, err
	}
	result.Report.Durations.Export = time.Since(exportStart)
	result.Report.Durations.Total = time.Since(start)

	r.Logger.Info("build finished",
		"rig", result.Report.Rig,
		"build", result.Report.BuildID,
		"modules", len(result.Report.Modules),
		"failed", len(result.Report.Failed()),
		"joints", len(doc.Joints),
		"duration", result.Report.Durations.Total)
	return result, nil
}

// PrepareGuides runs the guide stage only: modules assembled, groups
// ensured, guides created and laid out, nothing built. Guide checks
// and layout capture work against the returned registry without paying
// for a build.
func (r *Runner) PrepareGuides(ctx context.Context, opts Options) (*module.Registry, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	lay, err := r.resolveLayout(ctx, opts)
	if err != nil {
		return nil, err
	}
	reg := r.Registry
	if reg == nil {
		reg = module.NewRegistry(r.Scene, r.Logger, opts.Manifest.Name)
	}
	if _, err := r.assemble(reg, opts.Manifest); err != nil {
		return nil, err
	}
	if err := reg.EnsureGroups(); err != nil {
		return nil, err
	}
	if err := reg.CreateAllGuides(); err != nil {
		return nil, err
	}
	if lay != nil {
		if err := reg.ApplyLayout(lay); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// assemble instantiates and registers the manifest's modules.
func (r *Runner) assemble(reg *module.Registry, m Manifest) ([]module.Module, error) {
	mods := make([]module.Module, 0, len(m.Modules))
	for _, spec := range m.Modules {
		mod, err := newModule(r.Scene, r.Logger, spec)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(mod); err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

// buildModules builds each module in manifest order. A failure aborts
// only that module.
func (r *Runner) buildModules(ctx context.Context, mods []module.Module, report *Report) {
	hooks := observability.Build()
	for _, m := range mods {
		id, kind := m.ID(), string(m.Kind())
		hooks.OnModuleStart(ctx, id, kind)
		buildStart := time.Now()
		err := m.Build()
		status := ModuleStatus{ID: id, Kind: kind, Duration: time.Since(buildStart), Err: err}
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("module %s: %v", id, err))
			r.Logger.Error("module build failed", "module", id, "err", err)
		} else {
			status.Joints = moduleJoints(m)
			r.Logger.Info("built module",
				"module", id,
				"kind", kind,
				"joints", status.Joints,
				"duration", status.Duration)
		}
		hooks.OnModuleComplete(ctx, id, kind, status.Joints, status.Duration, err)
		report.Modules = append(report.Modules, status)
	}
}

// moduleJoints counts the joints a module recorded across its chains.
func moduleJoints(m module.Module) int {
	jm, ok := m.(interface{ JointMap() map[string]scene.NodeID })
	if !ok {
		return 0
	}
	return len(jm.JointMap())
}

// linkModules applies the manifest's parent declarations. Links that
// touch a failed module are skipped; a link that fails on its own is a
// warning, not a stop.
func (r *Runner) linkModules(reg *module.Registry, m Manifest, mods []module.Module, report *Report) {
	failed := map[string]bool{}
	for _, s := range report.Modules {
		if s.Failed() {
			failed[s.ID] = true
		}
	}
	for i, spec := range m.Modules {
		if spec.Parent == "" {
			continue
		}
		childID := mods[i].ID()
		if failed[childID] || failed[spec.Parent] {
			continue
		}
		if err := reg.Link(childID, spec.Parent, spec.Role); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("link %s to %s: %v", childID, spec.Parent, err))
			r.Logger.Error("link failed",
				"child", childID,
				"parent", spec.Parent,
				"role", spec.Role,
				"err", err)
		}
	}
}

// mirrorModules mirrors every left-side module that knows how. Mirror
// failures are reported like module failures.
func (r *Runner) mirrorModules(ctx context.Context, reg *module.Registry, report *Report) {
	hooks := observability.Build()
	hooks.OnMirrorStart(ctx, report.Rig)
	mirrorStart := time.Now()
	n, err := reg.MirrorAll()
	d := time.Since(mirrorStart)
	hooks.OnMirrorComplete(ctx, report.Rig, n, d, err)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("mirror: %v", err))
		r.Logger.Error("mirror failed", "mirrored", n, "err", err)
		return
	}
	r.Logger.Info("mirrored modules", "count", n, "duration", d)
}

// resolveLayout picks the guide layout for the run: an explicit layout
// wins, then a named one from the store. Loads report through the
// store hooks.
func (r *Runner) resolveLayout(ctx context.Context, opts Options) (layout.Layout, error) {
	if opts.Layout != nil {
		return opts.Layout, nil
	}
	if opts.LayoutName == "" {
		return nil, nil
	}
	if r.Layouts == nil {
		return nil, errors.New(errors.ErrCodeStore, "layout %q requested but no store configured", opts.LayoutName)
	}
	lay, err := r.Layouts.Load(ctx, opts.LayoutName)
	observability.Store().OnLoad(ctx, opts.LayoutName, err)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("loaded layout", "layout", opts.LayoutName, "modules", len(lay))
	return lay, nil
}

// skeletonKey derives the cache key for the document a manifest and
// layout will produce.
func (r *Runner) skeletonKey(m Manifest, lay layout.Layout) (string, error) {
	manifestData, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "hash manifest")
	}
	layoutData, err := json.Marshal(lay)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "hash layout")
	}
	return r.Keyer.SkeletonKey(cache.Hash(manifestData), cache.Hash(layoutData)), nil
}

// cachedDocument tries the skeleton cache. A corrupt entry is a miss.
func (r *Runner) cachedDocument(ctx context.Context, opts Options, key string) (*Document, bool) {
	if opts.NoCache || opts.Refresh {
		return nil, false
	}
	hooks := observability.Cache()
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		hooks.OnCacheMiss(ctx, "skeleton")
		return nil, false
	}
	doc, err := ReadDocument(bytes.NewReader(data))
	if err != nil {
		hooks.OnCacheMiss(ctx, "skeleton")
		return nil, false
	}
	hooks.OnCacheHit(ctx, "skeleton")
	return doc, true
}

// export fills the requested artifacts, rendering diagrams through the
// render cache.
func (r *Runner) export(ctx context.Context, doc *Document, opts Options, result *Result) error {
	if slices.Contains(opts.Formats, FormatJSON) {
		data, err := MarshalDocument(doc)
		if err != nil {
			return err
		}
		result.Artifacts[FormatJSON] = data
	}
	formats := opts.renderFormats()
	if len(formats) == 0 {
		return nil
	}
	arts, hit, err := r.renderWithCacheInfo(ctx, doc, formats, opts)
	if err != nil {
		return err
	}
	for f, d := range arts {
		result.Artifacts[f] = d
	}
	result.CacheInfo.RenderHit = hit
	return nil
}

// renderWithCacheInfo renders the requested diagram formats, keyed in
// the cache by the DOT they draw so an unchanged hierarchy hits no
// matter which build produced it. The bool reports whether everything
// came from the cache.
func (r *Runner) renderWithCacheInfo(ctx context.Context, doc *Document, formats []string, opts Options) (map[string][]byte, bool, error) {
	dot := skelviz.ToDOT(doc.Diagram(), skelviz.Options{Detailed: opts.Detailed, Rankdir: opts.Rankdir})
	dotHash := cache.Hash([]byte(dot))
	hooks := observability.Cache()

	artifacts := map[string][]byte{}
	if !opts.NoCache && !opts.Refresh {
		for _, f := range formats {
			key := r.Keyer.RenderKey(dotHash, cache.RenderKeyOpts{Format: f, Rankdir: opts.Rankdir})
			if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
				artifacts[f] = data
				hooks.OnCacheHit(ctx, "render")
			} else {
				hooks.OnCacheMiss(ctx, "render")
			}
		}
		if len(artifacts) == len(formats) {
			return artifacts, true, nil
		}
	}

	for _, f := range formats {
		if _, ok := artifacts[f]; ok {
			continue
		}
		var data []byte
		var err error
		switch f {
		case FormatDOT:
			data = []byte(dot)
		case FormatSVG:
			data, err = skelviz.RenderSVG(dot)
		case FormatPNG:
			data, err = skelviz.RenderPNG(dot)
		}
		if err != nil {
			return nil, false, err
		}
		artifacts[f] = data
		if !opts.NoCache {
			key := r.Keyer.RenderKey(dotHash, cache.RenderKeyOpts{Format: f, Rankdir: opts.Rankdir})
			r.storeArtifact(ctx, key, data, cache.TTLRender, "render")
		}
	}
	return artifacts, false, nil
}

// storeArtifact writes one artifact to the cache. Remote backends mark
// transient failures retryable, so the write gets a short retry before
// the build shrugs it off.
func (r *Runner) storeArtifact(ctx context.Context, key string, data []byte, ttl time.Duration, keyType string) {
	err := cache.RetryWithBackoff(ctx, func() error {
		return r.Cache.Set(ctx, key, data, ttl)
	})
	if err != nil {
		r.Logger.Warn("artifact cache write failed", "key", key, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
}

// Close releases the runner's cache and layout store.
func (r *Runner) Close() error {
	var firstErr error
	if r.Cache != nil {
		firstErr = r.Cache.Close()
	}
	if r.Layouts != nil {
		if err := r.Layouts.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
