// Package pkg provides the core libraries for riggen skeleton generation.
//
// # Overview
//
// Riggen turns a manifest of body modules and a handful of guide points into
// an oriented, animation-ready joint skeleton. The pkg directory is organized
// into four main areas:
//
//  1. Primitives ([vec], [scene]) - geometry and the node graph rigs live on
//  2. Assembly ([module], [chain], [solver], [blend], [mirror]) - guides to joints
//  3. Orchestration ([build], [layout], [cache]) - pipeline, persistence, caching
//  4. Output ([skelviz], [errors], [observability], [buildinfo]) - diagrams and plumbing
//
// # Architecture
//
// The typical data flow through a build:
//
//	Manifest + guide layout
//	         ↓
//	    [module] package (stand up guides from seeds or stored poses)
//	         ↓
//	    [chain] package (bind, FK and IK chains with solved orientations)
//	         ↓
//	    [blend] / [mirror] packages (FK/IK switches, right-side counterparts)
//	         ↓
//	    [build] package (document export, caching, reports)
//	         ↓
//	    JSON/DOT/SVG/PNG output
//
// # Quick Start
//
// Assemble the starter biped and export a diagram:
//
//	import (
//	    "context"
//	    "os"
//
//	    "github.com/kelpfield/riggen/pkg/build"
//	    "github.com/kelpfield/riggen/pkg/scene"
//	)
//
//	// 1. Declare the character
//	m := build.DefaultManifest("hero")
//
//	// 2. Run the build
//	runner := build.NewRunner(scene.NewMemory(), nil, nil, nil)
//	res, _ := runner.Execute(context.Background(), build.Options{
//	    Manifest: m,
//	    Mirror:   true,
//	    Formats:  []string{build.FormatJSON, build.FormatSVG},
//	})
//
//	// 3. Use the outputs
//	os.WriteFile("hero.svg", res.Artifacts[build.FormatSVG], 0o644)
//
// # Main Packages
//
// ## Primitives
//
// [vec] - Small 3D toolkit over mathgl: vectors, orthonormal bases, Euler
// conversions, and best-fit planes for guide chains.
//
// [scene] - In-memory node graph rigs are assembled on. Transforms, joints,
// IK handles and constraints carry typed attributes and connections,
// addressed by name or node id.
//
// ## Rig Assembly
//
// [module] - The body modules (spine, neck, head, arm, leg): seed guide
// placements, naming conventions, control shapes, and the registry that
// stands modules up and captures their layouts.
//
// [chain] - Joint chain construction. Builds the bind chain plus FK and IK
// duplicates from guide positions and solved orientation bases.
//
// [solver] - Orientation solving: per-segment aim and up bases, terminal
// inheritance, and pole vector validation for IK setups.
//
// [blend] - FK/IK blending. Wires a switch attribute through constraint
// weights and exposes FK/IK matching on the resulting [blend.Switch].
//
// [mirror] - Side mirroring. Builds right-side chains from finished
// left-side chains, renaming joints and re-wiring IK handles and pole
// constraints on the far side.
//
// ## Orchestration
//
// [build] - The pipeline shared by the CLI and the server: manifest parsing
// and validation, the staged runner, skeleton caching, document export and
// build reports.
//
// [layout] - Guide layout persistence. Memory, file and MongoDB stores
// behind one interface, plus merge helpers for partial layouts.
//
// [cache] - Build caching. File, Redis and null backends behind one
// interface, a content-hash keyer, and retry helpers for flaky backends.
//
// ## Output
//
// [skelviz] - Skeleton diagrams. Converts a built scene into DOT and renders
// SVG or PNG through Graphviz.
//
// [errors] - Coded errors shared across the module, with stable codes and
// user-facing messages.
//
// [observability] - Hook points for store, cache and build events. The CLI
// uses them for progress output; tests use them for assertions.
//
// [buildinfo] - Version metadata stamped at build time.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...         # All tests
//	go test ./pkg/solver/...  # Specific package
//
// [vec]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/vec
// [scene]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/scene
// [module]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/module
// [chain]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/chain
// [solver]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/solver
// [blend]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/blend
// [blend.Switch]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/blend#Switch
// [mirror]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/mirror
// [build]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/build
// [layout]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/layout
// [cache]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/cache
// [skelviz]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/skelviz
// [errors]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/errors
// [observability]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/kelpfield/riggen/pkg/buildinfo
package pkg
