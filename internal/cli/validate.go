package cli

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/kelpfield/riggen/pkg/build"
	"github.com/kelpfield/riggen/pkg/chain"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/module/limb"
	"github.com/kelpfield/riggen/pkg/scene"
	"github.com/kelpfield/riggen/pkg/solver"
	"github.com/kelpfield/riggen/pkg/vec"
)

// guideSource is what validate needs from a chain module: its roles in
// chain order and the guide position under each.
type guideSource interface {
	ID() string
	Kind() module.Kind
	Roles() []string
	GuideWorld(role string) (vec.Vec3, error)
}

// newValidateCmd creates the validate command.
func newValidateCmd() *cobra.Command {
	var layoutRef string

	cmd := &cobra.Command{
		Use:   "validate [manifest.toml]",
		Short: "Check guide placement without building",
		Long: `Check guide placement without building.

Validate stands the manifest's guides up in a throwaway scene, applies
the layout if one is given, and reports per chain: planarity, and for
limbs the pole-vector placement. Off-plane chains are warnings only,
because a build projects them onto their best-fit plane; a pole too
close to the limb plane's normal direction is a failure and comes with
a suggested correction.

The command exits non-zero when any pole is invalid or a guide is
missing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultManifestFile
			if len(args) > 0 {
				path = args[0]
			}
			return runValidate(cmd.Context(), path, layoutRef)
		},
	}

	cmd.Flags().StringVarP(&layoutRef, "layout", "l", "", "stored layout name or layout .json file to apply")
	return cmd
}

// runValidate lays the guides out and runs every chain's checks.
func runValidate(ctx context.Context, path, layoutRef string) error {
	manifest, err := build.LoadManifest(path)
	if err != nil {
		return err
	}
	for _, w := range manifest.Warnings() {
		printWarning("%s", w)
	}

	logger := loggerFromContext(ctx)
	store, err := openLayoutStore(ctx)
	if err != nil {
		return err
	}
	runner := build.NewRunner(scene.NewMemory(), nil, nil, logger)
	runner.Layouts = store
	defer runner.Close()

	opts := build.Options{Manifest: manifest}
	if err := applyLayoutRef(&opts, layoutRef); err != nil {
		return err
	}

	prog := newProgress(logger)
	reg, err := runner.PrepareGuides(ctx, opts)
	if err != nil {
		return err
	}

	problems := 0
	checked := 0
	for _, m := range reg.Modules() {
		src, ok := m.(guideSource)
		if !ok {
			continue
		}
		problems += checkModule(src)
		checked++
	}
	prog.done(fmt.Sprintf("Checked %d chains", checked))

	if problems > 0 {
		printNewline()
		return fmt.Errorf("%d guide checks failed", problems)
	}
	printNewline()
	printSuccess("Guides check out")
	return nil
}

// checkModule prints one chain module's guide report and returns how
// many checks failed.
func checkModule(src guideSource) int {
	roles := src.Roles()
	positions := make([]vec.Vec3, 0, len(roles))
	problems := 0
	for _, role := range roles {
		p, err := src.GuideWorld(role)
		if err != nil {
			printError("%s: %v", src.ID(), err)
			problems++
			continue
		}
		positions = append(positions, p)
	}
	if len(positions) != len(roles) {
		return problems
	}

	if vec.IsPlanar(positions, chain.DefaultPlanarTol) {
		printSuccess("%s: chain planar", src.ID())
	} else {
		printWarning("%s: chain off plane by %.3f, a build projects it flat", src.ID(), maxPlaneDeviation(positions))
	}

	if src.Kind() == module.KindArm || src.Kind() == module.KindLeg {
		problems += checkPole(src, positions)
	}
	return problems
}

// checkPole validates the limb's pole guide against the plane of its
// first three chain positions.
func checkPole(src guideSource, positions []vec.Vec3) int {
	pole, err := src.GuideWorld(limb.RolePole)
	if err != nil {
		printError("%s: %v", src.ID(), err)
		return 1
	}
	check := solver.ValidatePole(positions[0], positions[1], positions[2], pole, 0)
	if check.Valid {
		printSuccess("%s: pole placed %.1f degrees from the plane normal", src.ID(), check.AngleDeg)
		return 0
	}
	printError("%s: pole sits %.1f degrees from the plane normal, needs at least %.0f", src.ID(), check.AngleDeg, solver.DefaultMinPoleAngle)
	printDetail("try (%.2f, %.2f, %.2f)", check.Suggested.X, check.Suggested.Y, check.Suggested.Z)
	return 1
}

// maxPlaneDeviation returns the largest distance of any point from the
// chain's fitted plane.
func maxPlaneDeviation(points []vec.Vec3) float64 {
	pl, _ := vec.FitPlane(points)
	worst := 0.0
	for _, p := range points {
		if d := math.Abs(pl.Distance(p)); d > worst {
			worst = d
		}
	}
	return worst
}
