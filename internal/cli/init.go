package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/kelpfield/riggen/pkg/build"
	"github.com/kelpfield/riggen/pkg/module"
	"github.com/kelpfield/riggen/pkg/scene"
)

// guidesFile is the seed layout init writes next to the manifest.
const guidesFile = "guides.json"

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	var (
		name  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a rig project",
		Long: `Scaffold a rig project.

Init writes the starter biped manifest to riggen.toml and captures its
default guide placements into guides.json, ready to edit and build. An
existing project is left alone unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd.Context(), dir, name, force)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "rig name (default: directory name)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing project files")
	return cmd
}

// runInit writes the starter manifest and its captured guide layout.
func runInit(ctx context.Context, dir, name string, force bool) error {
	if name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		name = filepath.Base(abs)
		if name == "." || name == string(filepath.Separator) {
			name = module.DefaultCharacter
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	manifestPath := filepath.Join(dir, defaultManifestFile)
	guidesPath := filepath.Join(dir, guidesFile)
	if !force {
		for _, path := range []string{manifestPath, guidesPath} {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
		}
	}

	manifest := build.DefaultManifest(name)
	if err := writeManifestFile(manifestPath, manifest); err != nil {
		return err
	}

	// Capture the seed layout by standing the guides up in a throwaway
	// scene; the file then shows every guide role a build will read.
	runner := build.NewRunner(scene.NewMemory(), nil, nil, loggerFromContext(ctx))
	reg, err := runner.PrepareGuides(ctx, build.Options{Manifest: manifest})
	if err != nil {
		return err
	}
	lay, err := reg.CaptureLayout()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(lay, "", "  ")
	if err != nil {
		return fmt.Errorf("encode guides: %w", err)
	}
	if err := os.WriteFile(guidesPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", guidesPath, err)
	}

	printSuccess("Initialized %s", StyleHighlight.Render(name))
	printFile(manifestPath)
	printFile(guidesPath)
	printNewline()
	printNextStep("Build", "riggen build "+manifestPath)
	return nil
}

// writeManifestFile encodes a manifest as TOML.
func writeManifestFile(path string, m build.Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}
	return f.Close()
}
