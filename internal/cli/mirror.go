package cli

import (
	"github.com/spf13/cobra"
)

// newMirrorCmd creates the mirror command.
func newMirrorCmd() *cobra.Command {
	opts := buildOpts{mirror: true}

	cmd := &cobra.Command{
		Use:   "mirror [manifest.toml]",
		Short: "Build a skeleton with right-side counterparts mirrored in",
		Long: `Build a skeleton with right-side counterparts mirrored in.

Mirror is build with mirroring forced on: after the manifest's modules are
built and linked, every left-side module gets a right-side counterpart
with guide positions reflected across the character's midline, built and
attached the same way as the source side. Manifests that already set
mirror = true behave identically under build.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), args, opts)
		},
	}

	addBuildFlags(cmd, &opts)
	return cmd
}
