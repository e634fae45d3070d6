package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kelpfield/riggen/pkg/observability"
)

// newLayoutCmd creates the layout command group.
func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Manage stored guide layouts",
		Long: `Manage stored guide layouts.

A layout maps module IDs to guide poses and is applied onto freshly
created guides at build time with --layout. The store is selected by
RIGGEN_STORE: the file store in the data directory by default, "memory"
for an in-process store, "mongo" for a shared database, any other value
for a file store rooted at that path.`,
	}

	cmd.AddCommand(newLayoutListCmd())
	cmd.AddCommand(newLayoutShowCmd())
	cmd.AddCommand(newLayoutPutCmd())
	cmd.AddCommand(newLayoutRmCmd())
	return cmd
}

// newLayoutListCmd creates the layout list subcommand.
func newLayoutListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openLayoutStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			names, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				printInfo("No layouts stored")
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

// newLayoutShowCmd creates the layout show subcommand.
func newLayoutShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a stored layout as JSON",
		Long: `Print a stored layout as JSON.

The output is a valid layout file: redirect it, edit the poses, and feed
it back with 'riggen build --layout <file>' or 'riggen layout put'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openLayoutStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			lay, err := store.Load(ctx, args[0])
			observability.Store().OnLoad(ctx, args[0], err)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(lay, "", "  ")
			if err != nil {
				return fmt.Errorf("encode layout: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

// newLayoutPutCmd creates the layout put subcommand.
func newLayoutPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <name> <layout.json>",
		Short: "Store a layout file under a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			lay, err := readLayoutFile(args[1])
			if err != nil {
				return err
			}

			store, err := openLayoutStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			err = store.Save(ctx, name, lay)
			observability.Store().OnSave(ctx, name, len(lay), err)
			if err != nil {
				return err
			}
			printSuccess("Stored %s", StyleHighlight.Render(name))
			printDetail("%d modules", len(lay))
			return nil
		},
	}
}

// newLayoutRmCmd creates the layout rm subcommand.
func newLayoutRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a stored layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openLayoutStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Deleted %s", args[0])
			return nil
		},
	}
}
