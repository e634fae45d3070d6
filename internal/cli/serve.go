package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kelpfield/riggen/internal/server"
)

// newServeCmd wires the serve command.
func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the riggen HTTP API, exposing the layout store and rig builds
over REST:

  GET    /healthz                 liveness probe
  GET    /api/layouts             list stored layout names
  GET    /api/layouts/{name}      fetch a stored layout
  PUT    /api/layouts/{name}      store a layout
  DELETE /api/layouts/{name}      delete a stored layout
  POST   /api/rigs/{name}/build   build a rig from a JSON manifest body

Configuration comes from the environment: RIGGEN_ADDR, RIGGEN_STORE,
RIGGEN_STORE_DIR, RIGGEN_REDIS_ADDR, RIGGEN_MONGO_URI and
RIGGEN_MONGO_DB. The --addr flag overrides the listen address. The
server runs until interrupted and drains in-flight requests on the
way down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides RIGGEN_ADDR)")
	return cmd
}

func runServe(ctx context.Context, addr string) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	srv, err := server.New(ctx, cfg, loggerFromContext(ctx))
	if err != nil {
		return err
	}
	defer srv.Close()
	printInfo("Serving riggen API on %s", cfg.Addr)
	return srv.ListenAndServe(ctx)
}
