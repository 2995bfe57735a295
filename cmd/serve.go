package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/paperscout/internal/server"
)

// newServeCmd creates the 'serve' subcommand, which exposes the pipeline over HTTP.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API",
		Long: `Serves the search API, health probes and Prometheus metrics until
SIGINT or SIGTERM is received.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if port > 0 {
				cfg.Server.Port = port
			}
			return server.Run(cmd.Context(), cfg, appInstance.Runner(), appInstance.Logger())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (0 uses server.port from config)")
	return cmd
}
