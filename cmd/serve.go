package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/docket-crawler/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API",
		Long: `Serves the discovery, extraction and catalog endpoints plus /healthz and
/metrics until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			srv := server.New(appInstance.APIServer().Handler(), appInstance.Logger().Named("http"))
			return srv.Run(cmd.Context(), appInstance.Config().Server.Port)
		},
	}
}
