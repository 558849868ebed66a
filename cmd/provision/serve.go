package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/framewright/provision/server"
)

func serveCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP facade",
		Long: `Serve exposes the engine over HTTP for the setup wizard and the
dashboard: manifest listing, component status, install/repair/remove
triggers, websocket progress streams, manual install instructions, and
Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := ParseConfig(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				config.ListenAddress = listen
			}
			app, err := buildApplication(config)
			if err != nil {
				return err
			}

			facade := server.NewServer(
				app.registry, app.verifier, app.orchestrator,
				app.machine, app.broker, server.NewMetrics(nil))

			fmt.Printf("Listening on http://%s\n", config.ListenAddress)
			return http.ListenAndServe(config.ListenAddress, facade.Router())
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Override the configured listen address")
	return cmd
}
