/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssargent/pgmstore/pkg/api"
	"github.com/ssargent/pgmstore/pkg/store"
)

const (
	// uploadHeaderSlack covers the PGM text header on top of the pixel limit
	uploadHeaderSlack = 4 << 10
	statsInterval     = 15 * time.Second
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the pgmstore REST API server. Flags override the server section
of the configuration file. When no API key is configured the API is open.

Examples:
  pgmstore serve
  pgmstore serve --bind 0.0.0.0 --port 9000 --api-key mysecretkey`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.ImageStore, a *app) error {
			cfg := a.config
			if cmd.Flags().Changed("bind") {
				cfg.Server.Bind, _ = cmd.Flags().GetString("bind")
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("api-key") {
				cfg.Server.APIKey, _ = cmd.Flags().GetString("api-key")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			maxPixels := cfg.MaxPixels
			if maxPixels <= 0 {
				maxPixels = store.DefaultMaxPixels
			}
			serverConfig := api.ServerConfig{
				Bind:           cfg.Server.Bind,
				Port:           cfg.Server.Port,
				APIKey:         cfg.Server.APIKey,
				MaxUploadBytes: maxPixels + uploadHeaderSlack,
				StatsInterval:  statsInterval,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving pgmstore API on http://%s (Ctrl+C to stop)\n", cfg.Address())
			starter := container.GetServerFactory().CreateServerStarter()
			return starter.StartServer(ctx, s, serverConfig, a.logger)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind to")
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("api-key", "", "API key required in X-API-Key (empty disables authentication)")
}
