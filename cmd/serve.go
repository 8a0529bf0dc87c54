package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gavault/internal/app"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath is the YAML configuration file. Plan changes in it are
// applied while the server runs.
var serveConfigPath string

// serveCmd starts the HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gavault HTTP server.",
	Long: `Starts the gavault HTTP server: the Google connect flow for web sessions,
the OAuth endpoints for the plugin client and the Analytics API routes.

Configuration:
  Settings are read from the file given with --config, then overridden by
  GAVAULT_* environment variables. Secrets are usually passed through the
  environment:

    GAVAULT_ENCRYPTION_KEY         base64 of 32 random bytes (see 'gavault keygen')
    GAVAULT_GOOGLE_CLIENT_ID       Google OAuth client
    GAVAULT_GOOGLE_CLIENT_SECRET
    GAVAULT_PLUGIN_CLIENT_ID       client id and secret of the plugin
    GAVAULT_PLUGIN_CLIENT_SECRET
    GAVAULT_PLUGIN_SIGNING_KEY     HMAC key for plugin access tokens

  The server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveConfigPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to the YAML configuration file")
}
