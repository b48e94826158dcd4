package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/installkit/internal/httpserver"
)

var (
	serveAddress    string
	serveAPIKey     string
	serveMaxUpload  int64
	serveSessionTTL time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the install session API",
	Long: `Start the HTTP session API.

Each install wizard runs as a session under /api/v1/sessions. Step
changes and install outcomes are pushed to WebSocket clients on
/api/v1/ws, and Prometheus metrics are served on /metrics.

The server can be configured via:
  - Command-line flags (--address, --api-key)
  - Configuration file (server section)
  - Environment variables (INSTALLKIT_SERVER_*)

Examples:
  # Start on the configured address
  installkit serve

  # Require an API key
  installkit serve --address localhost:9000 --api-key "$INSTALLKIT_API_KEY"`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddress, "address", "", "address to listen on (e.g., localhost:8089)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "API key required on /api requests")
	serveCmd.Flags().Int64Var(&serveMaxUpload, "max-upload-bytes", 0, "largest accepted local upload (default: 64 MiB)")
	serveCmd.Flags().DurationVar(&serveSessionTTL, "session-ttl", 0, "how long idle sessions are kept (default: 1h)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serverCfg := cfg.Server
	if serveAddress != "" {
		serverCfg.Addr = serveAddress
	}
	if serveAPIKey != "" {
		masker.AddSecret(serveAPIKey)
		serverCfg.APIKey = serveAPIKey
	}
	if serverCfg.APIKey == "" {
		logger.Warn("no API key configured, the session API is open to anyone who can reach it",
			"hint", "use --api-key or set server.api_key")
	}

	a, err := newContainerApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server := httpserver.NewServer(httpserver.ServerDeps{
		Config:         serverCfg,
		Services:       a.Services(),
		Advisor:        a.Advisor(),
		Metrics:        a.Metrics(),
		Logger:         a.Logger(),
		MaxUploadBytes: serveMaxUpload,
		SessionTTL:     serveSessionTTL,
		Version:        versionInfo.Version,
	})

	logger.Info("starting session API", "address", serverCfg.Addr)
	if err := server.Start(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	logger.Info("session API stopped")
	return nil
}
