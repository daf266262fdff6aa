package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldtally/fieldtally/internal/authority"
	"github.com/fieldtally/fieldtally/internal/config"
	"github.com/fieldtally/fieldtally/internal/observability"
	"github.com/fieldtally/fieldtally/internal/server"
	"github.com/fieldtally/fieldtally/internal/server/handlers"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the numbering authority server",
	Long: `Run the HTTP authority that accepts committed result batches.

Requires a MySQL DSN via FIELDTALLY_AUTHORITY_DSN or authority.dsn in
the config file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

// identityHealthChecker verifies the process is fully configured.
type identityHealthChecker struct {
	dsn string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	if c.dsn == "" {
		return fmt.Errorf("missing authority dsn")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.GetConfig()

	if cfg.Authority.DSN == "" {
		return exitError(foundry.ExitInvalidArgument, "Missing authority DSN",
			fmt.Errorf("set FIELDTALLY_AUTHORITY_DSN or authority.dsn"))
	}

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	logger, err := observability.NewServerLogger(cfg.Logging.Level)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid log configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := authority.Open(ctx, authority.Config{
		DSN:             cfg.Authority.DSN,
		DuplicateWindow: cfg.Authority.DuplicateWindow,
		MaxOpenConns:    cfg.Authority.MaxOpenConns,
	})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open authority database", err)
	}
	defer func() { _ = store.Close() }()

	handlers.InitHealthManager(versionInfo.Version)
	handlers.GetHealthManager().RegisterChecker("database", store)
	handlers.GetHealthManager().RegisterChecker("identity", identityHealthChecker{dsn: cfg.Authority.DSN})
	handlers.SetVersion(versionInfo.Version)

	srv := server.New(host, port,
		server.WithAuthority(store),
		server.WithLogger(logger),
		server.WithRateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authority listening",
			zap.String("host", host),
			zap.Int("port", port),
			zap.Duration("duplicate_window", cfg.Authority.DuplicateWindow))
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return exitError(foundry.ExitSignalInt, "Shutdown incomplete", err)
		}
		return nil
	}
}
