// Package cmd wires the fieldtally command tree.
package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldtally/fieldtally/internal/config"
	"github.com/fieldtally/fieldtally/internal/observability"
	"github.com/fieldtally/fieldtally/pkg/resultstore"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected via ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	flagLogLevel  string
	flagJSONLogs  bool
	flagStorePath string
)

var rootCmd = &cobra.Command{
	Use:   "fieldtally",
	Short: "Field test-and-tag result recorder",
	Long: `fieldtally records pass/fail test results in the field, issues
asset numbers from the monthly and five-yearly ranges, and reconciles
finished sessions with the numbering authority in one atomic batch.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initApp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "Emit machine-readable log lines")
	rootCmd.PersistentFlags().StringVar(&flagStorePath, "store", "", "Path to the local result store")
}

func initApp(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	if flagLogLevel != "" {
		overrides["logging"] = map[string]any{"level": flagLogLevel}
	}
	if flagStorePath != "" {
		overrides["store"] = map[string]any{"path": flagStorePath}
	}

	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return err
	}

	observability.InitCLILogger(cfg.Logging.Level, flagJSONLogs)
	return nil
}

// exitCodeError carries a process exit code alongside the message.
type exitCodeError struct {
	code int
	msg  string
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, msg: message, err: err}
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		if observability.CLILogger != nil {
			observability.CLILogger.Error(err.Error())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}

		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		return 1
	}
	return 0
}

// openStore opens and migrates the configured local result store.
func openStore(ctx context.Context) (*sql.DB, error) {
	cfg := config.GetConfig()

	db, err := resultstore.Open(ctx, resultstore.Config{
		Path:      cfg.Store.Path,
		URL:       cfg.Store.URL,
		AuthToken: cfg.Store.AuthToken,
	})
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}

	if err := resultstore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate result store: %w", err)
	}

	observability.CLILogger.Debug("Opened result store",
		zap.String("path", cfg.Store.Path))
	return db, nil
}
