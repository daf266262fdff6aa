package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldtally/fieldtally/internal/config"
	"github.com/fieldtally/fieldtally/internal/observability"
	"github.com/fieldtally/fieldtally/pkg/reconcile"
)

var submitCmd = &cobra.Command{
	Use:   "submit <session-id>",
	Short: "Submit a session's results to the numbering authority",
	Long: `Submit every pending result for the session in one atomic batch.

On success the local session is cleared and marked submitted. On any
failure nothing local changes; fix the problem and submit again.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID := args[0]

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	client := reconcile.NewClient(config.GetConfig().Authority.BaseURL)
	committed, err := client.Submit(ctx, db, sessionID)
	if err != nil {
		if errors.Is(err, reconcile.ErrEmptyBatch) {
			return exitError(foundry.ExitInvalidArgument, "Nothing to submit", err)
		}
		var recErr *reconcile.ReconcileError
		if errors.As(err, &recErr) {
			observability.CLILogger.Error("Batch rejected; local results kept for retry",
				zap.String("session_id", sessionID),
				zap.Int("status", recErr.StatusCode),
				zap.String("code", recErr.Code))
			return exitError(foundry.ExitExternalServiceUnavailable, "Submission failed", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Submission failed", err)
	}

	observability.CLILogger.Info("Session submitted",
		zap.String("session_id", sessionID),
		zap.Int("results", len(committed)))
	fmt.Printf("Committed %d results for session %s\n", len(committed), sessionID)
	return nil
}
