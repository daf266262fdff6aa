package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldtally/fieldtally/internal/observability"
	"github.com/fieldtally/fieldtally/pkg/report"
	"github.com/fieldtally/fieldtally/pkg/resultstore"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session's asset register",
}

var (
	exportSession string
	exportOutDir  string
	exportFilter  string
)

var exportPDFCmd = &cobra.Command{
	Use:   "pdf",
	Short: "Export the register as PDF",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, "pdf")
	},
}

var exportExcelCmd = &cobra.Command{
	Use:   "excel",
	Short: "Export the register as an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, "excel")
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportPDFCmd)
	exportCmd.AddCommand(exportExcelCmd)

	exportCmd.PersistentFlags().StringVarP(&exportSession, "session", "s", "", "Session ID (required)")
	exportCmd.PersistentFlags().StringVarP(&exportOutDir, "out", "o", ".", "Output directory")
	exportCmd.PersistentFlags().StringVar(&exportFilter, "filter", "", "Location glob filter, e.g. 'Block A/**'")
	_ = exportCmd.MarkPersistentFlagRequired("session")
}

func runExport(cmd *cobra.Command, kind string) error {
	ctx := cmd.Context()

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	sess, results, err := loadRegister(ctx, db, exportSession, exportFilter)
	if err != nil {
		return err
	}

	opts := report.Options{
		Session:   *sess,
		Results:   results,
		OutputDir: exportOutDir,
	}

	var artifact *report.Artifact
	switch kind {
	case "pdf":
		artifact, err = report.GeneratePDF(opts)
	case "excel":
		artifact, err = report.GenerateExcel(opts)
	}
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Export failed", err)
	}

	rec := resultstore.ReportRecord{
		ReportID:    uuid.NewString(),
		SessionID:   exportSession,
		ReportType:  kind,
		FilePath:    artifact.Path,
		SHA256:      artifact.SHA256,
		GeneratedAt: artifact.GeneratedAt,
	}
	if err := resultstore.RegisterReport(ctx, db, rec); err != nil {
		return exitError(foundry.ExitFileWriteError, "Export written but registration failed", err)
	}

	observability.CLILogger.Info("Register exported",
		zap.String("type", kind),
		zap.String("path", artifact.Path),
		zap.String("sha256", artifact.SHA256))
	fmt.Println(artifact.Path)
	return nil
}

// loadRegister pulls the session and its results in register order,
// applying the location filter when set.
func loadRegister(ctx context.Context, db *sql.DB, sessionID, filter string) (*resultstore.Session, []resultstore.PendingResult, error) {
	sess, err := resultstore.GetSession(ctx, db, sessionID)
	if err != nil {
		return nil, nil, exitError(foundry.ExitInvalidArgument, "Unknown session", err)
	}

	results, err := resultstore.List(ctx, db, sessionID)
	if err != nil {
		return nil, nil, exitError(foundry.ExitFileWriteError, "Failed to list results", err)
	}
	if filter != "" {
		results, err = report.FilterByLocation(results, filter)
		if err != nil {
			return nil, nil, exitError(foundry.ExitInvalidArgument, "Invalid --filter pattern", err)
		}
	}
	if len(results) == 0 {
		return nil, nil, exitError(foundry.ExitInvalidArgument, "Nothing to export",
			fmt.Errorf("session %s has no matching results", sessionID))
	}

	return sess, report.Order(results), nil
}
