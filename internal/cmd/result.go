package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldtally/fieldtally/internal/config"
	"github.com/fieldtally/fieldtally/internal/observability"
	"github.com/fieldtally/fieldtally/pkg/attach"
	"github.com/fieldtally/fieldtally/pkg/report"
	"github.com/fieldtally/fieldtally/pkg/resultstore"
)

var resultCmd = &cobra.Command{
	Use:   "result",
	Short: "Record and manage test results",
}

var (
	resultSession   string
	resultItem      string
	resultType      string
	resultLocation  string
	resultFrequency string
	resultOutcome   string
	resultNumber    int
	resultReason    string
	resultRemedial  string
	resultNote      string
	resultPhoto     string
	resultFilter    string
)

var resultAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a test result",
	Long: `Record a pass or fail result and issue its asset number.

The number comes from the item's range automatically; --number forces a
manual entry, which reserves that number for the whole session.

Example:
  fieldtally result add --session <id> --item "Kettle" --type appliance --frequency 12-monthly --outcome pass
  fieldtally result add --session <id> --item "Drill" --type tool --frequency 12-monthly --outcome fail \
    --reason earth_continuity --remedial "replace lead" --photo drill.jpg
  fieldtally result add --session <id> --item "Tagged Saw" --type tool --frequency 12-monthly --outcome pass --number 50`,
	RunE: runResultAdd,
}

var resultEditCmd = &cobra.Command{
	Use:   "edit <local-id>",
	Short: "Edit a pending result",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultEdit,
}

var resultRmCmd = &cobra.Command{
	Use:   "rm <local-id>",
	Short: "Delete a pending result",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultRm,
}

var resultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a session's pending results in register order",
	RunE:  runResultList,
}

func init() {
	rootCmd.AddCommand(resultCmd)
	resultCmd.AddCommand(resultAddCmd)
	resultCmd.AddCommand(resultEditCmd)
	resultCmd.AddCommand(resultRmCmd)
	resultCmd.AddCommand(resultListCmd)

	resultAddCmd.Flags().StringVarP(&resultSession, "session", "s", "", "Session ID (required)")
	resultAddCmd.Flags().StringVar(&resultItem, "item", "", "Item name (required)")
	resultAddCmd.Flags().StringVar(&resultType, "type", "", "Item type")
	resultAddCmd.Flags().StringVar(&resultLocation, "location", "", "Item location")
	resultAddCmd.Flags().StringVar(&resultFrequency, "frequency", "", "Test frequency (3-monthly|6-monthly|12-monthly|24-monthly|five-yearly)")
	resultAddCmd.Flags().StringVar(&resultOutcome, "outcome", "", "pass or fail (required)")
	resultAddCmd.Flags().IntVar(&resultNumber, "number", 0, "Manual asset number")
	resultAddCmd.Flags().StringVar(&resultReason, "reason", "", "Failure reason code")
	resultAddCmd.Flags().StringVar(&resultRemedial, "remedial", "", "Remedial work description")
	resultAddCmd.Flags().StringVar(&resultNote, "note", "", "Failure note")
	resultAddCmd.Flags().StringVar(&resultPhoto, "photo", "", "Failure photo to attach")
	_ = resultAddCmd.MarkFlagRequired("session")
	_ = resultAddCmd.MarkFlagRequired("item")
	_ = resultAddCmd.MarkFlagRequired("frequency")
	_ = resultAddCmd.MarkFlagRequired("outcome")

	resultEditCmd.Flags().StringVar(&resultItem, "item", "", "New item name")
	resultEditCmd.Flags().StringVar(&resultLocation, "location", "", "New location")
	resultEditCmd.Flags().StringVar(&resultFrequency, "frequency", "", "New test frequency")
	resultEditCmd.Flags().StringVar(&resultOutcome, "outcome", "", "New outcome (pass|fail)")
	resultEditCmd.Flags().IntVar(&resultNumber, "number", 0, "New manual asset number")
	resultEditCmd.Flags().StringVar(&resultReason, "reason", "", "New failure reason code")
	resultEditCmd.Flags().StringVar(&resultRemedial, "remedial", "", "New remedial work description")
	resultEditCmd.Flags().StringVar(&resultNote, "note", "", "New failure note")

	resultListCmd.Flags().StringVarP(&resultSession, "session", "s", "", "Session ID (required)")
	resultListCmd.Flags().StringVar(&resultFilter, "filter", "", "Location glob filter, e.g. 'Block A/**'")
	_ = resultListCmd.MarkFlagRequired("session")
}

func runResultAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.GetConfig()

	outcome := resultstore.Outcome(resultOutcome)
	if !outcome.Valid() {
		return exitError(foundry.ExitInvalidArgument, "Invalid --outcome", fmt.Errorf("expected pass or fail, got %q", resultOutcome))
	}

	in := resultstore.AddInput{
		SessionID:   resultSession,
		ItemName:    resultItem,
		ItemType:    resultType,
		Location:    resultLocation,
		Frequency:   resultFrequency,
		Outcome:     outcome,
		AssetNumber: resultNumber,
	}
	if outcome == resultstore.OutcomeFail {
		in.Failure = &resultstore.FailureDetail{
			ReasonCode:   resultReason,
			RemedialWork: resultRemedial,
			Note:         resultNote,
		}
	}

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	stored, coalesced, err := resultstore.AddResult(ctx, db, in, cfg.Client.DedupeWindow)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to record result", err)
	}
	if coalesced {
		observability.CLILogger.Warn("Duplicate entry coalesced onto existing result",
			zap.String("local_id", stored.LocalID),
			zap.Int("asset_number", stored.AssetNumber))
		fmt.Printf("%s  #%d (duplicate, not re-recorded)\n", stored.LocalID, stored.AssetNumber)
		return nil
	}

	if resultPhoto != "" && stored.Failure != nil {
		if err := attachPhoto(ctx, db, stored, resultPhoto); err != nil {
			return err
		}
	}

	fmt.Printf("%s  #%d\n", stored.LocalID, stored.AssetNumber)
	return nil
}

func attachPhoto(ctx context.Context, db *sql.DB, stored resultstore.PendingResult, photoPath string) error {
	store, err := openAttachStore(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open attachment store", err)
	}
	defer func() { _ = store.Close() }()

	f, err := os.Open(photoPath)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot read photo", err)
	}
	defer func() { _ = f.Close() }()

	key := attach.Key(stored.SessionID, stored.LocalID, filepath.Base(photoPath))
	contentType := mime.TypeByExtension(filepath.Ext(photoPath))
	if err := store.Put(ctx, key, f, contentType); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to store photo", err)
	}

	failure := *stored.Failure
	failure.AttachmentKey = key
	if _, err := resultstore.Update(ctx, db, stored.LocalID, resultstore.ResultPatch{Failure: &failure}); err != nil {
		return exitError(foundry.ExitFileWriteError, "Photo stored but result update failed", err)
	}

	observability.CLILogger.Info("Photo attached",
		zap.String("local_id", stored.LocalID),
		zap.String("key", key))
	return nil
}

// openAttachStore builds the configured attachment backend.
func openAttachStore(ctx context.Context) (attach.Store, error) {
	cfg := config.GetConfig()
	switch cfg.Attachments.Backend {
	case "s3":
		return attach.NewS3Store(ctx, attach.S3Config{
			Bucket:         cfg.Attachments.Bucket,
			Prefix:         cfg.Attachments.Prefix,
			Region:         cfg.Attachments.Region,
			Endpoint:       cfg.Attachments.Endpoint,
			Profile:        cfg.Attachments.Profile,
			ForcePathStyle: cfg.Attachments.ForcePathStyle,
		})
	default:
		return attach.NewFileStore(attach.FileConfig{BaseDir: cfg.Attachments.Dir})
	}
}

func runResultEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	localID := args[0]

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	// Frequency and number changes go through the allocator.
	if cmd.Flags().Changed("frequency") {
		if _, err := resultstore.Reassign(ctx, db, localID, resultFrequency); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to change frequency", err)
		}
	}
	if cmd.Flags().Changed("number") {
		if _, err := resultstore.Renumber(ctx, db, localID, resultNumber); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to renumber", err)
		}
	}

	patch := resultstore.ResultPatch{}
	touched := false
	if cmd.Flags().Changed("item") {
		patch.ItemName = &resultItem
		touched = true
	}
	if cmd.Flags().Changed("location") {
		patch.Location = &resultLocation
		touched = true
	}
	if cmd.Flags().Changed("outcome") {
		o := resultstore.Outcome(resultOutcome)
		patch.Outcome = &o
		touched = true
	}
	if cmd.Flags().Changed("reason") || cmd.Flags().Changed("remedial") || cmd.Flags().Changed("note") {
		patch.Failure = &resultstore.FailureDetail{
			ReasonCode:   resultReason,
			RemedialWork: resultRemedial,
			Note:         resultNote,
		}
		touched = true
	}

	if touched {
		if _, err := resultstore.Update(ctx, db, localID, patch); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to update result", err)
		}
	}

	updated, err := resultstore.Get(ctx, db, localID)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Unknown result", err)
	}
	fmt.Printf("%s  #%d  %s  %s\n", updated.LocalID, updated.AssetNumber, updated.ItemName, updated.Outcome)
	return nil
}

func runResultRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	localID := args[0]

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	if err := resultstore.Remove(ctx, db, localID); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to delete result", err)
	}

	observability.CLILogger.Info("Result deleted", zap.String("local_id", localID))
	return nil
}

func runResultList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	results, err := resultstore.List(ctx, db, resultSession)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to list results", err)
	}
	if resultFilter != "" {
		results, err = report.FilterByLocation(results, resultFilter)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --filter pattern", err)
		}
	}

	if len(results) == 0 {
		fmt.Println("No pending results.")
		return nil
	}

	for _, r := range report.Order(results) {
		line := fmt.Sprintf("#%-5d  %-10s  %-8s  %-30s", r.AssetNumber, r.Category, r.Outcome, r.ItemName)
		if r.Location != "" {
			line += "  " + r.Location
		}
		fmt.Println(line)
		if r.Failure != nil {
			fmt.Printf("        reason: %s  remedial: %s\n", r.Failure.ReasonCode, r.Failure.RemedialWork)
		}
	}

	tally := report.TallyOf(results)
	fmt.Printf("\n%d results (%d monthly, %d five-yearly, %d failed)\n",
		tally.Total, tally.Monthly, tally.FiveYearly, tally.Failed)
	return nil
}
