package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldtally/fieldtally/internal/config"
	"github.com/fieldtally/fieldtally/internal/observability"
	"github.com/fieldtally/fieldtally/pkg/numbering"
	"github.com/fieldtally/fieldtally/pkg/reconcile"
	"github.com/fieldtally/fieldtally/pkg/report"
	"github.com/fieldtally/fieldtally/pkg/resultstore"
	"github.com/fieldtally/fieldtally/pkg/sitecard"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage testing sessions",
}

var (
	sessionCardPath   string
	sessionClient     string
	sessionSite       string
	sessionAddress    string
	sessionTechnician string
	sessionJobNumber  string
)

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new testing session",
	Long: `Start a new testing session for a job site.

Site details come from a site card YAML file or from flags; flags win
over the card.

Example:
  fieldtally session start --card site.yaml
  fieldtally session start --client "Acme Holdings" --site "Plant 2" --technician "R. Okafor"`,
	RunE: runSessionStart,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's counts and next numbers",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStatus,
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a session and discard its pending results",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionCancel,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open sessions",
	RunE:  runSessionList,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionCancelCmd)
	sessionCmd.AddCommand(sessionListCmd)

	sessionStartCmd.Flags().StringVar(&sessionCardPath, "card", "", "Path to a site card YAML file")
	sessionStartCmd.Flags().StringVar(&sessionClient, "client", "", "Client name")
	sessionStartCmd.Flags().StringVar(&sessionSite, "site", "", "Site name")
	sessionStartCmd.Flags().StringVar(&sessionAddress, "address", "", "Site address")
	sessionStartCmd.Flags().StringVar(&sessionTechnician, "technician", "", "Technician name")
	sessionStartCmd.Flags().StringVar(&sessionJobNumber, "job", "", "Job number")
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s := resultstore.Session{SessionID: uuid.NewString()}

	if sessionCardPath != "" {
		card, err := sitecard.Load(sessionCardPath)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid site card", err)
		}
		s.ClientName = card.Client
		s.SiteName = card.Site
		s.Address = card.Address
		s.Technician = card.Technician
		s.JobNumber = card.JobNumber
	}
	if sessionClient != "" {
		s.ClientName = sessionClient
	}
	if sessionSite != "" {
		s.SiteName = sessionSite
	}
	if sessionAddress != "" {
		s.Address = sessionAddress
	}
	if sessionTechnician != "" {
		s.Technician = sessionTechnician
	}
	if sessionJobNumber != "" {
		s.JobNumber = sessionJobNumber
	}
	if s.ClientName == "" {
		return exitError(foundry.ExitInvalidArgument, "Missing client", fmt.Errorf("provide --client or a site card"))
	}

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	if err := resultstore.CreateSession(ctx, db, s); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create session", err)
	}

	observability.CLILogger.Info("Session started",
		zap.String("session_id", s.SessionID),
		zap.String("client", s.ClientName),
		zap.String("site", s.SiteName))
	fmt.Println(s.SessionID)
	return nil
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID := args[0]

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	sess, err := resultstore.GetSession(ctx, db, sessionID)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Unknown session", err)
	}

	results, err := resultstore.List(ctx, db, sessionID)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to list results", err)
	}
	st, err := resultstore.LoadState(ctx, db, sessionID)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to load numbering state", err)
	}

	tally := report.TallyOf(results)
	nextMonthly, nextFiveYearly := nextNumbers(results, st)

	fmt.Printf("Session:      %s (%s)\n", sess.SessionID, sess.Status)
	fmt.Printf("Client:       %s\n", sess.ClientName)
	if sess.SiteName != "" {
		fmt.Printf("Site:         %s\n", sess.SiteName)
	}
	fmt.Printf("Results:      %d total, %d failed\n", tally.Total, tally.Failed)
	fmt.Printf("Monthly:      %d recorded, next number %d\n", tally.Monthly, nextMonthly)
	fmt.Printf("Five-yearly:  %d recorded, next number %d\n", tally.FiveYearly, nextFiveYearly)
	fmt.Printf("Overrides:    %d\n", len(st.Overrides))
	return nil
}

// nextNumbers previews what Allocate would issue per range without
// consuming anything.
func nextNumbers(results []resultstore.PendingResult, st numbering.State) (int, int) {
	nums := make([]int, 0, len(results))
	for _, r := range results {
		nums = append(nums, r.AssetNumber)
	}
	used := numbering.UsedFrom(nums)

	monthly, _, err := numbering.Allocate(numbering.CategoryMonthly, used, st)
	if err != nil {
		monthly = 0
	}
	fiveYearly, _, err := numbering.Allocate(numbering.CategoryFiveYearly, used, st)
	if err != nil {
		fiveYearly = 0
	}
	return monthly, fiveYearly
}

func runSessionCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID := args[0]

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	client := reconcile.NewClient(config.GetConfig().Authority.BaseURL)
	if err := client.Cancel(ctx, db, sessionID); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to cancel session", err)
	}

	observability.CLILogger.Info("Session cancelled", zap.String("session_id", sessionID))
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open store", err)
	}
	defer func() { _ = db.Close() }()

	sessions, err := resultstore.ListOpenSessions(ctx, db)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to list sessions", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No open sessions.")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %s / %s  (started %s)\n",
			s.SessionID, s.ClientName, s.SiteName, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
