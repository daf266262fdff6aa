package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/fieldtally/fieldtally/pkg/resultstore"
)

// Options configures a register export.
type Options struct {
	// Session supplies the header fields (client, site, technician).
	Session resultstore.Session

	// Results must already carry the two-tier ordering from Order.
	Results []resultstore.PendingResult

	// OutputDir receives the generated file. Created if missing.
	OutputDir string
}

// Artifact describes a generated register document.
type Artifact struct {
	Path        string
	SHA256      string
	GeneratedAt time.Time
}

// GeneratePDF writes the asset register PDF and returns its artifact
// record. The caller registers the artifact in the result store.
func GeneratePDF(opts Options) (*Artifact, error) {
	if opts.Session.SessionID == "" {
		return nil, fmt.Errorf("session is required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	now := time.Now().UTC()
	path := filepath.Join(opts.OutputDir,
		fmt.Sprintf("%s_register_%d.pdf", opts.Session.SessionID, now.Unix()))

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Asset Test Register", false)
	pdf.AddPage()

	// Header block.
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Asset Test Register", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	header := [][2]string{
		{"Client", opts.Session.ClientName},
		{"Site", opts.Session.SiteName},
		{"Address", opts.Session.Address},
		{"Technician", opts.Session.Technician},
		{"Job number", opts.Session.JobNumber},
		{"Generated", now.Format(time.RFC3339)},
	}
	for _, kv := range header {
		if kv[1] == "" {
			continue
		}
		pdf.CellFormat(30, 6, kv[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, kv[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Results table.
	widths := []float64{18, 50, 28, 42, 24, 16}
	cols := []string{"Asset #", "Item", "Type", "Location", "Frequency", "Result"}
	pdf.SetFont("Helvetica", "B", 9)
	for i, c := range cols {
		pdf.CellFormat(widths[i], 7, c, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, r := range opts.Results {
		cells := []string{
			strconv.Itoa(r.AssetNumber),
			r.ItemName,
			r.ItemType,
			r.Location,
			r.Frequency,
			string(r.Outcome),
		}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 6, c, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	// Failure appendix.
	failures := make([]resultstore.PendingResult, 0)
	for _, r := range opts.Results {
		if r.Outcome == resultstore.OutcomeFail && r.Failure != nil {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 8, "Failed items", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, r := range failures {
			line := fmt.Sprintf("#%d %s - %s", r.AssetNumber, r.ItemName, r.Failure.ReasonCode)
			if r.Failure.RemedialWork != "" {
				line += "; remedial: " + r.Failure.RemedialWork
			}
			if r.Failure.Note != "" {
				line += "; " + r.Failure.Note
			}
			pdf.MultiCell(0, 5, line, "", "L", false)
		}
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	sum, err := fileSHA256(path)
	if err != nil {
		return nil, err
	}

	return &Artifact{Path: path, SHA256: sum, GeneratedAt: now}, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is produced by this package
	if err != nil {
		return "", fmt.Errorf("open report for hashing: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash report: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
