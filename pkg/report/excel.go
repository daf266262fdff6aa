package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

const excelSheet = "Register"

// GenerateExcel writes the asset register spreadsheet and returns its
// artifact record. Results must already carry the two-tier ordering
// from Order.
func GenerateExcel(opts Options) (*Artifact, error) {
	if opts.Session.SessionID == "" {
		return nil, fmt.Errorf("session is required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	now := time.Now().UTC()
	path := filepath.Join(opts.OutputDir,
		fmt.Sprintf("%s_register_%d.xlsx", opts.Session.SessionID, now.Unix()))

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	idx, err := f.NewSheet(excelSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"AssetNumber", "Item", "Type", "Location", "Frequency", "Result", "FailReason", "RemedialWork", "Note"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(excelSheet, cell, h); err != nil {
			return nil, fmt.Errorf("set header %s: %w", h, err)
		}
	}

	for row, r := range opts.Results {
		values := []any{
			r.AssetNumber,
			r.ItemName,
			r.ItemType,
			r.Location,
			r.Frequency,
			string(r.Outcome),
		}
		if r.Failure != nil {
			values = append(values, r.Failure.ReasonCode, r.Failure.RemedialWork, r.Failure.Note)
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(excelSheet, cell, v); err != nil {
				return nil, fmt.Errorf("set cell row %d: %w", row+2, err)
			}
		}
	}

	// Session header lands on a second sheet so the register grid stays
	// machine-readable.
	const metaSheet = "Job"
	if _, err := f.NewSheet(metaSheet); err != nil {
		return nil, fmt.Errorf("create job sheet: %w", err)
	}
	meta := [][2]string{
		{"Client", opts.Session.ClientName},
		{"Site", opts.Session.SiteName},
		{"Address", opts.Session.Address},
		{"Technician", opts.Session.Technician},
		{"JobNumber", opts.Session.JobNumber},
		{"Generated", now.Format(time.RFC3339)},
	}
	for i, kv := range meta {
		_ = f.SetCellValue(metaSheet, "A"+strconv.Itoa(i+1), kv[0])
		_ = f.SetCellValue(metaSheet, "B"+strconv.Itoa(i+1), kv[1])
	}

	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("write spreadsheet: %w", err)
	}

	sum, err := fileSHA256(path)
	if err != nil {
		return nil, err
	}

	return &Artifact{Path: path, SHA256: sum, GeneratedAt: now}, nil
}
