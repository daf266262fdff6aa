package resultstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RegisterReport indexes a generated report artifact so export history
// survives restarts alongside the session it belongs to.
func RegisterReport(ctx context.Context, db *sql.DB, rec ReportRecord) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if rec.ReportID == "" {
		return fmt.Errorf("report_id is required")
	}
	if rec.GeneratedAt.IsZero() {
		rec.GeneratedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO reports (report_id, session_id, report_type, file_path, sha256, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ReportID, rec.SessionID, rec.ReportType, rec.FilePath, rec.SHA256,
		rec.GeneratedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert report record: %w", err)
	}
	return nil
}

// ListReports returns a session's report history, newest first.
func ListReports(ctx context.Context, db *sql.DB, sessionID string) ([]ReportRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := db.QueryContext(ctx,
		`SELECT report_id, session_id, report_type, file_path, sha256, generated_at
		 FROM reports WHERE session_id = ?
		 ORDER BY generated_at DESC, report_id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ReportRecord
	for rows.Next() {
		var (
			rec         ReportRecord
			generatedAt string
		)
		if err := rows.Scan(&rec.ReportID, &rec.SessionID, &rec.ReportType,
			&rec.FilePath, &rec.SHA256, &generatedAt); err != nil {
			return nil, fmt.Errorf("scan report record: %w", err)
		}
		rec.GeneratedAt, _ = time.Parse(timeLayout, generatedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report records: %w", err)
	}
	return out, nil
}
