package resultstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the result store schema in-place.
//
// v1 covers:
// - session identity and lifecycle
// - pending results (unique asset number per session)
// - numbering state (high-water marks) and manual overrides
// - report artifact index
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			client_name TEXT NOT NULL,
			site_name TEXT,
			address TEXT,
			technician TEXT,
			job_number TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);`,

		`CREATE TABLE IF NOT EXISTS pending_results (
			local_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			item_type TEXT NOT NULL,
			location TEXT NOT NULL,
			frequency TEXT NOT NULL,
			category TEXT NOT NULL,
			asset_number INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			fail_reason TEXT,
			fail_action TEXT,
			fail_note TEXT,
			attachment_key TEXT,
			created_at TEXT NOT NULL,
			UNIQUE(session_id, asset_number),
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_results_session ON pending_results(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_results_created ON pending_results(session_id, created_at);`,

		`CREATE TABLE IF NOT EXISTS numbering_state (
			session_id TEXT PRIMARY KEY,
			monthly_mark INTEGER NOT NULL,
			five_yearly_mark INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);`,

		`CREATE TABLE IF NOT EXISTS manual_overrides (
			session_id TEXT NOT NULL,
			asset_number INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY(session_id, asset_number),
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);`,

		`CREATE TABLE IF NOT EXISTS reports (
			report_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			report_type TEXT NOT NULL,
			file_path TEXT NOT NULL,
			sha256 TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_session ON reports(session_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate result store (%s...): %w", firstLine(stmt), err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE schema_meta SET schema_version = ? WHERE id = 1 AND schema_version < ?`,
		SchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i > 0 {
		stmt = stmt[:i]
	}
	if len(stmt) > 48 {
		stmt = stmt[:48]
	}
	return stmt
}
