package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for store lookups.
var (
	// ErrSessionNotFound indicates the session does not exist locally.
	ErrSessionNotFound = errors.New("session not found")

	// ErrResultNotFound indicates no pending result has the local ID.
	ErrResultNotFound = errors.New("pending result not found")

	// ErrSessionClosed indicates a write against a submitted or
	// cancelled session.
	ErrSessionClosed = errors.New("session is not open")
)

// timeLayout keeps a fixed-width fraction so stored timestamps compare
// lexicographically; RFC3339Nano trims trailing zeros and breaks the
// created_at ordering and window comparisons in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CreateSession inserts a new open session.
func CreateSession(ctx context.Context, db *sql.DB, s Session) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.SessionID == "" {
		return errors.New("session_id is required")
	}
	if s.ClientName == "" {
		return errors.New("client_name is required")
	}

	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions
		 (session_id, client_name, site_name, address, technician, job_number, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.ClientName, s.SiteName, s.Address, s.Technician, s.JobNumber,
		string(SessionOpen), now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO numbering_state (session_id, monthly_mark, five_yearly_mark, updated_at)
		 VALUES (?, 0, 10000, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		s.SessionID, now.Format(timeLayout)); err != nil {
		return fmt.Errorf("init numbering state: %w", err)
	}

	return nil
}

// GetSession returns a session by ID, or ErrSessionNotFound.
func GetSession(ctx context.Context, db *sql.DB, sessionID string) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	row := db.QueryRowContext(ctx,
		`SELECT session_id, client_name, COALESCE(site_name, ''), COALESCE(address, ''),
		        COALESCE(technician, ''), COALESCE(job_number, ''), status, created_at, updated_at
		 FROM sessions WHERE session_id = ?`, sessionID)

	var (
		s                    Session
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&s.SessionID, &s.ClientName, &s.SiteName, &s.Address,
		&s.Technician, &s.JobNumber, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}

	s.Status = SessionStatus(status)
	s.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	s.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &s, nil
}

// ListOpenSessions returns open sessions ordered by creation time.
func ListOpenSessions(ctx context.Context, db *sql.DB) ([]Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := db.QueryContext(ctx,
		`SELECT session_id, client_name, COALESCE(site_name, ''), COALESCE(address, ''),
		        COALESCE(technician, ''), COALESCE(job_number, ''), status, created_at, updated_at
		 FROM sessions WHERE status = ? ORDER BY created_at`, string(SessionOpen))
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Session
	for rows.Next() {
		var (
			s                    Session
			status               string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&s.SessionID, &s.ClientName, &s.SiteName, &s.Address,
			&s.Technician, &s.JobNumber, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Status = SessionStatus(status)
		s.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		s.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// requireOpenSession loads the session and rejects writes against
// submitted or cancelled ones.
func requireOpenSession(ctx context.Context, db *sql.DB, sessionID string) error {
	s, err := GetSession(ctx, db, sessionID)
	if err != nil {
		return err
	}
	if s.Status != SessionOpen {
		return fmt.Errorf("%w: %s is %s", ErrSessionClosed, sessionID, s.Status)
	}
	return nil
}

// Clear removes everything a session accumulated locally - pending
// results, numbering state, and manual overrides - in one transaction,
// and marks the session with the given terminal status.
//
// Partial clearing is a defect: a session whose results are gone but
// whose overrides survive would refuse numbers nobody holds, and the
// reverse would reissue numbers the server already accepted. The single
// transaction makes the reset all-or-nothing.
func Clear(ctx context.Context, db *sql.DB, sessionID string, status SessionStatus) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx clear session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_results WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear pending results: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM manual_overrides WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear manual overrides: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE numbering_state SET monthly_mark = 0, five_yearly_mark = 10000, updated_at = ?
		 WHERE session_id = ?`, now, sessionID); err != nil {
		return fmt.Errorf("reset numbering state: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		string(status), now, sessionID)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear session: %w", err)
	}
	return nil
}

func touchSession(ctx context.Context, q execer, sessionID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`,
		time.Now().UTC().Format(timeLayout), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
