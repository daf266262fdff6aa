package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldtally/fieldtally/pkg/numbering"
)

// LoadState reassembles the session's allocator state from the
// numbering_state and manual_overrides tables. A session created
// before the state row existed gets the initial state.
func LoadState(ctx context.Context, db *sql.DB, sessionID string) (numbering.State, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	st := numbering.NewState()
	row := db.QueryRowContext(ctx,
		`SELECT monthly_mark, five_yearly_mark FROM numbering_state WHERE session_id = ?`,
		sessionID)
	if err := row.Scan(&st.MonthlyMark, &st.FiveYearlyMark); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return st, fmt.Errorf("query numbering state: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx,
		`SELECT asset_number FROM manual_overrides WHERE session_id = ? ORDER BY asset_number`,
		sessionID)
	if err != nil {
		return st, fmt.Errorf("query manual overrides: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return st, fmt.Errorf("scan manual override: %w", err)
		}
		st.Overrides = append(st.Overrides, n)
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("iterate manual overrides: %w", err)
	}
	return st, nil
}

// SaveState persists the allocator state. Marks are upserted; the
// override set is reconciled additively - overrides are never deleted
// here, only by Clear, which resets the whole session.
func SaveState(ctx context.Context, db *sql.DB, sessionID string, st numbering.State) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx save state: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO numbering_state (session_id, monthly_mark, five_yearly_mark, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   monthly_mark = excluded.monthly_mark,
		   five_yearly_mark = excluded.five_yearly_mark,
		   updated_at = excluded.updated_at`,
		sessionID, st.MonthlyMark, st.FiveYearlyMark, now); err != nil {
		return fmt.Errorf("upsert numbering state: %w", err)
	}

	for _, n := range st.Overrides {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manual_overrides (session_id, asset_number, recorded_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT(session_id, asset_number) DO NOTHING`,
			sessionID, n, now); err != nil {
			return fmt.Errorf("insert manual override %d: %w", n, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save state: %w", err)
	}
	return nil
}
