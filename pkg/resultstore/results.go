package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldtally/fieldtally/pkg/numbering"
)

// Append inserts a pending result.
//
// If another result with the same (item name, item type, location,
// frequency) tuple was appended within dedupeWindow, the insert is
// coalesced: the existing result is returned with coalesced=true and
// nothing is written. This is the client layer of the duplicate guard
// and exists to absorb rapid repeated taps of a save control; it is not
// an error.
func Append(ctx context.Context, db *sql.DB, r PendingResult, dedupeWindow time.Duration) (PendingResult, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.LocalID == "" {
		return PendingResult{}, false, errors.New("local_id is required")
	}
	if !r.Outcome.Valid() {
		return PendingResult{}, false, fmt.Errorf("invalid outcome: %q", r.Outcome)
	}
	if !r.Category.Valid() {
		return PendingResult{}, false, fmt.Errorf("invalid category: %q", r.Category)
	}
	if err := requireOpenSession(ctx, db, r.SessionID); err != nil {
		return PendingResult{}, false, err
	}

	if dedupeWindow > 0 {
		existing, err := recentMatch(ctx, db, r.SessionID, TupleOf(r), dedupeWindow)
		if err != nil {
			return PendingResult{}, false, err
		}
		if existing != nil {
			return *existing, true, nil
		}
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	var failReason, failAction, failNote, attachmentKey any
	if r.Failure != nil {
		failReason = r.Failure.ReasonCode
		failAction = r.Failure.RemedialWork
		failNote = r.Failure.Note
		if r.Failure.AttachmentKey != "" {
			attachmentKey = r.Failure.AttachmentKey
		}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO pending_results
		 (local_id, session_id, item_name, item_type, location, frequency, category,
		  asset_number, outcome, fail_reason, fail_action, fail_note, attachment_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.LocalID, r.SessionID, r.ItemName, r.ItemType, r.Location, r.Frequency,
		string(r.Category), r.AssetNumber, string(r.Outcome),
		failReason, failAction, failNote, attachmentKey, r.CreatedAt.Format(timeLayout))
	if err != nil {
		return PendingResult{}, false, fmt.Errorf("insert pending result: %w", err)
	}

	if err := touchSession(ctx, db, r.SessionID); err != nil {
		return PendingResult{}, false, err
	}
	return r, false, nil
}

// recentMatch finds a pending result with the same tuple created within
// the window, newest first.
func recentMatch(ctx context.Context, db *sql.DB, sessionID string, tu Tuple, window time.Duration) (*PendingResult, error) {
	cutoff := time.Now().UTC().Add(-window).Format(timeLayout)
	row := db.QueryRowContext(ctx, selectResultSQL+`
		 WHERE session_id = ? AND item_name = ? AND item_type = ? AND location = ?
		   AND frequency = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`,
		sessionID, tu.ItemName, tu.ItemType, tu.Location, tu.Frequency, cutoff)

	res, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query recent match: %w", err)
	}
	return res, nil
}

const selectResultSQL = `
		SELECT local_id, session_id, item_name, item_type, location, frequency, category,
		       asset_number, outcome, COALESCE(fail_reason, ''), COALESCE(fail_action, ''),
		       COALESCE(fail_note, ''), COALESCE(attachment_key, ''), created_at
		 FROM pending_results`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*PendingResult, error) {
	var (
		r                                        PendingResult
		category, outcome, createdAt             string
		failReason, failAction, failNote, attach string
	)
	if err := row.Scan(&r.LocalID, &r.SessionID, &r.ItemName, &r.ItemType, &r.Location,
		&r.Frequency, &category, &r.AssetNumber, &outcome,
		&failReason, &failAction, &failNote, &attach, &createdAt); err != nil {
		return nil, err
	}
	r.Category = numbering.Category(category)
	r.Outcome = Outcome(outcome)
	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if r.Outcome == OutcomeFail {
		r.Failure = &FailureDetail{
			ReasonCode:    failReason,
			RemedialWork:  failAction,
			Note:          failNote,
			AttachmentKey: attach,
		}
	}
	return &r, nil
}

// Get returns one pending result by local ID.
func Get(ctx context.Context, db *sql.DB, localID string) (*PendingResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	row := db.QueryRowContext(ctx, selectResultSQL+` WHERE local_id = ?`, localID)
	res, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrResultNotFound, localID)
		}
		return nil, fmt.Errorf("query pending result: %w", err)
	}
	return res, nil
}

// List returns a session's pending results in insertion order.
// Display and report ordering is applied by the report package, never
// here: storage order is creation order.
func List(ctx context.Context, db *sql.DB, sessionID string) ([]PendingResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := db.QueryContext(ctx, selectResultSQL+`
		 WHERE session_id = ? ORDER BY created_at, local_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query pending results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PendingResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending result: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending results: %w", err)
	}
	return out, nil
}

// UsedNumbers returns every asset number currently held by a pending
// result in the session. Manual overrides are tracked separately; the
// allocator unions the two.
func UsedNumbers(ctx context.Context, db *sql.DB, sessionID string) ([]int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := db.QueryContext(ctx,
		`SELECT asset_number FROM pending_results WHERE session_id = ? ORDER BY asset_number`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query used numbers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan used number: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate used numbers: %w", err)
	}
	return out, nil
}

// Update applies a patch to a pending result. Fields left nil in the
// patch keep their stored values. Setting Outcome to pass clears any
// failure detail unless the patch carries a new one; an effective fail
// outcome must leave a failure detail in place.
func Update(ctx context.Context, db *sql.DB, localID string, p ResultPatch) (*PendingResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cur, err := Get(ctx, db, localID)
	if err != nil {
		return nil, err
	}
	if err := requireOpenSession(ctx, db, cur.SessionID); err != nil {
		return nil, err
	}

	next := *cur
	if p.ItemName != nil {
		next.ItemName = *p.ItemName
	}
	if p.ItemType != nil {
		next.ItemType = *p.ItemType
	}
	if p.Location != nil {
		next.Location = *p.Location
	}
	if p.Frequency != nil {
		next.Frequency = *p.Frequency
	}
	if p.Category != nil {
		next.Category = *p.Category
	}
	if p.AssetNumber != nil {
		next.AssetNumber = *p.AssetNumber
	}
	if p.Outcome != nil {
		next.Outcome = *p.Outcome
	}
	if p.Failure != nil {
		next.Failure = p.Failure
	}
	if p.ClearFail || next.Outcome == OutcomePass {
		if p.Failure == nil {
			next.Failure = nil
		}
	}
	if !next.Outcome.Valid() {
		return nil, fmt.Errorf("invalid outcome: %q", next.Outcome)
	}
	if next.Outcome == OutcomeFail && next.Failure == nil {
		return nil, fmt.Errorf("failed result needs failure detail")
	}
	if !next.Category.Valid() {
		return nil, fmt.Errorf("invalid category: %q", next.Category)
	}

	var failReason, failAction, failNote, attachmentKey any
	if next.Failure != nil {
		failReason = next.Failure.ReasonCode
		failAction = next.Failure.RemedialWork
		failNote = next.Failure.Note
		if next.Failure.AttachmentKey != "" {
			attachmentKey = next.Failure.AttachmentKey
		}
	}

	_, err = db.ExecContext(ctx,
		`UPDATE pending_results SET
		   item_name = ?, item_type = ?, location = ?, frequency = ?, category = ?,
		   asset_number = ?, outcome = ?, fail_reason = ?, fail_action = ?, fail_note = ?,
		   attachment_key = ?
		 WHERE local_id = ?`,
		next.ItemName, next.ItemType, next.Location, next.Frequency, string(next.Category),
		next.AssetNumber, string(next.Outcome), failReason, failAction, failNote,
		attachmentKey, localID)
	if err != nil {
		return nil, fmt.Errorf("update pending result: %w", err)
	}

	if err := touchSession(ctx, db, next.SessionID); err != nil {
		return nil, err
	}
	return &next, nil
}

// Remove deletes a pending result by local ID. The number it held
// becomes issuable again unless it was a manual override, which stays
// reserved for the rest of the session.
func Remove(ctx context.Context, db *sql.DB, localID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cur, err := Get(ctx, db, localID)
	if err != nil {
		return err
	}
	if err := requireOpenSession(ctx, db, cur.SessionID); err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM pending_results WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("delete pending result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrResultNotFound, localID)
	}
	return touchSession(ctx, db, cur.SessionID)
}
