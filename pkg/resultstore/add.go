package resultstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldtally/fieldtally/pkg/numbering"
)

// AddInput describes one test result to record. AssetNumber zero means
// allocate the next number for the item's category; a non-zero value
// is a manual override and must pass validation.
type AddInput struct {
	SessionID string
	ItemName  string
	ItemType  string
	Location  string
	Frequency string
	Outcome   Outcome
	Failure   *FailureDetail

	AssetNumber int
}

// AddResult records a test result, issuing or validating its asset
// number and persisting the allocator state in the same call. The
// returned bool is true when the append coalesced onto a recent
// duplicate, in which case no number was consumed.
func AddResult(ctx context.Context, db *sql.DB, in AddInput, dedupeWindow time.Duration) (PendingResult, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := requireOpenSession(ctx, db, in.SessionID); err != nil {
		return PendingResult{}, false, err
	}
	if !in.Outcome.Valid() {
		return PendingResult{}, false, fmt.Errorf("invalid outcome: %q", in.Outcome)
	}
	if in.Outcome == OutcomeFail && in.Failure == nil {
		return PendingResult{}, false, fmt.Errorf("failed result needs failure detail")
	}

	cat, err := numbering.CategoryOf(in.Frequency)
	if err != nil {
		return PendingResult{}, false, err
	}

	st, err := LoadState(ctx, db, in.SessionID)
	if err != nil {
		return PendingResult{}, false, err
	}
	nums, err := UsedNumbers(ctx, db, in.SessionID)
	if err != nil {
		return PendingResult{}, false, err
	}
	used := numbering.UsedFrom(nums)

	var number int
	var nextState numbering.State
	if in.AssetNumber != 0 {
		if err := numbering.ValidateManual(cat, in.AssetNumber, used, st); err != nil {
			return PendingResult{}, false, err
		}
		number = in.AssetNumber
		nextState = numbering.RecordOverride(st, in.AssetNumber)
	} else {
		number, nextState, err = numbering.Allocate(cat, used, st)
		if err != nil {
			return PendingResult{}, false, err
		}
	}

	result := PendingResult{
		LocalID:     uuid.NewString(),
		SessionID:   in.SessionID,
		ItemName:    in.ItemName,
		ItemType:    in.ItemType,
		Location:    in.Location,
		Frequency:   in.Frequency,
		Category:    cat,
		AssetNumber: number,
		Outcome:     in.Outcome,
		Failure:     in.Failure,
	}

	stored, coalesced, err := Append(ctx, db, result, dedupeWindow)
	if err != nil {
		return PendingResult{}, false, err
	}
	if coalesced {
		// The duplicate guard returned an earlier result; the number
		// issued above is discarded with the unstored state.
		return stored, true, nil
	}

	if err := SaveState(ctx, db, in.SessionID, nextState); err != nil {
		return stored, false, fmt.Errorf("result stored but state save failed: %w", err)
	}
	return stored, false, nil
}

// Renumber assigns a manual override number to an existing pending
// result, reserving it for the session and advancing the mark the way
// a manual entry at creation would.
func Renumber(ctx context.Context, db *sql.DB, localID string, number int) (*PendingResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cur, err := Get(ctx, db, localID)
	if err != nil {
		return nil, err
	}
	if number == cur.AssetNumber {
		return cur, nil
	}

	cat, ok := numbering.CategoryForNumber(number)
	if !ok {
		return nil, &numbering.ValidationError{Number: number, Category: cur.Category, Reason: "outside both ranges"}
	}
	if cat != cur.Category {
		return nil, &numbering.ValidationError{Number: number, Category: cur.Category,
			Reason: fmt.Sprintf("belongs to the %s range", cat)}
	}

	st, err := LoadState(ctx, db, cur.SessionID)
	if err != nil {
		return nil, err
	}
	nums, err := UsedNumbers(ctx, db, cur.SessionID)
	if err != nil {
		return nil, err
	}
	used := numbering.UsedFrom(nums)
	delete(used, cur.AssetNumber) // moving off its own number is fine

	if err := numbering.ValidateManual(cat, number, used, st); err != nil {
		return nil, err
	}

	updated, err := Update(ctx, db, localID, ResultPatch{AssetNumber: &number})
	if err != nil {
		return nil, err
	}

	if err := SaveState(ctx, db, cur.SessionID, numbering.RecordOverride(st, number)); err != nil {
		return updated, fmt.Errorf("result renumbered but state save failed: %w", err)
	}
	return updated, nil
}

// Reassign moves a pending result to a new test frequency. A category
// change allocates a fresh number in the new range; the old number
// becomes issuable again unless it was an override.
func Reassign(ctx context.Context, db *sql.DB, localID string, frequency string) (*PendingResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cur, err := Get(ctx, db, localID)
	if err != nil {
		return nil, err
	}

	cat, err := numbering.CategoryOf(frequency)
	if err != nil {
		return nil, err
	}

	if cat == cur.Category {
		return Update(ctx, db, localID, ResultPatch{Frequency: &frequency})
	}

	st, err := LoadState(ctx, db, cur.SessionID)
	if err != nil {
		return nil, err
	}
	nums, err := UsedNumbers(ctx, db, cur.SessionID)
	if err != nil {
		return nil, err
	}
	used := numbering.UsedFrom(nums)
	delete(used, cur.AssetNumber)

	number, nextState, err := numbering.Allocate(cat, used, st)
	if err != nil {
		return nil, err
	}

	updated, err := Update(ctx, db, localID, ResultPatch{
		Frequency:   &frequency,
		Category:    &cat,
		AssetNumber: &number,
	})
	if err != nil {
		return nil, err
	}

	if err := SaveState(ctx, db, cur.SessionID, nextState); err != nil {
		return updated, fmt.Errorf("result reassigned but state save failed: %w", err)
	}
	return updated, nil
}
