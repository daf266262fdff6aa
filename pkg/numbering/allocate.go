package numbering

import (
	"errors"
	"fmt"
)

// Errors returned by allocation and manual-entry validation.
var (
	// ErrMonthlyRangeFull is returned when a monthly allocation would
	// probe past MonthlyMax.
	ErrMonthlyRangeFull = errors.New("monthly asset number range exhausted")

	// ErrUnknownCategory is returned for an unrecognized category.
	ErrUnknownCategory = errors.New("unknown numbering category")
)

// ValidationError describes a rejected manually-entered asset number.
//
// Manual entries are rejected immediately and never silently coerced
// into range.
type ValidationError struct {
	Number   int
	Category Category
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("asset number %d (%s): %s", e.Number, e.Category, e.Reason)
}

// Used is the set of asset numbers currently visible to the allocator:
// every number held by a pending result, in either range.
type Used map[int]struct{}

// UsedFrom builds a Used set from a slice of numbers.
func UsedFrom(numbers []int) Used {
	out := make(Used, len(numbers))
	for _, n := range numbers {
		out[n] = struct{}{}
	}
	return out
}

// Has reports whether n is in the set.
func (u Used) Has(n int) bool {
	_, ok := u[n]
	return ok
}

// Allocate issues the next collision-free number for the category.
//
// The effective used set is the union of used and st.Overrides. Probing
// starts at max(range minimum, mark+1) and walks upward until a free
// number is found, so the sequence continues past manual overrides and
// deletions instead of backfilling gaps. The returned state has the
// category's high-water mark advanced to the issued number (a jump, not
// an increment: a later allocation starts past whatever was issued).
func Allocate(cat Category, used Used, st State) (int, State, error) {
	if !cat.Valid() {
		return 0, st, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}

	candidate := st.mark(cat) + 1
	if cat == CategoryMonthly && candidate < MonthlyMin {
		candidate = MonthlyMin
	}
	if cat == CategoryFiveYearly && candidate < FiveYearlyMin {
		candidate = FiveYearlyMin
	}

	for used.Has(candidate) || Reserved(st, candidate) {
		candidate++
	}

	if cat == CategoryMonthly && candidate > MonthlyMax {
		return 0, st, ErrMonthlyRangeFull
	}

	return candidate, st.withMark(cat, candidate), nil
}

// ValidateManual checks a manually-entered number against the
// category's range and the current used/override sets.
//
// The caller excludes the editing result's own current number from
// used before calling, so re-typing an unchanged number is accepted.
func ValidateManual(cat Category, n int, used Used, st State) error {
	if !cat.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	if !cat.Contains(n) {
		reason := fmt.Sprintf("outside range %d-%d", MonthlyMin, MonthlyMax)
		if cat == CategoryFiveYearly {
			reason = fmt.Sprintf("below range minimum %d", FiveYearlyMin)
		}
		return &ValidationError{Number: n, Category: cat, Reason: reason}
	}
	if used.Has(n) {
		return &ValidationError{Number: n, Category: cat, Reason: "already assigned to another item"}
	}
	if Reserved(st, n) {
		return &ValidationError{Number: n, Category: cat, Reason: "reserved by an earlier manual entry"}
	}
	return nil
}
