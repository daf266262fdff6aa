package numbering

import "sort"

// State is the per-session allocator state.
//
// It is a value object: Allocate and RecordOverride return updated
// copies rather than mutating in place, so the caller decides when the
// new state becomes durable. A State is created when a session starts
// and reset when the session's batch is reconciled or the session is
// abandoned.
type State struct {
	// MonthlyMark is the last number issued in the monthly range.
	MonthlyMark int

	// FiveYearlyMark is the last number issued in the five-yearly
	// range. It starts at the range floor sentinel.
	FiveYearlyMark int

	// Overrides holds numbers a technician typed by hand, in ascending
	// order. Once recorded, an override stays reserved for the rest of
	// the session even if the result that carried it is deleted.
	Overrides []int
}

// NewState returns the initial state for a fresh session:
// marks at (0, 10000) and no overrides.
func NewState() State {
	return State{MonthlyMark: 0, FiveYearlyMark: FiveYearlyFloor}
}

// RecordOverride returns st with n added to the override set.
// Recording an already-present number is a no-op.
//
// The mark of n's range is advanced past n when the override is ahead
// of it, so the visible sequence continues from the manual entry
// instead of doubling back to the pre-override floor. The two ranges
// are disjoint, so the range is derived from n itself.
func RecordOverride(st State, n int) State {
	if Reserved(st, n) {
		return st
	}
	out := st
	out.Overrides = append(append([]int(nil), st.Overrides...), n)
	sort.Ints(out.Overrides)
	if cat, ok := CategoryForNumber(n); ok && n > out.mark(cat) {
		out = out.withMark(cat, n)
	}
	return out
}

// Reserved reports whether n is in the override set.
func Reserved(st State, n int) bool {
	i := sort.SearchInts(st.Overrides, n)
	return i < len(st.Overrides) && st.Overrides[i] == n
}

// mark returns the high-water mark for the category.
func (st State) mark(c Category) int {
	if c == CategoryFiveYearly {
		return st.FiveYearlyMark
	}
	return st.MonthlyMark
}

// withMark returns st with the category's mark set to n.
func (st State) withMark(c Category, n int) State {
	out := st
	if c == CategoryFiveYearly {
		out.FiveYearlyMark = n
	} else {
		out.MonthlyMark = n
	}
	return out
}
