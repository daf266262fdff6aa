// Package numbering implements asset number allocation for test sessions.
//
// Asset numbers are drawn from two disjoint ranges keyed by test
// frequency:
//   - Monthly-family items (3/6/12/24-monthly) use [1, 9999]
//   - Five-yearly items use [10001, ∞); 10000 is the range floor
//     sentinel and is never issued
//
// Allocation is sequence-continuation: the allocator extends the
// visible sequence past the highest number it has issued rather than
// backfilling earlier gaps, because gaps usually correspond to items a
// technician relabeled by hand and must not be silently reused.
//
// All state is carried in an explicit State value; the package holds
// no ambient counters and is safe to call from a single goroutine per
// session.
package numbering

import (
	"fmt"
	"strings"
)

// Category is the numbering range an asset number is drawn from.
//
// The finer-grained frequency labels (3-monthly, 6-monthly, ...) all
// collapse onto CategoryMonthly; the numbering logic only ever branches
// on this binary distinction.
type Category string

const (
	// CategoryMonthly covers the 3/6/12/24-monthly frequency family.
	CategoryMonthly Category = "monthly"

	// CategoryFiveYearly covers five-yearly items.
	CategoryFiveYearly Category = "five_yearly"
)

// Range boundaries.
//
// NOTE: These values are baked into committed asset registers and are
// part of the stable numbering contract.
const (
	// MonthlyMin is the lowest issuable monthly-family number.
	MonthlyMin = 1

	// MonthlyMax is the highest issuable monthly-family number.
	// The physical register uses 4-digit tags.
	MonthlyMax = 9999

	// FiveYearlyFloor is the reserved boundary between the two ranges.
	// It is never issued.
	FiveYearlyFloor = 10000

	// FiveYearlyMin is the lowest issuable five-yearly number.
	FiveYearlyMin = 10001
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryMonthly || c == CategoryFiveYearly
}

// Contains reports whether n falls inside the category's issuable range.
func (c Category) Contains(n int) bool {
	switch c {
	case CategoryMonthly:
		return n >= MonthlyMin && n <= MonthlyMax
	case CategoryFiveYearly:
		return n >= FiveYearlyMin
	default:
		return false
	}
}

// CategoryOf maps a frequency label to its numbering category.
//
// Recognized labels: "3-monthly", "6-monthly", "12-monthly",
// "24-monthly", "five-yearly" (also accepted as "5-yearly").
// Matching is case-insensitive.
func CategoryOf(frequency string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(frequency)) {
	case "3-monthly", "6-monthly", "12-monthly", "24-monthly":
		return CategoryMonthly, nil
	case "five-yearly", "5-yearly":
		return CategoryFiveYearly, nil
	default:
		return "", fmt.Errorf("unknown test frequency: %q", frequency)
	}
}

// CategoryForNumber reports which range a number falls in. The second
// return is false for the reserved floor sentinel and non-positive
// values, which belong to no issuable range.
func CategoryForNumber(n int) (Category, bool) {
	switch {
	case n >= MonthlyMin && n <= MonthlyMax:
		return CategoryMonthly, true
	case n >= FiveYearlyMin:
		return CategoryFiveYearly, true
	default:
		return "", false
	}
}

// Frequencies lists the recognized frequency labels in display order.
func Frequencies() []string {
	return []string{"3-monthly", "6-monthly", "12-monthly", "24-monthly", "five-yearly"}
}
