// Package report renders a session's test results into register
// documents (PDF and spreadsheet).
//
// Every rendering path consumes the same two-tier ordering produced by
// Order: monthly-family results ascending by asset number, then
// five-yearly results ascending by asset number. Renderers never
// re-derive ordering or numbering; a result list is never shown in raw
// insertion order.
package report

import (
	"sort"

	"github.com/fieldtally/fieldtally/pkg/numbering"
	"github.com/fieldtally/fieldtally/pkg/resultstore"
)

// Order returns a sorted copy of results: monthly-family first
// ascending by asset number, then five-yearly ascending by asset
// number. The input is not modified.
func Order(results []resultstore.PendingResult) []resultstore.PendingResult {
	out := append([]resultstore.PendingResult(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Category != b.Category {
			return a.Category == numbering.CategoryMonthly
		}
		return a.AssetNumber < b.AssetNumber
	})
	return out
}

// Tally summarizes a result list for session status displays.
type Tally struct {
	Total      int
	Monthly    int
	FiveYearly int
	Failed     int
}

// TallyOf counts results per category and outcome.
func TallyOf(results []resultstore.PendingResult) Tally {
	var t Tally
	for _, r := range results {
		t.Total++
		if r.Category == numbering.CategoryFiveYearly {
			t.FiveYearly++
		} else {
			t.Monthly++
		}
		if r.Outcome == resultstore.OutcomeFail {
			t.Failed++
		}
	}
	return t
}
