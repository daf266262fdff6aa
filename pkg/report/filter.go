package report

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fieldtally/fieldtally/pkg/resultstore"
)

// FilterByLocation keeps results whose Location matches the glob
// pattern. Locations are slash-separated paths ("Block A/Level 2"), so
// '**' spans levels the way it does for object keys. An empty pattern
// keeps everything.
//
// Returns an error for a pattern that cannot be compiled.
func FilterByLocation(results []resultstore.PendingResult, pattern string) ([]resultstore.PendingResult, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return results, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, &PatternError{Pattern: pattern}
	}

	out := make([]resultstore.PendingResult, 0, len(results))
	for _, r := range results {
		ok, err := doublestar.Match(pattern, r.Location)
		if err != nil {
			return nil, &PatternError{Pattern: pattern, Err: err}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// PatternError wraps an invalid location filter pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	if e.Err != nil {
		return "location pattern " + e.Pattern + ": " + e.Err.Error()
	}
	return "invalid location pattern: " + e.Pattern
}

func (e *PatternError) Unwrap() error {
	return e.Err
}
