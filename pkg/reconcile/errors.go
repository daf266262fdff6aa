package reconcile

import (
	"errors"
	"fmt"
)

// ErrEmptyBatch indicates the session has no pending results to
// submit.
var ErrEmptyBatch = errors.New("no pending results to submit")

// ReconcileError describes a failed submission. Local state is left
// untouched when one of these is returned.
type ReconcileError struct {
	// SessionID is the session whose batch failed.
	SessionID string

	// StatusCode is the HTTP status from the authority, or 0 when the
	// request never completed.
	StatusCode int

	// Code is the authority's error code, when one was decoded.
	Code string

	// Err is the underlying error.
	Err error
}

func (e *ReconcileError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("submit session %s: %v", e.SessionID, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("submit session %s: authority returned %d %s: %v", e.SessionID, e.StatusCode, e.Code, e.Err)
	}
	return fmt.Sprintf("submit session %s: authority returned %d: %v", e.SessionID, e.StatusCode, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}
