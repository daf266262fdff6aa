package resultstore

import (
	"time"

	"github.com/fieldtally/fieldtally/pkg/numbering"
)

// Outcome is the pass/fail verdict for a tested item.
//
// NOTE: These values are persisted and are part of the stable on-disk
// contract.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomePass || o == OutcomeFail
}

// SessionStatus is the lifecycle state of a testing session.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionSubmitted SessionStatus = "submitted"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is the locally-held job a technician is working through.
type Session struct {
	SessionID  string
	ClientName string
	SiteName   string
	Address    string
	Technician string
	JobNumber  string
	Status     SessionStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FailureDetail is present only on failed results.
type FailureDetail struct {
	ReasonCode    string
	RemedialWork  string
	Note          string
	AttachmentKey string
}

// PendingResult is one locally-held, not-yet-reconciled test outcome.
//
// LocalID addresses the result for edit and delete before it has a
// server identity; it is generated at creation and never reused.
type PendingResult struct {
	LocalID     string
	SessionID   string
	ItemName    string
	ItemType    string
	Location    string
	Frequency   string
	Category    numbering.Category
	AssetNumber int
	Outcome     Outcome
	Failure     *FailureDetail
	CreatedAt   time.Time
}

// Tuple is the identity used by both duplicate-guard layers: two
// results with the same tuple recorded close together are treated as
// one submission.
type Tuple struct {
	ItemName  string
	ItemType  string
	Location  string
	Frequency string
}

// TupleOf extracts a result's duplicate-guard tuple.
func TupleOf(r PendingResult) Tuple {
	return Tuple{ItemName: r.ItemName, ItemType: r.ItemType, Location: r.Location, Frequency: r.Frequency}
}

// ResultPatch describes a partial update to a pending result. Nil
// fields are left unchanged.
type ResultPatch struct {
	ItemName    *string
	ItemType    *string
	Location    *string
	Frequency   *string
	Category    *numbering.Category
	AssetNumber *int
	Outcome     *Outcome
	Failure     *FailureDetail
	ClearFail   bool
}

// ReportRecord indexes a generated report artifact.
type ReportRecord struct {
	ReportID    string
	SessionID   string
	ReportType  string
	FilePath    string
	SHA256      string
	GeneratedAt time.Time
}
