// Package reconcile submits a session's pending results to the
// numbering authority as a single atomic batch.
//
// The protocol is deliberately small: one POST carries the full
// ordered pending list, and only a 2xx response clears local state.
// Anything else leaves the local store untouched so the technician can
// retry from exactly where they were.
package reconcile

import (
	"time"

	"github.com/fieldtally/fieldtally/pkg/resultstore"
)

// BatchRequest is the commit payload sent to the authority.
type BatchRequest struct {
	SessionID string        `json:"session_id"`
	Results   []BatchResult `json:"results"`
}

// BatchResult is one pending result on the wire. Field order mirrors
// the local pending_results row.
type BatchResult struct {
	LocalID     string    `json:"local_id"`
	ItemName    string    `json:"item_name"`
	ItemType    string    `json:"item_type"`
	Location    string    `json:"location,omitempty"`
	Frequency   string    `json:"frequency"`
	Category    string    `json:"category"`
	AssetNumber int       `json:"asset_number"`
	Outcome     string    `json:"outcome"`
	ReasonCode  string    `json:"reason_code,omitempty"`
	Remedial    string    `json:"remedial_work,omitempty"`
	Note        string    `json:"note,omitempty"`
	Attachment  string    `json:"attachment_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BatchResponse is the authority's reply to a successful commit.
type BatchResponse struct {
	SessionID string            `json:"session_id"`
	Results   []CommittedResult `json:"results"`
}

// CommittedResult is the authority's record of one accepted result.
type CommittedResult struct {
	ID          string    `json:"id"`
	LocalID     string    `json:"local_id"`
	AssetNumber int       `json:"asset_number"`
	Coalesced   bool      `json:"coalesced,omitempty"`
	AcceptedAt  time.Time `json:"accepted_at"`
}

func toBatchResult(r resultstore.PendingResult) BatchResult {
	br := BatchResult{
		LocalID:     r.LocalID,
		ItemName:    r.ItemName,
		ItemType:    r.ItemType,
		Location:    r.Location,
		Frequency:   r.Frequency,
		Category:    string(r.Category),
		AssetNumber: r.AssetNumber,
		Outcome:     string(r.Outcome),
		CreatedAt:   r.CreatedAt,
	}
	if r.Failure != nil {
		br.ReasonCode = r.Failure.ReasonCode
		br.Remedial = r.Failure.RemedialWork
		br.Note = r.Failure.Note
		br.Attachment = r.Failure.AttachmentKey
	}
	return br
}
