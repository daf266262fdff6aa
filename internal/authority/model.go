// Package authority is the server-side persistence authority for
// committed test results. The client's numbering is provisional until
// a batch lands here; once a row is accepted its asset number is
// final.
package authority

import (
	"time"
)

// CommittedResult is one accepted test result.
type CommittedResult struct {
	ID        string `gorm:"primaryKey;size:36"`
	SessionID string `gorm:"size:36;index;uniqueIndex:uniq_session_number,priority:1"`
	LocalID   string `gorm:"size:36;index"`

	ItemName  string `gorm:"size:255;index:idx_tuple,priority:2"`
	ItemType  string `gorm:"size:64;index:idx_tuple,priority:3"`
	Location  string `gorm:"size:255;index:idx_tuple,priority:4"`
	Frequency string `gorm:"size:32"`
	Category  string `gorm:"size:16;index:idx_tuple,priority:5"`

	AssetNumber int    `gorm:"uniqueIndex:uniq_session_number,priority:2"`
	Outcome     string `gorm:"size:8"`

	ReasonCode    string `gorm:"size:64"`
	RemedialWork  string `gorm:"type:text"`
	Note          string `gorm:"type:text"`
	AttachmentKey string `gorm:"size:512"`

	ClientCreatedAt time.Time
	AcceptedAt      time.Time `gorm:"index:idx_tuple,priority:6;index"`

	// Coalesced marks a row that was matched by the duplicate guard
	// rather than inserted. Not persisted.
	Coalesced bool `gorm:"-"`
}

// TableName fixes the table name regardless of naming strategy.
func (CommittedResult) TableName() string {
	return "committed_results"
}

// Tuple is the identity used by the boundary duplicate guard. The
// session is part of it so parallel jobs never coalesce against each
// other.
type Tuple struct {
	SessionID string
	ItemName  string
	ItemType  string
	Location  string
	Category  string
}

// TupleOf extracts the duplicate-guard tuple from a committed row.
func TupleOf(r CommittedResult) Tuple {
	return Tuple{
		SessionID: r.SessionID,
		ItemName:  r.ItemName,
		ItemType:  r.ItemType,
		Location:  r.Location,
		Category:  r.Category,
	}
}
