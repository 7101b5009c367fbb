package types

import "time"

// LedgerEntry records whether a voter's vote on a report currently counts
// toward the report owner's score. There is one row per (owner, report, voter)
// and rows are never deleted; a retracted vote is recorded as not valid.
type LedgerEntry struct {
	OwnerID                string    `bun:",pk"                   json:"ownerId"`
	SubjectID              string    `bun:",pk"                   json:"reportId"`
	VoterID                string    `bun:",pk"                   json:"voterId"`
	LastContributedAsValid bool      `bun:"last_is_valid,notnull" json:"lastIsValid"`
	UpdatedAt              time.Time `bun:",notnull"              json:"updatedAt"`
}

// LedgerKey identifies a ledger entry.
type LedgerKey struct {
	OwnerID   string
	SubjectID string
	VoterID   string
}

// Key returns the entry's key.
func (e *LedgerEntry) Key() LedgerKey {
	return LedgerKey{OwnerID: e.OwnerID, SubjectID: e.SubjectID, VoterID: e.VoterID}
}
