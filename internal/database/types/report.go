package types

import "time"

// GhostReport is a report that other users vote on. Only the fields the
// aggregation engine reads are mapped; the rest of the document belongs to the app.
type GhostReport struct {
	ID        string    `bun:",pk"                    json:"id"`
	OwnerID   string    `bun:"uid,notnull"            json:"uid"`
	CreatedAt time.Time `bun:",notnull,default:now()" json:"createdAt"`
}

// NetworkPost carries raw up and down vote counters mirrored from its votes.
type NetworkPost struct {
	ID        string    `bun:",pk"               json:"id"`
	VotesUp   int64     `bun:",notnull,default:0" json:"votesUp"`
	VotesDown int64     `bun:",notnull,default:0" json:"votesDown"`
	UpdatedAt time.Time `bun:",notnull"          json:"updatedAt"`
}
