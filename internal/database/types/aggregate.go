package types

import (
	"slices"
	"time"
)

// OwnerAggregate holds the counters and badges derived from an owner's reports.
//
// Score and ApprovalsCount both move by the effective delta of every valid vote
// transition, so at rest they equal the number of ledger entries for the owner
// that are marked valid. ReportsCount only ever grows.
type OwnerAggregate struct {
	ID             string    `bun:",pk"                         json:"id"`
	Score          int64     `bun:",notnull,default:0"          json:"points"`
	ReportsCount   int64     `bun:",notnull,default:0"          json:"reportsCount"`
	ApprovalsCount int64     `bun:",notnull,default:0"          json:"approvalsCount"`
	EarnedBadges   []string  `bun:",array,notnull,default:'{}'" json:"earnedBadges"`
	UpdatedAt      time.Time `bun:",notnull"                    json:"updatedAt"`
}

// AccountPoints is the presentation alias older clients read instead of points.
// It is always the same number as Score.
func (a *OwnerAggregate) AccountPoints() int64 {
	return a.Score
}

// HasBadge reports whether the badge has been earned.
func (a *OwnerAggregate) HasBadge(name string) bool {
	return slices.Contains(a.EarnedBadges, name)
}

// Clone returns a deep copy of the aggregate.
func (a *OwnerAggregate) Clone() *OwnerAggregate {
	c := *a
	c.EarnedBadges = slices.Clone(a.EarnedBadges)
	return &c
}
