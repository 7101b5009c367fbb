package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/badge"
	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"go.uber.org/zap"
)

// Delta is a change to an owner's counters.
type Delta struct {
	Score     int64
	Approvals int64
	Reports   int64
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.Score == 0 && d.Approvals == 0 && d.Reports == 0
}

// Update is the result of applying a delta.
type Update struct {
	Before  *types.OwnerAggregate
	After   *types.OwnerAggregate
	Awarded []string
}

// Updater applies counter deltas to owner aggregates and unions in any badges
// the change qualifies for.
type Updater struct {
	badges *badge.Engine
	now    func() time.Time
	logger *zap.Logger
}

// NewUpdater creates a new aggregate updater.
func NewUpdater(badges *badge.Engine, logger *zap.Logger) *Updater {
	return &Updater{
		badges: badges,
		now:    time.Now,
		logger: logger.Named("aggregate"),
	}
}

// ApplyDelta reads the owner's aggregate under lock, applies d, evaluates the
// badge rules against the before and after snapshots and writes the result
// back in the same transaction.
func (u *Updater) ApplyDelta(ctx context.Context, tx Tx, ownerID string, d Delta) (*Update, error) {
	if tx == nil {
		return nil, ErrNoTransaction
	}

	before, err := tx.OwnerAggregate(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read owner aggregate: %w", err)
	}
	before.ID = ownerID

	after := before.Clone()
	after.Score += d.Score
	after.ApprovalsCount += d.Approvals
	after.ReportsCount += d.Reports
	after.UpdatedAt = u.now()

	awarded := u.missingBadges(before, after)
	after.EarnedBadges = badge.Union(after.EarnedBadges, awarded...)

	if err := tx.SaveOwnerAggregate(ctx, after); err != nil {
		return nil, fmt.Errorf("failed to save owner aggregate: %w", err)
	}

	return &Update{Before: before, After: after, Awarded: awarded}, nil
}

// missingBadges returns the badges the update qualifies for that the owner does not hold yet.
func (u *Updater) missingBadges(before, after *types.OwnerAggregate) []string {
	var awarded []string
	for _, name := range u.badges.Evaluate(snapshot(before), snapshot(after)) {
		if !before.HasBadge(name) {
			awarded = append(awarded, name)
		}
	}
	return awarded
}

func snapshot(a *types.OwnerAggregate) badge.Snapshot {
	return badge.Snapshot{
		Score:          a.Score,
		ReportsCount:   a.ReportsCount,
		ApprovalsCount: a.ApprovalsCount,
	}
}
