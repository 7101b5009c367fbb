package engine

import (
	"context"
	"fmt"

	"github.com/onlyrealroles/ghostscore/internal/badge"
	"go.uber.org/zap"
)

// OwnerTotals compares an owner's stored counters with what the ledger says they should be.
type OwnerTotals struct {
	OwnerID        string `bun:"owner_id"`
	Score          int64  `bun:"score"`
	ApprovalsCount int64  `bun:"approvals_count"`
	ValidVotes     int64  `bun:"valid_votes"`
}

// Drifted reports whether the counters disagree with the ledger.
func (t OwnerTotals) Drifted() bool {
	return t.Score != t.ValidVotes || t.ApprovalsCount != t.ValidVotes
}

// AuditSource pages through per-owner totals ordered by owner ID.
type AuditSource interface {
	OwnerTotals(ctx context.Context, afterOwnerID string, limit int) ([]OwnerTotals, error)
}

// Auditor checks and repairs owners whose counters no longer match their ledger.
type Auditor struct {
	store   Store
	source  AuditSource
	updater *Updater
	logger  *zap.Logger
}

// NewAuditor creates a new auditor.
func NewAuditor(store Store, source AuditSource, badges *badge.Engine, logger *zap.Logger) *Auditor {
	logger = logger.Named("audit")

	return &Auditor{
		store:   store,
		source:  source,
		updater: NewUpdater(badges, logger),
		logger:  logger,
	}
}

// Drift returns every owner whose score or approvals differ from the number of
// valid ledger entries.
func (a *Auditor) Drift(ctx context.Context, batchSize int) ([]OwnerTotals, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	var (
		drifted []OwnerTotals
		after   string
		checked int
	)

	for {
		batch, err := a.source.OwnerTotals(ctx, after, batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load owner totals: %w", err)
		}

		for _, totals := range batch {
			if totals.Drifted() {
				drifted = append(drifted, totals)
			}
		}

		checked += len(batch)
		if len(batch) < batchSize {
			break
		}
		after = batch[len(batch)-1].OwnerID
	}

	a.logger.Info("Audited owner aggregates",
		zap.Int("checked", checked),
		zap.Int("drifted", len(drifted)))

	return drifted, nil
}

// Repair recounts an owner's valid ledger entries and moves the score and
// approvals to match. Badges earned by the corrected score are granted; none are
// removed. It returns nil when the owner was already consistent.
func (a *Auditor) Repair(ctx context.Context, ownerID string) (*Update, error) {
	var update *Update

	err := a.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		update = nil

		valid, err := tx.CountValidLedgerEntries(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to count ledger entries: %w", err)
		}

		current, err := tx.OwnerAggregate(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to read owner aggregate: %w", err)
		}

		delta := Delta{
			Score:     valid - current.Score,
			Approvals: valid - current.ApprovalsCount,
		}
		if delta.IsZero() {
			return nil
		}

		update, err = a.updater.ApplyDelta(ctx, tx, ownerID, delta)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to repair owner %s: %w", ownerID, err)
	}

	if update != nil {
		recordUpdate(update)
		a.logger.Info("Repaired owner aggregate",
			zap.String("ownerID", ownerID),
			zap.Int64("scoreBefore", update.Before.Score),
			zap.Int64("scoreAfter", update.After.Score),
			zap.Strings("awarded", update.Awarded))
	}

	return update, nil
}
