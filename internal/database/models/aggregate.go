package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AggregateModel handles database operations for owner aggregates.
type AggregateModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAggregate creates an AggregateModel with database access.
func NewAggregate(db *bun.DB, logger *zap.Logger) *AggregateModel {
	return &AggregateModel{
		db:     db,
		logger: logger.Named("db_aggregate"),
	}
}

// GetForUpdate reads and locks an owner's aggregate, creating an empty row
// first so that concurrent writers for a new owner serialize on it too.
func (r *AggregateModel) GetForUpdate(ctx context.Context, idb bun.IDB, ownerID string) (*types.OwnerAggregate, error) {
	agg := &types.OwnerAggregate{ID: ownerID, EarnedBadges: []string{}}

	_, err := idb.NewInsert().
		Model(agg).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner aggregate: %w (ownerID=%s)", err, ownerID)
	}

	err = idb.NewSelect().
		Model(agg).
		Where("id = ?", ownerID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock owner aggregate: %w (ownerID=%s)", err, ownerID)
	}

	return agg, nil
}

// Save writes an owner's counters and badges.
func (r *AggregateModel) Save(ctx context.Context, idb bun.IDB, agg *types.OwnerAggregate) error {
	_, err := idb.NewInsert().
		Model(agg).
		On("CONFLICT (id) DO UPDATE").
		Set("score = EXCLUDED.score").
		Set("reports_count = EXCLUDED.reports_count").
		Set("approvals_count = EXCLUDED.approvals_count").
		Set("earned_badges = EXCLUDED.earned_badges").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save owner aggregate: %w (ownerID=%s)", err, agg.ID)
	}

	return nil
}

// GetAggregate reads an owner's aggregate without locking it.
func (r *AggregateModel) GetAggregate(ctx context.Context, ownerID string) (*types.OwnerAggregate, error) {
	var agg types.OwnerAggregate

	err := r.db.NewSelect().
		Model(&agg).
		Where("id = ?", ownerID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &types.OwnerAggregate{ID: ownerID, EarnedBadges: []string{}}, nil
		}
		return nil, fmt.Errorf("failed to get owner aggregate: %w (ownerID=%s)", err, ownerID)
	}

	return &agg, nil
}

// GetTopOwners returns the owners with the highest scores.
func (r *AggregateModel) GetTopOwners(ctx context.Context, limit int) ([]types.OwnerAggregate, error) {
	var aggs []types.OwnerAggregate

	err := r.db.NewSelect().
		Model(&aggs).
		OrderExpr("score DESC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get top owners: %w", err)
	}

	return aggs, nil
}
