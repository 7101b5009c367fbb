package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/onlyrealroles/ghostscore/internal/database/dbretry"
	"github.com/onlyrealroles/ghostscore/internal/database/models"
	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Store implements engine.Store on PostgreSQL. Transactions run at
// SERIALIZABLE isolation and are re-run on serialization failures.
type Store struct {
	db     *bun.DB
	repo   *Repository
	policy dbretry.Policy
	logger *zap.Logger
}

// NewStore creates a Store over the given connection.
func NewStore(db *bun.DB, repo *Repository, policy dbretry.Policy, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		repo:   repo,
		policy: policy,
		logger: logger.Named("store"),
	}
}

// RunInTx implements engine.Store.
func (s *Store) RunInTx(ctx context.Context, fn engine.TxFunc) error {
	attempt := 0

	return s.policy.Transaction(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelSerializable},
		func(ctx context.Context, tx bun.Tx) error {
			attempt++
			if attempt > 1 {
				s.logger.Debug("Retrying transaction", zap.Int("attempt", attempt))
			}

			return fn(ctx, &storeTx{tx: tx, repo: s.repo})
		})
}

// GhostReport implements engine.Store.
func (s *Store) GhostReport(ctx context.Context, reportID string) (*types.GhostReport, error) {
	report, err := dbretry.Operation(ctx, s.policy, func(ctx context.Context) (*types.GhostReport, error) {
		return s.repo.Report().GetGhostReport(ctx, reportID)
	})
	if errors.Is(err, models.ErrReportNotFound) {
		return nil, engine.ErrNotFound
	}

	return report, err
}

// CreateGhostReport implements engine.Store.
func (s *Store) CreateGhostReport(ctx context.Context, report *types.GhostReport) error {
	return s.policy.NoResult(ctx, func(ctx context.Context) error {
		return s.repo.Report().CreateGhostReport(ctx, report)
	})
}

// IncrementPostVotes implements engine.Store.
func (s *Store) IncrementPostVotes(ctx context.Context, postID string, up, down int64) error {
	return s.policy.NoResult(ctx, func(ctx context.Context) error {
		return s.repo.Post().IncrementVotes(ctx, postID, up, down)
	})
}

// OwnerTotals implements engine.AuditSource.
func (s *Store) OwnerTotals(ctx context.Context, afterOwnerID string, limit int) ([]engine.OwnerTotals, error) {
	return dbretry.Operation(ctx, s.policy, func(ctx context.Context) ([]engine.OwnerTotals, error) {
		return s.repo.Audit().OwnerTotals(ctx, afterOwnerID, limit)
	})
}

// storeTx adapts a bun transaction to engine.Tx.
type storeTx struct {
	tx   bun.Tx
	repo *Repository
}

func (t *storeTx) LedgerEntry(ctx context.Context, key types.LedgerKey) (*types.LedgerEntry, error) {
	return t.repo.Ledger().GetEntryForUpdate(ctx, t.tx, key)
}

func (t *storeTx) SaveLedgerEntry(ctx context.Context, entry *types.LedgerEntry) error {
	return t.repo.Ledger().SaveEntry(ctx, t.tx, entry)
}

func (t *storeTx) CountValidLedgerEntries(ctx context.Context, ownerID string) (int64, error) {
	return t.repo.Ledger().CountValid(ctx, t.tx, ownerID)
}

func (t *storeTx) OwnerAggregate(ctx context.Context, ownerID string) (*types.OwnerAggregate, error) {
	return t.repo.Aggregate().GetForUpdate(ctx, t.tx, ownerID)
}

func (t *storeTx) SaveOwnerAggregate(ctx context.Context, agg *types.OwnerAggregate) error {
	return t.repo.Aggregate().Save(ctx, t.tx, agg)
}
