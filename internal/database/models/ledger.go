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

// LedgerModel handles database operations for point ledger entries.
// Every method takes the bun.IDB to run on so callers can pass a transaction.
type LedgerModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewLedger creates a LedgerModel with database access.
func NewLedger(db *bun.DB, logger *zap.Logger) *LedgerModel {
	return &LedgerModel{
		db:     db,
		logger: logger.Named("db_ledger"),
	}
}

// GetEntryForUpdate reads and locks the entry for key. It returns nil when no
// entry has been written yet.
func (r *LedgerModel) GetEntryForUpdate(
	ctx context.Context, idb bun.IDB, key types.LedgerKey,
) (*types.LedgerEntry, error) {
	var entry types.LedgerEntry

	err := idb.NewSelect().
		Model(&entry).
		Where("owner_id = ?", key.OwnerID).
		Where("subject_id = ?", key.SubjectID).
		Where("voter_id = ?", key.VoterID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // absent entries are not an error
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w (ownerID=%s, subjectID=%s, voterID=%s)",
			err, key.OwnerID, key.SubjectID, key.VoterID)
	}

	return &entry, nil
}

// SaveEntry inserts or replaces an entry.
func (r *LedgerModel) SaveEntry(ctx context.Context, idb bun.IDB, entry *types.LedgerEntry) error {
	_, err := idb.NewInsert().
		Model(entry).
		On("CONFLICT (owner_id, subject_id, voter_id) DO UPDATE").
		Set("last_is_valid = EXCLUDED.last_is_valid").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save ledger entry: %w (ownerID=%s, subjectID=%s, voterID=%s)",
			err, entry.OwnerID, entry.SubjectID, entry.VoterID)
	}

	return nil
}

// CountValid counts the owner's entries currently marked valid.
func (r *LedgerModel) CountValid(ctx context.Context, idb bun.IDB, ownerID string) (int64, error) {
	count, err := idb.NewSelect().
		Model((*types.LedgerEntry)(nil)).
		Where("owner_id = ?", ownerID).
		Where("last_is_valid").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count valid ledger entries: %w (ownerID=%s)", err, ownerID)
	}

	return int64(count), nil
}

// GetEntriesByOwner returns every entry recorded for an owner.
func (r *LedgerModel) GetEntriesByOwner(ctx context.Context, ownerID string) ([]types.LedgerEntry, error) {
	var entries []types.LedgerEntry

	err := r.db.NewSelect().
		Model(&entries).
		Where("owner_id = ?", ownerID).
		Order("subject_id", "voter_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w (ownerID=%s)", err, ownerID)
	}

	return entries, nil
}
