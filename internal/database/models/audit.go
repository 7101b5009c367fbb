package models

import (
	"context"
	"fmt"

	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AuditModel compares stored aggregates with the point ledger.
type AuditModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAudit creates an AuditModel with database access.
func NewAudit(db *bun.DB, logger *zap.Logger) *AuditModel {
	return &AuditModel{
		db:     db,
		logger: logger.Named("db_audit"),
	}
}

// OwnerTotals returns stored counters next to the ledger's count of valid
// entries for up to limit owners whose ID sorts after afterOwnerID. Owners that
// appear only in the ledger or only in the aggregates are included.
func (r *AuditModel) OwnerTotals(ctx context.Context, afterOwnerID string, limit int) ([]engine.OwnerTotals, error) {
	var totals []engine.OwnerTotals

	err := r.db.NewRaw(`
		SELECT
			COALESCE(a.id, l.owner_id) AS owner_id,
			COALESCE(a.score, 0) AS score,
			COALESCE(a.approvals_count, 0) AS approvals_count,
			COALESCE(l.valid_votes, 0) AS valid_votes
		FROM owner_aggregates a
		FULL OUTER JOIN (
			SELECT owner_id, COUNT(*) FILTER (WHERE last_is_valid) AS valid_votes
			FROM ledger_entries
			GROUP BY owner_id
		) l ON l.owner_id = a.id
		WHERE COALESCE(a.id, l.owner_id) > ?
		ORDER BY 1
		LIMIT ?
	`, afterOwnerID, limit).Scan(ctx, &totals)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner totals: %w", err)
	}

	return totals, nil
}
