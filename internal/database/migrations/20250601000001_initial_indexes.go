package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- Report owner lookups
			CREATE INDEX IF NOT EXISTS idx_ghost_reports_uid
			ON ghost_reports (uid);

			-- Valid entry counts per owner for the audit
			CREATE INDEX IF NOT EXISTS idx_ledger_entries_owner_valid
			ON ledger_entries (owner_id)
			WHERE last_is_valid;

			-- Leaderboard
			CREATE INDEX IF NOT EXISTS idx_owner_aggregates_score
			ON owner_aggregates (score DESC, id ASC);
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_owner_aggregates_score;
			DROP INDEX IF EXISTS idx_ledger_entries_owner_valid;
			DROP INDEX IF EXISTS idx_ghost_reports_uid;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop indexes: %w", err)
		}

		return nil
	})
}
