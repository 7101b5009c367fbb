package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/onlyrealroles/ghostscore/internal/database/types/enum"
	"github.com/onlyrealroles/ghostscore/internal/vote"
	"go.uber.org/zap"
)

// Ledger turns a vote's latest semantic value into the delta it still owes the
// owner's score, using the per-(report, voter) entry of what was last applied.
type Ledger struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewLedger creates a new ledger.
func NewLedger(logger *zap.Logger) *Ledger {
	return &Ledger{
		now:    time.Now,
		logger: logger.Named("ledger"),
	}
}

// Reconcile returns the effective delta for a vote that now has the given value.
//
// The delta is measured against the ledger, not against the event's before value,
// so delivering the same transition again yields 0. The entry is only written
// when the delta is non-zero. Must be called inside a transaction.
func (l *Ledger) Reconcile(ctx context.Context, tx Tx, key types.LedgerKey, value enum.VoteValue) (int64, error) {
	if tx == nil {
		return 0, ErrNoTransaction
	}

	entry, err := tx.LedgerEntry(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger entry: %w", err)
	}

	wasValid := entry != nil && entry.LastContributedAsValid
	isValid := value == enum.VoteValueValid

	delta := vote.Contribution(value)
	if wasValid {
		delta--
	}

	if delta == 0 {
		l.logger.Debug("Ledger already reflects vote",
			zap.String("subjectID", key.SubjectID),
			zap.String("voterID", key.VoterID),
			zap.Bool("isValid", isValid))
		return 0, nil
	}

	err = tx.SaveLedgerEntry(ctx, &types.LedgerEntry{
		OwnerID:                key.OwnerID,
		SubjectID:              key.SubjectID,
		VoterID:                key.VoterID,
		LastContributedAsValid: isValid,
		UpdatedAt:              l.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save ledger entry: %w", err)
	}

	return delta, nil
}
