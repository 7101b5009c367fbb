package engine

import (
	"context"
	"errors"

	"github.com/onlyrealroles/ghostscore/internal/database/types"
)

var (
	// ErrNotFound is returned by a Store when a looked up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoTransaction is returned when a counter write is attempted outside a transaction.
	ErrNoTransaction = errors.New("counter updates require an active transaction")
)

// TxFunc is the body of a transaction. It may run more than once when the
// store retries after a serialization conflict, so it must not have side
// effects outside the transaction.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the storage capability the engine is built on.
type Store interface {
	// RunInTx runs fn inside a transaction and commits it when fn returns nil.
	// Serialization conflicts roll back and re-run fn from the start.
	RunInTx(ctx context.Context, fn TxFunc) error

	// GhostReport looks up a report by ID. It returns ErrNotFound when absent.
	GhostReport(ctx context.Context, reportID string) (*types.GhostReport, error)
	// CreateGhostReport records a report and its owner. A report that is
	// already known keeps its owner.
	CreateGhostReport(ctx context.Context, report *types.GhostReport) error

	// IncrementPostVotes atomically adds to a post's vote counters.
	IncrementPostVotes(ctx context.Context, postID string, up, down int64) error
}

// Tx is the set of reads and writes available inside a transaction.
type Tx interface {
	// LedgerEntry returns the entry for key, or nil when none has been written.
	LedgerEntry(ctx context.Context, key types.LedgerKey) (*types.LedgerEntry, error)
	// SaveLedgerEntry inserts or replaces a ledger entry.
	SaveLedgerEntry(ctx context.Context, entry *types.LedgerEntry) error
	// CountValidLedgerEntries counts the owner's entries currently marked valid.
	CountValidLedgerEntries(ctx context.Context, ownerID string) (int64, error)

	// OwnerAggregate reads and locks an owner's aggregate. A missing row is
	// returned as a zero aggregate carrying the owner ID.
	OwnerAggregate(ctx context.Context, ownerID string) (*types.OwnerAggregate, error)
	// SaveOwnerAggregate inserts or replaces an owner's aggregate.
	SaveOwnerAggregate(ctx context.Context, agg *types.OwnerAggregate) error
}
