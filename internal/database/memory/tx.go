package memory

import (
	"context"

	"github.com/onlyrealroles/ghostscore/internal/database/types"
)

// tx buffers writes and remembers the version of everything it read.
type tx struct {
	store          *Store
	ledgerReads    map[types.LedgerKey]uint64
	aggregateReads map[string]uint64
	scanReads      map[string]uint64
	ledgerWrites   map[types.LedgerKey]types.LedgerEntry
	aggWrites      map[string]types.OwnerAggregate
}

func (t *tx) LedgerEntry(_ context.Context, key types.LedgerKey) (*types.LedgerEntry, error) {
	if entry, ok := t.ledgerWrites[key]; ok {
		return &entry, nil
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	row, ok := t.store.ledger[key]
	t.ledgerReads[key] = row.version
	if !ok {
		return nil, nil //nolint:nilnil // absent entries are not an error
	}

	entry := row.value
	return &entry, nil
}

func (t *tx) SaveLedgerEntry(_ context.Context, entry *types.LedgerEntry) error {
	t.ledgerWrites[entry.Key()] = *entry
	return nil
}

func (t *tx) CountValidLedgerEntries(_ context.Context, ownerID string) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	t.scanReads[ownerID] = t.store.ownerScans[ownerID]

	var count int64
	for key, row := range t.store.ledger {
		if key.OwnerID != ownerID {
			continue
		}
		if pending, ok := t.ledgerWrites[key]; ok {
			if pending.LastContributedAsValid {
				count++
			}
			continue
		}
		if row.value.LastContributedAsValid {
			count++
		}
	}
	for key, pending := range t.ledgerWrites {
		if _, committed := t.store.ledger[key]; !committed && key.OwnerID == ownerID && pending.LastContributedAsValid {
			count++
		}
	}

	return count, nil
}

func (t *tx) OwnerAggregate(_ context.Context, ownerID string) (*types.OwnerAggregate, error) {
	if agg, ok := t.aggWrites[ownerID]; ok {
		return agg.Clone(), nil
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	row, ok := t.store.aggregates[ownerID]
	t.aggregateReads[ownerID] = row.version
	if !ok {
		return &types.OwnerAggregate{ID: ownerID}, nil
	}

	return row.value.Clone(), nil
}

func (t *tx) SaveOwnerAggregate(_ context.Context, agg *types.OwnerAggregate) error {
	t.aggWrites[agg.ID] = *agg.Clone()
	return nil
}
