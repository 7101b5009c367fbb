// Package memory is an in-process engine.Store with optimistic concurrency.
//
// Transactions read from committed state, buffer their writes and validate at
// commit that nothing they read has changed since. A failed validation returns
// dbretry.ErrSerialization and the whole transaction is re-run, which is the
// same contract the Postgres store gives with SERIALIZABLE isolation. It backs
// the worker's dry-run mode and the engine tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/database/dbretry"
	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/onlyrealroles/ghostscore/internal/engine"
)

type versioned[T any] struct {
	value   T
	version uint64
}

// Stats counts store activity.
type Stats struct {
	Transactions int // RunInTx calls
	Attempts     int // transaction bodies run, including retries
	Commits      int
	Conflicts    int
	Lookups      int // report lookups outside transactions
}

// Store is an in-memory engine.Store.
type Store struct {
	mu         sync.Mutex
	reports    map[string]types.GhostReport
	posts      map[string]types.NetworkPost
	ledger     map[types.LedgerKey]versioned[types.LedgerEntry]
	aggregates map[string]versioned[types.OwnerAggregate]
	// ownerScans is bumped on every ledger write so whole-owner counts conflict too
	ownerScans map[string]uint64
	injected   int
	stats      Stats
	policy     dbretry.Policy
	now        func() time.Time
}

// New creates an empty store that retries conflicts with the given policy.
func New(policy dbretry.Policy) *Store {
	return &Store{
		reports:    make(map[string]types.GhostReport),
		posts:      make(map[string]types.NetworkPost),
		ledger:     make(map[types.LedgerKey]versioned[types.LedgerEntry]),
		aggregates: make(map[string]versioned[types.OwnerAggregate]),
		ownerScans: make(map[string]uint64),
		policy:     policy,
		now:        time.Now,
	}
}

// PutGhostReport stores a report so votes on it can be resolved to its owner.
func (s *Store) PutGhostReport(report types.GhostReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ID] = report
}

// DeleteGhostReport removes a report.
func (s *Store) DeleteGhostReport(reportID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, reportID)
}

// InjectConflicts makes the next n commits fail with a serialization conflict.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = n
}

// Stats returns a snapshot of the store's activity counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Aggregate returns a copy of an owner's committed aggregate, or nil.
func (s *Store) Aggregate(ownerID string) *types.OwnerAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.aggregates[ownerID]
	if !ok {
		return nil
	}
	return row.value.Clone()
}

// SetAggregate overwrites an owner's aggregate outside any transaction.
func (s *Store) SetAggregate(agg types.OwnerAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.aggregates[agg.ID]
	s.aggregates[agg.ID] = versioned[types.OwnerAggregate]{value: *agg.Clone(), version: row.version + 1}
}

// Ledger returns a copy of a committed ledger entry, or nil.
func (s *Store) Ledger(key types.LedgerKey) *types.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.ledger[key]
	if !ok {
		return nil
	}
	entry := row.value
	return &entry
}

// Post returns a copy of a post's counters, or nil.
func (s *Store) Post(postID string) *types.NetworkPost {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return nil
	}
	return &post
}

// GhostReport implements engine.Store.
func (s *Store) GhostReport(_ context.Context, reportID string) (*types.GhostReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Lookups++

	report, ok := s.reports[reportID]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return &report, nil
}

// CreateGhostReport implements engine.Store.
func (s *Store) CreateGhostReport(_ context.Context, report *types.GhostReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[report.ID]; !ok {
		s.reports[report.ID] = *report
	}
	return nil
}

// IncrementPostVotes implements engine.Store.
func (s *Store) IncrementPostVotes(_ context.Context, postID string, up, down int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.posts[postID]
	post.ID = postID
	post.VotesUp += up
	post.VotesDown += down
	post.UpdatedAt = s.now()
	s.posts[postID] = post

	return nil
}

// RunInTx implements engine.Store.
func (s *Store) RunInTx(ctx context.Context, fn engine.TxFunc) error {
	s.mu.Lock()
	s.stats.Transactions++
	s.mu.Unlock()

	return s.policy.NoResult(ctx, func(ctx context.Context) error {
		tx := s.begin()
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.commit(tx)
	})
}

// OwnerTotals implements engine.AuditSource.
func (s *Store) OwnerTotals(_ context.Context, afterOwnerID string, limit int) ([]engine.OwnerTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[string]*engine.OwnerTotals)
	get := func(ownerID string) *engine.OwnerTotals {
		t, ok := totals[ownerID]
		if !ok {
			t = &engine.OwnerTotals{OwnerID: ownerID}
			totals[ownerID] = t
		}
		return t
	}

	for id, row := range s.aggregates {
		t := get(id)
		t.Score = row.value.Score
		t.ApprovalsCount = row.value.ApprovalsCount
	}
	for key, row := range s.ledger {
		t := get(key.OwnerID)
		if row.value.LastContributedAsValid {
			t.ValidVotes++
		}
	}

	result := make([]engine.OwnerTotals, 0, len(totals))
	for id, t := range totals {
		if id > afterOwnerID {
			result = append(result, *t)
		}
	}
	slices.SortFunc(result, func(a, b engine.OwnerTotals) int {
		return cmp.Compare(a.OwnerID, b.OwnerID)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) begin() *tx {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Attempts++

	return &tx{
		store:          s,
		ledgerReads:    make(map[types.LedgerKey]uint64),
		aggregateReads: make(map[string]uint64),
		scanReads:      make(map[string]uint64),
		ledgerWrites:   make(map[types.LedgerKey]types.LedgerEntry),
		aggWrites:      make(map[string]types.OwnerAggregate),
	}
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.injected > 0 {
		s.injected--
		s.stats.Conflicts++
		return dbretry.ErrSerialization
	}

	for key, seen := range t.ledgerReads {
		if s.ledger[key].version != seen {
			s.stats.Conflicts++
			return dbretry.ErrSerialization
		}
	}
	for id, seen := range t.aggregateReads {
		if s.aggregates[id].version != seen {
			s.stats.Conflicts++
			return dbretry.ErrSerialization
		}
	}
	for owner, seen := range t.scanReads {
		if s.ownerScans[owner] != seen {
			s.stats.Conflicts++
			return dbretry.ErrSerialization
		}
	}

	for key, entry := range t.ledgerWrites {
		row := s.ledger[key]
		s.ledger[key] = versioned[types.LedgerEntry]{value: entry, version: row.version + 1}
		s.ownerScans[key.OwnerID]++
	}
	for id, agg := range t.aggWrites {
		row := s.aggregates[id]
		s.aggregates[id] = versioned[types.OwnerAggregate]{value: agg, version: row.version + 1}
	}

	s.stats.Commits++
	return nil
}
