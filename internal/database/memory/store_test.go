package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/database/dbretry"
	"github.com/onlyrealroles/ghostscore/internal/database/memory"
	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) *memory.Store {
	t.Helper()

	return memory.New(dbretry.Policy{
		MaxRetries:      5,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  time.Second,
	})
}

func addScore(ctx context.Context, tx engine.Tx, ownerID string, delta int64) error {
	agg, err := tx.OwnerAggregate(ctx, ownerID)
	if err != nil {
		return err
	}
	agg.Score += delta
	return tx.SaveOwnerAggregate(ctx, agg)
}

func TestRunInTxConflictRetries(t *testing.T) {
	t.Parallel()

	store := setupTest(t)
	attempts := 0

	err := store.RunInTx(t.Context(), func(ctx context.Context, tx engine.Tx) error {
		attempts++

		agg, err := tx.OwnerAggregate(ctx, "owner")
		if err != nil {
			return err
		}

		// A concurrent writer commits to the same owner between our read and commit
		if attempts == 1 {
			require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx engine.Tx) error {
				return addScore(ctx, tx, "owner", 10)
			}))
		}

		agg.Score++
		return tx.SaveOwnerAggregate(ctx, agg)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(11), store.Aggregate("owner").Score)
	assert.Equal(t, 1, store.Stats().Conflicts)
}

func TestRunInTxDisjointOwnersDoNotConflict(t *testing.T) {
	t.Parallel()

	store := setupTest(t)
	attempts := 0

	err := store.RunInTx(t.Context(), func(ctx context.Context, tx engine.Tx) error {
		attempts++

		if err := addScore(ctx, tx, "owner", 1); err != nil {
			return err
		}

		if attempts == 1 {
			require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx engine.Tx) error {
				return addScore(ctx, tx, "other", 1)
			}))
		}

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, attempts)
	assert.Zero(t, store.Stats().Conflicts)
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := setupTest(t)
	errBoom := assert.AnError

	err := store.RunInTx(t.Context(), func(ctx context.Context, tx engine.Tx) error {
		if err := addScore(ctx, tx, "owner", 5); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	assert.Nil(t, store.Aggregate("owner"))
	assert.Equal(t, 1, store.Stats().Attempts)
}

func TestTxReadsOwnWrites(t *testing.T) {
	t.Parallel()

	store := setupTest(t)
	key := types.LedgerKey{OwnerID: "owner", SubjectID: "report", VoterID: "voter"}

	err := store.RunInTx(t.Context(), func(ctx context.Context, tx engine.Tx) error {
		entry, err := tx.LedgerEntry(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, entry)

		require.NoError(t, tx.SaveLedgerEntry(ctx, &types.LedgerEntry{
			OwnerID: key.OwnerID, SubjectID: key.SubjectID, VoterID: key.VoterID, LastContributedAsValid: true,
		}))

		entry, err = tx.LedgerEntry(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.True(t, entry.LastContributedAsValid)

		count, err := tx.CountValidLedgerEntries(ctx, "owner")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		return nil
	})
	require.NoError(t, err)

	assert.True(t, store.Ledger(key).LastContributedAsValid)
}

func TestGhostReportNotFound(t *testing.T) {
	t.Parallel()

	store := setupTest(t)

	_, err := store.GhostReport(t.Context(), "missing")
	require.ErrorIs(t, err, engine.ErrNotFound)

	store.PutGhostReport(types.GhostReport{ID: "r", OwnerID: "o"})
	report, err := store.GhostReport(t.Context(), "r")
	require.NoError(t, err)
	assert.Equal(t, "o", report.OwnerID)

	store.DeleteGhostReport("r")
	_, err = store.GhostReport(t.Context(), "r")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestOwnerTotalsPagination(t *testing.T) {
	t.Parallel()

	store := setupTest(t)

	for _, owner := range []string{"c", "a", "b"} {
		require.NoError(t, store.RunInTx(t.Context(), func(ctx context.Context, tx engine.Tx) error {
			return addScore(ctx, tx, owner, 1)
		}))
	}

	page, err := store.OwnerTotals(t.Context(), "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].OwnerID)
	assert.Equal(t, "b", page[1].OwnerID)

	page, err = store.OwnerTotals(t.Context(), "b", 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].OwnerID)
	assert.True(t, page[0].Drifted())
}
