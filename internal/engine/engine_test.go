package engine_test

import (
	"testing"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/badge"
	"github.com/onlyrealroles/ghostscore/internal/database/dbretry"
	"github.com/onlyrealroles/ghostscore/internal/database/memory"
	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/onlyrealroles/ghostscore/internal/vote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	ownerID  = "owner-1"
	reportID = "report-1"
	voterID  = "voter-1"
)

func fastPolicy() dbretry.Policy {
	return dbretry.Policy{
		MaxRetries:      50,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  10 * time.Second,
	}
}

func setupTest(t *testing.T) (*engine.Engine, *memory.Store) {
	t.Helper()

	store := memory.New(fastPolicy())
	store.PutGhostReport(types.GhostReport{ID: reportID, OwnerID: ownerID})

	logger := zap.NewNop()
	return engine.New(store, badge.NewDefaultEngine(nil), logger), store
}

func voteEvent(voter string, before, after vote.Raw) engine.ReportVoteWritten {
	return engine.ReportVoteWritten{
		ReportID: reportID,
		VoterID:  voter,
		Before:   before,
		After:    after,
	}
}

func TestReportVoteWrittenIdempotent(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)
	ev := voteEvent(voterID, vote.Absent(), vote.Code(1))

	outcome, err := eng.ReportVoteWritten(t.Context(), ev)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)

	for range 4 {
		outcome, err = eng.ReportVoteWritten(t.Context(), ev)
		require.NoError(t, err)
		assert.Equal(t, engine.OutcomeNoChange, outcome)
	}

	agg := store.Aggregate(ownerID)
	require.NotNil(t, agg)
	assert.Equal(t, int64(1), agg.Score)
	assert.Equal(t, int64(1), agg.ApprovalsCount)
	assert.Equal(t, int64(1), agg.AccountPoints())
}

func TestReportVoteWrittenScenario(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)
	key := types.LedgerKey{OwnerID: ownerID, SubjectID: reportID, VoterID: voterID}

	// Cast valid
	outcome, err := eng.ReportVoteWritten(t.Context(), voteEvent(voterID, vote.Absent(), vote.Token("valid")))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)
	assert.Equal(t, int64(1), store.Aggregate(ownerID).Score)
	assert.True(t, store.Ledger(key).LastContributedAsValid)

	// Change to needs_more
	outcome, err = eng.ReportVoteWritten(t.Context(), voteEvent(voterID, vote.Token("valid"), vote.Code(0)))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)
	assert.Equal(t, int64(0), store.Aggregate(ownerID).Score)
	assert.False(t, store.Ledger(key).LastContributedAsValid)

	// Delete the vote
	outcome, err = eng.ReportVoteWritten(t.Context(), voteEvent(voterID, vote.Code(0), vote.Absent()))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSkippedNoDelta, outcome)

	agg := store.Aggregate(ownerID)
	assert.Equal(t, int64(0), agg.Score)
	assert.Equal(t, int64(0), agg.ApprovalsCount)
	assert.False(t, store.Ledger(key).LastContributedAsValid)
}

func TestReportVoteWrittenSelfVote(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)

	transitions := [][2]vote.Raw{
		{vote.Absent(), vote.Code(1)},
		{vote.Code(1), vote.Code(-1)},
		{vote.Code(-1), vote.Token("valid")},
	}

	for _, tr := range transitions {
		outcome, err := eng.ReportVoteWritten(t.Context(), voteEvent(ownerID, tr[0], tr[1]))
		require.NoError(t, err)
		assert.Equal(t, engine.OutcomeSkippedSelfVote, outcome)
	}

	assert.Nil(t, store.Aggregate(ownerID))
	assert.Nil(t, store.Ledger(types.LedgerKey{OwnerID: ownerID, SubjectID: reportID, VoterID: ownerID}))
	assert.Zero(t, store.Stats().Transactions)
}

func TestReportVoteWrittenEarlyExit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		before vote.Raw
		after  vote.Raw
	}{
		{name: "same code", before: vote.Code(1), after: vote.Code(1)},
		{name: "code and token", before: vote.Code(1), after: vote.Token("valid")},
		{name: "absent to unrecognised", before: vote.Absent(), after: vote.Token("maybe")},
		{name: "unrecognised to absent", before: vote.Code(7), after: vote.Absent()},
		{name: "needs more", before: vote.Token("needs_more"), after: vote.Code(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eng, store := setupTest(t)

			outcome, err := eng.ReportVoteWritten(t.Context(), voteEvent(voterID, tt.before, tt.after))
			require.NoError(t, err)
			assert.Equal(t, engine.OutcomeSkippedUnchanged, outcome)

			stats := store.Stats()
			assert.Zero(t, stats.Transactions)
			assert.Zero(t, stats.Lookups)
			assert.Nil(t, store.Aggregate(ownerID))
		})
	}
}

func TestReportVoteWrittenIgnoresNonValidTransitions(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)

	outcome, err := eng.ReportVoteWritten(t.Context(), voteEvent(voterID, vote.Absent(), vote.Code(1)))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)

	// A stale needs_more to invalid edit arrives after the vote became valid
	stale := []vote.Raw{vote.Code(0), vote.Code(-1)}
	for range 2 {
		outcome, err = eng.ReportVoteWritten(t.Context(), voteEvent(voterID, stale[0], stale[1]))
		require.NoError(t, err)
		assert.Equal(t, engine.OutcomeSkippedNoDelta, outcome)
	}

	outcome, err = eng.ReportVoteWritten(t.Context(), voteEvent(voterID, vote.Token("invalid"), vote.Absent()))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSkippedNoDelta, outcome)

	agg := store.Aggregate(ownerID)
	assert.Equal(t, int64(1), agg.Score)
	assert.Equal(t, int64(1), agg.ApprovalsCount)
	assert.True(t, store.Ledger(types.LedgerKey{OwnerID: ownerID, SubjectID: reportID, VoterID: voterID}).LastContributedAsValid)

	stats := store.Stats()
	assert.Equal(t, 1, stats.Transactions)
	assert.Equal(t, 1, stats.Lookups)
}

func TestReportVoteWrittenMissingReport(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)

	ev := voteEvent(voterID, vote.Absent(), vote.Code(1))
	ev.ReportID = "deleted-report"

	outcome, err := eng.ReportVoteWritten(t.Context(), ev)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSkippedMissingReference, outcome)
	assert.Zero(t, store.Stats().Transactions)

	store.PutGhostReport(types.GhostReport{ID: "orphan"})
	ev.ReportID = "orphan"

	outcome, err = eng.ReportVoteWritten(t.Context(), ev)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSkippedMissingReference, outcome)
}

func TestReportVoteWrittenConvergesUnderReordering(t *testing.T) {
	t.Parallel()

	key := types.LedgerKey{OwnerID: ownerID, SubjectID: reportID, VoterID: voterID}
	cast := voteEvent(voterID, vote.Absent(), vote.Code(1))
	change := voteEvent(voterID, vote.Code(1), vote.Code(-1))

	t.Run("in order", func(t *testing.T) {
		t.Parallel()

		eng, store := setupTest(t)
		for _, ev := range []engine.ReportVoteWritten{cast, change, change, cast, change} {
			_, err := eng.ReportVoteWritten(t.Context(), ev)
			require.NoError(t, err)
		}

		assert.Equal(t, int64(0), store.Aggregate(ownerID).Score)
		assert.False(t, store.Ledger(key).LastContributedAsValid)
	})

	t.Run("reversed", func(t *testing.T) {
		t.Parallel()

		eng, store := setupTest(t)
		for _, ev := range []engine.ReportVoteWritten{change, cast, cast, change, cast} {
			_, err := eng.ReportVoteWritten(t.Context(), ev)
			require.NoError(t, err)
		}

		assert.Equal(t, int64(1), store.Aggregate(ownerID).Score)
		assert.True(t, store.Ledger(key).LastContributedAsValid)
	})

	t.Run("many voters any order", func(t *testing.T) {
		t.Parallel()

		voters := []string{"a", "b", "c", "d"}
		finals := map[string]vote.Raw{
			"a": vote.Code(1),
			"b": vote.Token("invalid"),
			"c": vote.Token("valid"),
			"d": vote.Absent(),
		}

		orders := [][]string{
			{"a", "b", "c", "d"},
			{"d", "c", "b", "a"},
			{"c", "a", "d", "b"},
		}

		for _, order := range orders {
			eng, store := setupTest(t)

			// Every voter first casts valid, then settles on its final value
			for _, v := range voters {
				_, err := eng.ReportVoteWritten(t.Context(), voteEvent(v, vote.Absent(), vote.Code(1)))
				require.NoError(t, err)
			}
			for _, v := range order {
				_, err := eng.ReportVoteWritten(t.Context(), voteEvent(v, vote.Code(1), finals[v]))
				require.NoError(t, err)
				_, err = eng.ReportVoteWritten(t.Context(), voteEvent(v, vote.Code(1), finals[v]))
				require.NoError(t, err)
			}

			agg := store.Aggregate(ownerID)
			assert.Equal(t, int64(2), agg.Score, "order %v", order)
			assert.Equal(t, int64(2), agg.ApprovalsCount, "order %v", order)
		}
	})
}

func TestReportVoteWrittenConcurrent(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)

	const voters = 20
	errs := make(chan error, voters*3)

	for i := range voters {
		voter := string(rune('A' + i))
		for range 3 {
			go func() {
				_, err := eng.ReportVoteWritten(t.Context(), voteEvent(voter, vote.Absent(), vote.Code(1)))
				errs <- err
			}()
		}
	}

	for range voters * 3 {
		require.NoError(t, <-errs)
	}

	agg := store.Aggregate(ownerID)
	assert.Equal(t, int64(voters), agg.Score)
	assert.Equal(t, int64(voters), agg.ApprovalsCount)
	assert.True(t, agg.HasBadge("Whisp Whisperer"))
	assert.True(t, agg.HasBadge(badge.FiveApprovals))
}

func TestReportVoteWrittenRetriesConflicts(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)
	store.InjectConflicts(3)

	outcome, err := eng.ReportVoteWritten(t.Context(), voteEvent(voterID, vote.Absent(), vote.Code(1)))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)

	stats := store.Stats()
	assert.Equal(t, 1, stats.Transactions)
	assert.Equal(t, 4, stats.Attempts)
	assert.Equal(t, 3, stats.Conflicts)
	assert.Equal(t, 1, stats.Commits)

	// Retried bodies must not double count
	assert.Equal(t, int64(1), store.Aggregate(ownerID).Score)
}

func TestReportVoteWrittenGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	store := memory.New(dbretry.Policy{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  time.Second,
	})
	store.PutGhostReport(types.GhostReport{ID: reportID, OwnerID: ownerID})
	store.InjectConflicts(10)

	eng := engine.New(store, badge.NewDefaultEngine(nil), zap.NewNop())

	outcome, err := eng.ReportVoteWritten(t.Context(), voteEvent(voterID, vote.Absent(), vote.Code(1)))
	require.Error(t, err)
	require.ErrorIs(t, err, dbretry.ErrSerialization)
	assert.Equal(t, engine.OutcomeFailed, outcome)
	assert.Nil(t, store.Aggregate(ownerID))
}

func TestThresholdCrossingSingleEvent(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)
	store.SetAggregate(types.OwnerAggregate{
		ID:             ownerID,
		Score:          49,
		ApprovalsCount: 49,
		ReportsCount:   3,
		EarnedBadges:   []string{badge.FirstReport, badge.FiveApprovals, "Whisp Whisperer", "Soul Saver"},
	})

	ev := voteEvent(voterID, vote.Absent(), vote.Code(1))

	outcome, err := eng.ReportVoteWritten(t.Context(), ev)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)

	agg := store.Aggregate(ownerID)
	assert.Equal(t, int64(50), agg.Score)
	assert.True(t, agg.HasBadge("Wraith Wrecker"))

	outcome, err = eng.ReportVoteWritten(t.Context(), ev)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeNoChange, outcome)

	agg = store.Aggregate(ownerID)
	assert.Equal(t, int64(50), agg.Score)
	assert.Equal(t, []string{
		badge.FirstReport, badge.FiveApprovals, "Whisp Whisperer", "Soul Saver", "Wraith Wrecker",
	}, agg.EarnedBadges)
}

func TestBadgesNeverRemoved(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)
	store.SetAggregate(types.OwnerAggregate{ID: ownerID, Score: 9, ApprovalsCount: 9})

	up := voteEvent(voterID, vote.Absent(), vote.Code(1))
	down := voteEvent(voterID, vote.Code(1), vote.Code(-1))

	var seen []string
	for _, ev := range []engine.ReportVoteWritten{up, down, up, down, down, up} {
		_, err := eng.ReportVoteWritten(t.Context(), ev)
		require.NoError(t, err)

		badges := store.Aggregate(ownerID).EarnedBadges
		for _, b := range seen {
			assert.Contains(t, badges, b)
		}
		seen = badges
	}

	assert.Contains(t, seen, "Whisp Whisperer")
	assert.Equal(t, int64(10), store.Aggregate(ownerID).Score)
}

func TestReportCreated(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)

	outcome, err := eng.ReportCreated(t.Context(), engine.ReportCreated{ReportID: "r1", OwnerID: ownerID})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)

	agg := store.Aggregate(ownerID)
	assert.Equal(t, int64(1), agg.ReportsCount)
	assert.Equal(t, []string{badge.FirstReport}, agg.EarnedBadges)

	outcome, err = eng.ReportCreated(t.Context(), engine.ReportCreated{ReportID: "r2", OwnerID: ownerID})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)

	agg = store.Aggregate(ownerID)
	assert.Equal(t, int64(2), agg.ReportsCount)
	assert.Equal(t, int64(0), agg.Score)
	assert.Equal(t, []string{badge.FirstReport}, agg.EarnedBadges)
}

func TestReportCreatedRegistersReport(t *testing.T) {
	t.Parallel()

	eng, _ := setupTest(t)

	// Votes on an unknown report are skipped until its creation is seen
	ev := engine.ReportVoteWritten{ReportID: "r9", VoterID: voterID, Before: vote.Absent(), After: vote.Code(1)}
	outcome, err := eng.ReportVoteWritten(t.Context(), ev)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSkippedMissingReference, outcome)

	_, err = eng.ReportCreated(t.Context(), engine.ReportCreated{ReportID: "r9", OwnerID: "owner-9"})
	require.NoError(t, err)

	outcome, err = eng.ReportVoteWritten(t.Context(), ev)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)
}

func TestReportCreatedKeepsExistingOwner(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)

	// A redelivered creation naming another owner must not move the report
	outcome, err := eng.ReportCreated(t.Context(), engine.ReportCreated{ReportID: reportID, OwnerID: "owner-2"})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)

	outcome, err = eng.ReportVoteWritten(t.Context(), voteEvent(voterID, vote.Absent(), vote.Code(1)))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeApplied, outcome)

	assert.Equal(t, int64(1), store.Aggregate(ownerID).Score)
	assert.Equal(t, int64(0), store.Aggregate("owner-2").Score)
}

func TestReportCreatedWithoutOwner(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)

	outcome, err := eng.ReportCreated(t.Context(), engine.ReportCreated{ReportID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSkippedMissingReference, outcome)
	assert.Zero(t, store.Stats().Transactions)
}

func TestPostVoteWritten(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)

	events := []struct {
		name    string
		before  vote.Raw
		after   vote.Raw
		outcome engine.Outcome
	}{
		{name: "cast up", before: vote.Absent(), after: vote.Code(1), outcome: engine.OutcomeApplied},
		{name: "flip to down", before: vote.Code(1), after: vote.Code(-1), outcome: engine.OutcomeApplied},
		{name: "same direction", before: vote.Code(-1), after: vote.Code(-1), outcome: engine.OutcomeSkippedUnchanged},
		{name: "token is neutral", before: vote.Absent(), after: vote.Token("valid"), outcome: engine.OutcomeSkippedUnchanged},
		{name: "cast down", before: vote.Absent(), after: vote.Code(-1), outcome: engine.OutcomeApplied},
	}

	for _, ev := range events {
		outcome, err := eng.PostVoteWritten(t.Context(), engine.PostVoteWritten{
			PostID:  "post-1",
			VoterID: voterID,
			Before:  ev.before,
			After:   ev.after,
		})
		require.NoError(t, err, ev.name)
		assert.Equal(t, ev.outcome, outcome, ev.name)
	}

	post := store.Post("post-1")
	require.NotNil(t, post)
	assert.Equal(t, int64(0), post.VotesUp)
	assert.Equal(t, int64(2), post.VotesDown)
	assert.Zero(t, store.Stats().Transactions)
}

func TestPostVoteWrittenRedeliveryCountsTwice(t *testing.T) {
	t.Parallel()

	eng, store := setupTest(t)
	ev := engine.PostVoteWritten{PostID: "post-1", VoterID: voterID, Before: vote.Absent(), After: vote.Code(1)}

	for range 2 {
		_, err := eng.PostVoteWritten(t.Context(), ev)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(2), store.Post("post-1").VotesUp)
}
