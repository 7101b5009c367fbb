package trigger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/onlyrealroles/ghostscore/internal/badge"
	"github.com/onlyrealroles/ghostscore/internal/database/dbretry"
	"github.com/onlyrealroles/ghostscore/internal/database/memory"
	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/onlyrealroles/ghostscore/internal/trigger"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func voteNotification(voter, before, after string) *trigger.Notification {
	return &trigger.Notification{
		Kind:   trigger.KindSubjectVoteWritten,
		Params: map[string]string{trigger.ParamReportID: "r1", trigger.ParamVoterID: voter},
		Before: []byte(before),
		After:  []byte(after),
	}
}

func TestWorkerAtLeastOnceDeliveryIsIdempotent(t *testing.T) {
	t.Parallel()
	q, _, cleanup := setupQueue(t, 3)
	defer cleanup()

	ctx := t.Context()

	store := memory.New(dbretry.Policy{MaxRetries: 5, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	store.PutGhostReport(types.GhostReport{ID: "r1", OwnerID: "owner-1"})
	eng := engine.New(store, badge.NewDefaultEngine(nil), zap.NewNop())
	w := trigger.NewWorker(q, trigger.NewDispatcher(eng, zap.NewNop()), trigger.WorkerOptions{}, zap.NewNop())

	// The same vote is delivered three times, plus a creation
	require.NoError(t, q.Enqueue(ctx, newNotification("r1")))
	for range 3 {
		require.NoError(t, q.Enqueue(ctx, voteNotification("v1", "", `{"value":1}`)))
	}

	for {
		handled, err := w.ProcessOne(ctx)
		require.NoError(t, err)
		if !handled {
			break
		}
	}

	agg := store.Aggregate("owner-1")
	require.NotNil(t, agg)
	assert.Equal(t, int64(1), agg.Score)
	assert.Equal(t, int64(1), agg.ReportsCount)
	assert.Equal(t, []string{badge.FirstReport}, agg.EarnedBadges)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.QueueStats{}, stats)
}

type failingHandler struct {
	recordingHandler
	err error
}

func (h *failingHandler) ReportCreated(context.Context, engine.ReportCreated) (engine.Outcome, error) {
	return engine.OutcomeFailed, h.err
}

func TestWorkerRequeuesFailures(t *testing.T) {
	t.Parallel()
	q, _, cleanup := setupQueue(t, 2)
	defer cleanup()

	ctx := t.Context()
	errStore := errors.New("store unreachable")
	w := trigger.NewWorker(q, trigger.NewDispatcher(&failingHandler{err: errStore}, zap.NewNop()),
		trigger.WorkerOptions{}, zap.NewNop())

	require.NoError(t, q.Enqueue(ctx, newNotification("r1")))

	handled, err := w.ProcessOne(ctx)
	assert.True(t, handled)
	require.ErrorIs(t, err, errStore)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.QueueStats{Pending: 1}, stats)

	handled, err = w.ProcessOne(ctx)
	assert.True(t, handled)
	require.ErrorIs(t, err, errStore)

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.QueueStats{Dead: 1}, stats)
}

func TestWorkerDeadLettersPermanentFailures(t *testing.T) {
	t.Parallel()
	q, _, cleanup := setupQueue(t, 5)
	defer cleanup()

	ctx := t.Context()
	w := trigger.NewWorker(q, trigger.NewDispatcher(&recordingHandler{}, zap.NewNop()),
		trigger.WorkerOptions{}, zap.NewNop())

	require.NoError(t, q.Enqueue(ctx, &trigger.Notification{Kind: "unknown"}))

	handled, err := w.ProcessOne(ctx)
	assert.True(t, handled)
	require.ErrorIs(t, err, trigger.ErrUnknownKind)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.QueueStats{Dead: 1}, stats)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	q, _, cleanup := setupQueue(t, 3)
	defer cleanup()

	store := memory.New(dbretry.DefaultPolicy())
	store.PutGhostReport(types.GhostReport{ID: "r1", OwnerID: "owner-1"})
	eng := engine.New(store, badge.NewDefaultEngine(nil), zap.NewNop())
	w := trigger.NewWorker(q, trigger.NewDispatcher(eng, zap.NewNop()),
		trigger.WorkerOptions{Concurrency: 3}, zap.NewNop())

	for _, voter := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, q.Enqueue(t.Context(), voteNotification(voter, "", `{"value":"valid"}`)))
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		agg := store.Aggregate("owner-1")
		return agg != nil && agg.Score == 5
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.True(t, store.Aggregate("owner-1").HasBadge(badge.FiveApprovals))
}

func TestMonitorReportsStatus(t *testing.T) {
	t.Parallel()
	_, mr, cleanup := setupQueue(t, 3)
	defer cleanup()

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	defer client.Close()

	monitor := trigger.NewMonitor(client, zap.NewNop())
	reporter := trigger.NewStatusReporter(monitor, "host-a", zap.NewNop())
	reporter.Record(nil)
	reporter.Record(errors.New("boom"))

	ctx, cancel := context.WithCancel(t.Context())
	go reporter.Run(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		statuses, err := monitor.GetAllStatuses(t.Context())
		return err == nil && len(statuses) == 1
	}, 5*time.Second, 10*time.Millisecond)

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	assert.Equal(t, reporter.GetWorkerID(), statuses[0].WorkerID)
	assert.Equal(t, "host-a", statuses[0].Hostname)
	assert.Equal(t, int64(2), statuses[0].Handled)
	assert.Equal(t, int64(1), statuses[0].Failed)
	assert.False(t, statuses[0].IsHealthy)
	assert.False(t, statuses[0].IsStale(time.Now()))
}

func newStatusClient(t *testing.T, mr *miniredis.Miniredis) rueidis.Client {
	t.Helper()

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestRecoverOrphansLeavesLiveSiblings(t *testing.T) {
	t.Parallel()
	_, mr, cleanup := setupQueue(t, 3)
	defer cleanup()

	ctx := t.Context()
	monitor := trigger.NewMonitor(newStatusClient(t, mr), zap.NewNop())

	store := memory.New(dbretry.Policy{MaxRetries: 5, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	dispatcher := trigger.NewDispatcher(engine.New(store, badge.NewDefaultEngine(nil), zap.NewNop()), zap.NewNop())

	reporterA := trigger.NewStatusReporter(monitor, "host-a", zap.NewNop())
	require.NoError(t, reporterA.Report(ctx))
	qa := newQueue(t, mr, reporterA.GetWorkerID(), 3)
	require.NoError(t, qa.Enqueue(ctx, newNotification("r1")))

	// Worker a is still handling the creation
	inFlight, err := qa.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, inFlight)

	// Worker b starts up next to it
	reporterB := trigger.NewStatusReporter(monitor, "host-b", zap.NewNop())
	require.NoError(t, reporterB.Report(ctx))
	qb := newQueue(t, mr, reporterB.GetWorkerID(), 3)

	recovered, err := trigger.RecoverOrphans(ctx, qb, monitor, false)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	wb := trigger.NewWorker(qb, dispatcher, trigger.WorkerOptions{}, zap.NewNop())
	handled, err := wb.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, handled)

	_, err = dispatcher.Dispatch(ctx, inFlight.Notification)
	require.NoError(t, err)
	require.NoError(t, qa.Ack(ctx, inFlight))

	agg := store.Aggregate("owner-1")
	require.NotNil(t, agg)
	assert.Equal(t, int64(1), agg.ReportsCount)

	// A worker that died without a heartbeat leaves its claim behind
	qc := newQueue(t, mr, "crashed", 3)
	require.NoError(t, qc.Enqueue(ctx, newNotification("r2")))
	orphan, err := qc.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, orphan)

	recovered, err = trigger.RecoverOrphans(ctx, qb, monitor, false)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	handled, err = wb.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, handled)

	assert.Equal(t, int64(2), store.Aggregate("owner-1").ReportsCount)

	stats, err := qb.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.QueueStats{}, stats)
}

func TestRecoverOrphansStaleHeartbeat(t *testing.T) {
	t.Parallel()
	_, mr, cleanup := setupQueue(t, 3)
	defer cleanup()

	ctx := t.Context()
	monitor := trigger.NewMonitor(newStatusClient(t, mr), zap.NewNop())

	stale, err := sonic.MarshalString(trigger.Status{
		WorkerID:  "stale",
		LastSeen:  time.Now().Add(-time.Hour),
		IsHealthy: true,
	})
	require.NoError(t, err)
	require.NoError(t, mr.Set("worker:stale", stale))

	live := trigger.NewStatusReporter(monitor, "host-a", zap.NewNop())
	require.NoError(t, live.Report(ctx))

	qStale := newQueue(t, mr, "stale", 3)
	qLive := newQueue(t, mr, live.GetWorkerID(), 3)
	require.NoError(t, qStale.Enqueue(ctx, newNotification("r1")))
	require.NoError(t, qStale.Enqueue(ctx, newNotification("r2")))
	_, err = qStale.Claim(ctx)
	require.NoError(t, err)
	_, err = qLive.Claim(ctx)
	require.NoError(t, err)

	other := newQueue(t, mr, "operator", 3)

	recovered, err := trigger.RecoverOrphans(ctx, other, monitor, false)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	consumers, err := other.Consumers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{live.GetWorkerID()}, consumers)

	// Forced recovery takes live claims too
	recovered, err = trigger.RecoverOrphans(ctx, other, monitor, true)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	stats, err := other.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, trigger.QueueStats{Pending: 2}, stats)
}
