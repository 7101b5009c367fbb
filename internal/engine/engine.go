// Package engine applies vote notifications to owner aggregates exactly once
// per semantic transition.
//
// Notifications arrive at least once and possibly out of order. Each report vote
// is reconciled against a durable ledger entry for its (report, voter) pair, and
// the resulting effective delta is applied to the owner's counters and badge set
// in the same transaction as the ledger write. No state is shared between calls;
// all coordination comes from the store's transaction isolation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/badge"
	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/onlyrealroles/ghostscore/internal/vote"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Engine handles report and post vote notifications.
type Engine struct {
	store   Store
	ledger  *Ledger
	updater *Updater
	tracer  trace.Tracer
	logger  *zap.Logger
}

// New creates an engine on top of the given store and badge rules.
func New(store Store, badges *badge.Engine, logger *zap.Logger) *Engine {
	logger = logger.Named("engine")

	return &Engine{
		store:   store,
		ledger:  NewLedger(logger),
		updater: NewUpdater(badges, logger),
		tracer:  otel.Tracer("github.com/onlyrealroles/ghostscore/internal/engine"),
		logger:  logger,
	}
}

// ReportCreated records the report's owner, counts the report toward the
// owner's reports and evaluates the first-report badge. Creation is not a
// toggle, so no ledger is involved.
func (e *Engine) ReportCreated(ctx context.Context, ev ReportCreated) (outcome Outcome, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.ReportCreated", trace.WithAttributes(
		attribute.String("report.id", ev.ReportID),
		attribute.String("owner.id", ev.OwnerID),
	))
	start := time.Now()
	defer func() { e.finish(span, KindReportCreated, start, outcome, err) }()

	if ev.OwnerID == "" {
		e.logger.Debug("Report has no owner", zap.String("reportID", ev.ReportID))
		return OutcomeSkippedMissingReference, nil
	}

	report := &types.GhostReport{ID: ev.ReportID, OwnerID: ev.OwnerID}
	if err := e.store.CreateGhostReport(ctx, report); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to record report: %w", err)
	}

	var update *Update

	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		update, err = e.updater.ApplyDelta(ctx, tx, ev.OwnerID, Delta{Reports: 1})
		return err
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to count report: %w", err)
	}

	e.logApplied("Counted new report", ev.OwnerID, update, zap.String("reportID", ev.ReportID))
	return OutcomeApplied, nil
}

// ReportVoteWritten reconciles a vote on a report against the ledger and applies
// the effective delta to the report owner's score and approvals.
func (e *Engine) ReportVoteWritten(ctx context.Context, ev ReportVoteWritten) (outcome Outcome, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.ReportVoteWritten", trace.WithAttributes(
		attribute.String("report.id", ev.ReportID),
		attribute.String("voter.id", ev.VoterID),
	))
	start := time.Now()
	defer func() { e.finish(span, KindReportVote, start, outcome, err) }()

	before, after := vote.Normalize(ev.Before), vote.Normalize(ev.After)
	span.SetAttributes(
		attribute.String("vote.before", before.String()),
		attribute.String("vote.after", after.String()),
	)

	// Equivalent values cannot change anything, so don't touch the store at all
	if before == after {
		return OutcomeSkippedUnchanged, nil
	}

	// Moves between non-valid states leave the valid count alone
	nominal := vote.NominalDelta(before, after)
	if nominal == 0 {
		return OutcomeSkippedNoDelta, nil
	}

	report, err := e.store.GhostReport(ctx, ev.ReportID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.logger.Debug("Report no longer exists", zap.String("reportID", ev.ReportID))
			return OutcomeSkippedMissingReference, nil
		}
		return OutcomeFailed, fmt.Errorf("failed to look up report: %w", err)
	}

	if report.OwnerID == "" {
		return OutcomeSkippedMissingReference, nil
	}

	if report.OwnerID == ev.VoterID {
		return OutcomeSkippedSelfVote, nil
	}

	key := types.LedgerKey{OwnerID: report.OwnerID, SubjectID: ev.ReportID, VoterID: ev.VoterID}

	var update *Update

	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		update = nil

		delta, err := e.ledger.Reconcile(ctx, tx, key, after)
		if err != nil {
			return err
		}
		if delta == 0 {
			return nil
		}

		update, err = e.updater.ApplyDelta(ctx, tx, report.OwnerID, Delta{Score: delta, Approvals: delta})
		return err
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to apply vote: %w", err)
	}

	if update == nil {
		return OutcomeNoChange, nil
	}

	e.logApplied("Applied vote transition", report.OwnerID, update,
		zap.String("reportID", ev.ReportID),
		zap.String("voterID", ev.VoterID),
		zap.Stringer("before", before),
		zap.Stringer("after", after),
		zap.Int64("nominalDelta", nominal))

	return OutcomeApplied, nil
}

// PostVoteWritten mirrors a post vote into the post's up and down counters.
//
// There is no ledger here: the increment is applied once per delivery, so a
// redelivered notification is counted again.
func (e *Engine) PostVoteWritten(ctx context.Context, ev PostVoteWritten) (outcome Outcome, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.PostVoteWritten", trace.WithAttributes(
		attribute.String("post.id", ev.PostID),
		attribute.String("voter.id", ev.VoterID),
	))
	start := time.Now()
	defer func() { e.finish(span, KindPostVote, start, outcome, err) }()

	up, down := vote.DirectionDeltas(ev.Before, ev.After)
	if up == 0 && down == 0 {
		return OutcomeSkippedUnchanged, nil
	}

	if err := e.store.IncrementPostVotes(ctx, ev.PostID, up, down); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to update post counters: %w", err)
	}

	e.logger.Debug("Updated post counters",
		zap.String("postID", ev.PostID),
		zap.Int64("deltaUp", up),
		zap.Int64("deltaDown", down))

	return OutcomeApplied, nil
}

// finish records metrics and closes the span for a handled notification.
func (e *Engine) finish(span trace.Span, kind Kind, start time.Time, outcome Outcome, err error) {
	defer span.End()

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	NotificationsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
	HandleSeconds.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}

func (e *Engine) logApplied(msg, ownerID string, update *Update, fields ...zap.Field) {
	recordUpdate(update)

	fields = append(fields,
		zap.String("ownerID", ownerID),
		zap.Int64("score", update.After.Score),
		zap.Int64("approvalsCount", update.After.ApprovalsCount),
		zap.Int64("reportsCount", update.After.ReportsCount))
	e.logger.Info(msg, fields...)

	if len(update.Awarded) > 0 {
		e.logger.Info("Awarded badges",
			zap.String("ownerID", ownerID),
			zap.Strings("badges", update.Awarded))
	}
}
