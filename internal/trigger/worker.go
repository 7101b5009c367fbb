package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/onlyrealroles/ghostscore/pkg/utils"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// idleWait is how long a consumer sleeps after finding the queue empty when
// Claim does not block.
const idleWait = 500 * time.Millisecond

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	// Concurrency is the number of consumers.
	Concurrency int
	// RetryDelay is how long a consumer pauses after a failed notification.
	RetryDelay time.Duration
	// Reporter receives a record of every handled notification. Optional.
	Reporter *StatusReporter
}

// Worker consumes notifications from a queue and dispatches them.
type Worker struct {
	queue      *Queue
	dispatcher *Dispatcher
	opts       WorkerOptions
	logger     *zap.Logger
}

// NewWorker creates a new worker.
func NewWorker(queue *Queue, dispatcher *Dispatcher, opts WorkerOptions, logger *zap.Logger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	return &Worker{
		queue:      queue,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.Named("worker"),
	}
}

// Run starts the consumers and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started", zap.Int("concurrency", w.opts.Concurrency))

	// Heartbeat before the first claim so no sibling mistakes our list for an orphan
	if w.opts.Reporter != nil {
		if err := w.opts.Reporter.Report(ctx); err != nil {
			return fmt.Errorf("failed to report initial status: %w", err)
		}
	}

	p := pool.New().WithContext(ctx)
	if w.opts.Reporter != nil {
		p.Go(func(ctx context.Context) error {
			w.opts.Reporter.Run(ctx)
			return nil
		})
	}
	for i := range w.opts.Concurrency {
		p.Go(func(ctx context.Context) error {
			w.consume(ctx, w.logger.With(zap.Int("consumer", i)))
			return nil
		})
	}

	err := p.Wait()
	w.logger.Info("Worker stopped")

	return err
}

func (w *Worker) consume(ctx context.Context, logger *zap.Logger) {
	for !utils.ContextGuard(ctx) {
		handled, err := w.ProcessOne(ctx)
		if handled && w.opts.Reporter != nil {
			w.opts.Reporter.Record(err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to process notification", zap.Error(err))
			if !utils.ErrorSleep(ctx, w.opts.RetryDelay, logger) {
				return
			}
			continue
		}

		if !handled && w.queue.blockTimeout <= 0 && !utils.IdleSleep(ctx, idleWait) {
			return
		}
	}
}

// ProcessOne claims and handles a single notification. It reports false when
// the queue was empty. A dispatch failure is returned after the notification has
// been requeued or dead-lettered.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	delivery, err := w.queue.Claim(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	n := delivery.Notification

	outcome, err := w.dispatcher.Dispatch(ctx, n)
	if err != nil {
		// Permanent failures skip the retry budget
		if IsPermanent(err) {
			if dlErr := w.queue.DeadLetter(ctx, delivery, err); dlErr != nil {
				return true, errors.Join(err, dlErr)
			}
			return true, err
		}

		if _, rqErr := w.queue.Retry(ctx, delivery, err); rqErr != nil {
			return true, errors.Join(err, rqErr)
		}
		return true, err
	}

	if err := w.queue.Ack(ctx, delivery); err != nil {
		return true, err
	}

	if outcome != engine.OutcomeSkippedUnchanged && outcome != engine.OutcomeSkippedNoDelta {
		w.logger.Debug("Handled notification",
			zap.String("id", n.ID),
			zap.String("kind", string(n.Kind)),
			zap.String("outcome", string(outcome)),
			zap.Int("attempts", n.Attempts))
	}

	return true, nil
}
