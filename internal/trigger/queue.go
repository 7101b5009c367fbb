package trigger

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/onlyrealroles/ghostscore/internal/setup/config"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// Queue is a reliable FIFO of notifications in Redis. A claimed notification
// moves atomically from the pending list to the consumer's own processing list
// and stays there until it is acknowledged or requeued, so a crashed consumer
// never loses one and a live one never has its work taken.
//
// Every key shares the {name} hash tag so the multi-key moves stay in one
// cluster slot.
type Queue struct {
	client       rueidis.Client
	name         string
	consumer     string
	pendingKey   string
	processKey   string
	deadKey      string
	consumersKey string
	maxAttempts  int
	blockTimeout time.Duration
	registered   atomic.Bool
	logger       *zap.Logger
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	// Name prefixes every Redis key the queue uses.
	Name string
	// Consumer names this process's processing list. Workers use their status
	// reporter's worker ID so orphaned lists can be matched to stale heartbeats.
	Consumer string
	// MaxAttempts is how many failed deliveries move a notification to the dead letter list.
	MaxAttempts int
	// BlockTimeout is how long Claim waits for work. Zero makes Claim return immediately.
	BlockTimeout time.Duration
}

// Delivery is a claimed notification. The raw payload identifies it in the processing list.
type Delivery struct {
	Notification *Notification
	raw          string
}

// QueueStats holds the length of each list.
type QueueStats struct {
	Pending    int64
	Processing int64
	Dead       int64
}

// QueueOptionsFromConfig converts the millisecond settings of the worker config.
func QueueOptionsFromConfig(cfg *config.Queue) QueueOptions {
	return QueueOptions{
		Name:         cfg.Name,
		MaxAttempts:  cfg.MaxAttempts,
		BlockTimeout: time.Duration(cfg.BlockTimeout) * time.Millisecond,
	}
}

// NewQueue creates a queue on the given client.
func NewQueue(client rueidis.Client, opts QueueOptions, logger *zap.Logger) *Queue {
	if opts.Name == "" {
		opts.Name = "ghostscore"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.Consumer == "" {
		opts.Consumer = uuid.NewString()
	}

	prefix := "{" + opts.Name + "}"

	return &Queue{
		client:       client,
		name:         opts.Name,
		consumer:     opts.Consumer,
		pendingKey:   prefix + ":pending",
		processKey:   processingKey(opts.Name, opts.Consumer),
		deadKey:      prefix + ":dead",
		consumersKey: prefix + ":consumers",
		maxAttempts:  opts.MaxAttempts,
		blockTimeout: opts.BlockTimeout,
		logger:       logger.Named("queue").With(zap.String("consumer", opts.Consumer)),
	}
}

func processingKey(name, consumer string) string {
	return "{" + name + "}:processing:" + consumer
}

// Consumer returns the name of this queue's processing list owner.
func (q *Queue) Consumer() string {
	return q.consumer
}

// Enqueue adds a notification to the back of the queue, assigning an ID if it has none.
func (q *Queue) Enqueue(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.EnqueuedAt.IsZero() {
		n.EnqueuedAt = time.Now()
	}

	payload, err := sonic.MarshalString(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := q.client.Do(ctx, q.client.B().Lpush().Key(q.pendingKey).Element(payload).Build()).Error(); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	return nil
}

// Claim moves the oldest pending notification to the processing list and
// returns it. It returns nil when the queue stayed empty for the block timeout.
// Undecodable payloads are dead-lettered and skipped.
func (q *Queue) Claim(ctx context.Context) (*Delivery, error) {
	if err := q.register(ctx); err != nil {
		return nil, err
	}

	var cmd rueidis.Completed
	for {
		if q.blockTimeout > 0 {
			cmd = q.client.B().Blmove().
				Source(q.pendingKey).Destination(q.processKey).
				Right().Left().
				Timeout(q.blockTimeout.Seconds()).
				Build()
		} else {
			cmd = q.client.B().Lmove().
				Source(q.pendingKey).Destination(q.processKey).
				Right().Left().
				Build()
		}

		raw, err := q.client.Do(ctx, cmd).ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				return nil, nil //nolint:nilnil // empty queue
			}
			return nil, fmt.Errorf("failed to claim notification: %w", err)
		}

		var n Notification
		if err := sonic.UnmarshalString(raw, &n); err != nil {
			q.logger.Error("Dead-lettering malformed notification", zap.Error(err))
			if err := q.move(ctx, raw, q.deadKey, raw); err != nil {
				return nil, err
			}
			continue
		}

		return &Delivery{Notification: &n, raw: raw}, nil
	}
}

// register records the consumer so its processing list can be found later.
func (q *Queue) register(ctx context.Context) error {
	if q.registered.Load() {
		return nil
	}

	err := q.client.Do(ctx, q.client.B().Sadd().Key(q.consumersKey).Member(q.consumer).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.registered.Store(true)
	return nil
}

// Ack removes a handled notification from the processing list.
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	err := q.client.Do(ctx, q.client.B().Lrem().Key(q.processKey).Count(1).Element(d.raw).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to acknowledge notification: %w", err)
	}
	return nil
}

// Retry records a failed attempt and puts the notification back at the end of
// the pending list, or on the dead letter list once it has used up its attempts.
// It reports whether the notification was dead-lettered.
func (q *Queue) Retry(ctx context.Context, d *Delivery, cause error) (bool, error) {
	n := *d.Notification
	n.Attempts++
	if cause != nil {
		n.LastError = cause.Error()
	}

	payload, err := sonic.MarshalString(&n)
	if err != nil {
		return false, fmt.Errorf("failed to marshal notification: %w", err)
	}

	target := q.pendingKey
	dead := n.Attempts >= q.maxAttempts
	if dead {
		target = q.deadKey
	}

	if err := q.move(ctx, d.raw, target, payload); err != nil {
		return false, err
	}

	if dead {
		q.logger.Warn("Notification dead-lettered",
			zap.String("id", n.ID),
			zap.String("kind", string(n.Kind)),
			zap.Int("attempts", n.Attempts),
			zap.String("lastError", n.LastError))
	}

	return dead, nil
}

// DeadLetter moves a notification straight to the dead letter list.
func (q *Queue) DeadLetter(ctx context.Context, d *Delivery, cause error) error {
	n := *d.Notification
	n.Attempts++
	if cause != nil {
		n.LastError = cause.Error()
	}

	payload, err := sonic.MarshalString(&n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	return q.move(ctx, d.raw, q.deadKey, payload)
}

// Recover moves the notifications left in this consumer's processing list
// back to the front of the pending list.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	return q.RecoverConsumer(ctx, q.consumer)
}

// RecoverConsumer moves every notification in the given consumer's processing
// list back to the front of the pending list and forgets the consumer. Only
// call it for consumers that are no longer running.
func (q *Queue) RecoverConsumer(ctx context.Context, consumer string) (int, error) {
	source := processingKey(q.name, consumer)

	moved := 0
	for {
		err := q.client.Do(ctx, q.client.B().Lmove().
			Source(source).Destination(q.pendingKey).
			Right().Right().
			Build()).Error()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				break
			}
			return moved, fmt.Errorf("failed to recover notification: %w", err)
		}
		moved++
	}

	err := q.client.Do(ctx, q.client.B().Srem().Key(q.consumersKey).Member(consumer).Build()).Error()
	if err != nil {
		return moved, fmt.Errorf("failed to forget consumer: %w", err)
	}
	if consumer == q.consumer {
		q.registered.Store(false)
	}

	if moved > 0 {
		q.logger.Info("Recovered in-flight notifications",
			zap.String("owner", consumer),
			zap.Int("count", moved))
	}

	return moved, nil
}

// Consumers returns every consumer that has claimed from the queue and not
// been recovered since.
func (q *Queue) Consumers(ctx context.Context) ([]string, error) {
	consumers, err := q.client.Do(ctx, q.client.B().Smembers().Key(q.consumersKey).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list consumers: %w", err)
	}

	slices.Sort(consumers)
	return consumers, nil
}

// DrainDead moves every dead-lettered notification back to the pending list
// with its attempt count reset.
func (q *Queue) DrainDead(ctx context.Context) (int, error) {
	moved := 0
	for {
		raw, err := q.client.Do(ctx, q.client.B().Rpop().Key(q.deadKey).Build()).ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				break
			}
			return moved, fmt.Errorf("failed to read dead letter: %w", err)
		}

		var n Notification
		if err := sonic.UnmarshalString(raw, &n); err != nil {
			q.logger.Warn("Dropping malformed dead letter", zap.Error(err))
			continue
		}

		n.Attempts = 0
		n.LastError = ""
		if err := q.Enqueue(ctx, &n); err != nil {
			return moved, err
		}
		moved++
	}

	return moved, nil
}

// Stats returns the length of the pending and dead letter lists and the
// combined length of every consumer's processing list.
func (q *Queue) Stats(ctx context.Context) (QueueStats, error) {
	consumers, err := q.Consumers(ctx)
	if err != nil {
		return QueueStats{}, err
	}

	cmds := make(rueidis.Commands, 0, len(consumers)+2)
	cmds = append(cmds,
		q.client.B().Llen().Key(q.pendingKey).Build(),
		q.client.B().Llen().Key(q.deadKey).Build(),
	)
	for _, consumer := range consumers {
		cmds = append(cmds, q.client.B().Llen().Key(processingKey(q.name, consumer)).Build())
	}

	var stats QueueStats
	for i, result := range q.client.DoMulti(ctx, cmds...) {
		n, err := result.AsInt64()
		if err != nil {
			return QueueStats{}, fmt.Errorf("failed to get queue length: %w", err)
		}

		switch i {
		case 0:
			stats.Pending = n
		case 1:
			stats.Dead = n
		default:
			stats.Processing += n
		}
	}

	return stats, nil
}

// move removes raw from the processing list and pushes payload onto target in one transaction.
func (q *Queue) move(ctx context.Context, raw, target, payload string) error {
	results := q.client.DoMulti(ctx,
		q.client.B().Multi().Build(),
		q.client.B().Lrem().Key(q.processKey).Count(1).Element(raw).Build(),
		q.client.B().Lpush().Key(target).Element(payload).Build(),
		q.client.B().Exec().Build(),
	)

	for _, result := range results {
		if err := result.Error(); err != nil {
			return fmt.Errorf("failed to move notification: %w", err)
		}
	}

	return nil
}
