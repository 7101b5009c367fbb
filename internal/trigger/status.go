package trigger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// HeartbeatInterval is how often workers report their status.
	HeartbeatInterval = 10 * time.Second

	// HeartbeatTTL is how long a worker's status remains valid.
	HeartbeatTTL = 10 * time.Minute

	// StaleThreshold is how long before a worker is considered offline.
	StaleThreshold = 1 * time.Minute

	statusKeyPrefix = "worker:"
)

// Status is a worker's last reported state.
type Status struct {
	WorkerID  string    `json:"workerId"`
	Hostname  string    `json:"hostname"`
	LastSeen  time.Time `json:"lastSeen"`
	Handled   int64     `json:"handled"`
	Failed    int64     `json:"failed"`
	IsHealthy bool      `json:"isHealthy"`
}

// IsStale reports whether the worker has missed enough heartbeats to be considered offline.
func (s Status) IsStale(now time.Time) bool {
	return now.Sub(s.LastSeen) > StaleThreshold
}

// Monitor stores and reads worker statuses in Redis.
type Monitor struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewMonitor creates a new worker status monitor.
func NewMonitor(client rueidis.Client, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		logger: logger.Named("monitor"),
	}
}

// ReportStatus stores a worker's status with a TTL.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) error {
	status.LastSeen = time.Now()

	data, err := sonic.MarshalString(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := statusKeyPrefix + status.WorkerID
	err = m.client.Do(ctx, m.client.B().Set().Key(key).Value(data).Ex(HeartbeatTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}

	return nil
}

// GetAllStatuses returns every reported worker status ordered by worker ID.
func (m *Monitor) GetAllStatuses(ctx context.Context) ([]Status, error) {
	keys, err := m.client.Do(ctx, m.client.B().Keys().Pattern(statusKeyPrefix+"*").Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to get worker keys: %w", err)
	}

	statuses := make([]Status, 0, len(keys))

	for _, key := range keys {
		data, err := m.client.Do(ctx, m.client.B().Get().Key(key).Build()).ToString()
		if err != nil {
			// Expired between KEYS and GET
			if rueidis.IsRedisNil(err) {
				continue
			}
			m.logger.Error("Failed to get worker status", zap.String("key", key), zap.Error(err))
			continue
		}

		var status Status
		if err := sonic.UnmarshalString(data, &status); err != nil {
			m.logger.Error("Failed to unmarshal worker status", zap.String("key", key), zap.Error(err))
			continue
		}

		statuses = append(statuses, status)
	}

	slices.SortFunc(statuses, func(a, b Status) int {
		return cmp.Compare(a.WorkerID, b.WorkerID)
	})

	return statuses, nil
}

// StatusReporter periodically reports a worker's counters.
type StatusReporter struct {
	monitor *Monitor
	status  Status
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewStatusReporter creates a reporter with a fresh worker ID.
func NewStatusReporter(monitor *Monitor, hostname string, logger *zap.Logger) *StatusReporter {
	return &StatusReporter{
		monitor: monitor,
		status: Status{
			WorkerID:  uuid.New().String(),
			Hostname:  hostname,
			IsHealthy: true,
		},
		logger: logger.Named("status_reporter"),
	}
}

// Report stores the current status once.
func (r *StatusReporter) Report(ctx context.Context) error {
	return r.monitor.ReportStatus(ctx, r.snapshot())
}

// Run reports the status every HeartbeatInterval until ctx is cancelled.
func (r *StatusReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		if err := r.Report(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("Failed to report status", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Record counts a handled notification.
func (r *StatusReporter) Record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Handled++
	if err != nil {
		r.status.Failed++
	}
	r.status.IsHealthy = err == nil
}

// GetWorkerID returns the unique worker ID.
func (r *StatusReporter) GetWorkerID() string {
	return r.status.WorkerID
}

func (r *StatusReporter) snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// RecoverOrphans requeues the in-flight notifications of every other consumer
// whose worker has no fresh heartbeat. With force set, live consumers are
// recovered too, which is only safe once every worker has stopped.
func RecoverOrphans(ctx context.Context, queue *Queue, monitor *Monitor, force bool) (int, error) {
	consumers, err := queue.Consumers(ctx)
	if err != nil {
		return 0, err
	}

	statuses, err := monitor.GetAllStatuses(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	alive := make(map[string]bool, len(statuses))
	for _, status := range statuses {
		alive[status.WorkerID] = !status.IsStale(now)
	}

	recovered := 0
	for _, consumer := range consumers {
		if consumer == queue.Consumer() || (alive[consumer] && !force) {
			continue
		}

		moved, err := queue.RecoverConsumer(ctx, consumer)
		recovered += moved
		if err != nil {
			return recovered, err
		}
	}

	return recovered, nil
}
