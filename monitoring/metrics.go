package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	lockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slot_lock_operations_total",
			Help: "Total slot lock operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	activeLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slot_locks_active_total",
			Help: "Current number of active slot locks",
		},
	)

	sweptLocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slot_locks_swept_total",
			Help: "Total expired slot locks removed by the sweeper",
		},
	)

	bookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Total booking confirm/cancel operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	lockHoldDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slot_lock_hold_seconds",
			Help:    "Time between locking a slot and confirming it",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

// TrackLockOperation records one lock/release/confirm outcome.
func TrackLockOperation(operation, outcome string) {
	lockOperations.WithLabelValues(operation, outcome).Inc()
}

// TrackSweep records one sweep run.
func TrackSweep(count int) {
	sweptLocks.Add(float64(count))
}

// TrackBookingOperation records one confirm/cancel outcome.
func TrackBookingOperation(operation, outcome string) {
	bookingOperations.WithLabelValues(operation, outcome).Inc()
}

// TrackLockHold records how long a lock was held before confirmation.
func TrackLockHold(d time.Duration) {
	lockHoldDuration.Observe(d.Seconds())
}

// Monitor periodically samples gauge-style metrics from Redis.
type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		keys, err := m.redis.Keys(ctx, "slotlock:active:*").Result()
		if err != nil {
			continue
		}
		activeLocks.Set(float64(len(keys)))
	}
}
