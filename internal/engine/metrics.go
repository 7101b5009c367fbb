package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsTotal counts handled notifications by kind and outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostscore_notifications_total",
			Help: "Handled notifications by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// EffectiveDeltaTotal counts committed score changes by direction.
	EffectiveDeltaTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostscore_effective_delta_total",
			Help: "Committed score changes by direction",
		},
		[]string{"direction"},
	)

	// BadgesAwardedTotal counts badges granted by name.
	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostscore_badges_awarded_total",
			Help: "Badges granted by name",
		},
		[]string{"badge"},
	)

	// HandleSeconds tracks how long each notification kind takes to handle.
	HandleSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ghostscore_handle_seconds",
			Help:    "Notification handling time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func recordUpdate(update *Update) {
	if update == nil {
		return
	}

	switch delta := update.After.Score - update.Before.Score; {
	case delta > 0:
		EffectiveDeltaTotal.WithLabelValues("up").Add(float64(delta))
	case delta < 0:
		EffectiveDeltaTotal.WithLabelValues("down").Add(float64(-delta))
	}

	for _, name := range update.Awarded {
		BadgesAwardedTotal.WithLabelValues(name).Inc()
	}
}
