package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// VotesTotal counts vote attempts by outcome (ok, already_voted, rate_limited, ...).
	VotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reporter",
		Subsystem: "votes",
		Name:      "total",
		Help:      "Total number of vote attempts, labeled by result.",
	}, []string{"result"})

	// StatusTransitionsTotal counts committed status changes by target status.
	StatusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reporter",
		Subsystem: "reports",
		Name:      "status_transitions_total",
		Help:      "Total number of committed report status transitions, labeled by new status.",
	}, []string{"status"})

	// NotificationsTotal counts push sends by outcome.
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reporter",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Total number of push notifications attempted, labeled by result.",
	}, []string{"result"})

	// EventsPending is the size of the last pending-events batch the dispatcher loaded.
	EventsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reporter",
		Subsystem: "notify",
		Name:      "events_pending",
		Help:      "Number of undelivered status events seen by the last dispatcher pass.",
	})

	AccountsErasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reporter",
		Subsystem: "accounts",
		Name:      "erased_total",
		Help:      "Total number of completed account deletions.",
	})
)

// Register registers reporter metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			VotesTotal,
			StatusTransitionsTotal,
			NotificationsTotal,
			EventsPending,
			AccountsErasedTotal,
		)
	})
}
