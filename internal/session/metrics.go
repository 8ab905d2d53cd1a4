package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/uow/internal/persist"
)

// Metrics holds the Prometheus collectors a session reports to. One
// Metrics may be shared by many sessions.
type Metrics struct {
	Flushes        *prometheus.CounterVec
	Actions        *prometheus.CounterVec
	Compensations  prometheus.Counter
	RemappedKeys   prometheus.Counter
	PinnedEntities prometheus.Counter
	Rollbacks      prometheus.Counter
	FlushDuration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uow",
			Subsystem: "session",
			Name:      "flushes_total",
			Help:      "Flushes by result.",
		}, []string{"result"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uow",
			Subsystem: "session",
			Name:      "actions_total",
			Help:      "Executed persist actions by kind.",
		}, []string{"kind"}),
		Compensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uow",
			Subsystem: "session",
			Name:      "compensations_total",
			Help:      "Compensating updates emitted to break reference cycles.",
		}),
		RemappedKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uow",
			Subsystem: "session",
			Name:      "remapped_keys_total",
			Help:      "Temporary keys replaced by durable keys.",
		}),
		PinnedEntities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uow",
			Subsystem: "session",
			Name:      "pinned_entities_total",
			Help:      "Entities withheld from a flush by pinning.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uow",
			Subsystem: "session",
			Name:      "rollbacks_total",
			Help:      "Session rollbacks.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uow",
			Subsystem: "session",
			Name:      "flush_duration_seconds",
			Help:      "Wall time of a flush, executor included.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Flushes,
			m.Actions,
			m.Compensations,
			m.RemappedKeys,
			m.PinnedEntities,
			m.Rollbacks,
			m.FlushDuration,
		)
	}
	return m
}

func (m *Metrics) observePlan(stats persist.Stats) {
	m.Actions.WithLabelValues(persist.Insert.String()).Add(float64(stats.Inserts))
	m.Actions.WithLabelValues(persist.Update.String()).Add(float64(stats.Updates))
	m.Actions.WithLabelValues(persist.Remove.String()).Add(float64(stats.Removes))
	m.Compensations.Add(float64(stats.Compensations))
}
