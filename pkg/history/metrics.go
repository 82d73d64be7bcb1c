package history

import (
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeScheduled = "scheduled"
	outcomeIgnored   = "ignored"
)

// Metrics holds the Prometheus collectors of the recorder.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Events     *prometheus.CounterVec
	Captures   *prometheus.CounterVec
	Superseded prometheus.Counter
	Abandoned  prometheus.Counter
	Discarded  prometheus.Counter
	Failed     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered (useful in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tapestry_history_events_total",
				Help: "Editor events received by the history recorder, by outcome",
			},
			[]string{"event", "outcome"},
		),
		Captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tapestry_history_captures_total",
				Help: "Snapshots appended to history",
			},
			[]string{"event"},
		),
		Superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tapestry_history_superseded_total",
			Help: "Pending captures replaced by a newer event inside the window",
		}),
		Abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tapestry_history_abandoned_total",
			Help: "Captures dropped because the graph source was unavailable",
		}),
		Discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tapestry_history_discarded_total",
			Help: "Pending captures discarded when the recorder was closed",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tapestry_history_append_failures_total",
			Help: "Snapshots the store failed to append",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Events, m.Captures, m.Superseded, m.Abandoned, m.Discarded, m.Failed)
	}
	return m
}

// eventLabel bounds label cardinality: unknown kinds share one series.
func eventLabel(kind domain.EventKind) string {
	if domain.IsHistoryWorthy(kind) {
		return string(kind)
	}
	return "other"
}

func (m *Metrics) observeEvent(kind domain.EventKind, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(eventLabel(kind), outcome).Inc()
}

func (m *Metrics) observeCapture(kind domain.EventKind) {
	if m == nil {
		return
	}
	m.Captures.WithLabelValues(eventLabel(kind)).Inc()
}

func (m *Metrics) observeSuperseded() {
	if m != nil {
		m.Superseded.Inc()
	}
}

func (m *Metrics) observeAbandoned() {
	if m != nil {
		m.Abandoned.Inc()
	}
}

func (m *Metrics) observeDiscarded() {
	if m != nil {
		m.Discarded.Inc()
	}
}

func (m *Metrics) observeFailed() {
	if m != nil {
		m.Failed.Inc()
	}
}
