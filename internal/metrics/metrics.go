package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InvoiceMetrics counts lifecycle activity. A nil *InvoiceMetrics is a no-op.
type InvoiceMetrics struct {
	transitions       *prometheus.CounterVec
	recurrence        *prometheus.CounterVec
	emissionFailures  *prometheus.CounterVec
	collaboratorFails *prometheus.CounterVec
	tickDuration      prometheus.Histogram
}

// New registers the invoice metrics on registerer (the default registerer when nil).
func New(registerer prometheus.Registerer) *InvoiceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_transitions_total",
			Help: "Committed invoice status transitions.",
		},
		[]string{"from", "to"},
	)
	recurrence := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_recurrence_ticks_total",
			Help: "Recurrence rule evaluations by outcome.",
		},
		[]string{"result"}, // fired | idle | exhausted | failed
	)
	emissionFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_event_emission_failures_total",
			Help: "Events that could not be published after commit.",
		},
		[]string{"type"},
	)
	collaboratorFails := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_collaborator_failures_total",
			Help: "Failed calls to the notifier or payment gateway.",
		},
		[]string{"collaborator"},
	)
	tickDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invoice_scheduler_tick_seconds",
			Help:    "Duration of one scheduler pass over every active rule.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	registerer.MustRegister(transitions, recurrence, emissionFailures, collaboratorFails, tickDuration)

	return &InvoiceMetrics{
		transitions:       transitions,
		recurrence:        recurrence,
		emissionFailures:  emissionFailures,
		collaboratorFails: collaboratorFails,
		tickDuration:      tickDuration,
	}
}

func (m *InvoiceMetrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *InvoiceMetrics) IncRecurrence(result string) {
	if m == nil {
		return
	}
	m.recurrence.WithLabelValues(result).Inc()
}

func (m *InvoiceMetrics) IncEmissionFailure(eventType string) {
	if m == nil {
		return
	}
	m.emissionFailures.WithLabelValues(eventType).Inc()
}

func (m *InvoiceMetrics) IncCollaboratorFailure(collaborator string) {
	if m == nil {
		return
	}
	m.collaboratorFails.WithLabelValues(collaborator).Inc()
}

func (m *InvoiceMetrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}
