package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInvoiceMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncTransition("draft", "sent")
	m.IncTransition("draft", "sent")
	m.IncRecurrence("fired")
	m.IncEmissionFailure("status_changed")
	m.IncCollaboratorFailure("notifier")
	m.ObserveTick(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("draft", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recurrence.WithLabelValues("fired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emissionFailures.WithLabelValues("status_changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.collaboratorFails.WithLabelValues("notifier")))

	count, err := testutil.GatherAndCount(reg, "invoice_scheduler_tick_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInvoiceMetrics_NilIsNoop(t *testing.T) {
	var m *InvoiceMetrics
	assert.NotPanics(t, func() {
		m.IncTransition("a", "b")
		m.IncRecurrence("idle")
		m.IncEmissionFailure("x")
		m.IncCollaboratorFailure("y")
		m.ObserveTick(time.Second)
	})
}
