package services

import (
	"context"
	"testing"
	"time"

	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) recurring(t *testing.T, max *int) View {
	t.Helper()
	in := f.input()
	issued := date(2026, 1, 15)
	in.IssueDate = &issued
	in.Recurrence = &RecurrenceInput{Frequency: models.FrequencyMonthly, MaxOccurrences: max}
	v, err := f.svc.Create(context.Background(), tenant, in)
	require.NoError(t, err)
	require.NotNil(t, v.Recurrence)
	return v
}

func TestTickRecurrenceGeneratesOncePerCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.recurring(t, nil)
	assert.Equal(t, date(2026, 2, 15), tpl.Recurrence.StartDate.UTC())

	none, err := f.svc.TickRecurrence(ctx, tenant, tpl.ID, date(2026, 2, 14))
	require.NoError(t, err)
	assert.Nil(t, none, "not due yet")

	asOf := date(2026, 2, 15)
	inv, err := f.svc.TickRecurrence(ctx, tenant, tpl.ID, asOf)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, date(2026, 2, 15), inv.IssueDate.UTC())
	assert.Equal(t, date(2026, 3, 17), inv.DueDate.UTC())
	assert.Equal(t, models.InvoiceStatusDraft, inv.Status)
	require.NotNil(t, inv.TemplateID)
	assert.Equal(t, tpl.ID, *inv.TemplateID)
	assert.True(t, tpl.TotalAmount.Equal(inv.TotalAmount))
	assert.Len(t, inv.LineItems, 2)

	again, err := f.svc.TickRecurrence(ctx, tenant, tpl.ID, asOf)
	require.NoError(t, err)
	assert.Nil(t, again, "same cycle must not generate twice")

	var generated int64
	f.db.Model(&models.Invoice{}).Where("template_id = ?", tpl.ID).Count(&generated)
	assert.Equal(t, int64(1), generated)

	got, err := f.svc.Get(ctx, tenant, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Recurrence.OccurrenceCount)
	require.NotNil(t, got.Recurrence.LastGeneratedDate)
	assert.Equal(t, asOf, got.Recurrence.LastGeneratedDate.UTC())

	assert.Contains(t, f.activityTypes(t, tpl.ID), models.ActivityRecurrenceFired)
	assert.Equal(t, []models.ActivityType{models.ActivityInvoiceCreated}, f.activityTypes(t, inv.ID))
}

func TestTickRecurrenceStopsAtMaxOccurrences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.recurring(t, intPtr(2))

	for _, asOf := range []time.Time{date(2026, 2, 15), date(2026, 3, 15)} {
		inv, err := f.svc.TickRecurrence(ctx, tenant, tpl.ID, asOf)
		require.NoError(t, err)
		require.NotNil(t, inv)
	}
	inv, err := f.svc.TickRecurrence(ctx, tenant, tpl.ID, date(2026, 4, 15))
	require.NoError(t, err)
	assert.Nil(t, inv)

	got, err := f.svc.Get(ctx, tenant, tpl.ID)
	require.NoError(t, err)
	assert.False(t, got.Recurrence.Active)
	assert.Equal(t, 2, got.Recurrence.OccurrenceCount)
}

func TestTickRecurrenceWithoutRule(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)

	_, err := f.svc.TickRecurrence(context.Background(), tenant, v.ID, date(2026, 3, 10))
	var verr *invoice.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"recurrence"}, verr.Violations.Fields())
}

func TestCancelledTemplateStopsRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.recurring(t, nil)

	_, err := f.svc.Cancel(ctx, tenant, tpl.ID)
	require.NoError(t, err)

	inv, err := f.svc.TickRecurrence(ctx, tenant, tpl.ID, date(2026, 6, 1))
	require.NoError(t, err)
	assert.Nil(t, inv)

	got, err := f.svc.Get(ctx, tenant, tpl.ID)
	require.NoError(t, err)
	assert.False(t, got.Recurrence.Active)
}

func TestTickAllCatchesUpAndSendsScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.recurring(t, nil)

	scheduled := f.create(t)
	_, err := f.svc.Schedule(ctx, tenant, scheduled.ID, date(2026, 4, 1))
	require.NoError(t, err)

	f.clock.set(date(2026, 5, 20))
	report, err := f.svc.TickAll(ctx, date(2026, 5, 20))
	require.NoError(t, err)
	assert.Len(t, report.Generated, 4, "Feb, Mar, Apr and May cycles")
	assert.Equal(t, []uint{scheduled.ID}, report.Sent)
	assert.Zero(t, report.Failed)

	var dates []time.Time
	require.NoError(t, f.db.Model(&models.Invoice{}).Where("template_id = ?", tpl.ID).
		Order("issue_date").Pluck("issue_date", &dates).Error)
	require.Len(t, dates, 4)
	for i, want := range []time.Time{date(2026, 2, 15), date(2026, 3, 15), date(2026, 4, 15), date(2026, 5, 15)} {
		assert.Equal(t, want, dates[i].UTC())
	}

	got, err := f.svc.Get(ctx, tenant, scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, got.Status)
	assert.Len(t, f.notifier.sent, 1)

	// A second run finds nothing left to do.
	report, err = f.svc.TickAll(ctx, date(2026, 5, 20))
	require.NoError(t, err)
	assert.Empty(t, report.Generated)
	assert.Empty(t, report.Sent)
}

func TestTickAllReportsSendFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t)
	_, err := f.svc.Schedule(ctx, tenant, v.ID, date(2026, 3, 11))
	require.NoError(t, err)
	f.notifier.err = errBoom

	report, err := f.svc.TickAll(ctx, date(2026, 3, 12))
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, report.Failed)

	got, err := f.svc.Get(ctx, tenant, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusScheduled, got.Status)
}
