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

func TestCreateComputesTotalsAndNumber(t *testing.T) {
	f := newFixture(t)

	v := f.create(t)

	assert.Equal(t, "INV-2026-0001", v.Number)
	assert.Equal(t, models.InvoiceStatusDraft, v.Status)
	assert.Equal(t, models.PaymentStatusPending, v.PaymentStatus)
	assert.True(t, d("120").Equal(v.Subtotal), v.Subtotal.String())
	assert.True(t, d("10").Equal(v.DiscountAmount), v.DiscountAmount.String())
	assert.True(t, d("10").Equal(v.TaxAmount), v.TaxAmount.String())
	assert.True(t, d("120").Equal(v.TotalAmount), v.TotalAmount.String())
	assert.True(t, d("120").Equal(v.BaseTotalAmount))
	assert.Equal(t, date(2026, 4, 9), v.DueDate)
	assert.Len(t, v.LineItems, 2)

	second := f.create(t)
	assert.Equal(t, "INV-2026-0002", second.Number)

	assert.Equal(t, []models.ActivityType{models.ActivityInvoiceCreated}, f.activityTypes(t, v.ID))
	assert.Equal(t, []string{"invoice_created", "invoice_created"}, f.publisher.types())
}

func TestCreateAppliesBaseCurrencyConversion(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.Currency = "EUR"
	rate := d("1.1")
	in.ExchangeRate = &rate

	v, err := f.svc.Create(context.Background(), tenant, in)
	require.NoError(t, err)
	assert.True(t, d("132").Equal(v.BaseTotalAmount), v.BaseTotalAmount.String())
	assert.Equal(t, "USD", v.Base.Code)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*InvoiceInput)
		fields []string
	}{
		{"no lines", func(in *InvoiceInput) { in.LineItems = nil }, []string{"line_items"}},
		{"bad quantity", func(in *InvoiceInput) { in.LineItems[1].Quantity = d("0") }, []string{"line_items[1].quantity"}},
		{"missing contact", func(in *InvoiceInput) { in.ContactID = 0 }, []string{"contact_id"}},
		{"unknown contact", func(in *InvoiceInput) { in.ContactID = 999 }, []string{"contact_id"}},
		{"custom terms without days", func(in *InvoiceInput) { in.PaymentTerms = models.PaymentTermsCustom }, []string{"custom_term_days"}},
		{"missing description", func(in *InvoiceInput) { in.LineItems[0].Description = " " }, []string{"line_items[0].description"}},
		{"quantity finer than stored", func(in *InvoiceInput) { in.LineItems[0].Quantity = d("0.33333") }, []string{"line_items[0].quantity"}},
		{"rates finer than stored", func(in *InvoiceInput) {
			in.LineItems[1].TaxRate = d("7.12345")
			in.LineItems[1].UnitPrice = d("19.99999")
		}, []string{"line_items[1].tax_rate", "line_items[1].unit_price"}},
		{"exchange rate finer than stored", func(in *InvoiceInput) {
			rate := d("1.123456789")
			in.ExchangeRate = &rate
		}, []string{"exchange_rate"}},
		{"bad recurrence", func(in *InvoiceInput) {
			in.Recurrence = &RecurrenceInput{Frequency: "hourly"}
		}, []string{"recurrence.frequency"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.input()
			tt.mutate(&in)
			_, err := f.svc.Create(context.Background(), tenant, in)
			var verr *invoice.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, verr.Violations.Fields())
		})
	}

	var count int64
	f.db.Model(&models.Invoice{}).Count(&count)
	assert.Zero(t, count)
}

func TestStoredPrecisionReprices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input()
	in.LineItems[0].Quantity = d("0.3333")
	in.LineItems[0].UnitPrice = d("10.0001")
	in.LineItems[1].TaxRate = d("7.1234")
	rate := d("1.12345678")
	in.ExchangeRate = &rate

	created, err := f.svc.Create(ctx, tenant, in)
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, tenant, created.ID)
	require.NoError(t, err)
	p, err := f.svc.tenants.profile(ctx, tenant)
	require.NoError(t, err)
	repriced, err := p.pricer.Price(stored.Invoice)
	require.NoError(t, err)

	assert.True(t, created.TotalAmount.Equal(repriced.TotalAmount), "%s != %s", created.TotalAmount, repriced.TotalAmount)
	assert.True(t, created.BaseTotalAmount.Equal(repriced.BaseTotalAmount), "%s != %s", created.BaseTotalAmount, repriced.BaseTotalAmount)
	assert.True(t, created.TaxAmount.Equal(repriced.TaxAmount))
}

func TestCreateRejectsNonPositiveRate(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	rate := d("0")
	in.ExchangeRate = &rate

	_, err := f.svc.Create(context.Background(), tenant, in)
	var rerr *invoice.InvalidRateError
	assert.ErrorAs(t, err, &rerr)
}

func TestCustomTermsDueDate(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.PaymentTerms = models.PaymentTermsCustom
	in.CustomTermDays = intPtr(10)

	v, err := f.svc.Create(context.Background(), tenant, in)
	require.NoError(t, err)
	assert.Equal(t, date(2026, 3, 20), v.DueDate)
}

func TestUpdateDraftReplacesLines(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)

	in := f.input()
	in.LineItems = in.LineItems[:1]
	in.Version = &v.Version
	updated, err := f.svc.Update(context.Background(), tenant, v.ID, in)
	require.NoError(t, err)
	assert.Equal(t, v.Number, updated.Number)
	assert.Equal(t, v.Version+1, updated.Version)
	assert.True(t, d("110").Equal(updated.TotalAmount), updated.TotalAmount.String())

	got, err := f.svc.Get(context.Background(), tenant, v.ID)
	require.NoError(t, err)
	assert.Len(t, got.LineItems, 1)
	assert.True(t, d("110").Equal(got.TotalAmount))

	_, err = f.svc.Update(context.Background(), tenant, v.ID, in)
	assert.ErrorIs(t, err, invoice.ErrConcurrentUpdate, "stale version")
}

func TestUpdateRejectsIssuedInvoice(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)
	_, err := f.svc.Send(context.Background(), tenant, v.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), tenant, v.ID, f.input())
	assert.ErrorIs(t, err, invoice.ErrNotDraft)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), tenant, v.ID), invoice.ErrNotDraft)
}

func TestDeleteDraft(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)

	require.NoError(t, f.svc.Delete(context.Background(), tenant, v.ID))
	_, err := f.svc.Get(context.Background(), tenant, v.ID)
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	var lines int64
	f.db.Model(&models.LineItem{}).Where("invoice_id = ?", v.ID).Count(&lines)
	assert.Zero(t, lines)
	assert.Contains(t, f.publisher.types(), "invoice_deleted")
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)

	_, err := f.svc.Get(context.Background(), "other", v.ID)
	assert.ErrorIs(t, err, invoice.ErrNotFound)
	_, err = f.svc.Send(context.Background(), "other", v.ID)
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}

func TestCommitDetectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)

	next, err := invoice.Cancel(v.Invoice, f.clock.now())
	require.NoError(t, err)
	_, err = f.svc.commit(context.Background(), "cancel invoice", v.Invoice, next, nil, nil)
	require.NoError(t, err)

	// Second writer still holds the old version.
	_, err = f.svc.commit(context.Background(), "cancel invoice", v.Invoice, next,
		[]pendingActivity{statusActivity(v.Invoice, next, "")}, nil)
	var perr *invoice.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, invoice.ErrConcurrentUpdate)
	assert.Contains(t, err.Error(), "invoice not updated")

	// The rolled back mutation left no activity behind.
	assert.Equal(t, []models.ActivityType{models.ActivityInvoiceCreated}, f.activityTypes(t, v.ID))
}

func TestListFiltersByEffectiveStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.create(t)
	sent := f.create(t)
	_, err := f.svc.Send(ctx, tenant, sent.ID)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, tenant, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byStatus, err := f.svc.List(ctx, tenant, ListFilter{Status: models.InvoiceStatusSent})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, sent.ID, byStatus[0].ID)

	// After the due date the sent invoice reads as overdue.
	f.clock.set(date(2026, 4, 20))
	overdue, err := f.svc.List(ctx, tenant, ListFilter{Status: models.InvoiceStatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, models.InvoiceStatusOverdue, overdue[0].EffectiveStatus)
	assert.Equal(t, models.InvoiceStatusSent, overdue[0].Status)

	stillSent, err := f.svc.List(ctx, tenant, ListFilter{Status: models.InvoiceStatusSent})
	require.NoError(t, err)
	assert.Empty(t, stillSent)

	drafts, err := f.svc.List(ctx, tenant, ListFilter{Status: models.InvoiceStatusDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)
}

func TestListOverdueWithNonUTCClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t)
	_, err := f.svc.Send(ctx, tenant, v.ID)
	require.NoError(t, err)

	// 09:00 UTC on the due date, read on a clock ten hours behind UTC.
	hawaii := time.FixedZone("HST", -10*3600)
	f.clock.set(time.Date(2026, 4, 9, 9, 0, 0, 0, time.UTC).In(hawaii))

	overdue, err := f.svc.List(ctx, tenant, ListFilter{Status: models.InvoiceStatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, v.ID, overdue[0].ID)

	sent, err := f.svc.List(ctx, tenant, ListFilter{Status: models.InvoiceStatusSent})
	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestGetReportsLateFee(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.LateFee = &models.LateFeeRule{Kind: models.LateFeePercentage, Amount: d("5"), GraceDays: 3}
	v, err := f.svc.Create(context.Background(), tenant, in)
	require.NoError(t, err)
	_, err = f.svc.Send(context.Background(), tenant, v.ID)
	require.NoError(t, err)

	f.clock.set(date(2026, 4, 11))
	got, err := f.svc.Get(context.Background(), tenant, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusOverdue, got.EffectiveStatus)
	assert.True(t, got.LateFeeDue.IsZero(), "within grace period")

	f.clock.set(date(2026, 4, 20))
	got, err = f.svc.Get(context.Background(), tenant, v.ID)
	require.NoError(t, err)
	assert.True(t, d("6").Equal(got.LateFeeDue), got.LateFeeDue.String())
	assert.True(t, d("120").Equal(got.TotalAmount), "late fee is never added to the total")
}

func TestTenantSettingsDriveDefaults(t *testing.T) {
	f := newFixture(t)
	_, err := f.tenants.Save(context.Background(), tenant, models.TenantSettings{
		Name:                "Acme",
		BaseCurrency:        "eur",
		DefaultPaymentTerms: models.PaymentTermsNet15,
		DefaultTaxType:      models.TaxTypeVAT,
		CurrencyPrecision:   "USD:0",
	})
	require.NoError(t, err)

	in := f.input()
	in.PaymentTerms = ""
	in.Currency = ""
	in.LineItems[0].UnitPrice = d("50.40")
	v, err := f.svc.Create(context.Background(), tenant, in)
	require.NoError(t, err)
	assert.Equal(t, "EUR", v.Currency)
	assert.Equal(t, int32(2), v.Money.MinorUnits)
	assert.Equal(t, models.PaymentTermsNet15, v.PaymentTerms)
	assert.Equal(t, models.TaxTypeVAT, v.TaxType)
	assert.Equal(t, date(2026, 3, 25), v.DueDate)

	_, err = f.tenants.Save(context.Background(), tenant, models.TenantSettings{Name: "", BaseCurrency: "EURO"})
	var verr *invoice.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"base_currency", "name"}, verr.Violations.Fields())
}

func TestEventFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errBoom

	v := f.create(t)
	got, err := f.svc.Get(context.Background(), tenant, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Number, got.Number)
	assert.Equal(t, []models.ActivityType{models.ActivityInvoiceCreated}, f.activityTypes(t, v.ID))
}

func TestViewDueDateIsDateOnly(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	issued := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	in.IssueDate = &issued

	v, err := f.svc.Create(context.Background(), tenant, in)
	require.NoError(t, err)
	assert.Equal(t, date(2026, 3, 1), v.IssueDate)
	assert.Equal(t, date(2026, 3, 31), v.DueDate)
}
