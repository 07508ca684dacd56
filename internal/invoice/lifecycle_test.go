package invoice

import (
	"errors"
	"testing"
	"time"

	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func draftInvoice() models.Invoice {
	return models.Invoice{
		ID:            7,
		Status:        models.InvoiceStatusDraft,
		PaymentStatus: models.PaymentStatusPending,
		IssueDate:     now.AddDate(0, 0, -1),
		DueDate:       now.AddDate(0, 0, 29),
		TotalAmount:   d("236.00"),
		LineItems: []models.LineItem{
			{Description: "Consulting", Quantity: d("2"), UnitPrice: d("100"), TaxRate: d("18")},
		},
	}
}

var resolved = &models.Contact{ID: 3, Email: "billing@example.com"}

var allStatuses = []models.InvoiceStatus{
	models.InvoiceStatusDraft,
	models.InvoiceStatusScheduled,
	models.InvoiceStatusSent,
	models.InvoiceStatusPartiallyPaid,
	models.InvoiceStatusPaid,
	models.InvoiceStatusCancelled,
	models.InvoiceStatusOverdue,
}

func TestCanTransition(t *testing.T) {
	allowed := map[models.InvoiceStatus][]models.InvoiceStatus{
		models.InvoiceStatusDraft:         {models.InvoiceStatusScheduled, models.InvoiceStatusSent, models.InvoiceStatusCancelled},
		models.InvoiceStatusScheduled:     {models.InvoiceStatusSent, models.InvoiceStatusCancelled},
		models.InvoiceStatusSent:          {models.InvoiceStatusPartiallyPaid, models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
		models.InvoiceStatusPartiallyPaid: {models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestSend(t *testing.T) {
	inv := draftInvoice()
	got, err := Send(inv, resolved, now)
	require.NoError(t, err)

	assert.Equal(t, models.InvoiceStatusSent, got.Status)
	require.NotNil(t, got.EmailSentAt)
	assert.True(t, got.EmailSentAt.Equal(now))
	assert.Equal(t, models.InvoiceStatusDraft, inv.Status, "input must not be modified")
	assert.Nil(t, inv.EmailSentAt)

	inv.Status = models.InvoiceStatusScheduled
	got, err = Send(inv, resolved, now)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, got.Status)
}

func TestSend_Preconditions(t *testing.T) {
	t.Run("unresolved contact", func(t *testing.T) {
		for _, c := range []*models.Contact{nil, {ID: 3}} {
			_, err := Send(draftInvoice(), c, now)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, validation.CodeUnresolved, verr.Violations["contact_id"])
		}
	})

	t.Run("no line items", func(t *testing.T) {
		inv := draftInvoice()
		inv.LineItems = nil
		_, err := Send(inv, resolved, now)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, validation.CodeRequired, verr.Violations["line_items"])
	})

	t.Run("line without description", func(t *testing.T) {
		inv := draftInvoice()
		inv.LineItems[0].Description = "  "
		_, err := Send(inv, resolved, now)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, validation.Violations{"line_items[0].description": validation.CodeRequired}, verr.Violations)
	})

	t.Run("already sent", func(t *testing.T) {
		inv := draftInvoice()
		inv.Status = models.InvoiceStatusSent
		_, err := Send(inv, resolved, now)
		var terr *InvalidTransitionError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, models.InvoiceStatusSent, terr.From)
		assert.Equal(t, models.InvoiceStatusSent, terr.To)
	})
}

func TestSchedule(t *testing.T) {
	sendAt := now.Add(48 * time.Hour)
	got, err := Schedule(draftInvoice(), sendAt, now)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusScheduled, got.Status)
	require.NotNil(t, got.ScheduledSendAt)
	assert.True(t, got.ScheduledSendAt.Equal(sendAt))

	_, err = Schedule(draftInvoice(), now, now)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, validation.CodeMustBeFuture, verr.Violations["send_at"])

	_, err = Schedule(got, sendAt.Add(time.Hour), now)
	var terr *InvalidTransitionError
	assert.True(t, errors.As(err, &terr))
}

func TestCancel(t *testing.T) {
	for _, from := range []models.InvoiceStatus{
		models.InvoiceStatusDraft, models.InvoiceStatusScheduled,
		models.InvoiceStatusSent, models.InvoiceStatusPartiallyPaid,
	} {
		inv := draftInvoice()
		inv.Status = from
		got, err := Cancel(inv, now)
		require.NoErrorf(t, err, "cancel from %s", from)
		assert.Equal(t, models.InvoiceStatusCancelled, got.Status)
		require.NotNil(t, got.CancelledAt)
	}

	for _, from := range []models.InvoiceStatus{models.InvoiceStatusPaid, models.InvoiceStatusCancelled} {
		inv := draftInvoice()
		inv.Status = from
		got, err := Cancel(inv, now)
		var terr *InvalidTransitionError
		require.Truef(t, errors.As(err, &terr), "cancel from %s", from)
		assert.Equal(t, inv, got)
	}
}

func TestApplyPayment(t *testing.T) {
	inv := draftInvoice()
	inv.Status = models.InvoiceStatusSent

	partial, err := ApplyPayment(inv, d("100"), DefaultCurrency, now)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPartiallyPaid, partial.Status)
	assert.Equal(t, models.PaymentStatusPartiallyPaid, partial.PaymentStatus)
	assertDecimal(t, "100", partial.AmountPaid, "amount paid")
	assert.Nil(t, partial.PaidAt)

	again, err := ApplyPayment(partial, d("50"), DefaultCurrency, now)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPartiallyPaid, again.Status)

	// 235.99 is within one minor unit of 236.00
	paid, err := ApplyPayment(again, d("85.99"), DefaultCurrency, now)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)
	require.NotNil(t, paid.PaidAt)

	_, err = ApplyPayment(paid, d("1"), DefaultCurrency, now)
	var terr *InvalidTransitionError
	assert.True(t, errors.As(err, &terr))
}

func TestApplyPayment_Rejects(t *testing.T) {
	inv := draftInvoice()
	_, err := ApplyPayment(inv, d("10"), DefaultCurrency, now)
	var terr *InvalidTransitionError
	require.True(t, errors.As(err, &terr), "draft invoices cannot take payments")
	assert.Equal(t, models.InvoiceStatusDraft, terr.From)

	inv.Status = models.InvoiceStatusSent
	for _, amount := range []string{"0", "-5"} {
		got, err := ApplyPayment(inv, d(amount), DefaultCurrency, now)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, validation.CodeMustBePositive, verr.Violations["amount"])
		assert.Equal(t, inv, got)
	}
}

func TestUndefinedTransitionsLeaveInvoiceUnchanged(t *testing.T) {
	for _, from := range []models.InvoiceStatus{
		models.InvoiceStatusScheduled, models.InvoiceStatusSent,
		models.InvoiceStatusPartiallyPaid, models.InvoiceStatusPaid, models.InvoiceStatusCancelled,
	} {
		inv := draftInvoice()
		inv.Status = from

		got, err := Schedule(inv, now.Add(time.Hour), now)
		var terr *InvalidTransitionError
		require.Truef(t, errors.As(err, &terr), "schedule from %s", from)
		assert.Equal(t, inv, got)
		assert.Equal(t, from, terr.From)
	}
}

func TestEffectiveStatus_Overdue(t *testing.T) {
	inv := draftInvoice()
	inv.Status = models.InvoiceStatusSent
	inv.DueDate = now.AddDate(0, 0, -3)

	assert.Equal(t, models.InvoiceStatusOverdue, EffectiveStatus(inv, now))
	assert.Equal(t, models.InvoiceStatusSent, inv.Status, "overdue is never stored")
	assert.Equal(t, models.InvoiceStatusSent, EffectiveStatus(inv, inv.DueDate))

	inv.Status = models.InvoiceStatusPartiallyPaid
	assert.Equal(t, models.InvoiceStatusOverdue, EffectiveStatus(inv, now))

	inv.Status = models.InvoiceStatusDraft
	assert.Equal(t, models.InvoiceStatusDraft, EffectiveStatus(inv, now))

	inv.Status = models.InvoiceStatusPaid
	inv.PaymentStatus = models.PaymentStatusPaid
	assert.Equal(t, models.InvoiceStatusPaid, EffectiveStatus(inv, now))
}

func TestLateFee(t *testing.T) {
	inv := draftInvoice()
	inv.Status = models.InvoiceStatusSent
	inv.DueDate = now.AddDate(0, 0, -10)
	inv.AmountPaid = d("36")

	assert.True(t, LateFee(inv, DefaultCurrency, now).IsZero(), "no rule")

	inv.LateFee = models.LateFeeRule{Kind: models.LateFeeFixed, Amount: d("25"), GraceDays: 5}
	assertDecimal(t, "25", LateFee(inv, DefaultCurrency, now), "fixed fee")

	inv.LateFee = models.LateFeeRule{Kind: models.LateFeePercentage, Amount: d("1.5"), GraceDays: 5}
	// 1.5% of the 200.00 outstanding
	assertDecimal(t, "3.00", LateFee(inv, DefaultCurrency, now), "percentage fee")

	inv.LateFee.GraceDays = 10
	assert.True(t, LateFee(inv, DefaultCurrency, now).IsZero(), "within grace period")

	inv.LateFee.GraceDays = 0
	inv.DueDate = now.AddDate(0, 0, 1)
	assert.True(t, LateFee(inv, DefaultCurrency, now).IsZero(), "not overdue")
}
