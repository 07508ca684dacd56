package invoice

import (
	"time"

	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/validation"
	"github.com/shopspring/decimal"
)

var transitions = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceStatusDraft:         {models.InvoiceStatusScheduled, models.InvoiceStatusSent, models.InvoiceStatusCancelled},
	models.InvoiceStatusScheduled:     {models.InvoiceStatusSent, models.InvoiceStatusCancelled},
	models.InvoiceStatusSent:          {models.InvoiceStatusPartiallyPaid, models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
	models.InvoiceStatusPartiallyPaid: {models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
}

// CanTransition reports whether a stored status may move to another.
// Overdue is derived and never a target.
func CanTransition(from, to models.InvoiceStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(inv models.Invoice, to models.InvoiceStatus) error {
	if !CanTransition(inv.Status, to) {
		return &InvalidTransitionError{From: inv.Status, To: to}
	}
	return nil
}

// IsOverdue reports whether an issued invoice is past due and not fully paid.
func IsOverdue(inv models.Invoice, now time.Time) bool {
	if inv.Status != models.InvoiceStatusSent && inv.Status != models.InvoiceStatusPartiallyPaid {
		return false
	}
	return now.After(inv.DueDate) && inv.PaymentStatus != models.PaymentStatusPaid
}

// EffectiveStatus is the status readers see. Overdue is computed here on every read.
func EffectiveStatus(inv models.Invoice, now time.Time) models.InvoiceStatus {
	if IsOverdue(inv, now) {
		return models.InvoiceStatusOverdue
	}
	return inv.Status
}

// Send moves a draft or scheduled invoice to sent. The caller must deliver the
// notification successfully before persisting the returned invoice.
func Send(inv models.Invoice, contact *models.Contact, now time.Time) (models.Invoice, error) {
	if err := checkTransition(inv, models.InvoiceStatusSent); err != nil {
		return inv, err
	}
	lines := LinesFromItems(inv.LineItems)
	v := ValidateLines(lines)
	v.Merge("", ValidateDescriptions(lines))
	if !contact.Resolved() {
		v["contact_id"] = validation.CodeUnresolved
	}
	if err := NewValidationError(v); err != nil {
		return inv, err
	}

	out := inv
	out.Status = models.InvoiceStatusSent
	sentAt := now
	out.EmailSentAt = &sentAt
	return out, nil
}

// Schedule plans a future send. No notification is dispatched.
func Schedule(inv models.Invoice, sendAt, now time.Time) (models.Invoice, error) {
	if err := checkTransition(inv, models.InvoiceStatusScheduled); err != nil {
		return inv, err
	}
	if !sendAt.After(now) {
		return inv, &ValidationError{Violations: validation.Violations{"send_at": validation.CodeMustBeFuture}}
	}
	out := inv
	at := sendAt
	out.Status = models.InvoiceStatusScheduled
	out.ScheduledSendAt = &at
	return out, nil
}

// Cancel is allowed from every non-terminal status and is irreversible.
func Cancel(inv models.Invoice, now time.Time) (models.Invoice, error) {
	if err := checkTransition(inv, models.InvoiceStatusCancelled); err != nil {
		return inv, err
	}
	out := inv
	at := now
	out.Status = models.InvoiceStatusCancelled
	out.CancelledAt = &at
	return out, nil
}

// ApplyPayment adds a confirmed payment. The invoice becomes paid once the
// cumulative amount reaches the total within one minor unit.
func ApplyPayment(inv models.Invoice, amount decimal.Decimal, cur Currency, now time.Time) (models.Invoice, error) {
	if !amount.IsPositive() {
		return inv, &ValidationError{Violations: validation.Violations{"amount": validation.CodeMustBePositive}}
	}

	paid := inv.AmountPaid.Add(amount)
	target := models.InvoiceStatusPartiallyPaid
	if paid.GreaterThanOrEqual(inv.TotalAmount.Sub(cur.MinorUnit())) {
		target = models.InvoiceStatusPaid
	}
	if !(inv.Status == models.InvoiceStatusPartiallyPaid && target == models.InvoiceStatusPartiallyPaid) {
		if err := checkTransition(inv, target); err != nil {
			return inv, err
		}
	}

	out := inv
	out.AmountPaid = paid
	out.Status = target
	if target == models.InvoiceStatusPaid {
		at := now
		out.PaymentStatus = models.PaymentStatusPaid
		out.PaidAt = &at
	} else {
		out.PaymentStatus = models.PaymentStatusPartiallyPaid
	}
	return out, nil
}

// LateFee returns the penalty currently owed on an overdue invoice once its grace period
// elapsed. It is reported next to the invoice and never added to its total.
func LateFee(inv models.Invoice, cur Currency, now time.Time) decimal.Decimal {
	rule := inv.LateFee
	if !rule.Enabled() || !IsOverdue(inv, now) {
		return decimal.Zero
	}
	if !now.After(inv.DueDate.AddDate(0, 0, rule.GraceDays)) {
		return decimal.Zero
	}
	switch rule.Kind {
	case models.LateFeeFixed:
		return cur.Round(rule.Amount)
	case models.LateFeePercentage:
		return cur.Round(inv.Outstanding().Mul(rule.Amount).Div(hundred))
	}
	return decimal.Zero
}
