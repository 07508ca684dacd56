package invoice

import (
	"time"

	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/shopspring/decimal"
)

// Occurrence is one firing of a recurrence rule: the new draft and the advanced rule.
type Occurrence struct {
	Date    time.Time
	Invoice models.Invoice
	Rule    models.RecurrenceRule
}

// OccurrenceDate returns the date of the n-th occurrence (n starts at 0).
// Dates are stepped from the start date so a month-end anchor is kept:
// Jan 31 yields Feb 28 (or 29) and then Mar 31.
func OccurrenceDate(rule models.RecurrenceRule, n int) time.Time {
	start := rule.StartDate
	switch rule.Frequency {
	case models.FrequencyDaily:
		return start.AddDate(0, 0, n)
	case models.FrequencyWeekly:
		return start.AddDate(0, 0, 7*n)
	case models.FrequencyMonthly:
		return addMonthsClamped(start, n)
	case models.FrequencyQuarterly:
		return addMonthsClamped(start, 3*n)
	case models.FrequencyYearly:
		return addMonthsClamped(start, 12*n)
	}
	return start
}

// NextDate is the date of the occurrence the rule would generate next.
func NextDate(rule models.RecurrenceRule) time.Time {
	return OccurrenceDate(rule, rule.OccurrenceCount)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Exhausted reports whether the rule can never fire again. When both an end date
// and a maximum count are set, whichever is reached first ends the series.
func Exhausted(rule models.RecurrenceRule) bool {
	if !rule.Active || !rule.Frequency.Valid() {
		return true
	}
	if rule.MaxOccurrences != nil && rule.OccurrenceCount >= *rule.MaxOccurrences {
		return true
	}
	return rule.EndDate != nil && NextDate(rule).After(*rule.EndDate)
}

// NextOccurrence generates the next draft from template when the rule is due at asOf.
// A nil occurrence is not an error: the rule is not due yet, is exhausted, or the
// cycle was already generated (LastGeneratedDate is the de-duplication key).
func NextOccurrence(rule models.RecurrenceRule, template models.Invoice, asOf time.Time, pricer Pricer) (*Occurrence, error) {
	if Exhausted(rule) || asOf.Before(rule.StartDate) {
		return nil, nil
	}
	next := NextDate(rule)
	if next.After(asOf) {
		return nil, nil
	}
	if rule.LastGeneratedDate != nil && !rule.LastGeneratedDate.Before(next) {
		return nil, nil
	}

	inv, err := pricer.Price(instantiate(template, next))
	if err != nil {
		return nil, err
	}

	advanced := rule
	advanced.OccurrenceCount++
	generated := next
	advanced.LastGeneratedDate = &generated

	return &Occurrence{Date: next, Invoice: inv, Rule: advanced}, nil
}

// instantiate copies the billable content of template into a fresh draft issued on date.
func instantiate(template models.Invoice, date time.Time) models.Invoice {
	templateID := template.ID
	return models.Invoice{
		TenantID:       template.TenantID,
		ContactID:      template.ContactID,
		IssueDate:      date,
		DueDate:        template.PaymentTerms.DueDate(date, template.CustomTermDays),
		PaymentTerms:   template.PaymentTerms,
		CustomTermDays: template.CustomTermDays,
		Currency:       template.Currency,
		ExchangeRate:   template.ExchangeRate,
		TaxInclusive:   template.TaxInclusive,
		TaxType:        template.TaxType,
		Status:         models.InvoiceStatusDraft,
		PaymentStatus:  models.PaymentStatusPending,
		AmountPaid:     decimal.Zero,
		Notes:          template.Notes,
		Terms:          template.Terms,
		TemplateID:     &templateID,
		LateFee:        template.LateFee,
		Version:        1,
		LineItems:      models.CloneLineItems(template.LineItems),
	}
}
