package handlers

import (
	"time"

	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/internal/services"
	"github.com/diewo77/invoice-engine/validation"
	"github.com/shopspring/decimal"
)

type lineItemRequest struct {
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
}

type recurrenceRequest struct {
	Frequency      models.Frequency `json:"frequency"`
	StartDate      string           `json:"start_date"`
	EndDate        string           `json:"end_date"`
	MaxOccurrences *int             `json:"max_occurrences"`
}

type lateFeeRequest struct {
	Kind      models.LateFeeKind `json:"kind"`
	Amount    decimal.Decimal    `json:"amount"`
	GraceDays int                `json:"grace_days"`
}

type invoiceRequest struct {
	ContactID      uint                `json:"contact_id"`
	IssueDate      string              `json:"issue_date"`
	DueDate        string              `json:"due_date"`
	PaymentTerms   models.PaymentTerms `json:"payment_terms"`
	CustomTermDays *int                `json:"custom_term_days"`
	Currency       string              `json:"currency"`
	ExchangeRate   *decimal.Decimal    `json:"exchange_rate"`
	TaxInclusive   bool                `json:"tax_inclusive"`
	TaxType        models.TaxType      `json:"tax_type"`
	Notes          string              `json:"notes"`
	Terms          string              `json:"terms"`
	LineItems      []lineItemRequest   `json:"line_items"`
	Recurrence     *recurrenceRequest  `json:"recurrence"`
	LateFee        *lateFeeRequest     `json:"late_fee"`
	Version        *int                `json:"version"`
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty value yields nil.
func parseDate(field, value string, v validation.Violations) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	v[field] = validation.CodeInvalid
	return nil
}

func (req invoiceRequest) input() (services.InvoiceInput, error) {
	v := validation.Violations{}
	in := services.InvoiceInput{
		ContactID:      req.ContactID,
		IssueDate:      parseDate("issue_date", req.IssueDate, v),
		DueDate:        parseDate("due_date", req.DueDate, v),
		PaymentTerms:   req.PaymentTerms,
		CustomTermDays: req.CustomTermDays,
		Currency:       req.Currency,
		ExchangeRate:   req.ExchangeRate,
		TaxInclusive:   req.TaxInclusive,
		TaxType:        req.TaxType,
		Notes:          req.Notes,
		Terms:          req.Terms,
		Version:        req.Version,
	}
	for _, li := range req.LineItems {
		in.LineItems = append(in.LineItems, services.LineItemInput{
			Description:  li.Description,
			Quantity:     li.Quantity,
			UnitPrice:    li.UnitPrice,
			TaxRate:      li.TaxRate,
			DiscountRate: li.DiscountRate,
		})
	}
	if rr := req.Recurrence; rr != nil {
		in.Recurrence = &services.RecurrenceInput{
			Frequency:      rr.Frequency,
			StartDate:      parseDate("recurrence.start_date", rr.StartDate, v),
			EndDate:        parseDate("recurrence.end_date", rr.EndDate, v),
			MaxOccurrences: rr.MaxOccurrences,
		}
	}
	if lf := req.LateFee; lf != nil {
		in.LateFee = &models.LateFeeRule{Kind: lf.Kind, Amount: lf.Amount, GraceDays: lf.GraceDays}
	}
	return in, invoice.NewValidationError(v)
}

type lineItemResponse struct {
	ID           uint   `json:"id"`
	Description  string `json:"description"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	TaxRate      string `json:"tax_rate"`
	DiscountRate string `json:"discount_rate"`
	Position     int    `json:"position"`
}

type recurrenceResponse struct {
	Frequency         models.Frequency `json:"frequency"`
	StartDate         string           `json:"start_date"`
	EndDate           *string          `json:"end_date,omitempty"`
	MaxOccurrences    *int             `json:"max_occurrences,omitempty"`
	OccurrenceCount   int              `json:"occurrence_count"`
	LastGeneratedDate *string          `json:"last_generated_date,omitempty"`
	NextDate          *string          `json:"next_date,omitempty"`
	Active            bool             `json:"active"`
}

type lateFeeResponse struct {
	Kind      models.LateFeeKind `json:"kind"`
	Amount    string             `json:"amount"`
	GraceDays int                `json:"grace_days"`
	Due       string             `json:"due"`
}

type invoiceResponse struct {
	ID              uint                 `json:"id"`
	Number          string               `json:"number"`
	ContactID       uint                 `json:"contact_id"`
	Status          models.InvoiceStatus `json:"status"`
	StoredStatus    models.InvoiceStatus `json:"stored_status"`
	PaymentStatus   models.PaymentStatus `json:"payment_status"`
	IssueDate       string               `json:"issue_date"`
	DueDate         string               `json:"due_date"`
	PaymentTerms    models.PaymentTerms  `json:"payment_terms"`
	Currency        string               `json:"currency"`
	ExchangeRate    string               `json:"exchange_rate"`
	TaxInclusive    bool                 `json:"tax_inclusive"`
	TaxType         models.TaxType       `json:"tax_type"`
	Subtotal        string               `json:"subtotal"`
	DiscountAmount  string               `json:"discount_amount"`
	TaxAmount       string               `json:"tax_amount"`
	TotalAmount     string               `json:"total_amount"`
	BaseCurrency    string               `json:"base_currency"`
	BaseTotalAmount string               `json:"base_total_amount"`
	AmountPaid      string               `json:"amount_paid"`
	Outstanding     string               `json:"outstanding"`
	LateFee         *lateFeeResponse     `json:"late_fee,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	Terms           string               `json:"terms,omitempty"`
	ScheduledSendAt *time.Time           `json:"scheduled_send_at,omitempty"`
	EmailSentAt     *time.Time           `json:"email_sent_at,omitempty"`
	PaidAt          *time.Time           `json:"paid_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	TemplateID      *uint                `json:"template_id,omitempty"`
	Version         int                  `json:"version"`
	LineItems       []lineItemResponse   `json:"line_items"`
	Recurrence      *recurrenceResponse  `json:"recurrence,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.DateOnly)
	return &s
}

func newInvoiceResponse(v services.View) invoiceResponse {
	cur := v.Money
	resp := invoiceResponse{
		ID:              v.ID,
		Number:          v.Number,
		ContactID:       v.ContactID,
		Status:          v.EffectiveStatus,
		StoredStatus:    v.Status,
		PaymentStatus:   v.PaymentStatus,
		IssueDate:       v.IssueDate.UTC().Format(time.DateOnly),
		DueDate:         v.DueDate.UTC().Format(time.DateOnly),
		PaymentTerms:    v.PaymentTerms,
		Currency:        v.Currency,
		ExchangeRate:    v.ExchangeRate.String(),
		TaxInclusive:    v.TaxInclusive,
		TaxType:         v.TaxType,
		Subtotal:        cur.Format(v.Subtotal),
		DiscountAmount:  cur.Format(v.DiscountAmount),
		TaxAmount:       cur.Format(v.TaxAmount),
		TotalAmount:     cur.Format(v.TotalAmount),
		BaseCurrency:    v.Base.Code,
		BaseTotalAmount: v.Base.Format(v.BaseTotalAmount),
		AmountPaid:      cur.Format(v.AmountPaid),
		Outstanding:     cur.Format(v.Outstanding),
		Notes:           v.Notes,
		Terms:           v.Terms,
		ScheduledSendAt: v.ScheduledSendAt,
		EmailSentAt:     v.EmailSentAt,
		PaidAt:          v.PaidAt,
		CancelledAt:     v.CancelledAt,
		TemplateID:      v.TemplateID,
		Version:         v.Version,
		LineItems:       make([]lineItemResponse, len(v.LineItems)),
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
	for i, li := range v.LineItems {
		resp.LineItems[i] = lineItemResponse{
			ID:           li.ID,
			Description:  li.Description,
			Quantity:     li.Quantity.String(),
			UnitPrice:    li.UnitPrice.String(),
			TaxRate:      li.TaxRate.String(),
			DiscountRate: li.DiscountRate.String(),
			Position:     li.Position,
		}
	}
	if v.LateFee.Enabled() {
		resp.LateFee = &lateFeeResponse{
			Kind:      v.LateFee.Kind,
			Amount:    v.LateFee.Amount.String(),
			GraceDays: v.LateFee.GraceDays,
			Due:       cur.Format(v.LateFeeDue),
		}
	}
	if r := v.Recurrence; r != nil {
		rr := &recurrenceResponse{
			Frequency:         r.Frequency,
			StartDate:         r.StartDate.UTC().Format(time.DateOnly),
			EndDate:           dateString(r.EndDate),
			MaxOccurrences:    r.MaxOccurrences,
			OccurrenceCount:   r.OccurrenceCount,
			LastGeneratedDate: dateString(r.LastGeneratedDate),
			Active:            r.Active,
		}
		if !invoice.Exhausted(*r) {
			next := invoice.NextDate(*r)
			rr.NextDate = dateString(&next)
		}
		resp.Recurrence = rr
	}
	return resp
}
