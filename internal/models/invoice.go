package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus represents the lifecycle status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusScheduled     InvoiceStatus = "scheduled"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"

	// InvoiceStatusOverdue is never stored. It is derived on read from the due date.
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// IsTerminal reports whether no further transition can leave the status.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// ParseInvoiceStatus accepts any known status, including the derived overdue one.
func ParseInvoiceStatus(s string) (InvoiceStatus, bool) {
	switch st := InvoiceStatus(s); st {
	case InvoiceStatusDraft, InvoiceStatusScheduled, InvoiceStatusSent, InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusOverdue:
		return st, true
	}
	return "", false
}

// PaymentStatus tracks money received against an invoice.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusRefunded      PaymentStatus = "refunded"
)

// PaymentTerms determines the due date relative to the issue date.
type PaymentTerms string

const (
	PaymentTermsDueOnReceipt PaymentTerms = "due_on_receipt"
	PaymentTermsNet15        PaymentTerms = "net_15"
	PaymentTermsNet30        PaymentTerms = "net_30"
	PaymentTermsNet45        PaymentTerms = "net_45"
	PaymentTermsNet60        PaymentTerms = "net_60"
	PaymentTermsNet90        PaymentTerms = "net_90"
	PaymentTermsCustom       PaymentTerms = "custom"
)

var paymentTermDays = map[PaymentTerms]int{
	PaymentTermsDueOnReceipt: 0,
	PaymentTermsNet15:        15,
	PaymentTermsNet30:        30,
	PaymentTermsNet45:        45,
	PaymentTermsNet60:        60,
	PaymentTermsNet90:        90,
}

// Valid reports whether t is a known payment term.
func (t PaymentTerms) Valid() bool {
	_, ok := paymentTermDays[t]
	return ok || t == PaymentTermsCustom
}

// DueDate returns the due date for an invoice issued on issue.
// customDays is only consulted for custom terms.
func (t PaymentTerms) DueDate(issue time.Time, customDays int) time.Time {
	if days, ok := paymentTermDays[t]; ok {
		return issue.AddDate(0, 0, days)
	}
	return issue.AddDate(0, 0, customDays)
}

// TaxType labels the kind of tax applied on the invoice.
type TaxType string

const (
	TaxTypeVAT      TaxType = "vat"
	TaxTypeGST      TaxType = "gst"
	TaxTypeSalesTax TaxType = "sales_tax"
	TaxTypeNone     TaxType = "none"
)

// Valid reports whether t is a known tax type.
func (t TaxType) Valid() bool {
	switch t {
	case TaxTypeVAT, TaxTypeGST, TaxTypeSalesTax, TaxTypeNone:
		return true
	}
	return false
}

// LateFeeKind selects how a late fee is computed.
type LateFeeKind string

const (
	LateFeeNone       LateFeeKind = ""
	LateFeeFixed      LateFeeKind = "fixed"
	LateFeePercentage LateFeeKind = "percentage"
)

// LateFeeRule is an optional penalty applied to overdue invoices once the grace period elapsed.
// The fee is reported alongside the invoice and never folded into TotalAmount.
type LateFeeRule struct {
	Kind      LateFeeKind     `gorm:"size:20" json:"kind,omitempty"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,4);default:0" json:"amount"`
	GraceDays int             `gorm:"default:0" json:"grace_days"`
}

// Enabled reports whether a late fee applies at all.
func (r LateFeeRule) Enabled() bool {
	return r.Kind == LateFeeFixed || r.Kind == LateFeePercentage
}

// Invoice represents a billing invoice owned by a tenant.
type Invoice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// TenantID isolates invoices between tenants.
	TenantID string `gorm:"size:64;index;not null" json:"tenant_id"`

	// Invoice identification
	Number string `gorm:"size:50;index" json:"number"`

	// Contact relationship
	ContactID uint     `gorm:"index;not null" json:"contact_id"`
	Contact   *Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`

	// Invoice dates
	IssueDate      time.Time    `gorm:"not null" json:"issue_date"`
	DueDate        time.Time    `gorm:"not null;index" json:"due_date"`
	PaymentTerms   PaymentTerms `gorm:"size:20;not null;default:'net_30'" json:"payment_terms"`
	CustomTermDays int          `gorm:"default:0" json:"custom_term_days,omitempty"`

	// Currency & tax settings
	Currency     string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	ExchangeRate decimal.Decimal `gorm:"type:decimal(18,8);not null;default:1" json:"exchange_rate"`
	TaxInclusive bool            `gorm:"not null;default:false" json:"tax_inclusive"`
	TaxType      TaxType         `gorm:"size:20;not null;default:'none'" json:"tax_type"`

	// Status
	Status        InvoiceStatus `gorm:"size:20;not null;default:'draft';index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"size:20;not null;default:'pending'" json:"payment_status"`

	// Computed totals, always written together with the line items they derive from.
	Subtotal        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"subtotal"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"discount_amount"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"tax_amount"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`
	BaseTotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"base_total_amount"`
	AmountPaid      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"amount_paid"`

	// Notes and terms
	Notes string `gorm:"type:text" json:"notes,omitempty"`
	Terms string `gorm:"type:text" json:"terms,omitempty"`

	// Lifecycle stamps
	ScheduledSendAt *time.Time `json:"scheduled_send_at,omitempty"`
	EmailSentAt     *time.Time `json:"email_sent_at,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`

	// TemplateID points at the recurring invoice this one was generated from.
	TemplateID *uint `gorm:"index" json:"template_id,omitempty"`

	LateFee LateFeeRule `gorm:"embedded;embeddedPrefix:late_fee_" json:"late_fee"`

	// Version guards every read-modify-write against lost updates.
	Version int `gorm:"not null;default:1" json:"version"`

	LineItems    []LineItem      `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"line_items"`
	Recurrence   *RecurrenceRule `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"recurrence,omitempty"`
	PaymentLinks []PaymentLink   `gorm:"foreignKey:InvoiceID" json:"payment_links,omitempty"`
}

// IsDraft returns true if the invoice is in draft status.
func (i *Invoice) IsDraft() bool {
	return i.Status == InvoiceStatusDraft
}

// CanEdit returns true if line items and settings can still change.
func (i *Invoice) CanEdit() bool {
	return i.Status == InvoiceStatusDraft
}

// Outstanding returns the amount still owed.
func (i *Invoice) Outstanding() decimal.Decimal {
	out := i.TotalAmount.Sub(i.AmountPaid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// LineItem represents a line on an invoice.
type LineItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Parent invoice
	InvoiceID uint `gorm:"index;not null" json:"invoice_id"`

	Description  string          `gorm:"size:500;not null" json:"description"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:1" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	TaxRate      decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"tax_rate"`
	DiscountRate decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"discount_rate"`

	// Position for ordering
	Position int `gorm:"default:0" json:"position"`
}

// CloneLineItems copies items without their identity so they can be attached to another invoice.
func CloneLineItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, it := range items {
		out[i] = LineItem{
			Description:  it.Description,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			TaxRate:      it.TaxRate,
			DiscountRate: it.DiscountRate,
			Position:     it.Position,
		}
	}
	return out
}

// GenerateInvoiceNumber generates the next invoice number for a tenant.
// Format: INV-YYYY-NNNN (e.g., INV-2025-0001)
func GenerateInvoiceNumber(db *gorm.DB, tenantID string, year int) (string, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	var count int64
	err := db.Model(&Invoice{}).
		Where("tenant_id = ? AND issue_date >= ? AND issue_date < ?", tenantID, from, to).
		Count(&count).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%d-%04d", year, count+1), nil
}
