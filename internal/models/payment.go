package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentLink is a reference to a payment page or intent held by an external provider.
type PaymentLink struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	InvoiceID uint   `gorm:"index;not null" json:"invoice_id"`
	Provider  string `gorm:"size:30;not null" json:"provider"`
	// Reference is an opaque token issued by the provider.
	Reference string          `gorm:"size:255;not null" json:"reference"`
	URL       string          `gorm:"size:1000" json:"url,omitempty"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`
}

// Payment is a confirmed payment received against an invoice.
type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	InvoiceID uint            `gorm:"uniqueIndex:idx_payment_ref;not null" json:"invoice_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Provider  string          `gorm:"size:30" json:"provider,omitempty"`
	// Reference makes repeated confirmations of the same payment idempotent.
	Reference  string    `gorm:"uniqueIndex:idx_payment_ref;size:255;not null" json:"reference"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`
}
