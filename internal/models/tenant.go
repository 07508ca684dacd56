package models

import (
	"time"

	"gorm.io/gorm"
)

// TenantSettings holds per-tenant invoicing defaults and the issuer identity printed on invoices.
type TenantSettings struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID string `gorm:"size:64;uniqueIndex;not null" json:"tenant_id"`

	// Company information
	Name    string `gorm:"size:255;not null" json:"name"`
	Email   string `gorm:"size:255" json:"email,omitempty"`
	Phone   string `gorm:"size:50" json:"phone,omitempty"`
	Website string `gorm:"size:255" json:"website,omitempty"`

	// Address
	Address    string `gorm:"size:500" json:"address,omitempty"`
	City       string `gorm:"size:100" json:"city,omitempty"`
	PostalCode string `gorm:"size:20" json:"postal_code,omitempty"`
	Country    string `gorm:"size:100" json:"country,omitempty"`

	// Tax & Legal information
	TaxNumber string `gorm:"size:30" json:"tax_number,omitempty"`

	// Invoicing defaults
	BaseCurrency        string       `gorm:"size:3;not null;default:'USD'" json:"base_currency"`
	DefaultPaymentTerms PaymentTerms `gorm:"size:20;not null;default:'net_30'" json:"default_payment_terms"`
	DefaultTaxType      TaxType      `gorm:"size:20;not null;default:'none'" json:"default_tax_type"`
	// CurrencyPrecision overrides minor units per currency, e.g. "JPY:0,KWD:3".
	CurrencyPrecision string `gorm:"size:255" json:"currency_precision,omitempty"`
}
