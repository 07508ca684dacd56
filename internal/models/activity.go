package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityType names what happened to an invoice.
type ActivityType string

const (
	ActivityInvoiceCreated     ActivityType = "invoice_created"
	ActivityInvoiceUpdated     ActivityType = "invoice_updated"
	ActivityStatusChanged      ActivityType = "status_changed"
	ActivityRecurrenceFired    ActivityType = "recurrence_fired"
	ActivityPaymentRecorded    ActivityType = "payment_recorded"
	ActivityPaymentLinkCreated ActivityType = "payment_link_created"
	ActivityInvoiceDeleted     ActivityType = "invoice_deleted"
)

// ActivityRecord is an append-only audit entry. Rows are never updated or deleted.
type ActivityRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	InvoiceID uint   `gorm:"index;not null" json:"invoice_id"`
	TenantID  string `gorm:"size:64;index;not null" json:"tenant_id"`

	Type        ActivityType      `gorm:"size:40;not null" json:"type"`
	Description string            `gorm:"size:500" json:"description"`
	Payload     datatypes.JSONMap `json:"payload,omitempty"`
}
