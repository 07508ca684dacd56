package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Contact is the party an invoice is addressed to.
type Contact struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// TenantID is the owner of this contact
	TenantID string `gorm:"size:64;index;not null" json:"tenant_id"`

	// Contact information
	Name    string `gorm:"size:255;not null" json:"name"`
	Email   string `gorm:"size:255" json:"email,omitempty"`
	Phone   string `gorm:"size:50" json:"phone,omitempty"`
	Company string `gorm:"size:255" json:"company,omitempty"`

	// Address
	Address    string `gorm:"size:500" json:"address,omitempty"`
	City       string `gorm:"size:100" json:"city,omitempty"`
	PostalCode string `gorm:"size:20" json:"postal_code,omitempty"`
	Country    string `gorm:"size:100" json:"country,omitempty"`

	TaxNumber string `gorm:"size:30" json:"tax_number,omitempty"`
}

// Resolved reports whether the contact can receive an invoice.
func (c *Contact) Resolved() bool {
	return c != nil && c.ID != 0 && strings.TrimSpace(c.Email) != ""
}

// FullAddress returns the formatted postal address, one part per line.
func (c *Contact) FullAddress() string {
	var lines []string
	if c.Address != "" {
		lines = append(lines, c.Address)
	}
	if city := strings.TrimSpace(c.PostalCode + " " + c.City); city != "" {
		lines = append(lines, city)
	}
	if c.Country != "" {
		lines = append(lines, c.Country)
	}
	return strings.Join(lines, "\n")
}
