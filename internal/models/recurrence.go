package models

import "time"

// Frequency is the step between two occurrences of a recurring invoice.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// RecurrenceRule makes its invoice a template that periodically spawns new invoices.
type RecurrenceRule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// InvoiceID is the template invoice.
	InvoiceID uint `gorm:"uniqueIndex;not null" json:"invoice_id"`

	Frequency      Frequency  `gorm:"size:20;not null" json:"frequency"`
	StartDate      time.Time  `gorm:"not null" json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	MaxOccurrences *int       `json:"max_occurrences,omitempty"`

	OccurrenceCount   int        `gorm:"not null;default:0" json:"occurrence_count"`
	LastGeneratedDate *time.Time `json:"last_generated_date,omitempty"`

	Active  bool `gorm:"not null;default:true;index" json:"active"`
	Version int  `gorm:"not null;default:1" json:"version"`
}
